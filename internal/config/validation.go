package config

import (
	"net/url"
	"slices"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// TaskNames lists every task a watch rule may reference.
var TaskNames = []string{"clean", "scripts", "styles:base", "styles:modules", "images", "fonts", "browser-sync"}

// ValidateConfig checks a defaulted configuration.
func ValidateConfig(cfg *Config) error {
	v := configurationValidator{config: cfg}
	for _, check := range []func() error{v.validateProject, v.validateImages, v.validateWatch, v.validateServer} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

type configurationValidator struct {
	config *Config
}

func invalid(msg, key string, value any) error {
	return ferrors.ConfigError(msg).WithContext("key", key).WithContext("value", value).Build()
}

func (cv configurationValidator) validateProject() error {
	if cv.config.Root == "" {
		return ferrors.InternalError("config root not set").Build()
	}
	if !doublestar.ValidatePattern(cv.config.ModuleEntry) {
		return invalid("invalid module entry", "module_entry", cv.config.ModuleEntry)
	}
	for _, p := range cv.config.Clean.Patterns {
		if !doublestar.ValidatePattern(p) {
			return invalid("invalid clean pattern", "clean.patterns", p)
		}
	}
	return nil
}

func (cv configurationValidator) validateImages() error {
	level := *cv.config.Images.OptimizationLevel
	if level < 0 || level > 7 {
		return invalid("optimization level must be between 0 and 7", "images.optimization_level", level)
	}
	if q := cv.config.Images.JPEGQuality; q < 0 || q > 100 {
		return invalid("jpeg quality must be between 0 and 100", "images.jpeg_quality", q)
	}
	return nil
}

func (cv configurationValidator) validateWatch() error {
	d, err := time.ParseDuration(cv.config.Watch.Debounce)
	if err != nil || d < 0 {
		return invalid("invalid watch debounce", "watch.debounce", cv.config.Watch.Debounce)
	}
	if cv.config.Watch.Resync != "" {
		r, err := time.ParseDuration(cv.config.Watch.Resync)
		if err != nil || r < time.Second {
			return invalid("watch resync must be a duration of at least 1s", "watch.resync", cv.config.Watch.Resync)
		}
	}
	for _, rule := range cv.config.Watch.Rules {
		if !slices.Contains(TaskNames, rule.Task) {
			return invalid("watch rule references unknown task", "watch.rules.task", rule.Task)
		}
		if len(rule.Patterns) == 0 {
			return invalid("watch rule has no patterns", "watch.rules.patterns", rule.Task)
		}
		for _, p := range rule.Patterns {
			if !doublestar.ValidatePattern(p) {
				return invalid("invalid watch pattern", "watch.rules.patterns", p)
			}
		}
	}
	return nil
}

func (cv configurationValidator) validateServer() error {
	s := cv.config.Server
	if s.Port < 1 || s.Port > 65535 {
		return invalid("server port out of range", "server.port", s.Port)
	}
	u, err := url.Parse(s.Proxy)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("server proxy must be an http(s) URL", "server.proxy", s.Proxy)
	}
	for _, p := range s.Files {
		if !doublestar.ValidatePattern(p) {
			return invalid("invalid server file pattern", "server.files", p)
		}
	}
	return nil
}

// DebounceDuration returns the parsed watch debounce window.
func (c *Config) DebounceDuration() time.Duration {
	d, _ := time.ParseDuration(c.Watch.Debounce)
	return d
}

// ResyncInterval returns the parsed resync interval, zero when disabled.
func (c *Config) ResyncInterval() time.Duration {
	if c.Watch.Resync == "" {
		return 0
	}
	d, _ := time.ParseDuration(c.Watch.Resync)
	return d
}
