package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// DefaultFile is the project configuration file looked up in the working directory.
const DefaultFile = "assetpipe.yaml"

// Config is the project configuration. Every section is optional; defaults
// reproduce the classic theme layout (package.json paths, views/modules).
type Config struct {
	Manifest    string        `yaml:"manifest"`     // path to package.json, relative to the project root
	ModulesDir  string        `yaml:"modules_dir"`  // one style unit per child folder
	ModuleEntry string        `yaml:"module_entry"` // entry stylesheet inside each module folder
	Scripts     ScriptsConfig `yaml:"scripts"`
	Styles      StylesConfig  `yaml:"styles"`
	Images      ImagesConfig  `yaml:"images"`
	Fonts       FontsConfig   `yaml:"fonts"`
	Clean       CleanConfig   `yaml:"clean"`
	Watch       WatchConfig   `yaml:"watch"`
	Server      ServerConfig  `yaml:"server"`
	Cache       CacheConfig   `yaml:"cache"`
	Events      EventsConfig  `yaml:"events"`

	// Root is the project root all relative paths resolve against. It is the
	// directory holding the config file and is never read from YAML.
	Root string `yaml:"-"`
}

type ScriptsConfig struct {
	Entry     string            `yaml:"entry"`  // relative to src.js
	Target    string            `yaml:"target"` // esbuild target, e.g. es2017
	Minify    bool              `yaml:"minify"` // whitespace minification on top of syntax minification
	Sourcemap *bool             `yaml:"sourcemap,omitempty"`
	Define    map[string]string `yaml:"define,omitempty"` // extra constants, values are JS expressions
}

type StylesConfig struct {
	IncludePaths []string `yaml:"include_paths,omitempty"`
	Targets      []string `yaml:"targets,omitempty"` // browser engines for vendor prefixing, e.g. safari11
	DartSass     string   `yaml:"dart_sass"`         // embedded Dart Sass binary; empty means look up on PATH
	Sourcemap    *bool    `yaml:"sourcemap,omitempty"`
	MapsDir      string   `yaml:"maps_dir"` // relative to build.css
}

type ImagesConfig struct {
	Extensions        []string `yaml:"extensions,omitempty"`
	OptimizationLevel *int     `yaml:"optimization_level,omitempty"` // 0-7
	Progressive       *bool    `yaml:"progressive,omitempty"`
	Interlaced        *bool    `yaml:"interlaced,omitempty"`
	JPEGQuality       int      `yaml:"jpeg_quality,omitempty"` // 0 keeps JPEGs lossless
	Workers           int      `yaml:"workers,omitempty"`
}

type FontsConfig struct {
	Extensions []string `yaml:"extensions,omitempty"`
}

type CleanConfig struct {
	Patterns []string `yaml:"patterns,omitempty"` // OS metadata globs removed under the root
	Skip     []string `yaml:"skip,omitempty"`     // directory names never descended into
}

type WatchConfig struct {
	Debounce string      `yaml:"debounce"`
	Resync   string      `yaml:"resync,omitempty"` // empty disables the periodic resync
	Rules    []WatchRule `yaml:"rules,omitempty"`  // empty means rules derived from the manifest
}

// WatchRule re-runs Task when a file matching one of Patterns changes.
type WatchRule struct {
	Task     string   `yaml:"task"`
	Patterns []string `yaml:"patterns"`
}

type ServerConfig struct {
	Enabled       *bool    `yaml:"enabled,omitempty"`
	Proxy         string   `yaml:"proxy"`
	Host          string   `yaml:"host"`
	Port          int      `yaml:"port"`
	Files         []string `yaml:"files,omitempty"`
	InjectChanges *bool    `yaml:"inject_changes,omitempty"`
}

type CacheConfig struct {
	Path string `yaml:"path"` // sqlite database; "off" disables settings fingerprints
}

type EventsConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject"`
}

// Load reads the configuration file at path, expands environment variables,
// applies defaults and validates the result.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "resolve config path").
			WithContext("path", path).Build()
	}
	root := filepath.Dir(abs)
	loadEnvFiles(root)

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.NotFoundError("configuration file not found").
				WithContext("path", abs).Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "read config file").
			WithContext("path", abs).Build()
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "parse config file").
			WithContext("path", abs).Build()
	}
	cfg.Root = root
	return finalize(&cfg)
}

// LoadOrDefault behaves like Load but returns the defaults rooted at the
// file's directory when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !ferrors.HasCategory(err, ferrors.CategoryNotFound) {
		return nil, err
	}
	abs, absErr := filepath.Abs(path)
	if absErr != nil {
		return nil, err
	}
	return Default(filepath.Dir(abs))
}

// Default returns the default configuration rooted at root.
func Default(root string) (*Config, error) {
	loadEnvFiles(root)
	return finalize(&Config{Root: root})
}

func finalize(cfg *Config) (*Config, error) {
	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve makes p absolute against the project root.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// ManifestPath returns the absolute path of package.json.
func (c *Config) ManifestPath() string { return c.Resolve(c.Manifest) }

// ModulesPath returns the absolute modules directory.
func (c *Config) ModulesPath() string { return c.Resolve(c.ModulesDir) }

// CacheEnabled reports whether the change-detection store is used.
func (c *Config) CacheEnabled() bool { return c.Cache.Path != "" && c.Cache.Path != "off" }

// Init writes an example configuration file.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return ferrors.ValidationError("configuration file already exists (use --force to overwrite)").
			WithContext("path", path).Build()
	}

	example := Config{Root: filepath.Dir(path)}
	if err := applyDefaults(&example); err != nil {
		return err
	}
	example.Server.Proxy = "http://theme.test"
	example.Scripts.Define = map[string]string{"DEBUG": "false"}
	example.Images.Workers = 0

	data, err := yaml.Marshal(&example)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "marshal example config").Build()
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "write config file").
			WithContext("path", path).Build()
	}
	return nil
}
