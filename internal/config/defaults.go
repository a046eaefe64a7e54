package config

import "runtime"

// DefaultApplier applies defaults for one configuration section.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

const (
	defaultManifest    = "package.json"
	defaultModulesDir  = "views/modules"
	defaultModuleEntry = "index.scss"
	defaultDebounce    = "300ms"
	defaultCachePath   = ".assetpipe/cache.db"
	defaultSubject     = "assetpipe.tasks"
	defaultServerPort  = 3000
	defaultOptLevel    = 7
)

type projectDefaults struct{}

func (projectDefaults) Domain() string { return "project" }

func (projectDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Manifest == "" {
		cfg.Manifest = defaultManifest
	}
	if cfg.ModulesDir == "" {
		cfg.ModulesDir = defaultModulesDir
	}
	if cfg.ModuleEntry == "" {
		cfg.ModuleEntry = defaultModuleEntry
	}
	return nil
}

type scriptsDefaults struct{}

func (scriptsDefaults) Domain() string { return "scripts" }

func (scriptsDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Scripts.Entry == "" {
		cfg.Scripts.Entry = "index.js"
	}
	if cfg.Scripts.Target == "" {
		cfg.Scripts.Target = "es2017"
	}
	if cfg.Scripts.Sourcemap == nil {
		cfg.Scripts.Sourcemap = boolPtr(true)
	}
	return nil
}

type stylesDefaults struct{}

func (stylesDefaults) Domain() string { return "styles" }

func (stylesDefaults) ApplyDefaults(cfg *Config) error {
	if len(cfg.Styles.Targets) == 0 {
		cfg.Styles.Targets = []string{"chrome80", "edge80", "firefox78", "safari12", "ios12"}
	}
	if cfg.Styles.Sourcemap == nil {
		cfg.Styles.Sourcemap = boolPtr(true)
	}
	if cfg.Styles.MapsDir == "" {
		cfg.Styles.MapsDir = "maps"
	}
	return nil
}

type assetDefaults struct{}

func (assetDefaults) Domain() string { return "assets" }

func (assetDefaults) ApplyDefaults(cfg *Config) error {
	if len(cfg.Images.Extensions) == 0 {
		cfg.Images.Extensions = []string{"jpg", "jpeg", "png", "gif", "svg"}
	}
	if cfg.Images.OptimizationLevel == nil {
		cfg.Images.OptimizationLevel = intPtr(defaultOptLevel)
	}
	if cfg.Images.Progressive == nil {
		cfg.Images.Progressive = boolPtr(true)
	}
	if cfg.Images.Interlaced == nil {
		cfg.Images.Interlaced = boolPtr(true)
	}
	if cfg.Images.Workers <= 0 {
		cfg.Images.Workers = runtime.NumCPU()
	}
	if len(cfg.Fonts.Extensions) == 0 {
		cfg.Fonts.Extensions = []string{"woff", "woff2"}
	}
	if len(cfg.Clean.Patterns) == 0 {
		cfg.Clean.Patterns = []string{"**/.DS_Store", "**/Thumbs.db"}
	}
	if len(cfg.Clean.Skip) == 0 {
		cfg.Clean.Skip = []string{"node_modules", ".git"}
	}
	return nil
}

type watchDefaults struct{}

func (watchDefaults) Domain() string { return "watch" }

func (watchDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Watch.Debounce == "" {
		cfg.Watch.Debounce = defaultDebounce
	}
	return nil
}

type serverDefaults struct{}

func (serverDefaults) Domain() string { return "server" }

func (serverDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Server.Enabled == nil {
		cfg.Server.Enabled = boolPtr(true)
	}
	if cfg.Server.Proxy == "" {
		cfg.Server.Proxy = "http://localhost:8080"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultServerPort
	}
	if len(cfg.Server.Files) == 0 {
		cfg.Server.Files = []string{"**/*.php", "**/*.twig", "**/*.{png,jpg,gif}"}
	}
	if cfg.Server.InjectChanges == nil {
		cfg.Server.InjectChanges = boolPtr(true)
	}
	return nil
}

type infraDefaults struct{}

func (infraDefaults) Domain() string { return "infra" }

func (infraDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = defaultCachePath
	}
	if cfg.Events.Subject == "" {
		cfg.Events.Subject = defaultSubject
	}
	return nil
}

var defaultAppliers = []DefaultApplier{
	projectDefaults{},
	scriptsDefaults{},
	stylesDefaults{},
	assetDefaults{},
	watchDefaults{},
	serverDefaults{},
	infraDefaults{},
}

func applyDefaults(cfg *Config) error {
	for _, a := range defaultAppliers {
		if err := a.ApplyDefaults(cfg); err != nil {
			return err
		}
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

// BoolValue dereferences an optional flag, treating nil as false.
func BoolValue(b *bool) bool { return b != nil && *b }
