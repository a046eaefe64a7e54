package commands

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/assetpipe/internal/changed"
	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/devserver"
	"git.home.luguber.info/inful/assetpipe/internal/events"
	"git.home.luguber.info/inful/assetpipe/internal/gitinfo"
	"git.home.luguber.info/inful/assetpipe/internal/imageopt"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
	"git.home.luguber.info/inful/assetpipe/internal/notify"
	"git.home.luguber.info/inful/assetpipe/internal/scheduler"
	"git.home.luguber.info/inful/assetpipe/internal/styles"
	"git.home.luguber.info/inful/assetpipe/internal/tasks"
)

// project is everything a command needs to run tasks for one theme.
type project struct {
	cfg       *config.Config
	manifest  *config.Manifest
	bus       *events.Bus
	sass      *styles.DartSass
	cache     changed.Store
	notifier  *notify.Notifier
	server    *devserver.Server
	scheduler *scheduler.Scheduler
}

// openProject loads the configuration and manifest and wires the task graph.
func openProject(configPath string) (_ *project, err error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	manifest, err := config.LoadManifest(cfg.ManifestPath())
	if err != nil {
		return nil, err
	}
	engines, err := styles.ParseTargets(cfg.Styles.Targets)
	if err != nil {
		return nil, err
	}

	p := &project{cfg: cfg, manifest: manifest, bus: events.NewBus()}
	defer func() {
		if err != nil {
			p.Close(context.Background())
		}
	}()

	if cfg.CacheEnabled() {
		store, err := changed.NewSQLiteStore(cfg.Resolve(cfg.Cache.Path))
		if err != nil {
			return nil, err
		}
		p.cache = store
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusRecorder(reg)

	includes := make([]string, 0, len(cfg.Styles.IncludePaths))
	for _, inc := range cfg.Styles.IncludePaths {
		includes = append(includes, cfg.Resolve(inc))
	}
	p.sass = styles.NewDartSass(cfg.Styles.DartSass, slog.Default())

	commit := gitinfo.ShortCommit(cfg.Root)
	toolchain := &tasks.Toolchain{
		Config:   cfg,
		Manifest: manifest,
		Styles: &styles.Pipeline{
			Compiler:     p.sass,
			IncludePaths: includes,
			Engines:      engines,
			SourceMap:    config.BoolValue(cfg.Styles.Sourcemap),
			MapsDir:      cfg.Styles.MapsDir,
			OutputDir:    manifest.Paths.BuildCSS,
		},
		Optimizer: imageopt.New(imageopt.Options{
			Level:       *cfg.Images.OptimizationLevel,
			Progressive: config.BoolValue(cfg.Images.Progressive),
			Interlaced:  config.BoolValue(cfg.Images.Interlaced),
			JPEGQuality: cfg.Images.JPEGQuality,
		}),
		Cache:   p.cache,
		Bus:     p.bus,
		Metrics: recorder,
		Commit:  commit,
	}

	p.server, err = devserver.New(devserver.Options{
		Config:         cfg.Server,
		Status:         func() []scheduler.TaskStatus { return p.scheduler.Status() },
		Metrics:        recorder,
		MetricsHandler: metrics.HTTPHandler(reg),
	})
	if err != nil {
		return nil, err
	}

	g := scheduler.NewGraph()
	all := append(toolchain.Tasks(), scheduler.Task{
		Name:        tasks.BrowserSync,
		Description: "Serve the live-reloading proxy",
		Deps:        []string{tasks.Clean},
		Run:         p.server.Run,
	})
	for _, t := range all {
		if err := g.Add(t); err != nil {
			return nil, err
		}
	}
	p.scheduler, err = scheduler.New(g, scheduler.Options{
		Bus:      p.bus,
		Metrics:  recorder,
		Debounce: cfg.DebounceDuration(),
	})
	if err != nil {
		return nil, err
	}

	var publishers []notify.Publisher
	if cfg.Events.NATSURL != "" {
		pub, err := notify.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			slog.Warn("Task notices disabled", logfields.Error(err))
		} else {
			publishers = append(publishers, pub)
		}
	}
	p.notifier = notify.New(notify.Source{Project: manifest.Name, Version: manifest.Version, Commit: commit}, publishers...)

	slog.Debug("Project loaded",
		logfields.Path(cfg.Root),
		slog.String("name", manifest.Name),
		slog.String("version", manifest.Version),
		slog.String("commit", commit))
	return p, nil
}

// follow connects the dev server and notifier to the event bus.
func (p *project) follow(ctx context.Context) {
	p.server.Follow(ctx, p.bus)
	p.notifier.Follow(ctx, p.bus)
}

// Close releases every resource, bounded by ctx.
func (p *project) Close(ctx context.Context) {
	if p.scheduler != nil {
		if err := p.scheduler.Close(ctx); err != nil {
			slog.Warn("Tasks still running at shutdown", logfields.Error(err))
		}
	}
	if p.server != nil {
		if err := p.server.Stop(ctx); err != nil {
			slog.Warn("Dev server shutdown error", logfields.Error(err))
		}
	}
	p.bus.Close()
	if p.notifier != nil {
		p.notifier.Wait()
		if err := p.notifier.Close(); err != nil {
			slog.Warn("Notifier shutdown error", logfields.Error(err))
		}
	}
	if p.sass != nil {
		_ = p.sass.Close()
	}
	if p.cache != nil {
		if err := p.cache.Close(); err != nil {
			slog.Warn("Cache close error", logfields.Error(err))
		}
	}
}
