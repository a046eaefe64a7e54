package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/tasks"
	"git.home.luguber.info/inful/assetpipe/internal/watch"
)

const shutdownTimeout = 10 * time.Second

// DevCmd runs the full sequence and keeps rebuilding until interrupted.
type DevCmd struct {
	NoServer bool `name:"no-server" help:"Do not start the live-reloading proxy"`
	Once     bool `help:"Exit after the initial build instead of watching"`
}

func (d *DevCmd) Run(_ *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return d.run(ctx, root.Config)
}

func (d *DevCmd) run(ctx context.Context, configPath string) error {
	p, err := openProject(configPath)
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		p.Close(stopCtx)
		slog.Info("Stopped")
	}()
	p.follow(ctx)

	targets := append([]string(nil), tasks.BuildTasks...)
	serve := !d.NoServer && !d.Once && config.BoolValue(p.cfg.Server.Enabled)
	if serve {
		targets = append(targets, tasks.BrowserSync)
	}

	start := time.Now()
	if err := p.scheduler.Run(ctx, targets...); err != nil {
		if sev, _ := ferrors.Severest(err); d.Once || sev == ferrors.SeverityFatal {
			return err
		}
		// Watchers stay up so the next save can fix the build.
		slog.Warn("Initial build finished with errors", logfields.Error(err))
	} else {
		slog.Info("Initial build complete", logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	}
	if d.Once || ctx.Err() != nil {
		return nil
	}

	rules := watch.TaskRules(p.scheduler, p.cfg.WatchRules(p.manifest))
	if serve && len(p.cfg.Server.Files) > 0 {
		rules = append(rules, p.server.FilesRule())
	}
	w := watch.New(p.cfg.Root, rules, watch.Options{
		Resync: p.cfg.ResyncInterval(),
		OnResync: func(ctx context.Context) {
			for _, name := range tasks.BuildTasks {
				if err := p.scheduler.Trigger(ctx, name); err != nil {
					slog.Warn("Resync trigger failed", logfields.Task(name), logfields.Error(err))
				}
			}
		},
	})
	return w.Run(ctx)
}
