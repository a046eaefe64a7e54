package commands

import (
	"context"
	"os/signal"
	"slices"
	"syscall"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/tasks"
)

// RunCmd runs named tasks once. Without --deps a task runs alone, so
// "run styles:modules" rebuilds the modules without cleaning first.
type RunCmd struct {
	Tasks []string `arg:"" name:"task" help:"Tasks to run (see 'assetpipe tasks')"`
	Deps  bool     `help:"Also run the dependencies of each task"`
}

func (r *RunCmd) Run(_ *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return r.run(ctx, root.Config)
}

func (r *RunCmd) run(ctx context.Context, configPath string) error {
	p, err := openProject(configPath)
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer stop()
		p.Close(stopCtx)
	}()
	p.follow(ctx)

	if r.Deps {
		err = p.scheduler.Run(ctx, r.Tasks...)
	} else {
		for _, name := range r.Tasks {
			if err = p.scheduler.RunOnly(ctx, name); err != nil {
				break
			}
		}
	}
	if err != nil {
		return err
	}

	// The proxy only exists while the process does.
	if slices.Contains(r.Tasks, tasks.BrowserSync) && config.BoolValue(p.cfg.Server.Enabled) {
		<-ctx.Done()
	}
	return nil
}
