// Package tasks implements the named build tasks: clean, scripts,
// styles:base, styles:modules, images and fonts.
package tasks

import (
	"context"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/changed"
	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/events"
	"git.home.luguber.info/inful/assetpipe/internal/imageopt"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
	"git.home.luguber.info/inful/assetpipe/internal/observability"
	"git.home.luguber.info/inful/assetpipe/internal/scheduler"
	"git.home.luguber.info/inful/assetpipe/internal/styles"
)

// Task names.
const (
	Clean         = "clean"
	Scripts       = "scripts"
	StylesBase    = "styles:base"
	StylesModules = "styles:modules"
	Images        = "images"
	Fonts         = "fonts"
	BrowserSync   = "browser-sync"
)

// BuildTasks are the tasks that run in parallel after clean.
var BuildTasks = []string{Scripts, StylesBase, StylesModules, Images, Fonts}

// Toolchain is the fixed set of tools every task uses. Cache, Bus and
// Metrics are optional.
type Toolchain struct {
	Config    *config.Config
	Manifest  *config.Manifest
	Styles    *styles.Pipeline
	Optimizer *imageopt.Optimizer
	Cache     changed.Store
	Bus       *events.Bus
	Metrics   metrics.Recorder
	Commit    string
}

// Tasks returns the build tasks. Every build task depends on clean.
func (tc *Toolchain) Tasks() []scheduler.Task {
	after := []string{Clean}
	return []scheduler.Task{
		{Name: Clean, Description: "Delete build output and OS metadata files", Run: tc.Clean},
		{Name: Scripts, Description: "Bundle the JavaScript entry", Deps: after, Run: tc.Scripts},
		{Name: StylesBase, Description: "Compile top-level stylesheets", Deps: after, Run: tc.StylesBase},
		{Name: StylesModules, Description: "Compile one stylesheet per module folder", Deps: after, Run: tc.StylesModules},
		{Name: Images, Description: "Optimize changed images", Deps: after, Run: tc.Images},
		{Name: Fonts, Description: "Copy changed fonts", Deps: after, Run: tc.Fonts},
	}
}

func (tc *Toolchain) recorder() metrics.Recorder {
	if tc.Metrics == nil {
		return metrics.NoopRecorder{}
	}
	return tc.Metrics
}

func (tc *Toolchain) announce(ctx context.Context, task string, kind events.ReloadKind, files []string) {
	if len(files) == 0 {
		return
	}
	tc.recorder().AddFilesWritten(task, len(files))
	if tc.Bus == nil || kind == "" {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := tc.Bus.Publish(pubCtx, events.AssetsWritten{Task: task, Kind: kind, Files: files}); err != nil {
		observability.DebugContext(ctx, "Assets event not delivered", logfields.Error(err))
	}
}
