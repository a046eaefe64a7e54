package tasks

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/assetpipe/internal/events"
	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/fsutil"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
	"git.home.luguber.info/inful/assetpipe/internal/observability"
	"git.home.luguber.info/inful/assetpipe/internal/styles"
)

// BaseUnits lists one unit per top-level stylesheet in src.css. Partials
// (names starting with "_") are not entries.
func (tc *Toolchain) BaseUnits() ([]styles.Unit, error) {
	entries, err := fsutil.Glob(tc.Manifest.Paths.SrcCSS, "*.scss")
	if err != nil {
		return nil, err
	}
	units := make([]styles.Unit, 0, len(entries))
	for _, entry := range entries {
		base := filepath.Base(entry)
		if strings.HasPrefix(base, "_") {
			continue
		}
		units = append(units, styles.Unit{Name: strings.TrimSuffix(base, filepath.Ext(base)), Entry: entry})
	}
	return units, nil
}

// ModuleUnits lists one unit per module folder holding the module entry,
// named after the folder. Folders without the entry are skipped with a
// warning; a missing modules directory yields no units.
func (tc *Toolchain) ModuleUnits(ctx context.Context) ([]styles.Unit, error) {
	dir := tc.Config.ModulesPath()
	folders, err := fsutil.ListFolders(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			observability.WarnContext(ctx, "Modules directory not found; no module styles to build", logfields.Path(dir))
			return nil, nil
		}
		return nil, err
	}

	units := make([]styles.Unit, 0, len(folders))
	for _, folder := range folders {
		entry := filepath.Join(dir, folder, tc.Config.ModuleEntry)
		if _, err := os.Stat(entry); err != nil {
			observability.WarnContext(ctx, "Module has no entry stylesheet; skipping",
				logfields.Unit(folder), logfields.Path(entry))
			continue
		}
		units = append(units, styles.Unit{Name: folder, Entry: entry})
	}
	return units, nil
}

// StylesBase compiles every top-level stylesheet.
func (tc *Toolchain) StylesBase(ctx context.Context) error {
	units, err := tc.BaseUnits()
	if err != nil {
		return err
	}
	return tc.buildStyles(ctx, StylesBase, units)
}

// StylesModules compiles one stylesheet per module folder and returns only
// after every unit finished.
func (tc *Toolchain) StylesModules(ctx context.Context) error {
	units, err := tc.ModuleUnits(ctx)
	if err != nil {
		return err
	}
	return tc.buildStyles(ctx, StylesModules, units)
}

// buildStyles builds units concurrently. A failing unit is logged and
// isolated; the others still build. The result aggregates unit failures.
func (tc *Toolchain) buildStyles(ctx context.Context, task string, units []styles.Unit) error {
	var (
		mu      sync.Mutex
		failed  *multierror.Error
		written []string
		g       errgroup.Group
	)
	g.SetLimit(runtime.NumCPU())

	for _, u := range units {
		g.Go(func() error {
			uctx := observability.WithUnit(ctx, u.Name)
			files, err := tc.buildStyleUnit(uctx, u)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				tc.recorder().IncUnitResult(task, metrics.ResultFailed)
				observability.ErrorContext(uctx, "Stylesheet failed", logfields.Path(u.Entry), logfields.Error(err))
				failed = multierror.Append(failed, err)
				return nil
			}
			tc.recorder().IncUnitResult(task, metrics.ResultSuccess)
			written = append(written, files...)
			return nil
		})
	}
	_ = g.Wait()

	tc.announce(ctx, task, events.ReloadCSS, written)
	observability.InfoContext(ctx, "Styles task complete",
		logfields.Count(len(units)), slog.Int("written", len(written)))
	if err := failed.ErrorOrNil(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryBuild, "stylesheets failed").
			WithContext("failed", len(failed.Errors)).
			WithContext("units", len(units)).UserAction().Build()
	}
	return nil
}

func (tc *Toolchain) buildStyleUnit(ctx context.Context, u styles.Unit) ([]string, error) {
	out, err := tc.Styles.Build(ctx, u)
	if err != nil {
		return nil, err
	}

	var written []string
	cssPath := filepath.Join(tc.Manifest.Paths.BuildCSS, u.Filename())
	ok, err := fsutil.WriteIfChanged(cssPath, out.CSS)
	if err != nil {
		return nil, err
	}
	if ok {
		written = append(written, cssPath)
	}
	if out.Map != nil {
		mapPath := filepath.Join(tc.Manifest.Paths.BuildCSS, tc.Styles.MapFilename(u))
		if _, err := fsutil.WriteIfChanged(mapPath, out.Map); err != nil {
			return nil, err
		}
	}
	observability.DebugContext(ctx, "Built stylesheet", logfields.Output(cssPath))
	return written, nil
}
