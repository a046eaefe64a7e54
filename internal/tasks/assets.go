package tasks

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/assetpipe/internal/changed"
	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/fsutil"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
	"git.home.luguber.info/inful/assetpipe/internal/observability"
)

// processFunc produces dst from src.
type processFunc func(ctx context.Context, src, dst string) error

// changedCopy runs process for every source under srcDir matching the
// extensions whose counterpart under dstDir is out of date. Unchanged
// files are never touched.
func (tc *Toolchain) changedCopy(ctx context.Context, task, srcDir, dstDir string, exts []string, settings any, workers int, process processFunc) (int, error) {
	sources, err := fsutil.Glob(srcDir, fsutil.ExtPattern(exts))
	if err != nil {
		return 0, err
	}
	detector, err := changed.NewDetector(tc.Cache, settings)
	if err != nil {
		return 0, err
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var (
		mu        sync.Mutex
		failed    *multierror.Error
		processed []string
		g         errgroup.Group
	)
	g.SetLimit(workers)
	for _, src := range sources {
		g.Go(func() error {
			rel, err := filepath.Rel(srcDir, src)
			if err != nil {
				return nil
			}
			dst := filepath.Join(dstDir, rel)
			uctx := observability.WithUnit(ctx, filepath.ToSlash(rel))

			err = func() error {
				reason, err := detector.Check(uctx, src, dst)
				if err != nil || reason == changed.ReasonNone {
					return err
				}
				observability.DebugContext(uctx, "Processing changed file", logfields.Path(src), logfields.Kind(string(reason)))
				if err := process(uctx, src, dst); err != nil {
					return err
				}
				mu.Lock()
				processed = append(processed, dst)
				mu.Unlock()
				return detector.MarkDone(uctx, dst)
			}()

			if err != nil {
				tc.recorder().IncUnitResult(task, metrics.ResultFailed)
				observability.ErrorContext(uctx, "File failed", logfields.Path(src), logfields.Error(err))
				mu.Lock()
				failed = multierror.Append(failed, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(processed) > 0 {
		tc.recorder().AddFilesWritten(task, len(processed))
		tc.recorder().IncUnitResult(task, metrics.ResultSuccess)
	}
	if err := failed.ErrorOrNil(); err != nil {
		return len(processed), ferrors.WrapError(err, ferrors.CategoryBuild, "files failed").
			WithContext("failed", len(failed.Errors)).Build()
	}
	return len(processed), nil
}

// Images optimizes every changed image into build.img.
func (tc *Toolchain) Images(ctx context.Context) error {
	cfg := tc.Config.Images
	n, err := tc.changedCopy(ctx, Images, tc.Manifest.Paths.SrcImg, tc.Manifest.Paths.BuildImg,
		cfg.Extensions, tc.Optimizer.Options(), cfg.Workers,
		func(_ context.Context, src, dst string) error {
			data, err := os.ReadFile(src)
			if err != nil {
				return ferrors.WrapError(err, ferrors.CategoryFileSystem, "read image").
					WithContext("path", src).Build()
			}
			out, _, err := tc.Optimizer.Optimize(src, data)
			if err != nil {
				return err
			}
			return fsutil.WriteAtomic(dst, out)
		})
	observability.InfoContext(ctx, "Images task complete", logfields.Count(n))
	return err
}

// Fonts copies every changed font file into build.font.
func (tc *Toolchain) Fonts(ctx context.Context) error {
	n, err := tc.changedCopy(ctx, Fonts, tc.Manifest.Paths.SrcFont, tc.Manifest.Paths.BuildFont,
		tc.Config.Fonts.Extensions, nil, 0,
		func(_ context.Context, src, dst string) error {
			return fsutil.CopyFile(src, dst)
		})
	observability.InfoContext(ctx, "Fonts task complete", logfields.Count(n))
	return err
}
