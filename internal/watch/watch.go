// Package watch maps filesystem changes under the project root to build
// tasks and dev server reloads.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/fsutil"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
)

// Rule fires when a changed path matches one of its patterns. Patterns are
// slash-separated and relative to the watch root.
type Rule struct {
	Name     string
	Patterns []string
	Fire     func(ctx context.Context, rel string)
}

// Triggerer starts a debounced run of a named task.
type Triggerer interface {
	Trigger(ctx context.Context, name string) error
}

// TaskRules turns configured watch rules into rules that trigger tasks.
func TaskRules(t Triggerer, rules []config.WatchRule) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		task := r.Task
		out = append(out, Rule{
			Name:     task,
			Patterns: r.Patterns,
			Fire: func(ctx context.Context, rel string) {
				if err := t.Trigger(ctx, task); err != nil {
					slog.Warn("Trigger failed", logfields.Task(task), logfields.Path(rel), logfields.Error(err))
				}
			},
		})
	}
	return out
}

// Options configures a Watcher.
type Options struct {
	// Skip names directories that are never watched.
	Skip []string
	// Resync, when positive, calls OnResync on that interval to catch
	// events the platform dropped.
	Resync   time.Duration
	OnResync func(ctx context.Context)
}

// Watcher watches a directory tree recursively.
type Watcher struct {
	root  string
	rules []Rule
	opts  Options
}

// DefaultSkip lists directories that are never watched.
var DefaultSkip = []string{"node_modules", ".git", ".assetpipe"}

// New returns a watcher for root. Skip defaults to DefaultSkip.
func New(root string, rules []Rule, opts Options) *Watcher {
	if opts.Skip == nil {
		opts.Skip = DefaultSkip
	}
	return &Watcher{root: root, rules: rules, opts: opts}
}

// Run watches until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create file watcher").Build()
	}
	defer func() { _ = fw.Close() }()

	if err := w.addRecursive(fw, w.root); err != nil {
		return err
	}

	if w.opts.Resync > 0 && w.opts.OnResync != nil {
		stop, err := w.startResync(ctx)
		if err != nil {
			return err
		}
		defer stop()
	}

	slog.Info("Watching for changes", logfields.Path(w.root), logfields.Count(len(w.rules)))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, fw, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, fw *fsnotify.Watcher, ev fsnotify.Event) {
	if shouldIgnore(ev.Name) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = w.addRecursive(fw, ev.Name)
			return
		}
	}
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return
	}
	rel, ok := w.rel(ev.Name)
	if !ok {
		return
	}
	slog.Debug("File change detected", logfields.Path(rel), slog.String("op", ev.Op.String()))
	w.Dispatch(ctx, rel)
}

// Dispatch fires every rule matching rel and reports how many fired.
func (w *Watcher) Dispatch(ctx context.Context, rel string) int {
	fired := 0
	for _, r := range w.rules {
		if fsutil.MatchAny(r.Patterns, rel) {
			r.Fire(ctx, rel)
			fired++
		}
	}
	return fired
}

func (w *Watcher) rel(path string) (string, bool) {
	r, err := filepath.Rel(w.root, path)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(r), true
}

func (w *Watcher) addRecursive(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return ferrors.WrapError(err, ferrors.CategoryFileSystem, "cannot watch directory").
					WithContext("path", path).Build()
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && slices.Contains(w.opts.Skip, d.Name()) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			slog.Warn("Watch add failed", logfields.Path(path), logfields.Error(err))
		}
		return nil
	})
}

func (w *Watcher) startResync(ctx context.Context) (func(), error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "failed to create resync scheduler").Build()
	}
	_, err = s.NewJob(
		gocron.DurationJob(w.opts.Resync),
		gocron.NewTask(func() { w.opts.OnResync(ctx) }),
		gocron.WithName("watch-resync"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to schedule resync").
			WithContext("interval", w.opts.Resync.String()).Build()
	}
	s.Start()
	slog.Debug("Resync scheduled", slog.Duration("interval", w.opts.Resync))
	return func() { _ = s.Shutdown() }, nil
}

// shouldIgnore reports editor swap files and OS metadata files.
func shouldIgnore(path string) bool {
	base := filepath.Base(path)
	switch {
	case base == ".DS_Store", base == "Thumbs.db":
		return true
	case strings.HasSuffix(base, "~"), strings.HasSuffix(base, ".swp"), strings.HasSuffix(base, ".swx"):
		return true
	case strings.HasPrefix(base, ".#"):
		return true
	case strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"):
		return true
	}
	return false
}
