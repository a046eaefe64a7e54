package styles

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/bep/godartsass/v2"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// CompileRequest is one preprocessor compilation.
type CompileRequest struct {
	Source       string
	Path         string // absolute path of the entry, used for relative imports and messages
	IncludePaths []string
	SourceMap    bool
}

// CompileResult is the compiled CSS and, when requested, its source map.
type CompileResult struct {
	CSS       string
	SourceMap string
}

// Compiler compiles preprocessor sources to CSS.
type Compiler interface {
	Compile(ctx context.Context, req CompileRequest) (CompileResult, error)
}

// DartSass compiles SCSS with an embedded Dart Sass process. The process is
// started lazily and shared by all units; Close stops it.
type DartSass struct {
	binary string
	logger *slog.Logger

	mu         sync.Mutex
	transpiler *godartsass.Transpiler
}

// NewDartSass creates a compiler using binary, or "sass" from PATH when empty.
func NewDartSass(binary string, logger *slog.Logger) *DartSass {
	if logger == nil {
		logger = slog.Default()
	}
	return &DartSass{binary: binary, logger: logger}
}

func (d *DartSass) start() (*godartsass.Transpiler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transpiler != nil {
		return d.transpiler, nil
	}
	t, err := godartsass.Start(godartsass.Options{
		DartSassEmbeddedFilename: d.binary,
		LogEventHandler: func(e godartsass.LogEvent) {
			d.logger.Warn("Sass: "+strings.TrimSpace(e.Message), slog.Int("type", int(e.Type)))
		},
	})
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "start Dart Sass").
			WithContext("binary", d.binary).Fatal().Build()
	}
	d.transpiler = t
	return t, nil
}

func (d *DartSass) Compile(ctx context.Context, req CompileRequest) (CompileResult, error) {
	if err := ctx.Err(); err != nil {
		return CompileResult{}, err
	}
	t, err := d.start()
	if err != nil {
		return CompileResult{}, err
	}
	res, err := t.Execute(godartsass.Args{
		Source:                  req.Source,
		URL:                     "file://" + req.Path,
		IncludePaths:            req.IncludePaths,
		OutputStyle:             godartsass.OutputStyleExpanded,
		SourceSyntax:            godartsass.SourceSyntaxSCSS,
		EnableSourceMap:         req.SourceMap,
		SourceMapIncludeSources: req.SourceMap,
	})
	if errors.Is(err, godartsass.ErrShutdown) {
		// The process died; the next compile starts a new one.
		d.reset(t)
		return CompileResult{}, ferrors.WrapError(err, ferrors.CategoryRuntime, "Dart Sass stopped").
			WithContext("path", req.Path).Build()
	}
	if err != nil {
		return CompileResult{}, ferrors.WrapError(err, ferrors.CategoryBuild, "sass compilation failed").
			WithContext("path", req.Path).UserAction().Build()
	}
	return CompileResult{CSS: res.CSS, SourceMap: res.SourceMap}, nil
}

func (d *DartSass) reset(t *godartsass.Transpiler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transpiler == t {
		d.transpiler = nil
		_ = t.Close()
	}
}

// Close stops the Dart Sass process.
func (d *DartSass) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.transpiler == nil {
		return nil
	}
	err := d.transpiler.Close()
	d.transpiler = nil
	return err
}
