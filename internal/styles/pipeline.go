package styles

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Unit is one stylesheet compilation: an entry file and the output name
// (without extension) it is written under.
type Unit struct {
	Name  string
	Entry string
}

// Output is the result of building one unit.
type Output struct {
	CSS []byte
	Map []byte // nil when source maps are disabled
}

// Pipeline builds units. It is safe for concurrent use when its Compiler is.
type Pipeline struct {
	Compiler     Compiler
	IncludePaths []string
	Engines      []api.Engine
	SourceMap    bool
	MapsDir      string // relative to the CSS output directory

	// OutputDir is the CSS output directory. When set, map sources are
	// written relative to the maps directory inside it.
	OutputDir string
}

// Filename returns the CSS file name a unit is written to.
func (u Unit) Filename() string { return u.Name + ".css" }

// MapFilename returns the map path relative to the CSS output directory.
func (p *Pipeline) MapFilename(u Unit) string {
	return filepath.Join(p.MapsDir, u.Filename()+".map")
}

// Build runs the full unit pipeline.
func (p *Pipeline) Build(ctx context.Context, u Unit) (Output, error) {
	src, err := os.ReadFile(u.Entry)
	if err != nil {
		return Output{}, ferrors.WrapError(err, ferrors.CategoryBuild, "read stylesheet entry").
			WithContext("path", u.Entry).UserAction().Build()
	}

	dir := filepath.Dir(u.Entry)
	expanded, err := ExpandImportGlobs(string(src), dir)
	if err != nil {
		return Output{}, err
	}

	compiled, err := p.Compiler.Compile(ctx, CompileRequest{
		Source:       expanded,
		Path:         u.Entry,
		IncludePaths: append([]string{dir}, p.IncludePaths...),
		SourceMap:    p.SourceMap,
	})
	if err != nil {
		return Output{}, err
	}

	packed, spans := packMediaQueries(compiled.CSS)

	var (
		inputMap []byte
		sources  []string
	)
	if p.SourceMap && compiled.SourceMap != "" {
		inputMap, sources, err = chainSourceMap(compiled.SourceMap, compiled.CSS, packed, spans)
		if err != nil {
			return Output{}, err
		}
	}

	css, sourceMap, err := Finish(packed, u.Filename(), FinishOptions{
		Engines:   p.Engines,
		SourceMap: p.SourceMap,
		MapURL:    path.Join(filepath.ToSlash(p.MapsDir), u.Filename()+".map"),
		InputMap:  inputMap,
	})
	if err != nil {
		return Output{}, err
	}
	if sourceMap != nil && sources != nil {
		if p.OutputDir != "" {
			sources = relativeSources(sources, filepath.Join(p.OutputDir, p.MapsDir))
		}
		if sourceMap, err = withSources(sourceMap, sources); err != nil {
			return Output{}, err
		}
	}
	return Output{CSS: css, Map: sourceMap}, nil
}
