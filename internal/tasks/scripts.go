package tasks

import (
	"context"
	"encoding/json"
	"maps"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"git.home.luguber.info/inful/assetpipe/internal/events"
	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/fsutil"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
	"git.home.luguber.info/inful/assetpipe/internal/observability"
)

var jsTargets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// scriptDefines returns the constants injected into the bundle. Values are
// JavaScript expressions, so strings are JSON encoded.
func (tc *Toolchain) scriptDefines() map[string]string {
	quote := func(s string) string {
		b, _ := json.Marshal(s)
		return string(b)
	}
	defines := map[string]string{
		"VERSION": quote(tc.Manifest.Version),
		"COMMIT":  quote(tc.Commit),
	}
	maps.Copy(defines, tc.Config.Scripts.Define)
	return defines
}

func (tc *Toolchain) scriptOptions() (api.BuildOptions, error) {
	cfg := tc.Config.Scripts
	target, ok := jsTargets[strings.ToLower(cfg.Target)]
	if !ok {
		return api.BuildOptions{}, ferrors.ConfigError("unknown script target").
			WithContext("target", cfg.Target).Build()
	}
	sourcemap := api.SourceMapNone
	if cfg.Sourcemap != nil && *cfg.Sourcemap {
		sourcemap = api.SourceMapLinked
	}
	return api.BuildOptions{
		EntryPoints:      []string{filepath.Join(tc.Manifest.Paths.SrcJS, cfg.Entry)},
		Outdir:           tc.Manifest.Paths.BuildJS,
		EntryNames:       "[name]",
		AbsWorkingDir:    tc.Config.Root,
		Bundle:           true,
		Write:            false,
		Platform:         api.PlatformBrowser,
		Format:           api.FormatIIFE,
		Target:           target,
		Sourcemap:        sourcemap,
		MinifySyntax:     true,
		MinifyWhitespace: cfg.Minify,
		Define:           tc.scriptDefines(),
		PublicPath:       tc.Manifest.Paths.Public,
		Loader: map[string]api.Loader{
			".js":   api.LoaderJS,
			".json": api.LoaderJSON,
		},
		LogLevel: api.LogLevelSilent,
	}, nil
}

// Scripts bundles the single script entry into build.js with a linked
// source map.
func (tc *Toolchain) Scripts(ctx context.Context) error {
	opts, err := tc.scriptOptions()
	if err != nil {
		return err
	}

	res := api.Build(opts)
	for _, msg := range api.FormatMessages(res.Warnings, api.FormatMessagesOptions{Kind: api.WarningMessage}) {
		observability.WarnContext(ctx, strings.TrimSpace(msg))
	}
	if len(res.Errors) > 0 {
		for _, msg := range api.FormatMessages(res.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage}) {
			observability.ErrorContext(ctx, strings.TrimSpace(msg))
		}
		tc.recorder().IncUnitResult(Scripts, metrics.ResultFailed)
		return ferrors.BuildError("script bundling failed").
			WithContext("entry", opts.EntryPoints[0]).
			WithContext("errors", len(res.Errors)).Build()
	}

	var written []string
	for _, f := range res.OutputFiles {
		ok, err := fsutil.WriteIfChanged(f.Path, f.Contents)
		if err != nil {
			return err
		}
		if ok {
			written = append(written, f.Path)
			observability.DebugContext(ctx, "Wrote script output", logfields.Output(f.Path))
		}
	}
	tc.recorder().IncUnitResult(Scripts, metrics.ResultSuccess)
	tc.announce(ctx, Scripts, events.ReloadFull, written)
	observability.InfoContext(ctx, "Scripts task complete", logfields.Count(len(written)))
	return nil
}
