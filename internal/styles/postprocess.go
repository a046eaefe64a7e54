package styles

import (
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

var targetRe = regexp.MustCompile(`^([a-z]+)([0-9][0-9.]*)$`)

// ParseTargets turns browser targets such as "safari12" into esbuild engines.
func ParseTargets(targets []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(targets))
	for _, t := range targets {
		m := targetRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(t)))
		if m == nil {
			return nil, ferrors.ConfigError("invalid browser target").WithContext("target", t).Build()
		}
		name, ok := engineNames[m[1]]
		if !ok {
			return nil, ferrors.ConfigError("unknown browser engine").WithContext("target", t).Build()
		}
		engines = append(engines, api.Engine{Name: name, Version: m[2]})
	}
	return engines, nil
}

// FinishOptions controls prefixing, minification and the source map.
type FinishOptions struct {
	Engines   []api.Engine
	SourceMap bool
	// MapURL is written into the sourceMappingURL comment, relative to the CSS file.
	MapURL string
	// InputMap maps css back to its own sources. When set, the returned map
	// points at those sources instead of css.
	InputMap []byte
}

// Finish adds vendor prefixes and minifies css. Identifier renaming stays
// off, so class names, keyframe names and z-index values are preserved.
// The returned map, if any, maps the minified output back to css, or through
// opts.InputMap to the original sources.
func Finish(css, filename string, opts FinishOptions) (out, sourceMap []byte, err error) {
	topts := api.TransformOptions{
		Loader:            api.LoaderCSS,
		Sourcefile:        filename,
		Engines:           opts.Engines,
		MinifyWhitespace:  true,
		MinifySyntax:      true,
		MinifyIdentifiers: false,
		LogLevel:          api.LogLevelSilent,
	}
	if opts.SourceMap {
		topts.Sourcemap = api.SourceMapExternal
	}

	if opts.SourceMap && len(opts.InputMap) > 0 {
		css += "\n/*# sourceMappingURL=data:application/json;base64," +
			base64.StdEncoding.EncodeToString(opts.InputMap) + " */\n"
	}

	res := api.Transform(css, topts)
	if len(res.Errors) > 0 {
		msgs := api.FormatMessages(res.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage})
		return nil, nil, ferrors.BuildError("css post-processing failed").
			WithContext("path", filename).
			WithContext("messages", strings.Join(msgs, "")).Build()
	}

	code := res.Code
	if opts.SourceMap && opts.MapURL != "" {
		code = append(code, []byte("/*# sourceMappingURL="+opts.MapURL+" */\n")...)
	}
	if opts.SourceMap {
		sourceMap = res.Map
	}
	return code, sourceMap, nil
}
