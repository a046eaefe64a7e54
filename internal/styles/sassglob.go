package styles

import (
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

var importRe = regexp.MustCompile(`(?m)^([ \t]*)@import\s+(["'])([^"']+)(["'])\s*;`)

// ExpandImportGlobs rewrites `@import "dir/**/*.scss";` into one import per
// matching file, sorted, relative to baseDir. Imports without glob
// characters are left alone. A glob matching nothing is removed.
func ExpandImportGlobs(source, baseDir string) (string, error) {
	var firstErr error
	out := importRe.ReplaceAllStringFunc(source, func(stmt string) string {
		m := importRe.FindStringSubmatch(stmt)
		indent, quote, pattern := m[1], m[2], m[3]
		if !strings.ContainsAny(pattern, "*?[{") {
			return stmt
		}
		matches, err := doublestar.Glob(os.DirFS(baseDir), pattern, doublestar.WithFilesOnly())
		if err != nil {
			if firstErr == nil {
				firstErr = ferrors.WrapError(err, ferrors.CategoryBuild, "invalid import glob").
					WithContext("pattern", pattern).UserAction().Build()
			}
			return stmt
		}
		sort.Strings(matches)
		var b strings.Builder
		for i, match := range matches {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(indent + "@import " + quote + match + quote + ";")
		}
		return b.String()
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}
