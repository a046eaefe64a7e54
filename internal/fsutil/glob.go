package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Glob returns the regular files under root matching pattern, as OS paths
// joined onto root and sorted. A missing root yields no matches.
func Glob(root, pattern string) ([]string, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}
	matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly(), doublestar.WithNoFollow())
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryValidation, "invalid glob pattern").
			WithContext("pattern", pattern).Build()
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, filepath.Join(root, filepath.FromSlash(m)))
	}
	slices.Sort(out)
	return out, nil
}

// ExtPattern builds a recursive pattern for the given extensions,
// e.g. "**/*.{woff,woff2}".
func ExtPattern(exts []string) string {
	if len(exts) == 1 {
		return "**/*." + exts[0]
	}
	return "**/*.{" + strings.Join(exts, ",") + "}"
}

// MatchAny reports whether the slash-separated rel path matches any pattern.
func MatchAny(patterns []string, rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// WalkMatches calls fn for every file under root whose path relative to
// root matches one of patterns. Directories named in skip are not entered.
func WalkMatches(root string, patterns, skip []string, fn func(path string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if path != root && slices.Contains(skip, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if MatchAny(patterns, rel) {
			return fn(path)
		}
		return nil
	})
}
