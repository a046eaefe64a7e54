package tasks

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/fsutil"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/observability"
)

// Clean deletes the contents of the build directories and OS metadata
// files under the project root. Running it twice removes nothing the
// second time.
func (tc *Toolchain) Clean(ctx context.Context) error {
	removed := 0
	for _, dir := range tc.Manifest.Paths.BuildDirs() {
		if err := tc.checkBuildDir(dir); err != nil {
			return err
		}
		n, err := fsutil.RemoveContents(dir)
		if err != nil {
			return err
		}
		removed += n
	}

	err := fsutil.WalkMatches(tc.Config.Root, tc.Config.Clean.Patterns, tc.Config.Clean.Skip, func(path string) error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "remove metadata files").
			WithContext("path", tc.Config.Root).Build()
	}

	observability.InfoContext(ctx, "Clean task complete", logfields.Count(removed))
	return nil
}

// checkBuildDir refuses to empty the project root or anything above it.
func (tc *Toolchain) checkBuildDir(dir string) error {
	root := filepath.Clean(tc.Config.Root)
	dir = filepath.Clean(dir)
	rel, err := filepath.Rel(dir, root)
	if err != nil {
		return nil
	}
	if rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)) {
		return ferrors.ValidationError("refusing to clean a build directory that contains the project root").
			WithContext("path", dir).Fatal().Build()
	}
	return nil
}
