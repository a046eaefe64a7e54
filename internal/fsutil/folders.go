package fsutil

import (
	"os"
	"path/filepath"
	"sort"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// ListFolders returns the names of the immediate child directories of dir,
// sorted. Files are excluded. An empty directory yields an empty slice.
// A missing dir is reported as a not_found error wrapping fs.ErrNotExist.
func ListFolders(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.WrapError(err, ferrors.CategoryNotFound, "modules directory not found").
				WithContext("path", dir).Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "read directory").
			WithContext("path", dir).Build()
	}

	folders := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			folders = append(folders, e.Name())
			continue
		}
		// Symlinked module folders count as folders.
		if e.Type()&os.ModeSymlink != 0 {
			if info, err := os.Stat(filepath.Join(dir, e.Name())); err == nil && info.IsDir() {
				folders = append(folders, e.Name())
			}
		}
	}
	sort.Strings(folders)
	return folders, nil
}
