package fsutil

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// WriteIfChanged writes data to path unless the file already holds exactly
// these bytes. It reports whether the file was written. Writes go through a
// temporary file and a rename so readers never see partial output.
func WriteIfChanged(path string, data []byte) (bool, error) {
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	if err := WriteAtomic(path, data); err != nil {
		return false, err
	}
	return true, nil
}

// WriteAtomic writes data to path via a temporary sibling and a rename.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create output directory").
			WithContext("path", dir).Build()
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create temporary file").
			WithContext("path", path).Build()
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "write output").
			WithContext("path", path).Build()
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "close output").
			WithContext("path", path).Build()
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "chmod output").
			WithContext("path", path).Build()
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "rename output").
			WithContext("path", path).Build()
	}
	return nil
}

// CopyFile copies src to dst atomically.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "open source").
			WithContext("path", src).Build()
	}
	defer in.Close()
	data, err := io.ReadAll(in)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "read source").
			WithContext("path", src).Build()
	}
	return WriteAtomic(dst, data)
}

// RemoveContents deletes everything inside dir but keeps dir itself. It
// returns the number of entries removed; a missing dir removes nothing.
func RemoveContents(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, ferrors.WrapError(err, ferrors.CategoryFileSystem, "read directory").
			WithContext("path", dir).Build()
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return 0, ferrors.WrapError(err, ferrors.CategoryFileSystem, "remove build output").
				WithContext("path", filepath.Join(dir, e.Name())).Build()
		}
	}
	return len(entries), nil
}
