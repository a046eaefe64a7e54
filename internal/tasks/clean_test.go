package tasks

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

func TestClean_RemovesOutputAndMetadata(t *testing.T) {
	tc, root := newProject(t)
	write(t, root, "build/css/old.css", "a{}")
	write(t, root, "build/js/index.js", "x")
	write(t, root, ".DS_Store", "")
	write(t, root, "src/img/.DS_Store", "")
	write(t, root, "src/Thumbs.db", "")
	write(t, root, "node_modules/pkg/.DS_Store", "")

	require.NoError(t, tc.Clean(context.Background()))

	assert.DirExists(t, filepath.Join(root, "build"))
	assert.Empty(t, listFiles(t, filepath.Join(root, "build")))
	assert.NoFileExists(t, filepath.Join(root, ".DS_Store"))
	assert.NoFileExists(t, filepath.Join(root, "src/img/.DS_Store"))
	assert.NoFileExists(t, filepath.Join(root, "src/Thumbs.db"))
	assert.FileExists(t, filepath.Join(root, "node_modules/pkg/.DS_Store"))
	assert.FileExists(t, filepath.Join(root, "src/scss/main.scss"))

	// A second run has nothing left to remove and still succeeds.
	require.NoError(t, tc.Clean(context.Background()))
}

func TestClean_WithoutBuildDirectory(t *testing.T) {
	tc, _ := newProject(t)
	require.NoError(t, tc.Clean(context.Background()))
}

func TestClean_RefusesProjectRoot(t *testing.T) {
	tc, root := newProject(t)
	tc.Manifest.Paths.BuildBase = root

	err := tc.Clean(context.Background())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
	assert.FileExists(t, filepath.Join(root, "package.json"))

	tc.Manifest.Paths.BuildBase = filepath.Dir(root)
	require.Error(t, tc.Clean(context.Background()))
}
