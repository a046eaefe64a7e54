package tasks

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/events"
	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

func TestStylesModules_OneOutputPerFolder(t *testing.T) {
	tc, root := newProject(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "views/modules/empty"), 0o755))

	require.NoError(t, tc.StylesModules(context.Background()))

	files := listFiles(t, filepath.Join(root, "build/css"))
	assert.ElementsMatch(t, []string{"footer.css", "header.css", "maps/footer.css.map", "maps/header.css.map"}, files)
	for _, f := range files {
		assert.NotEqual(t, "index.css", filepath.Base(f))
	}

	header, err := os.ReadFile(filepath.Join(root, "build/css/header.css"))
	require.NoError(t, err)
	assert.Contains(t, string(header), ".header{z-index:10}")
	assert.Contains(t, string(header), "sourceMappingURL=maps/header.css.map")
}

func TestStylesModules_BrokenModuleIsIsolated(t *testing.T) {
	tc, root := newProject(t)
	write(t, root, "views/modules/broken/index.scss", "@error 'nope';\n")

	err := tc.StylesModules(context.Background())
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryBuild))

	assert.FileExists(t, filepath.Join(root, "build/css/header.css"))
	assert.FileExists(t, filepath.Join(root, "build/css/footer.css"))
	assert.NoFileExists(t, filepath.Join(root, "build/css/broken.css"))
}

func TestStylesModules_MissingModulesDirBuildsNothing(t *testing.T) {
	tc, root := newProject(t)
	require.NoError(t, os.RemoveAll(filepath.Join(root, "views")))

	require.NoError(t, tc.StylesModules(context.Background()))
	assert.Empty(t, listFiles(t, filepath.Join(root, "build/css")))
}

func TestStylesBase_PartialsAreNotEntries(t *testing.T) {
	tc, root := newProject(t)

	units, err := tc.BaseUnits()
	require.NoError(t, err)
	var names []string
	for _, u := range units {
		names = append(names, u.Name)
	}
	assert.Equal(t, []string{"editor", "main"}, names)

	require.NoError(t, tc.StylesBase(context.Background()))
	assert.ElementsMatch(t,
		[]string{"editor.css", "main.css", "maps/editor.css.map", "maps/main.css.map"},
		listFiles(t, filepath.Join(root, "build/css")))

	main, err := os.ReadFile(filepath.Join(root, "build/css/main.css"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(main), "body{margin:0}@media print"))
}

func TestStyles_PublishCSSReloadOnlyWhenOutputChanges(t *testing.T) {
	tc, root := newProject(t)
	bus := events.NewBus()
	defer bus.Close()
	tc.Bus = bus
	written, unsubscribe := events.Subscribe[events.AssetsWritten](bus, 4)
	defer unsubscribe()

	ctx := context.Background()
	require.NoError(t, tc.StylesModules(ctx))
	evt := <-written
	assert.Equal(t, StylesModules, evt.Task)
	assert.Equal(t, events.ReloadCSS, evt.Kind)
	assert.ElementsMatch(t, []string{
		filepath.Join(root, "build/css/footer.css"),
		filepath.Join(root, "build/css/header.css"),
	}, evt.Files)

	require.NoError(t, tc.StylesModules(ctx))
	select {
	case evt := <-written:
		t.Fatalf("unexpected event for unchanged output: %+v", evt)
	default:
	}

	write(t, root, "views/modules/header/index.scss", ".header { z-index: 11; }\n")
	require.NoError(t, tc.StylesModules(ctx))
	evt = <-written
	assert.Equal(t, []string{filepath.Join(root, "build/css/header.css")}, evt.Files)
}
