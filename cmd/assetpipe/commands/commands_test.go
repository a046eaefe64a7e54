package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

const manifest = `{
  "name": "theme",
  "version": "2.0.0",
  "paths": {
    "src":   {"js": "src/js/", "css": "src/scss/", "img": "src/img/", "font": "src/fonts/"},
    "build": {"js": "build/js/", "css": "build/css/", "img": "build/img/", "font": "build/fonts/"},
    "public": "/build/js/"
  }
}`

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
}

// newTheme lays out a theme without stylesheets, so no Sass compiler is
// needed, and returns the config path.
func newTheme(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	write(t, root, "package.json", manifest)
	write(t, root, "src/js/index.js", "console.log(VERSION);\n")
	write(t, root, "src/fonts/body.woff2", "woff2")
	write(t, root, "build/css/stale.css", "old")
	return filepath.Join(root, "assetpipe.yaml")
}

func TestParse_DefaultCommandAndFlags(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli, Vars(), kong.Vars{"version": "test"})
	require.NoError(t, err)

	ctx, err := parser.Parse([]string{})
	require.NoError(t, err)
	assert.Equal(t, "dev", ctx.Command())
	assert.True(t, filepath.IsAbs(cli.Config))
	assert.Equal(t, "assetpipe.yaml", filepath.Base(cli.Config))

	ctx, err = parser.Parse([]string{"--log-format", "json", "run", "--deps", "fonts", "images"})
	require.NoError(t, err)
	assert.Contains(t, ctx.Command(), "run")
	assert.Equal(t, []string{"fonts", "images"}, cli.Run.Tasks)
	assert.True(t, cli.Run.Deps)
	assert.Equal(t, "json", cli.LogFormat)

	_, err = parser.Parse([]string{"--log-format", "xml"})
	require.Error(t, err)
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assetpipe.yaml")
	var out bytes.Buffer
	g := &Global{Out: &out}

	require.NoError(t, (&InitCmd{}).Run(g, &CLI{Config: path}))
	assert.FileExists(t, path)
	assert.Contains(t, out.String(), "Initialized successfully")

	err := (&InitCmd{}).Run(g, &CLI{Config: path})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
	require.NoError(t, (&InitCmd{Force: true}).Run(g, &CLI{Config: path}))
}

func TestTasks_ListsGraph(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, (&TasksCmd{}).Run(&Global{Out: &out}, &CLI{Config: newTheme(t)}))

	for _, name := range []string{"clean", "scripts", "styles:base", "styles:modules", "images", "fonts", "browser-sync"} {
		assert.Contains(t, out.String(), name)
	}
	assert.Contains(t, out.String(), "after: clean")
}

func TestRun_SingleTaskSkipsClean(t *testing.T) {
	cfgPath := newTheme(t)
	root := filepath.Dir(cfgPath)

	require.NoError(t, (&RunCmd{Tasks: []string{"fonts"}}).run(t.Context(), cfgPath))
	assert.FileExists(t, filepath.Join(root, "build/fonts/body.woff2"))
	assert.FileExists(t, filepath.Join(root, "build/css/stale.css"))
}

func TestRun_WithDepsCleansFirst(t *testing.T) {
	cfgPath := newTheme(t)
	root := filepath.Dir(cfgPath)

	require.NoError(t, (&RunCmd{Tasks: []string{"fonts"}, Deps: true}).run(t.Context(), cfgPath))
	assert.FileExists(t, filepath.Join(root, "build/fonts/body.woff2"))
	assert.NoFileExists(t, filepath.Join(root, "build/css/stale.css"))
}

func TestRun_UnknownTask(t *testing.T) {
	err := (&RunCmd{Tasks: []string{"sprites"}}).run(t.Context(), newTheme(t))
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
}

func TestDev_OnceBuildsEverything(t *testing.T) {
	cfgPath := newTheme(t)
	root := filepath.Dir(cfgPath)

	require.NoError(t, (&DevCmd{Once: true}).run(context.Background(), cfgPath))
	assert.FileExists(t, filepath.Join(root, "build/js/index.js"))
	assert.FileExists(t, filepath.Join(root, "build/fonts/body.woff2"))
	assert.NoFileExists(t, filepath.Join(root, "build/css/stale.css"))
	assert.FileExists(t, filepath.Join(root, ".assetpipe/cache.db"))
}

func TestOpenProject_MissingManifest(t *testing.T) {
	_, err := openProject(filepath.Join(t.TempDir(), "assetpipe.yaml"))
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}
