package tasks

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/changed"
	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/imageopt"
	"git.home.luguber.info/inful/assetpipe/internal/styles"
)

const testManifest = `{
  "name": "theme",
  "version": "1.4.2",
  "paths": {
    "src":   {"base": "src/", "js": "src/js/", "css": "src/scss/", "img": "src/img/", "font": "src/fonts/"},
    "build": {"base": "build/", "js": "build/js/", "css": "build/css/", "img": "build/img/", "font": "build/fonts/"},
    "public": "/wp-content/themes/theme/build/js/"
  }
}`

// passthroughCompiler treats SCSS sources as plain CSS and fails on @error.
type passthroughCompiler struct{}

func (passthroughCompiler) Compile(_ context.Context, req styles.CompileRequest) (styles.CompileResult, error) {
	if strings.Contains(req.Source, "@error") {
		return styles.CompileResult{}, errors.New("Error: " + req.Path)
	}
	return styles.CompileResult{CSS: req.Source}, nil
}

func write(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := range 32 {
		for x := range 32 {
			img.Set(x, y, color.RGBA{R: 10, G: 120, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	require.NoError(t, enc.Encode(&buf, img))
	return buf.Bytes()
}

// newProject lays out a theme and returns a toolchain over it.
func newProject(t *testing.T) (*Toolchain, string) {
	t.Helper()
	root := t.TempDir()
	write(t, root, "package.json", testManifest)

	write(t, root, "src/js/index.js", "import data from './data.json';\nimport { greet } from './util.js';\nconsole.log(greet(data.name), VERSION, COMMIT);\n")
	write(t, root, "src/js/util.js", "export function greet(name) { return 'hello ' + name; }\n")
	write(t, root, "src/js/data.json", `{"name": "theme"}`)

	write(t, root, "src/scss/main.scss", "body { margin: 0; }\n@media print { body { color: black; } }\n")
	write(t, root, "src/scss/editor.scss", ".editor { padding: 1px; }\n")
	write(t, root, "src/scss/_vars.scss", "$x: 1;\n")

	write(t, root, "views/modules/header/index.scss", ".header { z-index: 10; }\n")
	write(t, root, "views/modules/footer/index.scss", ".footer { color: #ff0000; }\n")

	require.NoError(t, os.MkdirAll(filepath.Join(root, "src/img/icons"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src/img/hero.png"), pngBytes(t), 0o600))
	write(t, root, "src/img/icons/arrow.svg", "<svg xmlns=\"http://www.w3.org/2000/svg\">\n  <!-- c -->\n  <path d=\"M0 0L10 10\"/>\n</svg>\n")

	write(t, root, "src/fonts/body.woff2", "woff2")
	write(t, root, "src/fonts/body.woff", "woff")
	write(t, root, "src/fonts/notes.txt", "ignored")

	cfg, err := config.Default(root)
	require.NoError(t, err)
	m, err := config.LoadManifest(cfg.ManifestPath())
	require.NoError(t, err)

	opts := imageopt.Options{Level: 7, Progressive: true, Interlaced: true}
	return &Toolchain{
		Config:    cfg,
		Manifest:  m,
		Styles:    &styles.Pipeline{Compiler: passthroughCompiler{}, SourceMap: true, MapsDir: "maps"},
		Optimizer: imageopt.New(opts),
		Cache:     changed.NewMemoryStore(),
		Commit:    "abc1234",
	}, root
}

// listFiles returns the slash-separated files under dir, relative to dir.
func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(dir, path)
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return out
}

func snapshot(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := map[string]string{}
	for _, rel := range listFiles(t, dir) {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		require.NoError(t, err)
		out[rel] = string(data)
	}
	return out
}
