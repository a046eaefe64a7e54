package styles

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// newDartSass returns a running compiler, or skips when no embedded-capable
// Dart Sass is installed (e.g., in CI without Sass).
func newDartSass(t *testing.T) *DartSass {
	t.Helper()
	if _, err := exec.LookPath("sass"); err != nil {
		t.Skip("Dart Sass binary not found in PATH; skipping compiler integration test")
	}
	d := NewDartSass("", nil)
	t.Cleanup(func() { _ = d.Close() })
	if _, err := d.Compile(context.Background(), CompileRequest{Source: "a { b: c; }", Path: "/check.scss"}); err != nil {
		t.Skipf("Dart Sass is not usable in embedded mode: %v", err)
	}
	return d
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
}

func TestDartSass_GlobImportsAndPartials(t *testing.T) {
	d := newDartSass(t)
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	writeTree(t, dir, map[string]string{
		"partials/_colors.scss":   "$brand: #c00;\n",
		"components/_button.scss": ".button { color: $brand; }\n",
		"components/_card.scss":   ".card { border: 1px solid $brand; }\n",
		"components/notes.md":     "not a stylesheet\n",
		"header.scss":             "@import \"partials/colors\";\n@import \"components/*.scss\";\n@media print { .button { display: none; } }\n.footer { z-index: 10; }\n@media print { .card { display: none; } }\n",
		"_ignored-partial.scss":   ".never { color: red; }\n",
	})

	p := &Pipeline{Compiler: d, SourceMap: true, MapsDir: "maps", OutputDir: filepath.Join(dir, "build")}
	out, err := p.Build(context.Background(), Unit{Name: "header", Entry: filepath.Join(dir, "header.scss")})
	require.NoError(t, err)

	css := string(out.CSS)
	assert.Contains(t, css, ".button{color:#c00}")
	assert.Contains(t, css, ".card{border:1px solid #c00}")
	assert.Contains(t, css, "z-index:10")
	assert.NotContains(t, css, ".never")
	assert.Equal(t, 1, strings.Count(css, "@media print"))

	var m sourceMap
	require.NoError(t, json.Unmarshal(out.Map, &m))
	assert.Contains(t, m.Sources, "../../components/_button.scss")
	assert.Contains(t, m.Sources, "../../header.scss")
	assert.NotEmpty(t, m.Mappings)
}

func TestDartSass_SyntaxErrorIsBuildError(t *testing.T) {
	d := newDartSass(t)
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"broken/index.scss": ".a { color: red;\n",
		"fine/index.scss":   ".b { color: blue; }\n",
	})

	p := &Pipeline{Compiler: d}
	_, err := p.Build(context.Background(), Unit{Name: "broken", Entry: filepath.Join(dir, "broken", "index.scss")})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryBuild))

	out, err := p.Build(context.Background(), Unit{Name: "fine", Entry: filepath.Join(dir, "fine", "index.scss")})
	require.NoError(t, err)
	assert.Contains(t, string(out.CSS), ".b{color:#00f}")
}

func TestDartSass_MissingBinaryIsFatal(t *testing.T) {
	d := NewDartSass(filepath.Join(t.TempDir(), "no-sass"), nil)
	defer func() { _ = d.Close() }()

	_, err := d.Compile(context.Background(), CompileRequest{Source: "a { b: c; }", Path: "/a.scss"})
	require.Error(t, err)
	assert.True(t, ferrors.HasSeverity(err, ferrors.SeverityFatal))
}
