package tasks

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/scheduler"
	"git.home.luguber.info/inful/assetpipe/internal/styles"
)

func newScheduler(t *testing.T, tc *Toolchain) *scheduler.Scheduler {
	t.Helper()
	g := scheduler.NewGraph()
	for _, task := range tc.Tasks() {
		require.NoError(t, g.Add(task))
	}
	s, err := scheduler.New(g, scheduler.Options{})
	require.NoError(t, err)
	return s
}

func TestBuildPhase_OneOutputPerEntry(t *testing.T) {
	tc, root := newProject(t)
	write(t, root, "build/css/stale.css", "old")
	s := newScheduler(t, tc)

	require.NoError(t, s.Run(context.Background(), BuildTasks...))

	assert.ElementsMatch(t, []string{
		"js/index.js", "js/index.js.map",
		"css/main.css", "css/editor.css", "css/header.css", "css/footer.css",
		"css/maps/main.css.map", "css/maps/editor.css.map", "css/maps/header.css.map", "css/maps/footer.css.map",
		"img/hero.png", "img/icons/arrow.svg",
		"fonts/body.woff", "fonts/body.woff2",
	}, listFiles(t, filepath.Join(root, "build")))
}

func TestBuildPhase_IsIdempotent(t *testing.T) {
	tc, root := newProject(t)
	s := newScheduler(t, tc)
	ctx := context.Background()

	require.NoError(t, s.Run(ctx, BuildTasks...))
	first := snapshot(t, filepath.Join(root, "build"))

	require.NoError(t, s.Run(ctx, BuildTasks...))
	second := snapshot(t, filepath.Join(root, "build"))
	assert.Equal(t, first, second)

	// Without clean, unchanged sources leave every output as it was.
	for _, name := range BuildTasks {
		require.NoError(t, s.RunOnly(ctx, name))
	}
	assert.Equal(t, first, snapshot(t, filepath.Join(root, "build")))
}

// stoppedCompiler fails every compile the way a missing Sass binary does.
type stoppedCompiler struct{}

func (stoppedCompiler) Compile(context.Context, styles.CompileRequest) (styles.CompileResult, error) {
	return styles.CompileResult{}, ferrors.RuntimeError("start Dart Sass").Fatal().Build()
}

func TestBuildPhase_FatalCompilerErrorStaysFatal(t *testing.T) {
	tc, _ := newProject(t)
	tc.Styles.Compiler = stoppedCompiler{}
	s := newScheduler(t, tc)

	err := s.Run(context.Background(), BuildTasks...)
	require.Error(t, err)

	sev, ok := ferrors.Severest(err)
	require.True(t, ok)
	assert.Equal(t, ferrors.SeverityFatal, sev)
}
