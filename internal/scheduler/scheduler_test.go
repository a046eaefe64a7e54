package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/events"
	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, name)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func TestRun_CleanFinishesBeforeBuilds(t *testing.T) {
	rec := &recorder{}
	var cleanDone atomic.Bool
	g := mustGraph(t, Task{Name: "clean", Run: func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		cleanDone.Store(true)
		rec.add("clean")
		return nil
	}})
	for _, name := range []string{"scripts", "styles:base", "images"} {
		require.NoError(t, g.Add(Task{Name: name, Deps: []string{"clean"}, Run: func(context.Context) error {
			if !cleanDone.Load() {
				return errors.New("started before clean finished")
			}
			rec.add(name)
			return nil
		}}))
	}
	require.NoError(t, g.Add(Task{Name: "default", Deps: []string{"scripts", "styles:base", "images"}}))

	s, err := New(g, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background(), "default"))

	order := rec.list()
	require.Len(t, order, 4)
	assert.Equal(t, "clean", order[0])
	assert.ElementsMatch(t, []string{"scripts", "styles:base", "images"}, order[1:])
}

func TestRun_IndependentTasksRunConcurrently(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	release := make(chan struct{})
	block := func(context.Context) error {
		started.Done()
		<-release
		return nil
	}
	g := mustGraph(t, Task{Name: "a", Run: block}, Task{Name: "b", Run: block}, Task{Name: "all", Deps: []string{"a", "b"}})
	s, err := New(g, Options{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), "all") }()

	waited := make(chan struct{})
	go func() { started.Wait(); close(waited) }()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("independent tasks did not run concurrently")
	}
	close(release)
	require.NoError(t, <-done)
}

func TestRun_FailedDependencySkipsDependents(t *testing.T) {
	var ranDependent, ranSibling atomic.Bool
	g := mustGraph(t,
		Task{Name: "clean", Run: func(context.Context) error { return errors.New("permission denied") }},
		Task{Name: "scripts", Deps: []string{"clean"}, Run: func(context.Context) error { ranDependent.Store(true); return nil }},
		Task{Name: "other", Run: func(context.Context) error { ranSibling.Store(true); return nil }},
		Task{Name: "default", Deps: []string{"scripts", "other"}},
	)
	bus := events.NewBus()
	defer bus.Close()
	finished, unsubscribe := events.Subscribe[events.TaskFinished](bus, 16)
	defer unsubscribe()

	s, err := New(g, Options{Bus: bus})
	require.NoError(t, err)

	err = s.Run(context.Background(), "default")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryBuild))
	assert.False(t, ranDependent.Load())
	assert.True(t, ranSibling.Load())

	states := map[string]State{}
	for _, st := range s.Status() {
		states[st.Name] = st.State
	}
	assert.Equal(t, StateFailed, states["clean"])
	assert.Equal(t, StateSkipped, states["scripts"])
	assert.Equal(t, StateSucceeded, states["other"])
	assert.Equal(t, StateSkipped, states["default"])

	skipped := 0
	for range 4 {
		evt := <-finished
		if evt.Skipped {
			skipped++
		}
	}
	assert.Equal(t, 2, skipped)
}

func TestRunOnly_IgnoresDependencies(t *testing.T) {
	var cleanRan atomic.Bool
	g := mustGraph(t,
		Task{Name: "clean", Run: func(context.Context) error { cleanRan.Store(true); return nil }},
		Task{Name: "fonts", Deps: []string{"clean"}},
	)
	s, err := New(g, Options{})
	require.NoError(t, err)
	require.NoError(t, s.RunOnly(context.Background(), "fonts"))
	assert.False(t, cleanRan.Load())

	err = s.RunOnly(context.Background(), "nope")
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
}

func TestNew_RejectsInvalidGraph(t *testing.T) {
	_, err := New(mustGraph(t, Task{Name: "a", Deps: []string{"a"}}), Options{})
	require.Error(t, err)
	_, err = New(nil, Options{})
	require.Error(t, err)
}

func TestTrigger_DebouncesBursts(t *testing.T) {
	var runs atomic.Int32
	g := mustGraph(t, Task{Name: "styles:base", Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}})
	s, err := New(g, Options{Debounce: 30 * time.Millisecond})
	require.NoError(t, err)

	ctx := context.Background()
	for range 10 {
		require.NoError(t, s.Trigger(ctx, "styles:base"))
		time.Sleep(2 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
	require.NoError(t, s.Close(ctx))
}

func TestTrigger_QueuesExactlyOneFollowUp(t *testing.T) {
	var runs atomic.Int32
	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	g := mustGraph(t, Task{Name: "scripts", Run: func(context.Context) error {
		runs.Add(1)
		entered <- struct{}{}
		<-release
		return nil
	}})
	s, err := New(g, Options{})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Trigger(ctx, "scripts"))
	<-entered

	// Three triggers while running collapse into one follow-up.
	for range 3 {
		require.NoError(t, s.Trigger(ctx, "scripts"))
		time.Sleep(10 * time.Millisecond)
	}
	release <- struct{}{}
	<-entered
	release <- struct{}{}

	require.NoError(t, s.Close(ctx))
	assert.Equal(t, int32(2), runs.Load())
}

func TestTrigger_UnknownTask(t *testing.T) {
	s, err := New(NewGraph(), Options{})
	require.NoError(t, err)
	err = s.Trigger(context.Background(), "nope")
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
}
