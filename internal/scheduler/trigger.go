package scheduler

import (
	"context"
	"log/slog"
	"time"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
)

// Trigger requests a run of a single task, without its dependencies. Calls
// within the debounce window collapse into one run; a trigger that fires
// while the task is running queues exactly one follow-up run. Running
// tasks are never canceled.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	n, ok := s.nodes[name]
	if !ok {
		return ferrors.NotFoundError("unknown task").WithContext("task", name).Build()
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(s.debounce, func() { s.fire(ctx, name) })
	return nil
}

func (s *Scheduler) fire(ctx context.Context, name string) {
	n := s.nodes[name]
	n.mu.Lock()
	n.timer = nil
	if n.running {
		n.pending = true
		n.mu.Unlock()
		return
	}
	n.running = true
	n.mu.Unlock()

	started := s.workers.Go(func() {
		task, _ := s.graph.Get(name)
		for {
			if ctx.Err() == nil {
				// Failures are logged by execute; the next save is the retry.
				_ = s.execute(ctx, task)
			}
			n.mu.Lock()
			if !n.pending || ctx.Err() != nil {
				n.running = false
				n.pending = false
				n.mu.Unlock()
				return
			}
			n.pending = false
			n.mu.Unlock()
		}
	})
	if !started {
		n.mu.Lock()
		n.running = false
		n.mu.Unlock()
		slog.Debug("Trigger ignored during shutdown", logfields.Task(name))
	}
}

// Close stops pending debounce timers and waits for triggered runs to
// finish, bounded by ctx.
func (s *Scheduler) Close(ctx context.Context) error {
	for _, n := range s.nodes {
		n.mu.Lock()
		if n.timer != nil {
			n.timer.Stop()
			n.timer = nil
		}
		n.mu.Unlock()
	}
	return s.workers.StopAndWait(ctx)
}
