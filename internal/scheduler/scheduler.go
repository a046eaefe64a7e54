package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/assetpipe/internal/events"
	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
	"git.home.luguber.info/inful/assetpipe/internal/observability"
)

// State is the last known state of a task.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateSkipped   State = "skipped"
)

// TaskStatus is a snapshot of one task for status reporting.
type TaskStatus struct {
	Name       string    `json:"name"`
	State      State     `json:"state"`
	Runs       int       `json:"runs"`
	LastRunAt  time.Time `json:"last_run_at,omitzero"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// Options configures a Scheduler. Bus and Metrics are optional.
type Options struct {
	Bus      *events.Bus
	Metrics  metrics.Recorder
	Debounce time.Duration
}

// Scheduler executes tasks of a validated Graph.
type Scheduler struct {
	graph    *Graph
	bus      *events.Bus
	recorder metrics.Recorder
	debounce time.Duration

	nodes   map[string]*node
	workers workerGroup
}

type node struct {
	runMu sync.Mutex // serializes runs of the same task

	mu      sync.Mutex
	status  TaskStatus
	timer   *time.Timer
	running bool
	pending bool
}

// New validates the graph and returns a scheduler for it.
func New(g *Graph, opts Options) (*Scheduler, error) {
	if g == nil {
		return nil, ferrors.ValidationError("graph is required").Build()
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	rec := opts.Metrics
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	s := &Scheduler{
		graph:    g,
		bus:      opts.Bus,
		recorder: rec,
		debounce: opts.Debounce,
		nodes:    make(map[string]*node, len(g.names)),
	}
	for _, name := range g.names {
		s.nodes[name] = &node{status: TaskStatus{Name: name, State: StateIdle}}
	}
	return s, nil
}

// Graph returns the graph the scheduler runs.
func (s *Scheduler) Graph() *Graph { return s.graph }

// Run executes the targets and all their transitive dependencies. Each task
// starts once all of its dependencies succeeded; tasks whose dependencies
// failed or were skipped are skipped. The returned error aggregates every
// task failure.
func (s *Scheduler) Run(ctx context.Context, targets ...string) error {
	order, err := s.graph.Order(targets...)
	if err != nil {
		return err
	}

	type outcome struct {
		done chan struct{}
		ok   bool
	}
	outcomes := make(map[string]*outcome, len(order))
	for _, name := range order {
		outcomes[name] = &outcome{done: make(chan struct{})}
	}

	var (
		mu     sync.Mutex
		result *multierror.Error
		g      errgroup.Group
	)
	for _, name := range order {
		task, _ := s.graph.Get(name)
		out := outcomes[name]
		g.Go(func() error {
			defer close(out.done)

			var failedDep string
			for _, dep := range task.Deps {
				d := outcomes[dep]
				select {
				case <-d.done:
				case <-ctx.Done():
					s.skip(ctx, name, "canceled")
					return nil
				}
				if !d.ok && failedDep == "" {
					failedDep = dep
				}
			}
			if failedDep != "" {
				s.skip(ctx, name, failedDep)
				return nil
			}

			if err := s.execute(ctx, task); err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
				return nil
			}
			out.ok = true
			return nil
		})
	}
	_ = g.Wait()
	return result.ErrorOrNil()
}

// RunOnly executes a single task without its dependencies.
func (s *Scheduler) RunOnly(ctx context.Context, name string) error {
	task, ok := s.graph.Get(name)
	if !ok {
		return ferrors.NotFoundError("unknown task").WithContext("task", name).Build()
	}
	return s.execute(ctx, task)
}

func (s *Scheduler) execute(ctx context.Context, task Task) error {
	n := s.nodes[task.Name]
	n.runMu.Lock()
	defer n.runMu.Unlock()

	runID := observability.NewRunID()
	ctx = observability.WithTask(observability.WithRunID(ctx, runID), task.Name)
	start := time.Now()

	n.mu.Lock()
	n.status.State = StateRunning
	n.status.LastRunAt = start
	n.status.Runs++
	n.mu.Unlock()

	s.publish(ctx, events.TaskStarted{RunID: runID, Task: task.Name, StartedAt: start})
	observability.DebugContext(ctx, "Task started")

	err := task.Run(ctx)
	duration := time.Since(start)

	n.mu.Lock()
	n.status.DurationMS = duration.Milliseconds()
	if err != nil {
		n.status.State = StateFailed
		n.status.Error = err.Error()
	} else {
		n.status.State = StateSucceeded
		n.status.Error = ""
	}
	n.mu.Unlock()

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultFailed
		attrs := []slog.Attr{logfields.DurationMS(float64(duration.Milliseconds())), logfields.Error(err)}
		if ce, ok := ferrors.AsClassified(err); ok {
			attrs = append(attrs, ce.LogAttrs()...)
		}
		observability.ErrorContext(ctx, "Task failed", attrs...)
	} else {
		observability.InfoContext(ctx, "Task finished", logfields.DurationMS(float64(duration.Milliseconds())))
	}
	s.recorder.ObserveTaskDuration(task.Name, duration)
	s.recorder.IncTaskResult(task.Name, result)
	s.publish(ctx, events.TaskFinished{RunID: runID, Task: task.Name, Duration: duration, Err: err})

	if err != nil && !ferrors.IsClassified(err) {
		return ferrors.WrapError(err, ferrors.CategoryBuild, "task failed").
			WithContext("task", task.Name).Build()
	}
	return err
}

func (s *Scheduler) skip(ctx context.Context, name, reason string) {
	n := s.nodes[name]
	n.mu.Lock()
	n.status.State = StateSkipped
	n.mu.Unlock()

	ctx = observability.WithTask(ctx, name)
	observability.WarnContext(ctx, "Task skipped", slog.String("reason", reason))
	s.recorder.IncTaskResult(name, metrics.ResultSkipped)
	s.publish(ctx, events.TaskFinished{Task: name, Skipped: true})
}

func (s *Scheduler) publish(ctx context.Context, evt any) {
	if s.bus == nil {
		return
	}
	// Delivery must not depend on the task's own cancellation.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.bus.Publish(pubCtx, evt); err != nil {
		slog.Debug("Event not delivered", logfields.Error(err))
	}
}

// Status returns a snapshot of every task in registration order.
func (s *Scheduler) Status() []TaskStatus {
	out := make([]TaskStatus, 0, len(s.graph.names))
	for _, name := range s.graph.names {
		n := s.nodes[name]
		n.mu.Lock()
		out = append(out, n.status)
		n.mu.Unlock()
	}
	return out
}
