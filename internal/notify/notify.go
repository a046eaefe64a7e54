// Package notify forwards task completion notices to external listeners.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"git.home.luguber.info/inful/assetpipe/internal/events"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
)

// Status of a finished task run.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Notice describes one finished task run.
type Notice struct {
	Project    string    `json:"project"`
	Version    string    `json:"version"`
	Commit     string    `json:"commit,omitempty"`
	Task       string    `json:"task"`
	RunID      string    `json:"run_id,omitempty"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

// Publisher delivers notices to one destination.
type Publisher interface {
	Publish(ctx context.Context, n Notice) error
	Close() error
}

// Source identifies the project in every notice.
type Source struct {
	Project string
	Version string
	Commit  string
}

// Notifier turns TaskFinished events into notices for its publishers.
type Notifier struct {
	src        Source
	publishers []Publisher
	now        func() time.Time
	wg         sync.WaitGroup
}

func New(src Source, publishers ...Publisher) *Notifier {
	return &Notifier{src: src, publishers: publishers, now: time.Now}
}

// NoticeFor builds the notice for a finished task.
func (n *Notifier) NoticeFor(evt events.TaskFinished) Notice {
	notice := Notice{
		Project:    n.src.Project,
		Version:    n.src.Version,
		Commit:     n.src.Commit,
		Task:       evt.Task,
		RunID:      evt.RunID,
		DurationMS: evt.Duration.Milliseconds(),
		Time:       n.now().UTC(),
	}
	switch {
	case evt.Skipped:
		notice.Status = StatusSkipped
		notice.Message = evt.Task + " task skipped"
	case evt.Err != nil:
		notice.Status = StatusFailed
		notice.Message = evt.Task + " task failed"
		notice.Error = evt.Err.Error()
	default:
		notice.Status = StatusSucceeded
		notice.Message = evt.Task + " task complete"
	}
	return notice
}

// Send publishes a notice to every publisher and aggregates failures.
func (n *Notifier) Send(ctx context.Context, notice Notice) error {
	var result *multierror.Error
	for _, p := range n.publishers {
		if err := p.Publish(ctx, notice); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Follow publishes a notice for every TaskFinished event on bus until the
// bus closes or ctx is canceled. Wait blocks until the loop has exited.
func (n *Notifier) Follow(ctx context.Context, bus *events.Bus) {
	if len(n.publishers) == 0 {
		return
	}
	ch, unsubscribe := events.Subscribe[events.TaskFinished](bus, 32)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				if err := n.Send(pubCtx, n.NoticeFor(evt)); err != nil {
					slog.Warn("Notice not delivered", logfields.Task(evt.Task), logfields.Error(err))
				}
				cancel()
			}
		}
	}()
}

// Wait blocks until Follow's loop has exited.
func (n *Notifier) Wait() { n.wg.Wait() }

// Close closes every publisher.
func (n *Notifier) Close() error {
	var result *multierror.Error
	for _, p := range n.publishers {
		if err := p.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
