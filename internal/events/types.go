package events

import "time"

// Event is implemented by every event published on the Bus.
type Event interface {
	EventName() string
}

// ReloadKind tells live-reload clients how to apply a change.
type ReloadKind string

const (
	// ReloadCSS swaps matching stylesheets in place without reloading the page.
	ReloadCSS ReloadKind = "css"
	// ReloadFull reloads the whole page.
	ReloadFull ReloadKind = "reload"
)

// TaskStarted is published when the scheduler starts a task run.
type TaskStarted struct {
	RunID     string
	Task      string
	StartedAt time.Time
}

// TaskFinished is published when a task run ends, successfully or not.
type TaskFinished struct {
	RunID    string
	Task     string
	Duration time.Duration
	Err      error
	Skipped  bool
}

// AssetsWritten is published by build tasks after writing output files.
type AssetsWritten struct {
	Task  string
	Kind  ReloadKind
	Files []string
}

func (TaskStarted) EventName() string   { return "task.started" }
func (TaskFinished) EventName() string  { return "task.finished" }
func (AssetsWritten) EventName() string { return "assets.written" }

// Succeeded reports whether the run finished without error and was not skipped.
func (e TaskFinished) Succeeded() bool {
	return e.Err == nil && !e.Skipped
}
