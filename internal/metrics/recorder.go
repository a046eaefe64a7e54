package metrics

import "time"

// ResultLabel enumerates task and unit result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
	ResultSkipped ResultLabel = "skipped"
)

// Recorder defines observability hooks for task runs, build units and the
// live-reload hub.
type Recorder interface {
	ObserveTaskDuration(task string, d time.Duration)
	IncTaskResult(task string, result ResultLabel)
	IncUnitResult(task string, result ResultLabel)
	AddFilesWritten(task string, n int)
	SetLiveReloadClients(n int)
	IncLiveReloadBroadcast(kind string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveTaskDuration(string, time.Duration) {}
func (NoopRecorder) IncTaskResult(string, ResultLabel)         {}
func (NoopRecorder) IncUnitResult(string, ResultLabel)         {}
func (NoopRecorder) AddFilesWritten(string, int)               {}
func (NoopRecorder) SetLiveReloadClients(int)                  {}
func (NoopRecorder) IncLiveReloadBroadcast(string)             {}
