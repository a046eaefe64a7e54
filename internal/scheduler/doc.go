// Package scheduler runs named tasks as an explicit dependency graph.
//
// A task starts only after every predecessor succeeded; independent tasks
// run concurrently; a failed predecessor skips its dependents. In watch
// mode Trigger coalesces bursts per task: a quiet window debounces events
// and a trigger arriving while the task runs queues exactly one follow-up.
package scheduler
