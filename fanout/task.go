package fanout

import (
	"context"
	"strconv"
	"time"
)

// Task is one independent unit of work in a batch.
type Task struct {
	// ID names the task in results, errors and logs. Empty means "task-<index>".
	ID string

	// Fn does the work. It should return promptly once ctx is done.
	Fn func(ctx context.Context) (any, error)
}

// TaskResult is the terminal state of one task.
type TaskResult struct {
	TaskID string
	Value  any

	// Err is nil on success, a *types.ComputeError when Fn failed, a
	// *types.TimeoutError or a *types.CancelledError when the task was cut short.
	Err error

	StartedAt   time.Time // zero if the task never started
	CompletedAt time.Time
	Duration    time.Duration
}

// OK reports whether the task succeeded.
func (r TaskResult) OK() bool { return r.Err == nil }

// Options tune a single RunAll call.
type Options struct {
	// MaxConcurrency bounds how many tasks run at once. <= 0 means one
	// goroutine per task.
	MaxConcurrency int

	// FailFast cancels the rest of the batch on the first failure.
	FailFast bool

	// Timeout bounds the whole batch. Zero means no bound.
	Timeout time.Duration
}

// Outcome classifies a finished task for metrics and stats.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeTimedOut  Outcome = "timed_out"
)

func taskID(t Task, i int) string {
	if t.ID != "" {
		return t.ID
	}
	return "task-" + strconv.Itoa(i)
}
