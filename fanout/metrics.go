package fanout

import "time"

// Metrics is how the executor reports task lifecycles.
type Metrics interface {
	// TaskStarted is called when a task's function begins to run.
	TaskStarted()

	// TaskFinished is called once per task that reached a terminal state,
	// including tasks cancelled before they started (d is zero then).
	TaskFinished(o Outcome, d time.Duration)
}

// NoopMetrics ignores every event.
type NoopMetrics struct{}

func (NoopMetrics) TaskStarted()                        {}
func (NoopMetrics) TaskFinished(Outcome, time.Duration) {}

// Stats contains cumulative executor statistics.
type Stats struct {
	Active    int64 `json:"active"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
	TimedOut  int64 `json:"timed_out"`
}

// SuccessRate is the percentage of finished tasks that succeeded.
func (s Stats) SuccessRate() float64 {
	total := s.Succeeded + s.Failed + s.Cancelled + s.TimedOut
	if total == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(total) * 100
}
