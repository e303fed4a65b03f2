package types

// This file defines how the cache reports what it is doing.

/*
Metrics is an interface that defines what the cache wants to measure.
Each method represents an event in the cache lifecycle. The cache will call these methods whenever something happens.
*/
type Metrics interface {

	// Hit is called when the cache returns a live value without computing.
	Hit()

	// Miss is called when the cache does NOT have a live value and a computation is needed.
	Miss()

	// Eviction is called when a key is removed because the cache is full and needs space.
	Eviction()

	// Expire is called when a key is removed because it has passed its TTL (time-based expiration).
	Expire()

	// ComputeError is called when a compute function fails. Failures are never cached.
	ComputeError()
}

/*
NoopMetrics is a "do nothing" implementation of Metrics.

Users that do not care about metrics still get a working cache without
nil checks sprinkled across the hot path.
*/
type NoopMetrics struct{}

func (NoopMetrics) Hit()          {}
func (NoopMetrics) Miss()         {}
func (NoopMetrics) Eviction()     {}
func (NoopMetrics) Expire()       {}
func (NoopMetrics) ComputeError() {}
