// Package api holds the public contracts of the cache and the fan-out executor.
// Internals (sharding, eviction, expiration, single-flight, worker bounds) stay
// hidden behind them.
package api

import (
	"context"
	"time"

	"github.com/krisalay/fetchcache/fanout"
	"github.com/krisalay/fetchcache/types"
)

// Cache is a time-bounded, memoizing key → value store.
type Cache interface {

	/*
		GetOrCompute returns the value for key.

		BEHAVIOR:
		-------------------
		1. Key cached and NOT expired → value returned, fn not called.
		2. Key missing or expired → fn called exactly once, result stored for ttl.
		3. fn already running for key → wait and share its result.

		Errors are returned to every waiter and never cached.
	*/
	GetOrCompute(ctx context.Context, key string, fn types.ComputeFunc, ttl time.Duration) (any, error)

	/*
		Invalidate deletes a key immediately regardless of its TTL.
		Removing a non-existing key is safe.
	*/
	Invalidate(key string)

	// State reports whether key is empty, pending or ready.
	State(key string) types.EntryState

	/*
		TTL returns the remaining time-to-live for a key.

		> 0 : duration remaining before expiration
		-1  : key exists but has no TTL
		-2  : key does not exist or is already expired
	*/
	TTL(key string) time.Duration

	// Close stops background goroutines and flushes removal notifications.
	Close()
}

// Executor runs batches of independent operations concurrently.
type Executor interface {

	// RunAll blocks until every task is terminal. results[i] belongs to tasks[i].
	RunAll(ctx context.Context, tasks []fanout.Task, opts fanout.Options) ([]fanout.TaskResult, error)
}
