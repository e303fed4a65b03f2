package types

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout is matched by every TimeoutError.
	ErrTimeout = errors.New("operation timed out")

	// ErrCancelled is matched by every CancelledError.
	ErrCancelled = errors.New("operation cancelled")
)

// ComputeError wraps whatever a compute or task function returned.
// Key is the cache key or the task ID.
type ComputeError struct {
	Key string
	Err error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("compute %q: %v", e.Key, e.Err)
}

func (e *ComputeError) Unwrap() error { return e.Err }

// TimeoutError reports work that did not finish within its deadline.
type TimeoutError struct {
	Key   string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%q timed out after %v", e.Key, e.After)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// CancelledError reports work preempted by fail-fast or by the caller.
// Cause is the error that triggered the cancellation, if known.
type CancelledError struct {
	Key   string
	Cause error
}

func (e *CancelledError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%q cancelled", e.Key)
	}
	return fmt.Sprintf("%q cancelled: %v", e.Key, e.Cause)
}

func (e *CancelledError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrCancelled}
	}
	return []error{ErrCancelled, e.Cause}
}
