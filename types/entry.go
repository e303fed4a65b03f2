package types

import "time"

// CacheEntry is intentionally mutable for timestamps.
// Timestamps are only touched while the owning shard is locked.
type CacheEntry struct {
	Key            string
	Value          any
	CreatedAt      time.Time
	LastAccessedAt time.Time
	ExpireAt       time.Time // zero => no TTL
}

// Expired reports whether the entry is past its deadline at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpireAt.IsZero() && !now.Before(e.ExpireAt)
}

// EntryState describes where a key is in its lifecycle.
type EntryState int

const (
	// StateEmpty means no live entry and no computation in flight.
	StateEmpty EntryState = iota

	// StatePending means a computation for the key is running.
	StatePending

	// StateReady means a live entry is stored.
	StateReady
)

func (s EntryState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	default:
		return "empty"
	}
}
