package shard

import (
	"sync"
	"time"

	"github.com/krisalay/fetchcache/eviction"
)

/*
A Shard is a small, independent piece of the cache.
Instead of one big map and one big lock, the cache is split into shards. Each shard:
- Holds some portion of the data
- Has its own eviction logic and capacity
- Has its own lock
- Knows which of its keys have a computation in flight

Keys in different shards never contend.
*/
type Shard struct {

	// Store holds the key → entry data. It is only touched with Mu held.
	Store ShardStore

	// Eviction controls which key is removed when this shard runs out of space.
	// It is only touched with Mu held.
	Eviction eviction.Policy

	// Capacity is the maximum number of entries this shard may hold.
	Capacity int

	// Mu guards the store, eviction bookkeeping, the pending set and nextExpiry.
	Mu sync.Mutex

	// pending counts in-flight computations per key. Guarded by Mu.
	pending map[string]int

	// nextExpiry is a lower bound on the earliest ExpireAt in Store.
	// Zero means no entry has a deadline. Guarded by Mu.
	nextExpiry time.Time
}

func NewShard(ev eviction.Policy, capacity int) *Shard {
	return &Shard{
		Store:    NewMapStore(),
		Eviction: ev,
		Capacity: capacity,
		pending:  make(map[string]int),
	}
}

// MarkPending records that a computation for key started.
func (s *Shard) MarkPending(key string) {
	s.Mu.Lock()
	s.pending[key]++
	s.Mu.Unlock()
}

// ClearPending records that a computation for key finished.
func (s *Shard) ClearPending(key string) {
	s.Mu.Lock()
	if s.pending[key] <= 1 {
		delete(s.pending, key)
	} else {
		s.pending[key]--
	}
	s.Mu.Unlock()
}

// IsPending reports whether a computation for key is in flight.
func (s *Shard) IsPending(key string) bool {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.pending[key] > 0
}

// TrackExpiry lowers the expiry bound to at. Caller holds Mu.
func (s *Shard) TrackExpiry(at time.Time) {
	if at.IsZero() {
		return
	}
	if s.nextExpiry.IsZero() || at.Before(s.nextExpiry) {
		s.nextExpiry = at
	}
}

/*
ExpiryDue reports whether some entry may have expired by now. Caller holds Mu.

Sliding deadlines only move forward, so the bound can be early but never
late: a false answer is exact, a true one means a scan is worth doing.
*/
func (s *Shard) ExpiryDue(now time.Time) bool {
	return !s.nextExpiry.IsZero() && !now.Before(s.nextExpiry)
}

// ResetExpiry clears the bound before a full scan rebuilds it. Caller holds Mu.
func (s *Shard) ResetExpiry() {
	s.nextExpiry = time.Time{}
}
