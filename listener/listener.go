// Package listener notifies interested parties when entries leave the cache.
package listener

/*
Different callers want different delivery guarantees:
- Some want to observe every removal inline (Sync)
- Some want the cache to never wait on them (Async)

Instead of hard-coding one behavior, the cache talks to this interface.
*/

// Reason says why an entry left the cache.
type Reason int

const (
	// Evicted: the shard was full and the eviction policy picked this key.
	Evicted Reason = iota + 1

	// Expired: the entry passed its TTL and was purged lazily or by the reaper.
	Expired

	// Invalidated: the caller removed the key explicitly.
	Invalidated
)

func (r Reason) String() string {
	switch r {
	case Evicted:
		return "evicted"
	case Expired:
		return "expired"
	case Invalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// Listener is the contract all removal listeners follow.
type Listener interface {

	// OnRemove is called after key was removed. It runs while the cache holds
	// no locks, but it is still on the caller's goroutine for Sync.
	OnRemove(key string, value any, reason Reason)

	// Close is called when the cache is shutting down.
	Close()
}

// Func adapts a plain function to a Listener.
type Func func(key string, value any, reason Reason)
