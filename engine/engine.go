package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/krisalay/fetchcache/expiration"
	"github.com/krisalay/fetchcache/listener"
	"github.com/krisalay/fetchcache/types"
)

/*
CacheEngine is the "brain" of the cache system.
It is responsible for the "behavior" of the cache, NOT storage.

It decides:
- When data is expired
- How TTL is updated on reads/writes
- How compute functions are run and their failures reported
- Who hears about removed entries
- How metrics are recorded

It does NOT:
- Store data
- Handle sharding
- Handle locking
- Decide eviction order
*/
type CacheEngine struct {

	// Expiration controls when a cache entry should be considered “too old”.
	// If this is nil, entries only expire through explicit per-call TTLs.
	Expiration expiration.Strategy

	// Listener hears about every removal. Nil means nobody is listening.
	Listener listener.Listener

	// Metrics is how we keep track of what the cache is doing.
	Metrics types.Metrics

	// Log receives debug events and compute failures.
	Log *slog.Logger

	// Now is the clock. Tests swap it for a fake one.
	Now func() time.Time
}

/*
NewCacheEngine creates a CacheEngine.
Nil metrics, logger and clock are replaced by working defaults so the rest of
the code never has to check them.
*/
func NewCacheEngine(
	exp expiration.Strategy,
	l listener.Listener,
	metrics types.Metrics,
	log *slog.Logger,
	now func() time.Time,
) *CacheEngine {
	if metrics == nil {
		metrics = types.NoopMetrics{}
	}
	if log == nil {
		log = slog.Default()
	}
	if now == nil {
		now = time.Now
	}

	return &CacheEngine{
		Expiration: exp,
		Listener:   l,
		Metrics:    metrics,
		Log:        log,
		Now:        now,
	}
}

/*
IsExpired checks whether a cache entry is expired.
Without a strategy only the entry's own deadline counts.
*/
func (e *CacheEngine) IsExpired(ent *types.CacheEntry) bool {
	now := e.Now()
	if e.Expiration == nil {
		return ent.Expired(now)
	}
	return e.Expiration.IsExpired(ent, now)
}

// OnRead is called every time the cache returns a live value.
// Sliding strategies push the deadline forward here.
func (e *CacheEngine) OnRead(ent *types.CacheEntry) {
	now := e.Now()
	if e.Expiration != nil {
		e.Expiration.OnAccess(ent, now)
		return
	}
	ent.LastAccessedAt = now
}

// OnWrite is called whenever an entry is about to be stored.
// ttl > 0 pins the deadline; otherwise the strategy's default applies.
func (e *CacheEngine) OnWrite(ent *types.CacheEntry, ttl time.Duration) {
	now := e.Now()
	if ttl > 0 {
		ent.ExpireAt = now.Add(ttl)
	}
	if e.Expiration != nil {
		e.Expiration.OnWrite(ent, now)
		return
	}
	ent.CreatedAt = now
	ent.LastAccessedAt = now
}

/*
Compute runs fn for key.

- Errors are wrapped in *types.ComputeError and counted
- A panic inside fn is turned into a ComputeError instead of crashing the process
*/
func (e *CacheEngine) Compute(ctx context.Context, key string, fn types.ComputeFunc) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &types.ComputeError{Key: key, Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			e.Metrics.ComputeError()
			e.Log.Warn("compute failed", slog.String("key", key), slog.Any("error", err))
		}
	}()

	val, err = fn(ctx)
	if err != nil {
		return nil, &types.ComputeError{Key: key, Err: err}
	}
	return val, nil
}

/*
Removed records metrics for a removal and forwards it to the listener.
Callers must not hold a shard lock: Sync listeners run inline.

A panicking listener is logged and swallowed. Removals can happen inside a
single-flight computation, where a panic would take down the process.
*/
func (e *CacheEngine) Removed(key string, value any, reason listener.Reason) {
	defer func() {
		if r := recover(); r != nil {
			e.Log.Error("removal listener panicked",
				slog.String("key", key),
				slog.String("reason", reason.String()),
				slog.Any("panic", r),
			)
		}
	}()

	switch reason {
	case listener.Evicted:
		e.Metrics.Eviction()
	case listener.Expired:
		e.Metrics.Expire()
	}

	e.Log.Debug("entry removed", slog.String("key", key), slog.String("reason", reason.String()))

	if e.Listener != nil {
		e.Listener.OnRemove(key, value, reason)
	}
}
