package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/krisalay/fetchcache/config"
	"github.com/krisalay/fetchcache/engine"
	"github.com/krisalay/fetchcache/eviction"
	"github.com/krisalay/fetchcache/expiration"
	"github.com/krisalay/fetchcache/listener"
	"github.com/krisalay/fetchcache/shard"
	"github.com/krisalay/fetchcache/types"
)

/*
TTLCache is the main cache implementation.
This struct is the orchestrator that connects:
- shards (storage, eviction bookkeeping, pending keys)
- the engine (expiration, compute, metrics, removal notifications)
- single-flight (at most one computation per key)
- the optional background reaper
*/
type TTLCache struct {
	// shards are the actual storage units. Each shard is an independent mini-cache.
	shards []*shard.Shard

	// engine contains the "rules" of the cache: TTL, compute, metrics, listener.
	engine *engine.CacheEngine

	// selector decides which shard a key should go to.
	selector shard.Selector

	// capacity is the maximum number of entries in the cache. It is divided across shards.
	capacity int

	// sf prevents multiple goroutines from computing the same key simultaneously.
	sf singleflight.Group

	log *slog.Logger

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option configures the collaborators of a TTLCache.
type Option func(*options)

type options struct {
	log      *slog.Logger
	metrics  types.Metrics
	listener listener.Listener
	now      func() time.Time
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithMetrics(m types.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithListener registers a listener for evicted, expired and invalidated entries.
// The cache closes it on Close.
func WithListener(l listener.Listener) Option {
	return func(o *options) { o.listener = l }
}

// WithClock replaces time.Now. Mostly useful in tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

/*
New builds a cache from cfg.

Capacity is split across shards so the total never exceeds cfg.Capacity.
Shards is clamped to [1, Capacity].
*/
func New(cfg config.CacheConfig, opts ...Option) (*TTLCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	log := o.log.With(slog.String("component", "ttlcache"))

	policy, err := eviction.ParsePolicyType(string(cfg.Eviction))
	if err != nil {
		return nil, err
	}
	exp, err := expiration.New(cfg.Expiration, cfg.DefaultTTL.Std())
	if err != nil {
		return nil, err
	}

	n := min(max(cfg.Shards, 1), cfg.Capacity)

	// Create shards. The first capacity%n shards take one extra slot.
	s := make([]*shard.Shard, n)
	for i := range s {
		ev, err := eviction.NewEvictionPolicy(policy)
		if err != nil {
			return nil, err
		}
		shardCap := cfg.Capacity / n
		if i < cfg.Capacity%n {
			shardCap++
		}
		s[i] = shard.NewShard(ev, shardCap)
	}

	c := &TTLCache{
		shards:   s,
		engine:   engine.NewCacheEngine(exp, o.listener, o.metrics, log, o.now),
		selector: shard.HashSelector{},
		capacity: cfg.Capacity,
		log:      log,
		stop:     make(chan struct{}),
	}

	if every := cfg.ReapInterval.Std(); every > 0 {
		c.wg.Add(1)
		go c.reapLoop(every)
	}

	log.Debug("cache created",
		slog.Int("capacity", cfg.Capacity),
		slog.Int("shards", n),
		slog.String("eviction", string(policy)),
		slog.Duration("default_ttl", cfg.DefaultTTL.Std()),
	)

	return c, nil
}

/*
GetOrCompute returns the live value for key, computing it with fn on a miss.

BEHAVIOR:
---------
 1. Live entry → returned immediately, fn is NOT called (cache hit).
 2. Missing or expired entry → fn runs once; the result is stored with
    expiresAt = now + ttl (ttl <= 0 uses the configured default TTL).
 3. A computation already in flight for key → the caller waits for it and
    receives the same value or the same error.

Failures are wrapped in *types.ComputeError and never cached: the next call
computes again. If ctx ends while waiting the caller gets a
*types.CancelledError wrapping ctx.Err(), but the computation keeps running
for the other waiters and its result is still stored. fn receives a context that
carries ctx's values without its cancellation.
*/
func (c *TTLCache) GetOrCompute(ctx context.Context, key string, fn types.ComputeFunc, ttl time.Duration) (any, error) {
	sh := c.selector.Select(key, c.shards)

	if v, ok := c.lookup(sh, key, true); ok {
		return v, nil
	}

	// Cache miss
	c.engine.Metrics.Miss()

	flightCtx := context.WithoutCancel(ctx)

	/*
		singleflight ensures that if 100 goroutines request the same missing key,
		only ONE of them runs fn. Others wait for the result.
	*/
	ch := c.sf.DoChan(key, func() (any, error) {
		// A flight that finished just before this one may already have stored the key.
		if v, ok := c.lookup(sh, key, false); ok {
			return v, nil
		}

		sh.MarkPending(key)
		defer sh.ClearPending(key)

		v, err := c.engine.Compute(flightCtx, key, fn)
		if err != nil {
			return nil, err
		}

		c.store(sh, key, v, ttl)
		return v, nil
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, &types.CancelledError{Key: key, Cause: ctx.Err()}
	}
}

// Get returns the live value for key without computing anything.
func (c *TTLCache) Get(key string) (any, bool) {
	sh := c.selector.Select(key, c.shards)

	v, ok := c.lookup(sh, key, true)
	if !ok {
		c.engine.Metrics.Miss()
	}
	return v, ok
}

// Set stores value directly. ttl <= 0 uses the default TTL.
func (c *TTLCache) Set(key string, value any, ttl time.Duration) {
	c.store(c.selector.Select(key, c.shards), key, value, ttl)
}

/*
Invalidate removes key immediately, regardless of its TTL.
Removing a key that does not exist is a no-op.
*/
func (c *TTLCache) Invalidate(key string) {
	sh := c.selector.Select(key, c.shards)

	sh.Mu.Lock()
	ent, ok := sh.Store.Delete(key)
	if ok {
		sh.Eviction.Remove(key)
	}
	sh.Mu.Unlock()

	if ok {
		c.engine.Removed(key, ent.Value, listener.Invalidated)
	}
}

// State reports whether key is ready, being computed, or absent.
func (c *TTLCache) State(key string) types.EntryState {
	sh := c.selector.Select(key, c.shards)

	sh.Mu.Lock()
	ent, ok := sh.Store.Get(key)
	live := ok && !c.engine.IsExpired(ent)
	sh.Mu.Unlock()

	switch {
	case live:
		return types.StateReady
	case sh.IsPending(key):
		return types.StatePending
	default:
		return types.StateEmpty
	}
}

/*
TTL returns remaining time-to-live of a key.

> 0 : duration remaining
-1  : key exists but has no TTL
-2  : key does not exist or is already expired
*/
func (c *TTLCache) TTL(key string) time.Duration {
	sh := c.selector.Select(key, c.shards)

	sh.Mu.Lock()
	defer sh.Mu.Unlock()

	ent, ok := sh.Store.Get(key)
	if !ok {
		return -2
	}
	if ent.ExpireAt.IsZero() {
		return -1
	}

	d := ent.ExpireAt.Sub(c.engine.Now())
	if d <= 0 {
		return -2
	}
	return d
}

// Len returns how many entries are stored, including expired ones not purged yet.
func (c *TTLCache) Len() int {
	n := 0
	for _, sh := range c.shards {
		n += int(sh.Store.Size())
	}
	return n
}

// Capacity returns the configured maximum number of entries.
func (c *TTLCache) Capacity() int {
	return c.capacity
}

// Purge removes every expired entry now and returns how many were removed.
func (c *TTLCache) Purge() int {
	removed := 0
	for _, sh := range c.shards {
		sh.Mu.Lock()
		gone := c.purgeExpiredLocked(sh)
		sh.Mu.Unlock()

		for _, ent := range gone {
			c.engine.Removed(ent.Key, ent.Value, listener.Expired)
		}
		removed += len(gone)
	}
	return removed
}

/*
Close stops the reaper and flushes the removal listener.
It is safe to call more than once.
*/
func (c *TTLCache) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.wg.Wait()

		if c.engine.Listener != nil {
			c.engine.Listener.Close()
		}
	})
}

// lookup returns the live value for key and updates recency.
// An expired entry is purged on the way (lazy expiry).
func (c *TTLCache) lookup(sh *shard.Shard, key string, countHit bool) (any, bool) {
	sh.Mu.Lock()
	ent, ok := sh.Store.Get(key)
	if !ok {
		sh.Mu.Unlock()
		return nil, false
	}

	if c.engine.IsExpired(ent) {
		sh.Store.Delete(key)
		sh.Eviction.Remove(key)
		sh.Mu.Unlock()

		c.engine.Removed(key, ent.Value, listener.Expired)
		return nil, false
	}

	c.engine.OnRead(ent)
	sh.Eviction.OnGet(key)
	v := ent.Value
	sh.Mu.Unlock()

	if countHit {
		c.engine.Metrics.Hit()
	}
	return v, true
}

/*
store writes key into sh, making room first when the shard is full.
Expired entries are reclaimed before any live entry is evicted.
*/
func (c *TTLCache) store(sh *shard.Shard, key string, value any, ttl time.Duration) {
	ent := &types.CacheEntry{Key: key, Value: value}
	c.engine.OnWrite(ent, ttl)

	var expired, evicted []*types.CacheEntry

	sh.Mu.Lock()
	if _, exists := sh.Store.Get(key); !exists && int(sh.Store.Size()) >= sh.Capacity {
		expired = c.purgeExpiredLocked(sh)

		for int(sh.Store.Size()) >= sh.Capacity {
			victim := sh.Eviction.Evict()
			if victim == "" {
				break
			}
			if old, ok := sh.Store.Delete(victim); ok {
				evicted = append(evicted, old)
			}
		}
	}

	sh.Store.Put(key, ent)
	sh.Eviction.OnPut(key)
	sh.TrackExpiry(ent.ExpireAt)
	sh.Mu.Unlock()

	for _, e := range expired {
		c.engine.Removed(e.Key, e.Value, listener.Expired)
	}
	for _, e := range evicted {
		c.engine.Removed(e.Key, e.Value, listener.Evicted)
	}
}

/*
purgeExpiredLocked deletes every expired entry of sh. Caller holds sh.Mu.

The shard is only scanned once its expiry bound has passed, so inserting into
a full shard with nothing expired costs no scan.
*/
func (c *TTLCache) purgeExpiredLocked(sh *shard.Shard) []*types.CacheEntry {
	if !sh.ExpiryDue(c.engine.Now()) {
		return nil
	}
	sh.ResetExpiry()

	var gone []*types.CacheEntry
	sh.Store.Range(func(key string, ent *types.CacheEntry) bool {
		if c.engine.IsExpired(ent) {
			sh.Store.Delete(key)
			sh.Eviction.Remove(key)
			gone = append(gone, ent)
			return true
		}
		sh.TrackExpiry(ent.ExpireAt)
		return true
	})
	return gone
}

// reapLoop periodically purges expired entries so keys written once and never
// read again do not hold memory forever.
func (c *TTLCache) reapLoop(every time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if n := c.Purge(); n > 0 {
				c.log.Debug("reaped expired entries", slog.Int("count", n))
			}
		}
	}
}
