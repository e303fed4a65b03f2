package cache_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cache "github.com/krisalay/fetchcache"
	"github.com/krisalay/fetchcache/config"
	"github.com/krisalay/fetchcache/eviction"
	"github.com/krisalay/fetchcache/fanout"
	"github.com/krisalay/fetchcache/listener"
	"github.com/krisalay/fetchcache/types"
)

//
// ================= TEST HELPERS =================
//

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

type countingMetrics struct {
	hits, misses, evictions, expired, computeErrors atomic.Int64
}

func (m *countingMetrics) Hit()          { m.hits.Add(1) }
func (m *countingMetrics) Miss()         { m.misses.Add(1) }
func (m *countingMetrics) Eviction()     { m.evictions.Add(1) }
func (m *countingMetrics) Expire()       { m.expired.Add(1) }
func (m *countingMetrics) ComputeError() { m.computeErrors.Add(1) }

// counter returns a compute function yielding val and a pointer to its call count.
func counter(val any) (types.ComputeFunc, *atomic.Int64) {
	var calls atomic.Int64
	return func(ctx context.Context) (any, error) {
		calls.Add(1)
		return val, nil
	}, &calls
}

func newTestCache(t *testing.T, capacity int, opts ...cache.Option) *cache.TTLCache {
	t.Helper()

	c, err := cache.New(config.CacheConfig{
		Capacity:   capacity,
		Shards:     1,
		DefaultTTL: config.Duration(10 * time.Second),
		Eviction:   eviction.LRU,
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

//
// ================= BASIC OPERATIONS =================
//

func TestGetOrComputeHitSkipsCompute(t *testing.T) {
	ctx := context.Background()
	m := &countingMetrics{}
	c := newTestCache(t, 10, cache.WithMetrics(m))

	fn, calls := counter("value1")

	v, err := c.GetOrCompute(ctx, "key1", fn, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "value1", v)

	v, err = c.GetOrCompute(ctx, "key1", fn, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "value1", v)

	assert.EqualValues(t, 1, calls.Load())
	assert.EqualValues(t, 1, m.hits.Load())
	assert.EqualValues(t, 1, m.misses.Load())
	assert.Equal(t, types.StateReady, c.State("key1"))
}

func TestComputeErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	m := &countingMetrics{}
	c := newTestCache(t, 10, cache.WithMetrics(m))

	boom := errors.New("boom")
	var calls atomic.Int64
	fn := func(ctx context.Context) (any, error) {
		if calls.Add(1) == 1 {
			return nil, boom
		}
		return "recovered", nil
	}

	_, err := c.GetOrCompute(ctx, "k", fn, time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var ce *types.ComputeError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "k", ce.Key)
	assert.Equal(t, types.StateEmpty, c.State("k"))

	v, err := c.GetOrCompute(ctx, "k", fn, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "recovered", v)
	assert.EqualValues(t, 2, calls.Load())
	assert.EqualValues(t, 1, m.computeErrors.Load())
}

func TestComputePanicBecomesComputeError(t *testing.T) {
	c := newTestCache(t, 10)

	_, err := c.GetOrCompute(context.Background(), "k", func(ctx context.Context) (any, error) {
		panic("kaboom")
	}, 0)

	var ce *types.ComputeError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestGetAndSet(t *testing.T) {
	c := newTestCache(t, 10)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", 42, 0)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	fn, calls := counter(7)
	v, err := c.GetOrCompute(context.Background(), "k", fn, 0)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Zero(t, calls.Load())
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, 10)

	fn, calls := counter("v")
	_, err := c.GetOrCompute(ctx, "k", fn, time.Minute)
	require.NoError(t, err)

	c.Invalidate("k")
	assert.Equal(t, types.StateEmpty, c.State("k"))
	assert.Equal(t, 0, c.Len())

	// removing a missing key is a no-op
	c.Invalidate("k")
	c.Invalidate("never-there")

	_, err = c.GetOrCompute(ctx, "k", fn, time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

//
// ================= TTL =================
//

func TestTTLExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := newTestCache(t, 10, cache.WithClock(clock.Now))

	const ttl = 100 * time.Millisecond
	fn, calls := counter("v")

	_, err := c.GetOrCompute(ctx, "k", fn, ttl)
	require.NoError(t, err)

	clock.Advance(ttl - time.Nanosecond)
	_, err = c.GetOrCompute(ctx, "k", fn, ttl)
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load(), "still live just before ttl")

	clock.Advance(2 * time.Nanosecond)
	_, err = c.GetOrCompute(ctx, "k", fn, ttl)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load(), "recomputed just after ttl")
}

func TestHitsDoNotExtendFixedTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := newTestCache(t, 10, cache.WithClock(clock.Now))

	fn, calls := counter("v")
	for i := 0; i < 5; i++ {
		_, err := c.GetOrCompute(ctx, "k", fn, time.Second)
		require.NoError(t, err)
		clock.Advance(300 * time.Millisecond)
	}

	// computed at 0s and again at 1.2s
	assert.EqualValues(t, 2, calls.Load())
}

func TestDefaultTTLApplies(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, 10, cache.WithClock(clock.Now))

	fn, calls := counter("v")
	_, err := c.GetOrCompute(context.Background(), "k", fn, 0)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, c.TTL("k"))

	clock.Advance(10 * time.Second)
	assert.Equal(t, time.Duration(-2), c.TTL("k"))

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.EqualValues(t, 1, calls.Load())
}

func TestTTLWithoutExpiry(t *testing.T) {
	c, err := cache.New(config.CacheConfig{Capacity: 4})
	require.NoError(t, err)
	defer c.Close()

	c.Set("forever", "v", 0)
	assert.Equal(t, time.Duration(-1), c.TTL("forever"))
	assert.Equal(t, time.Duration(-2), c.TTL("missing"))
}

func TestSlidingExpiration(t *testing.T) {
	clock := newFakeClock()
	c, err := cache.New(config.CacheConfig{
		Capacity:   4,
		DefaultTTL: config.Duration(time.Second),
		Expiration: "after-access",
	}, cache.WithClock(clock.Now))
	require.NoError(t, err)
	defer c.Close()

	fn, calls := counter("v")
	for i := 0; i < 5; i++ {
		_, err := c.GetOrCompute(context.Background(), "k", fn, 0)
		require.NoError(t, err)
		clock.Advance(600 * time.Millisecond)
	}

	assert.EqualValues(t, 1, calls.Load())
}

func TestPurgeRemovesExpired(t *testing.T) {
	clock := newFakeClock()
	m := &countingMetrics{}
	c := newTestCache(t, 10, cache.WithClock(clock.Now), cache.WithMetrics(m))

	c.Set("short", 1, time.Second)
	c.Set("long", 2, time.Hour)

	clock.Advance(2 * time.Second)
	assert.Equal(t, 2, c.Len(), "expiry is lazy")

	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 1, c.Len())
	assert.EqualValues(t, 1, m.expired.Load())
}

func TestReaperPurgesInBackground(t *testing.T) {
	c, err := cache.New(config.CacheConfig{
		Capacity:     10,
		ReapInterval: config.Duration(10 * time.Millisecond),
	})
	require.NoError(t, err)
	defer c.Close()

	c.Set("k", "v", 20*time.Millisecond)
	require.Equal(t, 1, c.Len())

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
}

//
// ================= SINGLE-FLIGHT =================
//

func TestSingleFlight(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, 10)

	release := make(chan struct{})
	var calls atomic.Int64
	fn := func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	const n = 50
	results := make([]any, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrCompute(ctx, "hot", fn, time.Minute)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	require.Eventually(t, func() bool { return c.State("hot") == types.StatePending }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for i, v := range results {
		assert.Equal(t, "shared", v, "caller %d", i)
	}
	assert.Equal(t, types.StateReady, c.State("hot"))
}

func TestSingleFlightSharesError(t *testing.T) {
	c := newTestCache(t, 10)

	boom := errors.New("upstream down")
	release := make(chan struct{})
	var calls atomic.Int64
	fn := func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-release
		return nil, boom
	}

	const n = 10
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.GetOrCompute(context.Background(), "k", fn, time.Minute)
		}(i)
	}

	require.Eventually(t, func() bool { return c.State("k") == types.StatePending }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, err := range errs {
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, types.StateEmpty, c.State("k"))
}

func TestWaiterContextCancellation(t *testing.T) {
	c := newTestCache(t, 10)

	release := make(chan struct{})
	fn := func(ctx context.Context) (any, error) {
		<-release
		return "late", nil
	}

	leader := make(chan any, 1)
	go func() {
		v, _ := c.GetOrCompute(context.Background(), "k", fn, time.Minute)
		leader <- v
	}()
	require.Eventually(t, func() bool { return c.State("k") == types.StatePending }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.GetOrCompute(ctx, "k", fn, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, types.ErrCancelled)

	var ce *types.CancelledError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "k", ce.Key)

	close(release)
	assert.Equal(t, "late", <-leader)
	assert.Equal(t, types.StateReady, c.State("k"))
}

func TestDifferentKeysDoNotBlockEachOther(t *testing.T) {
	c := newTestCache(t, 10)

	release := make(chan struct{})
	defer close(release)
	go func() {
		_, _ = c.GetOrCompute(context.Background(), "slow", func(ctx context.Context) (any, error) {
			<-release
			return nil, nil
		}, 0)
	}()
	require.Eventually(t, func() bool { return c.State("slow") == types.StatePending }, time.Second, time.Millisecond)

	fn, _ := counter("fast")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := c.GetOrCompute(ctx, "fast", fn, 0)
	require.NoError(t, err)
	assert.Equal(t, "fast", v)
}

//
// ================= CAPACITY & EVICTION =================
//

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	m := &countingMetrics{}
	c := newTestCache(t, 2, cache.WithMetrics(m))

	for _, k := range []string{"a", "b", "c"} {
		fn, _ := counter(k)
		_, err := c.GetOrCompute(ctx, k, fn, time.Minute)
		require.NoError(t, err)
	}

	assert.Equal(t, types.StateEmpty, c.State("a"))
	assert.Equal(t, types.StateReady, c.State("b"))
	assert.Equal(t, types.StateReady, c.State("c"))
	assert.Equal(t, 2, c.Len())
	assert.EqualValues(t, 1, m.evictions.Load())
}

func TestLRUAccessProtectsKey(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, 2)

	fa, aCalls := counter("a")
	fb, _ := counter("b")
	fc, _ := counter("c")

	_, _ = c.GetOrCompute(ctx, "a", fa, time.Minute)
	_, _ = c.GetOrCompute(ctx, "b", fb, time.Minute)

	// touch a so b becomes least recently used
	_, _ = c.GetOrCompute(ctx, "a", fa, time.Minute)

	_, _ = c.GetOrCompute(ctx, "c", fc, time.Minute)

	assert.Equal(t, types.StateReady, c.State("a"))
	assert.Equal(t, types.StateEmpty, c.State("b"))
	assert.Equal(t, types.StateReady, c.State("c"))
	assert.EqualValues(t, 1, aCalls.Load())
}

func TestExpiredEntriesReclaimedBeforeEviction(t *testing.T) {
	clock := newFakeClock()
	var reasons []string
	var mu sync.Mutex
	l := listener.NewSync(func(key string, _ any, r listener.Reason) {
		mu.Lock()
		defer mu.Unlock()
		reasons = append(reasons, key+":"+r.String())
	})
	c := newTestCache(t, 2, cache.WithClock(clock.Now), cache.WithListener(l))

	c.Set("old", 1, time.Second)
	c.Set("live", 2, time.Hour)
	clock.Advance(2 * time.Second)

	c.Set("new", 3, time.Hour)

	_, ok := c.Get("live")
	assert.True(t, ok)
	assert.Equal(t, []string{"old:expired"}, reasons)
}

func TestShardedCapacityIsTotal(t *testing.T) {
	c, err := cache.New(config.CacheConfig{Capacity: 10, Shards: 4})
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 100; i++ {
		c.Set(fmt.Sprintf("k%d", i), i, 0)
		require.LessOrEqual(t, c.Len(), 10)
	}
	assert.Equal(t, 10, c.Capacity())
}

func TestListenerReasons(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()

	var mu sync.Mutex
	got := map[string]listener.Reason{}
	l := listener.NewSync(func(key string, _ any, r listener.Reason) {
		mu.Lock()
		defer mu.Unlock()
		got[key] = r
	})
	c := newTestCache(t, 2, cache.WithClock(clock.Now), cache.WithListener(l))

	fn, _ := counter("v")
	_, _ = c.GetOrCompute(ctx, "expiring", fn, time.Second)
	_, _ = c.GetOrCompute(ctx, "dropped", fn, time.Hour)
	c.Invalidate("dropped")

	clock.Advance(2 * time.Second)
	_, _ = c.GetOrCompute(ctx, "expiring", fn, time.Hour)

	_, _ = c.GetOrCompute(ctx, "x", fn, time.Hour)
	_, _ = c.GetOrCompute(ctx, "y", fn, time.Hour)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, listener.Invalidated, got["dropped"])
	assert.Equal(t, listener.Evicted, got["expiring"], "recomputed entry was later evicted")
}

func TestPanickingListenerDoesNotCrash(t *testing.T) {
	ctx := context.Background()
	m := &countingMetrics{}
	l := listener.NewSync(func(_ string, _ any, r listener.Reason) {
		if r == listener.Evicted {
			panic("listener bug")
		}
	})
	c := newTestCache(t, 1, cache.WithListener(l), cache.WithMetrics(m))

	fnA, _ := counter("a")
	fnB, _ := counter("b")

	v, err := c.GetOrCompute(ctx, "a", fnA, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	// storing b evicts a inside the computation
	v, err = c.GetOrCompute(ctx, "b", fnB, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	assert.EqualValues(t, 1, m.evictions.Load())
	assert.Equal(t, types.StateReady, c.State("b"))
	assert.Equal(t, types.StateEmpty, c.State("a"))
}

func TestInvalidateDuringComputeKeepsResult(t *testing.T) {
	c := newTestCache(t, 10)

	release := make(chan struct{})
	fn := func(ctx context.Context) (any, error) {
		<-release
		return "v1", nil
	}

	done := make(chan any, 1)
	go func() {
		v, _ := c.GetOrCompute(context.Background(), "k", fn, time.Minute)
		done <- v
	}()
	require.Eventually(t, func() bool { return c.State("k") == types.StatePending }, time.Second, time.Millisecond)

	// nothing stored yet, so this is a no-op for the running computation
	c.Invalidate("k")
	close(release)

	assert.Equal(t, "v1", <-done)
	assert.Equal(t, types.StateReady, c.State("k"))

	v, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v1", v)
	assert.Greater(t, c.TTL("k"), time.Duration(0))
}

func TestFillingFullShardStaysLinear(t *testing.T) {
	const n = 20000
	c := newTestCache(t, n/2)

	start := time.Now()
	for i := 0; i < n; i++ {
		c.Set(fmt.Sprintf("k%d", i), i, time.Hour)
	}

	assert.Equal(t, n/2, c.Len())
	assert.Less(t, time.Since(start), 5*time.Second)

	_, ok := c.Get(fmt.Sprintf("k%d", n-1))
	assert.True(t, ok)
	_, ok = c.Get("k0")
	assert.False(t, ok)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := cache.New(config.CacheConfig{Capacity: 0})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = cache.New(config.CacheConfig{Capacity: 1, Eviction: "MRU"})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestCloseIsIdempotent(t *testing.T) {
	a := listener.NewAsync(func(string, any, listener.Reason) {}, 4)
	c, err := cache.New(config.CacheConfig{Capacity: 1, ReapInterval: config.Duration(time.Millisecond)},
		cache.WithListener(a))
	require.NoError(t, err)

	c.Close()
	c.Close()
}

//
// ================= COMPOSITION =================
//

func TestMemoize(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, 10)

	var calls atomic.Int64
	lengthOf := cache.Memoize(c, func(ctx context.Context, key string) (int, error) {
		calls.Add(1)
		return len(key), nil
	}, time.Minute)

	n, err := lengthOf(ctx, "New York")
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	n, err = lengthOf(ctx, "New York")
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	n, err = lengthOf(ctx, "San Diego")
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	assert.EqualValues(t, 2, calls.Load())
}

func TestMemoizeTypeMismatch(t *testing.T) {
	c := newTestCache(t, 10)
	c.Set("k", "not an int", 0)

	f := cache.Memoize(c, func(ctx context.Context, key string) (int, error) {
		return 1, nil
	}, 0)

	_, err := f(context.Background(), "k")
	assert.Error(t, err)
}

func TestGetOrComputeAll(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, 10)
	exec := fanout.New()

	c.Set("cached", "from-cache", 0)

	var calls atomic.Int64
	fn := func(ctx context.Context, key string) (any, error) {
		calls.Add(1)
		time.Sleep(5 * time.Millisecond)
		return "fetched-" + key, nil
	}

	keys := []string{"a", "cached", "b", "a"}
	results, err := cache.GetOrComputeAll(ctx, c, exec, keys, fn, time.Minute, fanout.Options{MaxConcurrency: 4})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "fetched-a", results[0].Value)
	assert.Equal(t, "from-cache", results[1].Value)
	assert.Equal(t, "fetched-b", results[2].Value)
	assert.Equal(t, "fetched-a", results[3].Value)
	assert.EqualValues(t, 2, calls.Load())
}
