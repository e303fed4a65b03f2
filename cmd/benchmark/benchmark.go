package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	cache "github.com/krisalay/fetchcache"
	"github.com/krisalay/fetchcache/config"
	"github.com/krisalay/fetchcache/eviction"
	"github.com/krisalay/fetchcache/fanout"
)

// ================= BENCHMARK =================

func main() {
	ctx := context.Background()

	// ---------------- Config ----------------
	const (
		shards     = 8
		capacity   = 200000
		keySpace   = 100000
		goroutines = 200
		opsPerG    = 5000
		batches    = 200
		batchSize  = 64
		fetchDelay = 200 * time.Microsecond
	)

	fmt.Println("\n================ CACHE LOAD BENCHMARK =================")
	fmt.Println("CONFIG")
	fmt.Println("---------------------------------")
	fmt.Println("Shards       :", shards)
	fmt.Println("Capacity     :", capacity)
	fmt.Println("Key Space    :", keySpace)
	fmt.Println("Goroutines   :", goroutines)
	fmt.Println("Ops/Goroutine:", opsPerG)
	fmt.Println("Batches      :", batches, "x", batchSize)
	fmt.Println("---------------------------------")

	// Keep the benchmark output clean.
	quiet := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	c, err := cache.New(config.CacheConfig{
		Capacity:   capacity,
		Shards:     shards,
		DefaultTTL: config.Duration(time.Minute),
		Eviction:   eviction.LRU,
	}, cache.WithLogger(quiet))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer c.Close()

	var computes atomic.Int64
	compute := func(ctx context.Context, key string) (any, error) {
		computes.Add(1)
		time.Sleep(fetchDelay)
		return key, nil
	}

	// ---------------- GetOrCompute ----------------
	fmt.Println("Running GetOrCompute benchmark...")

	start := time.Now()

	wg := sync.WaitGroup{}
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < opsPerG; j++ {
				key := fmt.Sprintf("key-%d", (id*opsPerG+j)%keySpace)
				_, _ = c.GetOrCompute(ctx, key, func(ctx context.Context) (any, error) {
					return compute(ctx, key)
				}, 0)
			}
		}(i)
	}

	wg.Wait()

	cacheDur := time.Since(start)
	totalOps := goroutines * opsPerG

	// ---------------- Fan-out ----------------
	fmt.Println("Running fan-out benchmark...")

	exec := fanout.New(fanout.WithLogger(quiet))
	keys := make([]string, batchSize)

	start = time.Now()
	for b := 0; b < batches; b++ {
		for i := range keys {
			keys[i] = fmt.Sprintf("batch-%d-%d", b%10, i)
		}
		_, _ = cache.GetOrComputeAll(ctx, c, exec, keys, compute, 0, fanout.Options{MaxConcurrency: 16})
	}
	fanoutDur := time.Since(start)

	fmt.Println("\n================ RESULTS =================")
	fmt.Printf("Total Operations : %d\n", totalOps)
	fmt.Printf("Computations     : %d\n", computes.Load())
	fmt.Printf("Cache Time       : %v\n", cacheDur)
	fmt.Printf("Throughput       : %.2f ops/sec\n", float64(totalOps)/cacheDur.Seconds())
	fmt.Printf("Fan-out Time     : %v\n", fanoutDur)
	fmt.Printf("Batches/sec      : %.2f\n", float64(batches)/fanoutDur.Seconds())
	fmt.Printf("Tasks OK         : %d\n", exec.Stats().Succeeded)
	fmt.Println("=========================================")
}
