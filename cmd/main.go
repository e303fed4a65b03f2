package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cache "github.com/krisalay/fetchcache"
	"github.com/krisalay/fetchcache/config"
	"github.com/krisalay/fetchcache/fanout"
	"github.com/krisalay/fetchcache/listener"
	"github.com/krisalay/fetchcache/metrics"
)

// ================= WEATHER CLIENT =================

type weather struct {
	CurrentCondition []struct {
		FeelsLikeC string `json:"FeelsLikeC"`
	} `json:"current_condition"`
}

func (w weather) feelsLike() string {
	if len(w.CurrentCondition) == 0 {
		return "?"
	}
	return w.CurrentCondition[0].FeelsLikeC
}

type fetcher struct {
	client  *http.Client
	offline bool
}

func (f *fetcher) weather(ctx context.Context, city string) (weather, error) {
	fmt.Printf("REMOTE → fetching weather data for %s...\n", city)

	if f.offline {
		var w weather
		w.CurrentCondition = append(w.CurrentCondition, struct {
			FeelsLikeC string `json:"FeelsLikeC"`
		}{FeelsLikeC: fmt.Sprint(len(city))})
		return w, nil
	}

	u := "http://wttr.in/" + url.PathEscape(city) + "?format=j1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return weather{}, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return weather{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return weather{}, fmt.Errorf("wttr.in: %s", resp.Status)
	}

	var w weather
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return weather{}, fmt.Errorf("decode weather: %w", err)
	}
	return w, nil
}

func (f *fetcher) download(ctx context.Context, u string) (any, error) {
	if f.offline {
		select {
		case <-time.After(time.Duration(len(u)) * 5 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		fmt.Printf("Downloaded %s at %s\n", u, time.Now().Format("15:04:05.000000"))
		return int64(len(u)), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Downloaded %s at %s\n", u, time.Now().Format("15:04:05.000000"))
	return n, nil
}

// ================= MAIN =================

func main() {
	var (
		configPath  = flag.String("config", "", "path to a YAML config file")
		metricsAddr = flag.String("metrics-addr", "", "serve Prometheus metrics on this address")
		offline     = flag.Bool("offline", false, "use canned responses instead of the network")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	if err := run(*configPath, *metricsAddr, *offline, log); err != nil {
		log.Error("demo failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath, metricsAddr string, offline bool, log *slog.Logger) error {
	ctx := context.Background()

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}

	fmt.Println("\n==================== SYSTEM BOOT ====================")
	fmt.Println("EVICTION POLICY :", cfg.Cache.Eviction)
	fmt.Println("EXPIRATION      :", cfg.Cache.Expiration)
	fmt.Println("CAPACITY        :", cfg.Cache.Capacity, "keys")
	fmt.Println("DEFAULT TTL     :", cfg.Cache.DefaultTTL.Std())
	fmt.Println("MAX CONCURRENCY :", cfg.Fanout.MaxConcurrency)

	// ---------------- Metrics ----------------
	reg := prometheus.NewRegistry()
	cacheMetrics := metrics.NewCacheMetrics(reg, cfg.Metrics.Namespace)
	fanoutMetrics := metrics.NewFanoutMetrics(reg, cfg.Metrics.Namespace)

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metrics.Handler(reg)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
		defer srv.Close()
		fmt.Println("METRICS         : http://" + cfg.Metrics.Addr + "/metrics")
	}

	// ---------------- Cache ----------------
	removals := listener.NewAsync(func(key string, _ any, reason listener.Reason) {
		log.Info("cache removal", slog.String("key", key), slog.String("reason", reason.String()))
	}, 64)

	c, err := cache.New(cfg.Cache,
		cache.WithLogger(log),
		cache.WithMetrics(cacheMetrics),
		cache.WithListener(removals),
	)
	if err != nil {
		return err
	}
	defer c.Close()
	metrics.RegisterCacheSize(reg, cfg.Metrics.Namespace, c)

	exec := fanout.New(fanout.WithLogger(log), fanout.WithMetrics(fanoutMetrics))
	metrics.RegisterExecutorStats(reg, cfg.Metrics.Namespace, exec)

	f := &fetcher{client: &http.Client{Timeout: 10 * time.Second}, offline: offline}
	getWeather := cache.Memoize(c, f.weather, cfg.Cache.DefaultTTL.Std())

	// ====================================================
	fmt.Println("\n==================== 1) CACHE MISS ====================")
	ny, err := getWeather(ctx, "New York")
	if err != nil {
		return err
	}
	fmt.Println("CACHE  → New York feels like", ny.feelsLike(), "celsius")

	// ====================================================
	fmt.Println("\n==================== 2) CACHE HIT ====================")
	nyCached, err := getWeather(ctx, "New York")
	if err != nil {
		return err
	}
	fmt.Println("CACHE  → New York (cached) feels like", nyCached.feelsLike(), "celsius")

	// ====================================================
	fmt.Println("\n==================== 3) DIFFERENT KEY ====================")
	sd, err := getWeather(ctx, "San Diego")
	if err != nil {
		return err
	}
	fmt.Println("CACHE  → San Diego feels like", sd.feelsLike(), "celsius")

	// ====================================================
	fmt.Println("\n==================== 4) SINGLEFLIGHT ====================")
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w, err := getWeather(ctx, "Lisbon")
			if err != nil {
				fmt.Printf("GOROUTINE-%d → error: %v\n", id, err)
				return
			}
			fmt.Printf("GOROUTINE-%d → Lisbon feels like %s\n", id, w.feelsLike())
		}(i)
	}
	wg.Wait()

	// ====================================================
	fmt.Println("\n==================== 5) INVALIDATE ====================")
	c.Invalidate("New York")
	fmt.Println("CACHE  → state of New York:", c.State("New York"))

	// ====================================================
	fmt.Println("\n==================== 6) FAN-OUT DOWNLOAD ====================")
	urls := []string{"https://www.google.com", "https://www.example.com", "https://www.github.com"}

	tasks := make([]fanout.Task, len(urls))
	for i, u := range urls {
		fmt.Printf("Starting task for %s at %s\n", u, time.Now().Format("15:04:05.000000"))
		tasks[i] = fanout.Task{ID: u, Fn: func(ctx context.Context) (any, error) {
			return f.download(ctx, u)
		}}
	}
	fmt.Println("****All tasks submitted****")

	results, err := exec.RunAll(ctx, tasks, fanout.Options{
		MaxConcurrency: cfg.Fanout.MaxConcurrency,
		FailFast:       cfg.Fanout.FailFast,
		Timeout:        cfg.Fanout.Timeout.Std(),
	})
	if err != nil {
		fmt.Println("FANOUT → batch aborted:", err)
	}
	for _, r := range results {
		if r.OK() {
			fmt.Printf("FANOUT → %-26s %v bytes in %v\n", r.TaskID, r.Value, r.Duration)
		} else {
			fmt.Printf("FANOUT → %-26s error: %v\n", r.TaskID, r.Err)
		}
	}
	fmt.Println("***All downloads finished***")

	// ====================================================
	fmt.Println("\n==================== STATS ====================")
	stats := exec.Stats()
	fmt.Printf("ENTRIES   : %d\n", c.Len())
	fmt.Printf("SUCCEEDED : %d\n", stats.Succeeded)
	fmt.Printf("FAILED    : %d\n", stats.Failed)
	fmt.Printf("SUCCESS   : %.1f%%\n", stats.SuccessRate())

	fmt.Println("\n==================== SHUTDOWN ====================")
	return nil
}
