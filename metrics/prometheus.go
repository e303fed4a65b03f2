// Package metrics provides Prometheus implementations of the cache and
// fan-out metrics interfaces.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/krisalay/fetchcache/fanout"
	"github.com/krisalay/fetchcache/types"
)

// Default histogram buckets for task latency (in seconds).
var defaultBuckets = []float64{
	.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

// CacheMetrics implements types.Metrics using Prometheus counters.
type CacheMetrics struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	evictions     prometheus.Counter
	expirations   prometheus.Counter
	computeErrors prometheus.Counter
}

var _ types.Metrics = (*CacheMetrics)(nil)

// NewCacheMetrics creates the cache counters and registers them on reg.
func NewCacheMetrics(reg prometheus.Registerer, namespace string) *CacheMetrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		})
	}

	m := &CacheMetrics{
		hits:          counter("hits_total", "Lookups served from a live entry"),
		misses:        counter("misses_total", "Lookups that found no live entry"),
		evictions:     counter("evictions_total", "Entries removed to make room"),
		expirations:   counter("expirations_total", "Entries removed after their TTL"),
		computeErrors: counter("compute_errors_total", "Compute functions that failed"),
	}

	reg.MustRegister(m.hits, m.misses, m.evictions, m.expirations, m.computeErrors)
	return m
}

func (m *CacheMetrics) Hit()          { m.hits.Inc() }
func (m *CacheMetrics) Miss()         { m.misses.Inc() }
func (m *CacheMetrics) Eviction()     { m.evictions.Inc() }
func (m *CacheMetrics) Expire()       { m.expirations.Inc() }
func (m *CacheMetrics) ComputeError() { m.computeErrors.Inc() }

// FanoutMetrics implements fanout.Metrics using Prometheus.
type FanoutMetrics struct {
	started  prometheus.Counter
	finished *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ fanout.Metrics = (*FanoutMetrics)(nil)

func NewFanoutMetrics(reg prometheus.Registerer, namespace string) *FanoutMetrics {
	m := &FanoutMetrics{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "tasks_started_total",
			Help:      "Tasks whose function began to run",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "tasks_finished_total",
			Help:      "Tasks that reached a terminal state, by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "task_duration_seconds",
			Help:      "Task run time in seconds, by outcome",
			Buckets:   defaultBuckets,
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.started, m.finished, m.duration)
	return m
}

func (m *FanoutMetrics) TaskStarted() { m.started.Inc() }

func (m *FanoutMetrics) TaskFinished(o fanout.Outcome, d time.Duration) {
	m.finished.WithLabelValues(string(o)).Inc()
	m.duration.WithLabelValues(string(o)).Observe(d.Seconds())
}

// RegisterExecutorStats exposes the executor's live task count as a gauge.
func RegisterExecutorStats(reg prometheus.Registerer, namespace string, exec *fanout.Executor) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "fanout",
		Name:      "tasks_active",
		Help:      "Tasks currently running",
	}, func() float64 {
		return float64(exec.Stats().Active)
	}))
}

// Sized is anything that can report its entry count, like *cache.TTLCache.
type Sized interface {
	Len() int
}

// RegisterCacheSize exposes the number of stored entries as a gauge.
func RegisterCacheSize(reg prometheus.Registerer, namespace string, c Sized) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Entries currently stored, including expired ones not purged yet",
	}, func() float64 {
		return float64(c.Len())
	}))
}

// Handler serves everything gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
