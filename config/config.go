// Package config holds the tunables of the cache and the fan-out executor
// and loads them from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/krisalay/fetchcache/eviction"
	"github.com/krisalay/fetchcache/expiration"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Cache   CacheConfig   `yaml:"cache"`
	Fanout  FanoutConfig  `yaml:"fanout"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type CacheConfig struct {
	// Capacity is the maximum number of live entries across all shards.
	Capacity int `yaml:"capacity"`

	// Shards splits the cache. 1 keeps LRU ordering exact for the whole cache.
	Shards int `yaml:"shards"`

	// DefaultTTL applies when a call passes no TTL. Zero means never expire.
	DefaultTTL Duration `yaml:"default_ttl"`

	Eviction   eviction.PolicyType `yaml:"eviction"`
	Expiration expiration.Kind     `yaml:"expiration"`

	// ReapInterval enables the background purge of expired entries. Zero keeps
	// expiry purely lazy.
	ReapInterval Duration `yaml:"reap_interval"`
}

type FanoutConfig struct {
	// MaxConcurrency <= 0 runs every task of a batch at once.
	MaxConcurrency int      `yaml:"max_concurrency"`
	FailFast       bool     `yaml:"fail_fast"`
	Timeout        Duration `yaml:"timeout"`
}

type MetricsConfig struct {
	Namespace string `yaml:"namespace"`

	// Addr is where the demo binary serves /metrics. Empty disables it.
	Addr string `yaml:"addr"`
}

// Default mirrors the weather demo: a handful of keys kept for five minutes.
func Default() Config {
	return Config{
		Cache: CacheConfig{
			Capacity:   128,
			Shards:     1,
			DefaultTTL: Duration(5 * time.Minute),
			Eviction:   eviction.LRU,
			Expiration: expiration.AfterWrite,
		},
		Fanout: FanoutConfig{
			MaxConcurrency: 8,
		},
		Metrics: MetricsConfig{
			Namespace: "fetchcache",
		},
	}
}

// Load reads path and overlays it on Default. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	return c.Fanout.Validate()
}

func (c CacheConfig) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be > 0, got %d", ErrInvalidConfig, c.Capacity)
	}
	if c.Shards < 0 {
		return fmt.Errorf("%w: shards must be >= 0, got %d", ErrInvalidConfig, c.Shards)
	}
	if c.DefaultTTL < 0 || c.ReapInterval < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	if _, err := eviction.ParsePolicyType(string(c.Eviction)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := expiration.New(c.Expiration, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c FanoutConfig) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}
