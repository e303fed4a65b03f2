// This file defines how cache entries expire over time.

package expiration

import (
	"fmt"
	"strings"
	"time"

	"github.com/krisalay/fetchcache/types"
)

/*
Strategy is the interface that all expiration rules must follow. Instead of hard-coding
expiration logic into the cache, we define a strategy so expiration behavior can be swapped easily.

Strategies are called with the owning shard locked.
*/
type Strategy interface {

	// IsExpired checks if the entry is expired
	IsExpired(*types.CacheEntry, time.Time) bool

	// OnAccess is called whenever a cache entry is read successfully.
	OnAccess(*types.CacheEntry, time.Time)

	// OnWrite is called whenever a cache entry is written or updated.
	// An ExpireAt already set by the caller (explicit TTL) must be kept.
	OnWrite(*types.CacheEntry, time.Time)
}

// Kind names a strategy in configuration.
type Kind string

const (
	AfterWrite  Kind = "after-write"
	AfterAccess Kind = "after-access"
)

// New builds the strategy for kind with ttl as its default TTL.
// An empty kind means AfterWrite.
func New(kind Kind, ttl time.Duration) (Strategy, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(string(kind)))) {
	case AfterWrite, "":
		return &ExpireAfterWrite{TTL: ttl}, nil
	case AfterAccess:
		return &ExpireAfterAccess{TTL: ttl}, nil
	default:
		return nil, fmt.Errorf("unknown expiration strategy %q", kind)
	}
}
