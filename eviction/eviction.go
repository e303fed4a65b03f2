package eviction

import (
	"fmt"
	"strings"
)

/*
Policy decides which key leaves a full shard.

Any eviction algorithm (LRU, LFU, FIFO) obeys this contract so the cache can
drive it uniformly. Policies are NOT safe for concurrent use; the owning shard
serializes every call under its lock.
*/
type Policy interface {

	// OnGet is called whenever a live key is served from the cache.
	// LRU moves the key to the front, LFU bumps its counter, FIFO ignores it.
	OnGet(string)

	// OnPut is called whenever a key is stored.
	OnPut(string)

	// Remove is called when a key leaves the cache for any reason other than
	// Evict (invalidation, expiry).
	Remove(string)

	// Evict picks a victim, forgets it and returns it.
	// It returns "" when nothing is tracked.
	Evict() string

	// Len returns how many keys are tracked.
	Len() int
}

// PolicyType is a simple identifier for supported eviction strategies.
type PolicyType string

const (
	// LRU (Least Recently Used): Evicts the key that has NOT been accessed for the longest time.
	LRU PolicyType = "LRU"

	// LFU (Least Frequently Used): Evicts the key that has been accessed the fewest times.
	LFU PolicyType = "LFU"

	// FIFO (First In First Out): Evicts the oldest inserted key, regardless of access.
	FIFO PolicyType = "FIFO"
)

// ParsePolicyType accepts policy names case-insensitively. Empty means LRU.
func ParsePolicyType(s string) (PolicyType, error) {
	switch t := PolicyType(strings.ToUpper(strings.TrimSpace(s))); t {
	case "":
		return LRU, nil
	case LRU, LFU, FIFO:
		return t, nil
	default:
		return "", fmt.Errorf("unknown eviction policy %q", s)
	}
}

// NewEvictionPolicy creates the policy for t.
func NewEvictionPolicy(t PolicyType) (Policy, error) {
	switch t {
	case LRU, "":
		return newLRU(), nil
	case LFU:
		return newLFU(), nil
	case FIFO:
		return newFIFO(), nil
	default:
		return nil, fmt.Errorf("unknown eviction policy %q", t)
	}
}
