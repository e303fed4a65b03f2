package shard

import (
	"sync/atomic"

	"github.com/krisalay/fetchcache/types"
)

/*
This file defines how data is actually stored inside a shard.
Every read in the cache also touches recency or a sliding deadline, so reads
and writes both go through Shard.Mu. The store is therefore a plain map and
does no locking of its own.
*/

// ShardStore is the interface used by a shard to store and retrieve cache entries.
// Implementations are not safe for concurrent use; the shard lock serializes them.
type ShardStore interface {

	// Get retrieves an entry by key.
	Get(string) (*types.CacheEntry, bool)

	// Put inserts or replaces an entry.
	Put(string, *types.CacheEntry)

	// Delete removes an entry and returns it.
	Delete(string) (*types.CacheEntry, bool)

	// Range calls fn for every entry until fn returns false.
	// fn may delete the entry it was given.
	Range(fn func(string, *types.CacheEntry) bool)

	// Size returns how many entries are stored. Safe without the lock.
	Size() int64
}

// mapStore is the map-backed ShardStore.
type mapStore struct {
	data map[string]*types.CacheEntry

	// size mirrors len(data) so Size can be read without Shard.Mu.
	size atomic.Int64
}

func NewMapStore() *mapStore {
	return &mapStore{data: make(map[string]*types.CacheEntry)}
}

func (s *mapStore) Get(key string) (*types.CacheEntry, bool) {
	ent, ok := s.data[key]
	return ent, ok
}

func (s *mapStore) Put(key string, ent *types.CacheEntry) {
	s.data[key] = ent
	s.size.Store(int64(len(s.data)))
}

func (s *mapStore) Delete(key string) (*types.CacheEntry, bool) {
	ent, ok := s.data[key]
	if !ok {
		return nil, false
	}
	delete(s.data, key)
	s.size.Store(int64(len(s.data)))
	return ent, true
}

func (s *mapStore) Range(fn func(string, *types.CacheEntry) bool) {
	for k, v := range s.data {
		if !fn(k, v) {
			return
		}
	}
}

func (s *mapStore) Size() int64 {
	return s.size.Load()
}
