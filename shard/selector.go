package shard

import "hash/fnv"

/*
This file decides HOW a cache key is assigned to a shard.
If every request went to the same shard, that shard would become a bottleneck.
*/

// Selector decides which shard handles a given key.
type Selector interface {
	Select(string, []*Shard) *Shard
}

// HashSelector maps keys to shards by FNV-1a hash. The same key always lands
// on the same shard, which single-flight and LRU bookkeeping rely on.
type HashSelector struct{}

// hash converts a string key into a number. FNV is a fast, non-cryptographic hash commonly used in systems like this.
func hash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

func (HashSelector) Select(key string, shards []*Shard) *Shard {
	if len(shards) == 1 {
		return shards[0]
	}
	return shards[hash(key)%uint32(len(shards))]
}
