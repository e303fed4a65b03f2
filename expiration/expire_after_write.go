package expiration

import (
	"time"

	"github.com/krisalay/fetchcache/types"
)

// ExpireAfterWrite gives every entry a fixed lifetime counted from the moment
// it was stored. Reads never extend it, so a value is recomputed once per TTL
// no matter how hot the key is.
type ExpireAfterWrite struct {
	// TTL applies when the writer did not pass one. Zero means never expire.
	TTL time.Duration
}

func (e *ExpireAfterWrite) IsExpired(ent *types.CacheEntry, now time.Time) bool {
	return ent.Expired(now)
}

func (e *ExpireAfterWrite) OnAccess(ent *types.CacheEntry, now time.Time) {
	ent.LastAccessedAt = now
}

func (e *ExpireAfterWrite) OnWrite(ent *types.CacheEntry, now time.Time) {
	ent.CreatedAt = now
	ent.LastAccessedAt = now
	if ent.ExpireAt.IsZero() && e.TTL > 0 {
		ent.ExpireAt = now.Add(e.TTL)
	}
}
