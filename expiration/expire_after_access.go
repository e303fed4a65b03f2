package expiration

import (
	"time"

	"github.com/krisalay/fetchcache/types"
)

/*
ExpireAfterAccess implements "expire after access" or "sliding TTL".
Every time someone reads the data, the expiration timer is pushed forward. As long as the data keeps
getting used, it stays alive. If nobody touches it for a while, it expires.
*/
type ExpireAfterAccess struct {

	// TTL defines how long the entry stays valid AFTER it is accessed.
	TTL time.Duration
}

func (e *ExpireAfterAccess) IsExpired(ent *types.CacheEntry, now time.Time) bool {
	return ent.Expired(now)
}

/*
OnAccess pushes the deadline forward by TTL.
Entries that never had a deadline keep having none.
*/
func (e *ExpireAfterAccess) OnAccess(ent *types.CacheEntry, now time.Time) {
	ent.LastAccessedAt = now
	if e.TTL > 0 && !ent.ExpireAt.IsZero() {
		ent.ExpireAt = now.Add(e.TTL)
	}
}

/*
OnWrite records creation time and sets ExpireAt if the writer did not.
An explicit per-call TTL is never overwritten.
*/
func (e *ExpireAfterAccess) OnWrite(ent *types.CacheEntry, now time.Time) {
	ent.CreatedAt = now
	ent.LastAccessedAt = now
	if ent.ExpireAt.IsZero() && e.TTL > 0 {
		ent.ExpireAt = now.Add(e.TTL)
	}
}
