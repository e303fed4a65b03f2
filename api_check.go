package cache

import (
	"github.com/krisalay/fetchcache/api"
	"github.com/krisalay/fetchcache/fanout"
)

var (
	_ api.Cache    = (*TTLCache)(nil)
	_ api.Executor = (*fanout.Executor)(nil)
)
