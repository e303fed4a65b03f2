package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/krisalay/fetchcache/fanout"
)

/*
Memoize wraps fn so every call goes through c.

	weather := cache.Memoize(c, fetchWeather, 5*time.Minute)
	w, err := weather(ctx, "New York") // computed
	w, err = weather(ctx, "New York")  // served from c

Keys are used verbatim, so two functions memoized on the same cache must not
share key spaces.
*/
func Memoize[V any](
	c *TTLCache,
	fn func(ctx context.Context, key string) (V, error),
	ttl time.Duration,
) func(context.Context, string) (V, error) {
	return func(ctx context.Context, key string) (V, error) {
		var zero V

		v, err := c.GetOrCompute(ctx, key, func(ctx context.Context) (any, error) {
			return fn(ctx, key)
		}, ttl)
		if err != nil {
			return zero, err
		}
		if v == nil {
			return zero, nil
		}

		out, ok := v.(V)
		if !ok {
			return zero, fmt.Errorf("cached value for %q is %T, want %T", key, v, zero)
		}
		return out, nil
	}
}

/*
GetOrComputeAll fetches many keys concurrently, each one through c.

Results are positional: results[i] belongs to keys[i]. Keys already cached
are served without calling fn; duplicate keys in the same batch share one
computation.
*/
func GetOrComputeAll(
	ctx context.Context,
	c *TTLCache,
	exec *fanout.Executor,
	keys []string,
	fn func(ctx context.Context, key string) (any, error),
	ttl time.Duration,
	opts fanout.Options,
) ([]fanout.TaskResult, error) {
	tasks := make([]fanout.Task, len(keys))
	for i, key := range keys {
		tasks[i] = fanout.Task{
			ID: key,
			Fn: func(ctx context.Context) (any, error) {
				return c.GetOrCompute(ctx, key, func(ctx context.Context) (any, error) {
					return fn(ctx, key)
				}, ttl)
			},
		}
	}
	return exec.RunAll(ctx, tasks, opts)
}
