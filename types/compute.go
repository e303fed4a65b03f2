package types

import "context"

/*
ComputeFunc is the contract between the cache and whatever produces values.

It is called when the cache misses:
 1. Cache checks memory → key not found (or expired)
 2. Cache marks the key pending and calls the function ONCE
 3. The function fetches from a DB / remote API
 4. Cache stores the result and hands it to every waiter

Errors are never cached. The next caller simply computes again.
*/
type ComputeFunc func(ctx context.Context) (any, error)
