package listener

/*
Sync forwards every removal to the wrapped function immediately.

So the flow is: cache removal → callback (synchronous)
If the callback is slow, Invalidate and GetOrCompute become slow.
*/
type Sync struct {
	fn Func
}

func NewSync(fn Func) *Sync {
	return &Sync{fn: fn}
}

func (s *Sync) OnRemove(key string, value any, reason Reason) {
	s.fn(key, value, reason)
}

// Close has nothing to clean up: Sync does not use background workers.
func (s *Sync) Close() {}
