package listener

import (
	"sync"
	"sync/atomic"
)

// removal represents one pending notification.
type removal struct {
	key    string
	value  any
	reason Reason
}

/*
Async delivers removals on a background worker.
*/
type Async struct {
	fn Func

	// ch is a buffered channel holding pending notifications.
	// Buffering absorbs bursts of evictions without blocking the cache.
	ch chan removal

	// dropped counts notifications discarded because the buffer was full.
	dropped atomic.Int64

	// mu guards closed so no send races with close(ch).
	mu     sync.RWMutex
	closed bool

	wg sync.WaitGroup
}

// NewAsync starts one worker that calls fn for every queued removal.
func NewAsync(fn Func, buffer int) *Async {
	if buffer <= 0 {
		buffer = 1
	}
	a := &Async{
		fn: fn,
		ch: make(chan removal, buffer),
	}

	a.wg.Add(1)
	go a.worker()

	return a
}

// OnRemove queues the notification. If the queue is full the notification is
// DROPPED: blocking here would make the cache as slow as the listener.
func (a *Async) OnRemove(key string, value any, reason Reason) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.dropped.Add(1)
		return
	}

	select {
	case a.ch <- removal{key, value, reason}:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns how many notifications were discarded under pressure.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

func (a *Async) worker() {
	defer a.wg.Done()

	for r := range a.ch {
		a.fn(r.key, r.value, r.reason)
	}
}

/*
Close stops accepting notifications and waits for the worker to drain the queue.
Notifications arriving after Close are counted as dropped.
*/
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()

	a.wg.Wait()
}
