// This file implements FIFO eviction.

package eviction

import "container/list"

// fifo evicts in insertion order. Reads never reorder anything.
// This mirrors a cache that only tracks insertion recency.
type fifo struct {
	// queue front is the oldest key.
	queue *list.List
	items map[string]*list.Element
}

func newFIFO() *fifo {
	return &fifo{
		queue: list.New(),
		items: make(map[string]*list.Element),
	}
}

// OnGet: FIFO ignores reads completely.
func (f *fifo) OnGet(string) {}

// OnPut only cares about the first insertion of a key.
func (f *fifo) OnPut(k string) {
	if _, ok := f.items[k]; ok {
		return
	}
	f.items[k] = f.queue.PushBack(k)
}

func (f *fifo) Evict() string {
	el := f.queue.Front()
	if el == nil {
		return ""
	}
	k := el.Value.(string)
	f.queue.Remove(el)
	delete(f.items, k)
	return k
}

func (f *fifo) Remove(k string) {
	if el, ok := f.items[k]; ok {
		f.queue.Remove(el)
		delete(f.items, k)
	}
}

func (f *fifo) Len() int { return f.queue.Len() }
