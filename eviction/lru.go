// This file implements LRU eviction.

package eviction

import "container/list"

// lru keeps keys in a doubly-linked list.
// Front = most recently used, Back = least recently used.
type lru struct {
	// items maps keys to their list elements so touches are O(1).
	items map[string]*list.Element
	order *list.List
}

func newLRU() *lru {
	return &lru{
		items: make(map[string]*list.Element),
		order: list.New(),
	}
}

// OnGet marks k as the most recently used key.
func (l *lru) OnGet(k string) {
	if el, ok := l.items[k]; ok {
		l.order.MoveToFront(el)
	}
}

// OnPut tracks a new key as most recently used.
// Re-storing an existing key (after a recompute) also counts as use.
func (l *lru) OnPut(k string) {
	if el, ok := l.items[k]; ok {
		l.order.MoveToFront(el)
		return
	}
	l.items[k] = l.order.PushFront(k)
}

// Evict removes the LEAST recently used key, which always sits at the back.
func (l *lru) Evict() string {
	el := l.order.Back()
	if el == nil {
		return ""
	}
	k := el.Value.(string)
	l.order.Remove(el)
	delete(l.items, k)
	return k
}

func (l *lru) Remove(k string) {
	if el, ok := l.items[k]; ok {
		l.order.Remove(el)
		delete(l.items, k)
	}
}

func (l *lru) Len() int { return l.order.Len() }
