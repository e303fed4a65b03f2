// This file implements LFU eviction.

package eviction

import "container/list"

// lfuNode represents one key tracked by LFU.
type lfuNode struct {
	key  string
	freq int
	el   *list.Element // position inside buckets[freq]
}

// lfu groups keys by access count. Inside a bucket keys are kept in recency
// order so ties are broken by evicting the least recently used one.
type lfu struct {
	nodes   map[string]*lfuNode
	buckets map[int]*list.List

	// minFreq is the smallest frequency currently present.
	minFreq int
}

func newLFU() *lfu {
	return &lfu{
		nodes:   make(map[string]*lfuNode),
		buckets: make(map[int]*list.List),
	}
}

func (l *lfu) OnGet(k string) {
	n, ok := l.nodes[k]
	if !ok {
		return
	}
	old := n.freq
	l.unlink(n)
	if old == l.minFreq && l.buckets[old] == nil {
		l.minFreq++
	}
	n.freq++
	l.link(n)
}

// OnPut starts a new key at frequency 1. A recomputed key counts as an access.
func (l *lfu) OnPut(k string) {
	if _, ok := l.nodes[k]; ok {
		l.OnGet(k)
		return
	}
	n := &lfuNode{key: k, freq: 1}
	l.nodes[k] = n
	l.link(n)
	l.minFreq = 1
}

// Evict removes the least recently used key of the lowest frequency.
func (l *lfu) Evict() string {
	if len(l.nodes) == 0 {
		return ""
	}
	b := l.buckets[l.minFreq]
	if b == nil {
		l.recomputeMin()
		b = l.buckets[l.minFreq]
	}
	n := b.Back().Value.(*lfuNode)
	l.unlink(n)
	delete(l.nodes, n.key)
	return n.key
}

func (l *lfu) Remove(k string) {
	n, ok := l.nodes[k]
	if !ok {
		return
	}
	l.unlink(n)
	delete(l.nodes, k)
}

func (l *lfu) Len() int { return len(l.nodes) }

func (l *lfu) link(n *lfuNode) {
	b := l.buckets[n.freq]
	if b == nil {
		b = list.New()
		l.buckets[n.freq] = b
	}
	n.el = b.PushFront(n)
}

// unlink drops n from its bucket and deletes the bucket once empty.
func (l *lfu) unlink(n *lfuNode) {
	b := l.buckets[n.freq]
	b.Remove(n.el)
	n.el = nil
	if b.Len() == 0 {
		delete(l.buckets, n.freq)
	}
}

// recomputeMin is only needed after Remove emptied the minimum bucket.
func (l *lfu) recomputeMin() {
	l.minFreq = 0
	for f := range l.buckets {
		if l.minFreq == 0 || f < l.minFreq {
			l.minFreq = f
		}
	}
}
