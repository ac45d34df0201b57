package shard

import (
	"container/heap"
	"sync"
)

// Shard owns a disjoint slice of the keyspace: a key map, a min-heap
// of expirations for the proactive sweeper, and enough access-order
// bookkeeping to drive LRU/LFU/random eviction. Every field is guarded
// by Mu, following the teacher's one-mutex-per-data-structure
// discipline (storeMutex in internal/redigo/index.go) but scoped to a
// fraction of the keyspace instead of the whole database.
type Shard struct {
	Mu      sync.RWMutex
	entries map[string]*Entry
	expHeap expirationHeap
}

func New() *Shard {
	s := &Shard{entries: make(map[string]*Entry)}
	heap.Init(&s.expHeap)
	return s
}

// Lock/Unlock/RLock/RUnlock are exposed directly via Mu; callers lock
// it themselves (the dispatcher acquires shard locks per spec.md §4.4)
// and none of the methods below take it.

// Get returns the entry for key without checking expiration; callers
// needing expiration semantics should go through Lookup (expire.go),
// which handles lazy deletion per spec.md §4.3.
func (s *Shard) Get(key string) (*Entry, bool) {
	e, ok := s.entries[key]
	return e, ok
}

// Put installs or replaces an entry and, if it carries an expiration,
// pushes it onto the expiration heap.
func (s *Shard) Put(e *Entry) {
	s.entries[e.Key] = e
	if e.HasExpiration() {
		heap.Push(&s.expHeap, heapItem{key: e.Key, expireAtMs: e.ExpireAtMs})
	}
}

func (s *Shard) Delete(key string) {
	delete(s.entries, key)
}

func (s *Shard) Len() int { return len(s.entries) }

// Keys returns a snapshot of all keys currently held (used by FLUSHDB,
// KEYS pattern scans, and snapshots).
func (s *Shard) Keys() []string {
	out := make([]string, 0, len(s.entries))
	for k := range s.entries {
		out = append(out, k)
	}
	return out
}

// PopExpiredBefore pops and returns every heap entry whose expiration
// is at or before nowMs, for the background sweeper (spec.md §4.3).
// Stale heap entries (the key's expiration changed since it was
// pushed) are discarded by comparing against the live entry.
func (s *Shard) PopExpiredBefore(nowMs int64) []string {
	var expired []string
	for s.expHeap.Len() > 0 && s.expHeap[0].expireAtMs <= nowMs {
		item := heap.Pop(&s.expHeap).(heapItem)
		e, ok := s.entries[item.key]
		if !ok || e.ExpireAtMs != item.expireAtMs {
			continue // stale: key deleted or re-expired since push
		}
		expired = append(expired, item.key)
	}
	return expired
}

type heapItem struct {
	key        string
	expireAtMs int64
}

type expirationHeap []heapItem

func (h expirationHeap) Len() int            { return len(h) }
func (h expirationHeap) Less(i, j int) bool  { return h[i].expireAtMs < h[j].expireAtMs }
func (h expirationHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expirationHeap) Push(x any)         { *h = append(*h, x.(heapItem)) }
func (h *expirationHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
