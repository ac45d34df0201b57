package cache

import "sync"

// TagEpochTable is the local half of spec.md §4.10's tag invalidation:
// CACHE.PURGETAG bumps a tag's epoch here; the cluster bus (§4.11)
// propagates the same bump to other nodes as an opaque command.
type TagEpochTable struct {
	mu     sync.RWMutex
	epochs map[string]uint64
}

func NewTagEpochTable() *TagEpochTable {
	return &TagEpochTable{epochs: make(map[string]uint64)}
}

func (t *TagEpochTable) Epoch(tag string) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.epochs[tag]
}

// Bump increments tag's epoch and returns the new value, invalidating
// every entry that captured an older epoch for it.
func (t *TagEpochTable) Bump(tag string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.epochs[tag]++
	return t.epochs[tag]
}

// SetEpoch installs an epoch received from gossip/cluster propagation,
// only advancing (never regressing) the local value.
func (t *TagEpochTable) SetEpoch(tag string, epoch uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if epoch > t.epochs[tag] {
		t.epochs[tag] = epoch
	}
}

// Snapshot captures tag epochs at store time, for Entry.Tags.
func (t *TagEpochTable) Snapshot(tags []string) map[string]uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]uint64, len(tags))
	for _, tag := range tags {
		out[tag] = t.epochs[tag]
	}
	return out
}
