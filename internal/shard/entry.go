// Package shard implements the fixed-N shard partition of spec.md §3
// and §4.3: a keyspace partition with its own lock, expiration index,
// and eviction bookkeeping. It generalizes the teacher's single
// global RedigoDB.store/expirationKeys pair (internal/redigo/index.go)
// into N independently-lockable partitions.
package shard

import (
	"github.com/spineldb/spineldb/internal/store"
)

// Metadata carries per-key cache extras beyond the bare value: vary
// headers and captured tag epochs. Nothing in the codebase sets
// Entry.Meta, so it stays nil.
type Metadata struct {
	CacheVaryHeaders []string
	CacheTags        map[string]uint64 // tag -> epoch captured at store time
}

// Entry is one key's full record within a shard.
type Entry struct {
	Key        string
	Value      store.Value
	ExpireAtMs int64 // 0 means no expiration
	Version    uint64
	Meta       *Metadata

	// Eviction bookkeeping (spec.md §4.3).
	LastAccessMs int64
	AccessCount  uint64
}

// HasExpiration reports whether the entry carries a TTL.
func (e *Entry) HasExpiration() bool { return e.ExpireAtMs > 0 }

// ExpiredAt reports whether the entry's expiration has passed nowMs.
func (e *Entry) ExpiredAt(nowMs int64) bool {
	return e.HasExpiration() && e.ExpireAtMs <= nowMs
}

// Touch records an access for LRU/LFU bookkeeping.
func (e *Entry) Touch(nowMs int64) {
	e.LastAccessMs = nowMs
	e.AccessCount++
}
