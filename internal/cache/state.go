// Package cache implements the HTTP-aware caching engine of spec.md
// §4.10: the Fresh/Stale/Grace/Expired lifecycle, variant maps keyed
// by a Vary-header hash, tag-epoch invalidation, stampede coalescing,
// and an on-disk body manifest with GC.
//
// No pack repo other than the original Rust implementation this spec
// was distilled from carries an HTTP cache; this package follows that
// original's core/storage/cache_types.rs (variant/tag-epoch entry
// shape), core/tasks/cache_tag_validator.rs (background staleness
// sampling) and core/commands/cache/*.rs (the CACHE.* surface) for
// anything spec.md §4.10 leaves ambiguous. The one piece of ecosystem
// wiring available in the retrieved Go pack is golang.org/x/text
// (language.Parse, cases.Fold), used here for exactly the
// locale-aware Vary-header normalization spec.md §4.10 calls for, per
// SPEC_FULL.md's DOMAIN STACK entry.
package cache

import "time"

// State is a cache entry's lifecycle stage at a point in time.
type State int

const (
	Fresh State = iota
	Stale
	Grace
	Expired
)

// Policy bundles the timing windows one cache.policy entry configures
// (spec.md §6), used both by explicit CACHE.GET/CACHE.PROXY calls and
// by policy-matched requests.
type Policy struct {
	Name         string
	TTL          time.Duration
	SWR          time.Duration
	Grace        time.Duration
	NegativeTTL  time.Duration
	Tags         []string
	VaryOn       []string
	MaxSizeBytes int64
	ForceDisk    bool
}

// ComputeState implements the exact boundaries spec.md §4.10 defines:
//
//	Fresh   if now - t0 <  ttl
//	Stale   if ttl <= now - t0 < ttl+swr
//	Grace   if ttl+swr <= now - t0 < ttl+swr+grace
//	Expired otherwise
func ComputeState(storedAt, now time.Time, p Policy) State {
	age := now.Sub(storedAt)
	switch {
	case age < p.TTL:
		return Fresh
	case age < p.TTL+p.SWR:
		return Stale
	case age < p.TTL+p.SWR+p.Grace:
		return Grace
	default:
		return Expired
	}
}
