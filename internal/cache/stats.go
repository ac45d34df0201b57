package cache

import "sync/atomic"

// Stats holds the running counters CACHE.STATS reports, mirroring the
// hits/misses/stale_hits/revalidations/evictions tally SpinelDB's
// cache state keeps alongside its policy table.
type Stats struct {
	hits          uint64
	misses        uint64
	staleHits     uint64
	revalidations uint64
	evictions     uint64
}

// StatsSnapshot is a point-in-time read of Stats plus the derived and
// engine-wide figures CACHE.STATS bundles into one reply.
type StatsSnapshot struct {
	Hits           uint64
	Misses         uint64
	HitRatio       float64
	StaleHits      uint64
	Revalidations  uint64
	Evictions      uint64
	TotalVariants  int
	PoliciesCount  int
}

func (s *Stats) recordHit()          { atomic.AddUint64(&s.hits, 1) }
func (s *Stats) recordMiss()         { atomic.AddUint64(&s.misses, 1) }
func (s *Stats) recordStaleHit()     { atomic.AddUint64(&s.staleHits, 1) }
func (s *Stats) recordRevalidation() { atomic.AddUint64(&s.revalidations, 1) }
func (s *Stats) recordEviction()     { atomic.AddUint64(&s.evictions, 1) }

// Stats returns a snapshot of e's counters plus the current variant
// and policy counts. policiesCount is supplied by the caller since
// runtime policy storage lives in internal/config, outside this
// package.
func (e *Engine) Stats(policiesCount int) StatsSnapshot {
	hits := atomic.LoadUint64(&e.stats.hits)
	misses := atomic.LoadUint64(&e.stats.misses)
	var ratio float64
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}
	return StatsSnapshot{
		Hits:          hits,
		Misses:        misses,
		HitRatio:      ratio,
		StaleHits:     atomic.LoadUint64(&e.stats.staleHits),
		Revalidations: atomic.LoadUint64(&e.stats.revalidations),
		Evictions:     atomic.LoadUint64(&e.stats.evictions),
		TotalVariants: e.keys.TotalVariants(),
		PoliciesCount: policiesCount,
	}
}
