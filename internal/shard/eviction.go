package shard

import (
	"errors"
	"math/rand"

	"github.com/samber/lo"

	"github.com/spineldb/spineldb/internal/config"
)

// ErrOOM is returned when a write would exceed maxmemory under the
// no-eviction policy (spec.md §4.3).
var ErrOOM = errors.New("OOM command not allowed when used memory > 'maxmemory'")

// candidate is one sampled key considered for eviction.
type candidate struct {
	key          string
	lastAccessMs int64
	accessCount  uint64
	hasTTL       bool
}

// SampleAndEvict draws `samples` candidates from shard according to
// policy and evicts the single worst one, mirroring spec.md §4.3's
// "sample K candidates, evict the worst" contract. Returns the evicted
// key, or "" if nothing qualified (e.g. volatile-* policies with no
// keys carrying a TTL — that case falls through to ErrOOM for the
// caller to surface).
func SampleAndEvict(sh *Shard, policy string, samples int) (string, error) {
	sh.Mu.Lock()
	defer sh.Mu.Unlock()

	if policy == config.EvictionNone {
		return "", ErrOOM
	}

	pool := buildCandidatePool(sh, policy)
	if len(pool) == 0 {
		return "", ErrOOM
	}

	picked := sampleN(pool, samples)
	worst := worstCandidate(picked, policy)
	if worst == nil {
		return "", ErrOOM
	}

	sh.Delete(worst.key)
	return worst.key, nil
}

func buildCandidatePool(sh *Shard, policy string) []candidate {
	volatileOnly := policy == config.EvictionVolatileLRU ||
		policy == config.EvictionVolatileLFU ||
		policy == config.EvictionVolatileRandom ||
		policy == config.EvictionVolatileTTL

	return lo.FilterMap(lo.Values(sh.entries), func(e *Entry, _ int) (candidate, bool) {
		if volatileOnly && !e.HasExpiration() {
			return candidate{}, false
		}
		return candidate{
			key:          e.Key,
			lastAccessMs: e.LastAccessMs,
			accessCount:  e.AccessCount,
			hasTTL:       e.HasExpiration(),
		}, true
	})
}

func sampleN(pool []candidate, n int) []candidate {
	if n >= len(pool) {
		return pool
	}
	idx := rand.Perm(len(pool))[:n]
	return lo.Map(idx, func(i int, _ int) candidate { return pool[i] })
}

func worstCandidate(pool []candidate, policy string) *candidate {
	if len(pool) == 0 {
		return nil
	}
	var worst candidate
	switch policy {
	case config.EvictionAllKeysLRU, config.EvictionVolatileLRU, config.EvictionVolatileTTL:
		worst = lo.MinBy(pool, func(a, b candidate) bool { return a.lastAccessMs < b.lastAccessMs })
	case config.EvictionAllKeysLFU, config.EvictionVolatileLFU:
		worst = lo.MinBy(pool, func(a, b candidate) bool { return a.accessCount < b.accessCount })
	default: // allkeys-random, volatile-random
		worst = pool[rand.Intn(len(pool))]
	}
	return &worst
}
