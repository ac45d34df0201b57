package dispatch

import (
	"sort"

	"github.com/spineldb/spineldb/internal/shard"
)

// lockPlan is the deduplicated, ascending-sorted set of shard indices
// a command's key-set touches (spec.md §4.4 point 3: "collect the
// distinct shard indices, sort ascending, acquire each in that order"
// — this is what makes multi-key locking deadlock-free).
func lockPlan(db *shard.Database, keys []string) []int {
	seen := make(map[int]struct{}, len(keys))
	for _, k := range keys {
		seen[db.Index(k)] = struct{}{}
	}
	indices := make([]int, 0, len(seen))
	for idx := range seen {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices
}

// acquireLocks locks every shard in indices, in order, in the
// requested mode, and returns a release function that unlocks them in
// reverse order on every exit path (success, error, or panic) — the
// panic-safety spec.md §3 Invariants requires.
func acquireLocks(db *shard.Database, indices []int, write bool) (map[int]*shard.Shard, func()) {
	locked := make(map[int]*shard.Shard, len(indices))
	for _, idx := range indices {
		sh := db.Shards[idx]
		if write {
			sh.Mu.Lock()
		} else {
			sh.Mu.RLock()
		}
		locked[idx] = sh
	}
	release := func() {
		for i := len(indices) - 1; i >= 0; i-- {
			sh := locked[indices[i]]
			if write {
				sh.Mu.Unlock()
			} else {
				sh.Mu.RUnlock()
			}
		}
	}
	return locked, release
}
