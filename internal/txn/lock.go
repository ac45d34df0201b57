package txn

import (
	"sort"

	"github.com/spineldb/spineldb/internal/shard"
)

// lockPlan mirrors dispatch's deduplicated ascending shard-index plan
// (spec.md §4.4 point 3); EXEC always takes write locks, so unlike
// dispatch.lockPlan there is no read/write split to carry here.
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

func acquireWriteLocks(db *shard.Database, indices []int) map[int]*shard.Shard {
	locked := make(map[int]*shard.Shard, len(indices))
	for _, idx := range indices {
		sh := db.Shards[idx]
		sh.Mu.Lock()
		locked[idx] = sh
	}
	return locked
}

func releaseWriteLocks(db *shard.Database, indices []int, locked map[int]*shard.Shard) {
	for i := len(indices) - 1; i >= 0; i-- {
		locked[indices[i]].Mu.Unlock()
	}
}
