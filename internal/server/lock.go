package server

import (
	"crypto/rand"
	"encoding/hex"
	"sort"

	"github.com/spineldb/spineldb/internal/shard"
)

// uniqueShardIndices mirrors internal/dispatch's lockPlan for the
// out-of-band AOF-replay execution path (Dispatch0), which runs
// outside the normal per-connection Dispatcher.Dispatch call.
func uniqueShardIndices(db *shard.Database, keys []string) []int {
	seen := make(map[int]struct{}, len(keys))
	for _, k := range keys {
		seen[db.Index(k)] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for idx := range seen {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

func lockAllWrite(db *shard.Database, indices []int) map[int]*shard.Shard {
	locked := make(map[int]*shard.Shard, len(indices))
	for _, idx := range indices {
		sh := db.Shards[idx]
		sh.Mu.Lock()
		locked[idx] = sh
	}
	return locked
}

func unlockAllWrite(db *shard.Database, indices []int, locked map[int]*shard.Shard) {
	for i := len(indices) - 1; i >= 0; i-- {
		locked[indices[i]].Mu.Unlock()
	}
}

// generateNodeID mints a random 40-character hex node ID, the same
// width Redis Cluster uses, grounded on repl.generateReplID's
// crypto/rand + hex shape (internal/repl/primary.go).
func generateNodeID() string {
	b := make([]byte, 20)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
