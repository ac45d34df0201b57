package cluster

import (
	"bytes"
	"fmt"

	"github.com/spineldb/spineldb/internal/shard"
	"github.com/spineldb/spineldb/internal/spldb"
)

// SerializeKey encodes one key's value for MIGRATE's wire transfer,
// reusing internal/spldb's binary value codec so a migrated key is
// indistinguishable on the wire from one round-tripped through a
// snapshot (spec.md §4.11 step 2: "serialize value, RESTORE on T, DEL
// on S").
func SerializeKey(db *shard.Database, key string) (payload []byte, expireAtMs int64, found bool, err error) {
	s := db.ShardFor(key)
	s.Mu.RLock()
	e, ok := s.Get(key)
	if !ok {
		s.Mu.RUnlock()
		return nil, 0, false, nil
	}
	value := e.Value
	expireAtMs = e.ExpireAtMs
	s.Mu.RUnlock()

	var buf bytes.Buffer
	if err := spldb.EncodeValue(&buf, value); err != nil {
		return nil, 0, false, fmt.Errorf("cluster: serializing key %q for migration: %w", key, err)
	}
	return buf.Bytes(), expireAtMs, true, nil
}

// RestoreKey decodes a MIGRATE payload and installs it under key on
// the target node, failing if the key already exists (MIGRATE never
// silently overwrites).
func RestoreKey(db *shard.Database, key string, payload []byte, expireAtMs int64, nowMs int64) error {
	value, err := spldb.DecodeValue(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("cluster: decoding migrated key %q: %w", key, err)
	}

	s := db.ShardFor(key)
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if _, exists := s.Get(key); exists {
		return fmt.Errorf("BUSYKEY Target key name already exists")
	}
	s.Put(&shard.Entry{Key: key, Value: value, ExpireAtMs: expireAtMs, LastAccessMs: nowMs})
	return nil
}

// DeleteKey removes key from the source node after a successful
// RESTORE, completing the MIGRATE handshake's third step.
func DeleteKey(db *shard.Database, key string) {
	s := db.ShardFor(key)
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.Delete(key)
}

// KeysInSlot returns every key in db currently hashing to slot, the
// candidate set MIGRATE walks when moving an entire slot (spec.md
// §4.11 step 2: "For each key in slot s on S").
func KeysInSlot(db *shard.Database, slot int) []string {
	var out []string
	for _, sh := range db.Shards {
		sh.Mu.RLock()
		for _, k := range sh.Keys() {
			if Slot(k) == slot {
				out = append(out, k)
			}
		}
		sh.Mu.RUnlock()
	}
	return out
}
