// Package cluster implements the slot fabric of spec.md §4.11: the
// 16,384-slot table, HMAC-authenticated gossip membership, the
// MIGRATING/IMPORTING/ASK/MOVED handshake, and quorum-driven
// self-fencing. No repo in the retrieved pack implements Redis-style
// clustering, so the wire shapes are grounded directly on spec.md
// §4.11's own prose; the node config file is YAML via gopkg.in/yaml.v3,
// and
// slot-migration payloads reuse internal/spldb's value codec so a
// migrated key round-trips through the exact same encode/decode path
// a snapshot would.
package cluster

import "sync"

// Phase is a slot's migration state.
type Phase int

const (
	Stable Phase = iota
	Migrating
	Importing
)

// SlotInfo is one slot table entry.
type SlotInfo struct {
	Owner string // node id
	Phase Phase
	Peer  string // migration target (Migrating) or source (Importing); empty when Stable
}

// Table is the 16,384-entry slot-ownership table, updated by CLUSTER
// ADDSLOTS/SETSLOT, gossip, and failover.
type Table struct {
	mu    sync.RWMutex
	slots [slotCount]SlotInfo
}

func NewTable() *Table {
	return &Table{}
}

func (t *Table) Get(slot int) SlotInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.slots[slot]
}

// AddSlots assigns owner to each of the given slots (CLUSTER ADDSLOTS).
func (t *Table) AddSlots(owner string, slots []int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range slots {
		t.slots[s] = SlotInfo{Owner: owner}
	}
}

// SetMigrating marks slot as migrating away to target (CLUSTER SETSLOT
// s MIGRATING target), run on the source node.
func (t *Table) SetMigrating(slot int, target string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[slot].Phase = Migrating
	t.slots[slot].Peer = target
}

// SetImporting marks slot as being imported from source (CLUSTER
// SETSLOT s IMPORTING source), run on the target node.
func (t *Table) SetImporting(slot int, source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[slot].Phase = Importing
	t.slots[slot].Peer = source
}

// SetOwner completes a migration: CLUSTER SETSLOT s NODE newOwner,
// clearing any migration phase.
func (t *Table) SetOwner(slot int, owner string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[slot] = SlotInfo{Owner: owner}
}

// Snapshot returns a copy of the full table, for gossip payloads and
// the config file.
func (t *Table) Snapshot() [slotCount]SlotInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.slots
}

// Restore replaces the table wholesale, used on config-file load.
func (t *Table) Restore(slots [slotCount]SlotInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots = slots
}

// KeysSlot computes the common slot for a set of keys, per spec.md
// §4.4 point 2: all keys must hash to the same slot (owing to a
// shared hash tag or being the same key), else CROSSSLOT.
func KeysSlot(keys []string) (slot int, ok bool) {
	if len(keys) == 0 {
		return 0, true
	}
	slot = Slot(keys[0])
	for _, k := range keys[1:] {
		if Slot(k) != slot {
			return 0, false
		}
	}
	return slot, true
}
