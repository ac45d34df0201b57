package cache

import "sync"

// VariantMap holds every stored variant of one cache key, keyed by
// VariantHash, capped at a maximum count with least-recently-used
// eviction (spec.md §4.10: "Variant cap ... reaching it evicts the
// least-recently-used variant of that key").
type VariantMap struct {
	mu       sync.Mutex
	maxCount int
	entries  map[string]*Entry
}

func NewVariantMap(maxCount int) *VariantMap {
	return &VariantMap{maxCount: maxCount, entries: make(map[string]*Entry)}
}

func (v *VariantMap) Get(hash string) (*Entry, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.entries[hash]
	return e, ok
}

// Put installs entry under hash, evicting the least-recently-used
// existing variant first if the map is at capacity.
func (v *VariantMap) Put(hash string, entry *Entry) *Entry {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.entries[hash]; !exists && len(v.entries) >= v.maxCount && v.maxCount > 0 {
		v.evictLRULocked()
	}
	v.entries[hash] = entry
	return entry
}

func (v *VariantMap) evictLRULocked() {
	var oldestHash string
	var oldest *Entry
	for h, e := range v.entries {
		if oldest == nil || e.LastAccess.Before(oldest.LastAccess) {
			oldest = e
			oldestHash = h
		}
	}
	if oldestHash != "" {
		delete(v.entries, oldestHash)
	}
}

func (v *VariantMap) Delete(hash string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.entries, hash)
}

func (v *VariantMap) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.entries)
}

// All returns a snapshot of every stored variant, for CACHE.STATS'
// total_variants tally.
func (v *VariantMap) All() []*Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*Entry, 0, len(v.entries))
	for _, e := range v.entries {
		out = append(out, e)
	}
	return out
}

// AllByHash returns a snapshot keyed by variant hash, for CACHE.INFO's
// per-variant listing.
func (v *VariantMap) AllByHash() map[string]*Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]*Entry, len(v.entries))
	for h, e := range v.entries {
		out[h] = e
	}
	return out
}

// AnyStale reports whether any variant's captured tag epoch has fallen
// behind table, the check the background validator runs per key
// instead of waiting for an on-access Lookup.
func (v *VariantMap) AnyStale(table *TagEpochTable) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, e := range v.entries {
		if e.TagsStale(table) {
			return true
		}
	}
	return false
}

// MarkAllStale sets ForcedStale on every variant (CACHE.SOFTPURGE) and
// bumps each one's Version so a racing fetch-in-flight installing an
// older result still loses the compare-and-set.
func (v *VariantMap) MarkAllStale(nextVersion func() uint64) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, e := range v.entries {
		if e.ForcedStale {
			continue
		}
		e.ForcedStale = true
		e.Version = nextVersion()
		n++
	}
	return n
}

// MarkTagStale sets ForcedStale on every variant carrying tag
// (CACHE.SOFTPURGETAG), reporting how many it touched.
func (v *VariantMap) MarkTagStale(tag string, nextVersion func() uint64) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, e := range v.entries {
		if e.ForcedStale || !e.HasTag(tag) {
			continue
		}
		e.ForcedStale = true
		e.Version = nextVersion()
		n++
	}
	return n
}

// KeyStore is the top-level per-key variant table, one VariantMap per
// cache key.
type KeyStore struct {
	mu           sync.RWMutex
	maxVariants  int
	keys         map[string]*VariantMap
}

func NewKeyStore(maxVariantsPerKey int) *KeyStore {
	return &KeyStore{maxVariants: maxVariantsPerKey, keys: make(map[string]*VariantMap)}
}

func (k *KeyStore) VariantsFor(key string) *VariantMap {
	k.mu.RLock()
	vm, ok := k.keys[key]
	k.mu.RUnlock()
	if ok {
		return vm
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if vm, ok := k.keys[key]; ok {
		return vm
	}
	vm = NewVariantMap(k.maxVariants)
	k.keys[key] = vm
	return vm
}

func (k *KeyStore) DeleteKey(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.keys, key)
}

// Peek returns key's VariantMap without creating one if absent, for
// read-only introspection (CACHE.INFO) that shouldn't allocate a slot
// for keys that were never stored.
func (k *KeyStore) Peek(key string) (*VariantMap, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	vm, ok := k.keys[key]
	return vm, ok
}

// Keys returns a snapshot of every stored cache key, for
// CACHE.SOFTPURGETAG's tag scan (this engine has no separate tag
// index, so a purge-by-tag walks every key's variants directly).
func (k *KeyStore) Keys() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]string, 0, len(k.keys))
	for key := range k.keys {
		out = append(out, key)
	}
	return out
}

// SampleKeys returns up to n keys chosen at random, the sampling half
// of the background tag validator (CacheTagValidatorTask's
// VALIDATOR_SAMPLE_SIZE).
func (k *KeyStore) SampleKeys(n int) []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if n >= len(k.keys) {
		out := make([]string, 0, len(k.keys))
		for key := range k.keys {
			out = append(out, key)
		}
		return out
	}
	out := make([]string, 0, n)
	for key := range k.keys {
		if len(out) >= n {
			break
		}
		out = append(out, key)
	}
	return out
}

// TotalVariants sums the variant count across every stored key, for
// CACHE.STATS.
func (k *KeyStore) TotalVariants() int {
	k.mu.RLock()
	vms := make([]*VariantMap, 0, len(k.keys))
	for _, vm := range k.keys {
		vms = append(vms, vm)
	}
	k.mu.RUnlock()

	total := 0
	for _, vm := range vms {
		total += vm.Len()
	}
	return total
}
