package config

import (
	"sort"
	"sync"
)

// PolicyStore is the runtime-mutable counterpart to the cache.policy[]
// entries Load parses from the overlay: CACHE.POLICY SET/DEL can add,
// replace, or remove entries at runtime on top of whatever the config
// file seeded. Entries are always kept sorted by descending Priority,
// the same insert-then-stable-sort discipline SpinelDB's cache policy
// table uses so the highest-priority match always wins ties without
// resolvePolicy having to scan for the max on every lookup.
type PolicyStore struct {
	mu       sync.RWMutex
	policies []CachePolicy
}

// NewPolicyStore seeds a store from the policies Load parsed out of
// the config file.
func NewPolicyStore(initial []CachePolicy) *PolicyStore {
	s := &PolicyStore{policies: append([]CachePolicy(nil), initial...)}
	s.sortLocked()
	return s
}

func (s *PolicyStore) sortLocked() {
	sort.SliceStable(s.policies, func(i, j int) bool {
		return s.policies[i].Priority > s.policies[j].Priority
	})
}

// All returns a snapshot of every policy, highest priority first.
func (s *PolicyStore) All() []CachePolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CachePolicy, len(s.policies))
	copy(out, s.policies)
	return out
}

// Get returns the policy named name, if any.
func (s *PolicyStore) Get(name string) (CachePolicy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.policies {
		if p.Name == name {
			return p, true
		}
	}
	return CachePolicy{}, false
}

// Set installs p, replacing any existing policy of the same name, and
// re-sorts by priority. It reports whether p was disabling prewarm on
// an existing policy that had it enabled, so the caller can clean up
// any prewarm bookkeeping keyed on the old pattern.
func (s *PolicyStore) Set(p CachePolicy) (prewarmDisabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.policies {
		if existing.Name == p.Name {
			prewarmDisabled = existing.Prewarm && !p.Prewarm
			s.policies[i] = p
			s.sortLocked()
			return prewarmDisabled
		}
	}
	s.policies = append(s.policies, p)
	s.sortLocked()
	return false
}

// Del removes the named policy, reporting whether it existed and
// whether it had Prewarm set (for the same cleanup as Set).
func (s *PolicyStore) Del(name string) (removed bool, hadPrewarm bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.policies {
		if p.Name == name {
			hadPrewarm = p.Prewarm
			s.policies = append(s.policies[:i], s.policies[i+1:]...)
			return true, hadPrewarm
		}
	}
	return false, false
}

// Names lists every policy name, in priority order.
func (s *PolicyStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.policies))
	for i, p := range s.policies {
		names[i] = p.Name
	}
	return names
}

// Match returns the highest-priority policy whose KeyPattern matches
// key, following the first-match-wins order All() already sorted by
// descending priority.
func (s *PolicyStore) Match(key string, matcher func(pattern, key string) bool) (CachePolicy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.policies {
		if matcher(p.KeyPattern, key) {
			return p, true
		}
	}
	return CachePolicy{}, false
}

