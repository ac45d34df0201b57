// Package store implements the typed value variants of spec.md §3/§4.2:
// String, List, Hash, Set, SortedSet, Stream, JsonDocument, Hll and
// BloomFilter, each behind the Value interface below.
//
// The tagged-union shape (a Kind discriminator plus per-variant Go
// types) follows internal/redigo/types.RedigoStorableValues in the
// teacher, generalized from three variants (RedigoString, RedigoBool,
// RedigoInt) to the nine the spec names.
package store

import "fmt"

// Kind discriminates a Value's concrete representation.
type Kind int

const (
	KindString Kind = iota
	KindList
	KindHash
	KindSet
	KindSortedSet
	KindStream
	KindJSON
	KindHll
	KindBloom
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindHash:
		return "hash"
	case KindSet:
		return "set"
	case KindSortedSet:
		return "zset"
	case KindStream:
		return "stream"
	case KindJSON:
		return "json"
	case KindHll:
		return "hll"
	case KindBloom:
		return "bloom"
	default:
		return "unknown"
	}
}

// Value is the common interface every storage container satisfies.
// Command handlers type-switch (or type-assert with a WRONGTYPE
// fallback) on the concrete type, the same "match on the tag" pattern
// spec.md §9 prescribes for command dispatch.
type Value interface {
	Kind() Kind
}

// ErrWrongType describes a key that exists with an incompatible Kind,
// the WRONGTYPE condition of spec.md §7. Command handlers report that
// condition through dispatch's KindWrongType error (server's
// wrongType()), not through this type.
type ErrWrongType struct {
	Want, Have Kind
}

func (e *ErrWrongType) Error() string {
	return fmt.Sprintf("WRONGTYPE Operation against a key holding the wrong kind of value (want %s, have %s)", e.Want, e.Have)
}

// Str is the String variant: a byte buffer.
type Str []byte

func (Str) Kind() Kind { return KindString }

// List is an ordered sequence of byte buffers.
type List struct {
	Items [][]byte
}

func (*List) Kind() Kind { return KindList }

func NewList() *List { return &List{} }

// Hash is an insertion-ordered byte-buffer -> byte-buffer mapping;
// insertion order is preserved via a parallel key slice so HSCAN
// cursors are stable within one scan lifetime (spec.md §4.2).
type Hash struct {
	keys   []string
	values map[string][]byte
}

func NewHash() *Hash {
	return &Hash{values: make(map[string][]byte)}
}

func (*Hash) Kind() Kind { return KindHash }

func (h *Hash) Set(field string, value []byte) (created bool) {
	if _, exists := h.values[field]; !exists {
		h.keys = append(h.keys, field)
		created = true
	}
	h.values[field] = value
	return created
}

func (h *Hash) Get(field string) ([]byte, bool) {
	v, ok := h.values[field]
	return v, ok
}

func (h *Hash) Del(field string) bool {
	if _, ok := h.values[field]; !ok {
		return false
	}
	delete(h.values, field)
	for i, k := range h.keys {
		if k == field {
			h.keys = append(h.keys[:i], h.keys[i+1:]...)
			break
		}
	}
	return true
}

func (h *Hash) Len() int { return len(h.keys) }

// Fields returns fields in stable insertion order.
func (h *Hash) Fields() []string {
	out := make([]string, len(h.keys))
	copy(out, h.keys)
	return out
}

// Set is an unordered set of byte buffers, stored insertion-ordered
// for the same SSCAN-stability reason as Hash.
type Set struct {
	order   []string
	members map[string]struct{}
}

func NewSet() *Set {
	return &Set{members: make(map[string]struct{})}
}

func (*Set) Kind() Kind { return KindSet }

func (s *Set) Add(member string) (added bool) {
	if _, ok := s.members[member]; ok {
		return false
	}
	s.members[member] = struct{}{}
	s.order = append(s.order, member)
	return true
}

func (s *Set) Remove(member string) bool {
	if _, ok := s.members[member]; !ok {
		return false
	}
	delete(s.members, member)
	for i, m := range s.order {
		if m == member {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *Set) Has(member string) bool {
	_, ok := s.members[member]
	return ok
}

func (s *Set) Len() int { return len(s.order) }

func (s *Set) Members() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
