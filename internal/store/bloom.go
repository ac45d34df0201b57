package store

import (
	"hash/fnv"
	"math"
)

// BloomFilter is a bit array with k hash functions, sized from a
// target capacity and error rate per spec.md §4.2. BF.RESERVE is
// idempotent only if Capacity/ErrorRate match an existing filter's —
// enforced by callers comparing these fields before re-reserving.
type BloomFilter struct {
	Capacity  uint64
	ErrorRate float64
	bits      []uint64 // m bits packed 64 per word
	m         uint64
	k         uint64
	inserted  uint64
}

func NewBloomFilter(capacity uint64, errorRate float64) *BloomFilter {
	m := optimalM(capacity, errorRate)
	k := optimalK(m, capacity)
	words := (m + 63) / 64
	return &BloomFilter{
		Capacity:  capacity,
		ErrorRate: errorRate,
		bits:      make([]uint64, words),
		m:         m,
		k:         k,
	}
}

func optimalM(n uint64, p float64) uint64 {
	if n == 0 {
		n = 1
	}
	m := -float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)
	return uint64(math.Ceil(m))
}

func optimalK(m, n uint64) uint64 {
	if n == 0 {
		n = 1
	}
	k := float64(m) / float64(n) * math.Ln2
	if k < 1 {
		k = 1
	}
	return uint64(math.Round(k))
}

func (*BloomFilter) Kind() Kind { return KindBloom }

// NewBloomFilterFromBits reconstructs a filter read back from
// persistence (internal/spldb), preserving m/k/inserted exactly.
func NewBloomFilterFromBits(capacity uint64, errorRate float64, bits []uint64, m, k, inserted uint64) *BloomFilter {
	return &BloomFilter{Capacity: capacity, ErrorRate: errorRate, bits: bits, m: m, k: k, inserted: inserted}
}

// Bits, M, K, Inserted expose internal state for snapshotting.
func (b *BloomFilter) Bits() []uint64  { return b.bits }
func (b *BloomFilter) M() uint64       { return b.m }
func (b *BloomFilter) K() uint64       { return b.k }
func (b *BloomFilter) Inserted() uint64 { return b.inserted }

func (b *BloomFilter) hashes(item []byte) (uint64, uint64) {
	h1 := fnv.New64a()
	h1.Write(item)
	sum1 := h1.Sum64()

	h2 := fnv.New64()
	h2.Write(item)
	sum2 := h2.Sum64()
	return sum1, sum2
}

// Add sets k bits for item using double hashing (h1 + i*h2), the
// standard way to derive k independent hash functions from two.
// Returns whether item was possibly new (at least one bit flipped).
func (b *BloomFilter) Add(item []byte) bool {
	h1, h2 := b.hashes(item)
	newBits := false
	for i := uint64(0); i < b.k; i++ {
		bit := (h1 + i*h2) % b.m
		word, off := bit/64, bit%64
		if b.bits[word]&(1<<off) == 0 {
			newBits = true
		}
		b.bits[word] |= 1 << off
	}
	if newBits {
		b.inserted++
	}
	return newBits
}

// Test reports whether item may be present (false positives possible,
// false negatives never).
func (b *BloomFilter) Test(item []byte) bool {
	h1, h2 := b.hashes(item)
	for i := uint64(0); i < b.k; i++ {
		bit := (h1 + i*h2) % b.m
		word, off := bit/64, bit%64
		if b.bits[word]&(1<<off) == 0 {
			return false
		}
	}
	return true
}
