package shard

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spineldb/spineldb/internal/config"
	"github.com/spineldb/spineldb/internal/store"
)

func TestLookupLazilyDeletesExpiredKey(t *testing.T) {
	sh := New()
	sh.Put(&Entry{Key: "k", Value: store.Str("v"), ExpireAtMs: 100})

	_, ok := Lookup(sh, "k", 200)
	require.False(t, ok)
	_, stillThere := sh.Get("k")
	require.False(t, stillThere)
}

func TestLookupKeepsUnexpiredKey(t *testing.T) {
	sh := New()
	sh.Put(&Entry{Key: "k", Value: store.Str("v"), ExpireAtMs: 1000})

	e, ok := Lookup(sh, "k", 200)
	require.True(t, ok)
	require.Equal(t, store.Str("v"), e.Value)
}

func TestPopExpiredBeforeIgnoresStaleHeapEntries(t *testing.T) {
	sh := New()
	sh.Put(&Entry{Key: "k", Value: store.Str("v"), ExpireAtMs: 100})
	// re-put with a later expiration; old heap entry becomes stale.
	sh.Put(&Entry{Key: "k", Value: store.Str("v2"), ExpireAtMs: 5000})

	expired := sh.PopExpiredBefore(1000)
	require.Empty(t, expired)
}

func TestSampleAndEvictNoEvictionReturnsOOM(t *testing.T) {
	sh := New()
	sh.Put(&Entry{Key: "k", Value: store.Str("v")})

	_, err := SampleAndEvict(sh, config.EvictionNone, 5)
	require.ErrorIs(t, err, ErrOOM)
}

func TestSampleAndEvictVolatileOnlyConsidersTTLKeys(t *testing.T) {
	sh := New()
	sh.Put(&Entry{Key: "persist", Value: store.Str("v")})
	sh.Put(&Entry{Key: "ttl", Value: store.Str("v"), ExpireAtMs: 100, LastAccessMs: 1})

	evicted, err := SampleAndEvict(sh, config.EvictionVolatileLRU, 5)
	require.NoError(t, err)
	require.Equal(t, "ttl", evicted)
}

func TestDatabaseIndexIsDeterministic(t *testing.T) {
	db := NewDatabase(16)
	i1 := db.Index("foo")
	i2 := db.Index("foo")
	require.Equal(t, i1, i2)
	require.GreaterOrEqual(t, i1, 0)
	require.Less(t, i1, 16)
}
