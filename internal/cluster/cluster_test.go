package cluster

import (
	"testing"
	"time"

	"github.com/spineldb/spineldb/internal/shard"
	"github.com/spineldb/spineldb/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashTagsCoLocate(t *testing.T) {
	assert.Equal(t, Slot("foo{x}bar"), Slot("baz{x}qux"))
}

func TestEmptyHashTagFallsBackToWholeKey(t *testing.T) {
	assert.Equal(t, int(crc16([]byte("foo{}bar")))%slotCount, Slot("foo{}bar"))
	assert.NotEqual(t, -1, Slot("foo{}bar"))
}

func TestKeysSlotAgreesForSharedHashTag(t *testing.T) {
	_, ok := KeysSlot([]string{"a{tag}", "b{tag}", "c{tag}"})
	assert.True(t, ok)
}

func TestKeysSlotDetectsCrossSlot(t *testing.T) {
	// find two keys that land on different slots by construction.
	var other string
	for i := 0; ; i++ {
		other = fmtKey(i)
		if Slot(other) != Slot("anchor") {
			break
		}
	}
	_, ok := KeysSlot([]string{"anchor", other})
	assert.False(t, ok)
}

func fmtKey(i int) string {
	b := []byte("key-0000")
	b[len(b)-1] = byte('0' + i%10)
	b[len(b)-2] = byte('0' + (i/10)%10)
	return string(b)
}

func TestCheckKeysMovedWhenNotOwner(t *testing.T) {
	s := NewState("self", "127.0.0.1:7000", time.Second, 0, nil)
	s.Membership.Upsert(NodeInfo{ID: "other", Addr: "127.0.0.1:7001", Role: "master", LastSeen: time.Now()})
	slot := Slot("k")
	s.Table.AddSlots("other", []int{slot})

	redirect, err := s.CheckKeys([]string{"k"})
	require.NoError(t, err)
	require.NotNil(t, redirect)
	assert.Equal(t, "127.0.0.1:7001", redirect.Addr)
}

func TestCheckKeysServesLocallyWhenOwner(t *testing.T) {
	s := NewState("self", "127.0.0.1:7000", time.Second, 0, nil)
	slot := Slot("k")
	s.Table.AddSlots("self", []int{slot})

	redirect, err := s.CheckKeys([]string{"k"})
	require.NoError(t, err)
	assert.Nil(t, redirect)
}

func TestCheckKeysMigratingServesLocallyWhenKeyPresent(t *testing.T) {
	present := map[string]bool{"k": true}
	s := NewState("self", "127.0.0.1:7000", time.Second, 0, func(key string) bool { return present[key] })
	slot := Slot("k")
	s.Table.AddSlots("self", []int{slot})
	s.Table.SetMigrating(slot, "target")

	redirect, err := s.CheckKeys([]string{"k"})
	require.NoError(t, err)
	assert.Nil(t, redirect)
}

func TestCheckKeysMigratingAsksWhenKeyAbsent(t *testing.T) {
	s := NewState("self", "127.0.0.1:7000", time.Second, 0, func(string) bool { return false })
	s.Membership.Upsert(NodeInfo{ID: "target", Addr: "127.0.0.1:7002", Role: "master", LastSeen: time.Now()})
	slot := Slot("k")
	s.Table.AddSlots("self", []int{slot})
	s.Table.SetMigrating(slot, "target")

	redirect, err := s.CheckKeys([]string{"k"})
	require.NoError(t, err)
	require.NotNil(t, redirect)
	assert.Equal(t, "127.0.0.1:7002", redirect.Addr)
}

func TestAskingCheckerGrantsOneShotAccessToImportingSlot(t *testing.T) {
	s := NewState("self", "127.0.0.1:7000", time.Second, 0, nil)
	slot := Slot("k")
	s.Table.AddSlots("source", []int{slot})
	s.Table.SetImporting(slot, "source")

	asker := NewAskingChecker(s)
	redirect, err := asker.CheckKeys([]string{"k"})
	require.NoError(t, err)
	require.NotNil(t, redirect, "without ASKING, importing slot owned elsewhere should redirect")

	asker.SetAsking()
	redirect, err = asker.CheckKeys([]string{"k"})
	require.NoError(t, err)
	assert.Nil(t, redirect, "ASKING should grant a one-shot pass into the importing slot")

	redirect, err = asker.CheckKeys([]string{"k"})
	require.NoError(t, err)
	assert.NotNil(t, redirect, "the ASKING pass must not persist past one command")
}

func TestCheckQuorumEngagesReadOnlyWithoutMajority(t *testing.T) {
	s := NewState("self", "127.0.0.1:7000", time.Second, 2, nil)
	s.CheckQuorum(time.Now())
	assert.True(t, s.ReadOnly())

	s.Membership.Upsert(NodeInfo{ID: "m1", Addr: "a", Role: "master", LastSeen: time.Now()})
	s.Membership.Upsert(NodeInfo{ID: "m2", Addr: "b", Role: "master", LastSeen: time.Now()})
	s.CheckQuorum(time.Now())
	assert.False(t, s.ReadOnly())
}

func TestGossiperRejectsTamperedPayload(t *testing.T) {
	g := NewGossiper([]byte("secret"))
	payload, err := g.Sign(GossipMessage{From: "self"})
	require.NoError(t, err)

	payload[len(payload)-1] ^= 0xFF
	_, err = g.Verify(payload)
	assert.Error(t, err)
}

func TestGossiperRoundTrips(t *testing.T) {
	g := NewGossiper([]byte("secret"))
	msg := GossipMessage{From: "self", Nodes: []NodeInfo{{ID: "self", Addr: "a"}}}
	payload, err := g.Sign(msg)
	require.NoError(t, err)

	decoded, err := g.Verify(payload)
	require.NoError(t, err)
	assert.Equal(t, "self", decoded.From)
}

func TestMigrateSerializeRestoreDeleteRoundTrips(t *testing.T) {
	source := shard.NewDatabase(4)
	target := shard.NewDatabase(4)

	sh := source.ShardFor("k")
	sh.Mu.Lock()
	sh.Put(&shard.Entry{Key: "k", Value: store.Str("hello")})
	sh.Mu.Unlock()

	payload, expireAtMs, found, err := SerializeKey(source, "k")
	require.NoError(t, err)
	require.True(t, found)

	err = RestoreKey(target, "k", payload, expireAtMs, time.Now().UnixMilli())
	require.NoError(t, err)

	DeleteKey(source, "k")
	_, stillThere := source.ShardFor("k").Get("k")
	assert.False(t, stillThere)

	e, ok := target.ShardFor("k").Get("k")
	require.True(t, ok)
	assert.Equal(t, store.Str("hello"), e.Value)
}
