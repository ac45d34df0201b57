package spldb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spineldb/spineldb/internal/shard"
	"github.com/spineldb/spineldb/internal/store"
)

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dbs := shard.NewDatabases(2, 4)

	str := store.Str("hello")
	dbs.DBs[0].ShardFor("s").Put(&shard.Entry{Key: "s", Value: str, ExpireAtMs: 999})

	l := store.NewList()
	l.Items = [][]byte{[]byte("a"), []byte("b")}
	dbs.DBs[0].ShardFor("l").Put(&shard.Entry{Key: "l", Value: l})

	h := store.NewHash()
	h.Set("f1", []byte("v1"))
	dbs.DBs[0].ShardFor("h").Put(&shard.Entry{Key: "h", Value: h})

	set := store.NewSet()
	set.Add("m1")
	set.Add("m2")
	dbs.DBs[0].ShardFor("set").Put(&shard.Entry{Key: "set", Value: set})

	z := store.NewSortedSet()
	_, _ = z.Add("a", 1.5)
	_, _ = z.Add("b", 2.5)
	dbs.DBs[1].ShardFor("z").Put(&shard.Entry{Key: "z", Value: z})

	hll := store.NewHll()
	hll.Add([]byte("member1"))
	dbs.DBs[1].ShardFor("hll").Put(&shard.Entry{Key: "hll", Value: hll})

	bf := store.NewBloomFilter(100, 0.01)
	bf.Add([]byte("x"))
	dbs.DBs[1].ShardFor("bf").Put(&shard.Entry{Key: "bf", Value: bf})

	stream := store.NewStream()
	require.NoError(t, stream.Append(store.StreamID{Ms: 1, Seq: 0}, [][2][]byte{{[]byte("f"), []byte("v")}}))
	dbs.DBs[1].ShardFor("stream").Put(&shard.Entry{Key: "stream", Value: stream})

	doc := store.NewJSONDocument(store.JSONObject())
	require.NoError(t, store.SetPath(doc.Root, "$.name", store.JSONString("spinel"), store.ModeCreateMissing))
	dbs.DBs[1].ShardFor("json").Put(&shard.Entry{Key: "json", Value: doc})

	path := filepath.Join(t.TempDir(), "dump.spldb")
	require.NoError(t, Save(path, dbs))

	loaded := shard.NewDatabases(2, 4)
	require.NoError(t, Load(path, loaded))

	e, ok := loaded.DBs[0].ShardFor("s").Get("s")
	require.True(t, ok)
	require.Equal(t, store.Str("hello"), e.Value)
	require.Equal(t, int64(999), e.ExpireAtMs)

	le, ok := loaded.DBs[0].ShardFor("l").Get("l")
	require.True(t, ok)
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, le.Value.(*store.List).Items)

	he, ok := loaded.DBs[0].ShardFor("h").Get("h")
	require.True(t, ok)
	v, ok := he.Value.(*store.Hash).Get("f1")
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)

	se, ok := loaded.DBs[0].ShardFor("set").Get("set")
	require.True(t, ok)
	require.ElementsMatch(t, []string{"m1", "m2"}, se.Value.(*store.Set).Members())

	ze, ok := loaded.DBs[1].ShardFor("z").Get("z")
	require.True(t, ok)
	members := ze.Value.(*store.SortedSet).Range(0, -1)
	require.Len(t, members, 2)
	require.Equal(t, "a", members[0].Member)

	hlle, ok := loaded.DBs[1].ShardFor("hll").Get("hll")
	require.True(t, ok)
	require.Equal(t, uint64(1), hlle.Value.(*store.Hll).Count())

	bfe, ok := loaded.DBs[1].ShardFor("bf").Get("bf")
	require.True(t, ok)
	require.True(t, bfe.Value.(*store.BloomFilter).Test([]byte("x")))

	streame, ok := loaded.DBs[1].ShardFor("stream").Get("stream")
	require.True(t, ok)
	entries := streame.Value.(*store.Stream).Range(store.StreamID{}, streame.Value.(*store.Stream).LastID())
	require.Len(t, entries, 1)

	jsone, ok := loaded.DBs[1].ShardFor("json").Get("json")
	require.True(t, ok)
	nodes, err := store.Get(jsone.Value.(*store.JSONDocument).Root, "$.name")
	require.NoError(t, err)
	require.Equal(t, "spinel", nodes[0].Str)
}

func TestLoadMissingFileLeavesEmptyDatabases(t *testing.T) {
	dbs := shard.NewDatabases(1, 4)
	require.NoError(t, Load(filepath.Join(t.TempDir(), "missing.spldb"), dbs))
	require.Equal(t, 0, dbs.DBs[0].Shards[0].Len())
}
