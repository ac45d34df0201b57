package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spineldb/spineldb/internal/resp"
)

func TestCacheSetGetFresh(t *testing.T) {
	srv := newTestServer()

	reply, _ := srv.exec("CACHE.SET", "page:1", "<html/>", "TTL", "60")
	require.Equal(t, resp.KindSimpleString, reply.Kind)

	reply, _ = srv.exec("CACHE.GET", "page:1")
	require.Equal(t, resp.KindArray, reply.Kind)
	require.Len(t, reply.Array, 3)
	require.Equal(t, int64(200), reply.Array[0].Int)
	require.Equal(t, "<html/>", reply.Array[2].Str)
}

func TestCacheGetMiss(t *testing.T) {
	srv := newTestServer()
	reply, _ := srv.exec("CACHE.GET", "missing")
	require.Equal(t, resp.KindNullArray, reply.Kind)
}

func TestCachePurgeTag(t *testing.T) {
	srv := newTestServer()
	srv.exec("CACHE.SET", "p1", "<p1>", "TTL", "3600", "TAGS", "user:7")
	srv.exec("CACHE.SET", "p2", "<p2>", "TTL", "3600", "TAGS", "user:7")

	reply, _ := srv.exec("CACHE.PURGETAG", "user:7")
	require.Equal(t, int64(1), reply.Int)

	reply, _ = srv.exec("CACHE.GET", "p1")
	require.Equal(t, resp.KindNullArray, reply.Kind)
}

func TestCachePurgeKey(t *testing.T) {
	srv := newTestServer()
	srv.exec("CACHE.SET", "k", "v", "TTL", "60")
	srv.exec("CACHE.PURGE", "k")

	reply, _ := srv.exec("CACHE.GET", "k")
	require.Equal(t, resp.KindNullArray, reply.Kind)
}

func TestCacheSoftPurgeMarksStaleButKeepsBody(t *testing.T) {
	srv := newTestServer()
	srv.exec("CACHE.SET", "k", "v", "TTL", "60")

	reply, _ := srv.exec("CACHE.SOFTPURGE", "k")
	require.Equal(t, int64(1), reply.Int)

	reply, _ = srv.exec("CACHE.GET", "k")
	require.Equal(t, resp.KindNullArray, reply.Kind, "soft-purged variant reads as absent")

	info, _ := srv.exec("CACHE.INFO", "k")
	require.Equal(t, resp.KindArray, info.Kind, "soft purge marks stale in place, the body is still there")
}

func TestCacheSoftPurgeTagMarksMatchingKeys(t *testing.T) {
	srv := newTestServer()
	srv.exec("CACHE.SET", "p1", "<p1>", "TTL", "3600", "TAGS", "user:7")
	srv.exec("CACHE.SET", "p2", "<p2>", "TTL", "3600", "TAGS", "other")

	reply, _ := srv.exec("CACHE.SOFTPURGETAG", "user:7")
	require.Equal(t, int64(1), reply.Int)

	reply, _ = srv.exec("CACHE.GET", "p1")
	require.Equal(t, resp.KindNullArray, reply.Kind)

	reply, _ = srv.exec("CACHE.GET", "p2")
	require.Equal(t, resp.KindArray, reply.Kind)
}

func TestCacheLockUnlock(t *testing.T) {
	srv := newTestServer()

	reply, _ := srv.exec("CACHE.LOCK", "k", "60")
	require.Equal(t, "OK", reply.Str)

	reply, _ = srv.exec("CACHE.UNLOCK", "k")
	require.Equal(t, int64(1), reply.Int)

	reply, _ = srv.exec("CACHE.UNLOCK", "k")
	require.Equal(t, int64(0), reply.Int, "second unlock finds nothing left to remove")
}

func TestCacheInfoReportsVariantDetail(t *testing.T) {
	srv := newTestServer()
	srv.exec("CACHE.SET", "k", "hello", "TTL", "60")

	reply, _ := srv.exec("CACHE.INFO", "k")
	require.Equal(t, resp.KindArray, reply.Kind)

	found := false
	for i := 0; i+1 < len(reply.Array); i += 2 {
		if reply.Array[i].Str == "variants_count" {
			require.Equal(t, int64(1), reply.Array[i+1].Int)
			found = true
		}
	}
	require.True(t, found, "expected a variants_count field")
}

func TestCacheInfoMissingKey(t *testing.T) {
	srv := newTestServer()
	reply, _ := srv.exec("CACHE.INFO", "missing")
	require.Equal(t, resp.KindNullArray, reply.Kind)
}

func TestCacheStatsTracksHitsAndMisses(t *testing.T) {
	srv := newTestServer()
	srv.exec("CACHE.SET", "k", "v", "TTL", "60")
	srv.exec("CACHE.GET", "k")
	srv.exec("CACHE.GET", "missing")

	reply, _ := srv.exec("CACHE.STATS")
	require.Equal(t, resp.KindArray, reply.Kind)

	values := map[string]resp.Value{}
	for i := 0; i+1 < len(reply.Array); i += 2 {
		values[reply.Array[i].Str] = reply.Array[i+1]
	}
	require.GreaterOrEqual(t, values["hits"].Int, int64(1))
	require.GreaterOrEqual(t, values["misses"].Int, int64(1))
}

func TestCachePolicySetGetDelList(t *testing.T) {
	srv := newTestServer()

	reply, _ := srv.exec("CACHE.POLICY", "SET", "pages", "page:*", "http://origin/", "TTL", "30", "PRIORITY", "5")
	require.Equal(t, "OK", reply.Str)

	reply, _ = srv.exec("CACHE.POLICY", "LIST")
	require.Equal(t, resp.KindArray, reply.Kind)
	require.Len(t, reply.Array, 1)
	require.Equal(t, "pages", reply.Array[0].Str)

	reply, _ = srv.exec("CACHE.POLICY", "GET", "pages")
	require.Equal(t, resp.KindArray, reply.Kind)

	reply, _ = srv.exec("CACHE.POLICY", "DEL", "pages")
	require.Equal(t, int64(1), reply.Int)

	reply, _ = srv.exec("CACHE.POLICY", "GET", "pages")
	require.Equal(t, resp.KindNullArray, reply.Kind)
}

func TestCachePolicySetAppliesToMatchingKeys(t *testing.T) {
	srv := newTestServer()
	srv.exec("CACHE.POLICY", "SET", "pages", "page:*", "http://origin/", "TTL", "3600", "TAGS", "site")

	srv.exec("CACHE.SET", "page:1", "<html/>")
	reply, _ := srv.exec("CACHE.PURGETAG", "site")
	require.Equal(t, int64(1), reply.Int)

	reply, _ = srv.exec("CACHE.GET", "page:1")
	require.Equal(t, resp.KindNullArray, reply.Kind, "page:1 picked up the pages policy's TAGS site and its tag epoch bumped")
}
