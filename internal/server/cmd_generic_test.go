package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spineldb/spineldb/internal/resp"
)

func TestGenericDelExistsType(t *testing.T) {
	srv := newTestServer()
	srv.exec("SET", "k", "v")

	reply, _ := srv.exec("EXISTS", "k", "missing")
	require.Equal(t, int64(1), reply.Int)

	reply, _ = srv.exec("TYPE", "k")
	require.Equal(t, "string", reply.Str)

	reply, _ = srv.exec("DEL", "k", "missing")
	require.Equal(t, int64(1), reply.Int)

	reply, _ = srv.exec("EXISTS", "k")
	require.Equal(t, int64(0), reply.Int)
}

func TestGenericExpireTTL(t *testing.T) {
	srv := newTestServer()
	srv.exec("SET", "k", "v")

	reply, _ := srv.exec("EXPIRE", "k", "100")
	require.Equal(t, int64(1), reply.Int)

	reply, _ = srv.exec("TTL", "k")
	require.True(t, reply.Int > 0 && reply.Int <= 100)

	reply, _ = srv.exec("PERSIST", "k")
	require.Equal(t, int64(1), reply.Int)

	reply, _ = srv.exec("TTL", "k")
	require.Equal(t, int64(-1), reply.Int)

	reply, _ = srv.exec("TTL", "missing")
	require.Equal(t, int64(-2), reply.Int)
}

func TestGenericRenameKeys(t *testing.T) {
	srv := newTestServer()
	srv.exec("SET", "src", "v")

	reply, _ := srv.exec("RENAME", "src", "dst")
	require.Equal(t, resp.KindSimpleString, reply.Kind)

	reply, _ = srv.exec("EXISTS", "src")
	require.Equal(t, int64(0), reply.Int)

	reply, _ = srv.exec("GET", "dst")
	require.Equal(t, "v", reply.Str)
}

func TestGenericKeysAndFlush(t *testing.T) {
	srv := newTestServer()
	srv.exec("SET", "a1", "v")
	srv.exec("SET", "a2", "v")
	srv.exec("SET", "b1", "v")

	reply, _ := srv.exec("KEYS", "a*")
	require.Len(t, reply.Array, 2)

	reply, _ = srv.exec("FLUSHDB")
	require.Equal(t, resp.KindSimpleString, reply.Kind)

	reply, _ = srv.exec("KEYS", "*")
	require.Len(t, reply.Array, 0)
}
