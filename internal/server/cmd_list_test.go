package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spineldb/spineldb/internal/resp"
)

func TestListPushPopRange(t *testing.T) {
	srv := newTestServer()

	reply, _ := srv.exec("RPUSH", "l", "a", "b", "c")
	require.Equal(t, int64(3), reply.Int)

	reply, _ = srv.exec("LPUSH", "l", "z")
	require.Equal(t, int64(4), reply.Int)

	reply, _ = srv.exec("LRANGE", "l", "0", "-1")
	require.Len(t, reply.Array, 4)
	require.Equal(t, "z", reply.Array[0].Str)
	require.Equal(t, "c", reply.Array[3].Str)

	reply, _ = srv.exec("LPOP", "l")
	require.Equal(t, "z", reply.Str)

	reply, _ = srv.exec("RPOP", "l")
	require.Equal(t, "c", reply.Str)

	reply, _ = srv.exec("LLEN", "l")
	require.Equal(t, int64(2), reply.Int)
}

func TestListSetIndexRem(t *testing.T) {
	srv := newTestServer()
	srv.exec("RPUSH", "l", "a", "b", "a")

	reply, _ := srv.exec("LSET", "l", "1", "x")
	require.Equal(t, resp.KindSimpleString, reply.Kind)

	reply, _ = srv.exec("LINDEX", "l", "1")
	require.Equal(t, "x", reply.Str)

	reply, _ = srv.exec("LREM", "l", "0", "a")
	require.Equal(t, int64(2), reply.Int)

	reply, _ = srv.exec("LLEN", "l")
	require.Equal(t, int64(1), reply.Int)
}

func TestListTrim(t *testing.T) {
	srv := newTestServer()
	srv.exec("RPUSH", "l", "a", "b", "c", "d")

	reply, _ := srv.exec("LTRIM", "l", "1", "2")
	require.Equal(t, resp.KindSimpleString, reply.Kind)

	reply, _ = srv.exec("LRANGE", "l", "0", "-1")
	require.Len(t, reply.Array, 2)
	require.Equal(t, "b", reply.Array[0].Str)
	require.Equal(t, "c", reply.Array[1].Str)
}
