package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetAddRemMembers(t *testing.T) {
	srv := newTestServer()

	reply, _ := srv.exec("SADD", "s", "a", "b", "c")
	require.Equal(t, int64(3), reply.Int)

	reply, _ = srv.exec("SADD", "s", "a")
	require.Equal(t, int64(0), reply.Int)

	reply, _ = srv.exec("SISMEMBER", "s", "b")
	require.Equal(t, int64(1), reply.Int)

	reply, _ = srv.exec("SREM", "s", "b")
	require.Equal(t, int64(1), reply.Int)

	reply, _ = srv.exec("SCARD", "s")
	require.Equal(t, int64(2), reply.Int)
}

func TestSetUnionInterDiff(t *testing.T) {
	srv := newTestServer()
	srv.exec("SADD", "s1", "a", "b", "c")
	srv.exec("SADD", "s2", "b", "c", "d")

	reply, _ := srv.exec("SUNION", "s1", "s2")
	require.Len(t, reply.Array, 4)

	reply, _ = srv.exec("SINTER", "s1", "s2")
	require.Len(t, reply.Array, 2)

	reply, _ = srv.exec("SDIFF", "s1", "s2")
	require.Len(t, reply.Array, 1)
	require.Equal(t, "a", reply.Array[0].Str)
}
