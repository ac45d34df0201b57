package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestZSetAddRange(t *testing.T) {
	srv := newTestServer()

	reply, _ := srv.exec("ZADD", "z", "1", "a", "2", "b", "3", "c")
	require.Equal(t, int64(3), reply.Int)

	reply, _ = srv.exec("ZCARD", "z")
	require.Equal(t, int64(3), reply.Int)

	reply, _ = srv.exec("ZRANGE", "z", "0", "-1")
	require.Len(t, reply.Array, 3)
	require.Equal(t, "a", reply.Array[0].Str)
	require.Equal(t, "c", reply.Array[2].Str)

	reply, _ = srv.exec("ZSCORE", "z", "b")
	require.Equal(t, "2", reply.Str)
}

func TestZSetIncrBy(t *testing.T) {
	srv := newTestServer()
	srv.exec("ZADD", "z", "1", "a")

	reply, _ := srv.exec("ZINCRBY", "z", "4", "a")
	require.Equal(t, "5", reply.Str)
}
