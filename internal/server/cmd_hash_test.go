package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spineldb/spineldb/internal/resp"
)

func TestHashSetGetAll(t *testing.T) {
	srv := newTestServer()

	reply, _ := srv.exec("HSET", "h", "f1", "v1", "f2", "v2")
	require.Equal(t, int64(2), reply.Int)

	reply, _ = srv.exec("HGET", "h", "f1")
	require.Equal(t, "v1", reply.Str)

	reply, _ = srv.exec("HLEN", "h")
	require.Equal(t, int64(2), reply.Int)

	reply, _ = srv.exec("HDEL", "h", "f1")
	require.Equal(t, int64(1), reply.Int)

	reply, _ = srv.exec("HEXISTS", "h", "f1")
	require.Equal(t, int64(0), reply.Int)
	require.Equal(t, resp.KindInteger, reply.Kind)
}
