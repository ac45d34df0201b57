package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamAddRangeLen(t *testing.T) {
	srv := newTestServer()

	reply, _ := srv.exec("XADD", "s", "1-1", "field", "value")
	require.Equal(t, "1-1", reply.Str)

	reply, _ = srv.exec("XADD", "s", "2-1", "field", "value2")
	require.Equal(t, "2-1", reply.Str)

	reply, _ = srv.exec("XLEN", "s")
	require.Equal(t, int64(2), reply.Int)

	reply, _ = srv.exec("XRANGE", "s", "-", "+")
	require.Len(t, reply.Array, 2)
}

func TestStreamGroupAck(t *testing.T) {
	srv := newTestServer()
	srv.exec("XADD", "s", "1-1", "f", "v")

	reply, _ := srv.exec("XGROUP", "CREATE", "s", "grp", "0")
	require.Equal(t, "OK", reply.Str)
}
