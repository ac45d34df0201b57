package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHllAddCountMerge(t *testing.T) {
	srv := newTestServer()

	srv.exec("PFADD", "h1", "a", "b", "c")
	srv.exec("PFADD", "h2", "c", "d", "e")

	reply, _ := srv.exec("PFCOUNT", "h1")
	require.True(t, reply.Int > 0)

	reply, _ = srv.exec("PFMERGE", "dest", "h1", "h2")
	require.Equal(t, "OK", reply.Str)

	reply, _ = srv.exec("PFCOUNT", "dest")
	require.True(t, reply.Int > 0)
}
