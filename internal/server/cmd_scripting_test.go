package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spineldb/spineldb/internal/resp"
)

func TestScriptLoadExistsFlush(t *testing.T) {
	srv := newTestServer()

	reply, _ := srv.exec("SCRIPT", "LOAD", "return 1")
	require.NotEmpty(t, reply.Str)
	sha := reply.Str

	reply, _ = srv.exec("SCRIPT", "EXISTS", sha, "deadbeef")
	require.Len(t, reply.Array, 2)
	require.Equal(t, int64(1), reply.Array[0].Int)
	require.Equal(t, int64(0), reply.Array[1].Int)

	reply, _ = srv.exec("SCRIPT", "FLUSH")
	require.Equal(t, "OK", reply.Str)

	reply, _ = srv.exec("SCRIPT", "EXISTS", sha)
	require.Equal(t, int64(0), reply.Array[0].Int)
}

func TestEvalShaNoScript(t *testing.T) {
	srv := newTestServer()
	reply, _ := srv.exec("EVALSHA", "deadbeef", "0")
	require.Equal(t, resp.KindError, reply.Kind)
}
