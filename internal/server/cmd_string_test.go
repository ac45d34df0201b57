package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spineldb/spineldb/internal/resp"
)

func TestStringSetGet(t *testing.T) {
	srv := newTestServer()

	reply, prop := srv.exec("SET", "k", "v")
	require.Equal(t, resp.KindSimpleString, reply.Kind)
	require.Equal(t, []string{"SET", "k", "v"}, prop.Args)

	reply, _ = srv.exec("GET", "k")
	require.Equal(t, resp.KindBulkString, reply.Kind)
	require.Equal(t, "v", reply.Str)
}

func TestStringIncr(t *testing.T) {
	srv := newTestServer()

	reply, _ := srv.exec("INCR", "counter")
	require.Equal(t, int64(1), reply.Int)

	reply, _ = srv.exec("INCRBY", "counter", "4")
	require.Equal(t, int64(5), reply.Int)
}

func TestStringWrongType(t *testing.T) {
	srv := newTestServer()
	srv.exec("LPUSH", "k", "a")

	reply, _ := srv.exec("GET", "k")
	require.Equal(t, resp.KindError, reply.Kind)
}
