package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spineldb/spineldb/internal/resp"
)

func TestPingEcho(t *testing.T) {
	srv := newTestServer()

	reply, _ := srv.exec("PING")
	require.Equal(t, "PONG", reply.Str)

	reply, _ = srv.exec("ECHO", "hi")
	require.Equal(t, "hi", reply.Str)
}

func TestInfoContainsSections(t *testing.T) {
	srv := newTestServer()
	srv.exec("SET", "k", "v")

	reply, _ := srv.exec("INFO")
	require.Contains(t, reply.Str, "# Server")
	require.Contains(t, reply.Str, "# Replication")
	require.Contains(t, reply.Str, "db0:keys=1")
}

func TestCommandCount(t *testing.T) {
	srv := newTestServer()
	reply, _ := srv.exec("COMMAND", "COUNT")
	require.True(t, reply.Int > 0)

	reply, _ = srv.exec("COMMAND")
	require.Equal(t, resp.KindArray, reply.Kind)
	require.True(t, len(reply.Array) > 0)
}

func TestMemoryUsage(t *testing.T) {
	srv := newTestServer()
	srv.exec("SET", "k", "hello")

	reply, _ := srv.exec("MEMORY", "USAGE", "k")
	require.Equal(t, int64(5), reply.Int)

	reply, _ = srv.exec("MEMORY", "USAGE", "missing")
	require.Equal(t, resp.KindNullBulkString, reply.Kind)
}

func TestSlowlogGetResetLen(t *testing.T) {
	srv := newTestServer()

	reply, _ := srv.exec("SLOWLOG", "LEN")
	require.Equal(t, int64(0), reply.Int)

	reply, _ = srv.exec("SLOWLOG", "RESET")
	require.Equal(t, "OK", reply.Str)

	reply, _ = srv.exec("SLOWLOG", "GET")
	require.Equal(t, resp.KindArray, reply.Kind)
}
