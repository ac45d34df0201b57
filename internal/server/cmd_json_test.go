package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spineldb/spineldb/internal/resp"
)

func TestJSONSetGetRoot(t *testing.T) {
	srv := newTestServer()

	reply, _ := srv.exec("JSON.SET", "doc", "$", `{"a":1,"b":"x"}`)
	require.Equal(t, "OK", reply.Str)

	reply, _ = srv.exec("JSON.GET", "doc")
	require.Contains(t, reply.Str, `"a":1`)
}

func TestJSONNumIncrBy(t *testing.T) {
	srv := newTestServer()
	srv.exec("JSON.SET", "doc", "$", `{"count":1}`)

	reply, _ := srv.exec("JSON.NUMINCRBY", "doc", "$.count", "4")
	require.Equal(t, "5", reply.Str)
}

func TestJSONDel(t *testing.T) {
	srv := newTestServer()
	srv.exec("JSON.SET", "doc", "$", `{"a":1}`)

	reply, _ := srv.exec("JSON.DEL", "doc")
	require.Equal(t, int64(1), reply.Int)

	reply, _ = srv.exec("JSON.GET", "doc")
	require.Equal(t, resp.KindNullBulkString, reply.Kind)
}
