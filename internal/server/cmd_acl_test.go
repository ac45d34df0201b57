package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestACLSetUserListDelete(t *testing.T) {
	srv := newTestServer()

	reply, _ := srv.exec("ACL", "SETUSER", "alice", "on", ">secret", "+get")
	require.Equal(t, "OK", reply.Str)

	reply, _ = srv.exec("ACL", "LIST")
	require.Len(t, reply.Array, 1)
	require.Contains(t, reply.Array[0].Str, "alice")

	reply, _ = srv.exec("ACL", "DELUSER", "alice")
	require.Equal(t, int64(1), reply.Int)

	reply, _ = srv.exec("ACL", "LIST")
	require.Len(t, reply.Array, 0)
}

func TestACLCat(t *testing.T) {
	srv := newTestServer()
	reply, _ := srv.exec("ACL", "CAT")
	require.Len(t, reply.Array, 3)
}
