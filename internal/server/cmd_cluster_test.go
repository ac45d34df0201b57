package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spineldb/spineldb/internal/cluster"
)

func withCluster(srv *Server) *Server {
	srv.Cluster = cluster.NewState("node1", "127.0.0.1:6379", 5*time.Second, 1, func(string) bool { return false })
	return srv
}

func TestClusterKeySlotAndAddSlots(t *testing.T) {
	srv := withCluster(newTestServer())

	reply, _ := srv.exec("CLUSTER", "KEYSLOT", "foo")
	require.True(t, reply.Int >= 0 && reply.Int < 16384)

	reply, _ = srv.exec("CLUSTER", "ADDSLOTS", "0", "1", "2")
	require.Equal(t, "OK", reply.Str)

	reply, _ = srv.exec("CLUSTER", "INFO")
	require.Contains(t, reply.Str, "cluster_enabled:1")
}

func TestClusterDisabledErrors(t *testing.T) {
	srv := newTestServer()
	reply, _ := srv.exec("CLUSTER", "INFO")
	require.Equal(t, "ERR", reply.Str[:3])
}
