package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveWritesSnapshot(t *testing.T) {
	srv := newTestServer()
	srv.Cfg.SnapshotPath = filepath.Join(t.TempDir(), "dump.spldb")
	srv.exec("SET", "k", "v")

	reply, _ := srv.exec("SAVE")
	require.Equal(t, "OK", reply.Str)

	_, err := os.Stat(srv.Cfg.SnapshotPath)
	require.NoError(t, err)
}

func TestBGRewriteAOFRequiresRewriter(t *testing.T) {
	srv := newTestServer()
	reply, _ := srv.exec("BGREWRITEAOF")
	require.Equal(t, "ERR", reply.Str[:3])
}
