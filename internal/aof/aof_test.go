package aof

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spineldb/spineldb/internal/logging"
)

func TestAppendThenLoadReplaysCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.aof")
	log, err := Open(path, FsyncAlways, logging.New("aof-test"))
	require.NoError(t, err)

	require.NoError(t, log.Append([]string{"SET", "k", "v"}))
	require.NoError(t, log.Append([]string{"DEL", "k"}))
	require.NoError(t, log.Close())

	var replayed [][]string
	err = Load(path, func(args []string) error {
		replayed = append(replayed, args)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, [][]string{{"SET", "k", "v"}, {"DEL", "k"}}, replayed)
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	err := Load(filepath.Join(t.TempDir(), "missing.aof"), func(args []string) error {
		t.Fatal("should not be called")
		return nil
	})
	require.NoError(t, err)
}

type fakeSnapshotter struct{ cmds [][]string }

func (f fakeSnapshotter) RewriteCommands() [][]string { return f.cmds }

func TestRewriteProducesMinimalLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.aof")
	log, err := Open(path, FsyncAlways, logging.New("aof-test"))
	require.NoError(t, err)
	require.NoError(t, log.Append([]string{"SET", "k", "v1"}))
	require.NoError(t, log.Append([]string{"SET", "k", "v2"}))

	rw := NewRewriter(path, log)
	require.NoError(t, rw.Run(fakeSnapshotter{cmds: [][]string{{"SET", "k", "v2"}}}))
	require.NoError(t, log.Close())

	var replayed [][]string
	err = Load(path, func(args []string) error {
		replayed = append(replayed, args)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, [][]string{{"SET", "k", "v2"}}, replayed)
}
