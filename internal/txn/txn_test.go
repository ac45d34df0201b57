package txn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/resp"
	"github.com/spineldb/spineldb/internal/shard"
	"github.com/spineldb/spineldb/internal/store"
)

func testRegistry() *dispatch.Registry {
	r := dispatch.NewRegistry()
	r.Register(&dispatch.Descriptor{
		Name:    "SET",
		Arity:   3,
		IsWrite: true,
		Keys:    dispatch.FirstKey,
		Handler: func(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
			sh := ctx.ShardFor(ctx.Args[1])
			e, ok := sh.Get(ctx.Args[1])
			version := uint64(0)
			if ok {
				version = e.Version + 1
			}
			sh.Put(&shard.Entry{Key: ctx.Args[1], Value: store.Str(ctx.Args[2]), Version: version})
			return resp.SimpleString("OK"), ctx.Args, nil
		},
	})
	r.Register(&dispatch.Descriptor{
		Name:  "GET",
		Arity: 2,
		Keys:  dispatch.FirstKey,
		Handler: func(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
			sh := ctx.ShardFor(ctx.Args[1])
			e, ok := sh.Get(ctx.Args[1])
			if !ok {
				return resp.NullBulkString(), nil, nil
			}
			return resp.BulkString(string(e.Value.(store.Str))), nil, nil
		},
	})
	return r
}

func TestQueueThenExecRunsInOrder(t *testing.T) {
	r := testRegistry()
	db := shard.NewDatabase(4)
	c := New(nil)

	require.NoError(t, c.Multi())
	reply, err := c.Queue(r, []string{"SET", "k", "v1"})
	require.NoError(t, err)
	require.Equal(t, resp.KindSimpleString, reply.Kind)
	require.Equal(t, "QUEUED", reply.Str)

	_, err = c.Queue(r, []string{"GET", "k"})
	require.NoError(t, err)

	result, err := c.Exec(db, 0, 1000)
	require.NoError(t, err)
	require.False(t, result.Aborted)
	require.Len(t, result.Replies, 2)
	require.Equal(t, "v1", result.Replies[1].Str)
	require.Equal(t, Normal, c.State())
}

func TestUnknownCommandSetsDirtyAndAbortsExec(t *testing.T) {
	r := testRegistry()
	db := shard.NewDatabase(4)
	c := New(nil)

	require.NoError(t, c.Multi())
	_, err := c.Queue(r, []string{"NOPE"})
	require.Error(t, err)
	require.Equal(t, Dirty, c.State())

	_, err = c.Exec(db, 0, 1000)
	require.Error(t, err)
}

func TestWatchedKeyChangeAbortsExec(t *testing.T) {
	r := testRegistry()
	db := shard.NewDatabase(4)
	c := New(nil)

	require.NoError(t, c.Watch(db, 0, []string{"balance"}))

	sh := db.ShardFor("balance")
	sh.Mu.Lock()
	sh.Put(&shard.Entry{Key: "balance", Value: store.Str("100"), Version: 1})
	sh.Mu.Unlock()

	require.NoError(t, c.Multi())
	_, err := c.Queue(r, []string{"GET", "balance"})
	require.NoError(t, err)

	result, err := c.Exec(db, 0, 1000)
	require.NoError(t, err)
	require.True(t, result.Aborted)
}

func TestDiscardClearsQueueAndWatch(t *testing.T) {
	r := testRegistry()
	c := New(nil)
	require.NoError(t, c.Multi())
	_, _ = c.Queue(r, []string{"GET", "k"})
	require.NoError(t, c.Discard())
	require.Equal(t, Normal, c.State())
}

func TestDiscardWithoutMultiIsNotAnError(t *testing.T) {
	c := New(nil)
	require.Equal(t, Normal, c.State())
	require.NoError(t, c.Discard())
	require.Equal(t, Normal, c.State())
}

func TestWatchForbiddenInsideTransaction(t *testing.T) {
	db := shard.NewDatabase(4)
	c := New(nil)
	require.NoError(t, c.Multi())
	err := c.Watch(db, 0, []string{"k"})
	require.Error(t, err)
}
