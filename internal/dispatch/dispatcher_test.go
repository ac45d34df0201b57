package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spineldb/spineldb/internal/resp"
	"github.com/spineldb/spineldb/internal/shard"
	"github.com/spineldb/spineldb/internal/store"
)

func newTestDB() *shard.Database {
	return shard.NewDatabase(4)
}

func registerEcho(r *Registry) {
	r.Register(&Descriptor{
		Name:  "ECHO",
		Arity: 2,
		Keys:  NoKeys,
		Handler: func(ctx *ExecContext) (resp.Value, []string, error) {
			return resp.BulkString(ctx.Args[1]), nil, nil
		},
	})
}

func registerSet(r *Registry) {
	r.Register(&Descriptor{
		Name:    "SET",
		Arity:   3,
		IsWrite: true,
		Keys:    FirstKey,
		Handler: func(ctx *ExecContext) (resp.Value, []string, error) {
			sh := ctx.ShardFor(ctx.Args[1])
			sh.Put(&shard.Entry{Key: ctx.Args[1], Value: store.Str(ctx.Args[2])})
			return resp.SimpleString("OK"), ctx.Args, nil
		},
	})
}

func registerFail(r *Registry) {
	r.Register(&Descriptor{
		Name:  "FAIL",
		Arity: 1,
		Keys:  NoKeys,
		Handler: func(ctx *ExecContext) (resp.Value, []string, error) {
			return resp.Value{}, nil, errors.New("boom")
		},
	})
}

func TestDispatchUnknownCommand(t *testing.T) {
	d := &Dispatcher{Registry: NewRegistry()}
	reply, prop := d.Dispatch(newTestDB(), 0, []string{"NOPE"}, time.Now())
	require.Nil(t, prop)
	require.Equal(t, resp.KindError, reply.Kind)
}

func TestDispatchArityMismatch(t *testing.T) {
	r := NewRegistry()
	registerEcho(r)
	d := &Dispatcher{Registry: r}
	reply, prop := d.Dispatch(newTestDB(), 0, []string{"ECHO"}, time.Now())
	require.Nil(t, prop)
	require.Equal(t, resp.KindError, reply.Kind)
}

func TestDispatchWriteCommandPropagates(t *testing.T) {
	r := NewRegistry()
	registerSet(r)
	d := &Dispatcher{Registry: r}
	reply, prop := d.Dispatch(newTestDB(), 0, []string{"SET", "k", "v"}, time.Now())
	require.Equal(t, resp.KindSimpleString, reply.Kind)
	require.NotNil(t, prop)
	require.Equal(t, []string{"SET", "k", "v"}, prop.Args)
}

func TestDispatchReadOnlyRejectsWrite(t *testing.T) {
	r := NewRegistry()
	registerSet(r)
	d := &Dispatcher{Registry: r, ReadOnly: func() bool { return true }}
	reply, prop := d.Dispatch(newTestDB(), 0, []string{"SET", "k", "v"}, time.Now())
	require.Nil(t, prop)
	require.Contains(t, reply.Str, string(KindReadOnly))
}

func TestDispatchHandlerErrorWrapsCommandError(t *testing.T) {
	r := NewRegistry()
	registerFail(r)
	d := &Dispatcher{Registry: r}
	reply, prop := d.Dispatch(newTestDB(), 0, []string{"FAIL"}, time.Now())
	require.Nil(t, prop)
	require.Equal(t, resp.KindError, reply.Kind)
	require.Contains(t, reply.Str, "boom")
}

func TestDispatchClusterRedirect(t *testing.T) {
	r := NewRegistry()
	registerSet(r)
	d := &Dispatcher{
		Registry: r,
		Cluster: clusterCheckerFunc(func(keys []string) (*Redirect, error) {
			return &Redirect{Kind: KindMoved, Slot: 42, Addr: "127.0.0.1:7001"}, nil
		}),
	}
	reply, prop := d.Dispatch(newTestDB(), 0, []string{"SET", "k", "v"}, time.Now())
	require.Nil(t, prop)
	require.Contains(t, reply.Str, "MOVED 42 127.0.0.1:7001")
}

type clusterCheckerFunc func(keys []string) (*Redirect, error)

func (f clusterCheckerFunc) CheckKeys(keys []string) (*Redirect, error) { return f(keys) }
