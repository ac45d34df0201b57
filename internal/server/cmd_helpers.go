package server

import (
	"strconv"

	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/resp"
	"github.com/spineldb/spineldb/internal/shard"
	"github.com/spineldb/spineldb/internal/store"
)

func itoa(n int) string     { return strconv.Itoa(n) }
func itoa64(n int64) string { return strconv.FormatInt(n, 10) }

// rewriteCommandFor reconstructs the command that would recreate e's
// current value, the shape aof.Rewriter needs from a Snapshotter and
// spldb-independent of any prior AOF history. Only strings, lists,
// hashes, sets and sorted sets are reconstructed; any other kind
// (stream, JSON, Bloom filter, HyperLogLog) yields a bare PING, so its
// value is not recreated.
func rewriteCommandFor(key string, e *shard.Entry) []string {
	switch v := e.Value.(type) {
	case store.Str:
		return []string{"SET", key, string(v)}
	case *store.List:
		args := []string{"RPUSH", key}
		for _, item := range v.Items {
			args = append(args, string(item))
		}
		return args
	case *store.Hash:
		args := []string{"HSET", key}
		for _, f := range v.Fields() {
			val, _ := v.Get(f)
			args = append(args, f, string(val))
		}
		return args
	case *store.Set:
		args := []string{"SADD", key}
		args = append(args, v.Members()...)
		return args
	case *store.SortedSet:
		args := []string{"ZADD", key}
		for _, m := range v.Range(0, -1) {
			args = append(args, formatScore(m.Score), m.Member)
		}
		return args
	default:
		return []string{"PING"}
	}
}

// lookup fetches key's live entry from ctx's already-locked shard,
// applying lazy expiration (spec.md §4.3).
func lookup(ctx *dispatch.ExecContext, key string) (*shard.Entry, bool) {
	sh := ctx.ShardFor(key)
	return shard.Lookup(sh, key, ctx.NowMs)
}

func wrongType() error {
	return dispatch.NewError(dispatch.KindWrongType, "Operation against a key holding the wrong kind of value")
}

func bulkOrNil(b []byte) resp.Value {
	if b == nil {
		return resp.NullBulkString()
	}
	return resp.BulkString(string(b))
}

func intReply(n int) resp.Value { return resp.Integer(int64(n)) }

func nextVersion(e *shard.Entry) uint64 {
	e.Version++
	return e.Version
}

func putString(ctx *dispatch.ExecContext, key string, val []byte, expireAtMs int64) *shard.Entry {
	sh := ctx.ShardFor(key)
	e := &shard.Entry{Key: key, Value: store.Str(val), ExpireAtMs: expireAtMs, LastAccessMs: ctx.NowMs, Version: 1}
	if existing, ok := sh.Get(key); ok {
		e.Version = existing.Version + 1
	}
	sh.Put(e)
	return e
}

// parseInt parses a command argument as a base-10 integer, returning
// a uniform generic-error CommandError on failure (the message every
// numeric-argument command in spec.md §7 uses).
func parseInt(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, dispatch.NewError(dispatch.KindGeneric, "value is not an integer or out of range")
	}
	return n, nil
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, dispatch.NewError(dispatch.KindGeneric, "value is not a valid float")
	}
	return f, nil
}

// srvOf retrieves the *Server a handler's ExecContext.Extra carries.
func srvOf(ctx *dispatch.ExecContext) *Server {
	return ctx.Extra.(*Server)
}
