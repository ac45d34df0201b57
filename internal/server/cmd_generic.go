package server

import (
	"path"

	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/resp"
	"github.com/spineldb/spineldb/internal/shard"
)

// registerGeneric wires the key-agnostic and key-lifecycle commands of
// spec.md §4.2/§4.3: DEL, EXISTS, EXPIRE family, TTL family, TYPE,
// PERSIST, RENAME, and the whole-database FLUSHDB/FLUSHALL.
func registerGeneric(r *dispatch.Registry) {
	r.Register(&dispatch.Descriptor{Name: "DEL", Arity: -2, IsWrite: true, Keys: dispatch.AllTrailingKeys, Handler: cmdDel})
	r.Register(&dispatch.Descriptor{Name: "UNLINK", Arity: -2, IsWrite: true, Keys: dispatch.AllTrailingKeys, Handler: cmdDel})
	r.Register(&dispatch.Descriptor{Name: "EXISTS", Arity: -2, IsWrite: false, Keys: dispatch.AllTrailingKeys, Handler: cmdExists})
	r.Register(&dispatch.Descriptor{Name: "TYPE", Arity: 2, IsWrite: false, Keys: dispatch.FirstKey, Handler: cmdType})
	r.Register(&dispatch.Descriptor{Name: "EXPIRE", Arity: -3, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdExpire})
	r.Register(&dispatch.Descriptor{Name: "PEXPIRE", Arity: -3, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdPExpire})
	r.Register(&dispatch.Descriptor{Name: "EXPIREAT", Arity: -3, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdExpireAt})
	r.Register(&dispatch.Descriptor{Name: "TTL", Arity: 2, IsWrite: false, Keys: dispatch.FirstKey, Handler: cmdTTL})
	r.Register(&dispatch.Descriptor{Name: "PTTL", Arity: 2, IsWrite: false, Keys: dispatch.FirstKey, Handler: cmdPTTL})
	r.Register(&dispatch.Descriptor{Name: "PERSIST", Arity: 2, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdPersist})
	r.Register(&dispatch.Descriptor{Name: "RENAME", Arity: 3, IsWrite: true, Keys: renameKeys, Handler: cmdRename})
	r.Register(&dispatch.Descriptor{Name: "KEYS", Arity: 2, IsWrite: false, Keys: dispatch.NoKeys, Handler: cmdKeys})
	r.Register(&dispatch.Descriptor{Name: "FLUSHDB", Arity: 1, IsWrite: true, Keys: dispatch.NoKeys, Handler: cmdFlushDB})
	r.Register(&dispatch.Descriptor{Name: "FLUSHALL", Arity: 1, IsWrite: true, Keys: dispatch.NoKeys, Handler: cmdFlushAll})
}

func renameKeys(args []string) []string {
	if len(args) < 3 {
		return nil
	}
	return []string{args[1], args[2]}
}

func cmdDel(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	n := 0
	for _, key := range ctx.Args[1:] {
		if _, ok := lookup(ctx, key); ok {
			ctx.ShardFor(key).Delete(key)
			n++
		}
	}
	if n == 0 {
		return intReply(0), nil, nil
	}
	return intReply(n), ctx.Args, nil
}

func cmdExists(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	n := 0
	for _, key := range ctx.Args[1:] {
		if _, ok := lookup(ctx, key); ok {
			n++
		}
	}
	return intReply(n), nil, nil
}

func cmdType(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	e, ok := lookup(ctx, ctx.Args[1])
	if !ok {
		return resp.SimpleString("none"), nil, nil
	}
	return resp.SimpleString(e.Value.Kind().String()), nil, nil
}

func cmdExpire(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	return expireBy(ctx, 1000)
}

func cmdPExpire(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	return expireBy(ctx, 1)
}

func expireBy(ctx *dispatch.ExecContext, msPerUnit int64) (resp.Value, []string, error) {
	key, amtStr := ctx.Args[1], ctx.Args[2]
	e, ok := lookup(ctx, key)
	if !ok {
		return intReply(0), nil, nil
	}
	amt, err := parseInt(amtStr)
	if err != nil {
		return resp.Value{}, nil, err
	}
	e.ExpireAtMs = ctx.NowMs + amt*msPerUnit
	nextVersion(e)
	return intReply(1), ctx.Args, nil
}

func cmdExpireAt(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key, amtStr := ctx.Args[1], ctx.Args[2]
	e, ok := lookup(ctx, key)
	if !ok {
		return intReply(0), nil, nil
	}
	atSec, err := parseInt(amtStr)
	if err != nil {
		return resp.Value{}, nil, err
	}
	e.ExpireAtMs = atSec * 1000
	nextVersion(e)
	return intReply(1), ctx.Args, nil
}

func cmdTTL(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	return ttlReply(ctx, 1000)
}

func cmdPTTL(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	return ttlReply(ctx, 1)
}

func ttlReply(ctx *dispatch.ExecContext, divisorMs int64) (resp.Value, []string, error) {
	e, ok := lookup(ctx, ctx.Args[1])
	if !ok {
		return intReply(-2), nil, nil
	}
	if !e.HasExpiration() {
		return intReply(-1), nil, nil
	}
	remainMs := e.ExpireAtMs - ctx.NowMs
	if remainMs < 0 {
		remainMs = 0
	}
	return intReply(int(remainMs / divisorMs)), nil, nil
}

func cmdPersist(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	e, ok := lookup(ctx, ctx.Args[1])
	if !ok || !e.HasExpiration() {
		return intReply(0), nil, nil
	}
	e.ExpireAtMs = 0
	nextVersion(e)
	return intReply(1), ctx.Args, nil
}

func cmdRename(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	src, dst := ctx.Args[1], ctx.Args[2]
	e, ok := lookup(ctx, src)
	if !ok {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "no such key")
	}
	ctx.ShardFor(src).Delete(src)
	moved := &shard.Entry{
		Key: dst, Value: e.Value, ExpireAtMs: e.ExpireAtMs,
		Version: e.Version + 1, LastAccessMs: ctx.NowMs,
	}
	ctx.ShardFor(dst).Put(moved)
	return resp.SimpleString("OK"), ctx.Args, nil
}

func cmdKeys(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	pattern := ctx.Args[1]
	var out []resp.Value
	for _, sh := range ctx.DB.Shards {
		sh.Mu.RLock()
		for _, k := range sh.Keys() {
			if matched, _ := path.Match(pattern, k); matched {
				out = append(out, resp.BulkString(k))
			}
		}
		sh.Mu.RUnlock()
	}
	return resp.Array(out...), nil, nil
}

func cmdFlushDB(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	for _, sh := range ctx.DB.Shards {
		sh.Mu.Lock()
		for _, k := range sh.Keys() {
			sh.Delete(k)
		}
		sh.Mu.Unlock()
	}
	return resp.SimpleString("OK"), ctx.Args, nil
}

func cmdFlushAll(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	for _, db := range srv.DBs.DBs {
		for _, sh := range db.Shards {
			sh.Mu.Lock()
			for _, k := range sh.Keys() {
				sh.Delete(k)
			}
			sh.Mu.Unlock()
		}
	}
	return resp.SimpleString("OK"), ctx.Args, nil
}
