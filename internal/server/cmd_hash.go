package server

import (
	"strconv"

	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/resp"
	"github.com/spineldb/spineldb/internal/shard"
	"github.com/spineldb/spineldb/internal/store"
)

// registerHashes wires the Hash-type commands of spec.md §4.2.
func registerHashes(r *dispatch.Registry) {
	r.Register(&dispatch.Descriptor{Name: "HSET", Arity: -4, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdHSet})
	r.Register(&dispatch.Descriptor{Name: "HGET", Arity: 3, Keys: dispatch.FirstKey, Handler: cmdHGet})
	r.Register(&dispatch.Descriptor{Name: "HDEL", Arity: -3, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdHDel})
	r.Register(&dispatch.Descriptor{Name: "HGETALL", Arity: 2, Keys: dispatch.FirstKey, Handler: cmdHGetAll})
	r.Register(&dispatch.Descriptor{Name: "HEXISTS", Arity: 3, Keys: dispatch.FirstKey, Handler: cmdHExists})
	r.Register(&dispatch.Descriptor{Name: "HLEN", Arity: 2, Keys: dispatch.FirstKey, Handler: cmdHLen})
	r.Register(&dispatch.Descriptor{Name: "HKEYS", Arity: 2, Keys: dispatch.FirstKey, Handler: cmdHKeys})
	r.Register(&dispatch.Descriptor{Name: "HVALS", Arity: 2, Keys: dispatch.FirstKey, Handler: cmdHVals})
	r.Register(&dispatch.Descriptor{Name: "HMGET", Arity: -3, Keys: dispatch.FirstKey, Handler: cmdHMGet})
	r.Register(&dispatch.Descriptor{Name: "HINCRBY", Arity: 4, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdHIncrBy})
}

func asHash(ctx *dispatch.ExecContext, key string, create bool) (*store.Hash, error) {
	e, ok := lookup(ctx, key)
	if !ok {
		if !create {
			return nil, nil
		}
		h := store.NewHash()
		ctx.ShardFor(key).Put(&shard.Entry{Key: key, Value: h, Version: 1})
		return h, nil
	}
	h, ok := e.Value.(*store.Hash)
	if !ok {
		return nil, wrongType()
	}
	return h, nil
}

func cmdHSet(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	h, err := asHash(ctx, key, true)
	if err != nil {
		return resp.Value{}, nil, err
	}
	created := 0
	for i := 2; i+1 < len(ctx.Args); i += 2 {
		if h.Set(ctx.Args[i], []byte(ctx.Args[i+1])) {
			created++
		}
	}
	touchEntry(ctx, key)
	return intReply(created), ctx.Args, nil
}

func cmdHGet(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	h, err := asHash(ctx, ctx.Args[1], false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if h == nil {
		return resp.NullBulkString(), nil, nil
	}
	v, ok := h.Get(ctx.Args[2])
	if !ok {
		return resp.NullBulkString(), nil, nil
	}
	return resp.BulkString(string(v)), nil, nil
}

func cmdHDel(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	h, err := asHash(ctx, key, false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if h == nil {
		return intReply(0), nil, nil
	}
	removed := 0
	for _, field := range ctx.Args[2:] {
		if h.Del(field) {
			removed++
		}
	}
	touchEntry(ctx, key)
	return intReply(removed), ctx.Args, nil
}

func cmdHGetAll(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	h, err := asHash(ctx, ctx.Args[1], false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if h == nil {
		return resp.Array(), nil, nil
	}
	var out []resp.Value
	for _, f := range h.Fields() {
		v, _ := h.Get(f)
		out = append(out, resp.BulkString(f), resp.BulkString(string(v)))
	}
	return resp.Array(out...), nil, nil
}

func cmdHExists(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	h, err := asHash(ctx, ctx.Args[1], false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if h == nil {
		return intReply(0), nil, nil
	}
	if _, ok := h.Get(ctx.Args[2]); ok {
		return intReply(1), nil, nil
	}
	return intReply(0), nil, nil
}

func cmdHLen(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	h, err := asHash(ctx, ctx.Args[1], false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if h == nil {
		return intReply(0), nil, nil
	}
	return intReply(h.Len()), nil, nil
}

func cmdHKeys(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	h, err := asHash(ctx, ctx.Args[1], false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if h == nil {
		return resp.Array(), nil, nil
	}
	out := make([]resp.Value, 0, h.Len())
	for _, f := range h.Fields() {
		out = append(out, resp.BulkString(f))
	}
	return resp.Array(out...), nil, nil
}

func cmdHVals(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	h, err := asHash(ctx, ctx.Args[1], false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if h == nil {
		return resp.Array(), nil, nil
	}
	out := make([]resp.Value, 0, h.Len())
	for _, f := range h.Fields() {
		v, _ := h.Get(f)
		out = append(out, resp.BulkString(string(v)))
	}
	return resp.Array(out...), nil, nil
}

func cmdHMGet(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	h, err := asHash(ctx, ctx.Args[1], false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	out := make([]resp.Value, 0, len(ctx.Args)-2)
	for _, f := range ctx.Args[2:] {
		if h == nil {
			out = append(out, resp.NullBulkString())
			continue
		}
		v, ok := h.Get(f)
		if !ok {
			out = append(out, resp.NullBulkString())
			continue
		}
		out = append(out, resp.BulkString(string(v)))
	}
	return resp.Array(out...), nil, nil
}

func cmdHIncrBy(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	h, err := asHash(ctx, key, true)
	if err != nil {
		return resp.Value{}, nil, err
	}
	delta, err := parseInt(ctx.Args[3])
	if err != nil {
		return resp.Value{}, nil, err
	}
	n := int64(0)
	if cur, ok := h.Get(ctx.Args[2]); ok {
		n, err = strconv.ParseInt(string(cur), 10, 64)
		if err != nil {
			return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "hash value is not an integer")
		}
	}
	n += delta
	h.Set(ctx.Args[2], []byte(strconv.FormatInt(n, 10)))
	touchEntry(ctx, key)
	return intReply(int(n)), ctx.Args, nil
}
