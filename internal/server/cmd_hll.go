package server

import (
	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/resp"
	"github.com/spineldb/spineldb/internal/shard"
	"github.com/spineldb/spineldb/internal/store"
)

// registerHll wires the HyperLogLog commands of spec.md §4.2.
func registerHll(r *dispatch.Registry) {
	r.Register(&dispatch.Descriptor{Name: "PFADD", Arity: -2, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdPFAdd})
	r.Register(&dispatch.Descriptor{Name: "PFCOUNT", Arity: -2, Keys: dispatch.AllTrailingKeys, Handler: cmdPFCount})
	r.Register(&dispatch.Descriptor{Name: "PFMERGE", Arity: -2, IsWrite: true, Keys: dispatch.AllTrailingKeys, Handler: cmdPFMerge})
}

func asHll(ctx *dispatch.ExecContext, key string, create bool) (*store.Hll, error) {
	e, ok := lookup(ctx, key)
	if !ok {
		if !create {
			return nil, nil
		}
		h := store.NewHll()
		ctx.ShardFor(key).Put(&shard.Entry{Key: key, Value: h, Version: 1})
		return h, nil
	}
	h, ok := e.Value.(*store.Hll)
	if !ok {
		return nil, wrongType()
	}
	return h, nil
}

func cmdPFAdd(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	h, err := asHll(ctx, key, true)
	if err != nil {
		return resp.Value{}, nil, err
	}
	changed := false
	for _, m := range ctx.Args[2:] {
		if h.Add([]byte(m)) {
			changed = true
		}
	}
	touchEntry(ctx, key)
	if changed {
		return intReply(1), ctx.Args, nil
	}
	return intReply(0), nil, nil
}

func cmdPFCount(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	if len(ctx.Args) == 2 {
		h, err := asHll(ctx, ctx.Args[1], false)
		if err != nil {
			return resp.Value{}, nil, err
		}
		if h == nil {
			return intReply(0), nil, nil
		}
		return intReply(int(h.Count())), nil, nil
	}
	merged := store.NewHll()
	for _, key := range ctx.Args[1:] {
		h, err := asHll(ctx, key, false)
		if err != nil {
			return resp.Value{}, nil, err
		}
		if h != nil {
			merged.Merge(h)
		}
	}
	return intReply(int(merged.Count())), nil, nil
}

func cmdPFMerge(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	dest := ctx.Args[1]
	target, err := asHll(ctx, dest, true)
	if err != nil {
		return resp.Value{}, nil, err
	}
	for _, key := range ctx.Args[2:] {
		src, err := asHll(ctx, key, false)
		if err != nil {
			return resp.Value{}, nil, err
		}
		if src != nil {
			target.Merge(src)
		}
	}
	touchEntry(ctx, dest)
	return resp.SimpleString("OK"), ctx.Args, nil
}
