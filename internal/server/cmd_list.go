package server

import (
	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/resp"
	"github.com/spineldb/spineldb/internal/shard"
	"github.com/spineldb/spineldb/internal/store"
)

// registerLists wires the List-type commands of spec.md §4.2.
func registerLists(r *dispatch.Registry) {
	r.Register(&dispatch.Descriptor{Name: "LPUSH", Arity: -3, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdLPush})
	r.Register(&dispatch.Descriptor{Name: "RPUSH", Arity: -3, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdRPush})
	r.Register(&dispatch.Descriptor{Name: "LPOP", Arity: -2, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdLPop})
	r.Register(&dispatch.Descriptor{Name: "RPOP", Arity: -2, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdRPop})
	r.Register(&dispatch.Descriptor{Name: "LLEN", Arity: 2, Keys: dispatch.FirstKey, Handler: cmdLLen})
	r.Register(&dispatch.Descriptor{Name: "LRANGE", Arity: 4, Keys: dispatch.FirstKey, Handler: cmdLRange})
	r.Register(&dispatch.Descriptor{Name: "LINDEX", Arity: 3, Keys: dispatch.FirstKey, Handler: cmdLIndex})
	r.Register(&dispatch.Descriptor{Name: "LSET", Arity: 4, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdLSet})
	r.Register(&dispatch.Descriptor{Name: "LREM", Arity: 4, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdLRem})
	r.Register(&dispatch.Descriptor{Name: "LTRIM", Arity: 4, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdLTrim})
}

func asList(ctx *dispatch.ExecContext, key string, create bool) (*store.List, error) {
	e, ok := lookup(ctx, key)
	if !ok {
		if !create {
			return nil, nil
		}
		l := store.NewList()
		sh := ctx.ShardFor(key)
		sh.Put(&shard.Entry{Key: key, Value: l, Version: 1})
		return l, nil
	}
	l, ok := e.Value.(*store.List)
	if !ok {
		return nil, wrongType()
	}
	return l, nil
}

func cmdLPush(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	l, err := asList(ctx, key, true)
	if err != nil {
		return resp.Value{}, nil, err
	}
	for _, v := range ctx.Args[2:] {
		l.Items = append([][]byte{[]byte(v)}, l.Items...)
	}
	touchEntry(ctx, key)
	return intReply(len(l.Items)), ctx.Args, nil
}

func cmdRPush(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	l, err := asList(ctx, key, true)
	if err != nil {
		return resp.Value{}, nil, err
	}
	for _, v := range ctx.Args[2:] {
		l.Items = append(l.Items, []byte(v))
	}
	touchEntry(ctx, key)
	return intReply(len(l.Items)), ctx.Args, nil
}

func touchEntry(ctx *dispatch.ExecContext, key string) {
	if e, ok := ctx.ShardFor(key).Get(key); ok {
		e.Version++
	}
}

func cmdLPop(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	l, err := asList(ctx, key, false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if l == nil || len(l.Items) == 0 {
		return resp.NullBulkString(), nil, nil
	}
	v := l.Items[0]
	l.Items = l.Items[1:]
	touchEntry(ctx, key)
	return resp.BulkString(string(v)), ctx.Args, nil
}

func cmdRPop(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	l, err := asList(ctx, key, false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if l == nil || len(l.Items) == 0 {
		return resp.NullBulkString(), nil, nil
	}
	v := l.Items[len(l.Items)-1]
	l.Items = l.Items[:len(l.Items)-1]
	touchEntry(ctx, key)
	return resp.BulkString(string(v)), ctx.Args, nil
}

func cmdLLen(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	l, err := asList(ctx, ctx.Args[1], false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if l == nil {
		return intReply(0), nil, nil
	}
	return intReply(len(l.Items)), nil, nil
}

func cmdLRange(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	l, err := asList(ctx, ctx.Args[1], false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if l == nil {
		return resp.Array(), nil, nil
	}
	start, err := parseInt(ctx.Args[2])
	if err != nil {
		return resp.Value{}, nil, err
	}
	stop, err := parseInt(ctx.Args[3])
	if err != nil {
		return resp.Value{}, nil, err
	}
	lo, hi := normalizeStringRange(int(start), int(stop), len(l.Items))
	if lo > hi {
		return resp.Array(), nil, nil
	}
	out := make([]resp.Value, 0, hi-lo+1)
	for _, item := range l.Items[lo : hi+1] {
		out = append(out, resp.BulkString(string(item)))
	}
	return resp.Array(out...), nil, nil
}

func cmdLIndex(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	l, err := asList(ctx, ctx.Args[1], false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if l == nil {
		return resp.NullBulkString(), nil, nil
	}
	idx, err := parseInt(ctx.Args[2])
	if err != nil {
		return resp.Value{}, nil, err
	}
	i := int(idx)
	if i < 0 {
		i += len(l.Items)
	}
	if i < 0 || i >= len(l.Items) {
		return resp.NullBulkString(), nil, nil
	}
	return resp.BulkString(string(l.Items[i])), nil, nil
}

func cmdLSet(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	l, err := asList(ctx, key, false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if l == nil {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "no such key")
	}
	idx, err := parseInt(ctx.Args[2])
	if err != nil {
		return resp.Value{}, nil, err
	}
	i := int(idx)
	if i < 0 {
		i += len(l.Items)
	}
	if i < 0 || i >= len(l.Items) {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "index out of range")
	}
	l.Items[i] = []byte(ctx.Args[3])
	touchEntry(ctx, key)
	return resp.SimpleString("OK"), ctx.Args, nil
}

func cmdLRem(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	l, err := asList(ctx, key, false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if l == nil {
		return intReply(0), nil, nil
	}
	count, err := parseInt(ctx.Args[2])
	if err != nil {
		return resp.Value{}, nil, err
	}
	target := ctx.Args[3]
	removed := 0
	out := l.Items[:0]
	if count >= 0 {
		limit := int(count)
		for _, item := range l.Items {
			if (limit == 0 || removed < limit) && string(item) == target {
				removed++
				continue
			}
			out = append(out, item)
		}
	} else {
		limit := int(-count)
		for i := len(l.Items) - 1; i >= 0; i-- {
			if removed < limit && string(l.Items[i]) == target {
				removed++
				continue
			}
			out = append([][]byte{l.Items[i]}, out...)
		}
	}
	l.Items = out
	touchEntry(ctx, key)
	return intReply(removed), ctx.Args, nil
}

func cmdLTrim(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	l, err := asList(ctx, key, false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if l == nil {
		return resp.SimpleString("OK"), nil, nil
	}
	start, err := parseInt(ctx.Args[2])
	if err != nil {
		return resp.Value{}, nil, err
	}
	stop, err := parseInt(ctx.Args[3])
	if err != nil {
		return resp.Value{}, nil, err
	}
	lo, hi := normalizeStringRange(int(start), int(stop), len(l.Items))
	if lo > hi {
		l.Items = nil
	} else {
		l.Items = l.Items[lo : hi+1]
	}
	touchEntry(ctx, key)
	return resp.SimpleString("OK"), ctx.Args, nil
}
