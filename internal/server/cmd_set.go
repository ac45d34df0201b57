package server

import (
	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/resp"
	"github.com/spineldb/spineldb/internal/shard"
	"github.com/spineldb/spineldb/internal/store"
)

// registerSets wires the Set-type commands of spec.md §4.2.
func registerSets(r *dispatch.Registry) {
	r.Register(&dispatch.Descriptor{Name: "SADD", Arity: -3, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdSAdd})
	r.Register(&dispatch.Descriptor{Name: "SREM", Arity: -3, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdSRem})
	r.Register(&dispatch.Descriptor{Name: "SISMEMBER", Arity: 3, Keys: dispatch.FirstKey, Handler: cmdSIsMember})
	r.Register(&dispatch.Descriptor{Name: "SMEMBERS", Arity: 2, Keys: dispatch.FirstKey, Handler: cmdSMembers})
	r.Register(&dispatch.Descriptor{Name: "SCARD", Arity: 2, Keys: dispatch.FirstKey, Handler: cmdSCard})
	r.Register(&dispatch.Descriptor{Name: "SUNION", Arity: -2, Keys: dispatch.AllTrailingKeys, Handler: cmdSUnion})
	r.Register(&dispatch.Descriptor{Name: "SINTER", Arity: -2, Keys: dispatch.AllTrailingKeys, Handler: cmdSInter})
	r.Register(&dispatch.Descriptor{Name: "SDIFF", Arity: -2, Keys: dispatch.AllTrailingKeys, Handler: cmdSDiff})
}

func asSet(ctx *dispatch.ExecContext, key string, create bool) (*store.Set, error) {
	e, ok := lookup(ctx, key)
	if !ok {
		if !create {
			return nil, nil
		}
		s := store.NewSet()
		ctx.ShardFor(key).Put(&shard.Entry{Key: key, Value: s, Version: 1})
		return s, nil
	}
	s, ok := e.Value.(*store.Set)
	if !ok {
		return nil, wrongType()
	}
	return s, nil
}

func cmdSAdd(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	s, err := asSet(ctx, key, true)
	if err != nil {
		return resp.Value{}, nil, err
	}
	added := 0
	for _, m := range ctx.Args[2:] {
		if s.Add(m) {
			added++
		}
	}
	touchEntry(ctx, key)
	return intReply(added), ctx.Args, nil
}

func cmdSRem(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	s, err := asSet(ctx, key, false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if s == nil {
		return intReply(0), nil, nil
	}
	removed := 0
	for _, m := range ctx.Args[2:] {
		if s.Remove(m) {
			removed++
		}
	}
	touchEntry(ctx, key)
	return intReply(removed), ctx.Args, nil
}

func cmdSIsMember(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	s, err := asSet(ctx, ctx.Args[1], false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if s == nil || !s.Has(ctx.Args[2]) {
		return intReply(0), nil, nil
	}
	return intReply(1), nil, nil
}

func cmdSMembers(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	s, err := asSet(ctx, ctx.Args[1], false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if s == nil {
		return resp.Array(), nil, nil
	}
	members := s.Members()
	out := make([]resp.Value, len(members))
	for i, m := range members {
		out[i] = resp.BulkString(m)
	}
	return resp.Array(out...), nil, nil
}

func cmdSCard(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	s, err := asSet(ctx, ctx.Args[1], false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if s == nil {
		return intReply(0), nil, nil
	}
	return intReply(s.Len()), nil, nil
}

func loadSets(ctx *dispatch.ExecContext, keys []string) ([]*store.Set, error) {
	sets := make([]*store.Set, 0, len(keys))
	for _, key := range keys {
		s, err := asSet(ctx, key, false)
		if err != nil {
			return nil, err
		}
		if s != nil {
			sets = append(sets, s)
		}
	}
	return sets, nil
}

func cmdSUnion(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	sets, err := loadSets(ctx, ctx.Args[1:])
	if err != nil {
		return resp.Value{}, nil, err
	}
	seen := make(map[string]bool)
	var out []resp.Value
	for _, s := range sets {
		for _, m := range s.Members() {
			if !seen[m] {
				seen[m] = true
				out = append(out, resp.BulkString(m))
			}
		}
	}
	return resp.Array(out...), nil, nil
}

func cmdSInter(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	sets, err := loadSets(ctx, ctx.Args[1:])
	if err != nil {
		return resp.Value{}, nil, err
	}
	if len(sets) < len(ctx.Args)-1 {
		return resp.Array(), nil, nil
	}
	var out []resp.Value
	for _, m := range sets[0].Members() {
		inAll := true
		for _, s := range sets[1:] {
			if !s.Has(m) {
				inAll = false
				break
			}
		}
		if inAll {
			out = append(out, resp.BulkString(m))
		}
	}
	return resp.Array(out...), nil, nil
}

func cmdSDiff(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	first, err := asSet(ctx, ctx.Args[1], false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if first == nil {
		return resp.Array(), nil, nil
	}
	others, err := loadSets(ctx, ctx.Args[2:])
	if err != nil {
		return resp.Value{}, nil, err
	}
	var out []resp.Value
	for _, m := range first.Members() {
		excluded := false
		for _, s := range others {
			if s.Has(m) {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, resp.BulkString(m))
		}
	}
	return resp.Array(out...), nil, nil
}
