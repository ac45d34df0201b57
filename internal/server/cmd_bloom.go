package server

import (
	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/resp"
	"github.com/spineldb/spineldb/internal/shard"
	"github.com/spineldb/spineldb/internal/store"
)

// registerBloom wires the BloomFilter commands of spec.md §4.2.
func registerBloom(r *dispatch.Registry) {
	r.Register(&dispatch.Descriptor{Name: "BF.RESERVE", Arity: 4, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdBFReserve})
	r.Register(&dispatch.Descriptor{Name: "BF.ADD", Arity: 3, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdBFAdd})
	r.Register(&dispatch.Descriptor{Name: "BF.EXISTS", Arity: 3, Keys: dispatch.FirstKey, Handler: cmdBFExists})
}

func asBloom(ctx *dispatch.ExecContext, key string) (*store.BloomFilter, error) {
	e, ok := lookup(ctx, key)
	if !ok {
		return nil, nil
	}
	b, ok := e.Value.(*store.BloomFilter)
	if !ok {
		return nil, wrongType()
	}
	return b, nil
}

func cmdBFReserve(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	if existing, err := asBloom(ctx, key); err != nil {
		return resp.Value{}, nil, err
	} else if existing != nil {
		errRate, rateErr := parseFloat(ctx.Args[2])
		capacity, capErr := parseInt(ctx.Args[3])
		if rateErr == nil && capErr == nil && existing.Capacity == uint64(capacity) && existing.ErrorRate == errRate {
			return resp.SimpleString("OK"), nil, nil
		}
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "item exists")
	}
	errRate, err := parseFloat(ctx.Args[2])
	if err != nil {
		return resp.Value{}, nil, err
	}
	capacity, err := parseInt(ctx.Args[3])
	if err != nil {
		return resp.Value{}, nil, err
	}
	b := store.NewBloomFilter(uint64(capacity), errRate)
	ctx.ShardFor(key).Put(&shard.Entry{Key: key, Value: b, Version: 1})
	return resp.SimpleString("OK"), ctx.Args, nil
}

func cmdBFAdd(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	b, err := asBloom(ctx, key)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if b == nil {
		b = store.NewBloomFilter(1000, 0.01)
		ctx.ShardFor(key).Put(&shard.Entry{Key: key, Value: b, Version: 1})
	}
	added := b.Add([]byte(ctx.Args[2]))
	touchEntry(ctx, key)
	if added {
		return intReply(1), ctx.Args, nil
	}
	return intReply(0), ctx.Args, nil
}

func cmdBFExists(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	b, err := asBloom(ctx, ctx.Args[1])
	if err != nil {
		return resp.Value{}, nil, err
	}
	if b == nil || !b.Test([]byte(ctx.Args[2])) {
		return intReply(0), nil, nil
	}
	return intReply(1), nil, nil
}
