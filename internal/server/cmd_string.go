package server

import (
	"strconv"

	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/resp"
	"github.com/spineldb/spineldb/internal/store"
)

// registerStrings wires the String-type commands of spec.md §4.2.
func registerStrings(r *dispatch.Registry) {
	r.Register(&dispatch.Descriptor{Name: "GET", Arity: 2, Keys: dispatch.FirstKey, Handler: cmdGet})
	r.Register(&dispatch.Descriptor{Name: "SET", Arity: -3, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdSet})
	r.Register(&dispatch.Descriptor{Name: "SETNX", Arity: 3, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdSetNX})
	r.Register(&dispatch.Descriptor{Name: "SETEX", Arity: 4, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdSetEX})
	r.Register(&dispatch.Descriptor{Name: "GETSET", Arity: 3, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdGetSet})
	r.Register(&dispatch.Descriptor{Name: "APPEND", Arity: 3, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdAppend})
	r.Register(&dispatch.Descriptor{Name: "STRLEN", Arity: 2, Keys: dispatch.FirstKey, Handler: cmdStrlen})
	r.Register(&dispatch.Descriptor{Name: "GETRANGE", Arity: 4, Keys: dispatch.FirstKey, Handler: cmdGetRange})
	r.Register(&dispatch.Descriptor{Name: "SETRANGE", Arity: 4, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdSetRange})
	r.Register(&dispatch.Descriptor{Name: "INCR", Arity: 2, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdIncr})
	r.Register(&dispatch.Descriptor{Name: "DECR", Arity: 2, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdDecr})
	r.Register(&dispatch.Descriptor{Name: "INCRBY", Arity: 3, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdIncrBy})
	r.Register(&dispatch.Descriptor{Name: "DECRBY", Arity: 3, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdDecrBy})
	r.Register(&dispatch.Descriptor{Name: "INCRBYFLOAT", Arity: 3, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdIncrByFloat})
	r.Register(&dispatch.Descriptor{Name: "MGET", Arity: -2, Keys: dispatch.AllTrailingKeys, Handler: cmdMGet})
	r.Register(&dispatch.Descriptor{Name: "MSET", Arity: -3, IsWrite: true, Keys: msetKeys, Handler: cmdMSet})
}

func msetKeys(args []string) []string {
	var keys []string
	for i := 1; i < len(args); i += 2 {
		keys = append(keys, args[i])
	}
	return keys
}

func asString(ctx *dispatch.ExecContext, key string) (store.Str, bool, error) {
	e, ok := lookup(ctx, key)
	if !ok {
		return nil, false, nil
	}
	s, ok := e.Value.(store.Str)
	if !ok {
		return nil, false, wrongType()
	}
	return s, true, nil
}

func cmdGet(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	s, ok, err := asString(ctx, ctx.Args[1])
	if err != nil {
		return resp.Value{}, nil, err
	}
	if !ok {
		return resp.NullBulkString(), nil, nil
	}
	return resp.BulkString(string(s)), nil, nil
}

func cmdSet(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key, val := ctx.Args[1], ctx.Args[2]
	var expireAtMs int64
	var nx, xx bool

	for i := 3; i < len(ctx.Args); i++ {
		switch ctx.Args[i] {
		case "EX", "ex":
			i++
			sec, err := parseInt(ctx.Args[i])
			if err != nil {
				return resp.Value{}, nil, err
			}
			expireAtMs = ctx.NowMs + sec*1000
		case "PX", "px":
			i++
			ms, err := parseInt(ctx.Args[i])
			if err != nil {
				return resp.Value{}, nil, err
			}
			expireAtMs = ctx.NowMs + ms
		case "NX", "nx":
			nx = true
		case "XX", "xx":
			xx = true
		}
	}

	_, exists := lookup(ctx, key)
	if nx && exists {
		return resp.NullBulkString(), nil, nil
	}
	if xx && !exists {
		return resp.NullBulkString(), nil, nil
	}

	putString(ctx, key, []byte(val), expireAtMs)
	return resp.SimpleString("OK"), ctx.Args, nil
}

func cmdSetNX(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	if _, exists := lookup(ctx, key); exists {
		return intReply(0), nil, nil
	}
	putString(ctx, key, []byte(ctx.Args[2]), 0)
	return intReply(1), ctx.Args, nil
}

func cmdSetEX(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	sec, err := parseInt(ctx.Args[2])
	if err != nil {
		return resp.Value{}, nil, err
	}
	putString(ctx, ctx.Args[1], []byte(ctx.Args[3]), ctx.NowMs+sec*1000)
	return resp.SimpleString("OK"), ctx.Args, nil
}

func cmdGetSet(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	old, _, err := asString(ctx, key)
	if err != nil {
		return resp.Value{}, nil, err
	}
	putString(ctx, key, []byte(ctx.Args[2]), 0)
	if old == nil {
		return resp.NullBulkString(), ctx.Args, nil
	}
	return resp.BulkString(string(old)), ctx.Args, nil
}

func cmdAppend(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	cur, _, err := asString(ctx, key)
	if err != nil {
		return resp.Value{}, nil, err
	}
	next := append(append([]byte{}, cur...), ctx.Args[2]...)
	putString(ctx, key, next, expireOf(ctx, key))
	return intReply(len(next)), ctx.Args, nil
}

func expireOf(ctx *dispatch.ExecContext, key string) int64 {
	if e, ok := lookup(ctx, key); ok {
		return e.ExpireAtMs
	}
	return 0
}

func cmdStrlen(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	s, _, err := asString(ctx, ctx.Args[1])
	if err != nil {
		return resp.Value{}, nil, err
	}
	return intReply(len(s)), nil, nil
}

func cmdGetRange(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	s, _, err := asString(ctx, ctx.Args[1])
	if err != nil {
		return resp.Value{}, nil, err
	}
	start, err := parseInt(ctx.Args[2])
	if err != nil {
		return resp.Value{}, nil, err
	}
	stop, err := parseInt(ctx.Args[3])
	if err != nil {
		return resp.Value{}, nil, err
	}
	lo, hi := normalizeStringRange(int(start), int(stop), len(s))
	if lo > hi {
		return resp.BulkString(""), nil, nil
	}
	return resp.BulkString(string(s[lo : hi+1])), nil, nil
}

func normalizeStringRange(start, stop, n int) (int, int) {
	if n == 0 {
		return 0, -1
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}

func cmdSetRange(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	offset, err := parseInt(ctx.Args[2])
	if err != nil {
		return resp.Value{}, nil, err
	}
	cur, _, err := asString(ctx, key)
	if err != nil {
		return resp.Value{}, nil, err
	}
	patch := []byte(ctx.Args[3])
	end := int(offset) + len(patch)
	buf := make([]byte, max(end, len(cur)))
	copy(buf, cur)
	copy(buf[int(offset):], patch)
	putString(ctx, key, buf, expireOf(ctx, key))
	return intReply(len(buf)), ctx.Args, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func cmdIncr(ctx *dispatch.ExecContext) (resp.Value, []string, error) { return incrByHandler(ctx, 1) }
func cmdDecr(ctx *dispatch.ExecContext) (resp.Value, []string, error) { return incrByHandler(ctx, -1) }

func cmdIncrBy(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	n, err := parseInt(ctx.Args[2])
	if err != nil {
		return resp.Value{}, nil, err
	}
	return incrByHandler(ctx, n)
}

func cmdDecrBy(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	n, err := parseInt(ctx.Args[2])
	if err != nil {
		return resp.Value{}, nil, err
	}
	return incrByHandler(ctx, -n)
}

func incrByHandler(ctx *dispatch.ExecContext, delta int64) (resp.Value, []string, error) {
	key := ctx.Args[1]
	cur, _, err := asString(ctx, key)
	if err != nil {
		return resp.Value{}, nil, err
	}
	n := int64(0)
	if cur != nil {
		n, err = strconv.ParseInt(string(cur), 10, 64)
		if err != nil {
			return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "value is not an integer or out of range")
		}
	}
	n += delta
	putString(ctx, key, []byte(strconv.FormatInt(n, 10)), expireOf(ctx, key))
	return intReply(int(n)), ctx.Args, nil
}

func cmdIncrByFloat(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	delta, err := parseFloat(ctx.Args[2])
	if err != nil {
		return resp.Value{}, nil, err
	}
	cur, _, err := asString(ctx, key)
	if err != nil {
		return resp.Value{}, nil, err
	}
	f := 0.0
	if cur != nil {
		f, err = strconv.ParseFloat(string(cur), 64)
		if err != nil {
			return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "value is not a valid float")
		}
	}
	f += delta
	out := strconv.FormatFloat(f, 'f', -1, 64)
	putString(ctx, key, []byte(out), expireOf(ctx, key))
	return resp.BulkString(out), ctx.Args, nil
}

func cmdMGet(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	out := make([]resp.Value, 0, len(ctx.Args)-1)
	for _, key := range ctx.Args[1:] {
		s, ok, err := asString(ctx, key)
		if err != nil || !ok {
			out = append(out, resp.NullBulkString())
			continue
		}
		out = append(out, resp.BulkString(string(s)))
	}
	return resp.Array(out...), nil, nil
}

func cmdMSet(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	for i := 1; i+1 < len(ctx.Args); i += 2 {
		putString(ctx, ctx.Args[i], []byte(ctx.Args[i+1]), 0)
	}
	return resp.SimpleString("OK"), ctx.Args, nil
}
