package server

import (
	"strconv"
	"strings"

	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/resp"
	"github.com/spineldb/spineldb/internal/shard"
	"github.com/spineldb/spineldb/internal/store"
)

// registerStreams wires the Stream-type commands of spec.md §4.2.
func registerStreams(r *dispatch.Registry) {
	r.Register(&dispatch.Descriptor{Name: "XADD", Arity: -5, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdXAdd})
	r.Register(&dispatch.Descriptor{Name: "XLEN", Arity: 2, Keys: dispatch.FirstKey, Handler: cmdXLen})
	r.Register(&dispatch.Descriptor{Name: "XRANGE", Arity: -4, Keys: dispatch.FirstKey, Handler: cmdXRange})
	r.Register(&dispatch.Descriptor{Name: "XREAD", Arity: -4, Keys: dispatch.NoKeys, Handler: cmdXRead})
	r.Register(&dispatch.Descriptor{Name: "XGROUP", Arity: -4, IsWrite: true, Keys: xgroupKeys, Handler: cmdXGroup})
	r.Register(&dispatch.Descriptor{Name: "XACK", Arity: -4, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdXAck})
}

func asStream(ctx *dispatch.ExecContext, key string, create bool) (*store.Stream, error) {
	e, ok := lookup(ctx, key)
	if !ok {
		if !create {
			return nil, nil
		}
		s := store.NewStream()
		ctx.ShardFor(key).Put(&shard.Entry{Key: key, Value: s, Version: 1})
		return s, nil
	}
	s, ok := e.Value.(*store.Stream)
	if !ok {
		return nil, wrongType()
	}
	return s, nil
}

func parseStreamID(s string) (store.StreamID, error) {
	parts := strings.SplitN(s, "-", 2)
	ms, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return store.StreamID{}, dispatch.NewError(dispatch.KindGeneric, "Invalid stream ID specified as stream command argument")
	}
	if len(parts) == 1 {
		return store.StreamID{Ms: ms}, nil
	}
	seq, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return store.StreamID{}, dispatch.NewError(dispatch.KindGeneric, "Invalid stream ID specified as stream command argument")
	}
	return store.StreamID{Ms: ms, Seq: seq}, nil
}

func cmdXAdd(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	s, err := asStream(ctx, key, true)
	if err != nil {
		return resp.Value{}, nil, err
	}
	idArg := ctx.Args[2]
	var id store.StreamID
	if idArg == "*" {
		id = s.NextID(ctx.NowMs)
	} else {
		id, err = parseStreamID(idArg)
		if err != nil {
			return resp.Value{}, nil, err
		}
	}
	rest := ctx.Args[3:]
	if len(rest)%2 != 0 {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "wrong number of arguments for XADD")
	}
	fields := make([][2][]byte, 0, len(rest)/2)
	for i := 0; i+1 < len(rest); i += 2 {
		fields = append(fields, [2][]byte{[]byte(rest[i]), []byte(rest[i+1])})
	}
	if err := s.Append(id, fields); err != nil {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "%s", err.Error())
	}
	touchEntry(ctx, key)
	return resp.BulkString(id.String()), ctx.Args, nil
}

func cmdXLen(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	s, err := asStream(ctx, ctx.Args[1], false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if s == nil {
		return intReply(0), nil, nil
	}
	return intReply(s.Len()), nil, nil
}

func streamEntryReply(e store.StreamEntry) resp.Value {
	fields := make([]resp.Value, 0, len(e.Fields)*2)
	for _, fv := range e.Fields {
		fields = append(fields, resp.BulkString(string(fv[0])), resp.BulkString(string(fv[1])))
	}
	return resp.Array(resp.BulkString(e.ID.String()), resp.Array(fields...))
}

func cmdXRange(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	s, err := asStream(ctx, ctx.Args[1], false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if s == nil {
		return resp.Array(), nil, nil
	}
	from, err := streamRangeBound(ctx.Args[2], store.StreamID{})
	if err != nil {
		return resp.Value{}, nil, err
	}
	to, err := streamRangeBound(ctx.Args[3], store.StreamID{Ms: 1<<63 - 1})
	if err != nil {
		return resp.Value{}, nil, err
	}
	entries := s.Range(from, to)
	out := make([]resp.Value, len(entries))
	for i, e := range entries {
		out[i] = streamEntryReply(e)
	}
	return resp.Array(out...), nil, nil
}

func streamRangeBound(s string, open store.StreamID) (store.StreamID, error) {
	if s == "-" || s == "+" {
		return open, nil
	}
	return parseStreamID(s)
}

// cmdXRead reads XREAD [COUNT n] STREAMS key... id... — only the
// non-blocking single-poll form; spec.md's Non-goals exclude blocking
// consumer waits for this module.
func cmdXRead(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	args := ctx.Args[1:]
	streamsIdx := -1
	for i, a := range args {
		if strings.EqualFold(a, "STREAMS") {
			streamsIdx = i
			break
		}
	}
	if streamsIdx < 0 {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "syntax error")
	}
	rest := args[streamsIdx+1:]
	if len(rest)%2 != 0 {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "Unbalanced XREAD list of streams")
	}
	n := len(rest) / 2
	keys, ids := rest[:n], rest[n:]
	srv := srvOf(ctx)
	var out []resp.Value
	for i, key := range keys {
		sh := srv.DBs.DBs[ctx.DBIndex].ShardFor(key)
		sh.Mu.Lock()
		e, ok := shard.Lookup(sh, key, ctx.NowMs)
		var s *store.Stream
		if ok {
			s, _ = e.Value.(*store.Stream)
		}
		if s == nil {
			sh.Mu.Unlock()
			continue
		}
		afterID, err := parseStreamID(ids[i])
		if err != nil {
			sh.Mu.Unlock()
			return resp.Value{}, nil, err
		}
		entries := s.Range(store.StreamID{Ms: afterID.Ms, Seq: afterID.Seq + 1}, store.StreamID{Ms: 1<<63 - 1})
		sh.Mu.Unlock()
		if len(entries) == 0 {
			continue
		}
		items := make([]resp.Value, len(entries))
		for j, e2 := range entries {
			items[j] = streamEntryReply(e2)
		}
		out = append(out, resp.Array(resp.BulkString(key), resp.Array(items...)))
	}
	if len(out) == 0 {
		return resp.NullArray(), nil, nil
	}
	return resp.Array(out...), nil, nil
}

func xgroupKeys(args []string) []string {
	if len(args) < 3 {
		return nil
	}
	return []string{args[2]}
}

// cmdXGroup implements XGROUP CREATE key group id.
func cmdXGroup(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	if !strings.EqualFold(ctx.Args[1], "CREATE") {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "unsupported XGROUP subcommand")
	}
	key, group, idArg := ctx.Args[2], ctx.Args[3], ctx.Args[4]
	s, err := asStream(ctx, key, false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if s == nil {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "The XGROUP subcommand requires the key to exist")
	}
	startAfter := s.LastID()
	if idArg != "$" {
		startAfter, err = parseStreamID(idArg)
		if err != nil {
			return resp.Value{}, nil, err
		}
	}
	s.Group(group, startAfter)
	touchEntry(ctx, key)
	return resp.SimpleString("OK"), ctx.Args, nil
}

func cmdXAck(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key, group := ctx.Args[1], ctx.Args[2]
	s, err := asStream(ctx, key, false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if s == nil {
		return intReply(0), nil, nil
	}
	g, ok := s.Groups[group]
	if !ok {
		return intReply(0), nil, nil
	}
	acked := 0
	for _, idArg := range ctx.Args[3:] {
		id, err := parseStreamID(idArg)
		if err != nil {
			return resp.Value{}, nil, err
		}
		if _, pending := g.Pending[id]; pending {
			delete(g.Pending, id)
			acked++
		}
	}
	touchEntry(ctx, key)
	return intReply(acked), ctx.Args, nil
}
