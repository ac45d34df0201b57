package server

import (
	"strconv"
	"strings"

	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/resp"
	"github.com/spineldb/spineldb/internal/shard"
	"github.com/spineldb/spineldb/internal/store"
)

// registerSortedSets wires the SortedSet-type commands of spec.md §4.2.
func registerSortedSets(r *dispatch.Registry) {
	r.Register(&dispatch.Descriptor{Name: "ZADD", Arity: -4, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdZAdd})
	r.Register(&dispatch.Descriptor{Name: "ZSCORE", Arity: 3, Keys: dispatch.FirstKey, Handler: cmdZScore})
	r.Register(&dispatch.Descriptor{Name: "ZREM", Arity: -3, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdZRem})
	r.Register(&dispatch.Descriptor{Name: "ZCARD", Arity: 2, Keys: dispatch.FirstKey, Handler: cmdZCard})
	r.Register(&dispatch.Descriptor{Name: "ZRANGE", Arity: -4, Keys: dispatch.FirstKey, Handler: cmdZRange})
	r.Register(&dispatch.Descriptor{Name: "ZRANGEBYSCORE", Arity: -4, Keys: dispatch.FirstKey, Handler: cmdZRangeByScore})
	r.Register(&dispatch.Descriptor{Name: "ZRANGEBYLEX", Arity: -4, Keys: dispatch.FirstKey, Handler: cmdZRangeByLex})
	r.Register(&dispatch.Descriptor{Name: "ZRANK", Arity: 3, Keys: dispatch.FirstKey, Handler: cmdZRank})
	r.Register(&dispatch.Descriptor{Name: "ZINCRBY", Arity: 4, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdZIncrBy})
}

func asZSet(ctx *dispatch.ExecContext, key string, create bool) (*store.SortedSet, error) {
	e, ok := lookup(ctx, key)
	if !ok {
		if !create {
			return nil, nil
		}
		z := store.NewSortedSet()
		ctx.ShardFor(key).Put(&shard.Entry{Key: key, Value: z, Version: 1})
		return z, nil
	}
	z, ok := e.Value.(*store.SortedSet)
	if !ok {
		return nil, wrongType()
	}
	return z, nil
}

func cmdZAdd(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	z, err := asZSet(ctx, key, true)
	if err != nil {
		return resp.Value{}, nil, err
	}
	added := 0
	for i := 2; i+1 < len(ctx.Args); i += 2 {
		score, err := parseFloat(ctx.Args[i])
		if err != nil {
			return resp.Value{}, nil, err
		}
		isNew, err := z.Add(ctx.Args[i+1], score)
		if err != nil {
			return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "%s", err.Error())
		}
		if isNew {
			added++
		}
	}
	touchEntry(ctx, key)
	return intReply(added), ctx.Args, nil
}

func cmdZScore(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	z, err := asZSet(ctx, ctx.Args[1], false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if z == nil {
		return resp.NullBulkString(), nil, nil
	}
	score, ok := z.Score(ctx.Args[2])
	if !ok {
		return resp.NullBulkString(), nil, nil
	}
	return resp.BulkString(formatScore(score)), nil, nil
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

func cmdZRem(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	z, err := asZSet(ctx, key, false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if z == nil {
		return intReply(0), nil, nil
	}
	removed := 0
	for _, m := range ctx.Args[2:] {
		if z.Remove(m) {
			removed++
		}
	}
	touchEntry(ctx, key)
	return intReply(removed), ctx.Args, nil
}

func cmdZCard(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	z, err := asZSet(ctx, ctx.Args[1], false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if z == nil {
		return intReply(0), nil, nil
	}
	return intReply(z.Len()), nil, nil
}

func membersReply(members []store.Member, withScores bool) resp.Value {
	out := make([]resp.Value, 0, len(members)*2)
	for _, m := range members {
		out = append(out, resp.BulkString(m.Member))
		if withScores {
			out = append(out, resp.BulkString(formatScore(m.Score)))
		}
	}
	return resp.Array(out...)
}

func cmdZRange(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	z, err := asZSet(ctx, ctx.Args[1], false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if z == nil {
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
	withScores := len(ctx.Args) > 4 && strings.EqualFold(ctx.Args[4], "WITHSCORES")
	return membersReply(z.Range(int(start), int(stop)), withScores), nil, nil
}

func parseScoreBound(s string) (store.ScoreBound, error) {
	switch s {
	case "-inf":
		return store.ScoreBound{Inf: -1}, nil
	case "+inf":
		return store.ScoreBound{Inf: 1}, nil
	}
	exclusive := strings.HasPrefix(s, "(")
	if exclusive {
		s = s[1:]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return store.ScoreBound{}, dispatch.NewError(dispatch.KindGeneric, "min or max is not a float")
	}
	return store.ScoreBound{Value: v, Exclusive: exclusive}, nil
}

func cmdZRangeByScore(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	z, err := asZSet(ctx, ctx.Args[1], false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if z == nil {
		return resp.Array(), nil, nil
	}
	min, err := parseScoreBound(ctx.Args[2])
	if err != nil {
		return resp.Value{}, nil, err
	}
	max, err := parseScoreBound(ctx.Args[3])
	if err != nil {
		return resp.Value{}, nil, err
	}
	withScores := len(ctx.Args) > 4 && strings.EqualFold(ctx.Args[4], "WITHSCORES")
	return membersReply(z.RangeByScore(min, max), withScores), nil, nil
}

func parseLexBound(s string) (store.LexBound, error) {
	if s == "-" {
		return store.LexBound{Sentinel: '-'}, nil
	}
	if s == "+" {
		return store.LexBound{Sentinel: '+'}, nil
	}
	if strings.HasPrefix(s, "(") {
		return store.LexBound{Value: s[1:], Exclusive: true}, nil
	}
	if strings.HasPrefix(s, "[") {
		return store.LexBound{Value: s[1:]}, nil
	}
	return store.LexBound{}, dispatch.NewError(dispatch.KindGeneric, "min or max not valid string range item")
}

func cmdZRangeByLex(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	z, err := asZSet(ctx, ctx.Args[1], false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if z == nil {
		return resp.Array(), nil, nil
	}
	min, err := parseLexBound(ctx.Args[2])
	if err != nil {
		return resp.Value{}, nil, err
	}
	max, err := parseLexBound(ctx.Args[3])
	if err != nil {
		return resp.Value{}, nil, err
	}
	return membersReply(z.RangeByLex(min, max), false), nil, nil
}

func cmdZRank(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	z, err := asZSet(ctx, ctx.Args[1], false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if z == nil {
		return resp.NullBulkString(), nil, nil
	}
	target := ctx.Args[2]
	if _, ok := z.Score(target); !ok {
		return resp.NullBulkString(), nil, nil
	}
	for i, m := range z.Range(0, -1) {
		if m.Member == target {
			return intReply(i), nil, nil
		}
	}
	return resp.NullBulkString(), nil, nil
}

func cmdZIncrBy(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	z, err := asZSet(ctx, key, true)
	if err != nil {
		return resp.Value{}, nil, err
	}
	delta, err := parseFloat(ctx.Args[2])
	if err != nil {
		return resp.Value{}, nil, err
	}
	member := ctx.Args[3]
	score, _ := z.Score(member)
	score += delta
	if _, err := z.Add(member, score); err != nil {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "%s", err.Error())
	}
	touchEntry(ctx, key)
	return resp.BulkString(formatScore(score)), ctx.Args, nil
}
