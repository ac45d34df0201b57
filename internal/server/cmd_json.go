package server

import (
	"encoding/json"

	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/resp"
	"github.com/spineldb/spineldb/internal/shard"
	"github.com/spineldb/spineldb/internal/store"
)

// registerJSON wires the JsonDocument commands of spec.md §4.2. There is
// no JSONPath or tree library anywhere in the reference stack, so
// marshaling between store.JSONNode and wire text goes through the
// standard library's encoding/json, the same package internal/acl's user
// file and internal/cluster's gossip messages are encoded with.
func registerJSON(r *dispatch.Registry) {
	r.Register(&dispatch.Descriptor{Name: "JSON.SET", Arity: 4, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdJSONSet})
	r.Register(&dispatch.Descriptor{Name: "JSON.GET", Arity: -2, Keys: dispatch.FirstKey, Handler: cmdJSONGet})
	r.Register(&dispatch.Descriptor{Name: "JSON.DEL", Arity: -2, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdJSONDel})
	r.Register(&dispatch.Descriptor{Name: "JSON.NUMINCRBY", Arity: 4, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdJSONNumIncrBy})
	r.Register(&dispatch.Descriptor{Name: "JSON.ARRAPPEND", Arity: -4, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdJSONArrAppend})
	r.Register(&dispatch.Descriptor{Name: "JSON.ARRINSERT", Arity: -5, IsWrite: true, Keys: dispatch.FirstKey, Handler: cmdJSONArrInsert})
}

func asJSONDoc(ctx *dispatch.ExecContext, key string, create bool) (*store.JSONDocument, error) {
	e, ok := lookup(ctx, key)
	if !ok {
		if !create {
			return nil, nil
		}
		d := store.NewJSONDocument(store.JSONNull())
		ctx.ShardFor(key).Put(&shard.Entry{Key: key, Value: d, Version: 1})
		return d, nil
	}
	d, ok := e.Value.(*store.JSONDocument)
	if !ok {
		return nil, wrongType()
	}
	return d, nil
}

func nodeToAny(n *store.JSONNode) any {
	switch {
	case n == nil || n.Null:
		return nil
	case n.IsBool:
		return n.Bool
	case n.IsInt:
		return n.Int
	case n.IsFlt:
		return n.Float
	case n.IsStr:
		return n.Str
	case n.IsArr:
		out := make([]any, len(n.Arr))
		for i, e := range n.Arr {
			out[i] = nodeToAny(e)
		}
		return out
	case n.IsObj:
		out := make(map[string]any, len(n.Keys))
		for _, k := range n.Keys {
			out[k] = nodeToAny(n.Obj[k])
		}
		return out
	}
	return nil
}

func anyToNode(v any) *store.JSONNode {
	switch t := v.(type) {
	case nil:
		return store.JSONNull()
	case bool:
		return store.JSONBool(t)
	case float64:
		if t == float64(int64(t)) {
			return store.JSONInt(int64(t))
		}
		return store.JSONFloat(t)
	case string:
		return store.JSONString(t)
	case []any:
		items := make([]*store.JSONNode, len(t))
		for i, e := range t {
			items[i] = anyToNode(e)
		}
		return store.JSONArray(items...)
	case map[string]any:
		obj := store.JSONObject()
		for k, e := range t {
			obj.Set(k, anyToNode(e))
		}
		return obj
	}
	return store.JSONNull()
}

func parseJSONText(text string) (*store.JSONNode, error) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, dispatch.NewError(dispatch.KindGeneric, "invalid JSON value: %v", err)
	}
	return anyToNode(v), nil
}

func nodeToJSONText(n *store.JSONNode) (string, error) {
	b, err := json.Marshal(nodeToAny(n))
	if err != nil {
		return "", dispatch.NewError(dispatch.KindGeneric, "could not encode JSON value: %v", err)
	}
	return string(b), nil
}

func cmdJSONSet(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key, path, text := ctx.Args[1], ctx.Args[2], ctx.Args[3]
	value, err := parseJSONText(text)
	if err != nil {
		return resp.Value{}, nil, err
	}
	d, err := asJSONDoc(ctx, key, true)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if path == "$" || path == "." {
		d.Root = value
	} else if err := store.SetPath(d.Root, path, value, store.ModeCreateMissing); err != nil {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "%s", err.Error())
	}
	touchEntry(ctx, key)
	return resp.SimpleString("OK"), ctx.Args, nil
}

func cmdJSONGet(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	d, err := asJSONDoc(ctx, ctx.Args[1], false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if d == nil {
		return resp.NullBulkString(), nil, nil
	}
	path := "$"
	if len(ctx.Args) > 2 {
		path = ctx.Args[2]
	}
	if path == "$" || path == "." {
		text, err := nodeToJSONText(d.Root)
		if err != nil {
			return resp.Value{}, nil, err
		}
		return resp.BulkString(text), nil, nil
	}
	nodes, err := store.Get(d.Root, path)
	if err != nil {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "%s", err.Error())
	}
	if len(nodes) == 0 {
		return resp.NullBulkString(), nil, nil
	}
	text, err := nodeToJSONText(nodes[0])
	if err != nil {
		return resp.Value{}, nil, err
	}
	return resp.BulkString(text), nil, nil
}

func cmdJSONDel(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key := ctx.Args[1]
	if len(ctx.Args) == 2 || ctx.Args[2] == "$" {
		if _, ok := lookup(ctx, key); !ok {
			return intReply(0), nil, nil
		}
		ctx.ShardFor(key).Delete(key)
		return intReply(1), ctx.Args, nil
	}
	return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "JSON.DEL only supports the root path")
}

func cmdJSONNumIncrBy(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key, path := ctx.Args[1], ctx.Args[2]
	d, err := asJSONDoc(ctx, key, false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if d == nil {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "no such key")
	}
	delta, err := parseFloat(ctx.Args[3])
	if err != nil {
		return resp.Value{}, nil, err
	}
	deltaIsFloat := containsDot(ctx.Args[3])
	n, err := store.NumIncrBy(d.Root, path, delta, deltaIsFloat)
	if err != nil {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "%s", err.Error())
	}
	touchEntry(ctx, key)
	text, err := nodeToJSONText(n)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if n.IsFlt && !containsDot(text) {
		text += ".0"
	}
	return resp.BulkString(text), ctx.Args, nil
}

func containsDot(s string) bool {
	for _, c := range s {
		if c == '.' || c == 'e' || c == 'E' {
			return true
		}
	}
	return false
}

func cmdJSONArrAppend(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key, path := ctx.Args[1], ctx.Args[2]
	d, err := asJSONDoc(ctx, key, false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if d == nil {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "no such key")
	}
	nodes, err := store.Get(d.Root, path)
	if err != nil || len(nodes) == 0 {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "path does not exist")
	}
	arr := nodes[0]
	if !arr.IsArr {
		return resp.Value{}, nil, wrongType()
	}
	for _, raw := range ctx.Args[3:] {
		v, err := parseJSONText(raw)
		if err != nil {
			return resp.Value{}, nil, err
		}
		arr.Arr = append(arr.Arr, v)
	}
	touchEntry(ctx, key)
	return intReply(len(arr.Arr)), ctx.Args, nil
}

func cmdJSONArrInsert(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	key, path := ctx.Args[1], ctx.Args[2]
	idx, err := parseInt(ctx.Args[3])
	if err != nil {
		return resp.Value{}, nil, err
	}
	d, err := asJSONDoc(ctx, key, false)
	if err != nil {
		return resp.Value{}, nil, err
	}
	if d == nil {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "no such key")
	}
	nodes, err := store.Get(d.Root, path)
	if err != nil || len(nodes) == 0 {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "path does not exist")
	}
	arr := nodes[0]
	if !arr.IsArr {
		return resp.Value{}, nil, wrongType()
	}
	i := int(idx)
	if i < 0 || i > len(arr.Arr) {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "index out of range")
	}
	values := make([]*store.JSONNode, 0, len(ctx.Args)-4)
	for _, raw := range ctx.Args[4:] {
		v, err := parseJSONText(raw)
		if err != nil {
			return resp.Value{}, nil, err
		}
		values = append(values, v)
	}
	merged := make([]*store.JSONNode, 0, len(arr.Arr)+len(values))
	merged = append(merged, arr.Arr[:i]...)
	merged = append(merged, values...)
	merged = append(merged, arr.Arr[i:]...)
	arr.Arr = merged
	touchEntry(ctx, key)
	return intReply(len(arr.Arr)), ctx.Args, nil
}
