package server

import (
	"strings"

	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/resp"
)

// registerPubSub wires PUBLISH and the PUBSUB introspection
// subcommands (spec.md §4.5). SUBSCRIBE/PSUBSCRIBE/UNSUBSCRIBE stay
// connection-scoped in session.go, since they change what a specific
// connection receives rather than touching the keyspace.
func registerPubSub(r *dispatch.Registry) {
	r.Register(&dispatch.Descriptor{Name: "PUBLISH", Arity: 3, Keys: dispatch.NoKeys, Handler: cmdPublish})
	r.Register(&dispatch.Descriptor{Name: "PUBSUB", Arity: -2, Keys: dispatch.NoKeys, Handler: cmdPubSub})
}

func cmdPublish(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	n := srv.PubSub.Publish(ctx.Args[1], ctx.Args[2])
	return intReply(n), nil, nil
}

func cmdPubSub(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	sub := strings.ToUpper(ctx.Args[1])
	switch sub {
	case "CHANNELS":
		pattern := "*"
		if len(ctx.Args) > 2 {
			pattern = ctx.Args[2]
		}
		channels := srv.PubSub.ChannelsMatching(pattern)
		out := make([]resp.Value, len(channels))
		for i, c := range channels {
			out[i] = resp.BulkString(c)
		}
		return resp.Array(out...), nil, nil
	case "NUMSUB":
		counts := srv.PubSub.NumSub(ctx.Args[2:])
		var out []resp.Value
		for _, ch := range ctx.Args[2:] {
			out = append(out, resp.BulkString(ch), intReply(counts[ch]))
		}
		return resp.Array(out...), nil, nil
	case "NUMPAT":
		return intReply(srv.PubSub.NumPat()), nil, nil
	default:
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "unknown PUBSUB subcommand %q", sub)
	}
}
