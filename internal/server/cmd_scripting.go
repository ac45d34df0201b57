package server

import (
	"strings"

	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/resp"
)

// registerScripting wires EVAL/EVALSHA/SCRIPT against the SHA1 cache.
// No sandbox Engine is wired in — spec.md scopes the scripting sandbox
// itself out, leaving only the command-execution callback and cache
// contract scripting.Cache implements — so EVAL caches the script (as
// real Redis does on every EVAL) and then replies with an error that no
// scripting engine is configured; EVALSHA replies NOSCRIPT for an
// unknown digest and otherwise gives the same error. No script is run.
func registerScripting(r *dispatch.Registry) {
	r.Register(&dispatch.Descriptor{Name: "EVAL", Arity: -3, Keys: dispatch.NoKeys, Handler: cmdEval})
	r.Register(&dispatch.Descriptor{Name: "EVALSHA", Arity: -3, Keys: dispatch.NoKeys, Handler: cmdEvalSha})
	r.Register(&dispatch.Descriptor{Name: "SCRIPT", Arity: -2, Keys: dispatch.NoKeys, Handler: cmdScript})
}

func cmdEval(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	srv.Scripts.Load(ctx.Args[1])
	return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "no scripting engine configured")
}

func cmdEvalSha(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	if _, ok := srv.Scripts.Get(ctx.Args[1]); !ok {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindNoScript, "No matching script. Please use EVAL.")
	}
	return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "no scripting engine configured")
}

func cmdScript(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	sub := strings.ToUpper(ctx.Args[1])
	switch sub {
	case "LOAD":
		sha := srv.Scripts.Load(ctx.Args[2])
		return resp.BulkString(sha), nil, nil
	case "EXISTS":
		results := srv.Scripts.Exists(ctx.Args[2:])
		out := make([]resp.Value, len(results))
		for i, ok := range results {
			if ok {
				out[i] = intReply(1)
			} else {
				out[i] = intReply(0)
			}
		}
		return resp.Array(out...), nil, nil
	case "FLUSH":
		srv.Scripts.Flush()
		return resp.SimpleString("OK"), nil, nil
	default:
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "unknown SCRIPT subcommand %q", sub)
	}
}
