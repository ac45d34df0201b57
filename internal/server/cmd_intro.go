package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/resp"
	"github.com/spineldb/spineldb/internal/store"
)

// registerIntro wires the connection-agnostic introspection and
// housekeeping commands of spec.md §4.12: PING/ECHO, INFO, COMMAND,
// CLIENT, SLOWLOG, LATENCY and MEMORY USAGE.
func registerIntro(r *dispatch.Registry) {
	r.Register(&dispatch.Descriptor{Name: "PING", Arity: -1, Keys: dispatch.NoKeys, Handler: cmdPing})
	r.Register(&dispatch.Descriptor{Name: "ECHO", Arity: 2, Keys: dispatch.NoKeys, Handler: cmdEcho})
	r.Register(&dispatch.Descriptor{Name: "INFO", Arity: -1, Keys: dispatch.NoKeys, Handler: cmdInfo})
	r.Register(&dispatch.Descriptor{Name: "COMMAND", Arity: -1, Keys: dispatch.NoKeys, Handler: cmdCommand})
	r.Register(&dispatch.Descriptor{Name: "CLIENT", Arity: -2, Keys: dispatch.NoKeys, Handler: cmdClient})
	r.Register(&dispatch.Descriptor{Name: "SLOWLOG", Arity: -2, Keys: dispatch.NoKeys, Handler: cmdSlowlog})
	r.Register(&dispatch.Descriptor{Name: "LATENCY", Arity: -2, Keys: dispatch.NoKeys, Handler: cmdLatency})
	r.Register(&dispatch.Descriptor{Name: "MEMORY", Arity: -2, Keys: memoryKeys, Handler: cmdMemory})
}

func cmdPing(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	if len(ctx.Args) >= 2 {
		return resp.BulkString(ctx.Args[1]), nil, nil
	}
	return resp.SimpleString("PONG"), nil, nil
}

func cmdEcho(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	return resp.BulkString(ctx.Args[1]), nil, nil
}

func cmdInfo(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	var b strings.Builder

	fmt.Fprintf(&b, "# Server\r\nspineldb_version:1.0.0\r\ntcp_port:%d\r\n", srv.Cfg.Port)
	fmt.Fprintf(&b, "uptime_in_seconds:%d\r\n\r\n", int64(time.Since(srv.startedAt).Seconds()))

	fmt.Fprintf(&b, "# Replication\r\nrole:%s\r\n", roleString(srv))
	if srv.Primary != nil {
		fmt.Fprintf(&b, "connected_slaves:%d\r\nmaster_repl_offset:%d\r\n", len(srv.Primary.Replicas()), srv.Primary.Offset)
	}
	if srv.Replica != nil {
		fmt.Fprintf(&b, "master_host:%s\r\nmaster_port:%d\r\n", srv.Cfg.PrimaryHost, srv.Cfg.PrimaryPort)
	}
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "# Cluster\r\ncluster_enabled:%d\r\n\r\n", boolToInt(srv.Cluster != nil))

	b.WriteString("# Keyspace\r\n")
	for i, db := range srv.DBs.DBs {
		keys := 0
		for _, sh := range db.Shards {
			sh.Mu.RLock()
			keys += sh.Len()
			sh.Mu.RUnlock()
		}
		if keys > 0 {
			fmt.Fprintf(&b, "db%d:keys=%d\r\n", i, keys)
		}
	}

	return resp.BulkString(b.String()), nil, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func cmdCommand(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	if len(ctx.Args) >= 2 && strings.ToUpper(ctx.Args[1]) == "COUNT" {
		return intReply(len(srv.Registry.All())), nil, nil
	}
	var out []resp.Value
	for _, d := range srv.Registry.All() {
		arity := int64(d.Arity)
		out = append(out, resp.Array(resp.BulkString(strings.ToLower(d.Name)), resp.Integer(arity)))
	}
	return resp.Array(out...), nil, nil
}

func cmdClient(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	sub := strings.ToUpper(ctx.Args[1])
	switch sub {
	case "GETNAME":
		return resp.BulkString(""), nil, nil
	case "SETNAME":
		return resp.SimpleString("OK"), nil, nil
	case "LIST":
		return resp.BulkString(""), nil, nil
	case "ID":
		return intReply(0), nil, nil
	default:
		return resp.SimpleString("OK"), nil, nil
	}
}

func cmdSlowlog(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	sub := strings.ToUpper(ctx.Args[1])
	switch sub {
	case "GET":
		n := 10
		if len(ctx.Args) >= 3 {
			if v, err := parseInt(ctx.Args[2]); err == nil {
				n = int(v)
			}
		}
		entries := srv.SlowLog.Recent(n)
		out := make([]resp.Value, len(entries))
		for i, e := range entries {
			cmdArgs := make([]resp.Value, len(e.Command))
			for j, a := range e.Command {
				cmdArgs[j] = resp.BulkString(a)
			}
			out[i] = resp.Array(
				resp.Integer(e.ID),
				resp.Integer(e.Timestamp.Unix()),
				resp.Integer(e.Duration.Microseconds()),
				resp.Array(cmdArgs...),
				resp.BulkString(e.ClientID),
			)
		}
		return resp.Array(out...), nil, nil
	case "RESET":
		srv.SlowLog.Reset()
		return resp.SimpleString("OK"), nil, nil
	case "LEN":
		return intReply(srv.SlowLog.Len()), nil, nil
	default:
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "unknown SLOWLOG subcommand %q", sub)
	}
}

func cmdLatency(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	sub := strings.ToUpper(ctx.Args[1])
	switch sub {
	case "HISTORY":
		return resp.Array(), nil, nil
	case "RESET":
		srv.Latency.Reset()
		return resp.SimpleString("OK"), nil, nil
	case "HISTOGRAM":
		if len(ctx.Args) < 3 {
			return resp.Array(), nil, nil
		}
		summary, ok := srv.Latency.Summary(strings.ToUpper(ctx.Args[2]))
		if !ok {
			return resp.Array(), nil, nil
		}
		return resp.MapOf(
			resp.BulkString("calls"), resp.Integer(int64(summary.Count)),
			resp.BulkString("usec_per_call"), resp.Double(summary.MeanUs),
			resp.BulkString("max_usec"), resp.Integer(int64(summary.MaxUs)),
		), nil, nil
	default:
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "unknown LATENCY subcommand %q", sub)
	}
}

func memoryKeys(args []string) []string {
	if len(args) < 3 || strings.ToUpper(args[1]) != "USAGE" {
		return nil
	}
	return []string{args[2]}
}

func cmdMemory(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	sub := strings.ToUpper(ctx.Args[1])
	switch sub {
	case "USAGE":
		if len(ctx.Args) < 3 {
			return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "wrong number of arguments")
		}
		e, ok := lookup(ctx, ctx.Args[2])
		if !ok {
			return resp.NullBulkString(), nil, nil
		}
		return intReply(estimateSize(e.Value)), nil, nil
	default:
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "unknown MEMORY subcommand %q", sub)
	}
}

// estimateSize gives a rough byte-size estimate for MEMORY USAGE,
// counting the payload bytes actually held rather than modeling Go's
// runtime allocator overhead.
func estimateSize(v store.Value) int {
	switch val := v.(type) {
	case store.Str:
		return len(val)
	case *store.List:
		n := 0
		for _, item := range val.Items {
			n += len(item)
		}
		return n
	case *store.Hash:
		n := 0
		for _, f := range val.Fields() {
			b, _ := val.Get(f)
			n += len(f) + len(b)
		}
		return n
	case *store.Set:
		n := 0
		for _, m := range val.Members() {
			n += len(m)
		}
		return n
	case *store.SortedSet:
		n := 0
		for _, m := range val.Range(0, -1) {
			n += len(m.Member) + 8
		}
		return n
	default:
		return 0
	}
}
