package server

import (
	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/resp"
	"github.com/spineldb/spineldb/internal/spldb"
)

// registerPersistence wires SAVE/BGSAVE/BGREWRITEAOF (spec.md §4.8).
func registerPersistence(r *dispatch.Registry) {
	r.Register(&dispatch.Descriptor{Name: "SAVE", Arity: 1, Keys: dispatch.NoKeys, Handler: cmdSave})
	r.Register(&dispatch.Descriptor{Name: "BGSAVE", Arity: 1, Keys: dispatch.NoKeys, Handler: cmdBGSave})
	r.Register(&dispatch.Descriptor{Name: "BGREWRITEAOF", Arity: 1, Keys: dispatch.NoKeys, Handler: cmdBGRewriteAOF})
}

func cmdSave(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	if err := spldb.Save(srv.Cfg.SnapshotPath, srv.DBs); err != nil {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "save failed: %v", err)
	}
	return resp.SimpleString("OK"), nil, nil
}

// cmdBGSave runs the same spldb.Save as SAVE, but on a new goroutine,
// and replies at once; a failed save is only logged, not reported to
// the client.
func cmdBGSave(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	go func() {
		if err := spldb.Save(srv.Cfg.SnapshotPath, srv.DBs); err != nil {
			srv.Log.Errorf("bgsave failed: %v", err)
		}
	}()
	return resp.SimpleString("Background saving started"), nil, nil
}

// snapshotter adapts a live *shard.Databases into aof.Snapshotter by
// replaying every live entry as the command that would recreate it.
type snapshotter struct {
	srv *Server
}

func (s snapshotter) RewriteCommands() [][]string {
	var out [][]string
	for dbIndex, db := range s.srv.DBs.DBs {
		selectArgs := []string{"SELECT", itoa(dbIndex)}
		out = append(out, selectArgs)
		for _, sh := range db.Shards {
			sh.Mu.RLock()
			for _, key := range sh.Keys() {
				e, ok := sh.Get(key)
				if !ok {
					continue
				}
				out = append(out, rewriteCommandFor(key, e))
				if e.HasExpiration() {
					out = append(out, []string{"PEXPIREAT", key, itoa64(e.ExpireAtMs)})
				}
			}
			sh.Mu.RUnlock()
		}
	}
	return out
}

func cmdBGRewriteAOF(ctx *dispatch.ExecContext) (resp.Value, []string, error) {
	srv := srvOf(ctx)
	if srv.Rewriter == nil {
		return resp.Value{}, nil, dispatch.NewError(dispatch.KindGeneric, "AOF is not enabled")
	}
	go func() {
		if err := srv.Rewriter.Run(snapshotter{srv: srv}); err != nil {
			srv.Log.Errorf("bgrewriteaof failed: %v", err)
		}
	}()
	return resp.SimpleString("Background append only file rewriting started"), nil, nil
}
