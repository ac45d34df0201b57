package dispatch

import (
	"strconv"
	"strings"
	"time"

	"github.com/spineldb/spineldb/internal/resp"
	"github.com/spineldb/spineldb/internal/shard"
)

// Redirect is returned by a ClusterChecker when the local node should
// not serve a command directly (spec.md §4.4 point 2).
type Redirect struct {
	Kind ErrKind // KindMoved, KindAsk, or KindClusterDown
	Slot int
	Addr string
}

// ClusterChecker is implemented by the cluster package; dispatch
// depends only on this interface to avoid an import cycle, the same
// boundary spec.md §9 draws between "server value" and its
// subcomponents.
type ClusterChecker interface {
	CheckKeys(keys []string) (*Redirect, error)
}

// Propagation is the record a successful write command emits,
// consumed by AOF, replication, and keyspace notifications (spec.md
// §4.6). DBIndex lets multi-database propagation consumers select the
// right SELECT before replaying Args.
type Propagation struct {
	DBIndex int
	Args    []string
}

// Dispatcher is the command execution pipeline of spec.md §4.4.
type Dispatcher struct {
	Registry       *Registry
	Cluster        ClusterChecker // nil when cluster mode is disabled
	CommandTimeout time.Duration
	ReadOnly       func() bool // returns true while in emergency-read-only (spec.md §3 Invariants)
	// Extra is threaded into every ExecContext.Extra this Dispatcher
	// builds, the same server-level dependency bundle a queued
	// transaction command receives via txn.Controller.
	Extra any
}

// Dispatch parses and executes one command frame against db, at
// dbIndex. now is injected so tests can control time precisely.
func (d *Dispatcher) Dispatch(db *shard.Database, dbIndex int, args []string, now time.Time) (resp.Value, *Propagation) {
	if len(args) == 0 {
		return resp.Error(string(KindGeneric) + " empty command"), nil
	}

	name := strings.ToUpper(args[0])
	desc, ok := d.Registry.Lookup(name)
	if !ok {
		return resp.Error(string(KindGeneric) + " unknown command '" + args[0] + "'"), nil
	}
	if !desc.CheckArity(args) {
		return resp.Error(string(KindGeneric) + " wrong number of arguments for '" + args[0] + "' command"), nil
	}

	keys := desc.Keys(args)

	if d.Cluster != nil && len(keys) > 0 {
		redirect, err := d.Cluster.CheckKeys(keys)
		if err != nil {
			return resp.Error(string(KindCrossSlot) + " " + err.Error()), nil
		}
		if redirect != nil {
			switch redirect.Kind {
			case KindMoved:
				return resp.Error("MOVED " + strconv.Itoa(redirect.Slot) + " " + redirect.Addr), nil
			case KindAsk:
				return resp.Error("ASK " + strconv.Itoa(redirect.Slot) + " " + redirect.Addr), nil
			default:
				return resp.Error(string(KindClusterDown) + " Hash slot not served"), nil
			}
		}
	}

	if desc.IsWrite && d.ReadOnly != nil && d.ReadOnly() {
		return resp.Error(string(KindReadOnly) + " You can't write against a read only replica/node."), nil
	}

	indices := lockPlan(db, keys)
	locked, release := acquireLocks(db, indices, desc.IsWrite)
	defer release()

	ctx := &ExecContext{
		DBIndex: dbIndex,
		DB:      db,
		Args:    args,
		NowMs:   now.UnixMilli(),
		Locked:  locked,
		Extra:   d.Extra,
	}

	reply, propArgs, err := desc.Handler(ctx)
	if err != nil {
		if cmdErr, ok := err.(*CommandError); ok {
			return resp.Error(string(cmdErr.Kind) + " " + cmdErr.Message), nil
		}
		return resp.Error(string(KindGeneric) + " " + err.Error()), nil
	}

	if desc.IsWrite && propArgs != nil {
		return reply, &Propagation{DBIndex: dbIndex, Args: propArgs}
	}
	return reply, nil
}
