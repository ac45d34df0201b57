// Package txn implements the per-connection transaction controller of
// spec.md §4.5: a {Normal, Queuing, Dirty} state machine around
// MULTI/QUEUE/EXEC/WATCH/DISCARD/UNWATCH. The teacher has no
// transaction concept (internal/redigo executes every command
// immediately against its single global store), so this generalizes
// the multi-shard locking shape internal/dispatch already established;
// the locking order of Watch and the no-op DISCARD-without-MULTI
// behavior follow core/database/transaction.rs's
// watch_keys_in_tx/discard_transaction.
package txn

import (
	"sort"
	"strings"

	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/resp"
	"github.com/spineldb/spineldb/internal/shard"
)

// State is one of the three states spec.md §4.5 names.
type State int

const (
	Normal State = iota
	Queuing
	Dirty
)

// watchKey identifies a watched key within a specific database, since
// a connection may WATCH keys after a SELECT and the version space is
// per-key, not global.
type watchKey struct {
	dbIndex int
	key     string
}

// queuedCommand is a literal parsed frame awaiting EXEC, paired with
// the descriptor the dispatcher resolved it to at queue time so EXEC
// does not need to re-parse.
type queuedCommand struct {
	args []string
	desc *dispatch.Descriptor
}

// Controller is one connection's transaction state. It is not
// goroutine-safe; each connection owns exactly one Controller, matching
// the one-goroutine-per-connection model spec.md §4.4 and §6 imply.
type Controller struct {
	state   State
	queue   []queuedCommand
	watches map[watchKey]uint64
	extra   any
}

// New creates a Controller. extra is threaded into every queued
// command's ExecContext.Extra at EXEC time, the same server-level
// dependency bundle internal/dispatch.Dispatch wires per call.
func New(extra any) *Controller {
	return &Controller{state: Normal, extra: extra}
}

func (c *Controller) State() State { return c.state }
func (c *Controller) InTransaction() bool { return c.state != Normal }

// Multi transitions Normal→Queuing. Calling MULTI while already queuing
// is an error per standard semantics, reported to the caller as a
// plain command error rather than a state change.
func (c *Controller) Multi() error {
	if c.state != Normal {
		return dispatch.NewError(dispatch.KindGeneric, "MULTI calls can not be nested")
	}
	c.state = Queuing
	c.queue = nil
	return nil
}

// Queue parses and enqueues args against registry. An unknown command,
// MULTI/WATCH, or an arity mismatch sets Dirty (spec.md §4.5: "parse
// errors set Dirty; unknown commands also set Dirty") and is not
// queued; EXEC then refuses to run the Dirty queue.
func (c *Controller) Queue(registry *dispatch.Registry, args []string) (resp.Value, error) {
	if len(args) == 0 {
		return resp.Value{}, dispatch.NewError(dispatch.KindGeneric, "empty command")
	}
	name := strings.ToUpper(args[0])
	desc, ok := registry.Lookup(name)
	if !ok {
		c.state = Dirty
		return resp.Value{}, dispatch.NewError(dispatch.KindGeneric, "unknown command '%s'", args[0])
	}
	if desc.Name == "MULTI" || desc.Name == "WATCH" {
		c.state = Dirty
		return resp.Value{}, dispatch.NewError(dispatch.KindGeneric, "%s is not allowed in transactions", desc.Name)
	}
	if !desc.CheckArity(args) {
		c.state = Dirty
		return resp.Value{}, dispatch.NewError(dispatch.KindGeneric, "wrong number of arguments for '%s' command", args[0])
	}
	c.queue = append(c.queue, queuedCommand{args: args, desc: desc})
	return resp.SimpleString("QUEUED"), nil
}

// Watch is forbidden inside a transaction (spec.md §4.5) and records
// each key's version at call time. Every shard the key set touches is
// read-locked up front, in ascending shard-index order, before any
// version is read, and only unlocked once all of them are captured —
// closing the window a per-key lock/read/unlock loop leaves open for a
// write landing between two reads of the same snapshot. Absent keys
// watch at version 0: any later write that creates the key bumps its
// version away from 0, which correctly aborts EXEC.
func (c *Controller) Watch(db *shard.Database, dbIndex int, keys []string) error {
	if c.state != Normal {
		return dispatch.NewError(dispatch.KindGeneric, "WATCH inside MULTI is not allowed")
	}
	if c.watches == nil {
		c.watches = make(map[watchKey]uint64)
	}

	shardOf := make(map[int]*shard.Shard)
	for _, key := range keys {
		idx := db.Index(key)
		shardOf[idx] = db.Shards[idx]
	}
	indices := make([]int, 0, len(shardOf))
	for idx := range shardOf {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	for _, idx := range indices {
		shardOf[idx].Mu.RLock()
	}
	defer func() {
		for _, idx := range indices {
			shardOf[idx].Mu.RUnlock()
		}
	}()

	for _, key := range keys {
		sh := db.Shards[db.Index(key)]
		version := uint64(0)
		if e, ok := sh.Get(key); ok {
			version = e.Version
		}
		c.watches[watchKey{dbIndex: dbIndex, key: key}] = version
	}
	return nil
}

// Unwatch clears the watch set without touching queue state.
func (c *Controller) Unwatch() {
	c.watches = nil
}

// Discard drops the queue and watch set and returns to Normal. A
// DISCARD with no active transaction is not an error — it's a no-op.
func (c *Controller) Discard() error {
	c.reset()
	return nil
}

func (c *Controller) reset() {
	c.state = Normal
	c.queue = nil
	c.watches = nil
}

// Result is what Exec produces: either an abort (watched key changed
// under it) or the ordered replies of every queued command plus the
// single contiguous propagation block spec.md §4.5 point 3 requires.
type Result struct {
	Aborted   bool
	Replies   []resp.Value
	Propagate [][]string // one arg-array per queued write that actually propagated
	DBIndex   int
}

// Exec runs the queued commands per spec.md §4.5: acquire write locks
// on the union of key-sets, compare watched versions, execute in
// order, release, clear watch. db/dbIndex is the connection's
// currently selected database; queued commands are assumed to target
// it (spec.md does not define cross-database transactions).
func (c *Controller) Exec(db *shard.Database, dbIndex int, nowMs int64) (Result, error) {
	if c.state == Normal {
		return Result{}, dispatch.NewError(dispatch.KindGeneric, "EXEC without MULTI")
	}
	defer c.reset()

	if c.state == Dirty {
		return Result{}, dispatch.NewError(dispatch.KindGeneric, "EXECABORT Transaction discarded because of previous errors")
	}

	keySet := make(map[string]struct{})
	for _, qc := range c.queue {
		for _, k := range qc.desc.Keys(qc.args) {
			keySet[k] = struct{}{}
		}
	}
	for wk := range c.watches {
		if wk.dbIndex == dbIndex {
			keySet[wk.key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}

	indices := lockPlan(db, keys)
	locked := acquireWriteLocks(db, indices)
	defer releaseWriteLocks(db, indices, locked)

	for wk, recordedVersion := range c.watches {
		if wk.dbIndex != dbIndex {
			continue
		}
		sh := db.ShardFor(wk.key)
		current := uint64(0)
		if e, ok := sh.Get(wk.key); ok {
			current = e.Version
		}
		if current != recordedVersion {
			return Result{Aborted: true}, nil
		}
	}

	replies := make([]resp.Value, 0, len(c.queue))
	var propagate [][]string
	for _, qc := range c.queue {
		ctx := &dispatch.ExecContext{
			DBIndex: dbIndex,
			DB:      db,
			Args:    qc.args,
			NowMs:   nowMs,
			Locked:  locked,
			Extra:   c.extra,
		}
		reply, propArgs, err := qc.desc.Handler(ctx)
		if err != nil {
			if cmdErr, ok := err.(*dispatch.CommandError); ok {
				replies = append(replies, resp.Error(string(cmdErr.Kind)+" "+cmdErr.Message))
			} else {
				replies = append(replies, resp.Error(string(dispatch.KindGeneric)+" "+err.Error()))
			}
			continue
		}
		replies = append(replies, reply)
		if qc.desc.IsWrite && propArgs != nil {
			propagate = append(propagate, propArgs)
		}
	}

	return Result{Replies: replies, Propagate: propagate, DBIndex: dbIndex}, nil
}
