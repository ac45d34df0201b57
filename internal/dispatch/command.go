package dispatch

import (
	"strings"

	"github.com/spineldb/spineldb/internal/resp"
	"github.com/spineldb/spineldb/internal/shard"
)

// KeyExtractor returns the key names a command operates on, taken from
// args (args[0] being the command name), per spec.md §4.4 point 1.
type KeyExtractor func(args []string) []string

// Handler executes a parsed command against its already-locked shards.
// It returns the reply to send, and — on success for a write command —
// the propagation args (a RESP command array to log/replicate); a nil
// propagation for a successful write means "nothing to propagate"
// (e.g. a no-op SETNX on an existing key).
type Handler func(ctx *ExecContext) (resp.Value, []string, error)

// Descriptor is a command's full dispatch metadata: everything
// spec.md §4.4 says the dispatcher needs to know about a command
// before it can run it.
type Descriptor struct {
	Name     string
	Arity    int // negative means "at least -Arity args"; positive means exact
	IsWrite  bool
	Blocking bool
	Keys     KeyExtractor
	Handler  Handler
}

// CheckArity reports whether args satisfies d.Arity (negative means
// "at least -Arity", positive means exact).
func (d *Descriptor) CheckArity(args []string) bool {
	if d.Arity >= 0 {
		return len(args) == d.Arity
	}
	return len(args) >= -d.Arity
}

// Registry maps command names to descriptors. Individual command
// families (strings, lists, hashes, ...) register their descriptors
// into a Registry from the server package, which owns the concrete
// storage and cache wiring — dispatch itself only knows the generic
// pipeline (spec.md §1 lists per-command semantics as out of scope for
// this document).
type Registry struct {
	commands map[string]*Descriptor
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]*Descriptor)}
}

func (r *Registry) Register(d *Descriptor) {
	r.commands[strings.ToUpper(d.Name)] = d
}

func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	d, ok := r.commands[strings.ToUpper(name)]
	return d, ok
}

// All returns every registered descriptor, for COMMAND/COMMAND COUNT
// introspection.
func (r *Registry) All() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.commands))
	for _, d := range r.commands {
		out = append(out, d)
	}
	return out
}

// FirstKey is a KeyExtractor for the common case of a single key in
// args[1].
func FirstKey(args []string) []string {
	if len(args) < 2 {
		return nil
	}
	return []string{args[1]}
}

// AllTrailingKeys treats every arg after the command name as a key
// (MGET, DEL, UNLINK, EXISTS, WATCH).
func AllTrailingKeys(args []string) []string {
	if len(args) < 2 {
		return nil
	}
	return args[1:]
}

// NoKeys is used by commands with no key operands (PING, CLUSTER, ...).
func NoKeys(args []string) []string { return nil }

// ExecContext is the argument bundle a Handler receives.
type ExecContext struct {
	DBIndex int
	DB      *shard.Database
	Args    []string
	NowMs   int64
	// Locked holds the shards this command's keys resolved to, already
	// locked in the mode the descriptor requested, keyed by shard
	// index for O(1) lookup from within a handler.
	Locked map[int]*shard.Shard
	// Extra is a slot for server-level dependencies (cache engine,
	// pub/sub bus, ...) that individual command handlers need but the
	// generic dispatcher does not; server wires it per call.
	Extra any
}

// ShardFor returns the already-locked shard owning key.
func (c *ExecContext) ShardFor(key string) *shard.Shard {
	return c.Locked[c.DB.Index(key)]
}
