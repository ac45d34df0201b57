// Package server wires every subsystem package into the single
// running node spec.md §2 describes: the command dispatcher, the
// sharded databases, the HTTP-aware cache engine, AOF/SPLDB
// persistence, replication, the cluster fabric, pub/sub, ACL, and
// scripting. It owns the RESP connection loop and the per-command
// handler registrations; no other package imports net, and
// internal/resp is imported only by dispatch and txn (reply values)
// and aof (log encoding), the boundary spec.md §9 draws between
// "server value" and its subcomponents.
//
// The accept-loop and per-connection goroutine shape follows the
// teacher's cmd/server/main.go (net.Listener.Accept + go
// handleConnection per client); background workers (expire sweeper,
// AOF fsync, cache GC) follow the teacher's StartSnapshotListener /
// StartDataExpirationListener pattern of one ticker-driven goroutine
// per concern, started from New and stopped via a single close
// channel.
package server

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spineldb/spineldb/internal/acl"
	"github.com/spineldb/spineldb/internal/aof"
	"github.com/spineldb/spineldb/internal/blocking"
	"github.com/spineldb/spineldb/internal/cache"
	"github.com/spineldb/spineldb/internal/cluster"
	"github.com/spineldb/spineldb/internal/config"
	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/eventbus"
	"github.com/spineldb/spineldb/internal/logging"
	"github.com/spineldb/spineldb/internal/pubsub"
	"github.com/spineldb/spineldb/internal/repl"
	"github.com/spineldb/spineldb/internal/scripting"
	"github.com/spineldb/spineldb/internal/shard"
	"github.com/spineldb/spineldb/internal/slowlog"
	"github.com/spineldb/spineldb/internal/spldb"
)

// Server is the fully wired runtime node.
type Server struct {
	Cfg config.Config
	Log *logging.Logger

	DBs        *shard.Databases
	Registry   *dispatch.Registry
	Dispatcher *dispatch.Dispatcher

	Bus      *eventbus.Bus
	AOF      *aof.Log
	Rewriter *aof.Rewriter

	Cache    *cache.Engine
	Policies *config.PolicyStore

	Cluster *cluster.State
	ACL     *acl.Store
	Scripts *scripting.Cache

	PubSub   *pubsub.Hub
	Blocking *blocking.Queues
	SlowLog  *slowlog.Log
	Latency  *slowlog.Histograms

	Primary *repl.PrimaryState
	Replica *repl.ReplicaState

	startedAt time.Time
	stop      chan struct{}
	nextConn  uint64
}

// New constructs a fully wired Server from cfg: shard databases,
// command registry, cache engine, optional cluster/ACL/replication
// state, and recovers persisted state (SPLDB snapshot, then AOF
// replay) per spec.md §4.8's load-path precedence.
func New(cfg config.Config) (*Server, error) {
	srv := &Server{
		Cfg:       cfg,
		Log:       logging.New("server"),
		DBs:       shard.NewDatabases(cfg.Databases, cfg.Shards),
		Bus:       eventbus.New(),
		Scripts:   scripting.NewCache(),
		PubSub:    pubsub.NewHub(),
		Blocking:  blocking.NewQueues(),
		SlowLog:   slowlog.NewLog(10*time.Millisecond, 128),
		Latency:   slowlog.NewHistograms(),
		startedAt: time.Now(),
		stop:      make(chan struct{}),
	}

	srv.Cache = cache.NewEngine(cfg.CacheMaxVariantsPerKey, cfg.CacheStreamThresholdB, cfg.CacheOnDiskPath, cfg.CacheMaxDiskSize)
	srv.Policies = config.NewPolicyStore(cfg.CachePolicies)

	aclStore, err := acl.Load(cfg.ACLFile)
	if err != nil {
		return nil, fmt.Errorf("server: loading ACL file: %w", err)
	}
	srv.ACL = aclStore

	if cfg.ClusterEnabled {
		if err := srv.initCluster(); err != nil {
			return nil, err
		}
	}

	if cfg.ReplicationRole == "replica" {
		srv.Replica = repl.NewReplicaState(cfg.PrimaryHost, cfg.PrimaryPort)
	} else {
		srv.Primary = repl.NewPrimaryState(cfg.BacklogBytes, cfg.MinReplicasToWrite, cfg.MinReplicasMaxLag)
	}

	srv.Registry = dispatch.NewRegistry()
	RegisterAll(srv)

	if err := srv.recover(); err != nil {
		return nil, err
	}

	if cfg.AOFEnabled {
		if err := srv.initAOF(); err != nil {
			return nil, err
		}
	}

	srv.Dispatcher = &dispatch.Dispatcher{
		Registry:       srv.Registry,
		CommandTimeout: cfg.CommandTimeout,
		ReadOnly:       srv.isReadOnly,
		Extra:          srv,
	}
	if srv.Cluster != nil {
		srv.Dispatcher.Cluster = srv.Cluster
	}

	srv.startBackgroundWorkers()
	return srv, nil
}

// recover loads the on-disk SPLDB snapshot (if present) and then
// replays the AOF on top of it, matching spec.md §4.8's precedence:
// "if AOF is enabled, prefer AOF for the authoritative log but still
// seed from the last SPLDB snapshot to bound replay length."
func (s *Server) recover() error {
	if _, err := os.Stat(s.Cfg.SnapshotPath); err == nil {
		if err := spldb.Load(s.Cfg.SnapshotPath, s.DBs); err != nil {
			return fmt.Errorf("server: loading snapshot: %w", err)
		}
		s.Log.Infof("loaded snapshot from %s", s.Cfg.SnapshotPath)
	}

	if !s.Cfg.AOFEnabled {
		return nil
	}
	if _, err := os.Stat(s.Cfg.AOFPath); err != nil {
		return nil
	}
	applied := 0
	err := aof.Load(s.Cfg.AOFPath, func(args []string) error {
		applied++
		_, _ = s.Dispatch0(args)
		return nil
	})
	if err != nil {
		return fmt.Errorf("server: replaying AOF: %w", err)
	}
	s.Log.Infof("replayed %d AOF commands", applied)
	return nil
}

// Dispatch0 executes args against database 0 outside of any
// connection, used for AOF replay at startup before the dispatcher's
// registry is even attached to a listener.
func (s *Server) Dispatch0(args []string) (any, error) {
	db := s.DBs.DBs[0]
	name := args[0]
	desc, ok := s.Registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("server: unknown command %q during replay", name)
	}
	keys := desc.Keys(args)
	indices := uniqueShardIndices(db, keys)
	locked := lockAllWrite(db, indices)
	defer unlockAllWrite(db, indices, locked)

	ctx := &dispatch.ExecContext{DBIndex: 0, DB: db, Args: args, NowMs: time.Now().UnixMilli(), Locked: locked, Extra: s}
	reply, _, err := desc.Handler(ctx)
	return reply, err
}

func (s *Server) initAOF() error {
	aofLog, err := aof.Open(s.Cfg.AOFPath, aof.FsyncDiscipline(s.Cfg.AppendFsync), logging.New("aof"))
	if err != nil {
		return fmt.Errorf("server: opening AOF: %w", err)
	}
	s.AOF = aofLog
	s.Rewriter = aof.NewRewriter(s.Cfg.AOFPath, aofLog)

	blocking := s.Cfg.AppendFsync != "no"
	consumer := s.Bus.Register("aof", 4096, blocking)
	go s.drainAOF(consumer)
	go aofLog.RunEverysecFsync(s.stop)
	return nil
}

// drainAOF is aof.Log.Drain's shape, generalized to check Rewriter's
// buffer first: a write that arrives mid-rewrite must land in the
// rewrite's pending buffer, not the soon-to-be-replaced log file, or
// it is lost the moment Rewriter.Run renames the minimal log over it.
func (s *Server) drainAOF(consumer *eventbus.Consumer) {
	for {
		select {
		case <-s.stop:
			return
		case ev := <-consumer.Events():
			if s.Rewriter.BufferDuringRewrite(ev.Args) {
				continue
			}
			if err := s.AOF.Append(ev.Args); err != nil {
				s.Log.Errorf("aof append failed: %v", err)
			}
		}
	}
}

func (s *Server) initCluster() error {
	selfAddr := fmt.Sprintf("%s:%d", s.Cfg.Host, s.Cfg.Port)
	table := cluster.NewTable()
	selfID, nodes, _, err := cluster.LoadConfig(s.Cfg.ClusterConfigFile, table)
	if err != nil {
		return fmt.Errorf("server: loading cluster config: %w", err)
	}
	if selfID == "" {
		selfID = generateNodeID()
	}

	st := cluster.NewState(selfID, selfAddr, s.Cfg.NodeTimeout, s.Cfg.FailoverQuorum, func(key string) bool {
		sh := s.DBs.DBs[0].ShardFor(key)
		sh.Mu.RLock()
		defer sh.Mu.RUnlock()
		_, ok := sh.Get(key)
		return ok
	})
	st.Table = table
	for _, n := range nodes {
		st.Membership.Upsert(n)
	}
	s.Cluster = st
	return nil
}

func (s *Server) startBackgroundWorkers() {
	sweeper := shard.NewSweeper(s.DBs.DBs, time.Second, func(dbIndex int, key string) {
		s.Bus.Publish(eventbus.Event{DBIndex: dbIndex, Args: []string{"DEL", key}})
	})
	go sweeper.Run(s.stop)

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.Cache.RunGC(5*time.Minute, time.Now())
			}
		}
	}()

	validator := cache.NewValidator(s.Cache, time.Second)
	go validator.Run(s.stop)

	if s.Cluster != nil {
		go func() {
			ticker := time.NewTicker(s.Cfg.NodeTimeout / 3)
			defer ticker.Stop()
			for {
				select {
				case <-s.stop:
					return
				case <-ticker.C:
					s.Cluster.CheckQuorum(time.Now())
				}
			}
		}()
	}
}

// isReadOnly reports whether the dispatcher must reject writes: a
// replica node always, or a primary that has self-fenced for lack of
// cluster quorum, or one whose AOF fsync is unhealthy (spec.md §3
// Invariants / §4.7).
func (s *Server) isReadOnly() bool {
	if s.Replica != nil {
		return true
	}
	if s.Cluster != nil && s.Cluster.ReadOnly() {
		return true
	}
	if s.AOF != nil && s.AOF.UnhealthyReadOnly {
		return true
	}
	return false
}

// Close stops every background worker and closes the AOF file.
func (s *Server) Close() error {
	close(s.stop)
	if s.AOF != nil {
		return s.AOF.Close()
	}
	return nil
}

// Serve accepts connections on ln until it returns an error (normally
// because ln was closed during shutdown).
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		s.nextConn++
		sess := newSession(s, conn, s.nextConn)
		go sess.run()
	}
}
