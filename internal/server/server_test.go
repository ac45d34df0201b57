package server

import (
	"time"

	"github.com/spineldb/spineldb/internal/acl"
	"github.com/spineldb/spineldb/internal/cache"
	"github.com/spineldb/spineldb/internal/config"
	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/logging"
	"github.com/spineldb/spineldb/internal/pubsub"
	"github.com/spineldb/spineldb/internal/resp"
	"github.com/spineldb/spineldb/internal/scripting"
	"github.com/spineldb/spineldb/internal/shard"
	"github.com/spineldb/spineldb/internal/slowlog"
)

// newTestServer builds a minimally wired Server (no listener, no disk
// paths, no AOF) sufficient to exercise command handlers through the
// real dispatch.Dispatcher, the way dispatcher_test.go exercises the
// dispatch package directly.
func newTestServer() *Server {
	srv := &Server{
		Cfg:       config.Config{Databases: 1, Shards: 4},
		Log:       logging.New("test"),
		DBs:       shard.NewDatabases(1, 4),
		Registry:  dispatch.NewRegistry(),
		ACL:       acl.NewStore(),
		Scripts:   scripting.NewCache(),
		PubSub:    pubsub.NewHub(),
		SlowLog:   slowlog.NewLog(time.Hour, 16),
		Latency:   slowlog.NewHistograms(),
		startedAt: time.Now(),
	}
	srv.Cache = cache.NewEngine(4, 1<<20, "", 0)
	RegisterAll(srv)
	srv.Dispatcher = &dispatch.Dispatcher{
		Registry:       srv.Registry,
		CommandTimeout: time.Second,
		ReadOnly:       func() bool { return false },
		Extra:          srv,
	}
	return srv
}

func (s *Server) exec(args ...string) (resp.Value, *dispatch.Propagation) {
	db := s.DBs.DBs[0]
	return s.Dispatcher.Dispatch(db, 0, args, time.Now())
}
