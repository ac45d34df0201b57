package server

import (
	"bytes"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spineldb/spineldb/internal/acl"
	"github.com/spineldb/spineldb/internal/cluster"
	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/eventbus"
	"github.com/spineldb/spineldb/internal/pubsub"
	"github.com/spineldb/spineldb/internal/repl"
	"github.com/spineldb/spineldb/internal/resp"
	"github.com/spineldb/spineldb/internal/shard"
	"github.com/spineldb/spineldb/internal/txn"
)

// Session is one client connection's state: its selected database,
// transaction controller, cluster ASKING flag, subscriptions, and
// authenticated identity. One goroutine owns a Session for its whole
// lifetime, matching the one-goroutine-per-connection model spec.md
// §4.4 and §6 assume.
type Session struct {
	id      string
	srv     *Server
	conn    net.Conn
	reader  *resp.Reader
	writer  *resp.Writer
	writeMu sync.Mutex

	dbIndex int
	txn     *txn.Controller
	asking  *cluster.AskingChecker

	closed       chan struct{}
	subChannels  map[string]bool
	subPatterns  map[string]bool

	user *acl.User

	replica *repl.ReplicaHandle
}

func newSession(srv *Server, conn net.Conn, n uint64) *Session {
	id := fmt.Sprintf("conn-%d", n)
	sess := &Session{
		id:          id,
		srv:         srv,
		conn:        conn,
		reader:      resp.NewReader(conn, resp.DefaultLimits),
		writer:      resp.NewWriter(conn),
		closed:      make(chan struct{}),
		subChannels: make(map[string]bool),
		subPatterns: make(map[string]bool),
	}
	sess.txn = txn.New(srv)
	if srv.Cluster != nil {
		sess.asking = cluster.NewAskingChecker(srv.Cluster)
	}
	return sess
}

// run is the connection's whole lifetime: read one command, handle
// it, write the reply, repeat until the peer disconnects or sends a
// malformed frame.
func (sess *Session) run() {
	defer func() {
		close(sess.closed)
		sess.srv.PubSub.UnsubscribeAll(sess.id)
		if sess.replica != nil && sess.srv.Primary != nil {
			sess.srv.Primary.RemoveReplica(sess.replica.ID)
		}
		sess.conn.Close()
	}()

	for {
		args, err := sess.reader.ReadCommand()
		if err != nil {
			return
		}
		if len(args) == 0 {
			continue
		}
		reply := sess.handle(args)
		if reply.Kind == noReplyKind {
			continue
		}
		sess.writeValue(reply)
	}
}

// noReplyKind marks a Session.handle return as "already written its own
// reply frames" (the SUBSCRIBE family writes one frame per channel),
// telling run not to write anything further. It is never passed to a
// resp.Writer.
const noReplyKind resp.Kind = -1

func (sess *Session) writeValue(v resp.Value) {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	if err := sess.writer.WriteValue(v); err != nil {
		return
	}
	_ = sess.writer.Flush()
}

// handle dispatches one parsed command frame, intercepting the
// connection-level commands (transactions, pub/sub mode, SELECT,
// HELLO/AUTH, ASKING) before falling through to the shared
// dispatch.Dispatcher for everything else.
func (sess *Session) handle(args []string) resp.Value {
	name := strings.ToUpper(args[0])
	start := time.Now()
	defer func() {
		d := time.Since(start)
		sess.srv.SlowLog.Record(args, d, sess.id, time.Now())
		sess.srv.Latency.Observe(name, d)
	}()

	switch name {
	case "HELLO":
		return sess.cmdHello(args)
	case "AUTH":
		return sess.cmdAuth(args)
	case "SELECT":
		return sess.cmdSelect(args)
	case "ASKING":
		if sess.asking != nil {
			sess.asking.SetAsking()
		}
		return resp.SimpleString("OK")
	case "MULTI":
		if err := sess.txn.Multi(); err != nil {
			return errValue(err)
		}
		return resp.SimpleString("OK")
	case "DISCARD":
		if err := sess.txn.Discard(); err != nil {
			return errValue(err)
		}
		return resp.SimpleString("OK")
	case "WATCH":
		return sess.cmdWatch(args)
	case "UNWATCH":
		sess.txn.Unwatch()
		return resp.SimpleString("OK")
	case "EXEC":
		return sess.cmdExec()
	case "SUBSCRIBE":
		return sess.cmdSubscribe(args)
	case "PSUBSCRIBE":
		return sess.cmdPSubscribe(args)
	case "UNSUBSCRIBE":
		return sess.cmdUnsubscribe(args)
	case "PUNSUBSCRIBE":
		return sess.cmdPUnsubscribe(args)
	case "REPLCONF":
		return sess.cmdReplconf(args)
	case "PSYNC":
		sess.cmdPsync(args)
		return resp.Value{Kind: noReplyKind}
	case "ACL":
		if len(args) >= 2 && strings.ToUpper(args[1]) == "WHOAMI" {
			return sess.cmdACLWhoAmI()
		}
	}

	desc, ok := sess.srv.Registry.Lookup(name)
	if ok {
		if aclErr := sess.checkACL(desc, args); aclErr != nil {
			return errValue(aclErr)
		}
	}

	if sess.txn.State() == txn.Queuing {
		reply, err := sess.txn.Queue(sess.srv.Registry, args)
		if err != nil {
			return errValue(err)
		}
		return reply
	}

	return sess.dispatchAndPropagate(args)
}

func (sess *Session) db() *shard.Database { return sess.srv.DBs.DBs[sess.dbIndex] }

func (sess *Session) dispatchAndPropagate(args []string) resp.Value {
	var reply resp.Value
	var prop *dispatch.Propagation
	if sess.asking != nil {
		reply, prop = sess.dispatchWithCluster(args)
	} else {
		reply, prop = sess.srv.Dispatcher.Dispatch(sess.db(), sess.dbIndex, args, time.Now())
	}
	if prop != nil {
		sess.propagate(prop)
	}
	return reply
}

// dispatchWithCluster runs the dispatcher with this connection's
// one-shot ASKING checker instead of the shared cluster state, so an
// ASKING grant only ever applies to the single connection that sent
// it (spec.md §4.11).
func (sess *Session) dispatchWithCluster(args []string) (resp.Value, *dispatch.Propagation) {
	d := *sess.srv.Dispatcher
	d.Cluster = sess.asking
	return d.Dispatch(sess.db(), sess.dbIndex, args, time.Now())
}

// propagate fans a successful write out to the event bus (which the
// AOF drain and any replica feed consume) and the primary's
// replication backlog.
func (sess *Session) propagate(prop *dispatch.Propagation) {
	sess.srv.Bus.Publish(eventbus.Event{DBIndex: prop.DBIndex, Args: prop.Args})
	if sess.srv.Primary != nil {
		sess.srv.Primary.Propagate(encodeCommand(prop.Args))
	}
}

func encodeCommand(args []string) []byte {
	var buf bytes.Buffer
	w := resp.NewWriter(&buf)
	elems := make([]resp.Value, len(args))
	for i, a := range args {
		elems[i] = resp.BulkString(a)
	}
	_ = w.WriteValue(resp.Array(elems...))
	_ = w.Flush()
	return buf.Bytes()
}

func (sess *Session) cmdSelect(args []string) resp.Value {
	if len(args) != 2 {
		return errValue(dispatch.NewError(dispatch.KindGeneric, "wrong number of arguments for 'select' command"))
	}
	idx, err := strconv.Atoi(args[1])
	if err != nil || idx < 0 || idx >= len(sess.srv.DBs.DBs) {
		return errValue(dispatch.NewError(dispatch.KindGeneric, "DB index is out of range"))
	}
	sess.dbIndex = idx
	return resp.SimpleString("OK")
}

func (sess *Session) cmdHello(args []string) resp.Value {
	proto := sess.writer.Protocol
	if len(args) >= 2 {
		switch args[1] {
		case "2":
			proto = resp.RESP2
		case "3":
			proto = resp.RESP3
		default:
			return errValue(dispatch.NewError(dispatch.KindGeneric, "NOPROTO unsupported protocol version"))
		}
	}
	sess.writer.Protocol = proto
	return resp.MapOf(
		resp.BulkString("server"), resp.BulkString("spineldb"),
		resp.BulkString("proto"), resp.Integer(int64(proto)),
		resp.BulkString("mode"), resp.BulkString(modeString(sess.srv)),
		resp.BulkString("role"), resp.BulkString(roleString(sess.srv)),
	)
}

func modeString(s *Server) string {
	if s.Cluster != nil {
		return "cluster"
	}
	return "standalone"
}

func roleString(s *Server) string {
	if s.Replica != nil {
		return "replica"
	}
	return "master"
}

func (sess *Session) cmdAuth(args []string) resp.Value {
	if len(args) != 2 && len(args) != 3 {
		return errValue(dispatch.NewError(dispatch.KindGeneric, "wrong number of arguments for 'auth' command"))
	}
	if !sess.srv.Cfg.ACLEnabled {
		return errValue(dispatch.NewError(dispatch.KindGeneric, "Client sent AUTH, but no password is set"))
	}
	username, password := "default", args[1]
	if len(args) == 3 {
		username, password = args[1], args[2]
	}
	u, ok := sess.srv.ACL.Authenticate(username, password)
	if !ok {
		return errValue(dispatch.NewError(dispatch.KindNoAuth, "WRONGPASS invalid username-password pair"))
	}
	sess.user = u
	return resp.SimpleString("OK")
}

// checkACL enforces command and key-pattern permissions once ACL is
// enabled, per spec.md §6's acl.enabled / acl.rules configuration.
func (sess *Session) checkACL(desc *dispatch.Descriptor, args []string) error {
	if !sess.srv.Cfg.ACLEnabled {
		return nil
	}
	if sess.user == nil {
		if u, ok := sess.srv.ACL.GetUser("default"); ok && u.NoPass {
			sess.user = u
		} else {
			return dispatch.NewError(dispatch.KindNoAuth, "Authentication required")
		}
	}
	if !sess.user.CanRunCommand(desc.Name) {
		return dispatch.NewError(dispatch.KindNoPerm, "this user has no permissions to run the '%s' command", strings.ToLower(desc.Name))
	}
	for _, key := range desc.Keys(args) {
		if !sess.user.CanAccessKey(key) {
			return dispatch.NewError(dispatch.KindNoPerm, "no permissions to access a key")
		}
	}
	return nil
}

func (sess *Session) cmdACLWhoAmI() resp.Value {
	if sess.user != nil {
		return resp.BulkString(sess.user.Name)
	}
	return resp.BulkString("default")
}

func (sess *Session) cmdWatch(args []string) resp.Value {
	if len(args) < 2 {
		return errValue(dispatch.NewError(dispatch.KindGeneric, "wrong number of arguments for 'watch' command"))
	}
	if err := sess.txn.Watch(sess.db(), sess.dbIndex, args[1:]); err != nil {
		return errValue(err)
	}
	return resp.SimpleString("OK")
}

func (sess *Session) cmdExec() resp.Value {
	result, err := sess.txn.Exec(sess.db(), sess.dbIndex, time.Now().UnixMilli())
	if err != nil {
		return errValue(err)
	}
	if result.Aborted {
		return resp.NullArray()
	}
	if len(result.Propagate) > 0 {
		sess.srv.Bus.PublishTxn(result.DBIndex, result.Propagate)
		if sess.srv.Primary != nil {
			for _, args := range result.Propagate {
				sess.srv.Primary.Propagate(encodeCommand(args))
			}
		}
	}
	return resp.Array(result.Replies...)
}

func errValue(err error) resp.Value {
	if cmdErr, ok := err.(*dispatch.CommandError); ok {
		return resp.Error(string(cmdErr.Kind) + " " + cmdErr.Message)
	}
	return resp.Error(string(dispatch.KindGeneric) + " " + err.Error())
}

// --- pub/sub ---

func (sess *Session) cmdSubscribe(args []string) resp.Value {
	if len(args) < 2 {
		return errValue(dispatch.NewError(dispatch.KindGeneric, "wrong number of arguments for 'subscribe' command"))
	}
	for _, ch := range args[1:] {
		sub := sess.srv.PubSub.Subscribe(sess.id, ch, 256)
		if !sess.subChannels[ch] {
			sess.subChannels[ch] = true
			go sess.forward(sub)
		}
		sess.writeValue(resp.Array(resp.BulkString("subscribe"), resp.BulkString(ch), resp.Integer(int64(sess.subCount()))))
	}
	return resp.Value{Kind: noReplyKind}
}

func (sess *Session) cmdPSubscribe(args []string) resp.Value {
	if len(args) < 2 {
		return errValue(dispatch.NewError(dispatch.KindGeneric, "wrong number of arguments for 'psubscribe' command"))
	}
	for _, pat := range args[1:] {
		sub := sess.srv.PubSub.PSubscribe(sess.id, pat, 256)
		if !sess.subPatterns[pat] {
			sess.subPatterns[pat] = true
			go sess.forward(sub)
		}
		sess.writeValue(resp.Array(resp.BulkString("psubscribe"), resp.BulkString(pat), resp.Integer(int64(sess.subCount()))))
	}
	return resp.Value{Kind: noReplyKind}
}

func (sess *Session) cmdUnsubscribe(args []string) resp.Value {
	channels := args[1:]
	if len(channels) == 0 {
		for ch := range sess.subChannels {
			channels = append(channels, ch)
		}
	}
	for _, ch := range channels {
		remaining := sess.srv.PubSub.Unsubscribe(sess.id, ch)
		_ = remaining
		delete(sess.subChannels, ch)
		sess.writeValue(resp.Array(resp.BulkString("unsubscribe"), resp.BulkString(ch), resp.Integer(int64(sess.subCount()))))
	}
	return resp.Value{Kind: noReplyKind}
}

func (sess *Session) cmdPUnsubscribe(args []string) resp.Value {
	patterns := args[1:]
	if len(patterns) == 0 {
		for p := range sess.subPatterns {
			patterns = append(patterns, p)
		}
	}
	for _, pat := range patterns {
		sess.srv.PubSub.PUnsubscribe(sess.id, pat)
		delete(sess.subPatterns, pat)
		sess.writeValue(resp.Array(resp.BulkString("punsubscribe"), resp.BulkString(pat), resp.Integer(int64(sess.subCount()))))
	}
	return resp.Value{Kind: noReplyKind}
}

func (sess *Session) subCount() int { return len(sess.subChannels) + len(sess.subPatterns) }

// forward copies messages delivered to sub into this connection's
// outbound stream as RESP3 push frames (downgraded to plain arrays
// under RESP2 by Writer.WriteValue), until the connection closes.
func (sess *Session) forward(sub *pubsub.Subscriber) {
	for {
		select {
		case <-sess.closed:
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			if msg.Pattern != "" {
				sess.writeValue(resp.Push(resp.BulkString("pmessage"), resp.BulkString(msg.Pattern), resp.BulkString(msg.Channel), resp.BulkString(msg.Payload)))
			} else {
				sess.writeValue(resp.Push(resp.BulkString("message"), resp.BulkString(msg.Channel), resp.BulkString(msg.Payload)))
			}
		}
	}
}
