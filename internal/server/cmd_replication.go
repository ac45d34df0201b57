package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spineldb/spineldb/internal/dispatch"
	"github.com/spineldb/spineldb/internal/resp"
	"github.com/spineldb/spineldb/internal/spldb"
)

// cmdReplconf handles REPLCONF LISTENING-PORT/CAPA/ACK, the replica
// handshake and periodic ack spec.md §4.9 describes. It is
// connection-scoped (like SUBSCRIBE), not a dispatch.Descriptor,
// because it mutates Session.replica rather than any keyspace.
func (sess *Session) cmdReplconf(args []string) resp.Value {
	if len(args) < 2 {
		return errValue(dispatch.NewError(dispatch.KindGeneric, "wrong number of arguments for 'replconf' command"))
	}
	switch strings.ToUpper(args[1]) {
	case "ACK":
		if len(args) < 3 || sess.replica == nil {
			return resp.Value{Kind: noReplyKind}
		}
		offset, err := strconv.ParseInt(args[2], 10, 64)
		if err == nil {
			sess.replica.UpdateAck(offset, time.Now())
		}
		return resp.Value{Kind: noReplyKind}
	default:
		return resp.SimpleString("OK")
	}
}

// cmdPsync implements the PSYNC handshake: a partial resync streams
// the primary's backlog tail; a full resync replies FULLRESYNC and
// sends a fresh SPLDB snapshot as one bulk payload. No backlog tail is
// sent after the snapshot.
func (sess *Session) cmdPsync(args []string) {
	if sess.srv.Primary == nil {
		sess.writeValue(errValue(dispatch.NewError(dispatch.KindGeneric, "this instance is not a primary")))
		return
	}
	replID, offsetStr := "?", "-1"
	if len(args) >= 3 {
		replID, offsetStr = args[1], args[2]
	}
	offset, _ := strconv.ParseInt(offsetStr, 10, 64)

	outcome := sess.srv.Primary.Psync(replID, offset)
	sess.replica = sess.srv.Primary.AddReplica(sess.id, sess.conn.RemoteAddr().String())

	if outcome.Partial {
		sess.writeValue(resp.SimpleString(fmt.Sprintf("CONTINUE %s", outcome.ReplID)))
		sess.flushRaw(outcome.Tail)
		return
	}

	sess.writeValue(resp.SimpleString(fmt.Sprintf("FULLRESYNC %s %d", outcome.ReplID, outcome.Offset)))
	snapshot, err := sess.snapshotBytes()
	if err != nil {
		sess.srv.Log.Errorf("psync snapshot failed: %v", err)
		return
	}
	sess.flushRaw([]byte(fmt.Sprintf("$%d\r\n", len(snapshot))))
	sess.flushRaw(snapshot)
}

func (sess *Session) snapshotBytes() ([]byte, error) {
	tmp, err := os.CreateTemp("", "spineldb-psync-*.spldb")
	if err != nil {
		return nil, err
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	if err := spldb.Save(path, sess.srv.DBs); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// flushRaw writes bytes directly to the connection, first flushing the
// buffered RESP writer so byte order is preserved.
func (sess *Session) flushRaw(b []byte) {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	_ = sess.writer.Flush()
	_, _ = sess.conn.Write(b)
}
