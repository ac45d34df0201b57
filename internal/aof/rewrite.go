package aof

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/spineldb/spineldb/internal/resp"
)

// Snapshotter is implemented by the server's database layer: it
// produces, for every live key, the single command that would
// recreate it (spec.md §4.7: "choosing the shortest command per key").
type Snapshotter interface {
	// RewriteCommands returns one reconstruction command per live key
	// across every database, each prefixed with the SELECT needed to
	// target its database.
	RewriteCommands() [][]string
}

// Rewriter runs a background rewrite: build a minimal log from a
// snapshot, meanwhile buffering live writes via pending, then append
// the buffer and atomically replace the old file — the same
// tmp-write + fsync + rename shape as the teacher's UpdateSnapshot,
// generalized to a command log instead of a JSON blob (spec.md §4.7).
type Rewriter struct {
	path string
	log  *Log

	mu      sync.Mutex
	pending [][]string
	active  bool
}

func NewRewriter(path string, log *Log) *Rewriter {
	return &Rewriter{path: path, log: log}
}

// BufferDuringRewrite is called by the server's AOF drain loop
// (server.drainAOF) for every propagated write; it returns false and
// buffers nothing when no rewrite is active.
func (rw *Rewriter) BufferDuringRewrite(args []string) bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if !rw.active {
		return false
	}
	rw.pending = append(rw.pending, args)
	return true
}

// Run performs one rewrite cycle against snap. Any failure before the
// final rename leaves the existing log file untouched (spec.md §4.7:
// "Any failure before rename leaves the old file intact").
func (rw *Rewriter) Run(snap Snapshotter) error {
	rw.mu.Lock()
	if rw.active {
		rw.mu.Unlock()
		return fmt.Errorf("aof: rewrite already in progress")
	}
	rw.active = true
	rw.pending = nil
	rw.mu.Unlock()

	defer func() {
		rw.mu.Lock()
		rw.active = false
		rw.mu.Unlock()
	}()

	tmpPath := rw.path + ".rewrite.tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("aof: creating rewrite tmp file: %w", err)
	}

	bw := bufio.NewWriter(f)
	w := resp.NewWriter(bw)
	for _, cmd := range snap.RewriteCommands() {
		elems := make([]resp.Value, len(cmd))
		for i, a := range cmd {
			elems[i] = resp.BulkString(a)
		}
		if err := w.WriteValue(resp.Array(elems...)); err != nil {
			f.Close()
			return fmt.Errorf("aof: encoding rewritten command: %w", err)
		}
	}

	rw.mu.Lock()
	buffered := rw.pending
	rw.pending = nil
	rw.mu.Unlock()

	for _, cmd := range buffered {
		elems := make([]resp.Value, len(cmd))
		for i, a := range cmd {
			elems[i] = resp.BulkString(a)
		}
		if err := w.WriteValue(resp.Array(elems...)); err != nil {
			f.Close()
			return fmt.Errorf("aof: encoding buffered command: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("aof: flushing rewrite file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("aof: fsyncing rewrite file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("aof: closing rewrite file: %w", err)
	}

	rw.log.mu.Lock()
	defer rw.log.mu.Unlock()

	if err := rw.log.bw.Flush(); err != nil {
		return fmt.Errorf("aof: flushing live log before replace: %w", err)
	}
	if err := rw.log.file.Close(); err != nil {
		return fmt.Errorf("aof: closing live log before replace: %w", err)
	}
	if err := os.Rename(tmpPath, rw.path); err != nil {
		return fmt.Errorf("aof: renaming rewrite file into place: %w", err)
	}

	newFile, err := os.OpenFile(rw.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("aof: reopening log after rewrite: %w", err)
	}
	rw.log.file = newFile
	rw.log.bw = bufio.NewWriter(newFile)
	return nil
}
