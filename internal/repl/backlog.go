// Package repl implements the replication engine of spec.md §4.9:
// a primary-side ring backlog with PSYNC full/partial resync, and a
// replica-side connect/apply state machine.
//
// The teacher has no replication concept at all; the ring-buffer
// bookkeeping here (a fixed-size byte slice with a wrap-around write
// cursor plus a start-offset that advances as old bytes are
// overwritten) follows core/replication/backlog.rs's offset-keyed ring,
// and Psync's full-vs-partial decision follows that file in turning on
// whether the requested offset still falls inside the ring rather than
// on a separate generation counter.
package repl

import "sync"

// Backlog is a fixed-capacity ring buffer of the serialized
// propagation stream. StartOffset is the byte offset of the oldest
// byte still held; EndOffset is the offset one past the newest byte
// written. A replica can partially resync only if its last-acked
// offset falls within [StartOffset, EndOffset].
type Backlog struct {
	mu          sync.Mutex
	buf         []byte
	writeCursor int
	full        bool
	StartOffset int64
	EndOffset   int64
}

func NewBacklog(capacity int) *Backlog {
	return &Backlog{buf: make([]byte, capacity)}
}

// Append writes p into the ring, advancing EndOffset by len(p) and,
// once the ring has wrapped, advancing StartOffset by however many
// bytes were overwritten.
func (b *Backlog) Append(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appendLocked(p)
}

func (b *Backlog) appendLocked(p []byte) {
	cap := len(b.buf)
	for len(p) > 0 {
		n := copy(b.buf[b.writeCursor:], p)
		b.writeCursor = (b.writeCursor + n) % cap
		if b.writeCursor == 0 {
			b.full = true
		}
		p = p[n:]
		b.EndOffset += int64(n)
		if b.full {
			b.StartOffset = b.EndOffset - int64(cap)
		}
	}
}

// HasOffset reports whether offset is still available for a partial
// resync (spec.md §4.9: "offset is still in backlog").
func (b *Backlog) HasOffset(offset int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return offset >= b.StartOffset && offset <= b.EndOffset
}

// TailFrom returns every byte from offset to the current end, for a
// partial resync's "tail stream". Returns nil if offset is not
// currently held.
func (b *Backlog) TailFrom(offset int64) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if offset < b.StartOffset || offset > b.EndOffset {
		return nil
	}
	n := int(b.EndOffset - offset)
	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	cap := len(b.buf)
	for i := 0; i < n; i++ {
		out[i] = b.buf[int(offset+int64(i))%cap]
	}
	return out
}
