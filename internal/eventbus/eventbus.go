// Package eventbus implements the non-blocking fan-out of spec.md §4.6:
// one channel per consumer (AOF, replication, notifications), FIFO per
// producer, with a high-water-mark backpressure policy that only bites
// when the durability contract demands it.
//
// The teacher accumulates propagation records in a mutex-guarded slice
// drained by a ticker (internal/redigo/buffer.go's aofCommandsBuffer +
// StartBufferListener); this package keeps that "accumulate, then a
// background goroutine drains" shape but generalizes the single buffer
// into one buffered channel per registered consumer, so AOF, a replica
// feed, and keyspace notifications can each drain at their own pace
// without blocking one another.
package eventbus

import (
	"sync"

	"github.com/samber/lo"
)

// Event is one propagation record, already resolved to the database it
// targets (spec.md §4.6 groups it with the rest of a transaction block
// when TxnSeq is shared across a contiguous set of events).
type Event struct {
	DBIndex int
	Args    []string
	// TxnSeq groups events that must be applied as one contiguous block
	// (spec.md §4.5 point 3); 0 means "not part of a transaction".
	TxnSeq uint64
}

// Consumer is a named sink with its own backlog channel and a flag for
// whether the bus must block producers when this consumer's backlog is
// full (spec.md §4.6: "applies only when the durability contract
// requires it; appendfsync=no never blocks").
type Consumer struct {
	Name       string
	Blocking   bool
	ch         chan Event
	highWaterMark int
}

// Bus fans out every Publish call to all registered consumers, each via
// its own buffered channel so a slow consumer cannot stall a fast one.
type Bus struct {
	mu        sync.RWMutex
	consumers []*Consumer
	seq       uint64
}

func New() *Bus {
	return &Bus{}
}

// Register adds a consumer with the given backlog capacity. blocking
// means Publish will block (rather than drop or overflow) once this
// consumer's channel is full — set for the AOF consumer exactly when
// appendfsync is "always" or "everysec" (spec.md §4.7), never for
// "no".
func (b *Bus) Register(name string, capacity int, blocking bool) *Consumer {
	c := &Consumer{Name: name, Blocking: blocking, ch: make(chan Event, capacity), highWaterMark: capacity}
	b.mu.Lock()
	b.consumers = append(b.consumers, c)
	b.mu.Unlock()
	return c
}

// Events returns the consumer's read-only event stream.
func (c *Consumer) Events() <-chan Event { return c.ch }

// Publish fans ev out to every consumer in registration order. The
// consumer list is copied under b.mu and the sends happen after the
// lock is released, so events published one after another by the same
// goroutine reach each consumer in that order; calls from different
// goroutines may interleave.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	consumers := make([]*Consumer, len(b.consumers))
	copy(consumers, b.consumers)
	b.mu.RUnlock()

	lo.ForEach(consumers, func(c *Consumer, _ int) {
		if c.Blocking {
			c.ch <- ev
			return
		}
		select {
		case c.ch <- ev:
		default:
			// non-durable consumer (appendfsync=no, or a detached
			// notification listener): drop rather than block.
		}
	})
}

// NextTxnSeq allocates the next transaction-block sequence number for
// PublishTxn callers (spec.md §4.5 point 3's "single contiguous block").
func (b *Bus) NextTxnSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	return b.seq
}

// PublishTxn publishes every event in a transaction block under the
// same TxnSeq, preserving contiguity across consumers.
func (b *Bus) PublishTxn(dbIndex int, commands [][]string) {
	if len(commands) == 0 {
		return
	}
	seq := b.NextTxnSeq()
	for _, args := range commands {
		b.Publish(Event{DBIndex: dbIndex, Args: args, TxnSeq: seq})
	}
}

// Backlog reports how many events are queued for a consumer.
func (c *Consumer) Backlog() int { return len(c.ch) }

// AtHighWaterMark reports whether a consumer's channel is full — the
// trigger spec.md §4.6 names for write-blocking backpressure.
func (c *Consumer) AtHighWaterMark() bool { return len(c.ch) >= c.highWaterMark }
