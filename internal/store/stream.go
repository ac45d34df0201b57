package store

import (
	"fmt"
	"sync"
)

// StreamID is a "ms-seq" entry identifier. IDs must strictly
// increase (spec.md §4.2): XADD with "*" derives IDs from wall-clock
// time, falling back to incrementing Seq when the clock does not
// advance past the last entry's Ms.
type StreamID struct {
	Ms  int64
	Seq int64
}

func (id StreamID) String() string { return fmt.Sprintf("%d-%d", id.Ms, id.Seq) }

func (id StreamID) Less(other StreamID) bool {
	if id.Ms != other.Ms {
		return id.Ms < other.Ms
	}
	return id.Seq < other.Seq
}

// StreamEntry is one appended record.
type StreamEntry struct {
	ID     StreamID
	Fields [][2][]byte // field/value pairs, insertion order
}

// ConsumerGroup tracks per-group delivery state (last-delivered ID
// and pending-entries list), the minimal surface XREADGROUP/XACK need.
type ConsumerGroup struct {
	LastDelivered StreamID
	Pending       map[StreamID]string // entry ID -> consumer name
}

// Stream is an append-only log of entries with consumer groups.
type Stream struct {
	mu      sync.Mutex
	entries []StreamEntry
	lastID  StreamID
	Groups  map[string]*ConsumerGroup
}

func NewStream() *Stream {
	return &Stream{Groups: make(map[string]*ConsumerGroup)}
}

func (*Stream) Kind() Kind { return KindStream }

// NextID computes the ID for an XADD "*" using wallClockMs, never
// going backwards relative to the last appended entry: if the clock
// has not advanced, the sequence is incremented instead (spec.md §4.2).
func (s *Stream) NextID(wallClockMs int64) StreamID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wallClockMs > s.lastID.Ms {
		return StreamID{Ms: wallClockMs, Seq: 0}
	}
	return StreamID{Ms: s.lastID.Ms, Seq: s.lastID.Seq + 1}
}

// Append validates id is strictly greater than the last appended ID
// and stores the entry.
func (s *Stream) Append(id StreamID, fields [][2][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) > 0 && !s.lastID.Less(id) {
		return fmt.Errorf("ERR The ID specified in XADD is equal or smaller than the target stream top item")
	}
	s.entries = append(s.entries, StreamEntry{ID: id, Fields: fields})
	s.lastID = id
	return nil
}

func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Stream) LastID() StreamID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastID
}

// Range returns entries with from <= ID <= to, inclusive.
func (s *Stream) Range(from, to StreamID) []StreamEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []StreamEntry
	for _, e := range s.entries {
		if e.ID.Less(from) {
			continue
		}
		if to.Less(e.ID) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Group returns (creating if needed) a consumer group starting
// delivery after startAfter.
func (s *Stream) Group(name string, startAfter StreamID) *ConsumerGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.Groups[name]
	if !ok {
		g = &ConsumerGroup{LastDelivered: startAfter, Pending: make(map[StreamID]string)}
		s.Groups[name] = g
	}
	return g
}
