package repl

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// ErrNotEnoughReplicas is the dedicated error spec.md §4.9 requires
// when min_replicas_to_write gating fails.
var ErrNotEnoughReplicas = fmt.Errorf("NOREPLICAS Not enough good replicas to write")

// ReplicaHandle is the primary's view of one connected replica: its
// last-acked offset and when that ack arrived, used both for the tail
// stream and for min-replicas write gating.
type ReplicaHandle struct {
	ID          string
	Addr        string
	mu          sync.Mutex
	ackOffset   int64
	lastAckTime time.Time
}

func (h *ReplicaHandle) UpdateAck(offset int64, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ackOffset = offset
	h.lastAckTime = now
}

func (h *ReplicaHandle) Ack() (int64, time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ackOffset, h.lastAckTime
}

// PrimaryState is the primary-side replication state spec.md §4.9 and
// §3 name: a (replid, offset) pair, a ring backlog, and the set of
// connected replicas.
type PrimaryState struct {
	ReplID string
	Offset int64
	Backlog *Backlog

	mu       sync.RWMutex
	replicas map[string]*ReplicaHandle

	MinReplicasToWrite int
	MinReplicasMaxLag  time.Duration
}

func NewPrimaryState(backlogBytes, minReplicas int, maxLag time.Duration) *PrimaryState {
	return &PrimaryState{
		ReplID:             generateReplID(),
		Backlog:            NewBacklog(backlogBytes),
		replicas:           make(map[string]*ReplicaHandle),
		MinReplicasToWrite: minReplicas,
		MinReplicasMaxLag:  maxLag,
	}
}

func generateReplID() string {
	b := make([]byte, 20)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Propagate appends the serialized bytes of one command to the
// backlog and advances Offset, the byte counter spec.md §4.9 defines.
func (p *PrimaryState) Propagate(encoded []byte) {
	p.Backlog.Append(encoded)
	p.mu.Lock()
	p.Offset = p.Backlog.EndOffset
	p.mu.Unlock()
}

func (p *PrimaryState) AddReplica(id, addr string) *ReplicaHandle {
	h := &ReplicaHandle{ID: id, Addr: addr, lastAckTime: time.Now()}
	p.mu.Lock()
	p.replicas[id] = h
	p.mu.Unlock()
	return h
}

func (p *PrimaryState) RemoveReplica(id string) {
	p.mu.Lock()
	delete(p.replicas, id)
	p.mu.Unlock()
}

func (p *PrimaryState) Replicas() []*ReplicaHandle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*ReplicaHandle, 0, len(p.replicas))
	for _, h := range p.replicas {
		out = append(out, h)
	}
	return out
}

// CheckWriteGate enforces min_replicas_to_write (spec.md §4.9): fewer
// than MinReplicasToWrite replicas acked within MinReplicasMaxLag
// fails the write with ErrNotEnoughReplicas.
func (p *PrimaryState) CheckWriteGate(now time.Time) error {
	if p.MinReplicasToWrite <= 0 {
		return nil
	}
	good := 0
	for _, h := range p.Replicas() {
		_, lastAck := h.Ack()
		if now.Sub(lastAck) <= p.MinReplicasMaxLag {
			good++
		}
	}
	if good < p.MinReplicasToWrite {
		return ErrNotEnoughReplicas
	}
	return nil
}

// PsyncOutcome tells the caller how to respond to a PSYNC request.
type PsyncOutcome struct {
	Partial bool
	Tail    []byte // for a partial resync
	ReplID  string
	Offset  int64 // resync offset to report back
}

// Psync implements the PSYNC decision spec.md §4.9 names: partial
// resync if replid matches and offset is still in the backlog, else a
// fresh full resync (the caller is responsible for actually sending
// the SPLDB snapshot in the full-resync case).
func (p *PrimaryState) Psync(replID string, offset int64) PsyncOutcome {
	p.mu.RLock()
	current := p.ReplID
	p.mu.RUnlock()

	if replID == current && p.Backlog.HasOffset(offset) {
		return PsyncOutcome{Partial: true, Tail: p.Backlog.TailFrom(offset), ReplID: current, Offset: p.Backlog.EndOffset}
	}
	return PsyncOutcome{Partial: false, ReplID: current, Offset: p.Backlog.EndOffset}
}
