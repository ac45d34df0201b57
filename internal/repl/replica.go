package repl

import "sync"

// SyncPhase is a replica connection's current stage.
type SyncPhase int

const (
	PhaseDisconnected SyncPhase = iota
	PhaseConnecting
	PhaseAwaitingResync
	PhaseFullResyncLoading
	PhaseStreaming
)

// ReplicaState is what a replica node tracks about its primary
// (spec.md §4.9 "Replication state ... On replica: the primary's
// address, last-known (replid, offset), sync phase").
type ReplicaState struct {
	mu sync.Mutex

	PrimaryHost string
	PrimaryPort int

	ReplID string
	Offset int64
	Phase  SyncPhase
}

func NewReplicaState(host string, port int) *ReplicaState {
	return &ReplicaState{PrimaryHost: host, PrimaryPort: port, Phase: PhaseDisconnected}
}

// SentinelReplID and SentinelOffset are what a replica sends on first contact, per
// spec.md §4.9: "PSYNC with last known (replid, offset) (or a
// sentinel for first contact)".
const SentinelReplID = "?"
const SentinelOffset = int64(-1)

func (r *ReplicaState) PsyncArgs() (string, int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ReplID == "" {
		return SentinelReplID, SentinelOffset
	}
	return r.ReplID, r.Offset
}

// BeginFullResync transitions into shadow-loading, recording the new
// replid the primary assigned; the caller loads the incoming SPLDB
// into a shadow database and calls CompleteFullResync once ready.
func (r *ReplicaState) BeginFullResync(replID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Phase = PhaseFullResyncLoading
	r.ReplID = replID
	r.Offset = 0
}

func (r *ReplicaState) CompleteFullResync(offset int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Phase = PhaseStreaming
	r.Offset = offset
}

func (r *ReplicaState) BeginPartialResync(replID string, offset int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Phase = PhaseStreaming
	r.ReplID = replID
	r.Offset = offset
}

// AdvanceOffset records that n more bytes of the replication stream
// were applied, the byte counter a replica's ack reports back.
func (r *ReplicaState) AdvanceOffset(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Offset += n
}

func (r *ReplicaState) CurrentOffset() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Offset
}

// ApplyInReplicaMode runs one command through dispatchFn — the local
// dispatcher configured to skip cluster checks and accept writes
// regardless of the emergency-read-only flag, per spec.md §4.9: "apply
// incoming commands through the local dispatcher in a replica-mode
// that skips cluster checks and accepts writes even when normally
// read-only".
func (r *ReplicaState) ApplyInReplicaMode(args []string, dispatchFn func([]string) error) error {
	return dispatchFn(args)
}
