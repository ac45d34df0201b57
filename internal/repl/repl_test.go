package repl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBacklogTailFromReturnsExactBytes(t *testing.T) {
	b := NewBacklog(16)
	b.Append([]byte("0123456789"))
	require.True(t, b.HasOffset(5))
	tail := b.TailFrom(5)
	require.Equal(t, []byte("56789"), tail)
}

func TestBacklogWrapAroundDropsOldBytes(t *testing.T) {
	b := NewBacklog(8)
	b.Append([]byte("ABCDEFGH")) // fills exactly
	b.Append([]byte("IJ"))       // wraps, overwriting "AB"
	require.False(t, b.HasOffset(0))
	require.True(t, b.HasOffset(2))
	tail := b.TailFrom(2)
	require.Equal(t, []byte("CDEFGHIJ"), tail)
}

func TestPsyncPartialWhenReplIDMatchesAndOffsetHeld(t *testing.T) {
	p := NewPrimaryState(64, 0, time.Second)
	p.Propagate([]byte("hello world"))
	outcome := p.Psync(p.ReplID, 5)
	require.True(t, outcome.Partial)
	require.Equal(t, []byte(" world"), outcome.Tail)
}

func TestPsyncFullWhenReplIDMismatches(t *testing.T) {
	p := NewPrimaryState(64, 0, time.Second)
	p.Propagate([]byte("hello"))
	outcome := p.Psync("stale-id", 0)
	require.False(t, outcome.Partial)
}

func TestCheckWriteGateFailsWithoutEnoughFreshReplicas(t *testing.T) {
	p := NewPrimaryState(64, 2, time.Second)
	h := p.AddReplica("r1", "127.0.0.1:7001")
	h.UpdateAck(0, time.Now())

	err := p.CheckWriteGate(time.Now())
	require.ErrorIs(t, err, ErrNotEnoughReplicas)
}

func TestCheckWriteGatePassesWhenDisabled(t *testing.T) {
	p := NewPrimaryState(64, 0, time.Second)
	require.NoError(t, p.CheckWriteGate(time.Now()))
}

func TestReplicaPsyncArgsSentinelOnFirstContact(t *testing.T) {
	r := NewReplicaState("127.0.0.1", 6380)
	replID, offset := r.PsyncArgs()
	require.Equal(t, SentinelReplID, replID)
	require.Equal(t, SentinelOffset, offset)
}

func TestReplicaFullResyncTransitionsPhase(t *testing.T) {
	r := NewReplicaState("127.0.0.1", 6380)
	r.BeginFullResync("newid")
	require.Equal(t, PhaseFullResyncLoading, r.Phase)
	r.CompleteFullResync(42)
	require.Equal(t, PhaseStreaming, r.Phase)
	require.Equal(t, int64(42), r.CurrentOffset())
}
