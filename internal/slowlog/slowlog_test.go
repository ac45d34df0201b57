package slowlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSkipsBelowThreshold(t *testing.T) {
	l := NewLog(10*time.Millisecond, 10)
	l.Record([]string{"GET", "k"}, 5*time.Millisecond, "c1", time.Now())
	assert.Equal(t, 0, l.Len())
}

func TestRecordRetainsAboveThresholdAndCaps(t *testing.T) {
	l := NewLog(time.Millisecond, 2)
	now := time.Now()
	l.Record([]string{"SET", "a"}, 2*time.Millisecond, "c1", now)
	l.Record([]string{"SET", "b"}, 3*time.Millisecond, "c1", now)
	l.Record([]string{"SET", "c"}, 4*time.Millisecond, "c1", now)

	assert.Equal(t, 2, l.Len())
	recent := l.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, []string{"SET", "c"}, recent[0].Command)
	assert.Equal(t, []string{"SET", "b"}, recent[1].Command)
}

func TestRecentNewestFirst(t *testing.T) {
	l := NewLog(0, 10)
	now := time.Now()
	l.Record([]string{"A"}, time.Millisecond, "c", now)
	l.Record([]string{"B"}, time.Millisecond, "c", now)

	recent := l.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, []string{"B"}, recent[0].Command)
}

func TestHistogramObserveAggregatesByCommand(t *testing.T) {
	h := NewHistograms()
	h.Observe("GET", 50*time.Microsecond)
	h.Observe("GET", 2*time.Millisecond)

	s, ok := h.Summary("GET")
	require.True(t, ok)
	assert.EqualValues(t, 2, s.Count)
	assert.Greater(t, s.MaxUs, uint64(1000))
}

func TestHistogramUnknownCommandNotFound(t *testing.T) {
	h := NewHistograms()
	_, ok := h.Summary("MISSING")
	assert.False(t, ok)
}
