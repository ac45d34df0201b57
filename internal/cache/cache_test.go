package cache

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeStateBoundaries(t *testing.T) {
	p := Policy{TTL: time.Second, SWR: time.Second, Grace: time.Second}
	base := time.Unix(0, 0)

	assert.Equal(t, Fresh, ComputeState(base, base, p))
	assert.Equal(t, Fresh, ComputeState(base, base.Add(999*time.Millisecond), p))
	assert.Equal(t, Stale, ComputeState(base, base.Add(time.Second), p))
	assert.Equal(t, Stale, ComputeState(base, base.Add(1999*time.Millisecond), p))
	assert.Equal(t, Grace, ComputeState(base, base.Add(2*time.Second), p))
	assert.Equal(t, Grace, ComputeState(base, base.Add(2999*time.Millisecond), p))
	assert.Equal(t, Expired, ComputeState(base, base.Add(3*time.Second), p))
}

func TestVariantHashStableAcrossHeaderCase(t *testing.T) {
	h1 := VariantHash([]string{"Accept-Encoding"}, map[string][]string{"Accept-Encoding": {"gzip, br"}})
	h2 := VariantHash([]string{"accept-encoding"}, map[string][]string{"ACCEPT-ENCODING": {"br,gzip"}})
	assert.Equal(t, h1, h2)
}

func TestVariantHashUnknownHeaderTreatedAbsent(t *testing.T) {
	withHeader := VariantHash([]string{"X-Unknown"}, map[string][]string{})
	withoutHeader := VariantHash([]string{"X-Unknown"}, nil)
	assert.Equal(t, withHeader, withoutHeader)
}

type fakeFetcher struct {
	status  int
	headers map[string][]string
	body    string
	calls   int
	err     error
}

func (f *fakeFetcher) Fetch(ctx FetchContext) (int, map[string][]string, io.Reader, bool, error) {
	f.calls++
	if f.err != nil {
		return 0, nil, nil, false, f.err
	}
	return f.status, f.headers, strings.NewReader(f.body), false, nil
}

func TestGetOrFetchMissesThenServesFresh(t *testing.T) {
	e := NewEngine(4, 1<<20, t.TempDir(), 0)
	policy := Policy{TTL: time.Minute}
	fetcher := &fakeFetcher{status: 200, headers: map[string][]string{"ETag": {"v1"}}, body: "hello"}

	entry, state, err := e.GetOrFetch("k", policy, nil, fetcher, time.Now())
	require.NoError(t, err)
	assert.Equal(t, Fresh, state)
	assert.Equal(t, "hello", string(entry.Body))
	assert.Equal(t, 1, fetcher.calls)

	entry2, state2, err := e.GetOrFetch("k", policy, nil, fetcher, time.Now())
	require.NoError(t, err)
	assert.Equal(t, Fresh, state2)
	assert.Equal(t, "hello", string(entry2.Body))
	assert.Equal(t, 1, fetcher.calls, "second call should be served from cache without refetching")
}

func TestGetOrFetchFallsBackToGraceOnOriginError(t *testing.T) {
	e := NewEngine(4, 1<<20, t.TempDir(), 0)
	policy := Policy{TTL: time.Millisecond, SWR: 0, Grace: time.Minute}
	okFetcher := &fakeFetcher{status: 200, body: "cached"}

	_, _, err := e.GetOrFetch("k", policy, nil, okFetcher, time.Now())
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)

	failFetcher := &fakeFetcher{err: errors.New("origin down")}
	entry, state, err := e.GetOrFetch("k", policy, nil, failFetcher, time.Now())
	require.NoError(t, err)
	assert.Equal(t, Grace, state)
	assert.Equal(t, "cached", string(entry.Body))
}

func TestGetOrFetchNonSuccessUsesNegativeTTL(t *testing.T) {
	e := NewEngine(4, 1<<20, t.TempDir(), 0)
	policy := Policy{TTL: time.Minute, NegativeTTL: time.Nanosecond}
	fetcher := &fakeFetcher{status: 500, body: "err"}

	entry, state, err := e.GetOrFetch("k", policy, nil, fetcher, time.Now())
	require.NoError(t, err)
	assert.Equal(t, Fresh, state)
	assert.Equal(t, time.Nanosecond, entry.Policy.TTL)
}

func TestPurgeTagInvalidatesEntry(t *testing.T) {
	e := NewEngine(4, 1<<20, t.TempDir(), 0)
	policy := Policy{TTL: time.Minute, Tags: []string{"product:42"}}
	fetcher := &fakeFetcher{status: 200, body: "v1"}

	entry, state, err := e.GetOrFetch("k", policy, nil, fetcher, time.Now())
	require.NoError(t, err)
	assert.Equal(t, Fresh, state)

	e.PurgeTag("product:42")

	_, state2 := e.Lookup("k", policy, nil, time.Now())
	assert.Equal(t, Expired, state2)
	_ = entry
}

func TestCoalescerRunsFetchOnceForConcurrentCallers(t *testing.T) {
	c := NewCoalescer()
	start := make(chan struct{})
	done := make(chan struct{})
	calls := 0
	secondFetchInvoked := false

	fetch := func() (*Entry, error) {
		calls++
		close(start)
		<-done
		return &Entry{StatusCode: 200}, nil
	}

	results := make(chan *Entry, 2)
	go func() {
		e, _ := c.Do("k", "v", fetch)
		results <- e
	}()
	<-start

	secondStarted := make(chan struct{})
	go func() {
		close(secondStarted)
		e, _ := c.Do("k", "v", func() (*Entry, error) {
			secondFetchInvoked = true
			return nil, nil
		})
		results <- e
	}()
	<-secondStarted

	close(done)
	e1 := <-results
	e2 := <-results
	require.False(t, secondFetchInvoked, "second caller should not invoke fetch")
	assert.Equal(t, 1, calls)
	assert.Same(t, e1, e2)
}

func TestCoalescerRecoversPanicIntoError(t *testing.T) {
	c := NewCoalescer()
	_, err := c.Do("k", "v", func() (*Entry, error) {
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestManifestCommitEvictsOrphanedOldestUnderCap(t *testing.T) {
	m := NewManifest(t.TempDir(), 10)

	rec1, err := m.StreamBody(bytes.NewReader(make([]byte, 6)))
	require.NoError(t, err)
	m.Commit(rec1.Path, func(string) bool { return true })

	rec2, err := m.StreamBody(bytes.NewReader(make([]byte, 6)))
	require.NoError(t, err)
	m.Commit(rec2.Path, func(path string) bool { return path != rec2.Path })

	assert.LessOrEqual(t, m.DiskUsed(), int64(10))
}

func TestSoftPurgeMarksStaleWithoutDeletingBody(t *testing.T) {
	e := NewEngine(4, 1<<20, t.TempDir(), 0)
	policy := Policy{TTL: time.Minute}
	_, err := e.Store("k", policy, 200, nil, []byte("body"))
	require.NoError(t, err)

	n := e.SoftPurge("k")
	assert.Equal(t, 1, n)

	_, state := e.Lookup("k", policy, nil, time.Now())
	assert.Equal(t, Expired, state)

	variants, ok := e.PeekVariants("k")
	require.True(t, ok)
	require.Len(t, variants, 1)
	for _, v := range variants {
		assert.Equal(t, "body", string(v.Body), "soft purge leaves the body in place")
	}
}

func TestSoftPurgeTagOnlyTouchesMatchingKeys(t *testing.T) {
	e := NewEngine(4, 1<<20, t.TempDir(), 0)
	taggedPolicy := Policy{TTL: time.Minute, Tags: []string{"a"}}
	otherPolicy := Policy{TTL: time.Minute, Tags: []string{"b"}}
	_, err := e.Store("k1", taggedPolicy, 200, nil, []byte("1"))
	require.NoError(t, err)
	_, err = e.Store("k2", otherPolicy, 200, nil, []byte("2"))
	require.NoError(t, err)

	n := e.SoftPurgeTag("a")
	assert.Equal(t, 1, n)

	_, state1 := e.Lookup("k1", taggedPolicy, nil, time.Now())
	assert.Equal(t, Expired, state1)
	_, state2 := e.Lookup("k2", otherPolicy, nil, time.Now())
	assert.Equal(t, Fresh, state2)
}

func TestManualLocksLockAndUnlock(t *testing.T) {
	m := NewManualLocks()
	now := time.Now()

	assert.False(t, m.Locked("k", now))
	m.Lock("k", time.Minute, now)
	assert.True(t, m.Locked("k", now))
	assert.False(t, m.Locked("k", now.Add(2*time.Minute)), "lock past its ttl reads as unlocked")

	assert.True(t, m.Unlock("k"))
	assert.False(t, m.Unlock("k"), "second unlock finds nothing left")
}

func TestEngineStatsTracksHitsMissesAndStale(t *testing.T) {
	e := NewEngine(4, 1<<20, t.TempDir(), 0)
	policy := Policy{TTL: time.Millisecond, SWR: time.Minute}
	_, err := e.Store("k", policy, 200, nil, []byte("v"))
	require.NoError(t, err)

	e.Lookup("missing", policy, nil, time.Now())
	time.Sleep(2 * time.Millisecond)
	e.Lookup("k", policy, nil, time.Now())

	snap := e.Stats(0)
	assert.Equal(t, uint64(1), snap.Misses)
	assert.Equal(t, uint64(1), snap.StaleHits)
	assert.Equal(t, 1, snap.TotalVariants)
}

func TestValidatorEvictsTagStaleKeys(t *testing.T) {
	e := NewEngine(4, 1<<20, t.TempDir(), 0)
	policy := Policy{TTL: time.Minute, Tags: []string{"a"}}
	_, err := e.Store("k", policy, 200, nil, []byte("v"))
	require.NoError(t, err)

	e.Tags().Bump("a")

	v := NewValidator(e, time.Hour)
	v.sweepOnce()

	_, ok := e.PeekVariants("k")
	assert.False(t, ok, "validator should have deleted the tag-stale key")
}

func TestManifestGCRemovesPendingDeleteAndOldPending(t *testing.T) {
	m := NewManifest(t.TempDir(), 0)

	rec, err := m.StreamBody(bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	m.MarkForDeletion(rec.Path)

	m.GC(time.Hour, time.Now())
	_, err = os.Stat(rec.Path)
	assert.Error(t, err, "pending-delete file should be removed by GC")
}
