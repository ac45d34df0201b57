package slowlog

import (
	"sort"
	"sync"
	"time"
)

// bucketBoundsMicros defines the histogram's fixed bucket edges in
// microseconds, coarse enough to bound memory per command name
// indefinitely while still separating sub-millisecond commands from
// multi-second ones.
var bucketBoundsMicros = []int64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000, 1000000}

// commandHistogram is one command name's latency distribution.
type commandHistogram struct {
	buckets []uint64 // len(bucketBoundsMicros)+1, last is the overflow bucket
	count   uint64
	sumUs   uint64
	maxUs   uint64
}

func newCommandHistogram() *commandHistogram {
	return &commandHistogram{buckets: make([]uint64, len(bucketBoundsMicros)+1)}
}

func (h *commandHistogram) observe(d time.Duration) {
	us := uint64(d.Microseconds())
	h.count++
	h.sumUs += us
	if us > h.maxUs {
		h.maxUs = us
	}
	idx := sort.Search(len(bucketBoundsMicros), func(i int) bool { return bucketBoundsMicros[i] >= int64(us) })
	h.buckets[idx]++
}

// Histograms aggregates per-command latency observations for LATENCY
// HISTOGRAM.
type Histograms struct {
	mu   sync.Mutex
	byCmd map[string]*commandHistogram
}

func NewHistograms() *Histograms {
	return &Histograms{byCmd: make(map[string]*commandHistogram)}
}

func (h *Histograms) Observe(command string, d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, ok := h.byCmd[command]
	if !ok {
		hist = newCommandHistogram()
		h.byCmd[command] = hist
	}
	hist.observe(d)
}

// Summary is the reported view of one command's histogram.
type Summary struct {
	Command  string
	Count    uint64
	MeanUs   float64
	MaxUs    uint64
	Buckets  map[int64]uint64 // bucket upper-bound (or -1 for overflow) -> count
}

func (h *Histograms) Summary(command string) (Summary, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, ok := h.byCmd[command]
	if !ok {
		return Summary{}, false
	}
	s := Summary{Command: command, Count: hist.count, MaxUs: hist.maxUs, Buckets: make(map[int64]uint64)}
	if hist.count > 0 {
		s.MeanUs = float64(hist.sumUs) / float64(hist.count)
	}
	for i, bound := range bucketBoundsMicros {
		s.Buckets[bound] = hist.buckets[i]
	}
	s.Buckets[-1] = hist.buckets[len(bucketBoundsMicros)]
	return s, true
}

func (h *Histograms) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byCmd = make(map[string]*commandHistogram)
}
