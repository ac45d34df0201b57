package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/samber/lo"
)

// BodyStatus is one manifest record's lifecycle stage (spec.md §4.10:
// "A manifest file records every body file's status in {Pending,
// Committed, PendingDelete}").
type BodyStatus int

const (
	Pending BodyStatus = iota
	Committed
	PendingDelete
)

// ManifestRecord tracks one on-disk body file.
type ManifestRecord struct {
	Path      string
	Size      int64
	SHA       string
	Status    BodyStatus
	CreatedAt time.Time
}

// Manifest is the on-disk body store's bookkeeping: every streamed
// body gets a record here before (Pending), during (Committed), and
// after (PendingDelete) its cache entry's lifetime.
type Manifest struct {
	dir string

	mu       sync.Mutex
	records  map[string]*ManifestRecord // keyed by Path
	diskUsed int64
	maxDisk  int64
}

func NewManifest(dir string, maxDiskSize int64) *Manifest {
	return &Manifest{dir: dir, records: make(map[string]*ManifestRecord), maxDisk: maxDiskSize}
}

// StreamBody writes r to a new file under dir, computing its SHA-256
// as it streams, and registers it Pending — the shape spec.md §4.10
// requires for bodies that exceed streaming_threshold_bytes or
// request FORCE-DISK.
func (m *Manifest) StreamBody(r io.Reader) (*ManifestRecord, error) {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return nil, fmt.Errorf("cache: creating on-disk cache dir: %w", err)
	}
	f, err := os.CreateTemp(m.dir, "body-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("cache: creating body file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(f, io.TeeReader(r, h))
	if err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("cache: streaming body: %w", err)
	}

	rec := &ManifestRecord{Path: f.Name(), Size: n, SHA: hex.EncodeToString(h.Sum(nil)), Status: Pending, CreatedAt: time.Now()}
	m.mu.Lock()
	m.records[rec.Path] = rec
	m.mu.Unlock()
	return rec, nil
}

// Commit marks a body as installed in a live entry, applying the
// max_disk_size cap via oldest-first eviction of other Committed
// bodies whose entries have already been invalidated (spec.md §4.10:
// "Total disk usage is capped at max_disk_size with oldest-first
// eviction of Committed bodies whose in-memory entries are
// invalidated" — eviction candidates are supplied by isOrphaned,
// which the caller derives from its live entry set).
func (m *Manifest) Commit(path string, isOrphaned func(path string) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[path]
	if !ok {
		return
	}
	rec.Status = Committed
	m.diskUsed += rec.Size

	if m.maxDisk <= 0 || m.diskUsed <= m.maxDisk {
		return
	}
	m.evictOldestCommittedLocked(isOrphaned)
}

func (m *Manifest) evictOldestCommittedLocked(isOrphaned func(path string) bool) {
	candidates := lo.Filter(recordsSlice(m.records), func(r *ManifestRecord, _ int) bool {
		return r.Status == Committed && isOrphaned(r.Path)
	})
	for m.diskUsed > m.maxDisk && len(candidates) > 0 {
		oldest := lo.MinBy(candidates, func(a, b *ManifestRecord) bool { return a.CreatedAt.Before(b.CreatedAt) })
		m.markDeleteLocked(oldest.Path)
		candidates = lo.Filter(candidates, func(r *ManifestRecord, _ int) bool { return r.Path != oldest.Path })
	}
}

func recordsSlice(m map[string]*ManifestRecord) []*ManifestRecord {
	return lo.Values(m)
}

// MarkForDeletion transitions a body to PendingDelete, releasing it
// from the live disk-usage accounting immediately.
func (m *Manifest) MarkForDeletion(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markDeleteLocked(path)
}

func (m *Manifest) markDeleteLocked(path string) {
	rec, ok := m.records[path]
	if !ok {
		return
	}
	if rec.Status == Committed {
		m.diskUsed -= rec.Size
	}
	rec.Status = PendingDelete
}

// GC removes PendingDelete files immediately and Pending files older
// than safetyWindow (spec.md §4.10: "GC removes Pending files older
// than a safety window and PendingDelete files immediately after
// release").
func (m *Manifest) GC(safetyWindow time.Duration, now time.Time) {
	m.mu.Lock()
	toRemove := make([]string, 0)
	for path, rec := range m.records {
		switch rec.Status {
		case PendingDelete:
			toRemove = append(toRemove, path)
		case Pending:
			if now.Sub(rec.CreatedAt) > safetyWindow {
				toRemove = append(toRemove, path)
			}
		}
	}
	for _, path := range toRemove {
		delete(m.records, path)
	}
	m.mu.Unlock()

	lo.ForEach(toRemove, func(path string, _ int) {
		_ = os.Remove(path)
	})
}

func (m *Manifest) DiskUsed() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.diskUsed
}

// PathFor builds a stable on-disk path for a committed body, used
// when the caller wants a deterministic name instead of the
// CreateTemp-assigned one (kept alongside for callers that persist
// paths across restarts).
func PathFor(dir, sha string) string {
	return filepath.Join(dir, sha[:2], sha)
}
