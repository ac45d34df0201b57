package cache

import (
	"bytes"
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// Fetcher performs the origin round-trip CACHE.PROXY needs: it is
// supplied by the HTTP-facing caller (internal/server), keeping this
// package free of any net/http dependency.
type Fetcher interface {
	// Fetch performs the origin request, optionally passing a prior
	// ETag/Last-Modified for conditional revalidation. notModified is
	// true only on a 304 response to a conditional request.
	Fetch(ctx FetchContext) (status int, headers map[string][]string, body io.Reader, notModified bool, err error)
}

// FetchContext carries what a Fetcher needs to make a conditional
// request, per spec.md §4.10 point 4 ("revalidate via conditional
// request using the stored ETag/Last-Modified").
type FetchContext struct {
	Key              string
	PriorETag        string
	PriorLastModified string
	Revalidate       bool
}

// Engine ties the lifecycle state machine, variant store, tag table,
// coalescer, and on-disk manifest into the CACHE.GET / CACHE.PROXY
// semantics of spec.md §4.10.
type Engine struct {
	keys      *KeyStore
	tags      *TagEpochTable
	coalescer *Coalescer
	manifest  *Manifest
	stats     *Stats
	locks     *ManualLocks

	streamingThreshold int64
	versionSeq         uint64
}

func NewEngine(maxVariantsPerKey int, streamingThreshold int64, diskDir string, maxDiskSize int64) *Engine {
	return &Engine{
		keys:               NewKeyStore(maxVariantsPerKey),
		tags:               NewTagEpochTable(),
		coalescer:          NewCoalescer(),
		manifest:           NewManifest(diskDir, maxDiskSize),
		stats:              &Stats{},
		locks:              NewManualLocks(),
		streamingThreshold: streamingThreshold,
	}
}

func (e *Engine) Tags() *TagEpochTable { return e.tags }

// Locks exposes the manual advisory lock table for CACHE.LOCK/UNLOCK.
func (e *Engine) Locks() *ManualLocks { return e.locks }

// PeekVariants returns key's stored variants keyed by variant hash,
// without creating an entry for a key that was never stored
// (CACHE.INFO).
func (e *Engine) PeekVariants(key string) (map[string]*Entry, bool) {
	vm, ok := e.keys.Peek(key)
	if !ok {
		return nil, false
	}
	return vm.AllByHash(), true
}

// Lookup implements CACHE.GET: returns the live variant for key under
// requestHeaders along with its current lifecycle State, without
// fetching. A nil entry means no variant is stored.
func (e *Engine) Lookup(key string, policy Policy, requestHeaders map[string][]string, now time.Time) (*Entry, State) {
	vm := e.keys.VariantsFor(key)
	hash := VariantHash(policy.VaryOn, requestHeaders)
	entry, ok := vm.Get(hash)
	if !ok {
		e.stats.recordMiss()
		return nil, Expired
	}
	entry.LastAccess = now

	if entry.ForcedStale || entry.TagsStale(e.tags) {
		e.stats.recordMiss()
		return entry, Expired
	}

	state := ComputeState(entry.StoredAt, now, policy)
	switch state {
	case Fresh:
		e.stats.recordHit()
	case Stale, Grace:
		e.stats.recordStaleHit()
	default:
		e.stats.recordMiss()
	}
	return entry, state
}

// GetOrFetch implements CACHE.PROXY's full decision tree (spec.md
// §4.10 points 1-7):
//
//  1. Fresh: serve directly.
//  2. Stale (within SWR): return the stale entry without fetching;
//     starting a background revalidation is left to the caller.
//  3. Grace: fetch; if the fetch fails, return the Grace-window entry
//     instead of the error. A soft-purged entry whose age is still
//     within ttl+swr+grace gets the same fallback, reported as Grace.
//  4. Expired or absent: fetch (coalesced across concurrent callers),
//     installing the result with a compare-and-set against the
//     version the caller observed when it decided to fetch.
func (e *Engine) GetOrFetch(key string, policy Policy, requestHeaders map[string][]string, fetcher Fetcher, now time.Time) (*Entry, State, error) {
	entry, state := e.Lookup(key, policy, requestHeaders, now)

	switch state {
	case Fresh, Stale:
		return entry, state, nil
	}

	fetched, err := e.fetchAndInstall(key, policy, requestHeaders, fetcher, entry)
	if err != nil {
		if entry != nil && state == Grace {
			// origin unreachable during the grace window: serve what we have.
			return entry, state, nil
		}
		if entry != nil && entry.ForcedStale && ComputeState(entry.StoredAt, now, policy) != Expired {
			// soft-purged body still inside its windows: fall back to it.
			return entry, Grace, nil
		}
		return nil, Expired, err
	}
	return fetched, Fresh, nil
}

// fetchAndInstall runs the coalesced origin fetch and installs the
// result via compare-and-set against the version observed at fetch
// start, implementing spec.md §4.10's "Lazy lock release for fetch":
// the network round-trip happens without holding any lock, and a
// racing fetch that finishes first simply wins.
func (e *Engine) fetchAndInstall(key string, policy Policy, requestHeaders map[string][]string, fetcher Fetcher, prior *Entry) (*Entry, error) {
	hash := VariantHash(policy.VaryOn, requestHeaders)
	startVersion := atomic.LoadUint64(&e.versionSeq)

	return e.coalescer.Do(key, hash, func() (*Entry, error) {
		ctx := FetchContext{Key: key, Revalidate: prior != nil}
		if prior != nil {
			ctx.PriorETag = prior.ETag
			ctx.PriorLastModified = prior.LastModified
		}

		status, headers, body, notModified, err := fetcher.Fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("cache: fetching %q: %w", key, err)
		}

		if notModified && prior != nil {
			e.stats.recordRevalidation()
			refreshed := *prior
			refreshed.StoredAt = time.Now()
			refreshed.ForcedStale = false
			refreshed.Tags = e.tags.Snapshot(policy.Tags)
			refreshed.Version = atomic.AddUint64(&e.versionSeq, 1)
			return e.install(key, hash, policy, &refreshed, startVersion)
		}

		entry, err := e.buildEntry(status, headers, body, policy)
		if err != nil {
			return nil, err
		}
		return e.install(key, hash, policy, entry, startVersion)
	})
}

func (e *Engine) buildEntry(status int, headers map[string][]string, body io.Reader, policy Policy) (*Entry, error) {
	entry := &Entry{
		StatusCode:   status,
		Headers:      headers,
		ETag:         firstHeader(headers, "ETag"),
		LastModified: firstHeader(headers, "Last-Modified"),
		StoredAt:     time.Now(),
		Policy:       policy,
		Tags:         e.tags.Snapshot(policy.Tags),
		LastAccess:   time.Now(),
	}

	if !isSuccessStatus(status) {
		// spec.md §4.10: non-success responses are cached under
		// negative_ttl instead of the policy's normal TTL.
		entry.Policy.TTL = policy.NegativeTTL
		entry.Policy.SWR = 0
		entry.Policy.Grace = 0
	}

	if policy.ForceDisk {
		rec, err := e.manifest.StreamBody(body)
		if err != nil {
			return nil, err
		}
		entry.Location = BodyOnDisk
		entry.DiskPath = rec.Path
		entry.Size = rec.Size
		entry.SHA = rec.SHA
		return entry, nil
	}

	buf := &bytes.Buffer{}
	n, err := io.CopyN(buf, body, e.streamingThreshold+1)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("cache: reading body: %w", err)
	}
	if n <= e.streamingThreshold {
		entry.Location = BodyInline
		entry.Body = buf.Bytes()
		entry.Size = int64(buf.Len())
		return entry, nil
	}

	rec, err := e.manifest.StreamBody(io.MultiReader(buf, body))
	if err != nil {
		return nil, err
	}
	entry.Location = BodyOnDisk
	entry.DiskPath = rec.Path
	entry.Size = rec.Size
	entry.SHA = rec.SHA
	return entry, nil
}

// install performs the compare-and-set: if another fetch already
// advanced versionSeq past startVersion and installed a newer entry
// for this variant, the loser's disk body (if any) is marked for
// deletion instead of being committed.
func (e *Engine) install(key, hash string, policy Policy, entry *Entry, startVersion uint64) (*Entry, error) {
	entry.Version = atomic.AddUint64(&e.versionSeq, 1)
	vm := e.keys.VariantsFor(key)

	if existing, ok := vm.Get(hash); ok && existing.Version > startVersion {
		if entry.Location == BodyOnDisk {
			e.manifest.MarkForDeletion(entry.DiskPath)
		}
		return existing, nil
	}

	vm.Put(hash, entry)
	if entry.Location == BodyOnDisk {
		e.manifest.Commit(entry.DiskPath, func(path string) bool {
			cur, ok := vm.Get(hash)
			return !ok || cur.DiskPath != path
		})
	}
	return entry, nil
}

// Store installs body directly under key (CACHE.SET), bypassing the
// origin fetch path since the caller already holds the content.
func (e *Engine) Store(key string, policy Policy, statusCode int, headers map[string][]string, body []byte) (*Entry, error) {
	hash := VariantHash(policy.VaryOn, headers)
	startVersion := atomic.LoadUint64(&e.versionSeq)
	entry := &Entry{
		StatusCode: statusCode,
		Headers:    headers,
		Body:       body,
		Size:       int64(len(body)),
		Location:   BodyInline,
		StoredAt:   time.Now(),
		Policy:     policy,
		Tags:       e.tags.Snapshot(policy.Tags),
		LastAccess: time.Now(),
	}
	return e.install(key, hash, policy, entry, startVersion)
}

// Purge removes every variant of key immediately (CACHE.PURGE).
func (e *Engine) Purge(key string) {
	e.keys.DeleteKey(key)
	e.stats.recordEviction()
}

// PurgeTag bumps a tag's epoch so every entry carrying it is treated
// as Expired on next lookup (CACHE.PURGETAG).
func (e *Engine) PurgeTag(tag string) uint64 {
	return e.tags.Bump(tag)
}

// SoftPurge marks every variant of key as ForcedStale in place instead
// of deleting it (CACHE.SOFTPURGE), so a concurrent GetOrFetch can
// still fall back to the body during Grace if the refetch fails. It
// reports how many variants it touched.
func (e *Engine) SoftPurge(key string) int {
	vm, ok := e.keys.Peek(key)
	if !ok {
		return 0
	}
	return vm.MarkAllStale(func() uint64 { return atomic.AddUint64(&e.versionSeq, 1) })
}

// SoftPurgeTag marks every stored variant carrying tag as ForcedStale
// (CACHE.SOFTPURGETAG). This engine has no tag index, so it scans
// every key's variants; that mirrors the reference implementation's
// own two-phase purge, which likewise walks the full keyspace to
// resolve tag membership before locking the affected keys.
func (e *Engine) SoftPurgeTag(tag string) int {
	n := 0
	for _, key := range e.keys.Keys() {
		vm, ok := e.keys.Peek(key)
		if !ok {
			continue
		}
		n += vm.MarkTagStale(tag, func() uint64 { return atomic.AddUint64(&e.versionSeq, 1) })
	}
	return n
}

// RunGC runs the on-disk manifest's garbage collection pass.
func (e *Engine) RunGC(safetyWindow time.Duration, now time.Time) {
	e.manifest.GC(safetyWindow, now)
}

func isSuccessStatus(status int) bool { return status >= 200 && status < 300 }

func firstHeader(headers map[string][]string, name string) string {
	for k, vs := range headers {
		if foldCaser.String(k) == foldCaser.String(name) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}
