package cache

import "time"

// BodyLocation is where an entry's body lives: inline in memory, or on
// disk once it crosses streaming_threshold_bytes or FORCE-DISK is set
// (spec.md §4.10 "On-disk bodies").
type BodyLocation int

const (
	BodyInline BodyLocation = iota
	BodyOnDisk
)

// Entry is one stored response variant.
type Entry struct {
	StatusCode int
	Headers    map[string][]string
	Body       []byte // meaningful when Location == BodyInline
	DiskPath   string // meaningful when Location == BodyOnDisk
	Location   BodyLocation
	Size       int64
	SHA        string

	ETag         string
	LastModified string

	StoredAt time.Time
	Policy   Policy

	// Tags captures each tag's epoch at store time (spec.md §4.10:
	// "if any tags[t].epoch < tag_epoch_table[t], treat as absent").
	Tags map[string]uint64

	// Version supports the compare-and-set install spec.md §4.10's
	// "Lazy lock release for fetch" requires: a fetch started against
	// version V only installs if the live entry is still at V.
	Version uint64

	LastAccess time.Time

	// ForcedStale is set by CACHE.SOFTPURGE/SOFTPURGETAG: unlike Purge,
	// which deletes the variant outright, a soft purge marks it as
	// Expired on the next lookup while leaving the body in place so a
	// concurrent GetOrFetch can still fall back to it during Grace if
	// the refetch fails.
	ForcedStale bool
}

// TagsStale reports whether any of e's captured tag epochs are behind
// the live table, per spec.md §4.10 point 2.
func (e *Entry) TagsStale(table *TagEpochTable) bool {
	for tag, capturedEpoch := range e.Tags {
		if table.Epoch(tag) > capturedEpoch {
			return true
		}
	}
	return false
}

// HasTag reports whether e was stored with tag among its policy tags.
func (e *Entry) HasTag(tag string) bool {
	_, ok := e.Tags[tag]
	return ok
}
