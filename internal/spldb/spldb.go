package spldb

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spineldb/spineldb/internal/shard"
	"github.com/spineldb/spineldb/internal/store"
)

// Save writes every database in dbs to path via a tmp file, fsync,
// and atomic rename (spec.md §4.8: "write to tmp, fsync, rename").
// Each shard is read-locked only for the duration of its own key
// enumeration, the same "lock, copy, unlock" discipline the eviction
// sampler and rewrite snapshotter use elsewhere in this codebase —
// an approximation of the copy-on-write consistency spec.md §4.8
// asks BGSAVE to achieve, acceptable here because SAVE runs inline on
// the same goroutine that would otherwise be serving writes anyway.
func Save(path string, dbs *shard.Databases) error {
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("spldb: creating tmp file: %w", err)
	}

	cw := newChecksumWriter(f)
	bw := bufio.NewWriter(cw)

	if _, err := bw.Write(magic[:]); err != nil {
		return abortSave(f, tmpPath, err)
	}
	if err := writeUint32(bw, formatVersion); err != nil {
		return abortSave(f, tmpPath, err)
	}

	for i, db := range dbs.DBs {
		if err := saveDatabase(bw, i, db); err != nil {
			return abortSave(f, tmpPath, err)
		}
	}

	if err := writeByte(bw, opEOF); err != nil {
		return abortSave(f, tmpPath, err)
	}
	if err := bw.Flush(); err != nil {
		return abortSave(f, tmpPath, err)
	}
	if err := writeUint32(f, cw.sum); err != nil {
		return abortSave(f, tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		return abortSave(f, tmpPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("spldb: closing tmp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("spldb: renaming into place: %w", err)
	}
	return nil
}

func abortSave(f *os.File, tmpPath string, cause error) error {
	f.Close()
	os.Remove(tmpPath)
	return fmt.Errorf("spldb: save failed, old file left intact: %w", cause)
}

func saveDatabase(w *bufio.Writer, index int, db *shard.Database) error {
	type record struct {
		key   string
		entry *shard.Entry
	}
	var records []record
	for _, sh := range db.Shards {
		sh.Mu.RLock()
		for _, k := range sh.Keys() {
			e, ok := sh.Get(k)
			if ok {
				records = append(records, record{key: k, entry: e})
			}
		}
		sh.Mu.RUnlock()
	}
	if len(records) == 0 {
		return nil
	}

	if err := writeByte(w, opSelectDB); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(index)); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(records))); err != nil {
		return err
	}
	for _, rec := range records {
		if err := saveEntry(w, rec.key, rec.entry); err != nil {
			return err
		}
	}
	return nil
}

func saveEntry(w *bufio.Writer, key string, e *shard.Entry) error {
	if err := writeString(w, key); err != nil {
		return err
	}
	if e.HasExpiration() {
		if err := writeByte(w, 1); err != nil {
			return err
		}
		if err := writeInt64(w, e.ExpireAtMs); err != nil {
			return err
		}
	} else if err := writeByte(w, 0); err != nil {
		return err
	}
	return EncodeValue(w, e.Value)
}

// Load reads path into dbs: each record is Put over any entry with the
// same key; keys not in the file are left untouched.
// Missing files are not an error (spec.md §4.8: "else SPLDB; else
// empty" implies an absent file is a valid empty-database state).
func Load(path string, dbs *shard.Databases) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("spldb: opening %s: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	cr := newChecksumReader(br)

	if err := verifyMagic(cr); err != nil {
		return err
	}

	currentDB := -1
	remaining := 0
	for {
		if remaining == 0 {
			op, err := readByte(cr)
			if err != nil {
				return fmt.Errorf("spldb: reading opcode: %w", err)
			}
			if op == opEOF {
				break
			}
			if op != opSelectDB {
				return fmt.Errorf("spldb: unexpected opcode 0x%x", op)
			}
			idx, err := readUint32(cr)
			if err != nil {
				return err
			}
			count, err := readUint32(cr)
			if err != nil {
				return err
			}
			currentDB = int(idx)
			remaining = int(count)
			if currentDB < 0 || currentDB >= len(dbs.DBs) {
				return fmt.Errorf("spldb: database index %d out of range", currentDB)
			}
			continue
		}

		key, expireAtMs, value, err := loadEntry(cr)
		if err != nil {
			return err
		}
		sh := dbs.DBs[currentDB].ShardFor(key)
		sh.Mu.Lock()
		sh.Put(&shard.Entry{Key: key, Value: value, ExpireAtMs: expireAtMs})
		sh.Mu.Unlock()
		remaining--
	}

	wantSum := cr.sum
	gotSum, err := readUint32(br)
	if err != nil {
		return fmt.Errorf("spldb: reading checksum: %w", err)
	}
	if gotSum != wantSum {
		return fmt.Errorf("spldb: checksum mismatch, file is corrupt")
	}
	return nil
}

func loadEntry(r *checksumReader) (key string, expireAtMs int64, value store.Value, err error) {
	key, err = readString(r)
	if err != nil {
		return "", 0, nil, err
	}
	hasExpire, err := readByte(r)
	if err != nil {
		return "", 0, nil, err
	}
	if hasExpire == 1 {
		expireAtMs, err = readInt64(r)
		if err != nil {
			return "", 0, nil, err
		}
	}
	value, err = DecodeValue(r)
	return key, expireAtMs, value, err
}
