// Package spldb implements the binary snapshot format of spec.md §4.8:
// magic + version, per-database sections of typed key/value records,
// and a checksum suffix, saved via tmp-write + fsync + rename.
//
// The save-path shape (write to a sibling tmp file, then os.Rename
// into place) is grounded on the teacher's UpdateSnapshot
// (internal/redigo/snapshot.go); the record format itself is new,
// since the teacher persists a JSON map of three scalar types where
// spec.md §4.8 requires a typed binary format covering all nine
// storage container kinds.
package spldb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
)

// magic identifies a SpinelDB SPLDB file; version lets a future format
// change be detected on load rather than silently misread.
var magic = [8]byte{'S', 'P', 'L', 'D', 'B', '0', '0', '1'}

const formatVersion = uint32(1)

const (
	opSelectDB byte = 0xFE
	opEOF      byte = 0xFF
)

// Type tags for the typed key/value records, one per store.Kind.
const (
	tagString byte = 1
	tagList   byte = 2
	tagHash   byte = 3
	tagSet    byte = 4
	tagZSet   byte = 5
	tagStream byte = 6
	tagJSON   byte = 7
	tagHll    byte = 8
	tagBloom  byte = 9
)

// checksumWriter wraps a writer with a running CRC32 (IEEE), the
// standard-library checksum used since no third-party checksum
// package appears anywhere in the retrieved pack (see DESIGN.md).
type checksumWriter struct {
	w   io.Writer
	sum uint32
}

func newChecksumWriter(w io.Writer) *checksumWriter {
	return &checksumWriter{w: w}
}

func (c *checksumWriter) Write(p []byte) (int, error) {
	c.sum = crc32.Update(c.sum, crc32.IEEETable, p)
	return c.w.Write(p)
}

type checksumReader struct {
	r   *bufio.Reader
	sum uint32
}

func newChecksumReader(r *bufio.Reader) *checksumReader {
	return &checksumReader{r: r}
}

func (c *checksumReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.sum = crc32.Update(c.sum, crc32.IEEETable, p[:n])
	}
	return n, err
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func writeInt64(w io.Writer, v int64) error {
	return writeUint64(w, uint64(v))
}

func readInt64(r io.Reader) (int64, error) {
	v, err := readUint64(r)
	return int64(v), err
}

func writeFloat64(w io.Writer, v float64) error {
	return writeUint64(w, math.Float64bits(v))
}

func readFloat64(r io.Reader) (float64, error) {
	v, err := readUint64(r)
	return math.Float64frombits(v), err
}

func writeBytes(w io.Writer, b []byte) error {
	if err := writeUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeString(w io.Writer, s string) error { return writeBytes(w, []byte(s)) }

func readString(r io.Reader) (string, error) {
	b, err := readBytes(r)
	return string(b), err
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// verifyMagic reads and checks the file header, returning an error
// naming any format mismatch so a caller can refuse to load a
// foreign or newer-format file.
func verifyMagic(r io.Reader) error {
	var got [8]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		return fmt.Errorf("spldb: reading magic: %w", err)
	}
	if got != magic {
		return fmt.Errorf("spldb: not a SPLDB file (bad magic)")
	}
	v, err := readUint32(r)
	if err != nil {
		return fmt.Errorf("spldb: reading version: %w", err)
	}
	if v != formatVersion {
		return fmt.Errorf("spldb: unsupported format version %d", v)
	}
	return nil
}
