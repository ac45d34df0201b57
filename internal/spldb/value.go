package spldb

import (
	"fmt"
	"io"

	"github.com/spineldb/spineldb/internal/store"
)

func EncodeValue(w io.Writer, v store.Value) error {
	switch val := v.(type) {
	case store.Str:
		if err := writeByte(w, tagString); err != nil {
			return err
		}
		return writeBytes(w, val)
	case *store.List:
		if err := writeByte(w, tagList); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(len(val.Items))); err != nil {
			return err
		}
		for _, item := range val.Items {
			if err := writeBytes(w, item); err != nil {
				return err
			}
		}
		return nil
	case *store.Hash:
		if err := writeByte(w, tagHash); err != nil {
			return err
		}
		fields := val.Fields()
		if err := writeUint32(w, uint32(len(fields))); err != nil {
			return err
		}
		for _, field := range fields {
			value, _ := val.Get(field)
			if err := writeString(w, field); err != nil {
				return err
			}
			if err := writeBytes(w, value); err != nil {
				return err
			}
		}
		return nil
	case *store.Set:
		if err := writeByte(w, tagSet); err != nil {
			return err
		}
		members := val.Members()
		if err := writeUint32(w, uint32(len(members))); err != nil {
			return err
		}
		for _, m := range members {
			if err := writeString(w, m); err != nil {
				return err
			}
		}
		return nil
	case *store.SortedSet:
		if err := writeByte(w, tagZSet); err != nil {
			return err
		}
		members := val.Range(0, -1)
		if err := writeUint32(w, uint32(len(members))); err != nil {
			return err
		}
		for _, m := range members {
			if err := writeString(w, m.Member); err != nil {
				return err
			}
			if err := writeFloat64(w, m.Score); err != nil {
				return err
			}
		}
		return nil
	case *store.Stream:
		return encodeStream(w, val)
	case *store.JSONDocument:
		if err := writeByte(w, tagJSON); err != nil {
			return err
		}
		return encodeJSONNode(w, val.Root)
	case *store.Hll:
		if err := writeByte(w, tagHll); err != nil {
			return err
		}
		return writeBytes(w, val.Registers())
	case *store.BloomFilter:
		if err := writeByte(w, tagBloom); err != nil {
			return err
		}
		if err := writeUint64(w, val.Capacity); err != nil {
			return err
		}
		if err := writeFloat64(w, val.ErrorRate); err != nil {
			return err
		}
		if err := writeUint64(w, val.M()); err != nil {
			return err
		}
		if err := writeUint64(w, val.K()); err != nil {
			return err
		}
		if err := writeUint64(w, val.Inserted()); err != nil {
			return err
		}
		bits := val.Bits()
		if err := writeUint32(w, uint32(len(bits))); err != nil {
			return err
		}
		for _, word := range bits {
			if err := writeUint64(w, word); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("spldb: unknown value type %T", v)
	}
}

func DecodeValue(r io.Reader) (store.Value, error) {
	tag, err := readByte(r)
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagString:
		b, err := readBytes(r)
		return store.Str(b), err
	case tagList:
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		l := store.NewList()
		for i := uint32(0); i < n; i++ {
			item, err := readBytes(r)
			if err != nil {
				return nil, err
			}
			l.Items = append(l.Items, item)
		}
		return l, nil
	case tagHash:
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		h := store.NewHash()
		for i := uint32(0); i < n; i++ {
			field, err := readString(r)
			if err != nil {
				return nil, err
			}
			value, err := readBytes(r)
			if err != nil {
				return nil, err
			}
			h.Set(field, value)
		}
		return h, nil
	case tagSet:
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		s := store.NewSet()
		for i := uint32(0); i < n; i++ {
			member, err := readString(r)
			if err != nil {
				return nil, err
			}
			s.Add(member)
		}
		return s, nil
	case tagZSet:
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		z := store.NewSortedSet()
		for i := uint32(0); i < n; i++ {
			member, err := readString(r)
			if err != nil {
				return nil, err
			}
			score, err := readFloat64(r)
			if err != nil {
				return nil, err
			}
			if _, err := z.Add(member, score); err != nil {
				return nil, err
			}
		}
		return z, nil
	case tagStream:
		return decodeStream(r)
	case tagJSON:
		root, err := decodeJSONNode(r)
		if err != nil {
			return nil, err
		}
		return store.NewJSONDocument(root), nil
	case tagHll:
		registers, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		return store.NewHllFromRegisters(registers), nil
	case tagBloom:
		capacity, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		errorRate, err := readFloat64(r)
		if err != nil {
			return nil, err
		}
		m, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		k, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		inserted, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		nWords, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		bits := make([]uint64, nWords)
		for i := range bits {
			bits[i], err = readUint64(r)
			if err != nil {
				return nil, err
			}
		}
		return store.NewBloomFilterFromBits(capacity, errorRate, bits, m, k, inserted), nil
	default:
		return nil, fmt.Errorf("spldb: unknown type tag 0x%x", tag)
	}
}

func encodeStream(w io.Writer, s *store.Stream) error {
	if err := writeByte(w, tagStream); err != nil {
		return err
	}
	entries := s.Range(store.StreamID{}, s.LastID())
	if err := writeUint32(w, uint32(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writeInt64(w, e.ID.Ms); err != nil {
			return err
		}
		if err := writeInt64(w, e.ID.Seq); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(len(e.Fields))); err != nil {
			return err
		}
		for _, fv := range e.Fields {
			if err := writeBytes(w, fv[0]); err != nil {
				return err
			}
			if err := writeBytes(w, fv[1]); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeStream(r io.Reader) (*store.Stream, error) {
	s := store.NewStream()
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < n; i++ {
		ms, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		seq, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		fieldCount, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		fields := make([][2][]byte, fieldCount)
		for j := uint32(0); j < fieldCount; j++ {
			field, err := readBytes(r)
			if err != nil {
				return nil, err
			}
			value, err := readBytes(r)
			if err != nil {
				return nil, err
			}
			fields[j] = [2][]byte{field, value}
		}
		if err := s.Append(store.StreamID{Ms: ms, Seq: seq}, fields); err != nil {
			return nil, err
		}
	}
	return s, nil
}
