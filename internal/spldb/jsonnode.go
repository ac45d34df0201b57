package spldb

import (
	"fmt"
	"io"

	"github.com/spineldb/spineldb/internal/store"
)

// JSON node kind tags, distinct from the top-level value tags in format.go
// since a JsonDocument's tree recurses through these instead of
// store.Kind.
const (
	jsonNull   byte = 0
	jsonBool   byte = 1
	jsonInt    byte = 2
	jsonFloat  byte = 3
	jsonString byte = 4
	jsonArray  byte = 5
	jsonObject byte = 6
)

func encodeJSONNode(w io.Writer, n *store.JSONNode) error {
	switch {
	case n.Null:
		return writeByte(w, jsonNull)
	case n.IsBool:
		if err := writeByte(w, jsonBool); err != nil {
			return err
		}
		b := byte(0)
		if n.Bool {
			b = 1
		}
		return writeByte(w, b)
	case n.IsInt:
		if err := writeByte(w, jsonInt); err != nil {
			return err
		}
		return writeInt64(w, n.Int)
	case n.IsFlt:
		if err := writeByte(w, jsonFloat); err != nil {
			return err
		}
		return writeFloat64(w, n.Float)
	case n.IsStr:
		if err := writeByte(w, jsonString); err != nil {
			return err
		}
		return writeString(w, n.Str)
	case n.IsArr:
		if err := writeByte(w, jsonArray); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(len(n.Arr))); err != nil {
			return err
		}
		for _, child := range n.Arr {
			if err := encodeJSONNode(w, child); err != nil {
				return err
			}
		}
		return nil
	case n.IsObj:
		if err := writeByte(w, jsonObject); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(len(n.Keys))); err != nil {
			return err
		}
		for _, key := range n.Keys {
			if err := writeString(w, key); err != nil {
				return err
			}
			if err := encodeJSONNode(w, n.Obj[key]); err != nil {
				return err
			}
		}
		return nil
	default:
		return writeByte(w, jsonNull)
	}
}

func decodeJSONNode(r io.Reader) (*store.JSONNode, error) {
	tag, err := readByte(r)
	if err != nil {
		return nil, err
	}
	switch tag {
	case jsonNull:
		return store.JSONNull(), nil
	case jsonBool:
		b, err := readByte(r)
		if err != nil {
			return nil, err
		}
		return store.JSONBool(b == 1), nil
	case jsonInt:
		n, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		return store.JSONInt(n), nil
	case jsonFloat:
		f, err := readFloat64(r)
		if err != nil {
			return nil, err
		}
		return store.JSONFloat(f), nil
	case jsonString:
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		return store.JSONString(s), nil
	case jsonArray:
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		arr := make([]*store.JSONNode, n)
		for i := uint32(0); i < n; i++ {
			child, err := decodeJSONNode(r)
			if err != nil {
				return nil, err
			}
			arr[i] = child
		}
		return store.JSONArray(arr...), nil
	case jsonObject:
		n, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		obj := store.JSONObject()
		for i := uint32(0); i < n; i++ {
			key, err := readString(r)
			if err != nil {
				return nil, err
			}
			child, err := decodeJSONNode(r)
			if err != nil {
				return nil, err
			}
			obj.Set(key, child)
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("spldb: unknown json node tag 0x%x", tag)
	}
}
