package codec

import (
	"bytes"
	"encoding/binary"
)

// TypedMap is the small ordered string→Key map format used by the envelope
// header for index_info and tree_info (spec.md §4.7): "typed-map values
// reuse the key codec from §4.2". Key order is encoding order, not sorted,
// so the envelope's field layout round-trips exactly.
type TypedMap []TypedMapEntry

type TypedMapEntry struct {
	Name  string
	Value Key
}

func (m TypedMap) Get(name string) (Key, bool) {
	for _, e := range m {
		if e.Name == name {
			return e.Value, true
		}
	}
	return Key{}, false
}

func (m TypedMap) Set(name string, v Key) TypedMap {
	for i, e := range m {
		if e.Name == name {
			m[i].Value = v
			return m
		}
	}
	return append(m, TypedMapEntry{Name: name, Value: v})
}

// EncodeTypedMap writes entries_count u16 followed by, for each entry,
// name_len u8 + name_bytes + encoded Key.
func EncodeTypedMap(m TypedMap) ([]byte, error) {
	var buf bytes.Buffer
	var cnt [2]byte
	binary.BigEndian.PutUint16(cnt[:], uint16(len(m)))
	buf.Write(cnt[:])

	for _, e := range m {
		if len(e.Name) > 255 {
			return nil, ErrValueTooLarge
		}
		buf.WriteByte(byte(len(e.Name)))
		buf.WriteString(e.Name)
		if err := EncodeTo(&buf, e.Value); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeTypedMap reads a TypedMap starting at buf[0] and returns it along
// with the number of bytes consumed.
func DecodeTypedMap(buf []byte) (TypedMap, int, error) {
	if len(buf) < 2 {
		return nil, 0, ErrTruncated
	}
	n := int(binary.BigEndian.Uint16(buf[:2]))
	off := 2

	m := make(TypedMap, 0, n)
	for i := 0; i < n; i++ {
		if off >= len(buf) {
			return nil, 0, ErrTruncated
		}
		nl := int(buf[off])
		off++
		if off+nl > len(buf) {
			return nil, 0, ErrTruncated
		}
		name := string(buf[off : off+nl])
		off += nl

		v, consumed, err := Decode(buf[off:])
		if err != nil {
			return nil, 0, err
		}
		off += consumed

		m = append(m, TypedMapEntry{Name: name, Value: v})
	}
	return m, off, nil
}
