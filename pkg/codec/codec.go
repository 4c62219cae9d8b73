// Package codec implements the key/value encoding described in spec.md
// §4.2: a typed scalar key format with a fixed total order, shared by tree
// leaf keys, metadata values, and the envelope's typed-map header fields.
package codec

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TypeTag identifies the encoded shape of a Key's payload. NUMBER(integer)
// and NUMBER(float) get distinct tags rather than sharing one byte: the two
// payloads are both 8 raw bytes with no self-describing marker, so a single
// shared tag would make decode ambiguous.
type TypeTag uint8

const (
	TagUndefined TypeTag = iota
	TagBoolean
	TagNumberInt
	TagNumberFloat
	TagDateTime
	TagString
	TagBinary
	TagArray
)

// MaxStringLen is the truncation limit for STRING payloads (spec §4.2).
const MaxStringLen = 255

var (
	ErrValueTooLarge  = errors.New("codec: value exceeds maximum encoded size")
	ErrTruncated      = errors.New("codec: buffer truncated mid-value")
	ErrUnknownTypeTag = errors.New("codec: unknown type tag")
)

// Key is a decoded scalar or array-of-scalars value in the total order of
// spec.md §4.2: undefined < boolean < number/datetime (numeric) < string
// (byte-wise on case-folded form) < binary (lexicographic).
type Key struct {
	Tag TypeTag

	Bool   bool
	Int    int64
	Float  float64
	Time   time.Time
	Str    string
	Bin    []byte
	Values []Key // TagArray only
}

func Undefined() Key { return Key{Tag: TagUndefined} }

func FromBool(b bool) Key { return Key{Tag: TagBoolean, Bool: b} }

func FromInt(i int64) Key { return Key{Tag: TagNumberInt, Int: i} }

func FromFloat(f float64) Key { return Key{Tag: TagNumberFloat, Float: f} }

func FromTime(t time.Time) Key { return Key{Tag: TagDateTime, Time: t.UTC()} }

// FromString truncates s to MaxStringLen bytes, matching spec §4.2.
func FromString(s string) Key {
	if len(s) > MaxStringLen {
		s = s[:MaxStringLen]
	}
	return Key{Tag: TagString, Str: s}
}

func FromBinary(b []byte) Key { return Key{Tag: TagBinary, Bin: append([]byte(nil), b...)} }

func FromArray(vals []Key) Key { return Key{Tag: TagArray, Values: vals} }

// orderClass groups tags into the comparison bands of the total order.
// Lower class always sorts first; within the same class, type-specific
// comparison applies.
func (k Key) orderClass() int {
	switch k.Tag {
	case TagUndefined:
		return 0
	case TagBoolean:
		return 1
	case TagNumberInt, TagNumberFloat, TagDateTime:
		return 2
	case TagString:
		return 3
	case TagBinary, TagArray:
		return 4
	default:
		return 5
	}
}

func (k Key) numericValue() float64 {
	switch k.Tag {
	case TagDateTime:
		return float64(k.Time.UnixMilli())
	case TagNumberFloat:
		return k.Float
	case TagNumberInt:
		return float64(k.Int)
	}
	return 0
}

// Compare returns -1, 0, or 1 following spec.md §4.2's total order.
// caseSensitive controls whether STRING comparison folds case first
// (index's case_sensitive=false locale behavior).
func Compare(a, b Key, caseSensitive bool) int {
	ca, cb := a.orderClass(), b.orderClass()
	if ca != cb {
		if ca < cb {
			return -1
		}
		return 1
	}

	switch a.Tag {
	case TagUndefined:
		return 0
	case TagBoolean:
		if a.Bool == b.Bool {
			return 0
		}
		if !a.Bool {
			return -1
		}
		return 1
	case TagNumberInt, TagNumberFloat, TagDateTime:
		av, bv := a.numericValue(), b.numericValue()
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case TagString:
		as, bs := a.Str, b.Str
		if !caseSensitive {
			as, bs = strings.ToLower(as), strings.ToLower(bs)
		}
		return strings.Compare(as, bs)
	case TagBinary:
		return bytes.Compare(a.Bin, b.Bin)
	case TagArray:
		n := len(a.Values)
		if len(b.Values) < n {
			n = len(b.Values)
		}
		for i := 0; i < n; i++ {
			if c := Compare(a.Values[i], b.Values[i], caseSensitive); c != 0 {
				return c
			}
		}
		switch {
		case len(a.Values) < len(b.Values):
			return -1
		case len(a.Values) > len(b.Values):
			return 1
		default:
			return 0
		}
	}
	return 0
}

// Encode writes the type tag + length + payload form of k to a new buffer.
func Encode(k Key) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeTo(&buf, k); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeTo streams k's encoded form into w, matching the "write_to(sink)"
// pattern so callers can target either a growable buffer or a file writer
// without an intermediate allocation.
func EncodeTo(w *bytes.Buffer, k Key) error {
	w.WriteByte(byte(k.Tag))

	switch k.Tag {
	case TagUndefined:
		// empty payload

	case TagBoolean:
		if k.Bool {
			w.WriteByte(1)
		} else {
			w.WriteByte(0)
		}

	case TagNumberInt:
		var buf8 [8]byte
		binary.BigEndian.PutUint64(buf8[:], uint64(k.Int))
		w.Write(buf8[:])

	case TagNumberFloat:
		var buf8 [8]byte
		binary.BigEndian.PutUint64(buf8[:], math.Float64bits(k.Float))
		w.Write(buf8[:])

	case TagDateTime:
		var buf8 [8]byte
		binary.BigEndian.PutUint64(buf8[:], uint64(k.Time.UnixMilli()))
		w.Write(buf8[:])

	case TagString:
		s := k.Str
		if len(s) > MaxStringLen {
			s = s[:MaxStringLen]
		}
		var buf2 [2]byte
		binary.BigEndian.PutUint16(buf2[:], uint16(len(s)))
		w.Write(buf2[:])
		w.WriteString(s)

	case TagBinary:
		if len(k.Bin) > math.MaxUint16 {
			return ErrValueTooLarge
		}
		var buf2 [2]byte
		binary.BigEndian.PutUint16(buf2[:], uint16(len(k.Bin)))
		w.Write(buf2[:])
		w.Write(k.Bin)

	case TagArray:
		if len(k.Values) > math.MaxUint16 {
			return ErrValueTooLarge
		}
		var buf2 [2]byte
		binary.BigEndian.PutUint16(buf2[:], uint16(len(k.Values)))
		w.Write(buf2[:])
		for _, v := range k.Values {
			if err := EncodeTo(w, v); err != nil {
				return err
			}
		}

	default:
		return errors.Wrapf(ErrUnknownTypeTag, "tag=%d", k.Tag)
	}

	return nil
}

// Decode reads one encoded Key starting at buf[0] and returns it along with
// the number of bytes consumed.
func Decode(buf []byte) (Key, int, error) {
	if len(buf) < 1 {
		return Key{}, 0, ErrTruncated
	}
	tag := TypeTag(buf[0])
	rest := buf[1:]

	switch tag {
	case TagUndefined:
		return Key{Tag: TagUndefined}, 1, nil

	case TagBoolean:
		if len(rest) < 1 {
			return Key{}, 0, ErrTruncated
		}
		return Key{Tag: TagBoolean, Bool: rest[0] != 0}, 2, nil

	case TagNumberInt:
		if len(rest) < 8 {
			return Key{}, 0, ErrTruncated
		}
		v := int64(binary.BigEndian.Uint64(rest[:8]))
		return Key{Tag: TagNumberInt, Int: v}, 9, nil

	case TagNumberFloat:
		if len(rest) < 8 {
			return Key{}, 0, ErrTruncated
		}
		bits := binary.BigEndian.Uint64(rest[:8])
		return Key{Tag: TagNumberFloat, Float: math.Float64frombits(bits)}, 9, nil

	case TagDateTime:
		if len(rest) < 8 {
			return Key{}, 0, ErrTruncated
		}
		ms := int64(binary.BigEndian.Uint64(rest[:8]))
		return Key{Tag: TagDateTime, Time: time.UnixMilli(ms).UTC()}, 9, nil

	case TagString:
		if len(rest) < 2 {
			return Key{}, 0, ErrTruncated
		}
		n := int(binary.BigEndian.Uint16(rest[:2]))
		if len(rest) < 2+n {
			return Key{}, 0, ErrTruncated
		}
		return Key{Tag: TagString, Str: string(rest[2 : 2+n])}, 3 + n, nil

	case TagBinary:
		if len(rest) < 2 {
			return Key{}, 0, ErrTruncated
		}
		n := int(binary.BigEndian.Uint16(rest[:2]))
		if len(rest) < 2+n {
			return Key{}, 0, ErrTruncated
		}
		b := append([]byte(nil), rest[2:2+n]...)
		return Key{Tag: TagBinary, Bin: b}, 3 + n, nil

	case TagArray:
		if len(rest) < 2 {
			return Key{}, 0, ErrTruncated
		}
		n := int(binary.BigEndian.Uint16(rest[:2]))
		off := 2
		vals := make([]Key, 0, n)
		for i := 0; i < n; i++ {
			if off >= len(rest) {
				return Key{}, 0, ErrTruncated
			}
			v, consumed, err := Decode(rest[off:])
			if err != nil {
				return Key{}, 0, err
			}
			vals = append(vals, v)
			off += consumed
		}
		return Key{Tag: TagArray, Values: vals}, 1 + off, nil

	default:
		return Key{}, 0, errors.Wrapf(ErrUnknownTypeTag, "tag=%d", tag)
	}
}
