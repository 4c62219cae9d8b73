package tree

import (
	"bytes"
	"encoding/binary"

	"idxengine/pkg/codec"

	"github.com/pkg/errors"
)

const (
	flagLeaf     = uint8(0b0000_0001)
	flagHasExt   = uint8(0b0000_0010)
	ptrSize      = 6 // 48-bit offsets (spec §4.3)
	nilPtr       = uint64(0)
)

// node is the in-memory decoding of one leaf or internal block. byte_length
// and free_space are tracked separately (by the Tree, via pkg/fst) rather
// than carried on the struct, since they describe the node's on-disk
// reservation rather than its logical content.
type node struct {
	addr  uint64
	dirty bool

	isLeaf bool

	// internal-only
	children []uint64 // len(entries)+1; children[i] is less-than child for
	// entries[i], children[len(entries)] is the greater-than-or-equal child

	// leaf-only
	prev, next uint64
	extAddr    uint64 // 0 if no ext-data block
	extFree    uint32

	entries []Entry
}

func (n *node) IsDirty() bool    { return n.dirty }
func (n *node) SetDirty(d bool)  { n.dirty = d }

// marshalInternal encodes the node as the `internal` layout of spec §4.3.
func marshalInternal(n *node) ([]byte, error) {
	var buf bytes.Buffer
	if len(n.entries) > 255 {
		return nil, errors.New("tree: internal node entry count exceeds 255")
	}
	buf.WriteByte(uint8(len(n.entries)))

	for i, e := range n.entries {
		if err := codec.EncodeTo(&buf, e.Key); err != nil {
			return nil, err
		}
		putU48(&buf, n.children[i])
	}
	putU48(&buf, n.children[len(n.entries)])

	return buf.Bytes(), nil
}

func unmarshalInternal(b []byte) (*node, error) {
	r := bytes.NewReader(b)
	cnt, err := r.ReadByte()
	if err != nil {
		return nil, errors.Wrap(err, "tree: truncated internal node")
	}

	n := &node{isLeaf: false}
	n.entries = make([]Entry, cnt)
	n.children = make([]uint64, 0, int(cnt)+1)

	rest := b[1:]
	off := 0
	for i := 0; i < int(cnt); i++ {
		k, consumed, err := codec.Decode(rest[off:])
		if err != nil {
			return nil, errors.Wrap(err, "tree: decode internal key")
		}
		off += consumed
		n.entries[i] = Entry{Key: k}

		if off+ptrSize > len(rest) {
			return nil, errors.New("tree: truncated internal child pointer")
		}
		n.children = append(n.children, getU48(rest[off:off+ptrSize]))
		off += ptrSize
	}

	if off+ptrSize > len(rest) {
		return nil, errors.New("tree: truncated internal gt pointer")
	}
	n.children = append(n.children, getU48(rest[off:off+ptrSize]))

	return n, nil
}

// marshalLeaf encodes the node as the `leaf` layout of spec §4.3.
// metadataKeys fixes the per-Value metadata schema so every value encodes
// the same number of trailing typed fields.
func marshalLeaf(n *node, metadataKeys []string) ([]byte, error) {
	var buf bytes.Buffer

	flags := flagLeaf
	if n.extAddr != 0 {
		flags |= flagHasExt
	}
	buf.WriteByte(flags)

	// free_byte_length is patched in by the caller (Tree) after it knows
	// the reserved extent size; write a placeholder here.
	var free4 [4]byte
	buf.Write(free4[:])

	putU48(&buf, n.prev)
	putU48(&buf, n.next)

	if flags&flagHasExt != 0 {
		var extLen4, extFree4 [4]byte
		buf.Write(extLen4[:])
		binary.BigEndian.PutUint32(extFree4[:], n.extFree)
		buf.Write(extFree4[:])
	}

	if len(n.entries) > 255 {
		return nil, errors.New("tree: leaf entry count exceeds 255")
	}
	buf.WriteByte(uint8(len(n.entries)))

	for _, e := range n.entries {
		if err := codec.EncodeTo(&buf, e.Key); err != nil {
			return nil, err
		}

		var valsBuf bytes.Buffer
		var cnt4 [4]byte
		binary.BigEndian.PutUint32(cnt4[:], uint32(len(e.Values)))
		valsBuf.Write(cnt4[:])

		for _, v := range e.Values {
			vb, err := encodeValue(v, metadataKeys)
			if err != nil {
				return nil, err
			}
			if len(vb) > 255 {
				return nil, errors.New("tree: value exceeds inline 255-byte budget, needs ext-data")
			}
			valsBuf.WriteByte(uint8(len(vb)))
			valsBuf.Write(vb)
		}

		var vlen4 [4]byte
		binary.BigEndian.PutUint32(vlen4[:], uint32(valsBuf.Len()))
		buf.Write(vlen4[:])
		buf.Write(valsBuf.Bytes())
	}

	return buf.Bytes(), nil
}

func unmarshalLeaf(b []byte, metadataKeys []string) (*node, error) {
	if len(b) < 1+4+2*ptrSize+1 {
		return nil, errors.New("tree: truncated leaf header")
	}

	n := &node{isLeaf: true}
	flags := b[0]
	off := 1

	off += 4 // free_byte_length, owned by the Tree's FST bookkeeping

	n.prev = getU48(b[off : off+ptrSize])
	off += ptrSize
	n.next = getU48(b[off : off+ptrSize])
	off += ptrSize

	if flags&flagHasExt != 0 {
		if off+8 > len(b) {
			return nil, errors.New("tree: truncated leaf ext header")
		}
		off += 4 // ext_byte_length, tracked by Tree
		n.extFree = binary.BigEndian.Uint32(b[off : off+4])
		off += 4
	}

	if off >= len(b) {
		return nil, errors.New("tree: truncated leaf entry count")
	}
	cnt := int(b[off])
	off++

	n.entries = make([]Entry, 0, cnt)
	for i := 0; i < cnt; i++ {
		k, consumed, err := codec.Decode(b[off:])
		if err != nil {
			return nil, errors.Wrap(err, "tree: decode leaf key")
		}
		off += consumed

		if off+4 > len(b) {
			return nil, errors.New("tree: truncated leaf value block length")
		}
		vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4

		if off+vlen > len(b) {
			return nil, errors.New("tree: truncated leaf value block")
		}
		block := b[off : off+vlen]
		off += vlen

		if len(block) < 4 {
			return nil, errors.New("tree: truncated values_count")
		}
		vcnt := int(binary.BigEndian.Uint32(block[:4]))
		voff := 4

		values := make([]Value, 0, vcnt)
		for j := 0; j < vcnt; j++ {
			if voff >= len(block) {
				return nil, errors.New("tree: truncated value entry")
			}
			vl := int(block[voff])
			voff++
			if voff+vl > len(block) {
				return nil, errors.New("tree: truncated value bytes")
			}
			v, err := decodeValue(block[voff:voff+vl], metadataKeys)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
			voff += vl
		}

		n.entries = append(n.entries, Entry{Key: k, Values: values})
	}

	return n, nil
}

func encodeValue(v Value, metadataKeys []string) ([]byte, error) {
	var buf bytes.Buffer
	if err := codec.EncodePointerTo(&buf, v.Pointer); err != nil {
		return nil, err
	}
	for i := range metadataKeys {
		var mv codec.Key
		if i < len(v.Metadata) {
			mv = v.Metadata[i]
		} else {
			mv = codec.Undefined()
		}
		if err := codec.EncodeTo(&buf, mv); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeValue(b []byte, metadataKeys []string) (Value, error) {
	rp, consumed, err := codec.DecodePointer(b)
	if err != nil {
		return Value{}, err
	}
	off := consumed

	meta := make([]codec.Key, 0, len(metadataKeys))
	for range metadataKeys {
		if off >= len(b) {
			return Value{}, errors.New("tree: truncated metadata value")
		}
		mv, c, err := codec.Decode(b[off:])
		if err != nil {
			return Value{}, err
		}
		meta = append(meta, mv)
		off += c
	}

	return Value{Pointer: rp, Metadata: meta}, nil
}

func putU48(buf *bytes.Buffer, v uint64) {
	var b8 [8]byte
	binary.BigEndian.PutUint64(b8[:], v)
	buf.Write(b8[2:])
}

func getU48(b []byte) uint64 {
	var b8 [8]byte
	copy(b8[2:], b[:ptrSize])
	return binary.BigEndian.Uint64(b8[:])
}
