package build

import (
	"bytes"
	"encoding/binary"

	"idxengine/pkg/codec"
	"idxengine/pkg/pager"
	"idxengine/pkg/tree"
)

// runEntry is one decoded run/merge-file entry: a key and every Value
// (record pointer + metadata) collected for it so far (spec §4.5's
// "key → values[]" batch). The wire format is shared verbatim by Stage B's
// run files and Stage C's merge file (spec: "keeping the intermediate
// format identical to the sorted-run format lets one merge produce the
// final input with no schema translation").
type runEntry struct {
	Key    codec.Key
	Values []tree.Value
}

func encodeValue(v tree.Value) ([]byte, error) {
	var buf bytes.Buffer
	rpBytes, err := codec.EncodePointer(v.Pointer)
	if err != nil {
		return nil, err
	}
	if len(rpBytes) > 255 {
		return nil, codec.ErrValueTooLarge
	}
	buf.WriteByte(byte(len(rpBytes)))
	buf.Write(rpBytes)
	for _, m := range v.Metadata {
		if err := codec.EncodeTo(&buf, m); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeValue(b []byte) (tree.Value, error) {
	rpLen := int(b[0])
	rp, _, err := codec.DecodePointer(b[1 : 1+rpLen])
	if err != nil {
		return tree.Value{}, err
	}

	off := 1 + rpLen
	var metadata []codec.Key
	for off < len(b) {
		m, n, err := codec.Decode(b[off:])
		if err != nil {
			return tree.Value{}, err
		}
		metadata = append(metadata, m)
		off += n
	}
	return tree.Value{Pointer: rp, Metadata: metadata}, nil
}

// appendRunEntry writes one run/merge-file entry (spec §4.5): entry_length
// u32, key, values_count u32, value[×count] { value_length u32, bytes }.
func appendRunEntry(w pager.Writer, key codec.Key, values []tree.Value) error {
	var body bytes.Buffer
	if err := codec.EncodeTo(&body, key); err != nil {
		return err
	}

	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], uint32(len(values)))
	body.Write(u32[:])

	for _, v := range values {
		vb, err := encodeValue(v)
		if err != nil {
			return err
		}
		binary.BigEndian.PutUint32(u32[:], uint32(len(vb)))
		body.Write(u32[:])
		body.Write(vb)
	}

	binary.BigEndian.PutUint32(u32[:], uint32(body.Len()))
	if _, err := w.Append(u32[:]); err != nil {
		return err
	}
	_, err := w.Append(body.Bytes())
	return err
}

// decodeRunEntry reads one run/merge-file entry starting at r's cursor.
func decodeRunEntry(r *pager.Reader) (runEntry, error) {
	entryLength, err := r.GetUint32()
	if err != nil {
		return runEntry{}, err
	}
	body, err := r.Get(int(entryLength))
	if err != nil {
		return runEntry{}, err
	}

	key, n, err := codec.Decode(body)
	if err != nil {
		return runEntry{}, err
	}
	off := n

	count := binary.BigEndian.Uint32(body[off : off+4])
	off += 4

	values := make([]tree.Value, 0, count)
	for i := uint32(0); i < count; i++ {
		vlen := int(binary.BigEndian.Uint32(body[off : off+4]))
		off += 4
		v, err := decodeValue(body[off : off+vlen])
		if err != nil {
			return runEntry{}, err
		}
		values = append(values, v)
		off += vlen
	}

	return runEntry{Key: key, Values: values}, nil
}
