// Package build implements spec.md §4.5's external merge-sort build
// pipeline: Stage A enumerates the primary store and spills raw
// projections to a build file, Stage B groups/sorts them into run files,
// Stage C k-way merges the runs, and Stage D feeds the merged stream into
// pkg/tree's bulk constructor through pkg/envelope's header protocol.
// Grounded on util/stream.Stream (Stage A's producer/consumer channel),
// util/helpers.MatrixHeap's container/heap.Interface shape (Stage C's
// merge heap), and pkg/envelope + pkg/tree.BuildBulk (Stage D).
package build

import (
	"bytes"
	"encoding/binary"

	"idxengine/pkg/codec"
	"idxengine/pkg/pager"
)

// buildEntry is one decoded Stage A build-file record.
type buildEntry struct {
	Key      codec.Key
	Pointer  codec.RecordPointer
	Metadata []codec.Key
}

// appendBuildEntry spills one projection to w in Stage A's wire format
// (spec §4.5): entry_length u32, processed_flag u8, key, rp_len u8 +
// rp_bytes, metadata_value[×include_keys.len]. entry_length counts every
// byte after itself, so Stage B can skip an already-processed record
// without fully decoding it.
func appendBuildEntry(w pager.Writer, key codec.Key, rp codec.RecordPointer, metadata []codec.Key) error {
	var body bytes.Buffer
	body.WriteByte(0) // processed_flag
	if err := codec.EncodeTo(&body, key); err != nil {
		return err
	}

	rpBytes, err := codec.EncodePointer(rp)
	if err != nil {
		return err
	}
	if len(rpBytes) > 255 {
		return codec.ErrValueTooLarge
	}
	body.WriteByte(byte(len(rpBytes)))
	body.Write(rpBytes)

	for _, m := range metadata {
		if err := codec.EncodeTo(&body, m); err != nil {
			return err
		}
	}

	var head [4]byte
	binary.BigEndian.PutUint32(head[:], uint32(body.Len()))
	if _, err := w.Append(head[:]); err != nil {
		return err
	}
	_, err = w.Append(body.Bytes())
	return err
}

// decodeBuildEntry reads one entry starting at r's cursor. ok is false
// when the entry's processed_flag was already set by a prior (interrupted)
// Stage B pass, in which case the caller should skip it.
func decodeBuildEntry(r *pager.Reader) (entry buildEntry, ok bool, err error) {
	entryLength, err := r.GetUint32()
	if err != nil {
		return buildEntry{}, false, err
	}
	body, err := r.Get(int(entryLength))
	if err != nil {
		return buildEntry{}, false, err
	}
	if body[0] == 1 {
		return buildEntry{}, false, nil
	}

	off := 1
	key, n, err := codec.Decode(body[off:])
	if err != nil {
		return buildEntry{}, false, err
	}
	off += n

	rpLen := int(body[off])
	off++
	rp, _, err := codec.DecodePointer(body[off : off+rpLen])
	if err != nil {
		return buildEntry{}, false, err
	}
	off += rpLen

	var metadata []codec.Key
	for off < len(body) {
		m, n, err := codec.Decode(body[off:])
		if err != nil {
			return buildEntry{}, false, err
		}
		metadata = append(metadata, m)
		off += n
	}

	return buildEntry{Key: key, Pointer: rp, Metadata: metadata}, true, nil
}
