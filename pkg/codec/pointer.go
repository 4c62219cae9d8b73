package codec

import (
	"bytes"
	"strings"
)

// RecordPointer locates a record in the primary store: the ordered list of
// wildcard bindings substituted into the index path's `*` segments, plus
// the indexed child's own key name (spec.md §3, §4.2).
//
// Wire format: wildcards_len u8, [wildcard_len u8 + wildcard_bytes]×n,
// key_len u8 + key_bytes. Wildcard and key bytes are ASCII path segments.
type RecordPointer struct {
	Wildcards []string
	Key       string
}

// EncodePointer writes rp's wire form to a new buffer.
func EncodePointer(rp RecordPointer) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodePointerTo(&buf, rp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodePointerTo streams rp into w.
func EncodePointerTo(w *bytes.Buffer, rp RecordPointer) error {
	if len(rp.Wildcards) > 255 {
		return ErrValueTooLarge
	}
	w.WriteByte(byte(len(rp.Wildcards)))
	for _, wc := range rp.Wildcards {
		if len(wc) > 255 {
			return ErrValueTooLarge
		}
		w.WriteByte(byte(len(wc)))
		w.WriteString(wc)
	}
	if len(rp.Key) > 255 {
		return ErrValueTooLarge
	}
	w.WriteByte(byte(len(rp.Key)))
	w.WriteString(rp.Key)
	return nil
}

// DecodePointer reads one RecordPointer starting at buf[0] and returns it
// along with the number of bytes consumed.
func DecodePointer(buf []byte) (RecordPointer, int, error) {
	if len(buf) < 1 {
		return RecordPointer{}, 0, ErrTruncated
	}
	n := int(buf[0])
	off := 1

	wildcards := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if off >= len(buf) {
			return RecordPointer{}, 0, ErrTruncated
		}
		wl := int(buf[off])
		off++
		if off+wl > len(buf) {
			return RecordPointer{}, 0, ErrTruncated
		}
		wildcards = append(wildcards, string(buf[off:off+wl]))
		off += wl
	}

	if off >= len(buf) {
		return RecordPointer{}, 0, ErrTruncated
	}
	kl := int(buf[off])
	off++
	if off+kl > len(buf) {
		return RecordPointer{}, 0, ErrTruncated
	}
	key := string(buf[off : off+kl])
	off += kl

	return RecordPointer{Wildcards: wildcards, Key: key}, off, nil
}

// ResolvePath substitutes rp's wildcard bindings, in order, into path's `*`
// segments and appends the final Key, yielding the record's absolute path.
// path uses `/`-separated segments, matching the indexed path syntax
// (e.g. "users/*/posts").
func (rp RecordPointer) ResolvePath(path string) string {
	segs := strings.Split(path, "/")
	wi := 0
	out := make([]string, 0, len(segs)+1)
	for _, s := range segs {
		if s == "*" && wi < len(rp.Wildcards) {
			out = append(out, rp.Wildcards[wi])
			wi++
			continue
		}
		out = append(out, s)
	}
	out = append(out, rp.Key)
	return strings.Join(out, "/")
}
