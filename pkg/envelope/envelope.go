// Package envelope implements the index file header of spec.md §4.7: the
// fixed `ACEBASEIDX` signature, layout version, index metadata, and the
// per-tree descriptor block that precedes the tree region in every index
// file. Grounded on pkg/codec/typedmap.go for the index_info/tree_info
// typed-map fields and on pkg/pager/writer.go's Reservation for the
// "reserve header, stream tree, patch header" protocol pkg/build's Stage D
// drives (tree bytes are only self-describing once `byte_length` is
// patched back in).
package envelope

import (
	"bytes"
	"encoding/binary"

	"idxengine/pkg/codec"
	"idxengine/pkg/customerrors"
	"idxengine/pkg/pager"

	"github.com/pkg/errors"
)

// Signature is the fixed 10-byte magic every index file starts with.
const Signature = "ACEBASEIDX"

// CurrentLayoutVersion is the only layout_version this implementation
// understands; any other value fails to open with ErrUnsupportedFormat
// (spec §4.7/§7).
const CurrentLayoutVersion uint8 = 1

// blockAlign is the boundary the header is padded to, so the tree region
// always starts on a 4096-byte boundary (spec §4.7).
const blockAlign = 4096

// IndexInfo is the `index_info` typed-map payload (spec §3's Index
// entity): the indexed path, key expression, included metadata fields,
// and collation settings.
type IndexInfo struct {
	Type          string
	Version       int64
	Path          string
	Key           string
	Include       []string
	CaseSensitive bool
	Locale        string
}

func (ii IndexInfo) toTypedMap() codec.TypedMap {
	include := make([]codec.Key, len(ii.Include))
	for i, s := range ii.Include {
		include[i] = codec.FromString(s)
	}
	return codec.TypedMap{}.
		Set("type", codec.FromString(ii.Type)).
		Set("version", codec.FromInt(ii.Version)).
		Set("path", codec.FromString(ii.Path)).
		Set("key", codec.FromString(ii.Key)).
		Set("include", codec.FromArray(include)).
		Set("cs", codec.FromBool(ii.CaseSensitive)).
		Set("locale", codec.FromString(ii.Locale))
}

func indexInfoFromTypedMap(m codec.TypedMap) IndexInfo {
	ii := IndexInfo{}
	if v, ok := m.Get("type"); ok {
		ii.Type = v.Str
	}
	if v, ok := m.Get("version"); ok {
		ii.Version = v.Int
	}
	if v, ok := m.Get("path"); ok {
		ii.Path = v.Str
	}
	if v, ok := m.Get("key"); ok {
		ii.Key = v.Str
	}
	if v, ok := m.Get("include"); ok {
		ii.Include = make([]string, len(v.Values))
		for i, e := range v.Values {
			ii.Include[i] = e.Str
		}
	}
	if v, ok := m.Get("cs"); ok {
		ii.CaseSensitive = v.Bool
	}
	if v, ok := m.Get("locale"); ok {
		ii.Locale = v.Str
	}
	return ii
}

// TreeInfo is the `tree_info` typed-map payload (spec §3's Tree entity):
// counters kept for diagnostics, not needed to open or query the tree.
type TreeInfo struct {
	Class   string
	Version int64
	Entries int64
	Values  int64
}

func (ti TreeInfo) toTypedMap() codec.TypedMap {
	return codec.TypedMap{}.
		Set("class", codec.FromString(ti.Class)).
		Set("version", codec.FromInt(ti.Version)).
		Set("entries", codec.FromInt(ti.Entries)).
		Set("values", codec.FromInt(ti.Values))
}

func treeInfoFromTypedMap(m codec.TypedMap) TreeInfo {
	ti := TreeInfo{}
	if v, ok := m.Get("class"); ok {
		ti.Class = v.Str
	}
	if v, ok := m.Get("version"); ok {
		ti.Version = v.Int
	}
	if v, ok := m.Get("entries"); ok {
		ti.Entries = v.Int
	}
	if v, ok := m.Get("values"); ok {
		ti.Values = v.Int
	}
	return ti
}

// TreeDescriptor is one entry of the header's tree table (spec §4.7 only
// ever populates one, named "default", but the wire format allows more).
type TreeDescriptor struct {
	Name       string
	FileIndex  uint32
	ByteLength uint32
	Info       TreeInfo
}

// Header is the fully decoded envelope.
type Header struct {
	LayoutVersion uint8
	HeaderLength  uint32
	IndexInfo     IndexInfo
	Trees         []TreeDescriptor
}

// Reservation is returned by Write: it lets the caller patch a tree's
// byte_length field once the tree region that follows the header has been
// fully streamed (spec §4.7 "byte_length: u32 (patched at end of build)").
type Reservation struct {
	res         pager.Reservation
	RegionStart uint64 // == header_length: the offset the tree region begins at
}

// PatchByteLength overwrites the reserved tree's byte_length field with n,
// the number of bytes the tree region actually occupied.
func (r Reservation) PatchByteLength(n uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], n)
	return r.res.Patch(buf[:])
}

// Write appends a header for a single "default" tree to w and returns a
// Reservation for patching its byte_length once the tree bytes that follow
// are fully written. The header is padded to the next 4096-byte boundary
// so the tree region starts block-aligned.
func Write(w pager.Writer, info IndexInfo, treeInfo TreeInfo) (Reservation, error) {
	indexInfoBytes, err := codec.EncodeTypedMap(info.toTypedMap())
	if err != nil {
		return Reservation{}, err
	}
	treeInfoBytes, err := codec.EncodeTypedMap(treeInfo.toTypedMap())
	if err != nil {
		return Reservation{}, err
	}

	const treeName = "default"

	// signature + version + header_length + index_info + trees_count +
	// (name_len + name + file_index + byte_length + tree_info)
	bodySize := len(Signature) + 1 + 4 + len(indexInfoBytes) + 1 +
		1 + len(treeName) + 4 + 4 + len(treeInfoBytes)

	headerLength := uint32(bodySize)
	if rem := headerLength % blockAlign; rem != 0 {
		headerLength += blockAlign - rem
	}

	var buf bytes.Buffer
	buf.WriteString(Signature)
	buf.WriteByte(CurrentLayoutVersion)

	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], headerLength)
	buf.Write(u32[:])

	buf.Write(indexInfoBytes)
	buf.WriteByte(1) // trees_count

	buf.WriteByte(byte(len(treeName)))
	buf.WriteString(treeName)

	binary.BigEndian.PutUint32(u32[:], headerLength)
	buf.Write(u32[:]) // file_index == header_length

	byteLengthOffsetInBuf := buf.Len()
	buf.Write([]byte{0, 0, 0, 0}) // byte_length placeholder, patched later

	buf.Write(treeInfoBytes)

	if pad := int(headerLength) - buf.Len(); pad > 0 {
		buf.Write(make([]byte, pad))
	}

	headerStart, err := w.Append(buf.Bytes())
	if err != nil {
		return Reservation{}, err
	}

	res, err := reserveAt(w, headerStart+uint64(byteLengthOffsetInBuf))
	if err != nil {
		return Reservation{}, err
	}

	return Reservation{res: res, RegionStart: headerStart + uint64(headerLength)}, nil
}

// reserveAt wraps an already-written 4-byte placeholder as a
// pager.Reservation, since pager.Reserve only knows how to append a fresh
// one — here the placeholder was written as part of the larger header
// buffer in a single Append call.
func reserveAt(w pager.Writer, pos uint64) (pager.Reservation, error) {
	return pager.ReserveAt(w, pos, 4)
}

// Read parses a header starting at the beginning of r, validating the
// signature and layout version (spec §4.7/§7: mismatches surface as
// ErrUnsupportedFormat and the caller is expected to rebuild).
func Read(r *pager.Reader) (*Header, error) {
	r.Go(0)

	sig, err := r.Get(len(Signature))
	if err != nil {
		return nil, errors.Wrap(err, "envelope: read signature")
	}
	if string(sig) != Signature {
		return nil, customerrors.ErrUnsupportedFormat
	}

	version, err := r.GetByte()
	if err != nil {
		return nil, errors.Wrap(err, "envelope: read layout_version")
	}
	if version != CurrentLayoutVersion {
		return nil, customerrors.ErrUnsupportedFormat
	}

	headerLength, err := r.GetUint32()
	if err != nil {
		return nil, errors.Wrap(err, "envelope: read header_length")
	}

	indexInfoBytes, err := readRestOfHeader(r, int(headerLength))
	if err != nil {
		return nil, err
	}

	indexInfoMap, n, err := codec.DecodeTypedMap(indexInfoBytes)
	if err != nil {
		return nil, errors.Wrap(err, "envelope: decode index_info")
	}
	off := n

	if off >= len(indexInfoBytes) {
		return nil, customerrors.ErrUnsupportedFormat
	}
	treesCount := int(indexInfoBytes[off])
	off++

	trees := make([]TreeDescriptor, 0, treesCount)
	for i := 0; i < treesCount; i++ {
		if off >= len(indexInfoBytes) {
			return nil, customerrors.ErrUnsupportedFormat
		}
		nameLen := int(indexInfoBytes[off])
		off++
		if off+nameLen+8 > len(indexInfoBytes) {
			return nil, customerrors.ErrUnsupportedFormat
		}
		name := string(indexInfoBytes[off : off+nameLen])
		off += nameLen

		fileIndex := binary.BigEndian.Uint32(indexInfoBytes[off : off+4])
		off += 4
		byteLength := binary.BigEndian.Uint32(indexInfoBytes[off : off+4])
		off += 4

		treeInfoMap, consumed, err := codec.DecodeTypedMap(indexInfoBytes[off:])
		if err != nil {
			return nil, errors.Wrap(err, "envelope: decode tree_info")
		}
		off += consumed

		trees = append(trees, TreeDescriptor{
			Name:       name,
			FileIndex:  fileIndex,
			ByteLength: byteLength,
			Info:       treeInfoFromTypedMap(treeInfoMap),
		})
	}

	return &Header{
		LayoutVersion: version,
		HeaderLength:  headerLength,
		IndexInfo:     indexInfoFromTypedMap(indexInfoMap),
		Trees:         trees,
	}, nil
}

// readRestOfHeader reads everything from the current cursor up to
// totalHeaderLength bytes from the start of the header (signature +
// version + header_length fields already consumed), i.e. index_info
// through the padding, and returns it unsliced of padding — callers stop
// decoding once they've consumed the typed structures they expect.
func readRestOfHeader(r *pager.Reader, totalHeaderLength int) ([]byte, error) {
	consumedSoFar := len(Signature) + 1 + 4
	remaining := totalHeaderLength - consumedSoFar
	if remaining < 0 {
		return nil, customerrors.ErrUnsupportedFormat
	}
	b, err := r.Get(remaining)
	if err != nil {
		return nil, errors.Wrap(err, "envelope: read header body")
	}
	return b, nil
}
