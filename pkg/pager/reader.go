package pager

import "encoding/binary"

// DefaultChunkSize is the default size of the Reader's internal buffer,
// matching spec's 512 KiB chunk default for sequential scans over run/merge
// files during the build pipeline.
const DefaultChunkSize = 512 * 1024

// byteSource is the minimal random-access source a Reader can sit on top
// of: either a *File or a plain in-memory byte slice (wrapped by
// bytesSource below), so the same Reader works over a live index file and
// over a build-pipeline scratch file without duplicating the buffering
// logic.
type byteSource interface {
	ReadAt(buf []byte, pos uint64) error
	Size() uint64
}

type bytesSource []byte

func (b bytesSource) ReadAt(buf []byte, pos uint64) error {
	if pos+uint64(len(buf)) > uint64(len(b)) {
		return ErrEOF
	}
	copy(buf, b[pos:pos+uint64(len(buf))])
	return nil
}

func (b bytesSource) Size() uint64 { return uint64(len(b)) }

// Reader is a random-access reader with an internal chunk buffer, used for
// both point reads (tree node fetch) and long sequential scans (the build
// pipeline's stage A/B/C files). All multi-byte integers are big-endian.
type Reader struct {
	src       byteSource
	pos       uint64
	chunkOff  uint64
	chunk     []byte
	chunkSize int
}

// NewReader wraps a *File for random access.
func NewReader(f *File) *Reader {
	return newReader(f)
}

// NewBytesReader wraps an in-memory buffer, primarily for tests.
func NewBytesReader(b []byte) *Reader {
	return newReader(bytesSource(b))
}

func newReader(src byteSource) *Reader {
	return &Reader{src: src, chunkSize: DefaultChunkSize}
}

// Go seeks to an absolute position without reading.
func (r *Reader) Go(pos uint64) { r.pos = pos }

// Pos returns the current read cursor.
func (r *Reader) Pos() uint64 { return r.pos }

// Get returns the next n bytes starting at the cursor and advances it. It
// returns ErrEOF (unwrapped, checkable with ==) if fewer than n bytes remain
// in the source; callers that use EOF as a loop-termination signal (the
// merge stage) should compare directly against pager.ErrEOF.
func (r *Reader) Get(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}

	if r.chunk != nil && r.pos >= r.chunkOff && r.pos+uint64(n) <= r.chunkOff+uint64(len(r.chunk)) {
		start := r.pos - r.chunkOff
		out := make([]byte, n)
		copy(out, r.chunk[start:start+uint64(n)])
		r.pos += uint64(n)
		return out, nil
	}

	// refill: read a full chunk starting at pos, but never read fewer than
	// n bytes just because the chunk window is smaller than the request.
	want := r.chunkSize
	if want < n {
		want = n
	}
	if r.pos+uint64(want) > r.src.Size() {
		want = int(r.src.Size() - r.pos)
	}
	if want < n {
		return nil, ErrEOF
	}

	buf := make([]byte, want)
	if err := r.src.ReadAt(buf, r.pos); err != nil {
		return nil, err
	}

	r.chunk = buf
	r.chunkOff = r.pos

	out := make([]byte, n)
	copy(out, buf[:n])
	r.pos += uint64(n)
	return out, nil
}

func (r *Reader) GetByte() (byte, error) {
	b, err := r.Get(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) GetUint16() (uint16, error) {
	b, err := r.Get(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) GetUint32() (uint32, error) {
	b, err := r.Get(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) GetUint64() (uint64, error) {
	b, err := r.Get(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// GetUint48 reads the 48-bit leaf/child offsets used throughout the tree
// region (spec's hardcoded 6-byte pointer width).
func (r *Reader) GetUint48() (uint64, error) {
	b, err := r.Get(6)
	if err != nil {
		return 0, err
	}
	var buf8 [8]byte
	copy(buf8[2:], b)
	return binary.BigEndian.Uint64(buf8[:]), nil
}

// AtEnd reports whether the cursor has reached the end of the source.
func (r *Reader) AtEnd() bool { return r.pos >= r.src.Size() }
