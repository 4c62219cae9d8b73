// Package fst implements the Free-Space Tracker of spec.md §4.1/§4.3: an
// in-memory record of unused (offset, length) extents inside a tree
// region, used for in-place node growth without fragmenting the file.
//
// Unlike the teacher's allocator (pkg/allocator/heap), which persists its
// freelist as an on-disk red-black tree, the tracker here is purely
// in-memory and is not persisted. A tree opened from an existing file
// starts with an empty tracker; it is not rebuilt from the
// free_byte_length/ext_free_len fields stored in the nodes.
package fst

import (
	"sort"

	"github.com/pkg/errors"
)

// Extent is a free byte range [Offset, Offset+Length) inside the tree
// region.
type Extent struct {
	Offset uint64
	Length uint32
}

var ErrNoFit = errors.New("fst: no free extent large enough")

// Tracker holds the free extents of one tree region, sorted by offset.
// It is not safe for concurrent use; callers serialize access through the
// tree-file handle lock (spec §5's "per-tree-file handle" exclusive lock).
type Tracker struct {
	extents []Extent
}

func New() *Tracker {
	return &Tracker{}
}

// Seed builds a tracker holding the given extents. Only the tests call it;
// the tree never reconstructs a tracker from an opened file.
func Seed(extents []Extent) *Tracker {
	t := &Tracker{extents: append([]Extent(nil), extents...)}
	t.normalize()
	return t
}

// Claim finds the best-fit free extent of at least size bytes, removes
// (or shrinks) it, and returns the offset it was claimed at. Best-fit
// (smallest extent that still satisfies the request) keeps large
// contiguous extents available for later large requests, mirroring the
// allocator's shrink-from-front-of-smallest-fit behavior.
func (t *Tracker) Claim(size uint32) (uint64, error) {
	best := -1
	for i, e := range t.extents {
		if e.Length < size {
			continue
		}
		if best == -1 || e.Length < t.extents[best].Length {
			best = i
		}
	}
	if best == -1 {
		return 0, ErrNoFit
	}

	e := t.extents[best]
	offset := e.Offset

	if e.Length == size {
		t.extents = append(t.extents[:best], t.extents[best+1:]...)
	} else {
		t.extents[best] = Extent{Offset: e.Offset + uint64(size), Length: e.Length - size}
	}
	return offset, nil
}

// Release returns a previously-used extent to the tracker, coalescing it
// with any adjacent free extents.
func (t *Tracker) Release(offset uint64, length uint32) {
	t.extents = append(t.extents, Extent{Offset: offset, Length: length})
	t.normalize()
}

// Extents returns a snapshot of the current free list, sorted by offset.
func (t *Tracker) Extents() []Extent {
	return append([]Extent(nil), t.extents...)
}

// Total returns the sum of all tracked free bytes.
func (t *Tracker) Total() uint64 {
	var sum uint64
	for _, e := range t.extents {
		sum += uint64(e.Length)
	}
	return sum
}

// normalize sorts by offset and merges adjacent/overlapping extents, the
// same coalescing spec.md's allocator.Free does on both neighbors.
func (t *Tracker) normalize() {
	if len(t.extents) < 2 {
		return
	}

	sort.Slice(t.extents, func(i, j int) bool { return t.extents[i].Offset < t.extents[j].Offset })

	merged := t.extents[:1]
	for _, e := range t.extents[1:] {
		last := &merged[len(merged)-1]
		if last.Offset+uint64(last.Length) >= e.Offset {
			end := e.Offset + uint64(e.Length)
			if lastEnd := last.Offset + uint64(last.Length); end > lastEnd {
				last.Length = uint32(end - last.Offset)
			}
			continue
		}
		merged = append(merged, e)
	}
	t.extents = merged
}
