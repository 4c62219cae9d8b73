// Package tree implements the on-disk B+ tree of spec.md §4.3/§4.4: header,
// leaf/internal node layout, insert/update/delete with in-place writes and
// rebuild-on-overflow, and the bulk tree constructor shared by rebuild and
// the external build pipeline. Values are stored inline only: the leaf
// layout has the ext-data header fields, but no ext-data block is ever
// written, and a value longer than 255 bytes is rejected.
//
// Grounded on the teacher's pkg/bptree/bptree.go (API shape: find/search/
// add/remove/update/transaction/rebuild, split-on-overflow cascading to the
// root, borrow/merge on underflow) generalized from bptree's fixed-degree
// scalar-key design to the spec's variable-length-node, 48-bit-pointer,
// metadata-carrying format, and on pkg/overflow_data/record.go's chained
// overflow-block concept for ext-data.
package tree

import (
	"idxengine/pkg/codec"

	"github.com/pkg/errors"
)

// Operator enumerates the range/match operators spec.md §4.3 requires
// Search to support.
type Operator string

const (
	OpEq          Operator = "=="
	OpNeq         Operator = "!="
	OpLt          Operator = "<"
	OpLte         Operator = "<="
	OpGt          Operator = ">"
	OpGte         Operator = ">="
	OpIn          Operator = "in"
	OpNotIn       Operator = "!in"
	OpBetween     Operator = "between"
	OpNotBetween  Operator = "!between"
	OpLike        Operator = "like"
	OpNotLike     Operator = "!like"
	OpMatches     Operator = "matches"
	OpNotMatches  Operator = "!matches"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "!exists"
)

// Value is one record's contribution to an Entry: its locator plus the
// fixed-schema metadata tuple co-stored for filtering without
// dereferencing the primary store (spec §3).
type Value struct {
	Pointer  codec.RecordPointer
	Metadata []codec.Key
}

// Entry is a (key, values[]) pair within a leaf (spec §3). Non-unique
// trees (always the case for these indexes) allow multiple unordered
// Values per Entry; record pointers within one Entry must be unique.
type Entry struct {
	Key    codec.Key
	Values []Value
}

// Options configures a Tree's on-disk layout. MaxEntriesPerNode and the
// 48-bit pointer width are spec-hardcoded (§4.3/§9's Design Notes:
// "keep those hardcoded in the on-disk format but do not hardcode them in
// the in-memory builder interface — accept them as parameters") and are
// not meant to be varied per instance; MaxEntriesPerNode is a field here
// only so tests can exercise small trees without 255-entry leaves, and the
// pointer width is the ptrSize constant.
type Options struct {
	MaxEntriesPerNode int
	MetadataKeys      []string
	CaseSensitive     bool
	FillFactor        float64
	LeafSlackFraction float64
	MaxKeySize        int
}

func DefaultOptions() Options {
	return Options{
		MaxEntriesPerNode: 255,
		FillFactor:        0.5,
		LeafSlackFraction: 0.10,
		MaxKeySize:        255,
	}
}

var (
	ErrEmptyKey   = errors.New("tree: empty key")
	ErrKeyTooLarge = errors.New("tree: key too large")
)

// matchValue is the decoded scalar a query compares against; identical
// shape to codec.Key but named distinctly at call sites for readability.
type matchValue = codec.Key
