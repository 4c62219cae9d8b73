// Package index implements the base (Normal) index specialization and the
// shared Record/Projection/Capability types spec.md §4.6/§9 describe:
// "four index types sharing a base... express as a small interface with
// capabilities {project_update, project_build, valid_operators,
// translate_query} and four concrete variants. The shared tree remains a
// single concrete type." Array, FullText, and Geo (pkg/index/array,
// pkg/index/fulltext, pkg/index/geo) embed Index and override the methods
// their projection differs on.
package index

import (
	"idxengine/pkg/codec"
	"idxengine/pkg/customerrors"
	"idxengine/pkg/tree"
)

// Record is one primary-store node presented to an index's projection
// functions: the wildcard bindings resolved along the indexed path, the
// node's own key name, and the scalar field values this index cares
// about (spec §6's `get_value` result, narrowed ahead of time by the
// caller to the fields named by KeyField/IncludeKeys).
type Record struct {
	Wildcards []string
	Key       string
	Fields    map[string]codec.Key
}

// Pointer builds the RecordPointer this record resolves to (spec §3).
func (r Record) Pointer() codec.RecordPointer {
	return codec.RecordPointer{Wildcards: r.Wildcards, Key: r.Key}
}

// Projection is one (key, record-pointer, metadata) triple an index
// derives from a record (spec §3's Value entity), the unit the build
// pipeline's Stage A spills and a live update projects into tree ops.
type Projection struct {
	Key      codec.Key
	Pointer  codec.RecordPointer
	Metadata []codec.Key
}

// Capability is spec §9's re-architected index polymorphism.
type Capability interface {
	ProjectBuild(r Record) ([]Projection, error)
	ProjectUpdate(old, new Record) ([]tree.TxOp, error)
	ValidOperators() []tree.Operator
	TranslateQuery(op tree.Operator, args ...codec.Key) (tree.SearchOptions, error)
}

// KeySentinel is the literal `{key}` value spec §3 recognizes: "index the
// child's name" instead of one of the record's own fields.
const KeySentinel = "{key}"

// Index is the Normal specialization (spec §4.6): `(v[key],
// rp(wildcards(p),k), {include_keys...})`.
type Index struct {
	Tree          *tree.Tree
	Path          string
	KeyField      string
	IncludeKeys   []string
	CaseSensitive bool
}

func New(t *tree.Tree, path, keyField string, includeKeys []string, caseSensitive bool) *Index {
	return &Index{Tree: t, Path: path, KeyField: keyField, IncludeKeys: includeKeys, CaseSensitive: caseSensitive}
}

// KeyValue resolves a record's indexed scalar, honoring the `{key}`
// sentinel.
func (ix *Index) KeyValue(r Record) codec.Key {
	if ix.KeyField == KeySentinel {
		return codec.FromString(r.Key)
	}
	return r.Fields[ix.KeyField]
}

// Metadata packages the record's include_keys fields in declaration order
// (spec §3's fixed metadata schema).
func (ix *Index) Metadata(r Record) []codec.Key {
	meta := make([]codec.Key, len(ix.IncludeKeys))
	for i, k := range ix.IncludeKeys {
		meta[i] = r.Fields[k]
	}
	return meta
}

func (ix *Index) ProjectBuild(r Record) ([]Projection, error) {
	return []Projection{{Key: ix.KeyValue(r), Pointer: r.Pointer(), Metadata: ix.Metadata(r)}}, nil
}

// ProjectUpdate emits one remove + one add unless the key value is
// unchanged (spec §4.6: "On update of v[key], emit one remove + one add
// unless unchanged").
func (ix *Index) ProjectUpdate(old, new Record) ([]tree.TxOp, error) {
	oldKey, newKey := ix.KeyValue(old), ix.KeyValue(new)
	if codec.Compare(oldKey, newKey, ix.CaseSensitive) == 0 {
		return nil, nil
	}
	return []tree.TxOp{
		{Kind: tree.OpRemove, Key: oldKey, Pointer: old.Pointer()},
		{Kind: tree.OpAdd, Key: newKey, Pointer: new.Pointer(), Metadata: ix.Metadata(new)},
	}, nil
}

func (ix *Index) ValidOperators() []tree.Operator {
	return []tree.Operator{
		tree.OpEq, tree.OpNeq, tree.OpLt, tree.OpLte, tree.OpGt, tree.OpGte,
		tree.OpIn, tree.OpNotIn, tree.OpBetween, tree.OpNotBetween,
		tree.OpLike, tree.OpNotLike, tree.OpMatches, tree.OpNotMatches,
		tree.OpExists, tree.OpNotExists,
	}
}

// TranslateQuery maps a validated (op, args) pair to SearchOptions; args
// holds one value for the scalar operators, two for between/!between, and
// any number for in/!in.
func (ix *Index) TranslateQuery(op tree.Operator, args ...codec.Key) (tree.SearchOptions, error) {
	switch op {
	case tree.OpBetween, tree.OpNotBetween:
		if len(args) != 2 {
			return tree.SearchOptions{}, customerrors.ErrInvalidArgument
		}
		return tree.SearchOptions{LowerBound: args[0], UpperBound: args[1]}, nil
	case tree.OpIn, tree.OpNotIn:
		return tree.SearchOptions{Set: args}, nil
	default:
		if len(args) != 1 {
			return tree.SearchOptions{}, customerrors.ErrInvalidArgument
		}
		return tree.SearchOptions{Value: args[0]}, nil
	}
}
