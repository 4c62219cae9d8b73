// Package array implements the Array index specialization of spec.md
// §4.6: the indexed field holds an array of scalars, and membership is
// indexed element-wise so `contains`/`!contains` queries hit the tree
// directly instead of scanning arrays at query time.
package array

import (
	"idxengine/pkg/codec"
	"idxengine/pkg/customerrors"
	"idxengine/pkg/index"
	"idxengine/pkg/tree"
)

// OpContains and OpNotContains are the operators spec §4.6 exposes for
// array indexes, translated to the underlying tree's ==/!= over a single
// element value.
const (
	OpContains    tree.Operator = "contains"
	OpNotContains tree.Operator = "!contains"
)

// Index is the Array specialization: one Entry per distinct element value
// observed across every indexed record's array field.
type Index struct {
	*index.Index
}

func New(t *tree.Tree, path, field string, includeKeys []string, caseSensitive bool) *Index {
	return &Index{Index: index.New(t, path, field, includeKeys, caseSensitive)}
}

func (ix *Index) elements(r index.Record) []codec.Key {
	v := r.Fields[ix.KeyField]
	if v.Tag != codec.TagArray {
		return nil
	}
	return v.Values
}

// ProjectBuild emits one Projection per array element (spec §4.6: the
// indexed field is an array of scalars).
func (ix *Index) ProjectBuild(r index.Record) ([]index.Projection, error) {
	elems := ix.elements(r)
	meta := ix.Metadata(r)
	out := make([]index.Projection, len(elems))
	for i, e := range elems {
		out[i] = index.Projection{Key: e, Pointer: r.Pointer(), Metadata: meta}
	}
	return out, nil
}

// ProjectUpdate diffs old[]/new[] by element equality: removed elements
// become remove ops, added elements become add ops (spec §4.6).
func (ix *Index) ProjectUpdate(old, new index.Record) ([]tree.TxOp, error) {
	oldElems, newElems := ix.elements(old), ix.elements(new)
	meta := ix.Metadata(new)

	var ops []tree.TxOp
	for _, oe := range oldElems {
		if !containsKey(newElems, oe, ix.CaseSensitive) {
			ops = append(ops, tree.TxOp{Kind: tree.OpRemove, Key: oe, Pointer: old.Pointer()})
		}
	}
	for _, ne := range newElems {
		if !containsKey(oldElems, ne, ix.CaseSensitive) {
			ops = append(ops, tree.TxOp{Kind: tree.OpAdd, Key: ne, Pointer: new.Pointer(), Metadata: meta})
		}
	}
	return ops, nil
}

func containsKey(set []codec.Key, k codec.Key, cs bool) bool {
	for _, s := range set {
		if codec.Compare(s, k, cs) == 0 {
			return true
		}
	}
	return false
}

func (ix *Index) ValidOperators() []tree.Operator {
	return []tree.Operator{OpContains, OpNotContains}
}

// TranslateQuery maps contains/!contains to the tree's ==/!= (spec §4.6:
// "contains (translated to ==), !contains (translated to !=) on the
// underlying tree").
func (ix *Index) TranslateQuery(op tree.Operator, args ...codec.Key) (tree.SearchOptions, error) {
	if len(args) != 1 {
		return tree.SearchOptions{}, customerrors.ErrInvalidArgument
	}
	switch op {
	case OpContains, OpNotContains:
		return tree.SearchOptions{Value: args[0]}, nil
	default:
		return tree.SearchOptions{}, customerrors.ErrInvalidArgument
	}
}

// UnderlyingOperator is the tree.Operator ProjectBuild/TranslateQuery's
// caller (pkg/query) must actually run against the tree for op, since
// contains/!contains are not tree operators themselves.
func UnderlyingOperator(op tree.Operator) (tree.Operator, error) {
	switch op {
	case OpContains:
		return tree.OpEq, nil
	case OpNotContains:
		return tree.OpNeq, nil
	default:
		return "", customerrors.ErrInvalidArgument
	}
}
