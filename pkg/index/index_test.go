package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"idxengine/pkg/codec"
	"idxengine/pkg/pager"
	"idxengine/pkg/tree"
)

func openTestTree(t *testing.T) *tree.Tree {
	t.Helper()
	f, err := pager.OpenFile(filepath.Join(t.TempDir(), "idx.tree"), false, 0o600)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	tr, err := tree.Open(f, 0, tree.DefaultOptions())
	require.NoError(t, err)
	return tr
}

func TestIndex_ProjectBuild_KeySentinel(t *testing.T) {
	ix := New(openTestTree(t), "songs", KeySentinel, []string{"title"}, true)

	rec := Record{
		Wildcards: nil,
		Key:       "s1",
		Fields:    map[string]codec.Key{"title": codec.FromString("Nowhere Man")},
	}
	projs, err := ix.ProjectBuild(rec)
	require.NoError(t, err)
	require.Len(t, projs, 1)
	require.Equal(t, codec.FromString("s1"), projs[0].Key)
	require.Equal(t, "s1", projs[0].Pointer.Key)
	require.Equal(t, []codec.Key{codec.FromString("Nowhere Man")}, projs[0].Metadata)
}

func TestIndex_ProjectBuild_FieldKey(t *testing.T) {
	ix := New(openTestTree(t), "songs", "year", nil, true)

	rec := Record{Key: "s1", Fields: map[string]codec.Key{"year": codec.FromInt(1999)}}
	projs, err := ix.ProjectBuild(rec)
	require.NoError(t, err)
	require.Equal(t, codec.FromInt(1999), projs[0].Key)
}

func TestIndex_ProjectUpdate_NoOpWhenKeyUnchanged(t *testing.T) {
	ix := New(openTestTree(t), "songs", "year", nil, true)

	old := Record{Key: "s1", Fields: map[string]codec.Key{"year": codec.FromInt(1999)}}
	updated := Record{Key: "s1", Fields: map[string]codec.Key{"year": codec.FromInt(1999)}}

	ops, err := ix.ProjectUpdate(old, updated)
	require.NoError(t, err)
	require.Nil(t, ops)
}

func TestIndex_ProjectUpdate_RemoveThenAddOnChange(t *testing.T) {
	ix := New(openTestTree(t), "songs", "year", nil, true)

	old := Record{Key: "s1", Fields: map[string]codec.Key{"year": codec.FromInt(1999)}}
	updated := Record{Key: "s1", Fields: map[string]codec.Key{"year": codec.FromInt(2005)}}

	ops, err := ix.ProjectUpdate(old, updated)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	require.Equal(t, tree.OpRemove, ops[0].Kind)
	require.Equal(t, codec.FromInt(1999), ops[0].Key)
	require.Equal(t, tree.OpAdd, ops[1].Kind)
	require.Equal(t, codec.FromInt(2005), ops[1].Key)
}

func TestIndex_TranslateQuery_Between(t *testing.T) {
	ix := New(openTestTree(t), "songs", "year", nil, true)

	opts, err := ix.TranslateQuery(tree.OpBetween, codec.FromInt(2000), codec.FromInt(2009))
	require.NoError(t, err)
	require.Equal(t, codec.FromInt(2000), opts.LowerBound)
	require.Equal(t, codec.FromInt(2009), opts.UpperBound)

	_, err = ix.TranslateQuery(tree.OpBetween, codec.FromInt(2000))
	require.Error(t, err)
}

func TestIndex_TranslateQuery_ScalarRequiresOneArg(t *testing.T) {
	ix := New(openTestTree(t), "songs", "year", nil, true)

	_, err := ix.TranslateQuery(tree.OpGte, codec.FromInt(2005), codec.FromInt(2006))
	require.Error(t, err)

	opts, err := ix.TranslateQuery(tree.OpGte, codec.FromInt(2005))
	require.NoError(t, err)
	require.Equal(t, codec.FromInt(2005), opts.Value)
}
