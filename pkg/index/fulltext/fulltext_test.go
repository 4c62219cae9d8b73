package fulltext

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"idxengine/pkg/codec"
	"idxengine/pkg/index"
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

func buildIndex(t *testing.T, ix *Index, recs ...index.Record) {
	t.Helper()
	for _, r := range recs {
		projs, err := ix.ProjectBuild(r)
		require.NoError(t, err)
		for _, p := range projs {
			require.NoError(t, ix.Tree.Add(p.Key, p.Pointer, p.Metadata))
		}
	}
}

func TestFullText_Tokenize(t *testing.T) {
	require.Equal(t, []string{"hello", "dear", "world"}, tokenize("Hello, dear World!"))
}

func TestFullText_ProjectBuild_OnePerWord(t *testing.T) {
	ix := New(openTestTree(t), "messages", "text", nil, true)
	rec := index.Record{Key: "m1", Fields: map[string]codec.Key{"text": codec.FromString("hello dear world")}}

	projs, err := ix.ProjectBuild(rec)
	require.NoError(t, err)
	require.Len(t, projs, 3)

	byWord := map[string][]codec.Key{}
	for _, p := range projs {
		byWord[p.Key.Str] = p.Metadata
	}
	require.Contains(t, byWord, "hello")
	require.Equal(t, "0", byWord["hello"][len(byWord["hello"])-1].Str)
}

func TestFullText_Query_Phrase_RequiresOrder(t *testing.T) {
	tr := openTestTree(t)
	ix := New(tr, "messages", "text", nil, true)

	// m2 contains both words but never "hello" immediately followed by
	// "dear", so the phrase must not match it; m3 does have them
	// consecutive, just not at the start, which must still match.
	buildIndex(t, ix,
		index.Record{Key: "m1", Fields: map[string]codec.Key{"text": codec.FromString("hello dear world")}},
		index.Record{Key: "m2", Fields: map[string]codec.Key{"text": codec.FromString("dear hello world")}},
		index.Record{Key: "m3", Fields: map[string]codec.Key{"text": codec.FromString("well hello dear")}},
	)

	matches, err := ix.Query(`"hello dear"`, false)
	require.NoError(t, err)

	got := map[string]bool{}
	for _, m := range matches {
		got[m.Key] = true
	}
	require.True(t, got["m1"])
	require.True(t, got["m3"])
	require.False(t, got["m2"], "hello and dear are not adjacent in m2's order")
	require.Len(t, matches, 2)
}

func TestFullText_Query_OrUnion(t *testing.T) {
	tr := openTestTree(t)
	ix := New(tr, "messages", "text", nil, true)

	buildIndex(t, ix,
		index.Record{Key: "m1", Fields: map[string]codec.Key{"text": codec.FromString("alpha")}},
		index.Record{Key: "m2", Fields: map[string]codec.Key{"text": codec.FromString("beta")}},
		index.Record{Key: "m3", Fields: map[string]codec.Key{"text": codec.FromString("gamma")}},
	)

	matches, err := ix.Query("alpha OR beta", false)
	require.NoError(t, err)
	keys := map[string]bool{}
	for _, m := range matches {
		keys[m.Key] = true
	}
	require.True(t, keys["m1"])
	require.True(t, keys["m2"])
	require.False(t, keys["m3"])
}

func TestFullText_Query_Negate(t *testing.T) {
	tr := openTestTree(t)
	ix := New(tr, "messages", "text", nil, true)

	buildIndex(t, ix,
		index.Record{Key: "m1", Fields: map[string]codec.Key{"text": codec.FromString("alpha")}},
		index.Record{Key: "m2", Fields: map[string]codec.Key{"text": codec.FromString("beta")}},
	)

	matches, err := ix.Query("alpha", true)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "m2", matches[0].Key)
}

func TestFullText_ProjectUpdate_RewritesChangedPositions(t *testing.T) {
	ix := New(openTestTree(t), "messages", "text", nil, true)

	old := index.Record{Key: "m1", Fields: map[string]codec.Key{"text": codec.FromString("hello world")}}
	updated := index.Record{Key: "m1", Fields: map[string]codec.Key{"text": codec.FromString("world hello")}}

	ops, err := ix.ProjectUpdate(old, updated)
	require.NoError(t, err)
	// both words' positions flip, so both are removed and re-added
	require.Len(t, ops, 4)
}

func TestSplitTopLevel_IgnoresSeparatorInsideQuotes(t *testing.T) {
	parts := splitTopLevel(`"a OR b" OR c`, " OR ")
	require.Equal(t, []string{`"a OR b"`, "c"}, parts)
}
