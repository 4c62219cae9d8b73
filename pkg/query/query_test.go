package query

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"idxengine/config"
	"idxengine/pkg/codec"
	"idxengine/pkg/index"
	"idxengine/pkg/index/array"
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

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := NewCache(config.NewQueryConfig())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestEngine_Query_CachesAcrossCalls(t *testing.T) {
	tr := openTestTree(t)
	require.NoError(t, tr.Add(codec.FromInt(2005), codec.RecordPointer{Key: "s2"}, nil))

	ix := index.New(tr, "songs", "year", nil, true)
	eng := New("songs", tr, ix, newTestCache(t))

	res, err := eng.Query(tree.OpEq, []codec.Key{codec.FromInt(2005)}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Entries)

	// Delete directly from the tree; a cache hit should still return the
	// stale result (cache is only invalidated by Build/Rebuild).
	require.NoError(t, tr.Remove(codec.FromInt(2005), codec.RecordPointer{Key: "s2"}))

	res2, err := eng.Query(tree.OpEq, []codec.Key{codec.FromInt(2005)}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res2.Entries, "expected cached result to survive the underlying mutation")
}

func TestEngine_Query_AppliesFilter(t *testing.T) {
	tr := openTestTree(t)
	require.NoError(t, tr.Add(codec.FromInt(1), codec.RecordPointer{Key: "a"}, nil))
	require.NoError(t, tr.Add(codec.FromInt(1), codec.RecordPointer{Key: "b"}, nil))

	ix := index.New(tr, "x", "n", nil, true)
	eng := New("x", tr, ix, newTestCache(t))

	filter := &Filter{Key: "only-a", Func: func(p codec.RecordPointer) bool { return p.Key == "a" }}
	res, err := eng.Query(tree.OpEq, []codec.Key{codec.FromInt(1)}, filter)
	require.NoError(t, err)
	require.Equal(t, 1, res.Entries)
	require.Equal(t, "only-a", res.FilterKey)
	require.Equal(t, "a", res.Values[0].Pointer.Key)
}

func TestEngine_Count(t *testing.T) {
	tr := openTestTree(t)
	require.NoError(t, tr.Add(codec.FromInt(1), codec.RecordPointer{Key: "a"}, nil))
	require.NoError(t, tr.Add(codec.FromInt(2), codec.RecordPointer{Key: "b"}, nil))

	ix := index.New(tr, "x", "n", nil, true)
	eng := New("x", tr, ix, newTestCache(t))

	n, err := eng.Count(tree.OpGte, []codec.Key{codec.FromInt(1)})
	require.NoError(t, err)
	require.Equal(t, uint64(2), n)
}

func TestEngine_Take_WindowsAndReverses(t *testing.T) {
	tr := openTestTree(t)
	for i := 1; i <= 5; i++ {
		require.NoError(t, tr.Add(codec.FromInt(int64(i)), codec.RecordPointer{Key: string(rune('a' + i - 1))}, nil))
	}
	ix := index.New(tr, "x", "n", nil, true)
	eng := New("x", tr, ix, newTestCache(t))

	res, err := eng.Take(1, 2, true)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c"}, pointerKeys(res))

	res, err = eng.Take(0, 2, false)
	require.NoError(t, err)
	require.Equal(t, []string{"e", "d"}, pointerKeys(res))
}

func pointerKeys(res IndexQueryResult) []string {
	out := make([]string, len(res.Values))
	for i, v := range res.Values {
		out[i] = v.Pointer.Key
	}
	return out
}

func TestEngine_Build_ClearsCacheBeforeRunning(t *testing.T) {
	tr := openTestTree(t)
	require.NoError(t, tr.Add(codec.FromInt(1), codec.RecordPointer{Key: "a"}, nil))

	ix := index.New(tr, "x", "n", nil, true)
	eng := New("x", tr, ix, newTestCache(t))

	_, err := eng.Query(tree.OpEq, []codec.Key{codec.FromInt(1)}, nil)
	require.NoError(t, err)

	ran := false
	eng.BuildFunc = func(ctx context.Context) error {
		ran = true
		return nil
	}
	require.NoError(t, eng.Build(context.Background()))
	require.True(t, ran)

	// cache must have been cleared: removing then re-querying observes
	// the live tree state, not a stale cached hit.
	require.NoError(t, tr.Remove(codec.FromInt(1), codec.RecordPointer{Key: "a"}))
	res, err := eng.Query(tree.OpEq, []codec.Key{codec.FromInt(1)}, nil)
	require.NoError(t, err)
	require.Equal(t, 0, res.Entries)
}

func TestEngine_Search_RoutesArrayOperatorsThroughUnderlying(t *testing.T) {
	tr := openTestTree(t)
	ix := array.New(tr, "chats", "members", nil, true)
	arr := codec.FromArray([]codec.Key{codec.FromString("a"), codec.FromString("b")})
	rec := index.Record{Key: "chat1", Fields: map[string]codec.Key{"members": arr}}
	projs, err := ix.ProjectBuild(rec)
	require.NoError(t, err)
	for _, p := range projs {
		require.NoError(t, tr.Add(p.Key, p.Pointer, p.Metadata))
	}

	eng := New("chats", tr, ix, newTestCache(t))
	res, err := eng.Query(array.OpContains, []codec.Key{codec.FromString("a")}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Entries)
}

func TestIndexLock_WriterBlocksLaterReaders(t *testing.T) {
	l := NewIndexLock()
	l.Lock()

	done := make(chan struct{})
	go func() {
		l.RLock()
		l.RUnlock()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("reader proceeded while writer held the lock")
	case <-time.After(30 * time.Millisecond):
	}

	l.Unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reader never unblocked after writer released")
	}
}

func TestIndexLock_ConcurrentReadersAllowed(t *testing.T) {
	l := NewIndexLock()
	l.RLock()

	done := make(chan struct{})
	go func() {
		l.RLock()
		l.RUnlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second reader should not block behind a held read lock")
	}
	l.RUnlock()
}
