package build

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"idxengine/config"
	"idxengine/pkg/codec"
	"idxengine/pkg/envelope"
	"idxengine/pkg/index"
	"idxengine/pkg/pager"
	"idxengine/pkg/tree"
	"idxengine/util/stream"
)

// fakeStore is a PrimaryStore that replays a fixed set of records,
// standing in for spec §6's external collaborator during tests.
type fakeStore struct {
	records []index.Record
}

func (s *fakeStore) Walk(ctx context.Context, path string, maxBatch int, out stream.Writer[index.Record]) error {
	for _, r := range s.records {
		out.Push(r)
	}
	return nil
}

func TestMaxBatch_ShrinksWithWildcards(t *testing.T) {
	require.Equal(t, 500, MaxBatch(0))
	require.Less(t, MaxBatch(1), MaxBatch(0))
	require.Less(t, MaxBatch(2), MaxBatch(1))
}

func TestResume_ReportsCorrectStageFromScratchFiles(t *testing.T) {
	dir := t.TempDir()
	stage, err := Resume(dir, "songs")
	require.NoError(t, err)
	require.Equal(t, StageA, stage)

	f, err := pager.OpenFile(buildFilePath(dir, "songs"), false, 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	stage, err = Resume(dir, "songs")
	require.NoError(t, err)
	require.Equal(t, StageB, stage)

	rf, err := pager.OpenFile(runFilePath(dir, "songs", 0), false, 0o644)
	require.NoError(t, err)
	require.NoError(t, rf.Close())
	stage, err = Resume(dir, "songs")
	require.NoError(t, err)
	require.Equal(t, StageC, stage)

	mf, err := pager.OpenFile(mergeFilePath(dir, "songs"), false, 0o644)
	require.NoError(t, err)
	require.NoError(t, mf.Close())
	stage, err = Resume(dir, "songs")
	require.NoError(t, err)
	require.Equal(t, StageD, stage)
}

// TestRun_EndToEnd drives all four stages over a small synthetic dataset
// and checks the resulting index file's tree contains every record,
// exercising spec §4.5's full pipeline and the envelope header it
// produces through Stage D.
func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	projector := index.New(nil, "songs", "year", []string{"title"}, true)

	store := &fakeStore{records: []index.Record{
		{Key: "s1", Fields: map[string]codec.Key{"year": codec.FromInt(1999), "title": codec.FromString("A")}},
		{Key: "s2", Fields: map[string]codec.Key{"year": codec.FromInt(2005), "title": codec.FromString("B")}},
		{Key: "s3", Fields: map[string]codec.Key{"year": codec.FromInt(2010), "title": codec.FromString("C")}},
	}}

	info := envelope.IndexInfo{Type: "normal", Path: "songs", Key: "year", Include: []string{"title"}, CaseSensitive: true}
	icfg := &config.IndexConfig{MaxEntriesPerNode: 255, BuildFillFactor: 0.5, LeafSlackFraction: 0.1}
	bcfg := &config.BuildConfig{MaxValues: 100_000}

	err := Run(context.Background(), store, projector, "songs", 0, info, icfg, bcfg, dir, "songs")
	require.NoError(t, err)

	require.NoFileExists(t, buildFilePath(dir, "songs"))
	require.NoFileExists(t, mergeFilePath(dir, "songs"))
	require.FileExists(t, finalFilePath(dir, "songs"))

	f, err := pager.OpenFile(finalFilePath(dir, "songs"), true, 0o644)
	require.NoError(t, err)
	defer f.Close()

	hdr, err := envelope.Read(pager.NewReader(f))
	require.NoError(t, err)
	require.Equal(t, "songs", hdr.IndexInfo.Path)
	require.Len(t, hdr.Trees, 1)

	tr, err := tree.Open(f, uint64(hdr.Trees[0].FileIndex), tree.Options{
		MaxEntriesPerNode: 255, FillFactor: 0.5, LeafSlackFraction: 0.1,
		MaxKeySize: 255, MetadataKeys: []string{"title"}, CaseSensitive: true,
	})
	require.NoError(t, err)

	vals, err := tr.Find(codec.FromInt(2005))
	require.NoError(t, err)
	require.Len(t, vals, 1)
	require.Equal(t, "s2", vals[0].Pointer.Key)

	res, err := tr.Search(tree.OpBetween, tree.SearchOptions{LowerBound: codec.FromInt(2000), UpperBound: codec.FromInt(2009)})
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
}

func TestStageB_GroupsRepeatedKeysWithinBatch(t *testing.T) {
	dir := t.TempDir()
	bf, err := pager.OpenFile(buildFilePath(dir, "t"), false, 0o644)
	require.NoError(t, err)

	w := pager.NewFileWriter(bf)
	require.NoError(t, appendBuildEntry(w, codec.FromInt(1), codec.RecordPointer{Key: "a"}, nil))
	require.NoError(t, appendBuildEntry(w, codec.FromInt(1), codec.RecordPointer{Key: "b"}, nil))
	require.NoError(t, appendBuildEntry(w, codec.FromInt(2), codec.RecordPointer{Key: "c"}, nil))
	require.NoError(t, bf.Close())

	bf, err = pager.OpenFile(buildFilePath(dir, "t"), false, 0o644)
	require.NoError(t, err)
	defer bf.Close()

	runFiles, err := StageB(bf, dir, "t", 100_000, true)
	require.NoError(t, err)
	require.Len(t, runFiles, 1)

	rf, err := pager.OpenFile(runFiles[0], true, 0o644)
	require.NoError(t, err)
	defer rf.Close()

	r := pager.NewReader(rf)
	e1, err := decodeRunEntry(r)
	require.NoError(t, err)
	require.Equal(t, codec.FromInt(1), e1.Key)
	require.Len(t, e1.Values, 2)
}

func TestStageC_MergesRunsAndConcatenatesTiedKeys(t *testing.T) {
	dir := t.TempDir()

	run1 := filepath.Join(dir, "run1")
	run2 := filepath.Join(dir, "run2")

	f1, err := pager.OpenFile(run1, false, 0o644)
	require.NoError(t, err)
	w1 := pager.NewFileWriter(f1)
	require.NoError(t, appendRunEntry(w1, codec.FromInt(1), []tree.Value{{Pointer: codec.RecordPointer{Key: "a"}}}))
	require.NoError(t, appendRunEntry(w1, codec.FromInt(3), []tree.Value{{Pointer: codec.RecordPointer{Key: "c"}}}))
	require.NoError(t, f1.Close())

	f2, err := pager.OpenFile(run2, false, 0o644)
	require.NoError(t, err)
	w2 := pager.NewFileWriter(f2)
	require.NoError(t, appendRunEntry(w2, codec.FromInt(1), []tree.Value{{Pointer: codec.RecordPointer{Key: "a2"}}}))
	require.NoError(t, appendRunEntry(w2, codec.FromInt(2), []tree.Value{{Pointer: codec.RecordPointer{Key: "b"}}}))
	require.NoError(t, f2.Close())

	mf, err := pager.OpenFile(filepath.Join(dir, "merge"), false, 0o644)
	require.NoError(t, err)
	defer mf.Close()

	require.NoError(t, StageC([]string{run1, run2}, mf, true))

	r := pager.NewReader(mf)
	e1, err := decodeRunEntry(r)
	require.NoError(t, err)
	require.Equal(t, codec.FromInt(1), e1.Key)
	require.Len(t, e1.Values, 2)

	e2, err := decodeRunEntry(r)
	require.NoError(t, err)
	require.Equal(t, codec.FromInt(2), e2.Key)

	e3, err := decodeRunEntry(r)
	require.NoError(t, err)
	require.Equal(t, codec.FromInt(3), e3.Key)
}
