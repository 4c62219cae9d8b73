package envelope

import (
	"testing"

	"github.com/stretchr/testify/require"

	"idxengine/pkg/pager"
)

func TestWriteRead_RoundTrip(t *testing.T) {
	w := pager.NewBufferWriter()

	info := IndexInfo{
		Type:          "normal",
		Version:       1,
		Path:          "songs",
		Key:           "year",
		Include:       []string{"title", "artist"},
		CaseSensitive: false,
		Locale:        "en",
	}
	treeInfo := TreeInfo{Class: "bptree", Version: 1, Entries: 3, Values: 3}

	res, err := Write(w, info, treeInfo)
	require.NoError(t, err)

	_, err = w.Append([]byte("fake-tree-bytes"))
	require.NoError(t, err)
	require.NoError(t, res.PatchByteLength(15))

	r := pager.NewBytesReader(w.Bytes())
	hdr, err := Read(r)
	require.NoError(t, err)

	require.Equal(t, CurrentLayoutVersion, hdr.LayoutVersion)
	require.Equal(t, info.Path, hdr.IndexInfo.Path)
	require.Equal(t, info.Key, hdr.IndexInfo.Key)
	require.Equal(t, info.Include, hdr.IndexInfo.Include)
	require.Len(t, hdr.Trees, 1)
	require.Equal(t, "default", hdr.Trees[0].Name)
	require.Equal(t, uint32(15), hdr.Trees[0].ByteLength)
	require.Equal(t, int64(3), hdr.Trees[0].Info.Entries)
}

func TestRead_RejectsBadSignature(t *testing.T) {
	r := pager.NewBytesReader([]byte("NOTANINDEXFILE"))
	_, err := Read(r)
	require.Error(t, err)
}

func TestWrite_HeaderIsBlockAligned(t *testing.T) {
	w := pager.NewBufferWriter()
	_, err := Write(w, IndexInfo{Path: "a", Key: "b"}, TreeInfo{})
	require.NoError(t, err)
	require.Zero(t, w.Len()%blockAlign)
}
