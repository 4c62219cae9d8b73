package build

import (
	"idxengine/pkg/envelope"
	"idxengine/pkg/pager"
	"idxengine/pkg/tree"
)

// StageD reads the merge file as an ordered entry stream and invokes the
// bulk tree constructor through the envelope's reserve→stream→patch
// protocol (spec §4.5 Stage D / §4.7): the header is written first (with
// its tree byte_length field reserved), the tree bytes stream
// immediately after it, then the reservation is patched with the tree
// region's true size.
func StageD(mergeFile *pager.File, w pager.Writer, info envelope.IndexInfo, treeInfo envelope.TreeInfo, cfg tree.BuildConfig) (uint64, error) {
	reader := pager.NewReader(mergeFile)

	var entries []tree.Entry
	for !reader.AtEnd() {
		re, err := decodeRunEntry(reader)
		if err == pager.ErrEOF {
			break
		}
		if err != nil {
			return 0, err
		}
		entries = append(entries, tree.Entry{Key: re.Key, Values: re.Values})
	}

	res, err := envelope.Write(w, info, treeInfo)
	if err != nil {
		return 0, err
	}

	rootAddr, err := tree.BuildBulk(w, entries, cfg)
	if err != nil {
		return 0, err
	}

	if err := res.PatchByteLength(uint32(w.Len() - res.RegionStart)); err != nil {
		return 0, err
	}
	return rootAddr, nil
}
