package build

import (
	"sort"

	"idxengine/pkg/codec"
	"idxengine/pkg/pager"
	"idxengine/pkg/tree"
)

// StageB re-reads buildFile sequentially, batches up to maxValues distinct
// keys into an in-memory key→values map, and spills each full batch as a
// sorted run file `<dir>/<name>.idx.build.<n>` (spec §4.5). It sets each
// consumed record's processed_flag in place once the run holding that
// record has been written and closed, so a crash mid-batch can be retried
// without re-reading records already folded into a flushed run.
// Returns the run file paths in creation order.
func StageB(buildFile *pager.File, dir, name string, maxValues int, caseSensitive bool) ([]string, error) {
	reader := pager.NewReader(buildFile)

	var runFiles []string
	runIndex := 0
	batch := map[string]*runEntry{}
	count := 0
	var pendingFlags []uint64

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		entries := make([]runEntry, 0, len(batch))
		for _, e := range batch {
			entries = append(entries, *e)
		}
		sort.Slice(entries, func(i, j int) bool {
			return codec.Compare(entries[i].Key, entries[j].Key, caseSensitive) < 0
		})

		runPath := runFilePath(dir, name, runIndex)
		runFile, err := pager.OpenFile(runPath, false, 0644)
		if err != nil {
			return err
		}
		w := pager.NewFileWriter(runFile)
		for _, e := range entries {
			if err := appendRunEntry(w, e.Key, e.Values); err != nil {
				runFile.Close()
				return err
			}
		}
		if err := runFile.Sync(); err != nil {
			runFile.Close()
			return err
		}
		if err := runFile.Close(); err != nil {
			return err
		}
		for _, pos := range pendingFlags {
			if err := buildFile.WriteAt([]byte{1}, pos); err != nil {
				return err
			}
		}
		pendingFlags = pendingFlags[:0]

		runFiles = append(runFiles, runPath)
		runIndex++
		batch = map[string]*runEntry{}
		count = 0
		return nil
	}

	for !reader.AtEnd() {
		flagPos := reader.Pos() + 4
		entry, ok, err := decodeBuildEntry(reader)
		if err == pager.ErrEOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !ok {
			continue // already folded into a flushed run by a prior pass
		}

		encKey, err := codec.Encode(entry.Key)
		if err != nil {
			return nil, err
		}
		k := string(encKey)

		re, exists := batch[k]
		if !exists {
			re = &runEntry{Key: entry.Key}
			batch[k] = re
		}
		re.Values = append(re.Values, tree.Value{Pointer: entry.Pointer, Metadata: entry.Metadata})

		pendingFlags = append(pendingFlags, flagPos)

		// A record sharing a key already in this batch merges regardless
		// of maxValues (spec §4.5); only a genuinely new key counts.
		if !exists {
			count++
		}
		if count >= maxValues {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}

	if err := flush(); err != nil {
		return nil, err
	}
	return runFiles, nil
}
