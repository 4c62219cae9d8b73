package build

import (
	"container/heap"

	"idxengine/pkg/codec"
	"idxengine/pkg/pager"
)

// mergeItem is one run's current head entry. mergeHeap orders items the
// same way util/helpers.MatrixHeap implements container/heap.Interface
// over raw byte matrices, adapted here to compare decoded codec.Key values
// via codec.Compare since run-file keys are typed rather than opaque byte
// strings.
type mergeItem struct {
	entry    runEntry
	runIndex int
}

type mergeHeap struct {
	items         []mergeItem
	caseSensitive bool
}

func (h mergeHeap) Len() int { return len(h.items) }
func (h mergeHeap) Less(i, j int) bool {
	return codec.Compare(h.items[i].entry.Key, h.items[j].entry.Key, h.caseSensitive) < 0
}
func (h mergeHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *mergeHeap) Push(x any) { h.items = append(h.items, x.(mergeItem)) }

func (h *mergeHeap) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}

// StageC k-way merges every run file into a single ordered merge file
// (spec §4.5): entries tied on key concatenate their value lists rather
// than appearing twice. The heap replaces spec's literal "insertion-sort
// into a sorted (run_index, key) list" with an equivalent priority queue —
// same externally observable order, same tie handling, same per-run
// advance-then-reinsert step.
func StageC(runFiles []string, mergeFile *pager.File, caseSensitive bool) error {
	readers := make([]*pager.Reader, len(runFiles))
	files := make([]*pager.File, len(runFiles))
	for i, rf := range runFiles {
		f, err := pager.OpenFile(rf, true, 0644)
		if err != nil {
			return err
		}
		files[i] = f
		readers[i] = pager.NewReader(f)
	}
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()

	h := &mergeHeap{caseSensitive: caseSensitive}
	heap.Init(h)
	for i, r := range readers {
		if err := pushNext(h, r, i); err != nil {
			return err
		}
	}

	w := pager.NewFileWriter(mergeFile)
	for h.Len() > 0 {
		smallest := heap.Pop(h).(mergeItem)
		key := smallest.entry.Key
		values := smallest.entry.Values

		for h.Len() > 0 && codec.Compare(h.items[0].entry.Key, key, caseSensitive) == 0 {
			tied := heap.Pop(h).(mergeItem)
			values = append(values, tied.entry.Values...)
			if err := pushNext(h, readers[tied.runIndex], tied.runIndex); err != nil {
				return err
			}
		}

		if err := appendRunEntry(w, key, values); err != nil {
			return err
		}
		if err := pushNext(h, readers[smallest.runIndex], smallest.runIndex); err != nil {
			return err
		}
	}

	return mergeFile.Sync()
}

// pushNext reads the next entry off run runIndex and pushes it onto h; it
// is a no-op once that run is exhausted.
func pushNext(h *mergeHeap, r *pager.Reader, runIndex int) error {
	if r.AtEnd() {
		return nil
	}
	entry, err := decodeRunEntry(r)
	if err == pager.ErrEOF {
		return nil
	}
	if err != nil {
		return err
	}
	heap.Push(h, mergeItem{entry: entry, runIndex: runIndex})
	return nil
}
