package tree

import (
	"encoding/binary"

	"idxengine/pkg/cache"
	"idxengine/pkg/fst"
	"idxengine/pkg/pager"
)

// Rebuild streams every live entry in key order through the bulk builder
// (spec §4.4) and emits the new tree to w, reserving w's first ptrSize
// bytes for the root pointer slot that openExisting expects to find at the
// start of a tree region, and patching it once the true root is known. The
// caller swaps the file once w is complete (spec §4.3 `rebuild`).
func (t *Tree) Rebuild(w pager.Writer) error {
	entries, err := t.collectAllEntries()
	if err != nil {
		return err
	}

	_, err = BuildBulk(w, entries, BuildConfig{
		MaxEntries:   t.opts.MaxEntriesPerNode,
		FillFactor:   t.opts.FillFactor,
		LeafSlack:    t.opts.LeafSlackFraction,
		MetadataKeys: t.opts.MetadataKeys,
	})
	return err
}

// rebuildInPlace is Transaction's recovery path (spec §4.3: an op that
// fails mid-batch forces a full rebuild before the remaining ops replay).
// It truncates the tree region back to empty and rebuilds straight into
// the same file, then adopts the fresh root/cache/FST as this Tree's live
// state.
func (t *Tree) rebuildInPlace() error {
	entries, err := t.collectAllEntries()
	if err != nil {
		return err
	}

	if err := t.file.Truncate(t.regionStart); err != nil {
		return err
	}

	w := pager.NewFileWriter(t.file)
	root, err := BuildBulk(w, entries, BuildConfig{
		MaxEntries:   t.opts.MaxEntriesPerNode,
		FillFactor:   t.opts.FillFactor,
		LeafSlack:    t.opts.LeafSlackFraction,
		MetadataKeys: t.opts.MetadataKeys,
	})
	if err != nil {
		return err
	}

	t.root = root
	t.fst = fst.New()
	t.sizes = make(map[uint64]uint32)
	t.cache.DiscardAll()
	return nil
}

// collectAllEntries walks the leaf chain left to right, returning every
// live Entry in ascending key order.
func (t *Tree) collectAllEntries() ([]Entry, error) {
	e, err := t.leftmostLeaf()
	if err != nil {
		return nil, err
	}
	addr := e.Get().addr
	t.cache.Unlock(e, cache.READ)

	var out []Entry
	for addr != nilPtr {
		ce, err := t.cache.GetF(addr, cache.READ)
		if err != nil {
			return nil, err
		}
		n := ce.Get()
		out = append(out, n.entries...)
		next := n.next
		t.cache.Unlock(ce, cache.READ)
		addr = next
	}
	return out, nil
}

// BuildConfig parameterizes the bulk builder so it isn't tied to one
// Tree's Options (spec §9 Design Notes: accept degree/pointer-width
// knobs as parameters to the in-memory builder rather than hardcoding
// them), letting the build pipeline's Stage D reuse the exact same
// constructor with its own batch-derived settings.
type BuildConfig struct {
	MaxEntries   int
	FillFactor   float64
	LeafSlack    float64
	MetadataKeys []string
}

// BuildBulk implements spec §4.4: partition a sorted entry stream into
// leaves at fill_factor*max_entries, then fold internal levels bottom-up,
// writing everything to w in a single forward pass so every child's
// address is known before its parent is written.
//
// The first ptrSize bytes BuildBulk appends to w are the root pointer
// slot; BuildBulk patches that slot itself once the root address is
// known, so the region this call produces is self-contained regardless of
// where in w it starts — at offset 0 for a bare tree file, or right after
// an envelope header for the build pipeline's Stage D (pkg/envelope).
func BuildBulk(w pager.Writer, entries []Entry, cfg BuildConfig) (uint64, error) {
	regionStart, err := w.Append(make([]byte, ptrSize))
	if err != nil {
		return 0, err
	}

	var rootAddr uint64
	if len(entries) == 0 {
		rootAddr, err = writeNodeTo(w, &node{isLeaf: true}, cfg.MetadataKeys, cfg.LeafSlack)
		if err != nil {
			return 0, err
		}
	} else {
		leafSize := int(float64(cfg.MaxEntries) * cfg.FillFactor)
		if leafSize < 1 {
			leafSize = 1
		}

		var chunks [][]Entry
		for i := 0; i < len(entries); i += leafSize {
			end := i + leafSize
			if end > len(entries) {
				end = len(entries)
			}
			chunks = append(chunks, entries[i:end])
		}

		level, err := writeLeavesChained(w, chunks, cfg)
		if err != nil {
			return 0, err
		}

		separators := make([]matchValue, len(chunks)-1)
		for i := 1; i < len(chunks); i++ {
			separators[i-1] = chunks[i][0].Key
		}

		for len(level) > 1 {
			level, separators, err = buildInternalLevel(w, level, separators, cfg.MaxEntries)
			if err != nil {
				return 0, err
			}
		}
		rootAddr = level[0]
	}

	if err := w.Write(encodeU48(rootAddr), regionStart); err != nil {
		return 0, err
	}
	return rootAddr, nil
}

func writeNodeTo(w pager.Writer, n *node, metadataKeys []string, leafSlack float64) (uint64, error) {
	var payload []byte
	var err error
	flags := uint8(0)
	if n.isLeaf {
		flags = flagLeaf
		payload, err = marshalLeaf(n, metadataKeys)
	} else {
		payload, err = marshalInternal(n)
	}
	if err != nil {
		return 0, err
	}

	total := uint32(5 + len(payload))
	if n.isLeaf {
		total += uint32(float64(len(payload)) * leafSlack)
	}

	buf := make([]byte, 5, total)
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	buf[4] = flags
	buf = append(buf, payload...)
	if pad := int(total) - len(buf); pad > 0 {
		buf = append(buf, make([]byte, pad)...)
	}

	return w.Append(buf)
}

// writeLeavesChained writes each leaf chunk in order, patching each
// leaf's `next` pointer once the following leaf's address is known — the
// "reserve, stream, patch" protocol of pager.Reservation, applied to the
// single `next` field rather than the whole record.
func writeLeavesChained(w pager.Writer, chunks [][]Entry, cfg BuildConfig) ([]uint64, error) {
	addrs := make([]uint64, len(chunks))
	var prevAddr uint64

	for i, chunk := range chunks {
		n := &node{isLeaf: true, entries: chunk, prev: prevAddr}
		addr, err := writeNodeTo(w, n, cfg.MetadataKeys, cfg.LeafSlack)
		if err != nil {
			return nil, err
		}
		addrs[i] = addr

		if i > 0 {
			if err := w.Write(encodeU48(addr), addrs[i-1]+nextFieldOffset); err != nil {
				return nil, err
			}
		}
		prevAddr = addr
	}
	return addrs, nil
}

// nextFieldOffset is the byte offset of a leaf's `next` pointer within its
// on-disk record: 5 (outer byte_length+flags) + 1 (leaf flags byte) + 4
// (free_byte_length) + ptrSize (prev).
const nextFieldOffset = 5 + 1 + 4 + ptrSize

func encodeU48(v uint64) []byte {
	var b8 [8]byte
	binary.BigEndian.PutUint64(b8[:], v)
	return append([]byte(nil), b8[2:]...)
}

// boundary is a half-open [start, end) slice of the children/separators
// being folded into one parent.
type boundary struct{ start, end int }

// groupBoundaries splits n children into groups of groupSize, folding a
// final undersized group into its predecessor rather than leaving a
// routing node with too few entries (spec §4.4's rebalance rule). The
// merged trailing group can exceed groupSize; a tree built this way gets
// its excess trimmed the first time an ordinary insert touches that node.
func groupBoundaries(n, groupSize, minGroupSize int) []boundary {
	var bounds []boundary
	for i := 0; i < n; i += groupSize {
		end := i + groupSize
		if end > n {
			end = n
		}
		bounds = append(bounds, boundary{i, end})
	}
	if len(bounds) >= 2 {
		last := bounds[len(bounds)-1]
		if last.end-last.start < minGroupSize {
			prev := bounds[len(bounds)-2]
			bounds = append(bounds[:len(bounds)-2], boundary{prev.start, last.end})
		}
	}
	return bounds
}

// buildInternalLevel groups children and their separating keys under
// parents of up to maxEntries routing keys each (spec §4.4 step 2),
// returning the new level's addresses and the separators between them.
func buildInternalLevel(w pager.Writer, children []uint64, separators []matchValue, maxEntries int) ([]uint64, []matchValue, error) {
	bounds := groupBoundaries(len(children), maxEntries+1, maxEntries/2+1)

	parents := make([]uint64, 0, len(bounds))
	parentSeps := make([]matchValue, 0, len(bounds)-1)

	for gi, b := range bounds {
		groupChildren := append([]uint64(nil), children[b.start:b.end]...)

		var entries []Entry
		if b.end-b.start > 1 {
			seps := separators[b.start : b.end-1]
			entries = make([]Entry, len(seps))
			for j, s := range seps {
				entries[j] = Entry{Key: s}
			}
		}

		addr, err := writeNodeTo(w, &node{isLeaf: false, children: groupChildren, entries: entries}, nil, 0)
		if err != nil {
			return nil, nil, err
		}
		parents = append(parents, addr)
		if gi > 0 {
			parentSeps = append(parentSeps, separators[b.start-1])
		}
	}
	return parents, parentSeps, nil
}
