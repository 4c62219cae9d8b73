package tree

import (
	"idxengine/pkg/cache"
	"idxengine/pkg/codec"
	"idxengine/pkg/customerrors"
)

// Find returns every Value stored under key, or ErrKeyNotFound (spec §4.3:
// "returns empty if absent" — callers that want the strict error use this,
// Search with OpEq returns the empty-slice form).
func (t *Tree) Find(key codec.Key) ([]Value, error) {
	if err := t.validateKey(key); err != nil {
		return nil, err
	}

	leaf, err := t.findLeaf(key, cache.READ)
	if err != nil {
		return nil, err
	}
	defer t.cache.Unlock(leaf, cache.READ)

	for _, e := range leaf.Get().entries {
		if codec.Compare(e.Key, key, t.opts.CaseSensitive) == 0 {
			return e.Values, nil
		}
	}
	return nil, customerrors.ErrKeyNotFound
}

// findLeaf descends from the root to the leaf that would contain key,
// locking it with flag and leaving every internal node it passed through
// unlocked (spec's concurrency model locks only the tree-file handle as a
// whole via the cache's own bookkeeping, not a latch per level).
func (t *Tree) findLeaf(key codec.Key, flag cache.LOCKMODE) (*cache.Entry[*node], error) {
	addr := t.root
	for {
		e, err := t.cache.GetF(addr, cache.READ)
		if err != nil {
			return nil, err
		}
		n := e.Get()

		if n.isLeaf {
			if flag == cache.READ {
				return e, nil
			}
			t.cache.Unlock(e, cache.READ)
			return t.cache.GetF(addr, flag)
		}

		child := t.routeChild(n, key)
		t.cache.Unlock(e, cache.READ)
		addr = child
	}
}

// routeChild picks the child pointer for key: the less-than child of the
// first entry whose key is > the search key, or the greatest-than-or-equal
// child if key is >= every routing key (spec §3's routing invariant).
func (t *Tree) routeChild(n *node, key codec.Key) uint64 {
	for i, e := range n.entries {
		if codec.Compare(key, e.Key, t.opts.CaseSensitive) < 0 {
			return n.children[i]
		}
	}
	return n.children[len(n.entries)]
}

// leftmostLeaf descends from the root along each node's first child to the
// leftmost leaf; used by range and full scans.
func (t *Tree) leftmostLeaf() (*cache.Entry[*node], error) {
	addr := t.root
	for {
		e, err := t.cache.GetF(addr, cache.READ)
		if err != nil {
			return nil, err
		}
		n := e.Get()
		if n.isLeaf {
			return e, nil
		}
		next := n.children[0]
		t.cache.Unlock(e, cache.READ)
		addr = next
	}
}

// Add inserts one (key, rp, meta) Value, creating the Entry if key is new
// (spec §4.3 `add`).
func (t *Tree) Add(key codec.Key, rp codec.RecordPointer, meta []codec.Key) error {
	if err := t.validateKey(key); err != nil {
		return err
	}

	e, err := t.findLeaf(key, cache.WRITE)
	if err != nil {
		return err
	}
	leaf := e.Get()

	idx, found := t.searchEntry(leaf, key)
	if found {
		leaf.entries[idx].Values = append(leaf.entries[idx].Values, Value{Pointer: rp, Metadata: meta})
	} else {
		newEntry := Entry{Key: key, Values: []Value{{Pointer: rp, Metadata: meta}}}
		leaf.entries = append(leaf.entries, Entry{})
		copy(leaf.entries[idx+1:], leaf.entries[idx:])
		leaf.entries[idx] = newEntry
	}

	overflow := len(leaf.entries) > t.opts.MaxEntriesPerNode
	e.Set(leaf)
	t.cache.Unlock(e, cache.WRITE)

	if overflow {
		return t.splitLeaf(leaf.addr)
	}
	return nil
}

// searchEntry returns the index of key within n's sorted entries, and
// whether it was found (insertion index otherwise), mirroring
// bptree/node.go's binary-search `search`.
func (t *Tree) searchEntry(n *node, key codec.Key) (int, bool) {
	lo, hi := 0, len(n.entries)
	for lo < hi {
		mid := (lo + hi) / 2
		c := codec.Compare(n.entries[mid].Key, key, t.opts.CaseSensitive)
		switch {
		case c == 0:
			return mid, true
		case c < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

// Remove deletes one Value (matched by its RecordPointer) from key's
// Entry. If the Entry becomes empty it is removed; if the leaf becomes
// empty it is unlinked from the chain but not merged (spec §4.3:
// "Underfull leaves are not merged eagerly; rebuild reclaims").
func (t *Tree) Remove(key codec.Key, rp codec.RecordPointer) error {
	if err := t.validateKey(key); err != nil {
		return err
	}

	e, err := t.findLeaf(key, cache.WRITE)
	if err != nil {
		return err
	}
	leaf := e.Get()

	idx, found := t.searchEntry(leaf, key)
	if !found {
		t.cache.Unlock(e, cache.WRITE)
		return customerrors.ErrKeyNotFound
	}

	vals := leaf.entries[idx].Values
	kept := vals[:0]
	for _, v := range vals {
		if !pointerEqual(v.Pointer, rp) {
			kept = append(kept, v)
		}
	}
	leaf.entries[idx].Values = kept

	if len(kept) == 0 {
		leaf.entries = append(leaf.entries[:idx], leaf.entries[idx+1:]...)
	}

	becameEmpty := len(leaf.entries) == 0
	e.Set(leaf)
	t.cache.Unlock(e, cache.WRITE)

	if becameEmpty {
		return t.unlinkLeaf(leaf.addr)
	}
	return nil
}

func pointerEqual(a, b codec.RecordPointer) bool {
	if a.Key != b.Key || len(a.Wildcards) != len(b.Wildcards) {
		return false
	}
	for i := range a.Wildcards {
		if a.Wildcards[i] != b.Wildcards[i] {
			return false
		}
	}
	return true
}

// Update removes oldRP and adds newRP under key as a Remove followed by an
// Add, each descending to the leaf on its own, per spec §4.3's
// "equivalent to remove+add on the same leaf" (and §5's
// ordering guarantee: removes before matching adds within one logical
// update).
func (t *Tree) Update(key codec.Key, newRP, oldRP codec.RecordPointer, meta []codec.Key) error {
	if err := t.Remove(key, oldRP); err != nil && err != customerrors.ErrKeyNotFound {
		return err
	}
	return t.Add(key, newRP, meta)
}

func (t *Tree) unlinkLeaf(addr uint64) error {
	e, err := t.cache.GetF(addr, cache.WRITE)
	if err != nil {
		return err
	}
	n := e.Get()
	prev, next := n.prev, n.next
	t.cache.Unlock(e, cache.WRITE)

	if prev != nilPtr {
		if err := t.setNeighbor(prev, false, next); err != nil {
			return err
		}
	}
	if next != nilPtr {
		if err := t.setNeighbor(next, true, prev); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) setNeighbor(addr uint64, setPrev bool, val uint64) error {
	e, err := t.cache.GetF(addr, cache.WRITE)
	if err != nil {
		return err
	}
	defer t.cache.Unlock(e, cache.WRITE)
	n := e.Get()
	if setPrev {
		n.prev = val
	} else {
		n.next = val
	}
	e.Set(n)
	return nil
}
