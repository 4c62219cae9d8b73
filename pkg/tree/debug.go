package tree

import (
	"fmt"

	"idxengine/pkg/cache"
	"idxengine/pkg/codec"
)

// Print dumps the tree's node structure to stdout, grounded on the
// teacher's bptree.go Print/print pair — useful when chasing down a
// routing or chain-linkage bug by eye.
func (t *Tree) Print() {
	fmt.Println("============= tree =============")
	t.print(t.root, 0)
	fmt.Println("free space: ", t.fst.Total(), "bytes")
	fmt.Println("=================================")
}

func (t *Tree) print(addr uint64, indent int) {
	e, err := t.cache.GetF(addr, cache.READ)
	if err != nil {
		fmt.Printf("%*s<error reading %d: %v>\n", indent, "", addr, err)
		return
	}
	n := e.Get()
	pad := fmt.Sprintf("%*s", indent, "")

	if n.isLeaf {
		keys := make([]string, len(n.entries))
		for i, en := range n.entries {
			keys[i] = fmt.Sprintf("%v(x%d)", describeKey(en.Key), len(en.Values))
		}
		fmt.Printf("%sleaf@%d prev=%d next=%d entries=%v\n", pad, addr, n.prev, n.next, keys)
		t.cache.Unlock(e, cache.READ)
		return
	}

	children := append([]uint64(nil), n.children...)
	seps := make([]string, len(n.entries))
	for i, en := range n.entries {
		seps[i] = describeKey(en.Key)
	}
	fmt.Printf("%sinternal@%d separators=%v\n", pad, addr, seps)
	t.cache.Unlock(e, cache.READ)

	for _, c := range children {
		t.print(c, indent+2)
	}
}

func describeKey(k codec.Key) string {
	switch k.Tag {
	case codec.TagString:
		return k.Str
	case codec.TagNumberInt:
		return fmt.Sprintf("%d", k.Int)
	case codec.TagNumberFloat:
		return fmt.Sprintf("%g", k.Float)
	case codec.TagBoolean:
		return fmt.Sprintf("%t", k.Bool)
	default:
		return fmt.Sprintf("%#v", k)
	}
}

// VerifyInvariants checks spec §8's structural invariants against a live
// tree: leaf entries strictly ascending with `leaf.last < leaf.next.first`,
// the doubly-linked chain agreeing in both directions, and every internal
// routing key equal to the smallest key of its greater-than-or-equal
// subtree. It returns false (rather than erroring) on the first violation,
// matching the teacher's CheckConsistency panic-and-report style but
// without the panic, since this is meant to be asserted on in tests.
func (t *Tree) VerifyInvariants() bool {
	ok := true
	var prevLeafLastKey *codec.Key

	var walk func(addr uint64) (minKey codec.Key, hasMin bool)
	walk = func(addr uint64) (codec.Key, bool) {
		e, err := t.cache.GetF(addr, cache.READ)
		if err != nil {
			ok = false
			return codec.Key{}, false
		}
		n := e.Get()

		if n.isLeaf {
			for i := 1; i < len(n.entries); i++ {
				if codec.Compare(n.entries[i-1].Key, n.entries[i].Key, t.opts.CaseSensitive) >= 0 {
					ok = false
				}
			}
			if len(n.entries) > 0 && prevLeafLastKey != nil {
				if codec.Compare(*prevLeafLastKey, n.entries[0].Key, t.opts.CaseSensitive) >= 0 {
					ok = false
				}
			}
			if len(n.entries) > 0 {
				last := n.entries[len(n.entries)-1].Key
				prevLeafLastKey = &last
			}

			if n.next != nilPtr {
				ne, err := t.cache.GetF(n.next, cache.READ)
				if err != nil || ne.Get().prev != addr {
					ok = false
				} else {
					t.cache.Unlock(ne, cache.READ)
				}
			}

			t.cache.Unlock(e, cache.READ)
			if len(n.entries) == 0 {
				return codec.Key{}, false
			}
			return n.entries[0].Key, true
		}

		children := append([]uint64(nil), n.children...)
		seps := make([]codec.Key, len(n.entries))
		for i, en := range n.entries {
			seps[i] = en.Key
		}
		t.cache.Unlock(e, cache.READ)

		for i, c := range children {
			childMin, has := walk(c)
			if i > 0 && has {
				if codec.Compare(childMin, seps[i-1], t.opts.CaseSensitive) != 0 {
					ok = false
				}
			}
		}
		if len(children) > 0 {
			return walk0Min(children[0], t)
		}
		return codec.Key{}, false
	}

	walk(t.root)
	return ok
}

// walk0Min returns the leftmost leaf key under addr without re-running the
// full invariant check, used by VerifyInvariants to recover a subtree's
// minimum key for its parent's routing-key comparison.
func walk0Min(addr uint64, t *Tree) (codec.Key, bool) {
	e, err := t.cache.GetF(addr, cache.READ)
	if err != nil {
		return codec.Key{}, false
	}
	n := e.Get()
	if n.isLeaf {
		defer t.cache.Unlock(e, cache.READ)
		if len(n.entries) == 0 {
			return codec.Key{}, false
		}
		return n.entries[0].Key, true
	}
	child := n.children[0]
	t.cache.Unlock(e, cache.READ)
	return walk0Min(child, t)
}
