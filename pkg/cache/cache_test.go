package cache

import "testing"

type fakeNode struct {
	dirty bool
	val   int
}

func (n *fakeNode) IsDirty() bool   { return n.dirty }
func (n *fakeNode) SetDirty(d bool) { n.dirty = d }

func Test_Cache_GetF_LoadsOnMiss(t *testing.T) {
	loads := 0
	load := func(addr uint64) (*fakeNode, error) {
		loads++
		return &fakeNode{val: int(addr)}, nil
	}
	flush := func(addr uint64, n *fakeNode) error { return nil }

	c := NewCache[*fakeNode](10, load, flush)

	e, err := c.GetF(1, NONE)
	if err != nil {
		t.Fatalf("getf: %v", err)
	}
	assert(t, e.Get().val == 1, "expected val 1, got %d", e.Get().val)
	assert(t, loads == 1, "expected one load, got %d", loads)

	_, err = c.GetF(1, NONE)
	if err != nil {
		t.Fatalf("getf: %v", err)
	}
	assert(t, loads == 1, "expected cache hit to avoid a second load, got %d loads", loads)
}

func Test_Cache_EvictionFlushesDirty(t *testing.T) {
	flushed := map[uint64]bool{}
	load := func(addr uint64) (*fakeNode, error) { return &fakeNode{val: int(addr)}, nil }
	flush := func(addr uint64, n *fakeNode) error {
		flushed[addr] = true
		return nil
	}

	c := NewCache[*fakeNode](1, load, flush)

	e1, _ := c.GetF(1, NONE)
	e1.Set(&fakeNode{val: 100})

	_, _ = c.GetF(2, NONE)

	assert(t, flushed[1], "expected entry 1 to be flushed on eviction")
}

func Test_Cache_LockedEntrySurvivesEviction(t *testing.T) {
	load := func(addr uint64) (*fakeNode, error) { return &fakeNode{val: int(addr)}, nil }
	flush := func(addr uint64, n *fakeNode) error { return nil }

	c := NewCache[*fakeNode](1, load, flush)

	e1, _ := c.GetF(1, READ)
	defer c.Unlock(e1, READ)

	e2, err := c.GetF(2, NONE)
	if err != nil {
		t.Fatalf("getf: %v", err)
	}
	assert(t, e2.Get().val == 2, "expected entry 2 to load despite capacity 1")

	// entry 1 must still be reachable without a reload since it was locked
	// (not actually evicted), though the directory may now exceed capacity.
	e1again, err := c.GetF(1, NONE)
	if err != nil {
		t.Fatalf("getf: %v", err)
	}
	assert(t, e1again == e1, "expected same entry instance for still-locked node")
}

func assert(t *testing.T, cond bool, msg string, args ...interface{}) {
	if cond {
		return
	}
	t.Errorf(msg, args...)
}
