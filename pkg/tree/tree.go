package tree

import (
	"encoding/binary"
	"sync"

	idxcache "idxengine/pkg/cache"
	"idxengine/pkg/codec"
	"idxengine/pkg/customerrors"
	"idxengine/pkg/fst"
	"idxengine/pkg/pager"

	"github.com/pkg/errors"
)

// Tree is an on-disk B+ tree over a tree-region byte range inside an index
// file (spec §4.3). regionStart is the absolute file offset the tree
// region begins at (just past the envelope header, spec §4.7). Pointers
// stored inside nodes are absolute file offsets, not offsets from
// regionStart.
type Tree struct {
	mu          sync.RWMutex
	file        *pager.File
	regionStart uint64

	opts  Options
	fst   *fst.Tracker
	cache *idxcache.Cache[*node]

	root  uint64
	sizes map[uint64]uint32 // addr -> reserved on-disk size, for in-place fit checks
}

// Open loads (or initializes, if the region is empty) a tree over f
// starting at regionStart.
func Open(f *pager.File, regionStart uint64, opts Options) (*Tree, error) {
	t := &Tree{
		file:        f,
		regionStart: regionStart,
		opts:        opts,
		fst:         fst.New(),
		sizes:       make(map[uint64]uint32),
	}
	t.cache = idxcache.NewCache[*node](10000, t.load, t.persist)

	if f.Size() <= regionStart {
		return t, t.initEmpty()
	}
	return t, t.openExisting()
}

func (t *Tree) initEmpty() error {
	if err := t.file.WriteAt(make([]byte, headerReserve), t.regionStart); err != nil {
		return err
	}
	root := &node{isLeaf: true, addr: 0, dirty: true}
	addr, err := t.writeFresh(root)
	if err != nil {
		return err
	}
	t.root = addr
	return t.writeRootPointer(addr)
}

// openExisting reads the root pointer persisted at the very start of the
// tree region (u48). The FST is not persisted and is not rebuilt here: it
// starts empty (see rebuildFST).
func (t *Tree) openExisting() error {
	r := pager.NewReader(t.file)
	r.Go(t.regionStart)
	root, err := r.GetUint48()
	if err != nil {
		return errors.Wrap(err, "tree: failed to read root pointer")
	}
	t.root = root
	return t.rebuildFST()
}

// rebuildFST does nothing: no node is walked and no free extent is derived
// from the file, so a reopened tree starts with an empty FST and reuses
// only the extents persist releases while it is open. Free space left in
// the file by an earlier process is not reclaimed.
func (t *Tree) rebuildFST() error {
	// sizes is populated lazily as nodes are loaded. This keeps Open()
	// cheap for large trees.
	return nil
}

func (t *Tree) Close() error {
	return t.cache.Flush()
}

// rootPointerOffset is where the current root's address is persisted, at
// the very start of the tree region, so Open can find it without walking
// anything.
func (t *Tree) rootPointerOffset() uint64 { return t.regionStart }

func (t *Tree) writeRootPointer(addr uint64) error {
	var buf [ptrSize]byte
	var b8 [8]byte
	binary.BigEndian.PutUint64(b8[:], addr)
	copy(buf[:], b8[2:])
	return t.file.WriteAt(buf[:], t.rootPointerOffset())
}

const headerReserve = uint64(ptrSize) // root pointer slot at region start

func (t *Tree) load(addr uint64) (*node, error) {
	r := pager.NewReader(t.file)
	r.Go(addr)

	blen, err := r.GetUint32()
	if err != nil {
		return nil, errors.Wrap(err, "tree: read node byte_length")
	}
	flags, err := r.GetByte()
	if err != nil {
		return nil, errors.Wrap(err, "tree: read node flags")
	}
	payload, err := r.Get(int(blen))
	if err != nil {
		return nil, errors.Wrap(err, "tree: read node payload")
	}

	t.sizes[addr] = blen + 5

	var n *node
	if flags&flagLeaf != 0 {
		n, err = unmarshalLeaf(payload, t.opts.MetadataKeys)
	} else {
		n, err = unmarshalInternal(payload)
	}
	if err != nil {
		return nil, err
	}
	n.addr = addr
	n.isLeaf = flags&flagLeaf != 0
	return n, nil
}

func (t *Tree) encode(n *node) ([]byte, error) {
	if n.isLeaf {
		return marshalLeaf(n, t.opts.MetadataKeys)
	}
	return marshalInternal(n)
}

// persist is the cache's Flusher: rewrite n in place if it still fits its
// previously reserved extent, otherwise relocate via the FST.
func (t *Tree) persist(addr uint64, n *node) error {
	payload, err := t.encode(n)
	if err != nil {
		return err
	}

	flags := uint8(0)
	if n.isLeaf {
		flags = flagLeaf
	}

	total := uint32(5 + len(payload))
	if slack := t.leafSlack(len(payload)); n.isLeaf {
		total += slack
	}

	reserved, ok := t.sizes[addr]
	if ok && total <= reserved {
		return t.writeAt(addr, flags, payload, reserved)
	}

	newAddr, err := t.allocate(total)
	if err != nil {
		return err
	}
	if err := t.writeAt(newAddr, flags, payload, total); err != nil {
		return err
	}

	if ok {
		t.fst.Release(addr, reserved)
		delete(t.sizes, addr)
	}
	t.sizes[newAddr] = total

	if newAddr != addr {
		if err := t.relocate(addr, newAddr, n); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) leafSlack(payloadLen int) uint32 {
	return uint32(float64(payloadLen) * t.opts.LeafSlackFraction)
}

func (t *Tree) writeAt(addr uint64, flags uint8, payload []byte, reserved uint32) error {
	var hdr [5]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(len(payload)))
	hdr[4] = flags

	buf := make([]byte, 0, reserved)
	buf = append(buf, hdr[:]...)
	buf = append(buf, payload...)
	if pad := int(reserved) - len(buf); pad > 0 {
		buf = append(buf, make([]byte, pad)...)
	}
	return t.file.WriteAt(buf, addr)
}

// allocate reserves `size` bytes for a node, claiming from the FST first
// and falling back to appending past the current file end.
func (t *Tree) allocate(size uint32) (uint64, error) {
	if addr, err := t.fst.Claim(size); err == nil {
		return addr, nil
	}
	return t.file.Append(make([]byte, 0))
}

// relocate updates whatever points at oldAddr (parent child slot, sibling
// prev/next, or the root pointer) to point at newAddr instead, and
// refreshes the moved node's own address-dependent neighbors.
func (t *Tree) relocate(oldAddr, newAddr uint64, moved *node) error {
	if oldAddr == t.root {
		t.root = newAddr
		if err := t.writeRootPointer(newAddr); err != nil {
			return err
		}
	}
	moved.addr = newAddr

	if moved.isLeaf {
		if moved.prev != nilPtr {
			if err := t.fixupNeighborPointer(moved.prev, oldAddr, newAddr, true); err != nil {
				return err
			}
		}
		if moved.next != nilPtr {
			if err := t.fixupNeighborPointer(moved.next, oldAddr, newAddr, false); err != nil {
				return err
			}
		}
	}

	return t.fixupParentChild(oldAddr, newAddr)
}

func (t *Tree) fixupNeighborPointer(neighborAddr, oldAddr, newAddr uint64, neighborIsPrev bool) error {
	e, err := t.cache.GetF(neighborAddr, idxcache.WRITE)
	if err != nil {
		return err
	}
	defer t.cache.Unlock(e, idxcache.WRITE)

	nb := e.Get()
	if neighborIsPrev {
		if nb.next == oldAddr {
			nb.next = newAddr
		}
	} else {
		if nb.prev == oldAddr {
			nb.prev = newAddr
		}
	}
	e.Set(nb)
	return nil
}

// fixupParentChild walks from root looking for a child pointer equal to
// oldAddr and rewrites it; a no-op (returns nil) if oldAddr was the root
// itself (already handled in relocate).
func (t *Tree) fixupParentChild(oldAddr, newAddr uint64) error {
	if oldAddr == t.root {
		return nil
	}
	return t.rewriteChildPointer(t.root, oldAddr, newAddr)
}

func (t *Tree) rewriteChildPointer(at, oldAddr, newAddr uint64) error {
	e, err := t.cache.GetF(at, idxcache.WRITE)
	if err != nil {
		return err
	}
	n := e.Get()
	if n.isLeaf {
		t.cache.Unlock(e, idxcache.WRITE)
		return nil
	}

	for i, c := range n.children {
		if c == oldAddr {
			n.children[i] = newAddr
			e.Set(n)
			t.cache.Unlock(e, idxcache.WRITE)
			return nil
		}
	}

	children := append([]uint64(nil), n.children...)
	t.cache.Unlock(e, idxcache.WRITE)

	for _, c := range children {
		if err := t.rewriteChildPointer(c, oldAddr, newAddr); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) writeFresh(n *node) (uint64, error) {
	payload, err := t.encode(n)
	if err != nil {
		return 0, err
	}
	total := uint32(5 + len(payload))
	if n.isLeaf {
		total += t.leafSlack(len(payload))
	}
	addr, err := t.allocate(total)
	if err != nil {
		return 0, err
	}
	flags := uint8(0)
	if n.isLeaf {
		flags = flagLeaf
	}
	if err := t.writeAt(addr, flags, payload, total); err != nil {
		return 0, err
	}
	t.sizes[addr] = total
	n.addr = addr
	n.dirty = false
	return addr, nil
}

func (t *Tree) validateKey(k codec.Key) error {
	enc, err := codec.Encode(k)
	if err != nil {
		return err
	}
	if len(enc) > t.opts.MaxKeySize {
		return customerrors.ErrKeyTooLarge
	}
	return nil
}
