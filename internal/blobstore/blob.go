package blobstore

import (
	"io"
	"sync"

	"github.com/thezedwards/cryfs/internal/block"
	"github.com/thezedwards/cryfs/internal/blockstore"
	"github.com/thezedwards/cryfs/internal/writecoalescing"
)

// coalesceThreshold bounds how large a single write may be before it
// bypasses the coalescing buffer and is written straight through; it is
// set per blob and is larger than writecoalescing's DefaultCoalesceThreshold.
const coalesceThreshold = 4096

// Blob is a balanced tree of blocks addressed by its root id. All leaves
// sit at equal depth; the root id never changes across a grow or shrink,
// even though the block it names may be rewritten many times.
type Blob struct {
	store blockstore.BlockStore
	geom  Geometry
	root  *treeNode
	size  uint64

	wb  *writecoalescing.WriteBuffer
	seq int64

	cachedLeaf      *treeNode
	cachedLeafIndex uint64
	cachedLeafValid bool

	mu sync.Mutex
}

func newBlob(store blockstore.BlockStore, geom Geometry, root *treeNode) *Blob {
	b := &Blob{store: store, geom: geom, root: root, size: root.logicalSize}
	cfg := &writecoalescing.CoalesceConfig{
		Threshold: coalesceThreshold,
		Timeout:   writecoalescing.DefaultCoalesceTimeout,
		MaxSize:   int(geom.LeafMaxBytes),
		Enabled:   true,
	}
	b.wb = writecoalescing.NewWriteBuffer(cfg, func(data []byte, offset int64) error {
		return b.writeThrough(data, uint64(offset))
	})
	return b
}

// Create allocates a single empty leaf block and returns a new Blob rooted
// on it.
func Create(store blockstore.BlockStore, geom Geometry) (*Blob, error) {
	root := &treeNode{depth: 0, payload: nil, logicalSize: 0}
	id, err := store.Create(root.marshal())
	if err != nil {
		return nil, err
	}
	root.id = id
	return newBlob(store, geom, root), nil
}

// Load fetches the root block named by rootID and returns the Blob rooted
// on it.
func Load(store blockstore.BlockStore, geom Geometry, rootID block.ID) (*Blob, error) {
	raw, err := store.Load(rootID)
	if err == blockstore.ErrNotFound {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	root, err := unmarshalNode(geom, rootID, raw)
	if err != nil {
		return nil, err
	}
	return newBlob(store, geom, root), nil
}

// Remove deletes every block of the blob named by rootID, depth-first,
// root last: an interrupted remove never orphans blocks, because the root
// (consulted first on the next mount) is only deleted once everything
// beneath it is already gone.
func Remove(store blockstore.BlockStore, geom Geometry, rootID block.ID) error {
	raw, err := store.Load(rootID)
	if err == blockstore.ErrNotFound {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	root, err := unmarshalNode(geom, rootID, raw)
	if err != nil {
		return err
	}
	b := &Blob{store: store, geom: geom, root: root}
	if root.depth > 0 {
		for _, c := range root.children {
			if err := b.removeSubtree(c, root.depth-1); err != nil {
				return err
			}
		}
	}
	return store.Remove(rootID)
}

// Size returns the blob's current logical size in bytes.
func (b *Blob) Size() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Key returns the blob's root id, its stable external name.
func (b *Blob) Key() block.ID {
	return b.root.id
}

// Read copies min(len(dst), size()-offset) bytes starting at offset into
// dst, returning io.EOF (with a short count) once offset reaches the end
// of the blob. A read error from the block store is always fatal.
func (b *Blob) Read(dst []byte, offset uint64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.wb.Flush(); err != nil {
		return 0, err
	}
	if offset >= b.size {
		return 0, io.EOF
	}
	want := uint64(len(dst))
	var total uint64
	for total < want && offset+total < b.size {
		pos := offset + total
		leafIndex := pos / b.geom.LeafMaxBytes
		leafOffset := pos % b.geom.LeafMaxBytes
		leaf, err := b.navigateToLeaf(leafIndex)
		if err != nil {
			return int(total), err
		}
		avail := uint64(len(leaf.payload)) - leafOffset
		n := want - total
		if avail < n {
			n = avail
		}
		if rem := b.size - pos; rem < n {
			n = rem
		}
		copy(dst[total:total+n], leaf.payload[leafOffset:leafOffset+n])
		total += n
	}
	if total < want {
		return int(total), io.EOF
	}
	return int(total), nil
}

// Write stores len(data) bytes starting at offset, growing the blob first
// if offset+len(data) exceeds the current size. Sequential writes are
// coalesced through a small buffer before they reach the tree; a
// non-sequential write flushes the buffer and bypasses it.
func (b *Blob) Write(data []byte, offset uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if int64(offset) != b.seq {
		if err := b.wb.Flush(); err != nil {
			return err
		}
		b.seq = int64(offset)
	}
	if err := b.wb.Write(data, int64(offset)); err != nil {
		return err
	}
	b.seq += int64(len(data))
	return nil
}

// Resize sets the blob's logical size, growing (new range reads as zero)
// or shrinking (drops blocks) as needed.
func (b *Blob) Resize(newSize uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.wb.Flush(); err != nil {
		return err
	}
	switch {
	case newSize == b.size:
		return nil
	case newSize > b.size:
		return b.growTo(newSize)
	default:
		b.invalidateLeafCache()
		if err := b.shrinkSubtree(b.root, newSize); err != nil {
			return err
		}
		if err := b.collapseRoot(); err != nil {
			return err
		}
		b.size = newSize
		return nil
	}
}

// Flush propagates every dirty node and the coalescing buffer down to the
// block store, and asks the store to durably persist them.
func (b *Blob) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.wb.Flush(); err != nil {
		return err
	}
	return b.store.Flush()
}

// persist writes node to the store: Create if it has never been assigned
// an id, Store (same id) otherwise. This is what keeps a blob's root id
// stable across every grow and shrink - the root always already has an id,
// so every subsequent rewrite reuses it.
func (b *Blob) persist(node *treeNode) error {
	data := node.marshal()
	if node.id.IsZero() {
		id, err := b.store.Create(data)
		if err != nil {
			return err
		}
		node.id = id
	} else if err := b.store.Store(node.id, data); err != nil {
		return err
	}
	node.dirty = false
	return nil
}

func (b *Blob) loadChildNode(parent *treeNode, idx uint64) (*treeNode, error) {
	id := parent.children[idx]
	raw, err := b.store.Load(id)
	if err != nil {
		return nil, err
	}
	return unmarshalNode(b.geom, id, raw)
}

func (b *Blob) invalidateLeafCache() {
	b.cachedLeafValid = false
	b.cachedLeaf = nil
}

// navigateToLeaf walks from the root to the leaf at leafIndex, consulting
// (and refreshing) the most-recently-accessed leaf cache first.
func (b *Blob) navigateToLeaf(leafIndex uint64) (*treeNode, error) {
	if b.cachedLeafValid && b.cachedLeafIndex == leafIndex {
		return b.cachedLeaf, nil
	}
	var leaf *treeNode
	if b.root.depth == 0 {
		if leafIndex != 0 {
			return nil, errLeafIndexOutOfRange
		}
		leaf = b.root
	} else {
		path := leafPath(b.root.depth, b.geom.InnerFanout, leafIndex)
		node := b.root
		for _, idx := range path {
			if idx >= uint64(len(node.children)) {
				return nil, errLeafIndexOutOfRange
			}
			child, err := b.loadChildNode(node, idx)
			if err != nil {
				return nil, err
			}
			node = child
		}
		leaf = node
	}
	b.cachedLeaf = leaf
	b.cachedLeafIndex = leafIndex
	b.cachedLeafValid = true
	return leaf, nil
}

// writeThrough is the coalescing buffer's flush callback: it grows the
// tree if necessary, then writes data into however many leaves it spans.
func (b *Blob) writeThrough(data []byte, offset uint64) error {
	if len(data) == 0 {
		return nil
	}
	end := offset + uint64(len(data))
	if end > b.size {
		if err := b.growTo(end); err != nil {
			return err
		}
	}
	remaining := data
	pos := offset
	for len(remaining) > 0 {
		leafIndex := pos / b.geom.LeafMaxBytes
		leafOffset := pos % b.geom.LeafMaxBytes
		leaf, err := b.navigateToLeaf(leafIndex)
		if err != nil {
			return err
		}
		n := uint64(len(leaf.payload)) - leafOffset
		if n > uint64(len(remaining)) {
			n = uint64(len(remaining))
		}
		copy(leaf.payload[leafOffset:leafOffset+n], remaining[:n])
		leaf.dirty = true
		if err := b.persist(leaf); err != nil {
			return err
		}
		remaining = remaining[n:]
		pos += n
	}
	return nil
}

// growTo raises the tree's depth if needed (keeping the root id stable by
// swapping its content into a new child) and then extends the rightmost
// path with zero-filled blocks until the blob spans newSize bytes.
func (b *Blob) growTo(newSize uint64) error {
	targetDepth := b.geom.depthFor(newSize)
	for b.root.depth < targetDepth {
		if err := b.raiseRoot(); err != nil {
			return err
		}
	}
	b.invalidateLeafCache()
	if err := b.setSubtreeSize(b.root, newSize); err != nil {
		return err
	}
	b.size = newSize
	return nil
}

// raiseRoot increases the tree's depth by one level without changing the
// root's id: the root's current content moves into a freshly created
// child, and the root is rewritten in place as an inner node with that one
// child.
func (b *Blob) raiseRoot() error {
	if b.root.logicalSize == 0 {
		// An empty root has no content to move into a child: it just
		// becomes a childless inner node one level deeper, which
		// setSubtreeSize then fills with fresh children.
		b.root.depth++
		b.root.payload = nil
		b.root.children = nil
		b.root.dirty = true
		return b.persist(b.root)
	}
	child := &treeNode{
		depth:       b.root.depth,
		payload:     b.root.payload,
		children:    b.root.children,
		logicalSize: b.root.logicalSize,
	}
	if err := b.persist(child); err != nil {
		return err
	}
	b.root.depth++
	b.root.payload = nil
	b.root.children = []block.ID{child.id}
	b.root.dirty = true
	return b.persist(b.root)
}

// setSubtreeSize grows node (a leaf or inner node already at the correct
// depth for newSize's target) so its logical size becomes newSize,
// zero-filling any newly created range. newSize must be >= node's current
// logical size.
func (b *Blob) setSubtreeSize(node *treeNode, newSize uint64) error {
	if node.depth == 0 {
		if newSize > b.geom.LeafMaxBytes {
			return errSubtreeTooLarge
		}
		extended := make([]byte, newSize)
		copy(extended, node.payload)
		node.payload = extended
		node.logicalSize = newSize
		node.dirty = true
		return b.persist(node)
	}

	childCap := b.geom.capacityAtDepth(node.depth - 1)
	oldCount := uint64(len(node.children))
	newCount := childCountAtSize(childCap, newSize)

	if newCount == oldCount {
		if oldCount > 0 {
			lastIdx := oldCount - 1
			child, err := b.loadChildNode(node, lastIdx)
			if err != nil {
				return err
			}
			lastSize := newSize - lastIdx*childCap
			if err := b.setSubtreeSize(child, lastSize); err != nil {
				return err
			}
			node.children[lastIdx] = child.id
		}
	} else {
		if oldCount > 0 {
			lastIdx := oldCount - 1
			child, err := b.loadChildNode(node, lastIdx)
			if err != nil {
				return err
			}
			if err := b.setSubtreeSize(child, childCap); err != nil {
				return err
			}
			node.children[lastIdx] = child.id
		}
		for i := oldCount; i+1 < newCount; i++ {
			fresh := &treeNode{depth: node.depth - 1}
			if err := b.setSubtreeSize(fresh, childCap); err != nil {
				return err
			}
			node.children = append(node.children, fresh.id)
		}
		lastIdx := newCount - 1
		lastSize := newSize - lastIdx*childCap
		fresh := &treeNode{depth: node.depth - 1}
		if err := b.setSubtreeSize(fresh, lastSize); err != nil {
			return err
		}
		node.children = append(node.children, fresh.id)
	}
	node.logicalSize = newSize
	node.dirty = true
	return b.persist(node)
}

// shrinkSubtree trims node down to newSize, removing every block freed in
// the process from the store.
func (b *Blob) shrinkSubtree(node *treeNode, newSize uint64) error {
	if node.depth == 0 {
		node.payload = node.payload[:newSize]
		node.logicalSize = newSize
		node.dirty = true
		return b.persist(node)
	}

	childCap := b.geom.capacityAtDepth(node.depth - 1)
	oldCount := uint64(len(node.children))
	newCount := childCountAtSize(childCap, newSize)

	for i := oldCount; i > newCount; i-- {
		if err := b.removeSubtree(node.children[i-1], node.depth-1); err != nil {
			return err
		}
	}
	node.children = node.children[:newCount]

	if newCount > 0 {
		lastIdx := newCount - 1
		child, err := b.loadChildNode(node, lastIdx)
		if err != nil {
			return err
		}
		lastSize := newSize - lastIdx*childCap
		if err := b.shrinkSubtree(child, lastSize); err != nil {
			return err
		}
		node.children[lastIdx] = child.id
	}
	node.logicalSize = newSize
	node.dirty = true
	return b.persist(node)
}

// collapseRoot repeatedly replaces the root's content with its sole
// child's content while the root has at most one child left, decreasing
// the tree's depth without changing the root's id. A root with zero
// children (reached by shrinking to size 0) collapses directly to an
// empty leaf rather than being left as a childless inner node, so a
// zero-size blob is always the single empty leaf the rest of the package
// assumes.
func (b *Blob) collapseRoot() error {
	for b.root.depth > 0 && len(b.root.children) <= 1 {
		if len(b.root.children) == 0 {
			b.root.depth = 0
			b.root.payload = nil
			b.root.children = nil
			b.root.logicalSize = 0
			b.root.dirty = true
			return b.persist(b.root)
		}
		childID := b.root.children[0]
		raw, err := b.store.Load(childID)
		if err != nil {
			return err
		}
		child, err := unmarshalNode(b.geom, childID, raw)
		if err != nil {
			return err
		}
		b.root.depth = child.depth
		b.root.payload = child.payload
		b.root.children = child.children
		b.root.logicalSize = child.logicalSize
		b.root.dirty = true
		if err := b.persist(b.root); err != nil {
			return err
		}
		if err := b.store.Remove(childID); err != nil {
			return err
		}
	}
	return nil
}

// removeSubtree deletes every block of the subtree rooted at id
// (depth-first, children before the node itself).
func (b *Blob) removeSubtree(id block.ID, depth uint8) error {
	if depth > 0 {
		raw, err := b.store.Load(id)
		if err != nil {
			return err
		}
		n, err := unmarshalNode(b.geom, id, raw)
		if err != nil {
			return err
		}
		for _, c := range n.children {
			if err := b.removeSubtree(c, depth-1); err != nil {
				return err
			}
		}
	}
	return b.store.Remove(id)
}
