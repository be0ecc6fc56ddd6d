// Package blobstore implements the Blob-on-Blocks tree: a balanced tree of
// blocks, leaves holding payload bytes and inner nodes holding child block
// ids, all leaves at equal depth, with a root id that stays stable across
// grow and shrink operations.
package blobstore

import "github.com/thezedwards/cryfs/internal/block"

// Geometry fixes the two numbers every size/offset computation in a blob
// is derived from: how many payload bytes fit in a leaf, and how many
// child ids fit in an inner node. It is computed once from the configured
// block size and never recomputed from a different source afterwards, so
// the header byte layout can never drift out from under an existing tree.
type Geometry struct {
	LeafMaxBytes uint64
	InnerFanout  uint64
}

// GeometryFor derives a Geometry from a block store's fixed block size.
func GeometryFor(blockSizeBytes int) Geometry {
	payload := uint64(blockSizeBytes) - uint64(block.HeaderLen)
	return Geometry{
		LeafMaxBytes: payload,
		InnerFanout:  payload / uint64(block.IDLen),
	}
}

// capacityAtDepth returns the number of logical bytes a full subtree
// rooted at a node of the given depth can hold. Depth 0 is a leaf.
func (g Geometry) capacityAtDepth(depth uint8) uint64 {
	cap := g.LeafMaxBytes
	for i := uint8(0); i < depth; i++ {
		cap *= g.InnerFanout
	}
	return cap
}

// depthFor returns the minimum tree depth whose full capacity is at least
// size logical bytes.
func (g Geometry) depthFor(size uint64) uint8 {
	var depth uint8
	for g.capacityAtDepth(depth) < size {
		depth++
	}
	return depth
}

// childCountAtSize returns how many children of capacity childCap are
// needed to span size logical bytes.
func childCountAtSize(childCap, size uint64) uint64 {
	if size == 0 {
		return 0
	}
	n := size / childCap
	if size%childCap != 0 {
		n++
	}
	return n
}

// leafPath expresses leafIndex in base InnerFanout across depth digits,
// most significant first: path[0] selects a child of the root, path[i]
// selects a child of the node reached after i hops.
func leafPath(depth uint8, fanout, leafIndex uint64) []uint64 {
	path := make([]uint64, depth)
	for i := int(depth) - 1; i >= 0; i-- {
		path[i] = leafIndex % fanout
		leafIndex /= fanout
	}
	return path
}
