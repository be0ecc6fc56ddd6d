package blobstore

import "github.com/thezedwards/cryfs/internal/block"

// treeNode is the in-memory form of a tree node: a leaf (depth 0, holding
// payload bytes) or an inner node (depth > 0, holding child ids). Depth 0
// children are nil; the two representations share logicalSize, which on a
// leaf equals len(payload) and on an inner node equals the total logical
// byte size of the subtree it roots.
type treeNode struct {
	id          block.ID // zero until first persisted
	depth       uint8
	logicalSize uint64
	payload     []byte      // leaf only
	children    []block.ID  // inner only
	dirty       bool
}

func (n *treeNode) marshal() []byte {
	h := block.NodeHeader{FormatVersion: block.NodeFormatVersion, Depth: n.depth, Size: n.logicalSize}
	buf := h.Marshal()
	if n.depth == 0 {
		return append(buf, n.payload...)
	}
	for _, c := range n.children {
		buf = append(buf, c[:]...)
	}
	return buf
}

func unmarshalNode(geom Geometry, id block.ID, raw []byte) (*treeNode, error) {
	h, err := block.UnmarshalNodeHeader(raw)
	if err != nil {
		return nil, err
	}
	n := &treeNode{id: id, depth: h.Depth, logicalSize: h.Size}
	body := raw[block.HeaderLen:]
	if h.Depth == 0 {
		if h.Size > uint64(len(body)) {
			return nil, errCorruptNode
		}
		n.payload = append([]byte(nil), body[:h.Size]...)
		return n, nil
	}
	childCap := geom.capacityAtDepth(h.Depth - 1)
	count := childCountAtSize(childCap, h.Size)
	need := count * uint64(block.IDLen)
	if need > uint64(len(body)) {
		return nil, errCorruptNode
	}
	n.children = make([]block.ID, count)
	for i := uint64(0); i < count; i++ {
		copy(n.children[i][:], body[i*uint64(block.IDLen):(i+1)*uint64(block.IDLen)])
	}
	return n, nil
}
