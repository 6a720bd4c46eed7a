// Package tree implements the IAVL+ node model and AVL algorithms: branch
// and leaf variants, lazy child materialization from the backing store, and
// copy-on-write mutation with orphan tracking (spec §3, §4.3, §4.4).
package tree

import (
	"fmt"
	"sync/atomic"

	"iavlplus/codec"
)

// Node is a tagged Leaf/Branch node. Leaves carry a user value; branches
// carry no value, only split key, child height/hash pairs, and their own
// content hash.
type Node struct {
	isLeaf  bool
	key     []byte
	value   []byte // leaf only
	version uint32

	leftHeight  int32 // branch only
	rightHeight int32 // branch only
	left        *NodeRef
	right       *NodeRef

	hash    [codec.HashSize]byte
	hashSet bool
	dirty   bool

	// origHash/origVersion track the persisted identity this node replaces,
	// carried forward through any number of further in-memory mutations
	// before the next persist, so exactly one orphan record is ever emitted
	// per replaced identity (invariant 6).
	origHash      [codec.HashSize]byte
	origHashValid bool
	origVersion   uint32
}

// NodeLoader resolves a node by its content hash, backing a NodeRef's lazy
// materialization.
type NodeLoader interface {
	LoadNode(hash []byte) (*Node, error)
}

// NodeRef is a weak reference to a child node: always known by hash,
// lazily materialized into a concrete *Node on first access and cached
// from then on (spec §4.3, §9 "children by hash vs. by pointer").
type NodeRef struct {
	hash [codec.HashSize]byte
	node atomic.Pointer[Node]
}

// refOf wraps an already in-memory node (new or freshly loaded) as a ref.
func refOf(n *Node) *NodeRef {
	if n == nil {
		return nil
	}
	r := &NodeRef{}
	if n.hashSet {
		r.hash = n.hash
	}
	r.node.Store(n)
	return r
}

// refOfHash builds a ref that is not yet materialized.
func refOfHash(hash []byte) *NodeRef {
	r := &NodeRef{}
	copy(r.hash[:], hash)
	return r
}

func (r *NodeRef) Hash() [codec.HashSize]byte {
	if r == nil {
		return [codec.HashSize]byte{}
	}
	return r.hash
}

// Get returns the materialized node, loading it from the store on first
// access.
func (r *NodeRef) Get(loader NodeLoader) (*Node, error) {
	if r == nil {
		return nil, nil
	}
	if n := r.node.Load(); n != nil {
		return n, nil
	}
	n, err := loader.LoadNode(r.hash[:])
	if err != nil {
		return nil, err
	}
	r.node.Store(n)
	return n, nil
}

func (n *Node) IsLeaf() bool    { return n.isLeaf }
func (n *Node) Key() []byte     { return n.key }
func (n *Node) Value() []byte   { return n.value }
func (n *Node) Version() uint32 { return n.version }

func (n *Node) Hash() [codec.HashSize]byte {
	return n.hash
}

// Height returns the node's own subtree height: 0 for a leaf, otherwise one
// more than the taller of its two children.
func (n *Node) Height() int32 {
	if n.isLeaf {
		return 0
	}
	h := n.leftHeight
	if n.rightHeight > h {
		h = n.rightHeight
	}
	return h + 1
}

// balanceFactor is leftHeight - rightHeight, per spec §4.4 Balance.
func (n *Node) balanceFactor() int32 {
	return n.leftHeight - n.rightHeight
}

func newLeaf(key, value []byte) *Node {
	return &Node{isLeaf: true, key: key, value: value, dirty: true}
}

func newBranch() *Node {
	return &Node{isLeaf: false, dirty: true}
}

// mutate returns an editable copy of n, carrying forward the identity it
// will ultimately replace so persist can emit exactly one orphan record
// for it (spec §3.3, §4.4 Persist).
func mutate(n *Node) *Node {
	cp := *n
	cp.dirty = true
	cp.hashSet = false
	if n.hashSet {
		cp.origHash = n.hash
		cp.origVersion = n.version
		cp.origHashValid = true
	}
	// else: carries forward n's own origHash/origVersion unchanged, already
	// copied by value above.
	return &cp
}

func (n *Node) computeHash() [codec.HashSize]byte {
	if n.isLeaf {
		return codec.LeafHash(n.version, n.key, n.value)
	}
	return codec.BranchHash(n.version, n.left.hash[:], n.right.hash[:])
}

func (n *Node) String() string {
	if n.isLeaf {
		return fmt.Sprintf("Leaf{key=%x v=%d}", n.key, n.version)
	}
	return fmt.Sprintf("Branch{key=%x v=%d lh=%d rh=%d}", n.key, n.version, n.leftHeight, n.rightHeight)
}
