package tree

import "bytes"

// PathEntry is one step on the path from a leaf back up to the root,
// produced by findPath (spec §4.4 FindPath). Branch is nil for the leaf
// entry, which is the last one in the slice.
type PathEntry struct {
	Leaf   *Node
	Branch *Node
	// WentLeft records, for a Branch entry, whether the search descended
	// into its left child (true) or right child (false) on the way down.
	WentLeft bool
}

// findPath walks down from ref looking for key, collecting each branch
// stepped through before finally reaching a leaf. The returned slice is in
// root-to-leaf order with the leaf (or the last node visited on a
// non-matching descent) last; reading it backwards gives the leaf-to-root
// order spec §4.4 FindPath describes.
func findPath(loader NodeLoader, ref *NodeRef, key []byte) ([]PathEntry, error) {
	var path []PathEntry
	cur := ref
	for {
		node, err := cur.Get(loader)
		if err != nil {
			return nil, err
		}
		if node.isLeaf {
			path = append(path, PathEntry{Leaf: node})
			return path, nil
		}
		wentLeft := bytes.Compare(key, node.key) < 0
		path = append(path, PathEntry{Branch: node, WentLeft: wentLeft})
		if wentLeft {
			cur = node.left
		} else {
			cur = node.right
		}
	}
}

// leftmost returns the leftmost leaf reachable from ref.
func leftmost(loader NodeLoader, ref *NodeRef) (*Node, error) {
	node, err := ref.Get(loader)
	if err != nil {
		return nil, err
	}
	for !node.isLeaf {
		node, err = node.left.Get(loader)
		if err != nil {
			return nil, err
		}
	}
	return node, nil
}

// VisitFunc is called for every node in an in-order traversal; stop aborts
// the walk early without error when it returns true.
type VisitFunc func(n *Node) (stop bool, err error)

// inOrder visits Leaves and Branches in canonical left-node-right order
// (spec §4.4 In-order traversal).
func inOrder(loader NodeLoader, ref *NodeRef, visit VisitFunc) (bool, error) {
	if ref == nil {
		return false, nil
	}
	node, err := ref.Get(loader)
	if err != nil {
		return false, err
	}
	if node.isLeaf {
		return visit(node)
	}
	stop, err := inOrder(loader, node.left, visit)
	if err != nil || stop {
		return stop, err
	}
	stop, err = visit(node)
	if err != nil || stop {
		return stop, err
	}
	return inOrder(loader, node.right, visit)
}

// RefForHash builds a NodeRef for an arbitrary stored root hash, for
// traversing a version other than the tree facade's cached current root
// (spec §4.8 Create operates on any already-committed version).
func RefForHash(hash []byte) *NodeRef {
	return refOfHash(hash)
}

// Walk pre-order traverses the subtree rooted at ref, passing each node's
// encoded compact form to visit (spec §4.8 Create's chunk-packing walk).
func Walk(loader NodeLoader, ref *NodeRef, visit func(encoded []byte) error) (bool, error) {
	return preOrder(loader, ref, func(n *Node) (bool, error) {
		if err := visit(EncodeNode(n)); err != nil {
			return false, err
		}
		return false, nil
	})
}

// preOrder visits nodes root-first, descending into children only for
// Branches, as used by snapshot creation (spec §4.8).
func preOrder(loader NodeLoader, ref *NodeRef, visit VisitFunc) (bool, error) {
	if ref == nil {
		return false, nil
	}
	node, err := ref.Get(loader)
	if err != nil {
		return false, err
	}
	stop, err := visit(node)
	if err != nil || stop {
		return stop, err
	}
	if node.isLeaf {
		return false, nil
	}
	stop, err = preOrder(loader, node.left, visit)
	if err != nil || stop {
		return stop, err
	}
	return preOrder(loader, node.right, visit)
}

// leftNeighbor finds the in-order predecessor leaf of key — the largest
// leaf key strictly less than key, or nil if none exists (spec §4.7
// Non-existence "Left neighbor" rule: at a Branch, descending right keeps
// the branch's split key, which by invariant 2 is the right subtree's
// minimum, as a fallback candidate if nothing smaller than key turns up
// further down that subtree).
func leftNeighbor(loader NodeLoader, ref *NodeRef, key []byte) (*Node, error) {
	node, err := ref.Get(loader)
	if err != nil {
		return nil, err
	}
	if node.isLeaf {
		if bytes.Compare(node.key, key) < 0 {
			return node, nil
		}
		return nil, nil
	}
	if bytes.Compare(key, node.key) <= 0 {
		return leftNeighbor(loader, node.left, key)
	}
	found, err := leftNeighbor(loader, node.right, key)
	if err != nil {
		return nil, err
	}
	if found != nil {
		return found, nil
	}
	return leftmost(loader, node.right)
}

// rightNeighbor finds the in-order successor leaf of key, symmetric to
// leftNeighbor.
func rightNeighbor(loader NodeLoader, ref *NodeRef, key []byte) (*Node, error) {
	node, err := ref.Get(loader)
	if err != nil {
		return nil, err
	}
	if node.isLeaf {
		if bytes.Compare(node.key, key) > 0 {
			return node, nil
		}
		return nil, nil
	}
	if bytes.Compare(key, node.key) >= 0 {
		return rightNeighbor(loader, node.right, key)
	}
	found, err := rightNeighbor(loader, node.left, key)
	if err != nil {
		return nil, err
	}
	if found != nil {
		return found, nil
	}
	return leftmost(loader, node.right)
}
