package tree

import "bytes"

// mutator bundles the current transaction's committing version and node
// loader so the recursive insert/remove/balance helpers can materialize
// lazy children and stamp new nodes, mirroring the NodeFactory pattern the
// from-scratch IAVL implementation in the example pack uses.
type mutator struct {
	loader   NodeLoader
	version  uint32
	orphanFn func(hash []byte, fromVersion uint32) error
}

// insertRecursive implements spec §4.4 Insert. ref may be nil, denoting an
// empty subtree.
func (m *mutator) insertRecursive(ref *NodeRef, key, value []byte) (*NodeRef, bool, error) {
	if ref == nil {
		return refOf(newLeaf(key, value)), true, nil
	}
	node, err := ref.Get(m.loader)
	if err != nil {
		return nil, false, err
	}

	if node.isLeaf {
		switch bytes.Compare(key, node.key) {
		case 0:
			updated := mutate(node)
			updated.value = value
			return refOf(updated), true, nil
		case -1:
			b := newBranch()
			b.key = node.key
			b.left = refOf(newLeaf(key, value))
			b.right = ref
			b.leftHeight, b.rightHeight = 0, 0
			return refOf(b), false, nil
		default:
			b := newBranch()
			b.key = key
			b.left = ref
			b.right = refOf(newLeaf(key, value))
			b.leftHeight, b.rightHeight = 0, 0
			return refOf(b), false, nil
		}
	}

	newNode := mutate(node)
	var updated bool
	if bytes.Compare(key, node.key) < 0 {
		newLeft, upd, err := m.insertRecursive(node.left, key, value)
		if err != nil {
			return nil, false, err
		}
		newNode.left = newLeft
		updated = upd
	} else {
		newRight, upd, err := m.insertRecursive(node.right, key, value)
		if err != nil {
			return nil, false, err
		}
		newNode.right = newRight
		updated = upd
	}

	if updated {
		return refOf(newNode), true, nil
	}
	if err := m.updateHeights(newNode); err != nil {
		return nil, false, err
	}
	balanced, err := m.balance(newNode)
	if err != nil {
		return nil, false, err
	}
	return refOf(balanced), false, nil
}

// removeRecursive implements spec §4.4 Delete. Returns the removed value
// (nil if key was absent, in which case newRef echoes ref unchanged), the
// replacement subtree, and the new split key when the right subtree's
// leftmost leaf was consumed.
func (m *mutator) removeRecursive(ref *NodeRef, key []byte) (value []byte, newRef *NodeRef, newKey []byte, err error) {
	if ref == nil {
		return nil, nil, nil, nil
	}
	node, err := ref.Get(m.loader)
	if err != nil {
		return nil, nil, nil, err
	}

	if node.isLeaf {
		if !bytes.Equal(node.key, key) {
			return nil, ref, nil, nil
		}
		if err := m.orphan(node); err != nil {
			return nil, nil, nil, err
		}
		return node.value, nil, nil, nil
	}

	if bytes.Compare(key, node.key) < 0 {
		val, newLeft, nk, err := m.removeRecursive(node.left, key)
		if err != nil {
			return nil, nil, nil, err
		}
		if val == nil {
			return nil, ref, nil, nil
		}
		if newLeft == nil {
			if err := m.orphan(node); err != nil {
				return nil, nil, nil, err
			}
			return val, node.right, node.key, nil
		}
		newNode := mutate(node)
		newNode.left = newLeft
		if err := m.updateHeights(newNode); err != nil {
			return nil, nil, nil, err
		}
		balanced, err := m.balance(newNode)
		if err != nil {
			return nil, nil, nil, err
		}
		return val, refOf(balanced), nk, nil
	}

	val, newRight, nk, err := m.removeRecursive(node.right, key)
	if err != nil {
		return nil, nil, nil, err
	}
	if val == nil {
		return nil, ref, nil, nil
	}
	if newRight == nil {
		if err := m.orphan(node); err != nil {
			return nil, nil, nil, err
		}
		return val, node.left, nil, nil
	}
	newNode := mutate(node)
	newNode.right = newRight
	if nk != nil {
		newNode.key = nk
	}
	if err := m.updateHeights(newNode); err != nil {
		return nil, nil, nil, err
	}
	balanced, err := m.balance(newNode)
	if err != nil {
		return nil, nil, nil, err
	}
	return val, refOf(balanced), nil, nil
}

func (m *mutator) updateHeights(n *Node) error {
	left, err := n.left.Get(m.loader)
	if err != nil {
		return err
	}
	right, err := n.right.Get(m.loader)
	if err != nil {
		return err
	}
	n.leftHeight = left.Height()
	n.rightHeight = right.Height()
	return nil
}

// balance implements spec §4.4 Balance. n must already be a fresh copy (new
// or mutated this call), never a node shared with an earlier version.
func (m *mutator) balance(n *Node) (*Node, error) {
	switch bf := n.balanceFactor(); {
	case bf == 2:
		left, err := n.left.Get(m.loader)
		if err != nil {
			return nil, err
		}
		leftLeft, err := left.left.Get(m.loader)
		if err != nil {
			return nil, err
		}
		leftRight, err := left.right.Get(m.loader)
		if err != nil {
			return nil, err
		}
		if leftLeft.Height()-leftRight.Height() < 0 {
			rotated, err := m.rotateLeft(mutate(left))
			if err != nil {
				return nil, err
			}
			n.left = refOf(rotated)
		}
		return m.rotateRight(n)
	case bf == -2:
		right, err := n.right.Get(m.loader)
		if err != nil {
			return nil, err
		}
		rightLeft, err := right.left.Get(m.loader)
		if err != nil {
			return nil, err
		}
		rightRight, err := right.right.Get(m.loader)
		if err != nil {
			return nil, err
		}
		if rightRight.Height()-rightLeft.Height() < 0 {
			rotated, err := m.rotateRight(mutate(right))
			if err != nil {
				return nil, err
			}
			n.right = refOf(rotated)
		}
		return m.rotateLeft(n)
	default:
		return n, nil
	}
}

// rotateRight promotes n's left child to the root of this subtree. n must
// be a fresh copy.
func (m *mutator) rotateRight(n *Node) (*Node, error) {
	left, err := n.left.Get(m.loader)
	if err != nil {
		return nil, err
	}
	newSelf := mutate(left)
	n.left = left.right
	newSelf.right = refOf(n)

	if err := m.updateHeights(n); err != nil {
		return nil, err
	}
	if err := m.updateHeights(newSelf); err != nil {
		return nil, err
	}
	return newSelf, nil
}

// rotateLeft promotes n's right child to the root of this subtree. n must
// be a fresh copy.
func (m *mutator) rotateLeft(n *Node) (*Node, error) {
	right, err := n.right.Get(m.loader)
	if err != nil {
		return nil, err
	}
	newSelf := mutate(right)
	n.right = right.left
	newSelf.left = refOf(n)

	if err := m.updateHeights(n); err != nil {
		return nil, err
	}
	if err := m.updateHeights(newSelf); err != nil {
		return nil, err
	}
	return newSelf, nil
}

// orphan records the obsolescence of n's persisted identity through
// orphanFn, which the tree facade sets on every mutator it builds. Delete
// calls it for nodes it drops outright (rather than replaces), and persist
// calls it for the identity a dirty node replaces, per spec §4.4 and
// invariant 6.
func (m *mutator) orphan(n *Node) error {
	if m.orphanFn == nil {
		return nil
	}
	if n.hashSet {
		return m.orphanFn(n.hash[:], n.version)
	}
	if n.origHashValid {
		return m.orphanFn(n.origHash[:], n.origVersion)
	}
	return nil
}
