package tree

import "iavlplus/codec"

// NodeWriter stores an encoded node at its content hash.
type NodeWriter interface {
	WriteNode(hash, encoded []byte) error
}

// persistRecursive implements spec §4.4 Persist: recursively persists any
// materialized, dirty child, then — if the node itself is dirty — orphans
// its previous identity (if any), stamps it with the committing version,
// computes its hash, and writes it. Lazy (unmaterialized) children are
// left untouched; their subtree did not change.
func (m *mutator) persistRecursive(w NodeWriter, ref *NodeRef) ([codec.HashSize]byte, error) {
	node := ref.node.Load()
	if node == nil {
		// never materialized: unchanged subtree, already has a valid hash.
		return ref.hash, nil
	}

	if !node.isLeaf {
		if left := node.left; left != nil {
			if loaded := left.node.Load(); loaded != nil {
				lh, err := m.persistRecursive(w, left)
				if err != nil {
					return [codec.HashSize]byte{}, err
				}
				left.hash = lh
			}
		}
		if right := node.right; right != nil {
			if loaded := right.node.Load(); loaded != nil {
				rh, err := m.persistRecursive(w, right)
				if err != nil {
					return [codec.HashSize]byte{}, err
				}
				right.hash = rh
			}
		}
	}

	if !node.dirty {
		return node.hash, nil
	}

	if err := m.orphan(node); err != nil {
		return [codec.HashSize]byte{}, err
	}

	node.version = m.version
	node.hash = node.computeHash()
	node.hashSet = true
	node.dirty = false
	node.origHashValid = false

	if err := w.WriteNode(node.hash[:], EncodeNode(node)); err != nil {
		return [codec.HashSize]byte{}, err
	}
	ref.hash = node.hash
	return node.hash, nil
}
