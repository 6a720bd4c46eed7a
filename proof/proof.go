// Package proof implements construction-independent verification of
// existence and non-existence Merkle proofs against a tree root hash
// (spec §4.7).
package proof

import (
	"bytes"
	"errors"
	"fmt"

	"iavlplus/codec"
)

var (
	// ErrKeyMismatch is returned when a proof's leaf key does not match the
	// key being verified.
	ErrKeyMismatch = errors.New("proof: key mismatch")
	// ErrValueMismatch is returned when a proof's leaf value does not match
	// the value being verified.
	ErrValueMismatch = errors.New("proof: value mismatch")
	// ErrEmptySiblingPair is returned when a branch step carries neither a
	// left nor a right sibling hash.
	ErrEmptySiblingPair = errors.New("proof: branch step has no sibling hash")
	// ErrRootMismatch is returned when the recomputed hash does not match
	// the expected root hash.
	ErrRootMismatch = errors.New("proof: recomputed hash does not match root")
	// ErrNoNeighbors is returned by a non-existence proof with neither a
	// left nor right neighbor (only possible for an empty tree).
	ErrNoNeighbors = errors.New("proof: non-existence proof has no neighbors")
)

// LeafTriple is the leaf step of an ExistenceProof: the leaf's creation
// version plus its key and (already packed) value.
type LeafTriple struct {
	Version uint32
	Key     []byte
	Value   []byte
}

// BranchTriple is one step climbing from a leaf to the root: the branch's
// version, plus exactly one of Left/Right holding the sibling subtree's
// hash — Left if the path descended right past this branch, Right if it
// descended left.
type BranchTriple struct {
	Version uint32
	Left    []byte // present if the path went right (sibling is on the left)
	Right   []byte // present if the path went left (sibling is on the right)
}

// ExistenceProof proves that (Leaf.Key, Leaf.Value) is present in the tree
// that produced a given root hash.
type ExistenceProof struct {
	Leaf     LeafTriple
	Branches []BranchTriple // child-to-root order
}

// NonExistenceProof proves that Key is absent, via existence proofs for its
// immediate in-order neighbors. Either neighbor may be nil only when the
// other is present; both nil is invalid (spec §4.7 Non-existence).
type NonExistenceProof struct {
	Key   []byte
	Left  *ExistenceProof
	Right *ExistenceProof
}

// Verify implements spec §4.7 Existence verification.
func Verify(p *ExistenceProof, key, value, rootHash []byte) error {
	if !bytes.Equal(p.Leaf.Key, key) {
		return ErrKeyMismatch
	}
	if !bytes.Equal(p.Leaf.Value, value) {
		return ErrValueMismatch
	}
	hash := codec.LeafHash(p.Leaf.Version, p.Leaf.Key, p.Leaf.Value)
	for _, b := range p.Branches {
		switch {
		case b.Left != nil:
			hash = codec.BranchHash(b.Version, b.Left, hash[:])
		case b.Right != nil:
			hash = codec.BranchHash(b.Version, hash[:], b.Right)
		default:
			return ErrEmptySiblingPair
		}
	}
	if !bytes.Equal(hash[:], rootHash) {
		return ErrRootMismatch
	}
	return nil
}

// VerifyNonExistence implements spec §4.7 Non-existence verification: both
// supplied neighbor proofs must independently verify against rootHash, and
// must bracket key (left neighbor's key < key < right neighbor's key, with
// either side optional only at a tree boundary).
func VerifyNonExistence(p *NonExistenceProof, rootHash []byte) error {
	if p.Left == nil && p.Right == nil {
		return ErrNoNeighbors
	}
	if p.Left != nil {
		if err := Verify(p.Left, p.Left.Leaf.Key, p.Left.Leaf.Value, rootHash); err != nil {
			return fmt.Errorf("left neighbor: %w", err)
		}
		if bytes.Compare(p.Left.Leaf.Key, p.Key) >= 0 {
			return fmt.Errorf("proof: left neighbor key %x is not less than %x", p.Left.Leaf.Key, p.Key)
		}
	}
	if p.Right != nil {
		if err := Verify(p.Right, p.Right.Leaf.Key, p.Right.Leaf.Value, rootHash); err != nil {
			return fmt.Errorf("right neighbor: %w", err)
		}
		if bytes.Compare(p.Right.Leaf.Key, p.Key) <= 0 {
			return fmt.Errorf("proof: right neighbor key %x is not greater than %x", p.Right.Leaf.Key, p.Key)
		}
	}
	return nil
}
