package proof

import (
	"testing"

	"github.com/stretchr/testify/require"

	"iavlplus/codec"
)

func leafHash(version uint32, key, value []byte) [codec.HashSize]byte {
	return codec.LeafHash(version, key, value)
}

func TestVerifyExistenceSingleLeafTree(t *testing.T) {
	p := &ExistenceProof{Leaf: LeafTriple{Version: 1, Key: []byte("a"), Value: []byte("1")}}
	root := leafHash(1, []byte("a"), []byte("1"))
	require.NoError(t, Verify(p, []byte("a"), []byte("1"), root[:]))
}

func TestVerifyExistenceClimbsBranches(t *testing.T) {
	leftLeaf := leafHash(1, []byte("a"), []byte("1"))
	rightLeaf := leafHash(1, []byte("b"), []byte("2"))
	root := codec.BranchHash(2, leftLeaf[:], rightLeaf[:])

	p := &ExistenceProof{
		Leaf:     LeafTriple{Version: 1, Key: []byte("b"), Value: []byte("2")},
		Branches: []BranchTriple{{Version: 2, Left: leftLeaf[:]}},
	}
	require.NoError(t, Verify(p, []byte("b"), []byte("2"), root[:]))

	p2 := &ExistenceProof{
		Leaf:     LeafTriple{Version: 1, Key: []byte("a"), Value: []byte("1")},
		Branches: []BranchTriple{{Version: 2, Right: rightLeaf[:]}},
	}
	require.NoError(t, Verify(p2, []byte("a"), []byte("1"), root[:]))
}

func TestVerifyRejectsKeyMismatch(t *testing.T) {
	p := &ExistenceProof{Leaf: LeafTriple{Version: 1, Key: []byte("a"), Value: []byte("1")}}
	root := leafHash(1, []byte("a"), []byte("1"))
	require.ErrorIs(t, Verify(p, []byte("x"), []byte("1"), root[:]), ErrKeyMismatch)
}

func TestVerifyRejectsValueMismatch(t *testing.T) {
	p := &ExistenceProof{Leaf: LeafTriple{Version: 1, Key: []byte("a"), Value: []byte("1")}}
	root := leafHash(1, []byte("a"), []byte("1"))
	require.ErrorIs(t, Verify(p, []byte("a"), []byte("9"), root[:]), ErrValueMismatch)
}

func TestVerifyRejectsRootMismatch(t *testing.T) {
	p := &ExistenceProof{Leaf: LeafTriple{Version: 1, Key: []byte("a"), Value: []byte("1")}}
	wrongRoot := leafHash(1, []byte("a"), []byte("2"))
	require.ErrorIs(t, Verify(p, []byte("a"), []byte("1"), wrongRoot[:]), ErrRootMismatch)
}

func TestVerifyRejectsEmptySiblingPair(t *testing.T) {
	leaf := leafHash(1, []byte("a"), []byte("1"))
	p := &ExistenceProof{
		Leaf:     LeafTriple{Version: 1, Key: []byte("a"), Value: []byte("1")},
		Branches: []BranchTriple{{Version: 2}},
	}
	require.ErrorIs(t, Verify(p, []byte("a"), []byte("1"), leaf[:]), ErrEmptySiblingPair)
}

func TestVerifyNonExistenceBothNeighbors(t *testing.T) {
	leftLeaf := leafHash(1, []byte("a"), []byte("1"))
	rightLeaf := leafHash(1, []byte("z"), []byte("26"))
	root := codec.BranchHash(2, leftLeaf[:], rightLeaf[:])

	np := &NonExistenceProof{
		Key: []byte("m"),
		Left: &ExistenceProof{
			Leaf:     LeafTriple{Version: 1, Key: []byte("a"), Value: []byte("1")},
			Branches: []BranchTriple{{Version: 2, Right: rightLeaf[:]}},
		},
		Right: &ExistenceProof{
			Leaf:     LeafTriple{Version: 1, Key: []byte("z"), Value: []byte("26")},
			Branches: []BranchTriple{{Version: 2, Left: leftLeaf[:]}},
		},
	}
	require.NoError(t, VerifyNonExistence(np, root[:]))
}

func TestVerifyNonExistenceLeftBoundaryOnly(t *testing.T) {
	leaf := leafHash(1, []byte("a"), []byte("1"))
	np := &NonExistenceProof{
		Key:  []byte("z"),
		Left: &ExistenceProof{Leaf: LeafTriple{Version: 1, Key: []byte("a"), Value: []byte("1")}},
	}
	require.NoError(t, VerifyNonExistence(np, leaf[:]))
}

func TestVerifyNonExistenceRejectsNoNeighbors(t *testing.T) {
	require.ErrorIs(t, VerifyNonExistence(&NonExistenceProof{Key: []byte("m")}, nil), ErrNoNeighbors)
}

func TestVerifyNonExistenceRejectsLeftNotLessThanKey(t *testing.T) {
	leaf := leafHash(1, []byte("z"), []byte("26"))
	np := &NonExistenceProof{
		Key:  []byte("a"),
		Left: &ExistenceProof{Leaf: LeafTriple{Version: 1, Key: []byte("z"), Value: []byte("26")}},
	}
	require.Error(t, VerifyNonExistence(np, leaf[:]))
}

func TestVerifyNonExistenceRejectsRightNotGreaterThanKey(t *testing.T) {
	leaf := leafHash(1, []byte("a"), []byte("1"))
	np := &NonExistenceProof{
		Key:   []byte("z"),
		Right: &ExistenceProof{Leaf: LeafTriple{Version: 1, Key: []byte("a"), Value: []byte("1")}},
	}
	require.Error(t, VerifyNonExistence(np, leaf[:]))
}
