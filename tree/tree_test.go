package tree

import (
	"bytes"
	"testing"

	clog "cosmossdk.io/log"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"iavlplus/codec"
	"iavlplus/kvstore"
	"iavlplus/proof"
)

func newTestTree(t require.TestingT) *Tree {
	tr, err := New(kvstore.NewMemEngine(), codec.RawCodec{}, clog.NewNopLogger())
	require.NoError(t, err)
	return tr
}

// recomputeRootHash independently rebuilds the root hash from the subtree
// reachable from ref, verifying every branch's cached hash agrees with one
// freshly computed from its children (spec §8's rootHash-recomputation
// invariant).
func recomputeRootHash(t require.TestingT, loader NodeLoader, ref *NodeRef) [codec.HashSize]byte {
	if ref == nil {
		return [codec.HashSize]byte{}
	}
	node, err := ref.Get(loader)
	require.NoError(t, err)
	if node.isLeaf {
		return codec.LeafHash(node.version, node.key, node.value)
	}
	leftHash := recomputeRootHash(t, loader, node.left)
	rightHash := recomputeRootHash(t, loader, node.right)
	require.Equal(t, node.left.Hash(), leftHash, "left child hash mismatch at branch %x", node.key)
	require.Equal(t, node.right.Hash(), rightHash, "right child hash mismatch at branch %x", node.key)
	return codec.BranchHash(node.version, leftHash[:], rightHash[:])
}

func assertRootHashConsistent(t require.TestingT, tr *Tree) {
	got := recomputeRootHash(t, tr.Loader(), tr.Root())
	require.Equal(t, tr.RootHash(), got, "rootHash does not match recomputation from reachable nodes")
}

// assertBalanced walks every branch reachable from ref and checks the AVL
// balance invariant |leftHeight - rightHeight| < 2.
func assertBalanced(t require.TestingT, loader NodeLoader, ref *NodeRef) {
	if ref == nil {
		return
	}
	node, err := ref.Get(loader)
	require.NoError(t, err)
	if node.isLeaf {
		return
	}
	bf := node.leftHeight - node.rightHeight
	require.True(t, bf > -2 && bf < 2, "branch %x unbalanced: leftHeight=%d rightHeight=%d", node.key, node.leftHeight, node.rightHeight)
	assertBalanced(t, loader, node.left)
	assertBalanced(t, loader, node.right)
}

// Scenario A — canonical insert order (spec.md §8 Scenario A). The literal
// root-hash constants in spec.md assume a specific external value codec
// that this module's codec (a Non-goal, left pluggable) does not reproduce
// byte-for-byte; this test instead asserts the documented structural
// invariants: version count, get() results, and hash self-consistency.
func TestScenarioA_CanonicalInserts(t *testing.T) {
	tr := newTestTree(t)
	pairs := [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}, {"z", "26"}, {"y", "25"}, {"x", "24"}}
	for _, p := range pairs {
		require.NoError(t, tr.Insert([]byte(p[0]), []byte(p[1])))
	}
	require.Equal(t, int64(6), tr.Version())
	for _, p := range pairs {
		v, found, err := tr.Get([]byte(p[0]))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, []byte(p[1]), v)
	}
	assertRootHashConsistent(t, tr)
	assertBalanced(t, tr.Loader(), tr.Root())
}

// Scenario B — delete (spec.md §8 Scenario B).
func TestScenarioB_Delete(t *testing.T) {
	tr := newTestTree(t)
	for _, p := range [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}, {"z", "26"}, {"y", "25"}, {"x", "24"}} {
		require.NoError(t, tr.Insert([]byte(p[0]), []byte(p[1])))
	}
	require.NoError(t, tr.Remove([]byte("c")))
	require.Equal(t, int64(7), tr.Version())
	_, found, err := tr.Get([]byte("c"))
	require.NoError(t, err)
	require.False(t, found)
	assertRootHashConsistent(t, tr)
	assertBalanced(t, tr.Loader(), tr.Root())
}

// Scenario C — atomic insert inside an explicit transaction (spec.md §8
// Scenario C).
func TestScenarioC_AtomicInsert(t *testing.T) {
	tr := newTestTree(t)
	for _, p := range [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}, {"z", "26"}, {"y", "25"}, {"x", "24"}} {
		require.NoError(t, tr.Insert([]byte(p[0]), []byte(p[1])))
	}
	require.NoError(t, tr.Remove([]byte("c")))

	require.NoError(t, tr.StartTransaction())
	m := &mutator{loader: tr.adapter(), version: uint32(tr.Store().Version()), orphanFn: tr.makeOrphanFn()}
	newRoot, _, err := m.insertRecursive(tr.Root(), []byte("d"), tr.codec.Pack([]byte("4")))
	require.NoError(t, err)
	require.NoError(t, tr.commitRoot(m, newRoot))
	require.NoError(t, tr.CommitTransaction())

	require.Equal(t, int64(8), tr.Version())
	v, found, err := tr.Get([]byte("d"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("4"), v)
	assertRootHashConsistent(t, tr)
}

// Scenario D — nested revert (spec.md §8 Scenario D).
func TestScenarioD_NestedRevert(t *testing.T) {
	tr := newTestTree(t)

	require.NoError(t, tr.StartTransaction())
	require.NoError(t, insertInTx(t, tr, []byte("e"), []byte("5")))

	require.NoError(t, tr.StartTransaction())
	require.NoError(t, insertInTx(t, tr, []byte("f"), []byte("6")))

	_, found, err := tr.Get([]byte("e"))
	require.NoError(t, err)
	require.True(t, found)
	_, found, err = tr.Get([]byte("f"))
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, tr.RevertTransaction())
	_, found, err = tr.Get([]byte("e"))
	require.NoError(t, err)
	require.True(t, found)
	_, found, err = tr.Get([]byte("f"))
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, tr.CommitTransaction())
	_, found, err = tr.Get([]byte("e"))
	require.NoError(t, err)
	require.True(t, found)
	_, found, err = tr.Get([]byte("f"))
	require.NoError(t, err)
	require.False(t, found)
}

// insertInTx performs one insert inside an already-open transaction frame,
// mirroring Tree.Insert's body without opening its own frame.
func insertInTx(t require.TestingT, tr *Tree, key, value []byte) error {
	packed := tr.codec.Pack(value)
	m := &mutator{loader: tr.adapter(), version: uint32(tr.st.Version()), orphanFn: tr.makeOrphanFn()}
	var newRoot *NodeRef
	if tr.root == nil {
		newRoot = refOf(newLeaf(key, packed))
	} else {
		var err error
		newRoot, _, err = m.insertRecursive(tr.root, key, packed)
		if err != nil {
			return err
		}
	}
	return tr.commitRoot(m, newRoot)
}

// TestBoundaryRemoveAbsentKeyAdvancesVersion checks spec.md §8's boundary
// behavior: remove of an absent key is a structural no-op but still
// produces a new version with the same root hash.
func TestBoundaryRemoveAbsentKeyAdvancesVersion(t *testing.T) {
	tr := newTestTree(t)
	require.NoError(t, tr.Insert([]byte("a"), []byte("1")))
	before := tr.RootHash()
	beforeVersion := tr.Version()

	require.NoError(t, tr.Remove([]byte("nonexistent")))
	require.Equal(t, beforeVersion+1, tr.Version())
	require.Equal(t, before, tr.RootHash())
}

// TestBoundaryDuplicateInsertUpdatesInPlace checks that re-inserting an
// existing key changes the root hash (the leaf's version changes) and that
// the key then reads back the new value.
func TestBoundaryDuplicateInsertUpdatesInPlace(t *testing.T) {
	tr := newTestTree(t)
	require.NoError(t, tr.Insert([]byte("a"), []byte("1")))
	require.NoError(t, tr.Insert([]byte("b"), []byte("2")))
	before := tr.RootHash()

	require.NoError(t, tr.Insert([]byte("a"), []byte("99")))
	require.NotEqual(t, before, tr.RootHash())
	v, found, err := tr.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("99"), v)
}

func TestEmptyValueRejected(t *testing.T) {
	tr := newTestTree(t)
	require.ErrorIs(t, tr.Insert([]byte("a"), nil), ErrEmptyValue)
	require.ErrorIs(t, tr.Insert([]byte("a"), []byte{}), ErrEmptyValue)
}

func TestGetProofRoundTrip(t *testing.T) {
	tr := newTestTree(t)
	for _, p := range [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}, {"z", "26"}, {"y", "25"}, {"x", "24"}} {
		require.NoError(t, tr.Insert([]byte(p[0]), []byte(p[1])))
	}
	for _, p := range [][2]string{{"a", "1"}, {"b", "2"}, {"z", "26"}} {
		pr, err := tr.GetProof([]byte(p[0]))
		require.NoError(t, err)
		require.NoError(t, tr.VerifyProof(pr, []byte(p[0]), []byte(p[1])))
	}
}

func TestGetProofFailsOnTamperedValue(t *testing.T) {
	tr := newTestTree(t)
	require.NoError(t, tr.Insert([]byte("a"), []byte("1")))
	require.NoError(t, tr.Insert([]byte("b"), []byte("2")))
	pr, err := tr.GetProof([]byte("a"))
	require.NoError(t, err)
	require.ErrorIs(t, tr.VerifyProof(pr, []byte("a"), []byte("wrong")), proof.ErrValueMismatch)
}

func TestGetProofMissingKey(t *testing.T) {
	tr := newTestTree(t)
	require.NoError(t, tr.Insert([]byte("a"), []byte("1")))
	_, err := tr.GetProof([]byte("missing"))
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestNonExistenceProofRoundTrip(t *testing.T) {
	tr := newTestTree(t)
	for _, p := range [][2]string{{"a", "1"}, {"c", "3"}, {"e", "5"}} {
		require.NoError(t, tr.Insert([]byte(p[0]), []byte(p[1])))
	}
	for _, k := range []string{"b", "d", "aa", "f", "0"} {
		p, err := tr.GetNonExistenceProof([]byte(k))
		require.NoError(t, err, "key %q", k)
		rootHash := tr.RootHash()
		require.NoError(t, proof.VerifyNonExistence(p, rootHash[:]), "key %q", k)
	}
}

func TestNonExistenceProofRejectsPresentKey(t *testing.T) {
	tr := newTestTree(t)
	require.NoError(t, tr.Insert([]byte("a"), []byte("1")))
	_, err := tr.GetNonExistenceProof([]byte("a"))
	require.ErrorIs(t, err, ErrKeyExists)
}

// TestTreeSim runs a randomized sequence of insert/remove/get operations
// against a model map, checking balance, hash self-consistency, and
// get()-matches-model after each commit (spec.md §8 universal invariants).
func TestTreeSim(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tr := newTestTree(rt)
		model := map[string][]byte{}

		ops := rapid.IntRange(1, 40).Draw(rt, "ops")
		for i := 0; i < ops; i++ {
			key := rapid.SliceOfN(rapid.Byte(), 1, 6).Draw(rt, "key")
			if rapid.Bool().Draw(rt, "del") {
				delete(model, string(key))
				require.NoError(rt, tr.Remove(key))
			} else {
				value := rapid.SliceOfN(rapid.Byte(), 1, 6).Draw(rt, "value")
				model[string(key)] = value
				require.NoError(rt, tr.Insert(key, value))
			}

			assertBalanced(rt, tr.Loader(), tr.Root())
			assertRootHashConsistent(rt, tr)

			checkKey := rapid.SliceOfN(rapid.Byte(), 1, 6).Draw(rt, "checkKey")
			want, wantFound := model[string(checkKey)]
			got, gotFound, err := tr.Get(checkKey)
			require.NoError(rt, err)
			require.Equal(rt, wantFound, gotFound)
			if wantFound {
				require.True(rt, bytes.Equal(want, got))
			}
		}
	})
}

// TestScenarioE_DeterministicStress mirrors spec.md §8 Scenario E's fixed
// pseudo-random sequence (insert/remove driven by sha256-derived keys and
// values), checking the universal invariants at every commit rather than
// the literal published hash constants — see TestScenarioA's comment on
// why those constants don't apply to this module's pluggable codec.
func TestScenarioE_DeterministicStress(t *testing.T) {
	tr := newTestTree(t)
	for i := 1; i <= 5; i++ {
		// One outer transaction per round, so each round commits one version.
		require.NoError(t, tr.StartTransaction())
		for j := 0; j < 30; j++ {
			k := codec.SHA256(codec.U32BE(uint32(j)))
			v := codec.SHA256(codec.U32BE(uint32(i * j)))
			key := k[16:]
			value := v[16:]
			if i > 1 && (i+j)%3 == 0 {
				require.NoError(t, tr.Remove(key))
			} else {
				require.NoError(t, tr.Insert(key, value))
			}
		}
		require.NoError(t, tr.CommitTransaction())
		assertBalanced(t, tr.Loader(), tr.Root())
		assertRootHashConsistent(t, tr)
	}
	require.Equal(t, int64(5), tr.Version())
}

// TestScenarioF_PruningClosure mirrors spec.md §8 Scenario F: after many
// committed versions, pruning the whole history but the latest leaves
// exactly one version, an empty orphans table, and a nodes table matching
// the live traversal count.
func TestScenarioF_PruningClosure(t *testing.T) {
	tr := newTestTree(t)
	for i := 0; i < 30; i++ {
		k := codec.SHA256(codec.U32BE(uint32(i)))
		v := codec.SHA256(codec.U32BE(uint32(i * 7)))
		require.NoError(t, tr.Insert(k[16:], v[16:]))
	}
	require.Equal(t, int64(30), tr.Version())

	require.NoError(t, tr.Prune(1, 29))

	err := tr.Store().Transaction(func() error {
		orphanCount, err := tr.Store().OrphanCount()
		require.NoError(t, err)
		require.Equal(t, 0, orphanCount)

		nodeCount, err := tr.Store().NodeCount()
		require.NoError(t, err)

		traversalCount := 0
		_, err = inOrder(tr.Loader(), tr.Root(), func(n *Node) (bool, error) {
			traversalCount++
			return false, nil
		})
		require.NoError(t, err)
		require.Equal(t, nodeCount, traversalCount)

		_, present, err := tr.Store().GetVersion(30)
		require.NoError(t, err)
		require.True(t, present)
		for v := int64(1); v <= 29; v++ {
			_, present, err := tr.Store().GetVersion(v)
			require.NoError(t, err)
			require.False(t, present)
		}
		return nil
	})
	require.NoError(t, err)
}

// TestCloneSharesVersionHistory checks spec.md:163's clone() contract: the
// clone observes the same committed versions as its source through an
// independent Store handle, rather than restarting version numbering at
// zero and colliding with the source's own committed entries.
func TestCloneSharesVersionHistory(t *testing.T) {
	engine := kvstore.NewMemEngine()
	tr, err := New(engine, codec.RawCodec{}, clog.NewNopLogger())
	require.NoError(t, err)
	for _, p := range [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}} {
		require.NoError(t, tr.Insert([]byte(p[0]), []byte(p[1])))
	}
	require.Equal(t, int64(3), tr.Version())

	clone, err := tr.Clone(engine)
	require.NoError(t, err)
	require.Equal(t, tr.Version(), clone.Version())
	require.Equal(t, tr.RootHash(), clone.RootHash())

	err = clone.Store().Transaction(func() error {
		v, found, err := clone.Get([]byte("b"))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, []byte("2"), v)
		return nil
	})
	require.NoError(t, err)

	// The read-only transaction above also advanced the clone's counter (to
	// 4), so this insert commits version 5.
	require.NoError(t, clone.Insert([]byte("d"), []byte("4")))
	require.Equal(t, int64(5), clone.Version())

	err = tr.Store().Transaction(func() error {
		for v := int64(1); v <= 3; v++ {
			_, present, err := tr.Store().GetVersion(v)
			require.NoError(t, err)
			require.True(t, present, "clone must not have overwritten version %d", v)
		}
		return nil
	})
	require.NoError(t, err)
}
