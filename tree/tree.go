package tree

import (
	"bytes"
	"errors"
	"fmt"

	"cosmossdk.io/log"

	"iavlplus/codec"
	"iavlplus/kvstore"
	"iavlplus/metrics"
	"iavlplus/proof"
	"iavlplus/store"
)

var (
	// ErrEmptyValue is returned by Insert for a falsy (empty or nil) value.
	ErrEmptyValue = errors.New("tree: value must not be empty")
	// ErrKeyNotFound is returned by GetProof when key is absent.
	ErrKeyNotFound = errors.New("tree: key not found")
	// ErrKeyExists is returned by GetNonExistenceProof when key is present.
	ErrKeyExists = errors.New("tree: key unexpectedly present")
)

// storeAdapter bridges the store package's content-addressed node table to
// the tree package's NodeLoader/NodeWriter interfaces.
type storeAdapter struct {
	st *store.Store
}

func (a storeAdapter) LoadNode(hash []byte) (*Node, error) {
	encoded, err := a.st.GetNode(hash)
	if err != nil {
		return nil, err
	}
	return DecodeNode(encoded, hash)
}

func (a storeAdapter) WriteNode(hash, encoded []byte) error {
	return a.st.PutNode(hash, encoded)
}

// Tree is the versioned, single-writer facade over a Store (spec §4.6). It
// caches the current root in memory; clones get an independent Store and
// an independent cache over the same backing engine.
type Tree struct {
	st     *store.Store
	codec  codec.Codec
	logger log.Logger

	root     *NodeRef
	rootHash [codec.HashSize]byte

	// rootStack snapshots (root, rootHash) one entry per open transaction
	// frame, so a RevertTransaction at any nesting depth can restore the
	// facade's in-memory cache to what it was when that frame was opened
	// (spec §8 Scenario D) instead of leaving it pointed at a root that was
	// only ever visible to the reverted frame's discarded writes.
	rootStack []rootSnapshot

	metrics *metrics.Metrics
}

type rootSnapshot struct {
	root     *NodeRef
	rootHash [codec.HashSize]byte
}

// SetMetrics attaches counters that Insert and Remove report to, and
// forwards them to the underlying Store for its own orphan/prune counters.
func (t *Tree) SetMetrics(m *metrics.Metrics) {
	t.metrics = m
	t.st.SetMetrics(m)
}

// New opens a tree facade over engine with an empty in-memory root and a
// version counter of 0. It does not read the versions table, so a store
// that already holds committed versions is not loaded; LoadVersion points
// the facade at one of them.
func New(engine kvstore.Engine, cdc codec.Codec, logger log.Logger) (*Tree, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	t := &Tree{st: store.New(engine, logger), codec: cdc, logger: logger}
	return t, nil
}

func (t *Tree) Version() int64 {
	return t.st.Version()
}

func (t *Tree) RootHash() [codec.HashSize]byte {
	return t.rootHash
}

func (t *Tree) adapter() storeAdapter {
	return storeAdapter{st: t.st}
}

// LoadVersion points the facade at an already-committed version, for use
// after opening a Tree against a non-empty store.
func (t *Tree) LoadVersion(v int64) error {
	return t.st.Transaction(func() error {
		root, present, err := t.st.GetVersion(v)
		if err != nil {
			return err
		}
		if !present {
			return fmt.Errorf("tree: version %d not found", v)
		}
		t.setRoot(root)
		return nil
	})
}

// StartTransaction opens a new frame on the backing store and snapshots the
// facade's current root so a matching RevertTransaction can restore it,
// however deep the nesting (spec §5).
func (t *Tree) StartTransaction() error {
	if err := t.st.StartTransaction(); err != nil {
		return err
	}
	t.rootStack = append(t.rootStack, rootSnapshot{root: t.root, rootHash: t.rootHash})
	return nil
}

// CommitTransaction flushes the innermost frame into its parent (or into the
// KV engine at depth zero) and discards that frame's root snapshot, keeping
// whatever root is currently cached.
func (t *Tree) CommitTransaction() error {
	if err := t.st.CommitTransaction(); err != nil {
		return err
	}
	if n := len(t.rootStack); n > 0 {
		t.rootStack = t.rootStack[:n-1]
	}
	return nil
}

// RevertTransaction discards the innermost frame's buffered writes and
// restores the facade's root to what it was before that frame was opened.
func (t *Tree) RevertTransaction() error {
	if err := t.st.RevertTransaction(); err != nil {
		return err
	}
	if n := len(t.rootStack); n > 0 {
		snap := t.rootStack[n-1]
		t.rootStack = t.rootStack[:n-1]
		t.root = snap.root
		t.rootHash = snap.rootHash
	}
	return nil
}

// transaction runs body inside one frame opened via StartTransaction,
// committing on success and reverting (root included) on error.
func (t *Tree) transaction(body func() error) error {
	if err := t.StartTransaction(); err != nil {
		return err
	}
	if err := body(); err != nil {
		if revErr := t.RevertTransaction(); revErr != nil {
			return fmt.Errorf("%w (also failed to revert: %v)", err, revErr)
		}
		return err
	}
	return t.CommitTransaction()
}

func (t *Tree) setRoot(rootHash []byte) {
	if len(rootHash) == 0 {
		t.root = nil
		t.rootHash = [codec.HashSize]byte{}
		return
	}
	t.root = refOfHash(rootHash)
	copy(t.rootHash[:], rootHash)
}

// Insert implements spec §4.6 insert.
func (t *Tree) Insert(key, value []byte) error {
	if len(value) == 0 {
		return ErrEmptyValue
	}
	packed := t.codec.Pack(value)
	return t.transaction(func() error {
		m := &mutator{loader: t.adapter(), version: uint32(t.st.Version()), orphanFn: t.makeOrphanFn()}
		var newRoot *NodeRef
		existed := false
		if t.root == nil {
			newRoot = refOf(newLeaf(key, packed))
		} else {
			var err error
			existed, err = t.Has(key)
			if err != nil {
				return err
			}
			newRoot, _, err = m.insertRecursive(t.root, key, packed)
			if err != nil {
				return err
			}
		}
		if t.metrics != nil {
			if existed {
				t.metrics.Updates.Inc()
			} else {
				t.metrics.Inserts.Inc()
			}
		}
		return t.commitRoot(m, newRoot)
	})
}

// Remove implements spec §4.6 remove: a no-op on an absent key still
// advances the version, per the Boundary behaviors.
func (t *Tree) Remove(key []byte) error {
	return t.transaction(func() error {
		m := &mutator{loader: t.adapter(), version: uint32(t.st.Version()), orphanFn: t.makeOrphanFn()}
		if t.root == nil {
			return t.commitRoot(m, nil)
		}
		removedValue, newRoot, _, err := m.removeRecursive(t.root, key)
		if err != nil {
			return err
		}
		if t.metrics != nil && removedValue != nil {
			t.metrics.Removes.Inc()
		}
		return t.commitRoot(m, newRoot)
	})
}

func (t *Tree) makeOrphanFn() func(hash []byte, fromVersion uint32) error {
	toVersion := t.st.Version() - 1
	return func(hash []byte, fromVersion uint32) error {
		return t.st.PutOrphan(hash, int64(fromVersion), toVersion)
	}
}

// commitRoot persists newRoot (which may be nil, an empty tree), records
// the new version's root hash, and updates the in-memory cache.
func (t *Tree) commitRoot(m *mutator, newRoot *NodeRef) error {
	var rootHash []byte
	if newRoot != nil {
		h, err := m.persistRecursive(t.adapter(), newRoot)
		if err != nil {
			return err
		}
		rootHash = h[:]
	}
	if err := t.st.PutVersion(t.st.Version(), rootHash); err != nil {
		return err
	}
	t.root = newRoot
	if rootHash == nil {
		t.rootHash = [codec.HashSize]byte{}
	} else {
		copy(t.rootHash[:], rootHash)
	}
	return nil
}

// Get implements spec §4.6 get.
func (t *Tree) Get(key []byte) ([]byte, bool, error) {
	if t.root == nil {
		return nil, false, nil
	}
	leaf, err := t.find(t.root, key)
	if err != nil {
		return nil, false, err
	}
	if leaf == nil {
		return nil, false, nil
	}
	value, err := t.codec.Unpack(leaf.value)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Has implements spec §4.6 has.
func (t *Tree) Has(key []byte) (bool, error) {
	if t.root == nil {
		return false, nil
	}
	leaf, err := t.find(t.root, key)
	if err != nil {
		return false, err
	}
	return leaf != nil, nil
}

// find implements spec §4.4 Find.
func (t *Tree) find(ref *NodeRef, key []byte) (*Node, error) {
	node, err := ref.Get(t.adapter())
	if err != nil {
		return nil, err
	}
	for !node.isLeaf {
		var next *NodeRef
		if bytes.Compare(key, node.key) < 0 {
			next = node.left
		} else {
			next = node.right
		}
		node, err = next.Get(t.adapter())
		if err != nil {
			return nil, err
		}
	}
	if bytes.Equal(node.key, key) {
		return node, nil
	}
	return nil, nil
}

// Prune implements spec §4.6 prune.
func (t *Tree) Prune(fromV, toV int64) error {
	return t.st.Transaction(func() error {
		return t.st.Prune(fromV, toV)
	})
}

// Clone implements spec §4.6 clone: a fresh facade over the same engine,
// with an independent Store transaction stack and node cache, but observing
// the same committed version history as t (spec.md:163) — a subsequent
// Insert on the clone advances from t.Version(), not from zero.
func (t *Tree) Clone(engine kvstore.Engine) (*Tree, error) {
	clone, err := New(engine, t.codec, t.logger)
	if err != nil {
		return nil, err
	}
	if err := clone.st.SeedVersion(t.Version()); err != nil {
		return nil, err
	}
	if t.root != nil {
		clone.setRoot(t.rootHash[:])
	}
	return clone, nil
}

// GetProof implements spec §4.7 existence proof construction.
func (t *Tree) GetProof(key []byte) (*proof.ExistenceProof, error) {
	if t.root == nil {
		return nil, ErrKeyNotFound
	}
	path, err := findPath(t.adapter(), t.root, key)
	if err != nil {
		return nil, err
	}
	leafEntry := path[len(path)-1]
	if !bytes.Equal(leafEntry.Leaf.key, key) {
		return nil, ErrKeyNotFound
	}
	p := &proof.ExistenceProof{
		Leaf: proof.LeafTriple{
			Version: leafEntry.Leaf.version,
			Key:     leafEntry.Leaf.key,
			Value:   leafEntry.Leaf.value,
		},
	}
	for i := len(path) - 2; i >= 0; i-- {
		entry := path[i]
		b := entry.Branch
		bt := proof.BranchTriple{Version: b.version}
		if entry.WentLeft {
			rh := b.right.Hash()
			bt.Right = rh[:]
		} else {
			lh := b.left.Hash()
			bt.Left = lh[:]
		}
		p.Branches = append(p.Branches, bt)
	}
	return p, nil
}

// VerifyProof implements spec §4.7 existence verification against the
// tree's current root hash.
func (t *Tree) VerifyProof(p *proof.ExistenceProof, key, value []byte) error {
	packed := t.codec.Pack(value)
	return proof.Verify(p, key, packed, t.rootHash[:])
}

// GetNonExistenceProof implements spec §4.7 Non-existence.
func (t *Tree) GetNonExistenceProof(key []byte) (*proof.NonExistenceProof, error) {
	has, err := t.Has(key)
	if err != nil {
		return nil, err
	}
	if has {
		return nil, ErrKeyExists
	}
	out := &proof.NonExistenceProof{Key: key}
	if t.root == nil {
		return out, nil
	}
	leftLeaf, err := leftNeighbor(t.adapter(), t.root, key)
	if err != nil {
		return nil, err
	}
	rightLeaf, err := rightNeighbor(t.adapter(), t.root, key)
	if err != nil {
		return nil, err
	}
	if leftLeaf != nil {
		p, err := t.GetProof(leftLeaf.key)
		if err != nil {
			return nil, err
		}
		out.Left = p
	}
	if rightLeaf != nil {
		p, err := t.GetProof(rightLeaf.key)
		if err != nil {
			return nil, err
		}
		out.Right = p
	}
	if out.Left == nil && out.Right == nil {
		return nil, proof.ErrNoNeighbors
	}
	return out, nil
}

// Store exposes the backing store for the snapshot package, the CLI and
// tests.
func (t *Tree) Store() *store.Store { return t.st }

// Root exposes the current root ref, for DotGraph and for tests.
func (t *Tree) Root() *NodeRef { return t.root }

// Loader exposes the tree's node loader for the snapshot package.
func (t *Tree) Loader() NodeLoader { return t.adapter() }

// Close releases the underlying store.
func (t *Tree) Close() error { return t.st.Close() }
