// Package store implements the versions/nodes/orphans backing store and its
// transaction stack (spec §4.2, §4.5), layered on the abstract kvstore.Engine.
package store

import (
	"errors"
	"fmt"

	"cosmossdk.io/log"

	"iavlplus/codec"
	"iavlplus/kvstore"
	"iavlplus/metrics"
)

// errTxReverted is the sentinel returned from the outermost transaction body
// to force the underlying KV engine to abort the batch.
var errTxReverted = errors.New("store: transaction reverted")

// Store wraps a kvstore.Engine with the versions, nodes, and orphans tables
// and a nested transaction stack (spec §4.2, §5).
type Store struct {
	engine  kvstore.Engine
	logger  log.Logger
	version int64

	frames   []kvstore.Tx
	finishCh chan error
	resultCh chan error

	metrics *metrics.Metrics
}

func New(engine kvstore.Engine, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Store{engine: engine, logger: logger}
}

// SetMetrics attaches counters that PutOrphan and Prune report to.
func (s *Store) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Version returns the current version counter: the version that the next
// commit will advance to while a transaction is open, or the last committed
// version otherwise.
func (s *Store) Version() int64 {
	return s.version
}

func (s *Store) Depth() int {
	return len(s.frames)
}

// SeedVersion sets the version counter on a store that has never had a
// transaction opened against it, so a fresh handle (e.g. a Tree clone) can
// pick up where another handle over the same engine left off without
// replaying or re-deriving any committed version itself.
func (s *Store) SeedVersion(v int64) error {
	if len(s.frames) != 0 {
		return fmt.Errorf("store: cannot seed version while a transaction is open")
	}
	s.version = v
	return nil
}

// StartTransaction pushes a new transaction frame (spec §5). On the
// outermost call, the version counter advances by one and a synchronous KV
// transaction is opened on a background goroutine parked behind a channel,
// so that subsequent Store calls can keep issuing operations against it
// until CommitTransaction/RevertTransaction closes it out (spec §9's
// "transactions as continuations" note).
func (s *Store) StartTransaction() error {
	if len(s.frames) == 0 {
		s.version++
		ready := make(chan kvstore.Tx, 1)
		finish := make(chan error, 1)
		result := make(chan error, 1)
		go func() {
			err := s.engine.TransactionSync(func(tx kvstore.Tx) error {
				ready <- tx
				return <-finish
			})
			result <- err
		}()
		tx := <-ready
		s.frames = []kvstore.Tx{tx}
		s.finishCh = finish
		s.resultCh = result
		return nil
	}

	parent := s.frames[len(s.frames)-1]
	s.frames = append(s.frames, newOverlayTx(parent))
	return nil
}

// CommitTransaction pops one transaction frame. Only the outermost commit
// flushes the underlying KV transaction.
func (s *Store) CommitTransaction() error {
	if len(s.frames) == 0 {
		return ErrNoActiveTransaction
	}
	top := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]

	if len(s.frames) == 0 {
		s.finishCh <- nil
		err := <-s.resultCh
		s.finishCh, s.resultCh = nil, nil
		if err != nil {
			return fmt.Errorf("committing kv transaction: %w", err)
		}
		return nil
	}

	overlay, ok := top.(*overlayTx)
	if !ok {
		return fmt.Errorf("store: frame %d is not an overlay", len(s.frames))
	}
	return overlay.flush()
}

// RevertTransaction pops one transaction frame without applying its writes.
// If the popped frame was the outermost, the version counter is decremented
// back and the KV transaction is rolled back.
func (s *Store) RevertTransaction() error {
	if len(s.frames) == 0 {
		return ErrNoActiveTransaction
	}
	s.frames = s.frames[:len(s.frames)-1]

	if len(s.frames) == 0 {
		s.finishCh <- errTxReverted
		<-s.resultCh
		s.finishCh, s.resultCh = nil, nil
		s.version--
		return nil
	}
	return nil
}

// Transaction runs body inside one top-level transaction, committing on
// success and reverting on error (spec §4.2's transaction(body)).
func (s *Store) Transaction(body func() error) error {
	if err := s.StartTransaction(); err != nil {
		return err
	}
	if err := body(); err != nil {
		if revErr := s.RevertTransaction(); revErr != nil {
			return fmt.Errorf("%w (also failed to revert: %v)", err, revErr)
		}
		return err
	}
	return s.CommitTransaction()
}

func (s *Store) tx() (kvstore.Tx, error) {
	if len(s.frames) == 0 {
		return nil, ErrNoActiveTransaction
	}
	return s.frames[len(s.frames)-1], nil
}

// PutVersion writes the root hash for version v. An empty or nil root is
// stored as zero-length bytes, denoting an empty tree.
func (s *Store) PutVersion(v int64, root []byte) error {
	tx, err := s.tx()
	if err != nil {
		return err
	}
	if root == nil {
		root = []byte{}
	}
	return tx.Set([]byte(kvstore.DBVersions), codec.U32BE(uint32(v)), root)
}

// GetVersion returns the root hash recorded for version v, and whether that
// version is present at all (a present-but-empty root denotes an empty
// tree, distinct from absence).
func (s *Store) GetVersion(v int64) (root []byte, present bool, err error) {
	tx, err := s.tx()
	if err != nil {
		return nil, false, err
	}
	has, err := tx.Has([]byte(kvstore.DBVersions), codec.U32BE(uint32(v)))
	if err != nil || !has {
		return nil, false, err
	}
	root, err = tx.Get([]byte(kvstore.DBVersions), codec.U32BE(uint32(v)))
	return root, true, err
}

// LatestVersionWithRoot returns the greatest version strictly less than
// before that has an entry in the versions table, or 0 if none exists. Used
// by Prune to find the pruning window's lower boundary (spec §4.5 step 1).
func (s *Store) LatestVersionWithRoot(before int64) (int64, error) {
	tx, err := s.tx()
	if err != nil {
		return 0, err
	}
	var found int64
	err = tx.Iterate([]byte(kvstore.DBVersions), nil, codec.U32BE(uint32(before)), true, 1, func(key, _ []byte) error {
		found = int64(codec.U32BEDecode(key))
		return nil
	})
	return found, err
}

func (s *Store) DeleteVersion(v int64) error {
	tx, err := s.tx()
	if err != nil {
		return err
	}
	return tx.Delete([]byte(kvstore.DBVersions), codec.U32BE(uint32(v)))
}

// PutNode writes the encoded node form at its content hash. Idempotent:
// overwriting with the same key is safe since the content is identical by
// construction (invariant 4).
func (s *Store) PutNode(hash, encoded []byte) error {
	tx, err := s.tx()
	if err != nil {
		return err
	}
	return tx.Set([]byte(kvstore.DBNodes), hash, encoded)
}

// GetNode returns the encoded form stored at hash, or ErrNodeNotFound.
func (s *Store) GetNode(hash []byte) ([]byte, error) {
	tx, err := s.tx()
	if err != nil {
		return nil, err
	}
	v, err := tx.Get([]byte(kvstore.DBNodes), hash)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%w: %x", ErrNodeNotFound, hash)
	}
	return v, nil
}

func (s *Store) deleteNode(hash []byte) error {
	tx, err := s.tx()
	if err != nil {
		return err
	}
	return tx.Delete([]byte(kvstore.DBNodes), hash)
}

// PutOrphan declares that the node with hash H, born at fromVersion, became
// unreachable starting at toVersion+1 (spec §4.2, invariant 6). If
// fromVersion is after toVersion — the node was created and replaced within
// the same version — it never needs to survive a commit, so it is deleted
// immediately instead of being recorded as an orphan.
func (s *Store) PutOrphan(hash []byte, fromVersion, toVersion int64) error {
	if fromVersion > toVersion {
		return s.deleteNode(hash)
	}
	tx, err := s.tx()
	if err != nil {
		return err
	}
	key := encodeOrphanKey(uint32(toVersion), uint32(fromVersion), hash)
	if err := tx.Set([]byte(kvstore.DBOrphans), key, []byte{1}); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.OrphansEmitted.Inc()
	}
	return nil
}

func (s *Store) deleteOrphanKey(key []byte) error {
	tx, err := s.tx()
	if err != nil {
		return err
	}
	return tx.Delete([]byte(kvstore.DBOrphans), key)
}

// OrphanCount returns the number of live orphan records, used by tests to
// assert the pruning-closure property (spec §8).
func (s *Store) OrphanCount() (int, error) {
	tx, err := s.tx()
	if err != nil {
		return 0, err
	}
	count := 0
	err = tx.Iterate([]byte(kvstore.DBOrphans), nil, nil, false, 0, func(_, _ []byte) error {
		count++
		return nil
	})
	return count, err
}

// NodeCount returns the number of entries in the nodes table.
func (s *Store) NodeCount() (int, error) {
	tx, err := s.tx()
	if err != nil {
		return 0, err
	}
	count := 0
	err = tx.Iterate([]byte(kvstore.DBNodes), nil, nil, false, 0, func(_, _ []byte) error {
		count++
		return nil
	})
	return count, err
}

// Prune collapses the obsolescence window [fromVersion, toVersion] (spec
// §4.5): every node that became unreachable at some version in that window
// is either deleted outright (if it was never visible before the window) or
// has its orphan record rewritten to point at the window's lower boundary,
// so that a later Prune call can still find and reclaim it once versions
// before the boundary are themselves pruned. Every versions-table entry in
// the window is then dropped, since queries against a pruned version are no
// longer served (Non-goal: pruned-version queries).
func (s *Store) Prune(fromVersion, toVersion int64) error {
	tx, err := s.tx()
	if err != nil {
		return err
	}
	// Inside the open transaction the counter is one past the last committed
	// version; that committed version is the current one and is never pruned.
	current := s.version - 1
	if fromVersion <= 0 || toVersion < fromVersion || toVersion >= current {
		return fmt.Errorf("%w: [%d, %d] against current version %d", ErrInvalidPruneRange, fromVersion, toVersion, current)
	}

	prevVersion, err := s.LatestVersionWithRoot(fromVersion)
	if err != nil {
		return err
	}

	var orphanKeys [][]byte
	start := codec.U32BE(uint32(fromVersion))
	end := codec.U32BE(uint32(toVersion) + 1)
	err = tx.Iterate([]byte(kvstore.DBOrphans), start, end, false, 0, func(key, _ []byte) error {
		cp := make([]byte, len(key))
		copy(cp, key)
		orphanKeys = append(orphanKeys, cp)
		return nil
	})
	if err != nil {
		return err
	}

	for _, key := range orphanKeys {
		_, fromV, hash := decodeOrphanKey(key)
		if err := s.deleteOrphanKey(key); err != nil {
			return err
		}
		if prevVersion < int64(fromV) {
			if err := s.deleteNode(hash); err != nil {
				return err
			}
			if s.metrics != nil {
				s.metrics.NodesPruned.Inc()
			}
			continue
		}
		newKey := encodeOrphanKey(uint32(prevVersion), fromV, hash)
		if err := tx.Set([]byte(kvstore.DBOrphans), newKey, []byte{1}); err != nil {
			return err
		}
	}

	for v := fromVersion; v <= toVersion; v++ {
		if err := s.DeleteVersion(v); err != nil {
			return err
		}
	}
	if s.metrics != nil {
		s.metrics.Prunes.Inc()
	}
	return nil
}

// Close releases the underlying KV engine. No transaction may be active.
func (s *Store) Close() error {
	return s.engine.Close()
}
