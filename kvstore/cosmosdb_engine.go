package kvstore

import (
	"context"
	"fmt"

	dbm "github.com/cosmos/cosmos-db"
)

// Backend names accepted by CosmosDBEngine / cmd/iavlplus's --backend flag.
const (
	BackendGoLevelDB = "goleveldb"
	BackendPebble    = "pebbledb"
)

// OpenBackend opens a named cosmos-db backend at dir, mirroring the
// dbm.NewGoLevelDBWithOpts call iavl-v1/main.go makes when wiring its
// store.
func OpenBackend(backend, name, dir string) (dbm.DB, error) {
	switch backend {
	case "", BackendGoLevelDB:
		return dbm.NewGoLevelDB(name, dir, nil)
	case BackendPebble:
		return dbm.NewPebbleDB(name, dir, nil)
	default:
		return nil, fmt.Errorf("unknown kv backend %q", backend)
	}
}

// CosmosDBEngine adapts a github.com/cosmos/cosmos-db DB to the Engine
// interface. Sub-databases are namespaced by prefixing each key with the
// sub-database name and a '/' separator, a generalization of the per-table
// prefixes cosmosdb.go uses ('n' for nodes, 'r' for roots, 'o' for orphans)
// to arbitrary db names.
type CosmosDBEngine struct {
	db dbm.DB
}

func NewCosmosDBEngine(db dbm.DB) *CosmosDBEngine {
	return &CosmosDBEngine{db: db}
}

func namespacedKey(db, key []byte) []byte {
	out := make([]byte, 0, len(db)+1+len(key))
	out = append(out, db...)
	out = append(out, '/')
	out = append(out, key...)
	return out
}

type cosmosDBTx struct {
	db dbm.DB
	// batch is non-nil only while running inside TransactionSync; cosmos-db's
	// Batch type provides the atomicity guarantee the KV-engine contract
	// requires.
	batch dbm.Batch
}

func (t *cosmosDBTx) Get(db, key []byte) ([]byte, error) {
	return t.db.Get(namespacedKey(db, key))
}

func (t *cosmosDBTx) Has(db, key []byte) (bool, error) {
	return t.db.Has(namespacedKey(db, key))
}

func (t *cosmosDBTx) Set(db, key, value []byte) error {
	return t.batch.Set(namespacedKey(db, key), value)
}

func (t *cosmosDBTx) Delete(db, key []byte) error {
	return t.batch.Delete(namespacedKey(db, key))
}

func (t *cosmosDBTx) Iterate(db, start, end []byte, reverse bool, limit int, fn func(key, value []byte) error) error {
	var lo, hi []byte
	if start != nil {
		lo = namespacedKey(db, start)
	} else {
		lo = namespacedKey(db, nil)
	}
	if end != nil {
		hi = namespacedKey(db, end)
	} else {
		hi = prefixUpperBound(namespacedKey(db, nil))
	}

	var it dbm.Iterator
	var err error
	if reverse {
		it, err = t.db.ReverseIterator(lo, hi)
	} else {
		it, err = t.db.Iterator(lo, hi)
	}
	if err != nil {
		return err
	}
	defer it.Close()

	prefix := namespacedKey(db, nil)
	n := 0
	for ; it.Valid(); it.Next() {
		k := it.Key()
		if len(k) < len(prefix) {
			continue
		}
		if err := fn(k[len(prefix):], it.Value()); err != nil {
			return err
		}
		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	return it.Error()
}

// prefixUpperBound returns the smallest key that is strictly greater than
// every key with prefix p, for use as an exclusive range end.
func prefixUpperBound(p []byte) []byte {
	out := make([]byte, len(p))
	copy(out, p)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] < 0xff {
			out[i]++
			return out[:i+1]
		}
	}
	return nil // prefix is all 0xff: unbounded above
}

func (e *CosmosDBEngine) TransactionSync(body func(Tx) error) error {
	batch := e.db.NewBatch()
	defer batch.Close()
	tx := &cosmosDBTx{db: e.db, batch: batch}
	if err := body(tx); err != nil {
		return err
	}
	return batch.Write()
}

func (e *CosmosDBEngine) Transaction(ctx context.Context, body func(Tx) error) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- e.TransactionSync(body)
	}()
	return done
}

func (e *CosmosDBEngine) Close() error {
	return e.db.Close()
}

var _ Engine = (*CosmosDBEngine)(nil)
