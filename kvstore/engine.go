// Package kvstore defines the abstract ordered key/value engine the store
// package is built on (spec §6), plus two concrete implementations: an
// in-memory reference engine and a github.com/cosmos/cosmos-db backed one.
package kvstore

import "context"

// Tx is a handle to a synchronous transaction body. All reads and writes
// issued through a Tx are visible to each other immediately, and are
// committed or rolled back atomically when the enclosing Engine.TransactionSync
// call returns.
type Tx interface {
	Get(db, key []byte) ([]byte, error)
	Has(db, key []byte) (bool, error)
	Set(db, key, value []byte) error
	Delete(db, key []byte) error
	// Iterate ranges over [start, end) in db, ascending if reverse is false.
	// A nil start or end means unbounded on that side. limit <= 0 means
	// unbounded.
	Iterate(db, start, end []byte, reverse bool, limit int, fn func(key, value []byte) error) error
}

// Engine is the abstract ordered KV store spec §6 names as an external
// collaborator: named sub-databases, synchronous put/get/delete, binary
// keys, range scans with start/end/limit/reverse, synchronous and
// asynchronous transactions, close.
type Engine interface {
	// TransactionSync runs body inside one synchronous transaction. If body
	// returns an error, the transaction is rolled back and the error is
	// returned unchanged.
	TransactionSync(body func(Tx) error) error
	// Transaction runs body asynchronously, returning a channel that
	// receives the single completion error.
	Transaction(ctx context.Context, body func(Tx) error) <-chan error
	Close() error
}

// Sub-database names used by store.Store.
const (
	DBVersions = "versions"
	DBNodes    = "nodes"
	DBOrphans  = "orphans"
)
