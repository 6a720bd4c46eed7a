package store

import "errors"

var (
	// ErrNoActiveTransaction is returned by CommitTransaction/RevertTransaction
	// when the transaction stack is empty.
	ErrNoActiveTransaction = errors.New("store: no active transaction")
	// ErrVersionNotFound names a version absent from the versions table. No
	// function in this package returns it: GetVersion reports absence through
	// its present result instead.
	ErrVersionNotFound = errors.New("store: version not found")
	// ErrNodeNotFound is returned by GetNode when a hash has no entry in the
	// nodes table; it signals corruption, since every referenced hash must
	// be reachable or orphaned (invariant 5).
	ErrNodeNotFound = errors.New("store: node not found")
	// ErrInvalidPruneRange is returned by Prune when the requested interval
	// reaches or exceeds the current version.
	ErrInvalidPruneRange = errors.New("store: invalid prune range")
)
