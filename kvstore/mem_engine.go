package kvstore

import (
	"bytes"
	"context"
	"sort"
	"sync"
)

// MemEngine is an in-memory reference Engine: a sorted key slice per
// sub-database backed by a map, used by tests. The CLI does not use it; it
// always opens a CosmosDBEngine at --db-dir.
type MemEngine struct {
	mu  sync.Mutex
	dbs map[string]*memDB
}

type memDB struct {
	keys   []string // sorted
	values map[string][]byte
}

func NewMemEngine() *MemEngine {
	return &MemEngine{dbs: make(map[string]*memDB)}
}

func (e *MemEngine) db(name string) *memDB {
	d, ok := e.dbs[name]
	if !ok {
		d = &memDB{values: make(map[string][]byte)}
		e.dbs[name] = d
	}
	return d
}

func (d *memDB) index(key string) (int, bool) {
	i := sort.SearchStrings(d.keys, key)
	return i, i < len(d.keys) && d.keys[i] == key
}

func (d *memDB) set(key string, value []byte) {
	i, found := d.index(key)
	if found {
		d.values[key] = value
		return
	}
	d.keys = append(d.keys, "")
	copy(d.keys[i+1:], d.keys[i:])
	d.keys[i] = key
	d.values[key] = value
}

func (d *memDB) delete(key string) {
	i, found := d.index(key)
	if !found {
		return
	}
	d.keys = append(d.keys[:i], d.keys[i+1:]...)
	delete(d.values, key)
}

type memTx struct {
	e *MemEngine
}

func (t *memTx) Get(db, key []byte) ([]byte, error) {
	t.e.mu.Lock()
	defer t.e.mu.Unlock()
	d := t.e.db(string(db))
	if v, ok := d.values[string(key)]; ok {
		return bytes.Clone(v), nil
	}
	return nil, nil
}

func (t *memTx) Has(db, key []byte) (bool, error) {
	v, err := t.Get(db, key)
	return v != nil, err
}

func (t *memTx) Set(db, key, value []byte) error {
	t.e.mu.Lock()
	defer t.e.mu.Unlock()
	t.e.db(string(db)).set(string(key), bytes.Clone(value))
	return nil
}

func (t *memTx) Delete(db, key []byte) error {
	t.e.mu.Lock()
	defer t.e.mu.Unlock()
	t.e.db(string(db)).delete(string(key))
	return nil
}

func (t *memTx) Iterate(db, start, end []byte, reverse bool, limit int, fn func(key, value []byte) error) error {
	t.e.mu.Lock()
	d := t.e.db(string(db))
	keys := make([]string, len(d.keys))
	copy(keys, d.keys)
	values := make(map[string][]byte, len(d.values))
	for k, v := range d.values {
		values[k] = v
	}
	t.e.mu.Unlock()

	lo := 0
	hi := len(keys)
	if start != nil {
		lo = sort.SearchStrings(keys, string(start))
	}
	if end != nil {
		hi = sort.SearchStrings(keys, string(end))
	}
	if lo > hi {
		lo = hi
	}
	window := keys[lo:hi]
	if reverse {
		for i := len(window) - 1; i >= 0; i-- {
			if err := fn([]byte(window[i]), values[window[i]]); err != nil {
				return err
			}
			if limit > 0 {
				limit--
				if limit == 0 {
					break
				}
			}
		}
		return nil
	}
	for _, k := range window {
		if err := fn([]byte(k), values[k]); err != nil {
			return err
		}
		if limit > 0 {
			limit--
			if limit == 0 {
				break
			}
		}
	}
	return nil
}

// memStagingTx buffers a transaction's writes in memory and only applies
// them to the engine's real maps once the body returns successfully,
// mirroring the overlay-over-parent buffering store.overlayTx uses for
// nested frames — here the "parent" is the committed state itself, so an
// aborted body leaves it untouched instead of having already mutated it.
type memStagingTx struct {
	base   *memTx
	writes map[string]map[string]memWrite
}

type memWrite struct {
	deleted bool
	value   []byte
}

func newMemStagingTx(base *memTx) *memStagingTx {
	return &memStagingTx{base: base, writes: make(map[string]map[string]memWrite)}
}

func (s *memStagingTx) dbWrites(db []byte) map[string]memWrite {
	m, ok := s.writes[string(db)]
	if !ok {
		m = make(map[string]memWrite)
		s.writes[string(db)] = m
	}
	return m
}

func (s *memStagingTx) Get(db, key []byte) ([]byte, error) {
	if dbw, ok := s.writes[string(db)]; ok {
		if w, ok := dbw[string(key)]; ok {
			if w.deleted {
				return nil, nil
			}
			return bytes.Clone(w.value), nil
		}
	}
	return s.base.Get(db, key)
}

func (s *memStagingTx) Has(db, key []byte) (bool, error) {
	v, err := s.Get(db, key)
	return v != nil, err
}

func (s *memStagingTx) Set(db, key, value []byte) error {
	s.dbWrites(db)[string(key)] = memWrite{value: bytes.Clone(value)}
	return nil
}

func (s *memStagingTx) Delete(db, key []byte) error {
	s.dbWrites(db)[string(key)] = memWrite{deleted: true}
	return nil
}

func (s *memStagingTx) Iterate(db, start, end []byte, reverse bool, limit int, fn func(key, value []byte) error) error {
	inRange := func(k string) bool {
		if start != nil && k < string(start) {
			return false
		}
		if end != nil && k >= string(end) {
			return false
		}
		return true
	}

	merged := make(map[string]memWrite)
	err := s.base.Iterate(db, start, end, false, 0, func(key, value []byte) error {
		merged[string(key)] = memWrite{value: value}
		return nil
	})
	if err != nil {
		return err
	}
	for k, w := range s.writes[string(db)] {
		if inRange(k) {
			merged[k] = w
		}
	}

	keys := make([]string, 0, len(merged))
	for k, w := range merged {
		if !w.deleted {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if reverse {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}

	n := 0
	for _, k := range keys {
		if err := fn([]byte(k), merged[k].value); err != nil {
			return err
		}
		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	return nil
}

// flush applies the staged writes directly into the engine's maps, once the
// transaction body has returned successfully.
func (s *memStagingTx) flush() error {
	for db, writes := range s.writes {
		for key, w := range writes {
			if w.deleted {
				if err := s.base.Delete([]byte(db), []byte(key)); err != nil {
					return err
				}
			} else if err := s.base.Set([]byte(db), []byte(key), w.value); err != nil {
				return err
			}
		}
	}
	return nil
}

var _ Tx = (*memStagingTx)(nil)

func (e *MemEngine) TransactionSync(body func(Tx) error) error {
	staging := newMemStagingTx(&memTx{e: e})
	if err := body(staging); err != nil {
		return err
	}
	return staging.flush()
}

func (e *MemEngine) Transaction(ctx context.Context, body func(Tx) error) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- e.TransactionSync(body)
	}()
	return done
}

func (e *MemEngine) Close() error { return nil }

var _ Engine = (*MemEngine)(nil)
