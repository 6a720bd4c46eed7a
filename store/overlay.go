package store

import (
	"sort"

	"iavlplus/kvstore"
)

// overlayTx buffers writes from a nested transaction frame in memory,
// falling through to a parent frame for reads. Committing an overlay
// flushes its buffered writes into the parent frame; reverting it simply
// discards the overlay, leaving the parent untouched — this is how
// RevertTransaction on an inner frame undoes only that frame's own writes
// (spec §5), the same cache-over-store layering cosmos-sdk's cachekv store
// uses for nested branching.
type overlayTx struct {
	parent kvstore.Tx
	writes map[string]map[string]overlayWrite
}

type overlayWrite struct {
	deleted bool
	value   []byte
}

func newOverlayTx(parent kvstore.Tx) *overlayTx {
	return &overlayTx{parent: parent, writes: make(map[string]map[string]overlayWrite)}
}

func (o *overlayTx) dbWrites(db []byte) map[string]overlayWrite {
	m, ok := o.writes[string(db)]
	if !ok {
		m = make(map[string]overlayWrite)
		o.writes[string(db)] = m
	}
	return m
}

func (o *overlayTx) Get(db, key []byte) ([]byte, error) {
	if dbw, ok := o.writes[string(db)]; ok {
		if w, ok := dbw[string(key)]; ok {
			if w.deleted {
				return nil, nil
			}
			return w.value, nil
		}
	}
	return o.parent.Get(db, key)
}

func (o *overlayTx) Has(db, key []byte) (bool, error) {
	v, err := o.Get(db, key)
	return v != nil, err
}

func (o *overlayTx) Set(db, key, value []byte) error {
	o.dbWrites(db)[string(key)] = overlayWrite{value: value}
	return nil
}

func (o *overlayTx) Delete(db, key []byte) error {
	o.dbWrites(db)[string(key)] = overlayWrite{deleted: true}
	return nil
}

func (o *overlayTx) Iterate(db, start, end []byte, reverse bool, limit int, fn func(key, value []byte) error) error {
	inRange := func(k string) bool {
		if start != nil && k < string(start) {
			return false
		}
		if end != nil && k >= string(end) {
			return false
		}
		return true
	}

	merged := make(map[string]overlayWrite)
	err := o.parent.Iterate(db, start, end, false, 0, func(key, value []byte) error {
		merged[string(key)] = overlayWrite{value: value}
		return nil
	})
	if err != nil {
		return err
	}
	for k, w := range o.writes[string(db)] {
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

// flush applies this overlay's buffered writes into its parent frame.
func (o *overlayTx) flush() error {
	for db, writes := range o.writes {
		for key, w := range writes {
			if w.deleted {
				if err := o.parent.Delete([]byte(db), []byte(key)); err != nil {
					return err
				}
			} else if err := o.parent.Set([]byte(db), []byte(key), w.value); err != nil {
				return err
			}
		}
	}
	return nil
}

var _ kvstore.Tx = (*overlayTx)(nil)
