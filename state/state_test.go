package state

import (
	"github.com/futureshockco/meeray-node/cache"
	"github.com/futureshockco/meeray-node/store"
)

// memStore is an in-memory store.DocStore test double, mirroring the
// one in package cache's own tests.
type memStore struct {
	docs map[string]map[string]store.Document
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]map[string]store.Document)}
}

func (m *memStore) Get(coll, key string) (store.Document, bool, error) {
	c, ok := m.docs[coll]
	if !ok {
		return nil, false, nil
	}
	d, ok := c[key]
	return d, ok, nil
}

func (m *memStore) Put(coll, key string, doc store.Document) error {
	if m.docs[coll] == nil {
		m.docs[coll] = make(map[string]store.Document)
	}
	m.docs[coll][key] = doc
	return nil
}

func (m *memStore) Delete(coll, key string) error {
	delete(m.docs[coll], key)
	return nil
}

func (m *memStore) Find(coll string, filter store.Filter) ([]store.Document, error) {
	var out []store.Document
	for _, d := range m.docs[coll] {
		if docMatches(d, filter) {
			out = append(out, d)
		}
	}
	return out, nil
}

func docMatches(d store.Document, filter store.Filter) bool {
	for k, want := range filter {
		if got, ok := d[k]; !ok || got != want {
			return false
		}
	}
	return true
}

func (m *memStore) BatchWrite(ops []store.WriteOp) error {
	for _, op := range ops {
		if op.Delete {
			if err := m.Delete(op.Coll, op.Key); err != nil {
				return err
			}
			continue
		}
		if err := m.Put(op.Coll, op.Key, op.Doc); err != nil {
			return err
		}
	}
	return nil
}

func newTestLedger() *Ledger {
	return NewLedger(cache.New(newMemStore()))
}
