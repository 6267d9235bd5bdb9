package cache

import (
	"testing"

	"github.com/futureshockco/meeray-node/store"
)

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
		out = append(out, d)
	}
	return out, nil
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

func TestGet_ReadsOwnWritesWithinBlock(t *testing.T) {
	c := New(newMemStore())
	if err := c.Put("accounts", "alice", store.Document{"name": "alice"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	doc, ok, err := c.Get("accounts", "alice")
	if err != nil || !ok {
		t.Fatalf("expected to read own write, ok=%v err=%v", ok, err)
	}
	if doc["name"] != "alice" {
		t.Fatalf("unexpected doc: %+v", doc)
	}
}

func TestRollback_DiscardsStagedOnly(t *testing.T) {
	c := New(newMemStore())
	_ = c.Put("accounts", "alice", store.Document{"balance": "100"})
	c.Checkpoint()
	_ = c.Put("accounts", "alice", store.Document{"balance": "999"})
	c.Rollback()

	doc, ok, err := c.Get("accounts", "alice")
	if err != nil || !ok {
		t.Fatalf("expected checkpointed doc to remain, ok=%v err=%v", ok, err)
	}
	if doc["balance"] != "100" {
		t.Fatalf("rollback should not discard checkpointed writes, got %+v", doc)
	}
}

func TestRollbackBlock_RestoresPreBlockState(t *testing.T) {
	backing := newMemStore()
	_ = backing.Put("accounts", "alice", store.Document{"balance": "50"})
	c := New(backing)

	_ = c.Put("accounts", "alice", store.Document{"balance": "100"})
	c.Checkpoint()
	_ = c.Put("accounts", "alice", store.Document{"balance": "999"})

	c.RollbackBlock()

	doc, _, _ := c.Get("accounts", "alice")
	if doc["balance"] != "50" {
		t.Fatalf("rollback-block must restore pre-block content, got %+v", doc)
	}
}

func TestFlush_WritesThroughToBacking(t *testing.T) {
	backing := newMemStore()
	c := New(backing)
	_ = c.Put("accounts", "alice", store.Document{"balance": "100"})
	if err := c.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	doc, ok, _ := backing.Get("accounts", "alice")
	if !ok || doc["balance"] != "100" {
		t.Fatalf("expected backing store to contain flushed doc, got %+v ok=%v", doc, ok)
	}
	if c.Pending() != 0 {
		t.Fatalf("expected no pending writes after flush, got %d", c.Pending())
	}
}

func TestFlush_BatchesAcrossCheckpoints(t *testing.T) {
	backing := newMemStore()
	c := New(backing)
	_ = c.Put("accounts", "alice", store.Document{"balance": "1"})
	c.Checkpoint()
	_ = c.Put("accounts", "bob", store.Document{"balance": "2"})
	c.Checkpoint()

	if _, ok, _ := backing.Get("accounts", "alice"); ok {
		t.Fatalf("backing must not see writes before flush")
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if _, ok, _ := backing.Get("accounts", "alice"); !ok {
		t.Fatalf("expected alice flushed")
	}
	if _, ok, _ := backing.Get("accounts", "bob"); !ok {
		t.Fatalf("expected bob flushed")
	}
}
