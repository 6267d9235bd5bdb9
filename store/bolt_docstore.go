package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltDocStore is the bbolt-backed DocStore used by the node binary.
// Each named collection is its own bucket, created on demand so new
// collections never require a migration.
type BoltDocStore struct {
	db *bolt.DB
}

// OpenBoltDocStore opens (creating if absent) the collections database
// under dataDir.
func OpenBoltDocStore(dataDir string) (*BoltDocStore, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("store: data dir required")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir: %w", err)
	}
	path := filepath.Join(dataDir, "collections.db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open bbolt: %w", err)
	}
	return &BoltDocStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltDocStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltDocStore) bucket(tx *bolt.Tx, coll string, create bool) (*bolt.Bucket, error) {
	if create {
		return tx.CreateBucketIfNotExists([]byte(coll))
	}
	b := tx.Bucket([]byte(coll))
	if b == nil {
		return nil, nil
	}
	return b, nil
}

// Get fetches a single document by key.
func (s *BoltDocStore) Get(coll, key string) (Document, bool, error) {
	var doc Document
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := s.bucket(tx, coll, false)
		if err != nil || b == nil {
			return err
		}
		raw := b.Get([]byte(key))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &doc)
	})
	if err != nil {
		return nil, false, fmt.Errorf("store: get %s/%s: %w", coll, key, err)
	}
	return doc, found, nil
}

// Put upserts a single document.
func (s *BoltDocStore) Put(coll, key string, doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: encode %s/%s: %w", coll, key, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := s.bucket(tx, coll, true)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), raw)
	})
}

// Delete removes a document, if present.
func (s *BoltDocStore) Delete(coll, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := s.bucket(tx, coll, false)
		if err != nil || b == nil {
			return err
		}
		return b.Delete([]byte(key))
	})
}

// Find scans a collection for documents matching filter. The core's
// call sites only ever scan small collections (orders for a pair,
// recent events), so a linear bucket scan is sufficient (§4.6-§4.7).
func (s *BoltDocStore) Find(coll string, filter Filter) ([]Document, error) {
	var out []Document
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := s.bucket(tx, coll, false)
		if err != nil || b == nil {
			return err
		}
		return b.ForEach(func(_, raw []byte) error {
			var doc Document
			if err := json.Unmarshal(raw, &doc); err != nil {
				return err
			}
			if filter.matches(doc) {
				out = append(out, doc)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: find %s: %w", coll, err)
	}
	return out, nil
}

// BatchWrite applies every op in a single bbolt transaction, giving the
// cache's flush (§4.3) all-or-nothing durability for a batch of blocks.
func (s *BoltDocStore) BatchWrite(ops []WriteOp) error {
	if len(ops) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, op := range ops {
			b, err := s.bucket(tx, op.Coll, true)
			if err != nil {
				return err
			}
			if op.Delete {
				if err := b.Delete([]byte(op.Key)); err != nil {
					return err
				}
				continue
			}
			raw, err := json.Marshal(op.Doc)
			if err != nil {
				return fmt.Errorf("store: encode %s/%s: %w", op.Coll, op.Key, err)
			}
			if err := b.Put([]byte(op.Key), raw); err != nil {
				return err
			}
		}
		return nil
	})
}
