package store

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketBlocksByHeight = []byte("blocks_by_height")

// BlockStore is the append-only sequential block log (§4.4). It stores
// opaque block bytes keyed by height and never encodes or decodes them
// (node.CommitBlock stores each block's JSON encoding). Height is dense: appending height
// h when the last appended height is not h-1 is a fatal error, since a
// gap would mean the node silently lost a committed block.
type BlockStore struct {
	db        *bolt.DB
	lastHeight uint64
	hasAny     bool
}

// OpenBlockStore opens (creating if absent) the block log under dataDir.
func OpenBlockStore(dataDir string) (*BlockStore, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("blockstore: data dir required")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("blockstore: mkdir: %w", err)
	}
	path := filepath.Join(dataDir, "blocks.db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("blockstore: open bbolt: %w", err)
	}
	bs := &BlockStore{db: db}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBlocksByHeight)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := bs.loadTip(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return bs, nil
}

func (bs *BlockStore) loadTip() error {
	return bs.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketBlocksByHeight).Cursor()
		k, _ := c.Last()
		if k == nil {
			bs.hasAny = false
			return nil
		}
		bs.hasAny = true
		bs.lastHeight = binary.BigEndian.Uint64(k)
		return nil
	})
}

// Close closes the underlying database.
func (bs *BlockStore) Close() error {
	if bs == nil || bs.db == nil {
		return nil
	}
	return bs.db.Close()
}

// Height returns the height of the last appended block and whether any
// block has been appended yet.
func (bs *BlockStore) Height() (uint64, bool) {
	return bs.lastHeight, bs.hasAny
}

func heightKey(height uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, height)
	return k
}

// Append writes blockBytes at height. Height must equal the previous
// height + 1 (or 0 for the first block); any gap is a fatal
// inconsistency, per §4.4.
func (bs *BlockStore) Append(height uint64, blockBytes []byte) error {
	if bs.hasAny && height != bs.lastHeight+1 {
		return fmt.Errorf("blockstore: fatal: height gap, got %d, expected %d", height, bs.lastHeight+1)
	}
	if !bs.hasAny && height != 0 {
		return fmt.Errorf("blockstore: fatal: first appended height must be 0, got %d", height)
	}
	if err := bs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlocksByHeight).Put(heightKey(height), blockBytes)
	}); err != nil {
		return fmt.Errorf("blockstore: append: %w", err)
	}
	bs.lastHeight = height
	bs.hasAny = true
	return nil
}

// ReadOne returns the raw bytes stored at height.
func (bs *BlockStore) ReadOne(height uint64) ([]byte, bool, error) {
	var out []byte
	err := bs.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBlocksByHeight).Get(heightKey(height))
		if v == nil {
			return nil
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("blockstore: read %d: %w", height, err)
	}
	return out, out != nil, nil
}

// ReadRange returns raw block bytes for [from,to], inclusive, in
// ascending height order. Missing heights within the range are omitted
// rather than erroring, since callers use this for best-effort recovery
// responses (§4.11).
func (bs *BlockStore) ReadRange(from, to uint64) ([][]byte, error) {
	if to < from {
		return nil, nil
	}
	var out [][]byte
	err := bs.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketBlocksByHeight).Cursor()
		for k, v := c.Seek(heightKey(from)); k != nil; k, v = c.Next() {
			h := binary.BigEndian.Uint64(k)
			if h > to {
				break
			}
			out = append(out, append([]byte(nil), v...))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("blockstore: range [%d,%d]: %w", from, to, err)
	}
	return out, nil
}

// RewindToHeight truncates the log so the new tip is height, discarding
// every block above it. Used when replaying from a checkpoint.
func (bs *BlockStore) RewindToHeight(height uint64) error {
	if !bs.hasAny || height >= bs.lastHeight {
		return nil
	}
	if err := bs.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlocksByHeight)
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.Seek(heightKey(height + 1)); k != nil; k, _ = c.Next() {
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("blockstore: rewind: %w", err)
	}
	bs.lastHeight = height
	return nil
}
