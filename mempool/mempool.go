// Package mempool implements the bounded transaction pool (C6, §4.6):
// duplicate-hash rejection, a replay window over recently committed
// transaction hashes (§7, §8 invariant 7), and per-sender one-tx-per-
// block block assembly ordered by timestamp.
package mempool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/futureshockco/meeray-node/chain"
)

// Pool is a bounded, in-memory mempool. It is safe for concurrent use:
// admissions can race with P2P ingestion while the core loop reads it
// for block assembly (§5's "mempool is owned by the transaction
// module; producers read it under the core loop only" still holds —
// this lock exists for the P2P-ingestion producer, not for the core
// loop's own reads).
type Pool struct {
	mu       sync.Mutex
	maxSize  int
	pending  map[string]chain.Transaction // hash -> tx
	replay   map[string]int64             // hash -> commit timestamp, for the replay window
	expireMs int64
}

// New constructs a Pool bounded at maxSize admissions, with a replay
// window of expireMs (§7 tx_expiration_time).
func New(maxSize int, expireMs int64) *Pool {
	return &Pool{
		maxSize:  maxSize,
		pending:  make(map[string]chain.Transaction),
		replay:   make(map[string]int64),
		expireMs: expireMs,
	}
}

// Add admits tx if it is not a duplicate, not within the replay
// window, and the pool is not full (§4.6).
func (p *Pool) Add(tx chain.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if tx.Hash == "" {
		return fmt.Errorf("mempool: transaction has no hash")
	}
	if _, dup := p.pending[tx.Hash]; dup {
		return fmt.Errorf("mempool: duplicate transaction %s", tx.Hash)
	}
	if committedAt, seen := p.replay[tx.Hash]; seen {
		return fmt.Errorf("mempool: transaction %s already committed at %d (replay window)", tx.Hash, committedAt)
	}
	if len(p.pending) >= p.maxSize {
		return fmt.Errorf("mempool: full (max %d)", p.maxSize)
	}
	p.pending[tx.Hash] = tx
	return nil
}

// Remove drops a transaction from the pending set without marking it
// committed (used when a transaction is dropped, e.g. it failed
// validation standalone).
func (p *Pool) Remove(hash string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, hash)
}

// Size reports the current number of pending transactions.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Has reports whether hash is currently pending.
func (p *Pool) Has(hash string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.pending[hash]
	return ok
}

// Select picks at most maxTx pending transactions for block assembly:
// at most one per sender, ordered by timestamp ascending (§4.6). The
// selected hashes are removed from the pending set; callers that fail
// to include the block should re-Add the losers themselves.
func (p *Pool) Select(maxTx int) []chain.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	all := make([]chain.Transaction, 0, len(p.pending))
	for _, tx := range p.pending {
		all = append(all, tx)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Timestamp != all[j].Timestamp {
			return all[i].Timestamp < all[j].Timestamp
		}
		return all[i].Hash < all[j].Hash
	})

	seenSender := make(map[string]bool, len(all))
	out := make([]chain.Transaction, 0, maxTx)
	for _, tx := range all {
		if len(out) >= maxTx {
			break
		}
		if seenSender[tx.Sender] {
			continue
		}
		seenSender[tx.Sender] = true
		out = append(out, tx)
	}
	for _, tx := range out {
		delete(p.pending, tx.Hash)
	}
	return out
}

// MarkCommitted records the hashes of a committed block's transactions
// in the replay window and evicts them from the pending set (they are
// no longer eligible for selection). expireBefore is the cutoff below
// which older replay entries are pruned, keeping the window bounded.
func (p *Pool) MarkCommitted(txs []chain.Transaction, blockTimestamp, expireBefore int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tx := range txs {
		delete(p.pending, tx.Hash)
		p.replay[tx.Hash] = blockTimestamp
	}
	for hash, ts := range p.replay {
		if ts < expireBefore {
			delete(p.replay, hash)
		}
	}
}

// IsReplay reports whether hash was committed within the replay
// window, i.e. at or after nowMs-expireMs (§7, §8 invariant 7).
func (p *Pool) IsReplay(hash string, nowMs int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ts, ok := p.replay[hash]
	if !ok {
		return false
	}
	return ts >= nowMs-p.expireMs
}
