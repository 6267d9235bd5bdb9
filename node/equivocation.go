package node

import "sync"

// EquivocationTracker remembers the hash each witness has signed at
// each height it has been seen proposing, so chain.Validator rule 6
// can reject a second, different block from the same witness at the
// same height (§4.9 rule 6).
//
// A single mutex-protected map, purged by the caller rather than
// internally, since the caller (CommitBlock) already knows when a
// height is committed and safe to forget.
type EquivocationTracker struct {
	mu   sync.Mutex
	seen map[uint64]map[string]string // height -> witness -> hash
}

// NewEquivocationTracker constructs an empty tracker.
func NewEquivocationTracker() *EquivocationTracker {
	return &EquivocationTracker{seen: make(map[uint64]map[string]string)}
}

// Record notes that witness signed hash at height. The first hash
// recorded for a (height, witness) pair is kept; later calls for the
// same pair never overwrite it.
// Call this once a candidate has been accepted into the consensus
// tracker, not on every gossiped copy of the same block.
func (e *EquivocationTracker) Record(height uint64, witnessName, hash string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	at, ok := e.seen[height]
	if !ok {
		at = make(map[string]string)
		e.seen[height] = at
	}
	if _, exists := at[witnessName]; !exists {
		at[witnessName] = hash
	}
}

// Seen reports whether witness has already signed a different block
// at height (chain.RecentEquivocation).
func (e *EquivocationTracker) Seen(height uint64, witnessName string, hash string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	at, ok := e.seen[height]
	if !ok {
		return false
	}
	prior, ok := at[witnessName]
	return ok && prior != hash
}

// Prune discards every recorded height <= upToHeight, matching
// consensus.Tracker.Prune's arena-drop at the same boundary (§4.10).
func (e *EquivocationTracker) Prune(upToHeight uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for h := range e.seen {
		if h <= upToHeight {
			delete(e.seen, h)
		}
	}
}
