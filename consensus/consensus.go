// Package consensus implements the multi-round precommit/commit state
// machine, collision resolution, and liveness rules of C10 (§4.10).
//
// Candidate bookkeeping here is the short-lived "arena" §9 calls for:
// every candidate lives at a single height and the whole arena for
// that height is dropped once a candidate there goes FINAL.
package consensus

import (
	"sort"

	"github.com/futureshockco/meeray-node/chain"
)

// State is a candidate block's position in the PROPOSED/PRECOMMIT/
// COMMIT/FINAL state machine (§4.10).
type State int

const (
	StateProposed State = iota
	StatePrecommit
	StateCommit
	StateFinal
)

// Candidate is one block proposed at a given height, tracked alongside
// which witnesses have voted for it in each round.
type Candidate struct {
	Block  *chain.Block
	State  State
	Round0 map[string]bool // round-0 (precommit) voters
	Round1 map[string]bool // round-1 (commit) voters
}

func newCandidate(b *chain.Block) *Candidate {
	return &Candidate{
		Block:  b,
		State:  StateProposed,
		Round0: make(map[string]bool),
		Round1: make(map[string]bool),
	}
}

// Tracker holds the candidate set for heights still under
// consideration (§3 "Consensus view").
type Tracker struct {
	byHeight map[uint64]map[string]*Candidate // height -> hash -> candidate
}

// NewTracker constructs an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{byHeight: make(map[uint64]map[string]*Candidate)}
}

// Propose adds b to the candidate set for its height, if not already
// present, and returns it.
func (t *Tracker) Propose(b *chain.Block) *Candidate {
	at, ok := t.byHeight[b.Height]
	if !ok {
		at = make(map[string]*Candidate)
		t.byHeight[b.Height] = at
	}
	if c, exists := at[b.Hash]; exists {
		return c
	}
	c := newCandidate(b)
	at[b.Hash] = c
	return c
}

// Candidates returns every candidate currently tracked at height.
func (t *Tracker) Candidates(height uint64) []*Candidate {
	at := t.byHeight[height]
	out := make([]*Candidate, 0, len(at))
	for _, c := range at {
		out = append(out, c)
	}
	return out
}

// RecordVote registers voter's vote for round (0=precommit, 1=commit)
// on the candidate hash at height. It is a no-op if the candidate is
// unknown (the caller should queue such votes, §5's ordering
// guarantee on out-of-order BlockConfRound messages).
func (t *Tracker) RecordVote(height uint64, hash string, round int, voter string) {
	at, ok := t.byHeight[height]
	if !ok {
		return
	}
	c, ok := at[hash]
	if !ok {
		return
	}
	if round == 0 {
		c.Round0[voter] = true
	} else {
		c.Round1[voter] = true
	}
}

// Threshold is the vote count a round must reach to advance (§4.10):
// more than committeeSize*2/3, with the bar raised by one vote if the
// local node is an observer (so it cannot tip the round by counting
// its own non-vote).
func Threshold(committeeSize int, isObserver bool) int {
	need := committeeSize*2/3 + 1
	if isObserver {
		need++
	}
	return need
}

// RoundReached reports whether round r on candidate c has crossed
// threshold.
func RoundReached(c *Candidate, round int, threshold int) bool {
	voters := c.Round0
	if round == 1 {
		voters = c.Round1
	}
	return len(voters) >= threshold
}

// Prune discards every candidate at height <= h, matching the FINAL
// transition's arena-drop (§4.10, §9).
func (t *Tracker) Prune(upToHeight uint64) {
	for h := range t.byHeight {
		if h <= upToHeight {
			delete(t.byHeight, h)
		}
	}
}

// sortKey is the deterministic (timestamp, hash) ordering used both by
// collision resolution (§4.10) and the end-to-end test scenario A.
func sortKey(c *Candidate) (int64, string) {
	return c.Block.Timestamp, c.Block.Hash
}

// SortCandidates orders candidates by (timestamp ASC, hash ASC), the
// deterministic winner-selection order (§4.10, §8 invariant 8).
func SortCandidates(cands []*Candidate) []*Candidate {
	out := append([]*Candidate(nil), cands...)
	sort.Slice(out, func(i, j int) bool {
		ti, hi := sortKey(out[i])
		tj, hj := sortKey(out[j])
		if ti != tj {
			return ti < tj
		}
		return hi < hj
	})
	return out
}
