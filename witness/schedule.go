// Package witness computes the deterministic witness committee and
// per-height producer schedule (§4.8).
package witness

import (
	"sort"

	"github.com/futureshockco/meeray-node/amount"
)

// Candidate is an account eligible for the witness committee, ranked
// by its on-chain vote weight (§3 Account.total_vote_weight).
type Candidate struct {
	Name       string
	VoteWeight amount.Amount
}

// Schedule is the shuffled committee computed at one epoch boundary.
// EpochHeight is the height h (h mod K == 0) at which it was computed;
// Order holds the K witness names in shuffled slot order.
type Schedule struct {
	EpochHeight uint64
	Order       []string
}

// RankTopK selects the top-k candidates by vote weight, ties broken by
// account name ascending (§4.8).
func RankTopK(candidates []Candidate, k int) []string {
	ranked := append([]Candidate(nil), candidates...)
	sort.Slice(ranked, func(i, j int) bool {
		cmp := ranked[i].VoteWeight.Cmp(ranked[j].VoteWeight)
		if cmp != 0 {
			return cmp > 0
		}
		return ranked[i].Name < ranked[j].Name
	})
	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]string, k)
	for i := 0; i < k; i++ {
		out[i] = ranked[i].Name
	}
	return out
}

// Compute builds the schedule for the epoch starting after epochHeight:
// the top-K candidates by vote weight, shuffled deterministically by
// Fisher-Yates seeded from seedHash (the latest block hash, §4.8).
func Compute(epochHeight uint64, seedHash [32]byte, candidates []Candidate, k int) Schedule {
	top := RankTopK(candidates, k)
	return Schedule{
		EpochHeight: epochHeight,
		Order:       fisherYatesShuffle(top, seedHash),
	}
}

// fisherYatesShuffle performs an in-place Fisher-Yates shuffle of names,
// drawing randomness from seed interpreted as a repeating byte stream
// (§4.8). Using the raw hash bytes (rather than a seeded PRNG) keeps the
// shuffle portable across implementations: any two nodes hashing the
// same bytes the same way agree on every draw.
func fisherYatesShuffle(names []string, seed [32]byte) []string {
	out := append([]string(nil), names...)
	n := len(out)
	if n == 0 {
		return out
	}
	byteIdx := 0
	nextByte := func() byte {
		b := seed[byteIdx%len(seed)]
		byteIdx++
		return b
	}
	for i := n - 1; i > 0; i-- {
		// one byte per draw, reduced mod (i+1): this carries modulo bias
		// and reaches at most index 255; acceptable here because
		// committee sizes are small (tens, not millions).
		r := int(nextByte()) % (i + 1)
		out[i], out[r] = out[r], out[i]
	}
	return out
}

// SlotForHeight returns the index into Order that is primary for
// height, per the §4.8 formula shuffle[(h-1+i) mod witnesses] evaluated
// at the schedule's epoch boundary.
func (s Schedule) SlotForHeight(height uint64) int {
	k := len(s.Order)
	if k == 0 {
		return -1
	}
	i := int(height-s.EpochHeight) - 1
	idx := (int(s.EpochHeight) - 1 + i) % k
	if idx < 0 {
		idx += k
	}
	return idx
}

// PriorityOf returns the scheduling priority of name for height: 1 if
// it is the primary, otherwise offset+1 where offset is its distance
// from the primary slot in Order (§4.9 rule 5). Zero and false are
// returned if name is not in the schedule.
func (s Schedule) PriorityOf(name string, height uint64) (priority int, ok bool) {
	k := len(s.Order)
	if k == 0 {
		return 0, false
	}
	primaryIdx := s.SlotForHeight(height)
	for offset := 0; offset < k; offset++ {
		idx := (primaryIdx + offset) % k
		if s.Order[idx] == name {
			if offset == 0 {
				return 1, true
			}
			return offset + 1, true
		}
	}
	return 0, false
}

// Primary returns the scheduled primary witness for height.
func (s Schedule) Primary(height uint64) string {
	idx := s.SlotForHeight(height)
	if idx < 0 {
		return ""
	}
	return s.Order[idx]
}
