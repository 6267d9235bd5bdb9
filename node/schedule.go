package node

import (
	"encoding/json"

	"github.com/futureshockco/meeray-node/chain"
	"github.com/futureshockco/meeray-node/crypto"
	"github.com/futureshockco/meeray-node/witness"
)

// Schedules returns the §4.8 witness committee covering height,
// computed from the vote weights on-chain at the committee's epoch
// boundary and the seed hash of the block at that boundary. It
// satisfies chain.Validator's Schedules field.
//
// Results are cached per epoch boundary: the same (ledger, seed)
// inputs always fold to the same schedule (§9), so recomputing it for
// every block in an epoch would be wasted work, not a correctness
// concern.
func (c *Context) Schedules(height uint64) witness.Schedule {
	k := c.Params.At(height).Witnesses
	epoch := epochBoundary(height, uint64(k))
	if sched, ok := c.scheduleCache[epoch]; ok {
		return sched
	}
	sched := c.computeSchedule(epoch, k)
	c.scheduleCache[epoch] = sched
	return sched
}

// epochBoundary returns the largest multiple of k strictly below
// height, i.e. the height at which the committee covering height was
// computed (§4.8: "at every block h such that h mod witnesses == 0,
// the schedule for the next witnesses slots is computed").
func epochBoundary(height, k uint64) uint64 {
	if k == 0 || height == 0 {
		return 0
	}
	return k * ((height - 1) / k)
}

func (c *Context) computeSchedule(epoch uint64, k int) witness.Schedule {
	seed := c.seedHashAt(epoch)
	entries, err := c.Engine.Ledger.AllVoteWeights()
	if err != nil {
		c.Log.Warn("schedule: read vote weights failed", "epoch", epoch, "err", err)
		entries = nil
	}
	candidates := make([]witness.Candidate, 0, len(entries))
	for _, e := range entries {
		candidates = append(candidates, witness.Candidate{Name: e.Name, VoteWeight: e.Weight})
	}
	return witness.Compute(epoch, seed, candidates, k)
}

// seedHashAt reads the already-committed block at epoch and returns
// its hash digest, the Fisher-Yates seed for that epoch's shuffle.
// Epoch 0 is not read from the block log: it shuffles from the zero
// seed, which is deterministic. That schedule covers heights 1..K
// (genesis itself is unscheduled).
func (c *Context) seedHashAt(epoch uint64) [32]byte {
	if epoch == 0 {
		return [32]byte{}
	}
	raw, ok, err := c.Blocks.ReadOne(epoch)
	if err != nil || !ok {
		c.Log.Warn("schedule: missing seed block", "epoch", epoch)
		return [32]byte{}
	}
	var b chain.Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return [32]byte{}
	}
	digest, err := crypto.DecodeBase58(b.Hash)
	if err != nil || len(digest) != 32 {
		return [32]byte{}
	}
	var seed [32]byte
	copy(seed[:], digest)
	return seed
}
