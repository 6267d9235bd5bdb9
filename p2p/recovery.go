package p2p

import (
	"fmt"

	"github.com/futureshockco/meeray-node/chain"
)

// ErrRecoveryStall is returned once recovery attempts are exhausted
// (§7 RecoveryStall: "logs fatally, refuses to mine until peer
// topology changes").
var ErrRecoveryStall = fmt.Errorf("p2p: recovery attempts exhausted")

// Recovery buffers out-of-order QUERY_BLOCK responses and releases
// them to the caller strictly in height order (§4.11).
type Recovery struct {
	nextApply   uint64
	maxBuffer   int
	buffer      map[uint64]*chain.Block
	attempts    int
	maxAttempts int
}

// NewRecovery constructs a Recovery starting at nextApply (the local
// head + 1), bounded by maxBuffer buffered blocks and maxAttempts
// fetch attempts.
func NewRecovery(nextApply uint64, maxBuffer, maxAttempts int) *Recovery {
	return &Recovery{
		nextApply:   nextApply,
		maxBuffer:   maxBuffer,
		buffer:      make(map[uint64]*chain.Block),
		maxAttempts: maxAttempts,
	}
}

// Offer buffers b if it is still needed (height >= nextApply) and
// there is room. Blocks below nextApply are silently dropped as
// already-applied duplicates.
func (r *Recovery) Offer(b *chain.Block) error {
	if b.Height < r.nextApply {
		return nil
	}
	if _, dup := r.buffer[b.Height]; dup {
		return nil
	}
	if len(r.buffer) >= r.maxBuffer {
		return fmt.Errorf("p2p: recovery buffer full (max %d)", r.maxBuffer)
	}
	r.buffer[b.Height] = b
	return nil
}

// Drain pops every contiguous block starting at nextApply, in height
// order, and advances nextApply past them.
func (r *Recovery) Drain() []*chain.Block {
	var out []*chain.Block
	for {
		b, ok := r.buffer[r.nextApply]
		if !ok {
			break
		}
		out = append(out, b)
		delete(r.buffer, r.nextApply)
		r.nextApply++
	}
	return out
}

// NextApply reports the next height recovery still needs.
func (r *Recovery) NextApply() uint64 { return r.nextApply }

// RecordAttempt counts one QUERY_BLOCK round-trip attempt, returning
// ErrRecoveryStall once maxAttempts is exceeded.
func (r *Recovery) RecordAttempt() error {
	r.attempts++
	if r.attempts > r.maxAttempts {
		return ErrRecoveryStall
	}
	return nil
}
