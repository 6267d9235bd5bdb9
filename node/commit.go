package node

import (
	"encoding/json"
	"fmt"

	"github.com/futureshockco/meeray-node/chain"
)

// CommitBlock applies b — already validated by chain.Validator — for
// real: executes it against the engine and flushes the result, appends
// it to the block log, marks its transactions committed in the
// mempool's replay window, records b in the equivocation tracker, and
// prunes both the consensus tracker and the equivocation tracker up to
// the previous height, so the record for b's own height is kept
// (§4.3, §4.4, §4.6, §4.10). It does not consult the consensus
// tracker's candidate state. The dist check
// itself already happened inside Validate's dry run; this is the
// for-real execution of the same deterministic transition.
func (c *Context) CommitBlock(b *chain.Block) error {
	if _, err := c.Engine.ApplyBlock(b); err != nil {
		return fmt.Errorf("node: commit: execution failed: %w", err)
	}

	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("node: commit: encode: %w", err)
	}
	if err := c.Blocks.Append(b.Height, raw); err != nil {
		return fmt.Errorf("node: commit: append block log: %w", err)
	}

	params := c.Params.At(b.Height)
	c.Mempool.MarkCommitted(b.Transactions, b.Timestamp, c.now()-params.TxExpirationMs)
	c.Equiv.Record(b.Height, b.Witness, b.Hash)

	if b.Height > 0 {
		c.Consensus.Prune(b.Height - 1)
		c.Equiv.Prune(b.Height - 1)
	}
	return nil
}
