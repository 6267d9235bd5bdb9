package node

import (
	"fmt"

	"github.com/futureshockco/meeray-node/anchor"
	"github.com/futureshockco/meeray-node/chain"
)

// ProposeBlock assembles, executes, and signs a new candidate block
// extending parent (§4.6, §4.7, §4.9, §4.10's "mining" concern: built
// from consensus+mempool+chain, reaching into neither). Callers are
// responsible for deciding this node is scheduled to propose at
// parent.Height+1 (chain.Validator will reject the result otherwise)
// and for feeding the result into the consensus tracker and the P2P
// broadcaster — this function touches neither.
func (c *Context) ProposeBlock(parent *chain.Block, anchorHeight uint64, anchorTimestamp int64, missedBy []string) (*chain.Block, error) {
	if c.Key == nil {
		return nil, fmt.Errorf("node: cannot propose a block: no witness key configured (observer)")
	}

	params := c.Params.At(parent.Height + 1)
	txs := c.Mempool.Select(params.MaxTxPerBlock)

	b := &chain.Block{
		Height:          parent.Height + 1,
		ParentHash:      parent.Hash,
		AnchorHeight:    anchorHeight,
		AnchorTimestamp: anchorTimestamp,
		Timestamp:       c.now(),
		Transactions:    txs,
		Witness:         c.NodeID,
		MissedBy:        missedBy,
		SyncFlag:        c.Anchor.Mode() == anchor.ModeSync,
	}

	dist, err := c.Engine.ExecuteForValidation(b)
	if err != nil {
		c.requeue(txs)
		return nil, fmt.Errorf("node: propose: execution failed: %w", err)
	}
	b.Dist = dist

	if _, err := b.SetHash(); err != nil {
		c.requeue(txs)
		return nil, fmt.Errorf("node: propose: hash: %w", err)
	}
	if err := b.Sign(c.Key); err != nil {
		c.requeue(txs)
		return nil, fmt.Errorf("node: propose: sign: %w", err)
	}
	return b, nil
}

// requeue returns txs to the mempool, used when a proposal attempt
// fails after selection so the transactions are not silently lost.
func (c *Context) requeue(txs []chain.Transaction) {
	for _, tx := range txs {
		_ = c.Mempool.Add(tx)
	}
}
