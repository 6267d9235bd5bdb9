package node

import (
	"encoding/json"
	"fmt"

	"github.com/futureshockco/meeray-node/chain"
)

// GenesisWitness is the sentinel witness name recorded on the genesis
// block, which predates any witness committee — there is no election
// to produce it (§1: "Genesis bootstrap is a single deterministic
// function, not a ceremony").
const GenesisWitness = "genesis"

// Bootstrap constructs and persists height 0 against an empty data
// directory. genesisTxs (typically a handful of create_token/mint/
// register_witness/vote_witness operations seeding initial balances
// and the first committee) run through the engine exactly like any
// other block's transactions. Bootstrap is a pure function of (the
// engine's starting — empty — state, genesisTxs, anchorHeight,
// anchorTimestamp, timestamp): run it twice against two empty data
// directories with identical inputs and both produce the same block
// hash, with no operator interaction in between.
//
// Bootstrap does not run chain.Validator's rules: there is no parent
// block and no witness committee yet for them to check against.
func Bootstrap(c *Context, genesisTxs []chain.Transaction, anchorHeight uint64, anchorTimestamp, timestamp int64) (*chain.Block, error) {
	if _, ok := c.Blocks.Height(); ok {
		return nil, fmt.Errorf("node: genesis bootstrap called against a non-empty block store")
	}

	b := &chain.Block{
		Height:          0,
		ParentHash:      "",
		AnchorHeight:    anchorHeight,
		AnchorTimestamp: anchorTimestamp,
		Timestamp:       timestamp,
		Transactions:    genesisTxs,
		Witness:         GenesisWitness,
		SyncFlag:        false,
	}

	dist, err := c.Engine.ApplyBlock(b)
	if err != nil {
		return nil, fmt.Errorf("node: genesis execution: %w", err)
	}
	b.Dist = dist

	if _, err := b.SetHash(); err != nil {
		return nil, fmt.Errorf("node: genesis hash: %w", err)
	}
	if c.Key != nil {
		if err := b.Sign(c.Key); err != nil {
			return nil, fmt.Errorf("node: genesis sign: %w", err)
		}
	}

	raw, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("node: genesis encode: %w", err)
	}
	if err := c.Blocks.Append(0, raw); err != nil {
		return nil, fmt.Errorf("node: genesis append: %w", err)
	}

	c.OriginHash = b.Hash
	return b, nil
}
