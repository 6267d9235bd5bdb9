package chain

import (
	"fmt"

	"github.com/futureshockco/meeray-node/config"
	"github.com/futureshockco/meeray-node/crypto"
	"github.com/futureshockco/meeray-node/witness"
)

// Executor reproduces a block's transaction execution (C7) to confirm
// the declared distribution total, §4.9 rule 9.
type Executor interface {
	ExecuteForValidation(b *Block) (dist string, err error)
}

// KeyLookup resolves a witness account name to its registered public
// key, as recorded on-chain.
type KeyLookup func(account string) (crypto.PublicKey, bool)

// RecentEquivocation reports whether account has already signed a
// different block at height with a hash other than hash — used for
// §4.9 rule 6.
type RecentEquivocation func(height uint64, account string, hash string) bool

// Validator checks a candidate block against every rule in §4.9.
type Validator struct {
	Params        config.Table
	Schedules     func(height uint64) witness.Schedule
	Keys          KeyLookup
	Equivocations RecentEquivocation
	Executor      Executor
	Now           func() int64
}

// Result is the outcome of validating one block.
type Result struct {
	Priority int
	OK       bool
	Reason   string
}

func reject(reason string) Result { return Result{Reason: reason} }

// Validate checks b against parent and returns the first failure
// (§4.9). The checks run in this order: shape, height, schedule
// membership (rule 5), minimum delay (rule 3), timestamp drift (rule 4),
// equivocation (rule 6), hash (rule 7), signature (rule 8), then
// execution and dist (rule 9). relax disables the minimum-inter-block-delay check (rule 3), used during
// recovery/replay of historical blocks.
func (v *Validator) Validate(b *Block, parent *Block, relax bool) Result {
	if err := v.checkShape(b); err != nil {
		return reject(err.Error())
	}

	if parent != nil && b.Height != parent.Height+1 {
		return reject(fmt.Sprintf("height %d is not parent height %d + 1", b.Height, parent.Height))
	}

	params := v.Params.At(b.Height)

	schedule := v.Schedules(b.Height)
	priority, scheduled := schedule.PriorityOf(b.Witness, b.Height)
	if !scheduled {
		return reject(fmt.Sprintf("witness %q is not in the scheduled committee for height %d", b.Witness, b.Height))
	}

	if !relax && parent != nil {
		minDelay := expectedMinDelay(priority, b.SyncFlag, params)
		if b.Timestamp-parent.Timestamp < minDelay {
			return reject(fmt.Sprintf("block arrived %dms after parent, need >= %dms", b.Timestamp-parent.Timestamp, minDelay))
		}
	}

	if v.Now != nil {
		maxDrift := params.MaxDriftMs
		if b.Timestamp > v.Now()+maxDrift {
			return reject("timestamp too far in the future")
		}
	}

	if v.Equivocations != nil && v.Equivocations(b.Height, b.Witness, b.Hash) {
		return reject(fmt.Sprintf("witness %q already signed a different block at height %d", b.Witness, b.Height))
	}

	okHash, err := b.VerifyHash()
	if err != nil {
		return reject(fmt.Sprintf("hash recompute error: %v", err))
	}
	if !okHash {
		return reject("block hash does not match canonical serialization")
	}

	if v.Keys != nil {
		pub, known := v.Keys(b.Witness)
		if !known {
			return reject(fmt.Sprintf("no registered key for witness %q", b.Witness))
		}
		okSig, err := b.VerifySignature(pub)
		if err != nil {
			return reject(fmt.Sprintf("signature verify error: %v", err))
		}
		if !okSig {
			return reject("signature does not verify against witness key")
		}
	}

	if v.Executor != nil {
		gotDist, err := v.Executor.ExecuteForValidation(b)
		if err != nil {
			return reject(fmt.Sprintf("transaction execution failed: %v", err))
		}
		if gotDist != b.Dist {
			return reject(fmt.Sprintf("recomputed dist %q does not match declared dist %q", gotDist, b.Dist))
		}
	}

	return Result{Priority: priority, OK: true}
}

func (v *Validator) checkShape(b *Block) error {
	if b.Witness == "" {
		return fmt.Errorf("witness must not be empty")
	}
	if b.ParentHash == "" && b.Height != 0 {
		return fmt.Errorf("parent_hash must not be empty above genesis")
	}
	if b.Timestamp <= 0 {
		return fmt.Errorf("timestamp must be positive")
	}
	params := v.Params.At(b.Height)
	if len(b.Transactions) > params.MaxTxPerBlock {
		return fmt.Errorf("too many transactions: %d > %d", len(b.Transactions), params.MaxTxPerBlock)
	}
	return nil
}

// expectedMinDelay implements §4.9 rule 3: primary priority 1 gives
// 1.0x block_time, backup priority k gives (1+0.5(k-1))x block_time.
// SyncFlag selects the NORMAL vs SYNC base interval (§4.5).
func expectedMinDelay(priority int, syncFlag bool, params config.Params) int64 {
	base := params.BlockTimeMs
	if syncFlag {
		base = params.SyncBlockTimeMs
	}
	if priority <= 1 {
		return base
	}
	// (1 + 0.5*(priority-1)) * base, kept in integer milliseconds by
	// scaling before dividing.
	return (base*2 + base*int64(priority-1)) / 2
}
