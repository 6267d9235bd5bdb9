// Package anchor implements the anchor-chain ingestor and sync-mode
// FSM (C5, §4.5): polling an external chain for blocks, decoding
// sidechain operations out of them, and tracking how far behind the
// node is so the sync-mode state machine can speed up block
// production to catch up.
//
// State lives in an atomic value, the fetch call is injected so tests
// never touch a real external endpoint, and Tick is driven by the
// caller's own loop rather than an internal goroutine-per-component.
package anchor

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Mode is the sync-mode FSM's state (§4.5).
type Mode int32

const (
	ModeNormal Mode = iota
	ModeSync
)

func (m Mode) String() string {
	if m == ModeSync {
		return "SYNC"
	}
	return "NORMAL"
}

// Operation is one decoded custom operation carried by an anchor
// block, already filtered to ones naming our sidechain (§4.5).
type Operation struct {
	Sender  string
	Type    string
	Payload map[string]interface{}
}

// Block is an anchor-chain block as the core sees it (§1's explicit
// `fetch_block(height)` interface: timestamp plus a list of custom
// operations — nothing else about the anchor chain is visible here).
type Block struct {
	Height     uint64
	Timestamp  int64
	Operations []Operation
}

// Fetcher is the injected anchor-chain client (§1, out of core scope
// beyond this interface).
type Fetcher interface {
	FetchBlock(ctx context.Context, height uint64) (Block, error)
}

// Decoded is a sidechain transaction decoded from an anchor operation.
type Decoded struct {
	Type      string
	Sender    string
	Data      map[string]interface{}
	Timestamp int64
}

// DecodeFailure records one operation whose Decoder returned an error;
// Tick collects these in TickResult.DecodeFailures for the caller to
// log, and they never block progress (§4.5).
type DecodeFailure struct {
	Operation Operation
	Err       error
}

func (d *DecodeFailure) Error() string {
	return fmt.Sprintf("anchor: decode failed for op type %q: %v", d.Operation.Type, d.Err)
}

// Decoder turns one anchor operation into a sidechain transaction.
// Returning ok=false with no error means "not one of ours" and is
// silently skipped; returning an error means a malformed payload,
// logged and skipped (§4.5).
type Decoder func(op Operation, anchorTimestamp int64) (tx Decoded, ok bool, err error)

// Ingestor owns the anchor cursor and the sync-mode FSM.
type Ingestor struct {
	fetcher Fetcher
	decode  Decoder

	next uint64
	mode atomic.Int32

	enterThreshold uint64
	exitThreshold  uint64
}

// New constructs an Ingestor starting at startHeight (the height of
// the next anchor block to fetch).
func New(fetcher Fetcher, decode Decoder, startHeight uint64, enterThreshold, exitThreshold uint64) *Ingestor {
	return &Ingestor{
		fetcher:        fetcher,
		decode:         decode,
		next:           startHeight,
		enterThreshold: enterThreshold,
		exitThreshold:  exitThreshold,
	}
}

// NextHeight returns the next anchor height the ingestor will fetch.
func (in *Ingestor) NextHeight() uint64 { return in.next }

// Mode returns the current local sync-mode reading.
func (in *Ingestor) Mode() Mode { return Mode(in.mode.Load()) }

// TickResult is the outcome of one ingestion step.
type TickResult struct {
	AnchorHeight    uint64
	AnchorTimestamp int64
	Transactions    []Decoded
	DecodeFailures  []DecodeFailure
}

// Tick fetches the anchor block at the current cursor, decodes its
// sidechain operations, and advances the cursor by one on success.
// Decode failures never abort the tick (§4.5).
func (in *Ingestor) Tick(ctx context.Context) (TickResult, error) {
	blk, err := in.fetcher.FetchBlock(ctx, in.next)
	if err != nil {
		return TickResult{}, fmt.Errorf("anchor: fetch_block(%d): %w", in.next, err)
	}

	res := TickResult{AnchorHeight: blk.Height, AnchorTimestamp: blk.Timestamp}
	for _, op := range blk.Operations {
		tx, ok, derr := in.decode(op, blk.Timestamp)
		if derr != nil {
			res.DecodeFailures = append(res.DecodeFailures, DecodeFailure{Operation: op, Err: derr})
			continue
		}
		if !ok {
			continue
		}
		res.Transactions = append(res.Transactions, tx)
	}
	in.next = blk.Height + 1
	return res, nil
}

// BehindBlocks is the lag between the anchor chain's current head and
// the cursor we have ingested up to.
func BehindBlocks(anchorHead, ingestedUpTo uint64) uint64 {
	if anchorHead <= ingestedUpTo {
		return 0
	}
	return anchorHead - ingestedUpTo
}

// EvaluateLocal applies the local half of the sync-mode FSM transition
// (§4.5): the behind_blocks comparison, independent of the network
// quorum checks (EnterDecision/ExitDecision in quorum.go) layered on top.
func (in *Ingestor) EvaluateLocal(behindBlocks uint64) (want Mode, shouldTransition bool) {
	switch in.Mode() {
	case ModeNormal:
		if behindBlocks >= in.enterThreshold {
			return ModeSync, true
		}
	case ModeSync:
		if behindBlocks <= in.exitThreshold {
			return ModeNormal, true
		}
	}
	return in.Mode(), false
}

// SetMode forces the FSM into mode, used once a quorum decision (or a
// forced-exit liveness rule, §4.10) confirms the transition.
func (in *Ingestor) SetMode(m Mode) {
	in.mode.Store(int32(m))
}

// DegenerateStartThreshold is the multiplier §4.5.2 uses for the
// "network map empty and locally critically behind" unilateral-entry
// condition.
const DegenerateStartThreshold = 5
