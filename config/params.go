// Package config models the chain's tunable parameters and their
// per-height overrides. The source this node is modeled on applies ad
// hoc partial overrides to a large configuration object at fixed
// heights ("hardforks"); this package makes that pattern explicit as a
// sorted list of immutable patches folded by a pure function (§9).
package config

// Params is the full set of tunables consulted by the consensus,
// anchor-ingestion, and state-transition components.
type Params struct {
	Witnesses int // committee size K (§4.8)

	BlockTimeMs     int64 // NORMAL mode inter-block target (§4.5)
	SyncBlockTimeMs int64 // SYNC mode inter-block target (§4.5)
	MaxDriftMs      int64 // §4.9 rule 4

	MaxTxPerBlock  int
	MaxMempoolSize int
	TxExpirationMs int64 // replay window (§7, §8 invariant 7)

	SyncEnterThreshold      uint64 // behind_blocks threshold to enter SYNC (§4.5)
	SyncExitThreshold       uint64 // behind_blocks threshold to exit SYNC (§4.5)
	SyncEntryQuorumPercent  int    // §4.5.2
	SyncExitQuorumPercent   int    // §4.5.2
	SteemHeightExpiryMs     int64  // §4.5.2 peer report staleness

	ConsensusRounds   int   // precommit/commit rounds (§4.10)
	CollisionWindowMs int64 // SYNC-mode collision window (§4.10, glossary)
	StaleWindowMs     int64 // GC threshold for collision windows (§4.10)

	MaxHops          int // AMM auto-route hop cap (§4.7.2)
	SlippagePercent  int // default slippage when no min_amount_out given (§4.7.2)
	FeeBps           int // AMM swap fee, fixed at 30 (§4.7.1)

	MaxBlocksBuffer    int   // recovery out-of-order buffer (§4.11)
	MaxRecoverAttempts int   // recovery attempt cap (§4.11)
	KeepHistoryForMs   int64 // gossip de-dup retention (§4.11)
	HandshakeTimeoutMs int64 // §4.11
	MaxPeers           int
}

// Default returns the baseline parameter set for genesis and any
// height before the first hardfork patch.
func Default() Params {
	return Params{
		Witnesses: 10,

		BlockTimeMs:     3000,
		SyncBlockTimeMs: 1000,
		MaxDriftMs:      15000,

		MaxTxPerBlock:  1000,
		MaxMempoolSize: 2000,
		TxExpirationMs: 60 * 60 * 1000,

		SyncEnterThreshold:     10,
		SyncExitThreshold:      2,
		SyncEntryQuorumPercent: 66,
		SyncExitQuorumPercent:  66,
		SteemHeightExpiryMs:    30000,

		ConsensusRounds:   2,
		CollisionWindowMs: 200,
		StaleWindowMs:     2000,

		MaxHops:         3,
		SlippagePercent: 1,
		FeeBps:          30,

		MaxBlocksBuffer:    2000,
		MaxRecoverAttempts: 5,
		KeepHistoryForMs:   20000,
		HandshakeTimeoutMs: 5000,
		MaxPeers:           64,
	}
}

// Patch mutates a Params value in place to express a partial override.
type Patch func(*Params)

// HardforkEntry binds a patch to the height at which it first applies.
type HardforkEntry struct {
	Height uint64
	Patch  Patch
}

// Table is an immutable, height-ordered list of hardfork entries.
// Entries need not be supplied in order; At sorts defensively.
type Table []HardforkEntry

// At folds every patch whose height is <= h, in ascending height order,
// onto the default parameters, and returns the result. At is a pure
// function of (table, h): the same table and height always produce the
// same Params (§9).
func (t Table) At(h uint64) Params {
	ordered := append(Table(nil), t...)
	sortByHeight(ordered)
	p := Default()
	for _, e := range ordered {
		if e.Height > h {
			break
		}
		e.Patch(&p)
	}
	return p
}

func sortByHeight(t Table) {
	for i := 1; i < len(t); i++ {
		for j := i; j > 0 && t[j-1].Height > t[j].Height; j-- {
			t[j-1], t[j] = t[j], t[j-1]
		}
	}
}
