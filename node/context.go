// Package node wires the core's independent components together into
// a runnable process (§9's "constructor injection, not a shared
// God-object"): New builds chain.Validator from the parameter table,
// the schedule and witness-key lookups, the equivocation tracker and
// the state engine; the mempool, consensus tracker, anchor ingestor and
// p2p address book and dedup set are built from configuration alone;
// block production is a Context method. No component here reaches back
// up into the one that constructed it — Context is the only place that
// holds every wire.
//
// Construction is a single validating constructor building one struct
// that holds every dependency, rather than a service-locator or global
// registry.
package node

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/futureshockco/meeray-node/anchor"
	"github.com/futureshockco/meeray-node/cache"
	"github.com/futureshockco/meeray-node/chain"
	"github.com/futureshockco/meeray-node/config"
	"github.com/futureshockco/meeray-node/consensus"
	"github.com/futureshockco/meeray-node/crypto"
	"github.com/futureshockco/meeray-node/internal/nodelog"
	"github.com/futureshockco/meeray-node/mempool"
	"github.com/futureshockco/meeray-node/nodecfg"
	"github.com/futureshockco/meeray-node/p2p"
	"github.com/futureshockco/meeray-node/state"
	"github.com/futureshockco/meeray-node/store"
	"github.com/futureshockco/meeray-node/witness"
)

// Context holds every wired component a running node needs. It is
// built once at startup by New and handed to the P2P listener, the
// anchor-ingestion loop, and the block-production loop, each of which
// only touches the fields relevant to it.
type Context struct {
	Env    nodecfg.Env
	Params config.Table
	Log    *nodelog.Logger

	Blocks *store.BlockStore
	Docs   *store.BoltDocStore
	Cache  *cache.Cache
	Engine *state.Engine

	Key    *crypto.PrivateKey // nil for an observer node (§4.10)
	NodeID string

	Mempool   *mempool.Pool
	Anchor    *anchor.Ingestor
	Consensus *consensus.Tracker
	Validator *chain.Validator
	Equiv     *EquivocationTracker

	Peers *p2p.AddressBook
	Dedup *p2p.DedupSet

	OriginHash string // base58 hash of the genesis block (§4.11 acceptance criterion a)

	scheduleCache map[uint64]witness.Schedule
	now           func() int64
}

// Clock is the injected wall-clock, overridden by tests so validation
// (§4.9 rule 4) and the gossip clock-drift check (§4.11) are
// deterministic.
type Clock func() int64

func defaultClock() int64 { return time.Now().UnixMilli() }

// New wires every component over a freshly opened (or reopened) data
// directory. fetcher and decode are the anchor-chain client and
// operation decoder (§1, out of core scope beyond anchor.Fetcher);
// anchorStartHeight is the next anchor height to ingest, normally one
// past whatever height the node last committed against.
func New(env nodecfg.Env, dataDir string, params config.Table, fetcher anchor.Fetcher, decode anchor.Decoder, anchorStartHeight uint64, clock Clock) (*Context, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("node: data dir required")
	}
	if clock == nil {
		clock = defaultClock
	}

	blocks, err := store.OpenBlockStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("node: open block store: %w", err)
	}
	docs, err := store.OpenBoltDocStore(dataDir)
	if err != nil {
		_ = blocks.Close()
		return nil, fmt.Errorf("node: open doc store: %w", err)
	}

	c := cache.New(docs)
	engine := state.NewEngine(c, params)

	var key *crypto.PrivateKey
	nodeID := env.Account
	if env.IsWitness() {
		raw, err := crypto.DecodeBase58(env.WitnessPrivateKey)
		if err != nil {
			_ = docs.Close()
			_ = blocks.Close()
			return nil, fmt.Errorf("node: decode WITNESS_PRIVATE_KEY: %w", err)
		}
		key, err = crypto.PrivateKeyFromBytes(raw)
		if err != nil {
			_ = docs.Close()
			_ = blocks.Close()
			return nil, fmt.Errorf("node: parse WITNESS_PRIVATE_KEY: %w", err)
		}
	}

	ctx := &Context{
		Env:           env,
		Params:        params,
		Log:           nodelog.New("node"),
		Blocks:        blocks,
		Docs:          docs,
		Cache:         c,
		Engine:        engine,
		Key:           key,
		NodeID:        nodeID,
		Mempool:       mempool.New(env.MempoolSize, params.At(0).TxExpirationMs),
		Consensus:     consensus.NewTracker(),
		Equiv:         NewEquivocationTracker(),
		Peers:         p2p.NewAddressBook(env.Peers),
		Dedup:         p2p.NewDedupSet(),
		scheduleCache: make(map[uint64]witness.Schedule),
		now:           clock,
	}

	p := params.At(0)
	ctx.Anchor = anchor.New(fetcher, decode, anchorStartHeight, p.SyncEnterThreshold, p.SyncExitThreshold)

	ctx.Validator = &chain.Validator{
		Params:        params,
		Schedules:     ctx.Schedules,
		Keys:          ctx.keyLookup,
		Equivocations: ctx.Equiv.Seen,
		Executor:      engine,
		Now:           ctx.now,
	}

	if head, ok := blocks.Height(); ok {
		if raw, found, err := blocks.ReadOne(0); err == nil && found {
			var genesis chain.Block
			if decodeErr := json.Unmarshal(raw, &genesis); decodeErr == nil {
				ctx.OriginHash = genesis.Hash
			}
		}
		ctx.Log.Info("resumed existing chain", "height", head)
	}

	return ctx, nil
}

// keyLookup adapts Ledger.WitnessKey to chain.KeyLookup.
func (c *Context) keyLookup(account string) (crypto.PublicKey, bool) {
	raw, ok, err := c.Engine.Ledger.WitnessKey(account)
	if err != nil || !ok {
		return crypto.PublicKey{}, false
	}
	pub, err := crypto.PublicKeyFromBase58(raw)
	if err != nil {
		return crypto.PublicKey{}, false
	}
	return pub, true
}

// Close releases the underlying store handles.
func (c *Context) Close() error {
	derr := c.Docs.Close()
	berr := c.Blocks.Close()
	if berr != nil {
		return berr
	}
	return derr
}

// IsActive reports whether this node holds a signing key that matches
// account's on-chain registered key (§4.10's active/observer split).
// A node without a key, or whose account has no registered key or a
// different one, is an observer.
func (c *Context) IsActive() bool {
	if c.Key == nil {
		return false
	}
	registered, ok, err := c.Engine.Ledger.WitnessKey(c.NodeID)
	if err != nil || !ok {
		return false
	}
	return registered == c.Key.Public().String()
}
