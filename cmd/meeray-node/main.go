// Command meeray-node runs one witness (or observer) node of the
// delegated-witness sidechain: a small flag-parsing entrypoint over a
// signal.Notify-based graceful shutdown, with the rest of the wiring
// done by the node package's Context.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/futureshockco/meeray-node/anchorclient"
	"github.com/futureshockco/meeray-node/chain"
	"github.com/futureshockco/meeray-node/config"
	"github.com/futureshockco/meeray-node/crypto"
	"github.com/futureshockco/meeray-node/internal/nodelog"
	"github.com/futureshockco/meeray-node/node"
	"github.com/futureshockco/meeray-node/nodecfg"
	"github.com/futureshockco/meeray-node/state"
)

func main() {
	dataDir := flag.String("data-dir", "./data", "directory holding the block log and collection store")
	anchorRPC := flag.String("anchor-rpc", "http://127.0.0.1:8090", "base URL of the anchor-chain read endpoint")
	genesisFile := flag.String("genesis-file", "", "path to a JSON array of genesis transactions, consulted only against an empty data dir")
	logLevel := flag.String("log-level", "info", "debug, info, warn, or error")
	pollInterval := flag.Duration("anchor-poll-interval", time.Second, "how often to tick the anchor ingestor")
	flag.Parse()

	nodelog.SetLevel(nodelog.ParseLevel(*logLevel))
	log := nodelog.New("main")

	if err := run(*dataDir, *anchorRPC, *genesisFile, *pollInterval, log); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(dataDir, anchorRPC, genesisFile string, pollInterval time.Duration, log *nodelog.Logger) error {
	env, err := nodecfg.Load()
	if err != nil {
		return fmt.Errorf("load env config: %w", err)
	}

	params := config.Table(nil) // the default parameter set, §4; hardfork patches are added here as the chain evolves
	registry := state.DefaultRegistry()
	fetcher := anchorclient.NewHTTPFetcher(anchorRPC)
	decode := node.DecodeOperation(registry)

	ctx, err := node.New(env, dataDir, params, fetcher, decode, 0, nil)
	if err != nil {
		return fmt.Errorf("wire node context: %w", err)
	}
	defer func() {
		if cerr := ctx.Close(); cerr != nil {
			log.Warn("close stores failed", "err", cerr)
		}
	}()

	if _, ok := ctx.Blocks.Height(); !ok {
		if genesisFile == "" {
			return fmt.Errorf("data dir is empty and no -genesis-file was given")
		}
		txs, err := loadGenesisTxs(genesisFile)
		if err != nil {
			return fmt.Errorf("load genesis file: %w", err)
		}
		now := time.Now().UnixMilli()
		genesis, err := node.Bootstrap(ctx, txs, 0, now, now)
		if err != nil {
			return fmt.Errorf("genesis bootstrap: %w", err)
		}
		log.Info("genesis bootstrapped", "hash", genesis.Hash)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go ingestLoop(runCtx, ctx, pollInterval, log)
	go produceLoop(runCtx, ctx, log)

	log.Info("node started", "account", env.Account, "witness", env.IsWitness())
	<-quit
	log.Info("shutting down")
	cancel()
	return nil
}

func loadGenesisTxs(path string) ([]chain.Transaction, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var txs []chain.Transaction
	if err := json.Unmarshal(raw, &txs); err != nil {
		return nil, fmt.Errorf("decode genesis transactions: %w", err)
	}
	return txs, nil
}

// ingestLoop drives the anchor-chain ingestor (C5, §4.5): every tick
// it fetches one anchor block and feeds the decoded transactions into
// the mempool, each hashed over its canonical bytes. It does not run
// the anchor package's sync-mode checks (EvaluateLocal, EnterDecision,
// ExitDecision).
func ingestLoop(ctx context.Context, c *node.Context, interval time.Duration, log *nodelog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := c.Anchor.Tick(ctx)
			if err != nil {
				log.Warn("anchor tick failed", "err", err)
				continue
			}
			for _, failure := range res.DecodeFailures {
				log.Warn("anchor decode failure", "type", failure.Operation.Type, "err", failure.Err)
			}
			for _, tx := range res.Transactions {
				t := chain.Transaction{
					Type:      tx.Type,
					Sender:    tx.Sender,
					Data:      tx.Data,
					Timestamp: tx.Timestamp,
				}
				raw, err := chain.CanonicalBytes(t)
				if err != nil {
					log.Debug("anchor tx not encodable", "err", err)
					continue
				}
				digest := crypto.SHA256(raw)
				t.Hash = crypto.EncodeBase58(digest[:])
				if err := c.Mempool.Add(t); err != nil {
					log.Debug("anchor tx not admitted", "err", err)
				}
			}
		}
	}
}

// produceLoop is a devnet/single-node bring-up loop, in the spirit of
// a dev-only miner used for local bring-up. It proposes and immediately
// commits a block on this
// node's own authority whenever it is the scheduled primary, without
// waiting for peer votes; consensus.Tracker is not consulted. A commit
// failure is fatal: the process logs it and exits.
func produceLoop(ctx context.Context, c *node.Context, log *nodelog.Logger) {
	if !c.IsActive() {
		log.Info("observer node: not producing blocks")
		return
	}
	params := c.Params.At(0)
	ticker := time.NewTicker(time.Duration(params.BlockTimeMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			head, ok := c.Blocks.Height()
			if !ok {
				continue
			}
			raw, found, err := c.Blocks.ReadOne(head)
			if err != nil || !found {
				log.Warn("read head block failed", "err", err)
				continue
			}
			var parent chain.Block
			if err := json.Unmarshal(raw, &parent); err != nil {
				log.Warn("decode head block failed", "err", err)
				continue
			}

			sched := c.Schedules(head + 1)
			if sched.Primary(head+1) != c.NodeID {
				continue // not our slot this height; backup witnesses never produce in this loop
			}

			candidate, err := c.ProposeBlock(&parent, c.Anchor.NextHeight()-1, parent.AnchorTimestamp, nil)
			if err != nil {
				log.Warn("propose failed", "err", err)
				continue
			}
			if result := c.Validator.Validate(candidate, &parent, false); !result.OK {
				log.Warn("self-proposed block failed validation", "reason", result.Reason)
				continue
			}
			if err := c.CommitBlock(candidate); err != nil {
				log.Error("commit failed", "err", err)
				os.Exit(1)
			}
			log.Info("block committed", "height", candidate.Height, "hash", candidate.Hash, "txs", len(candidate.Transactions))
		}
	}
}
