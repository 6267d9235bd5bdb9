package state

import (
	"testing"

	"github.com/futureshockco/meeray-node/cache"
	"github.com/futureshockco/meeray-node/chain"
	"github.com/futureshockco/meeray-node/config"
)

func newTestEngine() *Engine {
	return NewEngine(cache.New(newMemStore()), config.Table{})
}

func TestEngine_TransferMovesBalance(t *testing.T) {
	e := newTestEngine()
	if err := e.Ledger.Credit("alice", "MRY", mustAmount(t, "1000")); err != nil {
		t.Fatalf("seed credit: %v", err)
	}

	b := &chain.Block{
		Height: 1,
		Transactions: []chain.Transaction{
			{
				Type:   "transfer",
				Sender: "alice",
				Data: map[string]interface{}{
					"to":     "bob",
					"symbol": "MRY",
					"amount": "300",
				},
				Timestamp: 1000,
			},
		},
	}

	dist, err := e.ApplyBlock(b)
	if err != nil {
		t.Fatalf("ApplyBlock: %v", err)
	}
	if dist != "0" {
		t.Fatalf("transfer charges no fee, dist = %s, want 0", dist)
	}

	aliceBal, _ := e.Ledger.Balance("alice", "MRY")
	bobBal, _ := e.Ledger.Balance("bob", "MRY")
	if aliceBal.Cmp(mustAmount(t, "700")) != 0 {
		t.Fatalf("alice balance = %s, want 700", aliceBal)
	}
	if bobBal.Cmp(mustAmount(t, "300")) != 0 {
		t.Fatalf("bob balance = %s, want 300", bobBal)
	}
}

func TestEngine_FailingTransactionDoesNotFailBlock(t *testing.T) {
	e := newTestEngine()
	// alice never receives a balance, so this transfer must fail.
	b := &chain.Block{
		Height: 1,
		Transactions: []chain.Transaction{
			{
				Type:   "transfer",
				Sender: "alice",
				Data: map[string]interface{}{
					"to":     "bob",
					"symbol": "MRY",
					"amount": "300",
				},
				Timestamp: 1000,
			},
			{
				Type:   "create_token",
				Sender: "alice",
				Data: map[string]interface{}{
					"symbol":    "MRY",
					"precision": float64(8),
					"mintable":  true,
				},
				Timestamp: 1001,
			},
		},
	}

	if _, err := e.ApplyBlock(b); err != nil {
		t.Fatalf("ApplyBlock should tolerate a failing transaction: %v", err)
	}

	_, _, _, _, ok, err := e.Ledger.Token("MRY")
	if err != nil || !ok {
		t.Fatalf("expected the second transaction to still succeed, ok=%v err=%v", ok, err)
	}

	aliceExists, err := e.Ledger.AccountExists("alice")
	if err != nil || !aliceExists {
		t.Fatalf("alice should still be auto-upserted even though her transfer failed")
	}
}

func TestEngine_ExecuteForValidationDoesNotMutateState(t *testing.T) {
	e := newTestEngine()
	if err := e.Ledger.Credit("alice", "MRY", mustAmount(t, "1000")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := e.Ledger.Cache.Flush(); err != nil {
		t.Fatalf("flush seed: %v", err)
	}

	b := &chain.Block{
		Height: 1,
		Transactions: []chain.Transaction{
			{
				Type:   "transfer",
				Sender: "alice",
				Data: map[string]interface{}{
					"to":     "bob",
					"symbol": "MRY",
					"amount": "300",
				},
				Timestamp: 1000,
			},
		},
	}

	if _, err := e.ExecuteForValidation(b); err != nil {
		t.Fatalf("ExecuteForValidation: %v", err)
	}

	aliceBal, _ := e.Ledger.Balance("alice", "MRY")
	if aliceBal.Cmp(mustAmount(t, "1000")) != 0 {
		t.Fatalf("dry-run validation must not mutate state, alice balance = %s, want 1000", aliceBal)
	}
}

func TestEngine_SwapFeeAccumulatesIntoDist(t *testing.T) {
	e := newTestEngine()
	poolID := seedPool(t, e.Ledger, "lp1", "MRY", "USDT", "1000000000", "1000000000", "1000000000")
	if err := e.Ledger.Credit("trader", "MRY", mustAmount(t, "100000000")); err != nil {
		t.Fatalf("seed trader: %v", err)
	}
	if err := e.Ledger.Cache.Flush(); err != nil {
		t.Fatalf("flush seed: %v", err)
	}

	b := &chain.Block{
		Height: 1,
		Transactions: []chain.Transaction{
			{
				Type:   "swap",
				Sender: "trader",
				Data: map[string]interface{}{
					"pool":      poolID,
					"token_in":  "MRY",
					"amount_in": "100000000",
				},
				Timestamp: 2000,
			},
		},
	}

	dist, err := e.ApplyBlock(b)
	if err != nil {
		t.Fatalf("ApplyBlock: %v", err)
	}
	if dist != "300000" {
		t.Fatalf("dist = %s, want 300000 (0.3%% of 100_000_000)", dist)
	}
}
