package anchor

import (
	"context"
	"errors"
	"testing"
)

type fakeFetcher struct {
	blocks map[uint64]Block
}

func (f *fakeFetcher) FetchBlock(_ context.Context, h uint64) (Block, error) {
	b, ok := f.blocks[h]
	if !ok {
		return Block{}, errors.New("no such anchor height")
	}
	return b, nil
}

func decodeAll(op Operation, anchorTs int64) (Decoded, bool, error) {
	if op.Type != "custom_sidechain" {
		return Decoded{}, false, nil
	}
	if op.Payload == nil {
		return Decoded{}, false, errors.New("missing payload")
	}
	txType, _ := op.Payload["type"].(string)
	return Decoded{Type: txType, Sender: op.Sender, Data: op.Payload, Timestamp: anchorTs}, true, nil
}

func TestTick_DecodesFilteredOperationsAndAdvancesCursor(t *testing.T) {
	f := &fakeFetcher{blocks: map[uint64]Block{
		10: {
			Height:    10,
			Timestamp: 5000,
			Operations: []Operation{
				{Sender: "alice", Type: "custom_sidechain", Payload: map[string]interface{}{"type": "transfer"}},
				{Sender: "bob", Type: "unrelated_op"},
			},
		},
	}}
	in := New(f, decodeAll, 10, 10, 2)

	res, err := in.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(res.Transactions) != 1 || res.Transactions[0].Sender != "alice" {
		t.Fatalf("expected exactly alice's operation decoded, got %v", res.Transactions)
	}
	if in.NextHeight() != 11 {
		t.Fatalf("cursor = %d, want 11", in.NextHeight())
	}
}

func TestTick_DecodeFailureDoesNotBlockProgress(t *testing.T) {
	f := &fakeFetcher{blocks: map[uint64]Block{
		1: {
			Height:    1,
			Timestamp: 1000,
			Operations: []Operation{
				{Sender: "alice", Type: "custom_sidechain", Payload: nil},
			},
		},
	}}
	in := New(f, decodeAll, 1, 10, 2)

	res, err := in.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick must not fail on a decode error: %v", err)
	}
	if len(res.DecodeFailures) != 1 {
		t.Fatalf("expected one recorded decode failure, got %d", len(res.DecodeFailures))
	}
	if in.NextHeight() != 2 {
		t.Fatalf("cursor must still advance past a block with a bad operation, got %d", in.NextHeight())
	}
}

func TestEvaluateLocal_EntersAndExitsSync(t *testing.T) {
	in := New(&fakeFetcher{}, decodeAll, 0, 10, 2)

	if mode, transition := in.EvaluateLocal(5); transition || mode != ModeNormal {
		t.Fatalf("should stay NORMAL below the enter threshold")
	}
	if mode, transition := in.EvaluateLocal(10); !transition || mode != ModeSync {
		t.Fatalf("should request SYNC at/above the enter threshold, got mode=%v transition=%v", mode, transition)
	}

	in.SetMode(ModeSync)
	if mode, transition := in.EvaluateLocal(5); transition || mode != ModeSync {
		t.Fatalf("should stay SYNC above the exit threshold")
	}
	if mode, transition := in.EvaluateLocal(2); !transition || mode != ModeNormal {
		t.Fatalf("should request NORMAL at/below the exit threshold, got mode=%v transition=%v", mode, transition)
	}
}

func TestEnterDecision_RequiresWitnessQuorum(t *testing.T) {
	isWitness := func(id string) bool { return id == "w1" || id == "w2" || id == "w3" }
	in := QuorumInput{
		Reports: []PeerReport{
			{NodeID: "w1", BehindBlocks: 20, Timestamp: 1000},
			{NodeID: "w2", BehindBlocks: 1, Timestamp: 1000},
			{NodeID: "w3", BehindBlocks: 1, Timestamp: 1000},
			{NodeID: "observer", BehindBlocks: 20, Timestamp: 1000},
		},
		IsWitness:      isWitness,
		NowMs:          1000,
		ReportExpiryMs: 5000,
		EnterThreshold: 10,
		EntryQuorumPct: 66,
	}
	if EnterDecision(in) {
		t.Fatalf("only 1/3 witnesses over threshold: quorum must not agree")
	}

	in.Reports[1].BehindBlocks = 20
	if !EnterDecision(in) {
		t.Fatalf("2/3 witnesses over threshold: quorum must agree")
	}
}

func TestEnterDecision_IgnoresStaleReports(t *testing.T) {
	in := QuorumInput{
		Reports: []PeerReport{
			{NodeID: "w1", BehindBlocks: 20, Timestamp: 0},
		},
		IsWitness:      func(string) bool { return true },
		NowMs:          100000,
		ReportExpiryMs: 1000,
		EnterThreshold: 10,
		EntryQuorumPct: 66,
		LocalBehind:    3,
	}
	// The only report is stale, so the network map is effectively empty;
	// local behind (3) is below 5x threshold (50), so no unilateral entry.
	if EnterDecision(in) {
		t.Fatalf("expected no entry: stale report ignored and local lag below degenerate-start threshold")
	}
}

func TestEnterDecision_DegenerateStartAllowsUnilateralEntry(t *testing.T) {
	in := QuorumInput{
		Reports:        nil,
		NowMs:          1000,
		ReportExpiryMs: 1000,
		EnterThreshold: 10,
		EntryQuorumPct: 66,
		LocalBehind:    50,
	}
	if !EnterDecision(in) {
		t.Fatalf("expected unilateral entry when local behind >= 5x threshold and no network map")
	}
}

func TestExitDecision_FallsBackToAllPeersWhenNoWitnessesReport(t *testing.T) {
	in := QuorumInput{
		Reports: []PeerReport{
			{NodeID: "peerA", BehindBlocks: 1, Timestamp: 1000},
			{NodeID: "peerB", BehindBlocks: 1, Timestamp: 1000},
		},
		IsWitness:      func(string) bool { return false },
		NowMs:          1000,
		ReportExpiryMs: 5000,
		ExitThreshold:  2,
		ExitQuorumPct:  66,
	}
	if !ExitDecision(in) {
		t.Fatalf("expected exit quorum to fall back to all reporting peers")
	}
}
