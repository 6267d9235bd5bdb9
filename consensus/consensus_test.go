package consensus

import (
	"testing"

	"github.com/futureshockco/meeray-node/chain"
)

func block(height uint64, witness, hash string, ts int64) *chain.Block {
	return &chain.Block{Height: height, Witness: witness, Hash: hash, Timestamp: ts}
}

func TestThreshold_RaisedForObserver(t *testing.T) {
	if got := Threshold(10, false); got != 7 {
		t.Fatalf("Threshold(10, false) = %d, want 7", got)
	}
	if got := Threshold(10, true); got != 8 {
		t.Fatalf("Threshold(10, true) = %d, want 8 (observer bar raised by one)", got)
	}
}

func TestTracker_RecordVoteAndRoundReached(t *testing.T) {
	tr := NewTracker()
	c := tr.Propose(block(100, "w4", "0x11", 1700000000000))

	threshold := Threshold(10, false) // 7
	for i := 0; i < 6; i++ {
		tr.RecordVote(100, "0x11", 0, witnessName(i))
	}
	if RoundReached(c, 0, threshold) {
		t.Fatalf("round 0 should not be reached at 6/7")
	}
	tr.RecordVote(100, "0x11", 0, witnessName(6))
	if !RoundReached(c, 0, threshold) {
		t.Fatalf("round 0 should be reached at 7/7")
	}
}

func witnessName(i int) string {
	return string(rune('A' + i))
}

func TestResolve_SmallestTimestampHashWins(t *testing.T) {
	tr := NewTracker()
	// Scenario A (§8): W4 (T, 0x11) vs W5 (T+50, 0x10); both reach
	// round-0 threshold; W4 wins on timestamp alone.
	const T = int64(1700000000000)
	w4 := tr.Propose(block(100, "w4", "0x11", T))
	w5 := tr.Propose(block(100, "w5", "0x10", T+50))

	threshold := Threshold(10, false)
	for i := 0; i < threshold; i++ {
		tr.RecordVote(100, "0x11", 0, witnessName(i))
		tr.RecordVote(100, "0x10", 0, witnessName(i))
	}

	winner, losers := Resolve(tr.Candidates(100), threshold)
	if winner == nil || winner.Block.Witness != "w4" {
		t.Fatalf("expected w4 to win on (timestamp ASC, hash ASC), got %v", winner)
	}
	if len(losers) != 1 || losers[0].Block.Witness != "w5" {
		t.Fatalf("expected w5 as the sole loser, got %v", losers)
	}
	_ = w4
	_ = w5
}

func TestResolve_IgnoresCandidatesBelowThreshold(t *testing.T) {
	tr := NewTracker()
	tr.Propose(block(100, "w4", "0x11", 1000))
	winner, losers := Resolve(tr.Candidates(100), 7)
	if winner != nil || losers != nil {
		t.Fatalf("expected no winner when no candidate reached threshold")
	}
}

func TestWindow_CollectsAndResolvesDeterministically(t *testing.T) {
	c1 := newCandidate(block(50, "w1", "0xaa", 1000))
	c2 := newCandidate(block(50, "w2", "0xab", 990))

	w := OpenWindow(50, 1000, c1)
	w.Add(c2)

	if w.Ready(1150, 200) {
		t.Fatalf("window should not be ready before 200ms elapse")
	}
	if !w.Ready(1200, 200) {
		t.Fatalf("window should be ready once 200ms elapse")
	}

	winner, losers := w.Resolve()
	if winner.Block.Witness != "w2" {
		t.Fatalf("expected w2 (earlier timestamp) to win the SYNC-mode window, got %v", winner.Block.Witness)
	}
	if len(losers) != 1 {
		t.Fatalf("expected exactly one loser, got %d", len(losers))
	}
}

func TestWindow_Stale(t *testing.T) {
	c1 := newCandidate(block(50, "w1", "0xaa", 1000))
	w := OpenWindow(50, 1000, c1)
	if w.Stale(2500, 2000) {
		t.Fatalf("window at age 1500 should not be stale with a 2000ms threshold")
	}
	if !w.Stale(3001, 2000) {
		t.Fatalf("window at age 2001 should be stale with a 2000ms threshold")
	}
}

func TestForceExitSync_BelowQuorum(t *testing.T) {
	// witnesses=10 -> ceil(6.6) = 7
	if !ForceExitSync(6, 10) {
		t.Fatalf("6 witness peers of 10 should force-exit SYNC")
	}
	if ForceExitSync(7, 10) {
		t.Fatalf("7 witness peers of 10 should not force-exit SYNC")
	}
}

func TestTracker_PrunePreservesLaterHeights(t *testing.T) {
	tr := NewTracker()
	tr.Propose(block(100, "w1", "0xaa", 1000))
	tr.Propose(block(101, "w2", "0xbb", 2000))

	tr.Prune(100)
	if len(tr.Candidates(100)) != 0 {
		t.Fatalf("expected height 100 pruned")
	}
	if len(tr.Candidates(101)) != 1 {
		t.Fatalf("expected height 101 preserved")
	}
}
