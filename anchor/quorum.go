package anchor

// PeerReport is one periodic broadcast a witness-peer makes about its
// own anchor-lag state (§4.5.2).
type PeerReport struct {
	NodeID       string
	BehindBlocks uint64
	IsSyncing    bool
	HeadHeight   uint64
	AnchorHead   uint64
	Timestamp    int64
}

// QuorumInput is everything a quorum decision needs beyond the raw
// peer reports: which reporters are witnesses (committee members) and
// the current wall-clock time, used to age out stale reports.
type QuorumInput struct {
	Reports         []PeerReport
	IsWitness       func(nodeID string) bool
	NowMs           int64
	ReportExpiryMs  int64
	EnterThreshold  uint64
	ExitThreshold   uint64
	EntryQuorumPct  int
	ExitQuorumPct   int
	LocalBehind     uint64
}

// fresh filters out reports older than ReportExpiryMs.
func fresh(in QuorumInput) []PeerReport {
	out := make([]PeerReport, 0, len(in.Reports))
	for _, r := range in.Reports {
		if in.NowMs-r.Timestamp <= in.ReportExpiryMs {
			out = append(out, r)
		}
	}
	return out
}

// EnterDecision evaluates the NORMAL -> SYNC network-quorum half of
// §4.5's transition rule, applying §4.5.2's counting and fallback
// rules.
func EnterDecision(in QuorumInput) bool {
	reports := fresh(in)
	if len(reports) == 0 {
		// Degenerate-start condition: no network map, but locally very
		// far behind — allow unilateral entry (§4.5.2).
		return in.LocalBehind >= DegenerateStartThreshold*in.EnterThreshold
	}
	return quorumAgrees(reports, in.IsWitness, in.EntryQuorumPct, func(r PeerReport) bool {
		return r.BehindBlocks > in.EnterThreshold || r.IsSyncing
	})
}

// ExitDecision evaluates the SYNC -> NORMAL network-quorum half of
// §4.5's transition rule.
func ExitDecision(in QuorumInput) bool {
	reports := fresh(in)
	if len(reports) == 0 {
		return true
	}
	return quorumAgrees(reports, in.IsWitness, in.ExitQuorumPct, func(r PeerReport) bool {
		return r.BehindBlocks <= in.ExitThreshold && !r.IsSyncing
	})
}

// quorumAgrees counts witness-peer reports satisfying predicate and
// compares against pct of reporting witnesses, falling back to all
// reporting peers only when no witness reports at all (§4.5.2).
func quorumAgrees(reports []PeerReport, isWitness func(string) bool, pct int, predicate func(PeerReport) bool) bool {
	var witnessReports []PeerReport
	for _, r := range reports {
		if isWitness != nil && isWitness(r.NodeID) {
			witnessReports = append(witnessReports, r)
		}
	}
	pool := witnessReports
	if len(pool) == 0 {
		pool = reports
	}
	if len(pool) == 0 {
		return false
	}
	agree := 0
	for _, r := range pool {
		if predicate(r) {
			agree++
		}
	}
	return agree*100 >= pct*len(pool)
}
