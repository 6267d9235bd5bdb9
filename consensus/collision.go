package consensus

// Resolve implements §4.10's NORMAL-mode collision policy: among
// candidates that have reached round-0 threshold, the smallest
// (timestamp, hash) pair wins; the rest are losers, retained only for
// diagnostics by the caller. Returns nil if no candidate qualifies.
func Resolve(cands []*Candidate, round0Threshold int) (winner *Candidate, losers []*Candidate) {
	var qualified []*Candidate
	for _, c := range cands {
		if RoundReached(c, 0, round0Threshold) {
			qualified = append(qualified, c)
		}
	}
	if len(qualified) == 0 {
		return nil, nil
	}
	ordered := SortCandidates(qualified)
	winner = ordered[0]
	losers = ordered[1:]
	return winner, losers
}

// Window is the SYNC-mode 200ms collision window (§4.10, glossary):
// the engine opens it on the first candidate seen for a new height,
// collects every candidate that arrives before it closes, then
// resolves deterministically.
type Window struct {
	Height    uint64
	OpenedAt  int64
	candidates map[string]*Candidate
}

// OpenWindow starts a collision window for height at time now, seeded
// with the first candidate.
func OpenWindow(height uint64, now int64, first *Candidate) *Window {
	w := &Window{Height: height, OpenedAt: now, candidates: make(map[string]*Candidate)}
	w.Add(first)
	return w
}

// Add records a candidate arriving while the window is open.
func (w *Window) Add(c *Candidate) {
	if c == nil {
		return
	}
	w.candidates[c.Block.Hash] = c
}

// Ready reports whether the window's duration has elapsed.
func (w *Window) Ready(now int64, windowMs int64) bool {
	return now-w.OpenedAt >= windowMs
}

// Stale reports whether the window should be garbage-collected without
// ever resolving (§4.10: "stale windows older than 2s are GC'd").
func (w *Window) Stale(now int64, staleMs int64) bool {
	return now-w.OpenedAt >= staleMs
}

// Resolve deterministically picks the (timestamp, hash)-smallest of
// every candidate collected in the window, regardless of vote counts
// (SYNC-mode bursts may not have reached round-0 threshold on any
// single candidate before the window closes).
func (w *Window) Resolve() (winner *Candidate, losers []*Candidate) {
	all := make([]*Candidate, 0, len(w.candidates))
	for _, c := range w.candidates {
		all = append(all, c)
	}
	if len(all) == 0 {
		return nil, nil
	}
	ordered := SortCandidates(all)
	return ordered[0], ordered[1:]
}

// ForceExitSync implements the §4.10 liveness rule: if the network
// falls below the consensus quorum (ceil(witnesses*0.66) witness
// peers), the node must force-exit SYNC mode and refuse to mine until
// peers recover.
func ForceExitSync(witnessPeerCount int, witnesses int) bool {
	quorum := (witnesses*66 + 99) / 100 // ceil(witnesses * 0.66)
	return witnessPeerCount < quorum
}
