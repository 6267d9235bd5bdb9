package state

import (
	"testing"

	"github.com/futureshockco/meeray-node/amount"
)

func mustAmount(t *testing.T, s string) amount.Amount {
	t.Helper()
	a, err := amount.FromString(s)
	if err != nil {
		t.Fatalf("amount.FromString(%q): %v", s, err)
	}
	return a
}

func seedPool(t *testing.T, l *Ledger, creator, tokenA, tokenB, reserveA, reserveB, initialLP string) string {
	t.Helper()
	if err := l.Credit(creator, tokenA, mustAmount(t, reserveA)); err != nil {
		t.Fatalf("seed credit A: %v", err)
	}
	if err := l.Credit(creator, tokenB, mustAmount(t, reserveB)); err != nil {
		t.Fatalf("seed credit B: %v", err)
	}
	id, err := l.CreatePool(tokenA, mustAmount(t, reserveA), tokenB, mustAmount(t, reserveB), creator, mustAmount(t, initialLP), 1000)
	if err != nil {
		t.Fatalf("CreatePool: %v", err)
	}
	return id
}

func TestSwapDirect_ConstantProductWithFee(t *testing.T) {
	l := newTestLedger()
	poolID := seedPool(t, l, "lp1", "MRY", "USDT", "1000000000", "1000000000", "1000000000")

	if err := l.Credit("trader", "MRY", mustAmount(t, "100000000")); err != nil {
		t.Fatalf("credit trader: %v", err)
	}

	out, fee, err := l.SwapDirect(poolID, "trader", "MRY", mustAmount(t, "100000000"), amount.Zero(), 2000)
	if err != nil {
		t.Fatalf("SwapDirect: %v", err)
	}

	// amount_after_fee = 100_000_000 * 9970 / 10000 = 99_700_000
	// amount_out = 99_700_000 * 1_000_000_000 / (1_000_000_000 + 99_700_000)
	wantOut := mustAmount(t, "90661089")
	if out.Cmp(wantOut) != 0 {
		t.Fatalf("amount_out = %s, want %s", out, wantOut)
	}
	wantFee := mustAmount(t, "300000")
	if fee.Cmp(wantFee) != 0 {
		t.Fatalf("fee = %s, want %s", fee, wantFee)
	}

	traderBalance, err := l.Balance("trader", "USDT")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if traderBalance.Cmp(out) != 0 {
		t.Fatalf("trader USDT balance = %s, want %s", traderBalance, out)
	}
}

func TestSwapDirect_SlippageRejected(t *testing.T) {
	l := newTestLedger()
	poolID := seedPool(t, l, "lp1", "MRY", "USDT", "1000000000", "1000000000", "1000000000")
	_ = l.Credit("trader", "MRY", mustAmount(t, "100000000"))

	_, _, err := l.SwapDirect(poolID, "trader", "MRY", mustAmount(t, "100000000"), mustAmount(t, "999999999"), 2000)
	if err == nil {
		t.Fatalf("expected slippage rejection")
	}
}

func TestSwapDirect_UnknownPool(t *testing.T) {
	l := newTestLedger()
	_, _, err := l.SwapDirect("nope", "trader", "MRY", mustAmount(t, "1"), amount.Zero(), 1)
	if err == nil {
		t.Fatalf("expected error for unknown pool")
	}
}

func TestFindRoutes_RespectsMaxHops(t *testing.T) {
	pools := []poolDoc{
		{ID: "A/B", TokenA: "A", TokenB: "B", ReserveA: "1000", ReserveB: "1000"},
		{ID: "B/C", TokenA: "B", TokenB: "C", ReserveA: "1000", ReserveB: "1000"},
		{ID: "C/D", TokenA: "C", TokenB: "D", ReserveA: "1000", ReserveB: "1000"},
	}
	routes := findRoutes(pools, "A", "D", 2)
	if len(routes) != 0 {
		t.Fatalf("expected no route within 2 hops, got %v", routes)
	}
	routes = findRoutes(pools, "A", "D", 3)
	if len(routes) != 1 || len(routes[0].pools) != 3 {
		t.Fatalf("expected exactly one 3-hop route, got %v", routes)
	}
}

func TestBestRoute_PrefersHigherOutput(t *testing.T) {
	pools := []poolDoc{
		{ID: "A/B", TokenA: "A", TokenB: "B", ReserveA: "1000000", ReserveB: "1000000"},
		{ID: "B/Z", TokenA: "B", TokenB: "Z", ReserveA: "1000000", ReserveB: "1000000"},
		{ID: "A/Z", TokenA: "A", TokenB: "Z", ReserveA: "1000000", ReserveB: "1000000"},
	}
	// The direct pool charges one 0.3% fee; the two-hop path charges it
	// twice, so the direct route must win on realized output.
	best, out, err := BestRoute(pools, "A", "Z", mustAmount(t, "1000"), 3)
	if err != nil {
		t.Fatalf("BestRoute: %v", err)
	}
	if len(best.pools) != 1 || best.pools[0] != "A/Z" {
		t.Fatalf("expected direct route to win, got %v", best.pools)
	}
	if out.Cmp(mustAmount(t, "996")) != 0 {
		t.Fatalf("out = %s, want 996", out)
	}
}

func TestBestRoute_TieBreaksByLexicographicPoolID(t *testing.T) {
	// Two direct pools for the same pair tie exactly on output; the
	// lexicographically earlier pool ID must win.
	pools := []poolDoc{
		{ID: "A/Z#2", TokenA: "A", TokenB: "Z", ReserveA: "1000000", ReserveB: "1000000"},
		{ID: "A/Z#1", TokenA: "A", TokenB: "Z", ReserveA: "1000000", ReserveB: "1000000"},
	}
	best, _, err := BestRoute(pools, "A", "Z", mustAmount(t, "1000"), 3)
	if err != nil {
		t.Fatalf("BestRoute: %v", err)
	}
	if len(best.pools) != 1 || best.pools[0] != "A/Z#1" {
		t.Fatalf("expected lexicographically earlier pool id to win a tie, got %v", best.pools)
	}
}

func TestSwapAutoRoute_MultiHopSettlesOnce(t *testing.T) {
	l := newTestLedger()
	_ = seedPool(t, l, "lp1", "A", "B", "1000000000", "1000000000", "1000000000")
	_ = seedPool(t, l, "lp2", "B", "C", "1000000000", "1000000000", "1000000000")

	if err := l.Credit("trader", "A", mustAmount(t, "1000000")); err != nil {
		t.Fatalf("credit: %v", err)
	}

	out, fee, err := l.SwapAutoRoute("trader", "A", "C", mustAmount(t, "1000000"), amount.Zero(), 3, 1, 5000)
	if err != nil {
		t.Fatalf("SwapAutoRoute: %v", err)
	}
	if out.IsZero() {
		t.Fatalf("expected non-zero output")
	}
	if fee.IsZero() {
		t.Fatalf("expected non-zero accumulated fee across hops")
	}

	balA, _ := l.Balance("trader", "A")
	if !balA.IsZero() {
		t.Fatalf("trader should hold no leftover A, got %s", balA)
	}
	balB, _ := l.Balance("trader", "B")
	if !balB.IsZero() {
		t.Fatalf("intermediate token B must never be credited to the trader, got %s", balB)
	}
	balC, _ := l.Balance("trader", "C")
	if balC.Cmp(out) != 0 {
		t.Fatalf("trader C balance = %s, want %s", balC, out)
	}
}

func TestAddAndRemoveLiquidity_RoundTrips(t *testing.T) {
	l := newTestLedger()
	poolID := seedPool(t, l, "lp1", "A", "B", "1000000", "1000000", "1000000")

	if err := l.Credit("provider", "A", mustAmount(t, "500000")); err != nil {
		t.Fatalf("credit A: %v", err)
	}
	if err := l.Credit("provider", "B", mustAmount(t, "500000")); err != nil {
		t.Fatalf("credit B: %v", err)
	}

	minted, err := l.AddLiquidity(poolID, "provider", mustAmount(t, "500000"), mustAmount(t, "500000"), 2000)
	if err != nil {
		t.Fatalf("AddLiquidity: %v", err)
	}
	if minted.IsZero() {
		t.Fatalf("expected non-zero LP mint")
	}

	outA, outB, err := l.RemoveLiquidity(poolID, "provider", minted, 3000)
	if err != nil {
		t.Fatalf("RemoveLiquidity: %v", err)
	}
	if outA.Cmp(mustAmount(t, "500000")) != 0 || outB.Cmp(mustAmount(t, "500000")) != 0 {
		t.Fatalf("round trip mismatch: outA=%s outB=%s", outA, outB)
	}

	balA, _ := l.Balance("provider", "A")
	balB, _ := l.Balance("provider", "B")
	if !balA.IsZero() || !balB.IsZero() {
		t.Fatalf("expected provider balances back to zero after round trip, got A=%s B=%s", balA, balB)
	}
}
