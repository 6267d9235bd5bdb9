package state

import (
	"fmt"
	"strings"

	"github.com/futureshockco/meeray-node/amount"
	"github.com/futureshockco/meeray-node/store"
)

const (
	collPools     = "liquidityPools"
	collPositions = "userLiquidityPositions"

	feeBps           = 30    // 0.3%, fixed (§4.7.1)
	feeMultiplierBps = 10000 - feeBps
)

// poolDoc is the on-disk shape of a Liquidity pool (§3).
type poolDoc struct {
	ID           string `json:"id"`
	TokenA       string `json:"token_a"`
	ReserveA     string `json:"reserve_a"`
	TokenB       string `json:"token_b"`
	ReserveB     string `json:"reserve_b"`
	TotalLP      string `json:"total_lp_tokens"`
	FeeGrowthA   string `json:"fee_growth_a"`
	FeeGrowthB   string `json:"fee_growth_b"`
	LastTradeAt  int64  `json:"last_trade_at"`
}

func (p poolDoc) toDocument() store.Document {
	return store.Document{
		"id":              p.ID,
		"token_a":         p.TokenA,
		"reserve_a":       p.ReserveA,
		"token_b":         p.TokenB,
		"reserve_b":       p.ReserveB,
		"total_lp_tokens": p.TotalLP,
		"fee_growth_a":    p.FeeGrowthA,
		"fee_growth_b":    p.FeeGrowthB,
		"last_trade_at":   float64(p.LastTradeAt),
	}
}

func poolFromDocument(d store.Document) poolDoc {
	p := poolDoc{
		ID:         stringField(d, "id"),
		TokenA:     stringField(d, "token_a"),
		TokenB:     stringField(d, "token_b"),
		ReserveA:   firstNonEmpty(stringField(d, "reserve_a"), "0"),
		ReserveB:   firstNonEmpty(stringField(d, "reserve_b"), "0"),
		TotalLP:    firstNonEmpty(stringField(d, "total_lp_tokens"), "0"),
		FeeGrowthA: firstNonEmpty(stringField(d, "fee_growth_a"), "0"),
		FeeGrowthB: firstNonEmpty(stringField(d, "fee_growth_b"), "0"),
	}
	if ts, ok := d["last_trade_at"].(float64); ok {
		p.LastTradeAt = int64(ts)
	}
	return p
}

// PoolID derives the canonical pool identifier for an unordered token
// pair, used both as the persisted key and as the auto-route graph's
// edge identity.
func PoolID(tokenA, tokenB string) string {
	if tokenA > tokenB {
		tokenA, tokenB = tokenB, tokenA
	}
	return tokenA + "/" + tokenB
}

// CreatePool registers a new constant-product pool seeded with the
// given reserves and mints the initial LP balance to creator.
func (l *Ledger) CreatePool(tokenA string, reserveA amount.Amount, tokenB string, reserveB amount.Amount, creator string, initialLP amount.Amount, now int64) (string, error) {
	id := PoolID(tokenA, tokenB)
	_, exists, err := l.Cache.Get(collPools, id)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("state: pool %s already exists", id)
	}
	a, b := reserveA, reserveB
	ta, tb := tokenA, tokenB
	if tokenA > tokenB {
		ta, tb = tokenB, tokenA
		a, b = reserveB, reserveA
	}
	p := poolDoc{
		ID:          id,
		TokenA:      ta,
		ReserveA:    a.String(),
		TokenB:      tb,
		ReserveB:    b.String(),
		TotalLP:     initialLP.String(),
		FeeGrowthA:  "0",
		FeeGrowthB:  "0",
		LastTradeAt: now,
	}
	if err := l.Cache.Put(collPools, id, p.toDocument()); err != nil {
		return "", err
	}
	if err := l.Debit(creator, ta, a); err != nil {
		return "", err
	}
	if err := l.Debit(creator, tb, b); err != nil {
		return "", err
	}
	if err := l.setLPBalance(creator, id, initialLP, amount.Zero(), amount.Zero()); err != nil {
		return "", err
	}
	return id, nil
}

// Pool returns a pool's reserves and side ordering (A < B lexically).
func (l *Ledger) Pool(id string) (p poolDoc, ok bool, err error) {
	doc, exists, err := l.Cache.Get(collPools, id)
	if err != nil || !exists {
		return poolDoc{}, false, err
	}
	return poolFromDocument(doc), true, nil
}

// quoteSwap computes amount_out, fee_amount, and the post-swap reserves
// for an exact-input swap against a pool's (reserveIn, reserveOut) side,
// using only integer arithmetic (§4.7.1).
func quoteSwap(reserveIn, reserveOut, amountIn amount.Amount) (amountOut, feeAmount, newReserveIn, newReserveOut amount.Amount, err error) {
	amountAfterFee, err := amount.MulDivFloorInt(amountIn, feeMultiplierBps, 10000)
	if err != nil {
		return
	}
	denominator := amount.Add(reserveIn, amountAfterFee)
	amountOut, err = amount.MulDivFloor(amountAfterFee, reserveOut, denominator)
	if err != nil {
		return
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		err = fmt.Errorf("state: swap output would drain the pool")
		return
	}
	feeAmount, err = amount.MulDivFloorInt(amountIn, feeBps, 10000)
	if err != nil {
		return
	}
	newReserveIn = amount.Add(reserveIn, amountIn)
	newReserveOut, err = amount.Sub(reserveOut, amountOut)
	return
}

// SwapDirect executes a single-pool exact-input swap for trader and
// returns the realized output amount and the fee collected by the pool
// (§4.7.1, §4.7.3).
func (l *Ledger) SwapDirect(poolID, trader, tokenIn string, amountIn amount.Amount, minAmountOut amount.Amount, now int64) (amount.Amount, amount.Amount, error) {
	p, ok, err := l.Pool(poolID)
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	if !ok {
		return amount.Zero(), amount.Zero(), fmt.Errorf("state: unknown pool %s", poolID)
	}

	reserveA, err := amount.FromString(p.ReserveA)
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	reserveB, err := amount.FromString(p.ReserveB)
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	totalLP, err := amount.FromString(p.TotalLP)
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}

	var reserveIn, reserveOut amount.Amount
	aIsIn := tokenIn == p.TokenA
	if aIsIn {
		reserveIn, reserveOut = reserveA, reserveB
	} else if tokenIn == p.TokenB {
		reserveIn, reserveOut = reserveB, reserveA
	} else {
		return amount.Zero(), amount.Zero(), fmt.Errorf("state: token %s is not part of pool %s", tokenIn, poolID)
	}

	amountOut, feeAmount, newReserveIn, newReserveOut, err := quoteSwap(reserveIn, reserveOut, amountIn)
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	if !minAmountOut.IsZero() && amountOut.Cmp(minAmountOut) < 0 {
		return amount.Zero(), amount.Zero(), fmt.Errorf("state: slippage: got %s, want >= %s", amountOut, minAmountOut)
	}

	feeGrowthDelta := amount.FeeGrowthDelta(feeAmount, totalLP)

	if err := l.Cache.Update(collPools, poolID, func(doc store.Document) (store.Document, error) {
		pp := poolFromDocument(doc)
		if aIsIn {
			pp.ReserveA = newReserveIn.String()
			pp.ReserveB = newReserveOut.String()
			growth, _ := amount.FromString(firstNonEmpty(pp.FeeGrowthA, "0"))
			pp.FeeGrowthA = amount.Add(growth, feeGrowthDelta).String()
		} else {
			pp.ReserveB = newReserveIn.String()
			pp.ReserveA = newReserveOut.String()
			growth, _ := amount.FromString(firstNonEmpty(pp.FeeGrowthB, "0"))
			pp.FeeGrowthB = amount.Add(growth, feeGrowthDelta).String()
		}
		pp.LastTradeAt = now
		return pp.toDocument(), nil
	}); err != nil {
		return amount.Zero(), amount.Zero(), err
	}

	tokenOut := p.TokenB
	if tokenIn == p.TokenB {
		tokenOut = p.TokenA
	}
	if err := l.Debit(trader, tokenIn, amountIn); err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	if err := l.Credit(trader, tokenOut, amountOut); err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	return amountOut, feeAmount, nil
}

// route is one enumerated auto-route candidate: an ordered sequence of
// pool IDs plus the token sequence they connect.
type route struct {
	pools  []string
	tokens []string
}

// findRoutes performs a breadth-first search over the pool graph up to
// maxHops, returning every simple path from tokenIn to tokenOut
// (§4.7.2). Pools are supplied pre-loaded to keep this function pure
// and independent of cache read order.
func findRoutes(pools []poolDoc, tokenIn, tokenOut string, maxHops int) []route {
	adjacency := make(map[string][]poolDoc)
	for _, p := range pools {
		adjacency[p.TokenA] = append(adjacency[p.TokenA], p)
		adjacency[p.TokenB] = append(adjacency[p.TokenB], p)
	}

	type state struct {
		token string
		r     route
	}
	var routes []route
	queue := []state{{token: tokenIn, r: route{tokens: []string{tokenIn}}}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if len(cur.r.pools) > maxHops {
			continue
		}
		if cur.token == tokenOut && len(cur.r.pools) > 0 {
			routes = append(routes, cur.r)
			continue
		}
		if len(cur.r.pools) == maxHops {
			continue
		}
		for _, p := range adjacency[cur.token] {
			if containsString(cur.r.pools, p.ID) {
				continue
			}
			next := otherSide(p, cur.token)
			nr := route{
				pools:  append(append([]string(nil), cur.r.pools...), p.ID),
				tokens: append(append([]string(nil), cur.r.tokens...), next),
			}
			queue = append(queue, state{token: next, r: nr})
		}
	}
	return routes
}

func otherSide(p poolDoc, token string) string {
	if p.TokenA == token {
		return p.TokenB
	}
	return p.TokenA
}

func containsString(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

// simulateRoute quotes a route's output without mutating any pool,
// used to pick the best auto-route candidate before committing (§4.7.2).
func simulateRoute(pools map[string]poolDoc, r route, amountIn amount.Amount) (amount.Amount, error) {
	cur := amountIn
	for i, poolID := range r.pools {
		p, ok := pools[poolID]
		if !ok {
			return amount.Zero(), fmt.Errorf("state: route references unknown pool %s", poolID)
		}
		tokenIn := r.tokens[i]
		reserveA, err := amount.FromString(p.ReserveA)
		if err != nil {
			return amount.Zero(), err
		}
		reserveB, err := amount.FromString(p.ReserveB)
		if err != nil {
			return amount.Zero(), err
		}
		var reserveIn, reserveOut amount.Amount
		if tokenIn == p.TokenA {
			reserveIn, reserveOut = reserveA, reserveB
		} else {
			reserveIn, reserveOut = reserveB, reserveA
		}
		out, _, _, _, err := quoteSwap(reserveIn, reserveOut, cur)
		if err != nil {
			return amount.Zero(), err
		}
		cur = out
	}
	return cur, nil
}

// BestRoute enumerates every path up to maxHops and returns the one
// maximizing final output; ties are broken by fewer hops, then by
// lexicographic order of the pool-id sequence (§4.7.2).
func BestRoute(pools []poolDoc, tokenIn, tokenOut string, amountIn amount.Amount, maxHops int) (route, amount.Amount, error) {
	candidates := findRoutes(pools, tokenIn, tokenOut, maxHops)
	if len(candidates) == 0 {
		return route{}, amount.Zero(), fmt.Errorf("state: no route from %s to %s", tokenIn, tokenOut)
	}
	byID := make(map[string]poolDoc, len(pools))
	for _, p := range pools {
		byID[p.ID] = p
	}

	type scored struct {
		r   route
		out amount.Amount
	}
	var best *scored
	for _, r := range candidates {
		out, err := simulateRoute(byID, r, amountIn)
		if err != nil {
			continue
		}
		cand := scored{r: r, out: out}
		if best == nil || isBetterRoute(cand.out, len(cand.r.pools), strings.Join(cand.r.pools, ","), best.out, len(best.r.pools), strings.Join(best.r.pools, ",")) {
			best = &cand
		}
	}
	if best == nil {
		return route{}, amount.Zero(), fmt.Errorf("state: no viable route from %s to %s", tokenIn, tokenOut)
	}
	return best.r, best.out, nil
}

func isBetterRoute(outA amount.Amount, hopsA int, keyA string, outB amount.Amount, hopsB int, keyB string) bool {
	if cmp := outA.Cmp(outB); cmp != 0 {
		return cmp > 0
	}
	if hopsA != hopsB {
		return hopsA < hopsB
	}
	return keyA < keyB
}

// SwapAutoRoute executes the best discovered route for an exact-input
// swap, debiting the trader once at entry and crediting once at exit;
// intermediate tokens are never held by the user between hops (§4.7.3).
// minAmountOut enforces slippage protection; when zero, slippagePercent
// is applied to the best quote instead (§4.7.2).
func (l *Ledger) SwapAutoRoute(trader, tokenIn, tokenOut string, amountIn, minAmountOut amount.Amount, maxHops, slippagePercent int, now int64) (amount.Amount, amount.Amount, error) {
	docs, err := l.Cache.Find(collPools, store.Filter{})
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	pools := make([]poolDoc, 0, len(docs))
	for _, d := range docs {
		pools = append(pools, poolFromDocument(d))
	}

	best, quotedOut, err := BestRoute(pools, tokenIn, tokenOut, amountIn, maxHops)
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}

	floor := minAmountOut
	if floor.IsZero() {
		floor, err = amount.MulDivFloorInt(quotedOut, int64(100-slippagePercent), 100)
		if err != nil {
			return amount.Zero(), amount.Zero(), err
		}
	}

	if err := l.Debit(trader, tokenIn, amountIn); err != nil {
		return amount.Zero(), amount.Zero(), err
	}

	totalFee := amount.Zero()
	cur := amountIn
	for i, poolID := range best.pools {
		hopTokenIn := best.tokens[i]
		out, fee, err := l.hopSwap(poolID, hopTokenIn, cur, now)
		if err != nil {
			// A failed hop aborts the whole swap; rolling back the staged
			// cache mutations for this transaction is the caller's
			// responsibility (§4.7.3, via cache.Cache.Rollback).
			return amount.Zero(), amount.Zero(), err
		}
		cur = out
		totalFee = amount.Add(totalFee, fee)
	}
	if cur.Cmp(floor) < 0 {
		return amount.Zero(), amount.Zero(), fmt.Errorf("state: route realized %s, below floor %s", cur, floor)
	}

	if err := l.Credit(trader, tokenOut, cur); err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	return cur, totalFee, nil
}

// hopSwap executes one hop of a multi-hop route against pool reserves
// directly, without touching the trader's external balance (§4.7.3).
// It returns the hop's output and the fee the pool collected.
func (l *Ledger) hopSwap(poolID, tokenIn string, amountIn amount.Amount, now int64) (amount.Amount, amount.Amount, error) {
	p, ok, err := l.Pool(poolID)
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	if !ok {
		return amount.Zero(), amount.Zero(), fmt.Errorf("state: unknown pool %s", poolID)
	}
	reserveA, err := amount.FromString(p.ReserveA)
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	reserveB, err := amount.FromString(p.ReserveB)
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	totalLP, err := amount.FromString(p.TotalLP)
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}

	aIsIn := tokenIn == p.TokenA
	var reserveIn, reserveOut amount.Amount
	if aIsIn {
		reserveIn, reserveOut = reserveA, reserveB
	} else {
		reserveIn, reserveOut = reserveB, reserveA
	}
	amountOut, feeAmount, newIn, newOut, err := quoteSwap(reserveIn, reserveOut, amountIn)
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	feeGrowthDelta := amount.FeeGrowthDelta(feeAmount, totalLP)

	err = l.Cache.Update(collPools, poolID, func(doc store.Document) (store.Document, error) {
		pp := poolFromDocument(doc)
		if aIsIn {
			pp.ReserveA, pp.ReserveB = newIn.String(), newOut.String()
			g, _ := amount.FromString(firstNonEmpty(pp.FeeGrowthA, "0"))
			pp.FeeGrowthA = amount.Add(g, feeGrowthDelta).String()
		} else {
			pp.ReserveB, pp.ReserveA = newIn.String(), newOut.String()
			g, _ := amount.FromString(firstNonEmpty(pp.FeeGrowthB, "0"))
			pp.FeeGrowthB = amount.Add(g, feeGrowthDelta).String()
		}
		pp.LastTradeAt = now
		return pp.toDocument(), nil
	})
	return amountOut, feeAmount, err
}

// positionDoc is the on-disk shape of an LP position (§3), keyed by
// user+pool.
type positionDoc struct {
	User        string `json:"user"`
	Pool        string `json:"pool"`
	LPBalance   string `json:"lp_token_balance"`
	FeeEntryA   string `json:"fee_entry_a"`
	FeeEntryB   string `json:"fee_entry_b"`
	UnclaimedA  string `json:"unclaimed_a"`
	UnclaimedB  string `json:"unclaimed_b"`
}

func positionKey(user, pool string) string { return user + "|" + pool }

func (p positionDoc) toDocument() store.Document {
	return store.Document{
		"user":             p.User,
		"pool":             p.Pool,
		"lp_token_balance": p.LPBalance,
		"fee_entry_a":      p.FeeEntryA,
		"fee_entry_b":      p.FeeEntryB,
		"unclaimed_a":      p.UnclaimedA,
		"unclaimed_b":      p.UnclaimedB,
	}
}

func positionFromDocument(d store.Document) positionDoc {
	return positionDoc{
		User:       stringField(d, "user"),
		Pool:       stringField(d, "pool"),
		LPBalance:  firstNonEmpty(stringField(d, "lp_token_balance"), "0"),
		FeeEntryA:  firstNonEmpty(stringField(d, "fee_entry_a"), "0"),
		FeeEntryB:  firstNonEmpty(stringField(d, "fee_entry_b"), "0"),
		UnclaimedA: firstNonEmpty(stringField(d, "unclaimed_a"), "0"),
		UnclaimedB: firstNonEmpty(stringField(d, "unclaimed_b"), "0"),
	}
}

func (l *Ledger) setLPBalance(user, pool string, lp, feeEntryA, feeEntryB amount.Amount) error {
	key := positionKey(user, pool)
	pos := positionDoc{
		User:       user,
		Pool:       pool,
		LPBalance:  lp.String(),
		FeeEntryA:  feeEntryA.String(),
		FeeEntryB:  feeEntryB.String(),
		UnclaimedA: "0",
		UnclaimedB: "0",
	}
	return l.Cache.Put(collPositions, key, pos.toDocument())
}

// LPPosition returns a user's LP position for pool.
func (l *Ledger) LPPosition(user, pool string) (positionDoc, bool, error) {
	doc, ok, err := l.Cache.Get(collPositions, positionKey(user, pool))
	if err != nil || !ok {
		return positionDoc{}, false, err
	}
	return positionFromDocument(doc), true, nil
}

// AddLiquidity deposits amountA/amountB into pool proportionally,
// minting LP tokens to provider. The deposited amounts must already be
// calculated by the caller to match the pool's current ratio; AddLiquidity
// enforces exactness rather than computing an implied ratio itself.
func (l *Ledger) AddLiquidity(poolID, provider string, amountA, amountB amount.Amount, now int64) (amount.Amount, error) {
	p, ok, err := l.Pool(poolID)
	if err != nil {
		return amount.Zero(), err
	}
	if !ok {
		return amount.Zero(), fmt.Errorf("state: unknown pool %s", poolID)
	}
	reserveA, err := amount.FromString(p.ReserveA)
	if err != nil {
		return amount.Zero(), err
	}
	reserveB, err := amount.FromString(p.ReserveB)
	if err != nil {
		return amount.Zero(), err
	}
	totalLP, err := amount.FromString(p.TotalLP)
	if err != nil {
		return amount.Zero(), err
	}

	var minted amount.Amount
	if totalLP.IsZero() || reserveA.IsZero() {
		minted = amountA
	} else {
		minted, err = amount.MulDivFloor(amountA, totalLP, reserveA)
		if err != nil {
			return amount.Zero(), err
		}
	}
	if minted.IsZero() {
		return amount.Zero(), fmt.Errorf("state: liquidity deposit too small to mint LP shares")
	}
	if !totalLP.IsZero() && !reserveA.IsZero() {
		lhs, err := amount.MulDivFloor(amountA, reserveB, amount.FromUint64(1))
		if err != nil {
			return amount.Zero(), err
		}
		rhs, err := amount.MulDivFloor(amountB, reserveA, amount.FromUint64(1))
		if err != nil {
			return amount.Zero(), err
		}
		if lhs.Cmp(rhs) != 0 {
			return amount.Zero(), fmt.Errorf("state: deposit %s/%s does not match pool ratio %s/%s", amountA, amountB, reserveA, reserveB)
		}
	}

	if err := l.Debit(provider, p.TokenA, amountA); err != nil {
		return amount.Zero(), err
	}
	if err := l.Debit(provider, p.TokenB, amountB); err != nil {
		return amount.Zero(), err
	}

	newTotalLP := amount.Add(totalLP, minted)
	if err := l.Cache.Update(collPools, poolID, func(doc store.Document) (store.Document, error) {
		pp := poolFromDocument(doc)
		pp.ReserveA = amount.Add(reserveA, amountA).String()
		pp.ReserveB = amount.Add(reserveB, amountB).String()
		pp.TotalLP = newTotalLP.String()
		pp.LastTradeAt = now
		return pp.toDocument(), nil
	}); err != nil {
		return amount.Zero(), err
	}

	pos, hasPos, err := l.LPPosition(provider, poolID)
	if err != nil {
		return amount.Zero(), err
	}
	existingLP := amount.Zero()
	if hasPos {
		existingLP, err = amount.FromString(pos.LPBalance)
		if err != nil {
			return amount.Zero(), err
		}
	}
	growthA, _ := amount.FromString(firstNonEmpty(p.FeeGrowthA, "0"))
	growthB, _ := amount.FromString(firstNonEmpty(p.FeeGrowthB, "0"))
	if err := l.setLPBalance(provider, poolID, amount.Add(existingLP, minted), growthA, growthB); err != nil {
		return amount.Zero(), err
	}
	return minted, nil
}

// RemoveLiquidity burns lpAmount of provider's LP position and returns
// proportional reserves, pro-rata to the pool's current reserves.
func (l *Ledger) RemoveLiquidity(poolID, provider string, lpAmount amount.Amount, now int64) (amount.Amount, amount.Amount, error) {
	p, ok, err := l.Pool(poolID)
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	if !ok {
		return amount.Zero(), amount.Zero(), fmt.Errorf("state: unknown pool %s", poolID)
	}
	pos, hasPos, err := l.LPPosition(provider, poolID)
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	if !hasPos {
		return amount.Zero(), amount.Zero(), fmt.Errorf("state: %s has no LP position in %s", provider, poolID)
	}
	lpBalance, err := amount.FromString(pos.LPBalance)
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	if lpAmount.Cmp(lpBalance) > 0 {
		return amount.Zero(), amount.Zero(), fmt.Errorf("state: burn amount exceeds LP balance")
	}

	reserveA, _ := amount.FromString(p.ReserveA)
	reserveB, _ := amount.FromString(p.ReserveB)
	totalLP, err := amount.FromString(p.TotalLP)
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}

	outA, err := amount.MulDivFloor(lpAmount, reserveA, totalLP)
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	outB, err := amount.MulDivFloor(lpAmount, reserveB, totalLP)
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}

	newA, err := amount.Sub(reserveA, outA)
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	newB, err := amount.Sub(reserveB, outB)
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	newTotalLP, err := amount.Sub(totalLP, lpAmount)
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}

	if err := l.Cache.Update(collPools, poolID, func(doc store.Document) (store.Document, error) {
		pp := poolFromDocument(doc)
		pp.ReserveA, pp.ReserveB = newA.String(), newB.String()
		pp.TotalLP = newTotalLP.String()
		pp.LastTradeAt = now
		return pp.toDocument(), nil
	}); err != nil {
		return amount.Zero(), amount.Zero(), err
	}

	newLPBalance, err := amount.Sub(lpBalance, lpAmount)
	if err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	fA, _ := amount.FromString(firstNonEmpty(pos.FeeEntryA, "0"))
	fB, _ := amount.FromString(firstNonEmpty(pos.FeeEntryB, "0"))
	if err := l.setLPBalance(provider, poolID, newLPBalance, fA, fB); err != nil {
		return amount.Zero(), amount.Zero(), err
	}

	if err := l.Credit(provider, p.TokenA, outA); err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	if err := l.Credit(provider, p.TokenB, outB); err != nil {
		return amount.Zero(), amount.Zero(), err
	}
	return outA, outB, nil
}
