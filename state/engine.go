package state

import (
	"fmt"

	"github.com/futureshockco/meeray-node/amount"
	"github.com/futureshockco/meeray-node/cache"
	"github.com/futureshockco/meeray-node/chain"
	"github.com/futureshockco/meeray-node/config"
)

// TxHandler processes one transaction type against l, returning the fee
// it collected (zero if the op charges none). A returned error fails
// only this transaction — its staged writes are discarded and the
// block continues with the next one (§4.6, §4.7).
type TxHandler func(l *Ledger, data map[string]interface{}, sender string, now int64, params config.Params) (fee amount.Amount, err error)

// Registry is the closed set of known transaction-type processors
// (§4.6, §9 design note: dispatch is a flat map, not a type switch, so
// adding an op type never touches existing handlers).
type Registry map[string]TxHandler

// DefaultRegistry returns the handlers for every transaction type this
// node accepts.
func DefaultRegistry() Registry {
	return Registry{
		"transfer":         handleTransfer,
		"create_token":     handleCreateToken,
		"mint":             handleMint,
		"create_pool":      handleCreatePool,
		"add_liquidity":    handleAddLiquidity,
		"remove_liquidity": handleRemoveLiquidity,
		"swap":             handleSwap,
		"swap_route":       handleSwapRoute,
		"place_order":      handlePlaceOrder,
		"cancel_order":     handleCancelOrder,
		"vote_witness":     handleVoteWitness,
		"register_witness": handleRegisterWitness,
	}
}

// Engine executes a block's transactions against a Ledger in order,
// implementing chain.Executor so the block validator can reproduce a
// block's declared dist (§4.9 rule 9).
type Engine struct {
	Ledger   *Ledger
	Registry Registry
	Params   config.Table
}

// NewEngine constructs an Engine over c using the default handler
// registry.
func NewEngine(c *cache.Cache, params config.Table) *Engine {
	return &Engine{
		Ledger:   NewLedger(c),
		Registry: DefaultRegistry(),
		Params:   params,
	}
}

// ExecuteForValidation runs b's transactions against the engine's
// current state and returns the total fee collected as a decimal
// string, without committing anything: every staged and checkpointed
// write from the dry run is discarded before returning (§4.3, §4.9
// rule 9). The real commit path is ApplyBlock.
func (e *Engine) ExecuteForValidation(b *chain.Block) (string, error) {
	dist, err := e.run(b)
	e.Ledger.Cache.RollbackBlock()
	if err != nil {
		return "", err
	}
	return dist.String(), nil
}

// ApplyBlock executes b's transactions for real and flushes the result
// to the backing store. It returns the same dist ExecuteForValidation
// would have computed for the same (state, block) pair, since execution
// is a pure function of on-chain state (§8 invariant: deterministic
// replay).
func (e *Engine) ApplyBlock(b *chain.Block) (string, error) {
	dist, err := e.run(b)
	if err != nil {
		e.Ledger.Cache.RollbackBlock()
		return "", err
	}
	if err := e.Ledger.Cache.Flush(); err != nil {
		return "", err
	}
	return dist.String(), nil
}

func (e *Engine) run(b *chain.Block) (amount.Amount, error) {
	params := e.Params.At(b.Height)
	total := amount.Zero()

	for i, tx := range b.Transactions {
		data, _ := tx.Data.(map[string]interface{})
		if data == nil {
			data = map[string]interface{}{}
		}

		if err := e.Ledger.AutoUpsertFromTxData(tx.Sender, data); err != nil {
			return amount.Zero(), fmt.Errorf("state: tx %d auto-upsert: %w", i, err)
		}
		// Keep the upserted accounts even if the transaction itself fails.
		e.Ledger.Cache.Checkpoint()

		handler, known := e.Registry[tx.Type]
		if !known {
			e.Ledger.Cache.Rollback()
			continue
		}

		fee, err := handler(e.Ledger, data, tx.Sender, tx.Timestamp, params)
		if err != nil {
			// A failing transaction does not fail the block; its partial
			// writes are discarded and execution continues (§4.6).
			e.Ledger.Cache.Rollback()
			continue
		}
		total = amount.Add(total, fee)
		e.Ledger.Cache.Checkpoint()
	}

	return total, nil
}

func stringDataField(d map[string]interface{}, k string) string {
	if v, ok := d[k].(string); ok {
		return v
	}
	return ""
}

func amountDataField(d map[string]interface{}, k string) (amount.Amount, error) {
	s := stringDataField(d, k)
	if s == "" {
		return amount.Zero(), fmt.Errorf("state: missing required field %q", k)
	}
	return amount.FromString(s)
}

func boolDataField(d map[string]interface{}, k string) bool {
	v, _ := d[k].(bool)
	return v
}

func intDataField(d map[string]interface{}, k string, fallback int) int {
	if v, ok := d[k].(float64); ok {
		return int(v)
	}
	return fallback
}

func uint64DataField(d map[string]interface{}, k string) uint64 {
	if v, ok := d[k].(float64); ok {
		return uint64(v)
	}
	return 0
}

func handleTransfer(l *Ledger, d map[string]interface{}, sender string, now int64, _ config.Params) (amount.Amount, error) {
	to := stringDataField(d, "to")
	if to == "" {
		return amount.Zero(), fmt.Errorf("state: transfer requires a to field")
	}
	symbol := stringDataField(d, "symbol")
	if symbol == "" {
		return amount.Zero(), fmt.Errorf("state: transfer requires a symbol field")
	}
	amt, err := amountDataField(d, "amount")
	if err != nil {
		return amount.Zero(), err
	}
	if err := l.Debit(sender, symbol, amt); err != nil {
		return amount.Zero(), err
	}
	if err := l.Credit(to, symbol, amt); err != nil {
		return amount.Zero(), err
	}
	return amount.Zero(), nil
}

func handleCreateToken(l *Ledger, d map[string]interface{}, sender string, _ int64, _ config.Params) (amount.Amount, error) {
	symbol := stringDataField(d, "symbol")
	if symbol == "" {
		return amount.Zero(), fmt.Errorf("state: create_token requires a symbol field")
	}
	precision := intDataField(d, "precision", 8)
	maxSupplyStr := stringDataField(d, "max_supply")
	maxSupply := amount.Zero()
	if maxSupplyStr != "" {
		var err error
		maxSupply, err = amount.FromString(maxSupplyStr)
		if err != nil {
			return amount.Zero(), err
		}
	}
	mintable := boolDataField(d, "mintable")
	if err := l.CreateToken(symbol, uint8(precision), maxSupply, mintable, sender); err != nil {
		return amount.Zero(), err
	}
	return amount.Zero(), nil
}

func handleMint(l *Ledger, d map[string]interface{}, sender string, _ int64, _ config.Params) (amount.Amount, error) {
	symbol := stringDataField(d, "symbol")
	to := stringDataField(d, "to")
	if to == "" {
		to = sender
	}
	amt, err := amountDataField(d, "amount")
	if err != nil {
		return amount.Zero(), err
	}
	if err := l.Mint(symbol, to, amt); err != nil {
		return amount.Zero(), err
	}
	return amount.Zero(), nil
}

func handleCreatePool(l *Ledger, d map[string]interface{}, sender string, now int64, _ config.Params) (amount.Amount, error) {
	tokenA := stringDataField(d, "token_a")
	tokenB := stringDataField(d, "token_b")
	reserveA, err := amountDataField(d, "reserve_a")
	if err != nil {
		return amount.Zero(), err
	}
	reserveB, err := amountDataField(d, "reserve_b")
	if err != nil {
		return amount.Zero(), err
	}
	initialLP, err := amountDataField(d, "initial_lp")
	if err != nil {
		return amount.Zero(), err
	}
	if _, err := l.CreatePool(tokenA, reserveA, tokenB, reserveB, sender, initialLP, now); err != nil {
		return amount.Zero(), err
	}
	return amount.Zero(), nil
}

func handleAddLiquidity(l *Ledger, d map[string]interface{}, sender string, now int64, _ config.Params) (amount.Amount, error) {
	poolID := stringDataField(d, "pool")
	amountA, err := amountDataField(d, "amount_a")
	if err != nil {
		return amount.Zero(), err
	}
	amountB, err := amountDataField(d, "amount_b")
	if err != nil {
		return amount.Zero(), err
	}
	if _, err := l.AddLiquidity(poolID, sender, amountA, amountB, now); err != nil {
		return amount.Zero(), err
	}
	return amount.Zero(), nil
}

func handleRemoveLiquidity(l *Ledger, d map[string]interface{}, sender string, now int64, _ config.Params) (amount.Amount, error) {
	poolID := stringDataField(d, "pool")
	lpAmount, err := amountDataField(d, "lp_amount")
	if err != nil {
		return amount.Zero(), err
	}
	if _, _, err := l.RemoveLiquidity(poolID, sender, lpAmount, now); err != nil {
		return amount.Zero(), err
	}
	return amount.Zero(), nil
}

func handleSwap(l *Ledger, d map[string]interface{}, sender string, now int64, _ config.Params) (amount.Amount, error) {
	poolID := stringDataField(d, "pool")
	tokenIn := stringDataField(d, "token_in")
	amountIn, err := amountDataField(d, "amount_in")
	if err != nil {
		return amount.Zero(), err
	}
	minOut := amount.Zero()
	if s := stringDataField(d, "min_amount_out"); s != "" {
		minOut, err = amount.FromString(s)
		if err != nil {
			return amount.Zero(), err
		}
	}
	_, fee, err := l.SwapDirect(poolID, sender, tokenIn, amountIn, minOut, now)
	if err != nil {
		return amount.Zero(), err
	}
	return fee, nil
}

func handleSwapRoute(l *Ledger, d map[string]interface{}, sender string, now int64, params config.Params) (amount.Amount, error) {
	tokenIn := stringDataField(d, "token_in")
	tokenOut := stringDataField(d, "token_out")
	amountIn, err := amountDataField(d, "amount_in")
	if err != nil {
		return amount.Zero(), err
	}
	minOut := amount.Zero()
	if s := stringDataField(d, "min_amount_out"); s != "" {
		minOut, err = amount.FromString(s)
		if err != nil {
			return amount.Zero(), err
		}
	}
	maxHops := intDataField(d, "max_hops", params.MaxHops)
	if maxHops > params.MaxHops {
		maxHops = params.MaxHops
	}
	_, fee, err := l.SwapAutoRoute(sender, tokenIn, tokenOut, amountIn, minOut, maxHops, params.SlippagePercent, now)
	if err != nil {
		return amount.Zero(), err
	}
	return fee, nil
}

func handlePlaceOrder(l *Ledger, d map[string]interface{}, sender string, now int64, _ config.Params) (amount.Amount, error) {
	id := stringDataField(d, "id")
	pair := stringDataField(d, "pair")
	side := stringDataField(d, "side")
	orderType := stringDataField(d, "order_type")
	price := stringDataField(d, "price")
	amt, err := amountDataField(d, "amount")
	if err != nil {
		return amount.Zero(), err
	}
	sequence := uint64DataField(d, "sequence")
	if _, _, err := l.PlaceOrder(id, pair, side, orderType, sender, price, amt, sequence, now); err != nil {
		return amount.Zero(), err
	}
	return amount.Zero(), nil
}

func handleCancelOrder(l *Ledger, d map[string]interface{}, sender string, _ int64, _ config.Params) (amount.Amount, error) {
	orderID := stringDataField(d, "order_id")
	if err := l.CancelOrder(orderID); err != nil {
		return amount.Zero(), err
	}
	return amount.Zero(), nil
}

func handleVoteWitness(l *Ledger, d map[string]interface{}, sender string, _ int64, _ config.Params) (amount.Amount, error) {
	weight, err := amountDataField(d, "weight")
	if err != nil {
		return amount.Zero(), err
	}
	return amount.Zero(), l.SetVoteWeight(sender, weight)
}

// handleRegisterWitness records or updates sender's block-signing
// public key and reachable peer endpoint, the on-chain registration
// §4.9 rule 8's signature check and §4.11's discovery both read
// (via Ledger.WitnessKey / Ledger.WitnessEndpoint).
func handleRegisterWitness(l *Ledger, d map[string]interface{}, sender string, _ int64, _ config.Params) (amount.Amount, error) {
	key := stringDataField(d, "public_key")
	if key == "" {
		return amount.Zero(), fmt.Errorf("state: register_witness requires a public_key field")
	}
	ws := stringDataField(d, "ws")
	return amount.Zero(), l.SetWitnessKey(sender, key, ws)
}
