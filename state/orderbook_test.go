package state

import "testing"

func TestPlaceOrder_LimitRestsWhenNoMatch(t *testing.T) {
	l := newTestLedger()
	_ = l.Credit("seller", "BASE", mustAmount(t, "100"))

	fills, remaining, err := l.PlaceOrder("ask1", "BASE/QUOTE", OrderSideSell, OrderTypeLimit, "seller", "10", mustAmount(t, "100"), 1, 1000)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if len(fills) != 0 {
		t.Fatalf("expected no fills against an empty book, got %v", fills)
	}
	if remaining.Cmp(mustAmount(t, "100")) != 0 {
		t.Fatalf("remaining = %s, want 100", remaining)
	}

	order, ok, err := l.Order("ask1")
	if err != nil || !ok {
		t.Fatalf("Order: ok=%v err=%v", ok, err)
	}
	if order.Status != OrderStatusOpen {
		t.Fatalf("status = %s, want open", order.Status)
	}

	sellerBase, _ := l.Balance("seller", "BASE")
	if !sellerBase.IsZero() {
		t.Fatalf("expected seller's base locked in the resting order, got %s", sellerBase)
	}
}

func TestPlaceOrder_LimitPartialFillThenRest(t *testing.T) {
	l := newTestLedger()
	_ = l.Credit("seller", "BASE", mustAmount(t, "100"))
	_ = l.Credit("buyer", "QUOTE", mustAmount(t, "1000"))

	if _, _, err := l.PlaceOrder("ask1", "BASE/QUOTE", OrderSideSell, OrderTypeLimit, "seller", "10", mustAmount(t, "100"), 1, 1000); err != nil {
		t.Fatalf("ask place: %v", err)
	}

	fills, remaining, err := l.PlaceOrder("bid1", "BASE/QUOTE", OrderSideBuy, OrderTypeLimit, "buyer", "10", mustAmount(t, "40"), 2, 1001)
	if err != nil {
		t.Fatalf("bid place: %v", err)
	}
	if len(fills) != 1 || fills[0].Amount.Cmp(mustAmount(t, "40")) != 0 {
		t.Fatalf("expected one 40-unit fill, got %v", fills)
	}
	if !remaining.IsZero() {
		t.Fatalf("bid should be fully filled, remaining=%s", remaining)
	}

	ask, ok, err := l.Order("ask1")
	if err != nil || !ok {
		t.Fatalf("Order ask1: ok=%v err=%v", ok, err)
	}
	if ask.Status != OrderStatusPartial {
		t.Fatalf("ask status = %s, want partial", ask.Status)
	}
	if ask.Remaining != "60" {
		t.Fatalf("ask remaining = %s, want 60", ask.Remaining)
	}

	buyerBase, _ := l.Balance("buyer", "BASE")
	if buyerBase.Cmp(mustAmount(t, "40")) != 0 {
		t.Fatalf("buyer base = %s, want 40", buyerBase)
	}
	sellerQuote, _ := l.Balance("seller", "QUOTE")
	if sellerQuote.Cmp(mustAmount(t, "400")) != 0 {
		t.Fatalf("seller quote = %s, want 400", sellerQuote)
	}
}

func TestPlaceOrder_PriceTimePriority(t *testing.T) {
	l := newTestLedger()
	_ = l.Credit("s1", "BASE", mustAmount(t, "100"))
	_ = l.Credit("s2", "BASE", mustAmount(t, "100"))
	_ = l.Credit("buyer", "QUOTE", mustAmount(t, "10000"))

	// s1 posts at the worse (higher) price first, s2 posts the better
	// (lower) price second: the buyer's market order must still hit s2
	// first because it is the best price regardless of arrival order.
	if _, _, err := l.PlaceOrder("ask_high", "BASE/QUOTE", OrderSideSell, OrderTypeLimit, "s1", "12", mustAmount(t, "50"), 1, 1000); err != nil {
		t.Fatalf("ask_high: %v", err)
	}
	if _, _, err := l.PlaceOrder("ask_low", "BASE/QUOTE", OrderSideSell, OrderTypeLimit, "s2", "10", mustAmount(t, "50"), 2, 1001); err != nil {
		t.Fatalf("ask_low: %v", err)
	}

	fills, _, err := l.PlaceOrder("taker", "BASE/QUOTE", OrderSideBuy, OrderTypeMarket, "buyer", "", mustAmount(t, "50"), 3, 1002)
	if err != nil {
		t.Fatalf("PlaceOrder market: %v", err)
	}
	if len(fills) != 1 || fills[0].MakerOrderID != "ask_low" {
		t.Fatalf("expected the market order to match the best (lowest) ask first, got %v", fills)
	}
}

func TestPlaceOrder_TimePriorityAtSamePrice(t *testing.T) {
	l := newTestLedger()
	_ = l.Credit("first", "BASE", mustAmount(t, "50"))
	_ = l.Credit("second", "BASE", mustAmount(t, "50"))
	_ = l.Credit("buyer", "QUOTE", mustAmount(t, "10000"))

	if _, _, err := l.PlaceOrder("ask_first", "BASE/QUOTE", OrderSideSell, OrderTypeLimit, "first", "10", mustAmount(t, "50"), 1, 1000); err != nil {
		t.Fatalf("ask_first: %v", err)
	}
	if _, _, err := l.PlaceOrder("ask_second", "BASE/QUOTE", OrderSideSell, OrderTypeLimit, "second", "10", mustAmount(t, "50"), 2, 1001); err != nil {
		t.Fatalf("ask_second: %v", err)
	}

	fills, _, err := l.PlaceOrder("taker", "BASE/QUOTE", OrderSideBuy, OrderTypeMarket, "buyer", "", mustAmount(t, "50"), 3, 1002)
	if err != nil {
		t.Fatalf("PlaceOrder market: %v", err)
	}
	if len(fills) != 1 || fills[0].MakerOrderID != "ask_first" {
		t.Fatalf("expected the earlier order at an equal price to fill first, got %v", fills)
	}
}

func TestCancelOrder_RefundsLockedFunds(t *testing.T) {
	l := newTestLedger()
	_ = l.Credit("seller", "BASE", mustAmount(t, "100"))

	if _, _, err := l.PlaceOrder("ask1", "BASE/QUOTE", OrderSideSell, OrderTypeLimit, "seller", "10", mustAmount(t, "100"), 1, 1000); err != nil {
		t.Fatalf("place: %v", err)
	}
	if err := l.CancelOrder("ask1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	bal, err := l.Balance("seller", "BASE")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal.Cmp(mustAmount(t, "100")) != 0 {
		t.Fatalf("expected full refund, got %s", bal)
	}

	order, _, err := l.Order("ask1")
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if order.Status != OrderStatusCanceled {
		t.Fatalf("status = %s, want canceled", order.Status)
	}
}

func TestCancelOrder_RejectsAlreadyFilled(t *testing.T) {
	l := newTestLedger()
	_ = l.Credit("seller", "BASE", mustAmount(t, "10"))
	_ = l.Credit("buyer", "QUOTE", mustAmount(t, "1000"))

	if _, _, err := l.PlaceOrder("ask1", "BASE/QUOTE", OrderSideSell, OrderTypeLimit, "seller", "10", mustAmount(t, "10"), 1, 1000); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if _, _, err := l.PlaceOrder("bid1", "BASE/QUOTE", OrderSideBuy, OrderTypeLimit, "buyer", "10", mustAmount(t, "10"), 2, 1001); err != nil {
		t.Fatalf("bid: %v", err)
	}
	if err := l.CancelOrder("ask1"); err == nil {
		t.Fatalf("expected cancel of a fully filled order to fail")
	}
}

func TestPlaceOrder_BuyLimitFillsAtBetterPriceRefundsSurplus(t *testing.T) {
	l := newTestLedger()
	_ = l.Credit("seller", "BASE", mustAmount(t, "50"))
	_ = l.Credit("buyer", "QUOTE", mustAmount(t, "1000"))

	// The ask rests at 10; the bid is willing to pay up to 15. PlaceOrder
	// locks the bid's full amount*15, but the fill must settle at the
	// maker's 10, so the buyer is owed back amount*(15-10) per unit.
	if _, _, err := l.PlaceOrder("ask1", "BASE/QUOTE", OrderSideSell, OrderTypeLimit, "seller", "10", mustAmount(t, "50"), 1, 1000); err != nil {
		t.Fatalf("ask place: %v", err)
	}

	fills, remaining, err := l.PlaceOrder("bid1", "BASE/QUOTE", OrderSideBuy, OrderTypeLimit, "buyer", "15", mustAmount(t, "50"), 2, 1001)
	if err != nil {
		t.Fatalf("bid place: %v", err)
	}
	if len(fills) != 1 || fills[0].Price.Cmp(mustAmount(t, "10")) != 0 {
		t.Fatalf("expected one fill at the maker's price of 10, got %v", fills)
	}
	if !remaining.IsZero() {
		t.Fatalf("bid should be fully filled, remaining=%s", remaining)
	}

	// Buyer started with 1000 quote, locked 50*15=750, and is owed the
	// 50*(15-10)=250 price-improvement surplus back: net spend is 500
	// (50 units at the actual fill price of 10), leaving 500 quote.
	buyerQuote, err := l.Balance("buyer", "QUOTE")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if buyerQuote.Cmp(mustAmount(t, "500")) != 0 {
		t.Fatalf("buyer quote = %s, want 500 (price-improvement surplus must be refunded, not lost)", buyerQuote)
	}

	sellerQuote, err := l.Balance("seller", "QUOTE")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if sellerQuote.Cmp(mustAmount(t, "500")) != 0 {
		t.Fatalf("seller quote = %s, want 500 (paid at its own ask price of 10)", sellerQuote)
	}

	buyerBase, _ := l.Balance("buyer", "BASE")
	if buyerBase.Cmp(mustAmount(t, "50")) != 0 {
		t.Fatalf("buyer base = %s, want 50", buyerBase)
	}
}

func TestPlaceOrder_MarketOrderDoesNotRest(t *testing.T) {
	l := newTestLedger()
	_ = l.Credit("buyer", "QUOTE", mustAmount(t, "1000"))

	_, remaining, err := l.PlaceOrder("taker", "BASE/QUOTE", OrderSideBuy, OrderTypeMarket, "buyer", "", mustAmount(t, "50"), 1, 1000)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if remaining.Cmp(mustAmount(t, "50")) != 0 {
		t.Fatalf("expected the full 50 units unfilled against an empty book, got %s", remaining)
	}
	if _, ok, _ := l.Order("taker"); ok {
		t.Fatalf("market orders must never rest on the book")
	}
	bal, _ := l.Balance("buyer", "QUOTE")
	if bal.Cmp(mustAmount(t, "1000")) != 0 {
		t.Fatalf("unfilled market order must not debit the taker, got balance %s", bal)
	}
}
