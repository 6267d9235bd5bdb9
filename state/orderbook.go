package state

import (
	"fmt"
	"sort"

	"github.com/futureshockco/meeray-node/amount"
	"github.com/futureshockco/meeray-node/store"
)

const (
	collOrders = "orders"
	collTrades = "trades"

	OrderSideBuy  = "buy"
	OrderSideSell = "sell"

	OrderTypeLimit  = "limit"
	OrderTypeMarket = "market"

	OrderStatusOpen     = "open"
	OrderStatusPartial  = "partial"
	OrderStatusFilled   = "filled"
	OrderStatusCanceled = "canceled"
)

// orderDoc is the on-disk shape of a resting or historical order (§3,
// §4.7.4). Price is absent (empty) for market orders. Sequence gives a
// strict total order among orders placed within the same block, used
// as the tie-break after price (§4.7.4 time priority).
type orderDoc struct {
	ID        string `json:"id"`
	Pair      string `json:"pair"`
	Side      string `json:"side"`
	Type      string `json:"type"`
	Owner     string `json:"owner"`
	Price     string `json:"price"`
	Amount    string `json:"amount"`
	Remaining string `json:"remaining"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
	Sequence  uint64 `json:"sequence"`
}

func (o orderDoc) toDocument() store.Document {
	return store.Document{
		"id":        o.ID,
		"pair":      o.Pair,
		"side":      o.Side,
		"type":      o.Type,
		"owner":     o.Owner,
		"price":     o.Price,
		"amount":    o.Amount,
		"remaining": o.Remaining,
		"status":    o.Status,
		"timestamp": float64(o.Timestamp),
		"sequence":  float64(o.Sequence),
	}
}

func orderFromDocument(d store.Document) orderDoc {
	o := orderDoc{
		ID:        stringField(d, "id"),
		Pair:      stringField(d, "pair"),
		Side:      stringField(d, "side"),
		Type:      stringField(d, "type"),
		Owner:     stringField(d, "owner"),
		Price:     stringField(d, "price"),
		Amount:    firstNonEmpty(stringField(d, "amount"), "0"),
		Remaining: firstNonEmpty(stringField(d, "remaining"), "0"),
		Status:    stringField(d, "status"),
	}
	if ts, ok := d["timestamp"].(float64); ok {
		o.Timestamp = int64(ts)
	}
	if seq, ok := d["sequence"].(float64); ok {
		o.Sequence = uint64(seq)
	}
	return o
}

// tradeDoc records one executed match (§3), appended to collTrades for
// history and market-data consumers; it is never read back by the
// matching engine itself.
type tradeDoc struct {
	ID         string `json:"id"`
	Pair       string `json:"pair"`
	TakerOrder string `json:"taker_order"`
	MakerOrder string `json:"maker_order"`
	Price      string `json:"price"`
	Amount     string `json:"amount"`
	Timestamp  int64  `json:"timestamp"`
}

func (t tradeDoc) toDocument() store.Document {
	return store.Document{
		"id":          t.ID,
		"pair":        t.Pair,
		"taker_order": t.TakerOrder,
		"maker_order": t.MakerOrder,
		"price":       t.Price,
		"amount":      t.Amount,
		"timestamp":   float64(t.Timestamp),
	}
}

// Fill describes one maker order consumed while matching a taker order,
// returned to the caller so it can emit events/trade records up-stack.
type Fill struct {
	MakerOrderID string
	Price        amount.Amount
	Amount       amount.Amount
}

// PlaceOrder inserts a new order and immediately attempts to match it
// against the resting book, price-time priority (§4.7.4). A limit order
// that is not fully filled rests at remaining size; a market order that
// cannot be fully filled is canceled for its unfilled remainder (it
// never rests on the book).
func (l *Ledger) PlaceOrder(id, pair, side, orderType, owner, price string, amt amount.Amount, sequence uint64, now int64) ([]Fill, amount.Amount, error) {
	if side != OrderSideBuy && side != OrderSideSell {
		return nil, amount.Zero(), fmt.Errorf("state: invalid order side %q", side)
	}
	if orderType != OrderTypeLimit && orderType != OrderTypeMarket {
		return nil, amount.Zero(), fmt.Errorf("state: invalid order type %q", orderType)
	}
	if orderType == OrderTypeLimit && price == "" {
		return nil, amount.Zero(), fmt.Errorf("state: limit order requires a price")
	}

	base, quote, err := splitPair(pair)
	if err != nil {
		return nil, amount.Zero(), err
	}

	lockSymbol, lockAmount := base, amt
	if side == OrderSideBuy && orderType == OrderTypeLimit {
		lockSymbol = quote
		p, perr := amount.FromString(price)
		if perr != nil {
			return nil, amount.Zero(), perr
		}
		lockAmount, err = amount.MulDivFloor(amt, p, amount.FromUint64(1))
		if err != nil {
			return nil, amount.Zero(), err
		}
	}
	if orderType == OrderTypeLimit {
		if err := l.Debit(owner, lockSymbol, lockAmount); err != nil {
			return nil, amount.Zero(), err
		}
	}

	taker := orderDoc{
		ID:        id,
		Pair:      pair,
		Side:      side,
		Type:      orderType,
		Owner:     owner,
		Price:     price,
		Amount:    amt.String(),
		Remaining: amt.String(),
		Status:    OrderStatusOpen,
		Timestamp: now,
		Sequence:  sequence,
	}

	fills, remaining, err := l.matchOrder(&taker, now)
	if err != nil {
		return nil, amount.Zero(), err
	}

	if orderType == OrderTypeMarket {
		return fills, remaining, nil
	}

	if remaining.IsZero() {
		taker.Status = OrderStatusFilled
	} else if remaining.Cmp(amt) < 0 {
		taker.Status = OrderStatusPartial
	}
	taker.Remaining = remaining.String()
	if err := l.Cache.Put(collOrders, id, taker.toDocument()); err != nil {
		return nil, amount.Zero(), err
	}
	return fills, remaining, nil
}

// matchOrder crosses taker against the resting opposite side, best price
// first and earliest sequence first within a price level (§4.7.4). It
// settles the base/quote transfers for every fill but does not persist
// the taker's own order record — callers decide whether the taker rests.
func (l *Ledger) matchOrder(taker *orderDoc, now int64) ([]Fill, amount.Amount, error) {
	base, quote, err := splitPair(taker.Pair)
	if err != nil {
		return nil, amount.Zero(), err
	}

	opposite := OrderSideSell
	if taker.Side == OrderSideSell {
		opposite = OrderSideBuy
	}

	remaining, err := amount.FromString(taker.Remaining)
	if err != nil {
		return nil, amount.Zero(), err
	}

	var fills []Fill
	for remaining.Sign() > 0 {
		makerDoc, ok, err := l.bestMaker(taker.Pair, opposite, taker)
		if err != nil {
			return nil, amount.Zero(), err
		}
		if !ok {
			break
		}

		makerPrice, err := amount.FromString(makerDoc.Price)
		if err != nil {
			return nil, amount.Zero(), err
		}
		makerRemaining, err := amount.FromString(makerDoc.Remaining)
		if err != nil {
			return nil, amount.Zero(), err
		}

		tradeAmount := remaining
		if makerRemaining.Cmp(tradeAmount) < 0 {
			tradeAmount = makerRemaining
		}
		if tradeAmount.IsZero() {
			break
		}

		quoteAmount, err := amount.MulDivFloor(tradeAmount, makerPrice, amount.FromUint64(1))
		if err != nil {
			return nil, amount.Zero(), err
		}

		if err := l.settleFill(taker, &makerDoc, base, quote, tradeAmount, quoteAmount); err != nil {
			return nil, amount.Zero(), err
		}

		newMakerRemaining, err := amount.Sub(makerRemaining, tradeAmount)
		if err != nil {
			return nil, amount.Zero(), err
		}
		makerDoc.Remaining = newMakerRemaining.String()
		if newMakerRemaining.IsZero() {
			makerDoc.Status = OrderStatusFilled
		} else {
			makerDoc.Status = OrderStatusPartial
		}
		if err := l.Cache.Put(collOrders, makerDoc.ID, makerDoc.toDocument()); err != nil {
			return nil, amount.Zero(), err
		}

		fills = append(fills, Fill{MakerOrderID: makerDoc.ID, Price: makerPrice, Amount: tradeAmount})

		tradeID := fmt.Sprintf("%s-%d", taker.ID, len(fills))
		trade := tradeDoc{
			ID:         tradeID,
			Pair:       taker.Pair,
			TakerOrder: taker.ID,
			MakerOrder: makerDoc.ID,
			Price:      makerPrice.String(),
			Amount:     tradeAmount.String(),
			Timestamp:  now,
		}
		if err := l.Cache.Put(collTrades, tradeID, trade.toDocument()); err != nil {
			return nil, amount.Zero(), err
		}

		remaining, err = amount.Sub(remaining, tradeAmount)
		if err != nil {
			return nil, amount.Zero(), err
		}
	}

	return fills, remaining, nil
}

// settleFill transfers base from the seller to the buyer and quote from
// the buyer to the seller for one matched trade. The maker's side of the
// trade was already locked when its order was placed (only limit orders
// rest, so makers are always prepaid), and a maker always fills at its
// own locked price, so its lock exactly covers the fill. A market taker
// is never prepaid, so its paying leg is debited here, per fill, as the
// match proceeds.
//
// A buy limit taker is prepaid too, but at its own limit price
// (PlaceOrder locks amount*limitPrice up front), while the fill itself
// settles at the maker's (better-or-equal) price. That difference is
// price-improvement owed back to the buyer, not owed to the seller, so
// it is refunded here per fill rather than left stranded in the lock.
func (l *Ledger) settleFill(taker *orderDoc, maker *orderDoc, base, quote string, baseAmount, quoteAmount amount.Amount) error {
	buyer, seller := taker.Owner, maker.Owner
	if taker.Side == OrderSideSell {
		buyer, seller = maker.Owner, taker.Owner
	}
	if taker.Type == OrderTypeMarket {
		paySymbol, payAmount := quote, quoteAmount
		if taker.Side == OrderSideSell {
			paySymbol, payAmount = base, baseAmount
		}
		if err := l.Debit(taker.Owner, paySymbol, payAmount); err != nil {
			return err
		}
	}
	if taker.Type == OrderTypeLimit && taker.Side == OrderSideBuy {
		takerPrice, err := amount.FromString(taker.Price)
		if err != nil {
			return err
		}
		locked, err := amount.MulDivFloor(baseAmount, takerPrice, amount.FromUint64(1))
		if err != nil {
			return err
		}
		surplus, err := amount.Sub(locked, quoteAmount)
		if err != nil {
			return err
		}
		if err := l.Credit(taker.Owner, quote, surplus); err != nil {
			return err
		}
	}
	if err := l.Credit(buyer, base, baseAmount); err != nil {
		return err
	}
	if err := l.Credit(seller, quote, quoteAmount); err != nil {
		return err
	}
	return nil
}

// bestMaker returns the highest-priority resting order on side for
// pair: best price (lowest ask / highest bid), then earliest sequence
// (§4.7.4). A taker limit order only matches makers at or better than
// its own limit price; a market taker matches any resting price.
func (l *Ledger) bestMaker(pair, side string, taker *orderDoc) (orderDoc, bool, error) {
	docs, err := l.Cache.Find(collOrders, store.Filter{"pair": pair, "side": side})
	if err != nil {
		return orderDoc{}, false, err
	}

	var candidates []orderDoc
	var takerLimit amount.Amount
	hasTakerLimit := taker.Type == OrderTypeLimit
	if hasTakerLimit {
		takerLimit, err = amount.FromString(taker.Price)
		if err != nil {
			return orderDoc{}, false, err
		}
	}

	for _, d := range docs {
		o := orderFromDocument(d)
		if o.ID == taker.ID {
			continue
		}
		if o.Status != OrderStatusOpen && o.Status != OrderStatusPartial {
			continue
		}
		if hasTakerLimit {
			p, err := amount.FromString(o.Price)
			if err != nil {
				continue
			}
			if side == OrderSideSell && p.Cmp(takerLimit) > 0 {
				continue // resting ask above taker's bid ceiling
			}
			if side == OrderSideBuy && p.Cmp(takerLimit) < 0 {
				continue // resting bid below taker's ask floor
			}
		}
		candidates = append(candidates, o)
	}
	if len(candidates) == 0 {
		return orderDoc{}, false, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		pi, _ := amount.FromString(candidates[i].Price)
		pj, _ := amount.FromString(candidates[j].Price)
		if cmp := pi.Cmp(pj); cmp != 0 {
			if side == OrderSideSell {
				return cmp < 0 // lowest ask first
			}
			return cmp > 0 // highest bid first
		}
		return candidates[i].Sequence < candidates[j].Sequence
	})
	return candidates[0], true, nil
}

// CancelOrder removes a resting order and refunds whatever it had
// locked for its unfilled remainder.
func (l *Ledger) CancelOrder(orderID string) error {
	doc, ok, err := l.Cache.Get(collOrders, orderID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("state: unknown order %s", orderID)
	}
	o := orderFromDocument(doc)
	if o.Status == OrderStatusFilled || o.Status == OrderStatusCanceled {
		return fmt.Errorf("state: order %s is not open", orderID)
	}

	base, quote, err := splitPair(o.Pair)
	if err != nil {
		return err
	}
	remaining, err := amount.FromString(o.Remaining)
	if err != nil {
		return err
	}
	refundSymbol := base
	refundAmount := remaining
	if o.Side == OrderSideBuy {
		refundSymbol = quote
		price, err := amount.FromString(o.Price)
		if err != nil {
			return err
		}
		refundAmount, err = amount.MulDivFloor(remaining, price, amount.FromUint64(1))
		if err != nil {
			return err
		}
	}
	if err := l.Credit(o.Owner, refundSymbol, refundAmount); err != nil {
		return err
	}

	o.Status = OrderStatusCanceled
	o.Remaining = "0"
	return l.Cache.Put(collOrders, orderID, o.toDocument())
}

// Order returns an order's current state.
func (l *Ledger) Order(orderID string) (orderDoc, bool, error) {
	doc, ok, err := l.Cache.Get(collOrders, orderID)
	if err != nil || !ok {
		return orderDoc{}, false, err
	}
	return orderFromDocument(doc), true, nil
}

func splitPair(pair string) (base, quote string, err error) {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '/' {
			return pair[:i], pair[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("state: malformed pair %q", pair)
}
