package state

import (
	"fmt"

	"github.com/futureshockco/meeray-node/amount"
	"github.com/futureshockco/meeray-node/store"
)

const collTokens = "tokens"

// tokenDoc is the on-disk shape of a Token (§3). Symbol is the
// collection's primary key.
type tokenDoc struct {
	Symbol         string `json:"symbol"`
	Precision      uint8  `json:"precision"`
	MaxSupply      string `json:"max_supply"`
	CurrentSupply  string `json:"current_supply"`
	Mintable       bool   `json:"mintable"`
	Creator        string `json:"creator"`
}

func (t tokenDoc) toDocument() store.Document {
	return store.Document{
		"symbol":         t.Symbol,
		"precision":      float64(t.Precision),
		"max_supply":     t.MaxSupply,
		"current_supply": t.CurrentSupply,
		"mintable":       t.Mintable,
		"creator":        t.Creator,
	}
}

func tokenFromDocument(d store.Document) tokenDoc {
	t := tokenDoc{Symbol: stringField(d, "symbol")}
	if p, ok := d["precision"].(float64); ok {
		t.Precision = uint8(p)
	}
	t.MaxSupply = firstNonEmpty(stringField(d, "max_supply"), "0")
	t.CurrentSupply = firstNonEmpty(stringField(d, "current_supply"), "0")
	t.Mintable, _ = d["mintable"].(bool)
	t.Creator = stringField(d, "creator")
	return t
}

// Token returns a token's public fields, or ok=false if unknown.
func (l *Ledger) Token(symbol string) (precision uint8, currentSupply, maxSupply amount.Amount, mintable bool, ok bool, err error) {
	doc, exists, err := l.Cache.Get(collTokens, symbol)
	if err != nil || !exists {
		return 0, amount.Zero(), amount.Zero(), false, false, err
	}
	t := tokenFromDocument(doc)
	cur, err := amount.FromString(t.CurrentSupply)
	if err != nil {
		return 0, amount.Zero(), amount.Zero(), false, false, err
	}
	max, err := amount.FromString(t.MaxSupply)
	if err != nil {
		return 0, amount.Zero(), amount.Zero(), false, false, err
	}
	return t.Precision, cur, max, t.Mintable, true, nil
}

// CreateToken registers a new token. Re-registering an existing symbol
// is rejected (symbol is the primary key, §3).
func (l *Ledger) CreateToken(symbol string, precision uint8, maxSupply amount.Amount, mintable bool, creator string) error {
	_, exists, err := l.Cache.Get(collTokens, symbol)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("state: token %s already exists", symbol)
	}
	t := tokenDoc{
		Symbol:        symbol,
		Precision:     precision,
		MaxSupply:     maxSupply.String(),
		CurrentSupply: "0",
		Mintable:      mintable,
		Creator:       creator,
	}
	return l.Cache.Put(collTokens, symbol, t.toDocument())
}

// Mint increases a token's current supply and credits the recipient.
// Supply is the only field a mint ever touches on the token record
// (§3 Token: "mutated by mint ... never by direct supply writes" means
// no other path may adjust current_supply).
func (l *Ledger) Mint(symbol, to string, amt amount.Amount) error {
	precision, cur, max, mintable, ok, err := l.Token(symbol)
	_ = precision
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("state: mint: unknown token %s", symbol)
	}
	if !mintable {
		return fmt.Errorf("state: mint: token %s is not mintable", symbol)
	}
	newSupply := amount.Add(cur, amt)
	if max.Sign() > 0 && newSupply.Cmp(max) > 0 {
		return fmt.Errorf("state: mint: %s exceeds max supply", symbol)
	}
	if err := l.Cache.Update(collTokens, symbol, func(doc store.Document) (store.Document, error) {
		t := tokenFromDocument(doc)
		t.CurrentSupply = newSupply.String()
		return t.toDocument(), nil
	}); err != nil {
		return err
	}
	return l.Credit(to, symbol, amt)
}
