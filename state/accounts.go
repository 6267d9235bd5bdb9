// Package state implements the deterministic state-transition engine
// (C7, §4.7): accounts and token balances, the hybrid AMM/orderbook
// market, and the per-block account auto-upsert pass.
package state

import (
	"fmt"
	"sort"

	"github.com/futureshockco/meeray-node/amount"
	"github.com/futureshockco/meeray-node/cache"
	"github.com/futureshockco/meeray-node/store"
)

const collAccounts = "accounts"

// Ledger wraps a cache.Cache with the account/token/market operations
// the transaction processors call through.
type Ledger struct {
	Cache *cache.Cache
}

// NewLedger constructs a Ledger over c.
func NewLedger(c *cache.Cache) *Ledger {
	return &Ledger{Cache: c}
}

// accountDoc is the on-disk shape of an Account (§3, §6). Balances are
// decimal strings in smallest units.
type accountDoc struct {
	Name            string            `json:"name"`
	Balances        map[string]string `json:"balances"`
	Nfts            []string          `json:"nfts,omitempty"`
	TotalVoteWeight string            `json:"total_vote_weight"`
	VotedWitnesses  []string          `json:"voted_witnesses,omitempty"`
	WitnessKey      string            `json:"witness_key,omitempty"`
	WitnessWS       string            `json:"witness_ws,omitempty"`
}

func emptyAccount(name string) accountDoc {
	return accountDoc{
		Name:            name,
		Balances:        map[string]string{},
		TotalVoteWeight: "0",
	}
}

func (a accountDoc) toDocument() store.Document {
	return store.Document{
		"name":              a.Name,
		"balances":          stringMapToInterface(a.Balances),
		"nfts":              stringSliceToInterface(a.Nfts),
		"total_vote_weight": a.TotalVoteWeight,
		"voted_witnesses":   stringSliceToInterface(a.VotedWitnesses),
		"witness_key":       a.WitnessKey,
		"witness_ws":        a.WitnessWS,
	}
}

func accountFromDocument(d store.Document) accountDoc {
	a := emptyAccount(stringField(d, "name"))
	if balances, ok := d["balances"].(map[string]interface{}); ok {
		for k, v := range balances {
			if s, ok := v.(string); ok {
				a.Balances[k] = s
			}
		}
	}
	a.Nfts = interfaceToStringSlice(d["nfts"])
	a.VotedWitnesses = interfaceToStringSlice(d["voted_witnesses"])
	if w, ok := d["total_vote_weight"].(string); ok {
		a.TotalVoteWeight = w
	}
	a.WitnessKey = stringField(d, "witness_key")
	a.WitnessWS = stringField(d, "witness_ws")
	return a
}

func stringField(d store.Document, k string) string {
	if v, ok := d[k].(string); ok {
		return v
	}
	return ""
}

func stringMapToInterface(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func stringSliceToInterface(s []string) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func interfaceToStringSlice(v interface{}) []string {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// AccountExists reports whether name has been inserted.
func (l *Ledger) AccountExists(name string) (bool, error) {
	_, ok, err := l.Cache.Get(collAccounts, name)
	return ok, err
}

// EnsureAccount inserts name with zero balances if it does not already
// exist (§3 Account lifecycle, §4.7.5).
func (l *Ledger) EnsureAccount(name string) error {
	if name == "" {
		return nil
	}
	exists, err := l.AccountExists(name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return l.Cache.Put(collAccounts, name, emptyAccount(name).toDocument())
}

// Balance returns the balance of symbol held by account (zero if either
// is absent).
func (l *Ledger) Balance(account, symbol string) (amount.Amount, error) {
	doc, ok, err := l.Cache.Get(collAccounts, account)
	if err != nil {
		return amount.Zero(), err
	}
	if !ok {
		return amount.Zero(), nil
	}
	a := accountFromDocument(doc)
	raw, ok := a.Balances[symbol]
	if !ok {
		return amount.Zero(), nil
	}
	return amount.FromString(raw)
}

// Credit adds amt of symbol to account's balance, creating the account
// if needed.
func (l *Ledger) Credit(account, symbol string, amt amount.Amount) error {
	if err := l.EnsureAccount(account); err != nil {
		return err
	}
	return l.Cache.Update(collAccounts, account, func(doc store.Document) (store.Document, error) {
		a := accountFromDocument(doc)
		cur, err := amount.FromString(firstNonEmpty(a.Balances[symbol], "0"))
		if err != nil {
			return nil, err
		}
		a.Balances[symbol] = amount.Add(cur, amt).String()
		return a.toDocument(), nil
	})
}

// Debit subtracts amt of symbol from account's balance. It fails if the
// resulting balance would go negative (balances are never negative,
// §3).
func (l *Ledger) Debit(account, symbol string, amt amount.Amount) error {
	cur, err := l.Balance(account, symbol)
	if err != nil {
		return err
	}
	newBal, err := amount.Sub(cur, amt)
	if err != nil {
		return fmt.Errorf("state: insufficient %s balance for %s: %w", symbol, account, err)
	}
	return l.Cache.Update(collAccounts, account, func(doc store.Document) (store.Document, error) {
		a := accountFromDocument(doc)
		a.Balances[symbol] = newBal.String()
		return a.toDocument(), nil
	})
}

func firstNonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// VoteWeight returns the account's recorded total vote weight, used by
// the witness scheduler (§4.8).
func (l *Ledger) VoteWeight(account string) (amount.Amount, error) {
	doc, ok, err := l.Cache.Get(collAccounts, account)
	if err != nil || !ok {
		return amount.Zero(), err
	}
	a := accountFromDocument(doc)
	return amount.FromString(firstNonEmpty(a.TotalVoteWeight, "0"))
}

// SetVoteWeight overwrites account's recorded total vote weight (§4.8).
// The vote transaction itself carries the voter's full intended weight
// rather than a delta, so setting is idempotent under replay.
func (l *Ledger) SetVoteWeight(account string, weight amount.Amount) error {
	if err := l.EnsureAccount(account); err != nil {
		return err
	}
	return l.Cache.Update(collAccounts, account, func(doc store.Document) (store.Document, error) {
		a := accountFromDocument(doc)
		a.TotalVoteWeight = weight.String()
		return a.toDocument(), nil
	})
}

// WitnessKey returns account's registered block-signing public key, as
// a base58-encoded string, and whether one has been registered at all
// (§4.9 rule 8's "registered key").
func (l *Ledger) WitnessKey(account string) (key string, ok bool, err error) {
	doc, found, err := l.Cache.Get(collAccounts, account)
	if err != nil || !found {
		return "", false, err
	}
	a := accountFromDocument(doc)
	return a.WitnessKey, a.WitnessKey != "", nil
}

// SetWitnessKey registers account's block-signing public key and
// reachable peer endpoint, overwriting any prior registration. A
// witness re-registering simply replaces its key, mirroring how
// SetVoteWeight treats its own registrations as idempotent under
// replay.
func (l *Ledger) SetWitnessKey(account, pubKey, ws string) error {
	if err := l.EnsureAccount(account); err != nil {
		return err
	}
	return l.Cache.Update(collAccounts, account, func(doc store.Document) (store.Document, error) {
		a := accountFromDocument(doc)
		a.WitnessKey = pubKey
		a.WitnessWS = ws
		return a.toDocument(), nil
	})
}

// WitnessEndpoint returns account's declared reachable ws endpoint,
// used by discovery's top-3K outgoing-connection selection (§4.11).
func (l *Ledger) WitnessEndpoint(account string) (ws string, err error) {
	doc, ok, err := l.Cache.Get(collAccounts, account)
	if err != nil || !ok {
		return "", err
	}
	return accountFromDocument(doc).WitnessWS, nil
}

// VoteWeightEntry is one account's vote weight as returned by
// AllVoteWeights: witness.Candidate-shaped data (kept here as plain
// structs to avoid a state -> witness import cycle; the node wiring
// layer converts these into witness.Candidate and ranks them).
type VoteWeightEntry struct {
	Name   string
	Weight amount.Amount
}

// AllVoteWeights returns every account with a non-zero vote weight.
func (l *Ledger) AllVoteWeights() ([]VoteWeightEntry, error) {
	docs, err := l.Cache.Find(collAccounts, store.Filter{})
	if err != nil {
		return nil, err
	}
	out := make([]VoteWeightEntry, 0, len(docs))
	for _, d := range docs {
		a := accountFromDocument(d)
		w, err := amount.FromString(firstNonEmpty(a.TotalVoteWeight, "0"))
		if err != nil {
			continue
		}
		if w.IsZero() {
			continue
		}
		out = append(out, VoteWeightEntry{Name: a.Name, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		cmp := out[i].Weight.Cmp(out[j].Weight)
		if cmp != 0 {
			return cmp > 0
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// autoUpsertFields are the transaction field names scanned for account
// references during the per-block auto-upsert pass (§4.7.5).
var autoUpsertFields = []string{"sender", "to", "from", "target", "receiver", "owner", "delegate", "account"}

// AutoUpsertFromTxData inserts any account named in data's auto-upsert
// fields that does not yet exist. Deterministic and replayable.
func (l *Ledger) AutoUpsertFromTxData(sender string, data map[string]interface{}) error {
	if err := l.EnsureAccount(sender); err != nil {
		return err
	}
	for _, field := range autoUpsertFields {
		v, ok := data[field]
		if !ok {
			continue
		}
		name, ok := v.(string)
		if !ok || name == "" {
			continue
		}
		if err := l.EnsureAccount(name); err != nil {
			return err
		}
	}
	return nil
}
