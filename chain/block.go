// Package chain holds the block and transaction data model (§3),
// canonical serialization and hashing (§4.1, §6), and block validation
// (§4.9). It is the core's notion of "what a block is" that every
// other component — mempool, consensus, P2P — builds on.
package chain

import "github.com/futureshockco/meeray-node/crypto"

// Transaction is a single operation accepted into the mempool or a
// block. Data carries the op-specific payload, already decoded to the
// concrete type registered for Type (§3, §4.6).
type Transaction struct {
	Type      string      `json:"type"`
	Sender    string      `json:"sender"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
	Hash      string      `json:"hash"`
	Signature string      `json:"signature,omitempty"`
}

// Block is the unit of the append-only sidechain log (§3). Hash and
// Signature are excluded from the bytes that are hashed (§4.1, §6).
type Block struct {
	Height           uint64        `json:"height"`
	ParentHash       string        `json:"parent_hash"`
	AnchorHeight     uint64        `json:"anchor_height"`
	AnchorTimestamp  int64         `json:"anchor_timestamp"`
	Timestamp        int64         `json:"timestamp"`
	Transactions     []Transaction `json:"transactions"`
	Witness          string        `json:"witness"`
	MissedBy         []string      `json:"missed_by,omitempty"`
	Dist             string        `json:"dist"`
	SyncFlag         bool          `json:"sync_flag"`
	Hash             string        `json:"hash"`
	Signature        string        `json:"signature"`
}

// computeHash computes the block's content hash: SHA-256 of the canonical
// serialization of every field except hash and signature (§4.1).
func (b *Block) computeHash() ([32]byte, error) {
	raw, err := CanonicalBytes(b)
	if err != nil {
		return [32]byte{}, err
	}
	return crypto.SHA256(raw), nil
}

// SetHash recomputes and stores b.Hash, returning the raw digest.
func (b *Block) SetHash() ([32]byte, error) {
	digest, err := b.computeHash()
	if err != nil {
		return digest, err
	}
	b.Hash = crypto.EncodeBase58(digest[:])
	return digest, nil
}

// VerifyHash reports whether b.Hash matches the recomputed digest
// (§4.9 rule 7, §8 invariant 1).
func (b *Block) VerifyHash() (bool, error) {
	digest, err := b.computeHash()
	if err != nil {
		return false, err
	}
	want, err := crypto.DecodeBase58(b.Hash)
	if err != nil || len(want) != 32 {
		return false, nil
	}
	return string(want) == string(digest[:]), nil
}

// Sign signs the block's hash digest with key and stores the result.
func (b *Block) Sign(key *crypto.PrivateKey) error {
	digest, err := b.computeHash()
	if err != nil {
		return err
	}
	sig := key.Sign(digest)
	b.Signature = sig.String()
	return nil
}

// VerifySignature checks b.Signature against b's hash digest and pub.
func (b *Block) VerifySignature(pub crypto.PublicKey) (bool, error) {
	digest, err := b.computeHash()
	if err != nil {
		return false, err
	}
	sig, err := crypto.SignatureFromBase58(b.Signature)
	if err != nil {
		return false, nil
	}
	return crypto.Verify(pub, digest, sig), nil
}
