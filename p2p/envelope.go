package p2p

import (
	"encoding/json"
	"fmt"

	"github.com/futureshockco/meeray-node/chain"
	"github.com/futureshockco/meeray-node/crypto"
)

// FrameSig is the optional `s` field of a wire frame (§6).
type FrameSig struct {
	N string `json:"n"`
	S string `json:"s"`
}

// Frame is one wire message (§6): `{ t, d, s? }`.
type Frame struct {
	T MessageType     `json:"t"`
	D json.RawMessage `json:"d"`
	S *FrameSig       `json:"s,omitempty"`
}

// NewFrame builds an unsigned frame carrying payload.
func NewFrame(t MessageType, payload interface{}) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("p2p: marshal payload: %w", err)
	}
	return Frame{T: t, D: raw}, nil
}

// digest computes SHA-256 over the frame's canonical bytes minus the
// `s` field, in ASCII-sorted key order (§6).
func digest(f Frame) ([32]byte, error) {
	unsigned := f
	unsigned.S = nil
	raw, err := chain.CanonicalBytesExcluding(unsigned, "s")
	if err != nil {
		return [32]byte{}, err
	}
	return crypto.SHA256(raw), nil
}

// Sign signs f with key under account name n and sets f.S.
func Sign(f Frame, key *crypto.PrivateKey, n string) (Frame, error) {
	d, err := digest(f)
	if err != nil {
		return Frame{}, err
	}
	sig := key.Sign(d)
	f.S = &FrameSig{N: n, S: sig.String()}
	return f, nil
}

// Verify checks f.S against pub. Returns false, nil for an unsigned
// frame (callers decide whether that's acceptable for the message
// type in question).
func Verify(f Frame, pub crypto.PublicKey) (bool, error) {
	if f.S == nil {
		return false, nil
	}
	d, err := digest(f)
	if err != nil {
		return false, err
	}
	sig, err := crypto.SignatureFromBase58(f.S.S)
	if err != nil {
		return false, nil
	}
	return crypto.Verify(pub, d, sig), nil
}

// Decode unmarshals f.D into v.
func Decode(f Frame, v interface{}) error {
	return json.Unmarshal(f.D, v)
}
