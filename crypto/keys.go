// Package crypto provides the signing, hashing, and address-encoding
// primitives shared by consensus, the witness scheduler, and the P2P
// transport: secp256k1 keys, SHA-256 hashing, and base58 wire encoding.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/mr-tron/base58"
)

const (
	// PublicKeySize is the length of a compressed secp256k1 public key.
	PublicKeySize = 33
	// SignatureSize is the length of a compact ECDSA signature (R || S).
	SignatureSize = 64
)

// PrivateKey wraps a secp256k1 private key.
type PrivateKey struct {
	key *btcec.PrivateKey
}

// PublicKey is a 33-byte compressed secp256k1 public key.
type PublicKey [PublicKeySize]byte

// Signature is a 64-byte compact (R || S) ECDSA signature.
type Signature [SignatureSize]byte

// GenerateKey creates a new random private key.
func GenerateKey() (*PrivateKey, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes parses a 32-byte raw scalar into a private key.
func PrivateKeyFromBytes(raw []byte) (*PrivateKey, error) {
	if len(raw) != 32 {
		return nil, fmt.Errorf("crypto: private key must be 32 bytes, got %d", len(raw))
	}
	key := secp256k1PrivKeyFromBytes(raw)
	return &PrivateKey{key: key}, nil
}

func secp256k1PrivKeyFromBytes(raw []byte) *btcec.PrivateKey {
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return priv
}

// Bytes returns the raw 32-byte scalar.
func (k *PrivateKey) Bytes() []byte {
	return k.key.Serialize()
}

// Public derives the compressed public key for this private key.
func (k *PrivateKey) Public() PublicKey {
	var pk PublicKey
	copy(pk[:], k.key.PubKey().SerializeCompressed())
	return pk
}

// Sign produces a deterministic (RFC 6979) compact ECDSA signature over a
// 32-byte digest. Two honest signers over the same digest and key produce
// byte-identical signatures, which block-hash determinism (§4.1) depends on.
func (k *PrivateKey) Sign(digest [32]byte) Signature {
	sig := ecdsa.SignCompact(k.key, digest[:], false)
	// SignCompact prefixes with a 1-byte recovery/format marker; strip it to
	// the canonical 64-byte R||S wire form used by the block and message envelopes.
	var out Signature
	copy(out[:], sig[1:])
	return out
}

// Verify checks sig against digest for the given compressed public key.
func Verify(pub PublicKey, digest [32]byte, sig Signature) bool {
	pk, err := btcec.ParsePubKey(pub[:])
	if err != nil {
		return false
	}
	r := new(btcec.ModNScalar)
	s := new(btcec.ModNScalar)
	if overflow := r.SetByteSlice(sig[:32]); overflow {
		return false
	}
	if overflow := s.SetByteSlice(sig[32:]); overflow {
		return false
	}
	esig := ecdsa.NewSignature(r, s)
	return esig.Verify(digest[:], pk)
}

// SHA256 hashes arbitrary bytes to a 32-byte digest.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// RandomChallenge returns n cryptographically random bytes, used for the
// P2P handshake challenge (§4.11).
func RandomChallenge(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("crypto: random challenge: %w", err)
	}
	return buf, nil
}

// EncodeBase58 encodes bytes to the base58 wire form used for public keys
// and signatures (§3).
func EncodeBase58(b []byte) string {
	return base58.Encode(b)
}

// DecodeBase58 decodes a base58 wire string back to bytes.
func DecodeBase58(s string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("crypto: base58 decode: %w", err)
	}
	return b, nil
}

// String renders the public key in its base58 wire form.
func (p PublicKey) String() string {
	return EncodeBase58(p[:])
}

// PublicKeyFromBase58 parses a base58-encoded compressed public key.
func PublicKeyFromBase58(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := DecodeBase58(s)
	if err != nil {
		return pk, err
	}
	if len(raw) != PublicKeySize {
		return pk, fmt.Errorf("crypto: public key must be %d bytes, got %d", PublicKeySize, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// String renders the signature in its base58 wire form.
func (s Signature) String() string {
	return EncodeBase58(s[:])
}

// SignatureFromBase58 parses a base58-encoded compact signature.
func SignatureFromBase58(s string) (Signature, error) {
	var sig Signature
	raw, err := DecodeBase58(s)
	if err != nil {
		return sig, err
	}
	if len(raw) != SignatureSize {
		return sig, fmt.Errorf("crypto: signature must be %d bytes, got %d", SignatureSize, len(raw))
	}
	copy(sig[:], raw)
	return sig, nil
}
