package p2p

import (
	"crypto/rand"
	"fmt"

	"github.com/futureshockco/meeray-node/crypto"
)

// Challenge is the 32-byte random value each side of a handshake
// issues and expects the other to sign (§4.11).
type Challenge [32]byte

// NewChallenge generates a fresh random challenge.
func NewChallenge() (Challenge, error) {
	var c Challenge
	if _, err := rand.Read(c[:]); err != nil {
		return Challenge{}, fmt.Errorf("p2p: generate challenge: %w", err)
	}
	return c, nil
}

// RespondToChallenge signs the peer-issued challenge with key and
// builds the NODE_STATUS reply (§4.11, §6).
func RespondToChallenge(key *crypto.PrivateKey, nodeID string, challenge Challenge, head uint64, headHash, parentHash, originHash, version string) NodeStatusPayload {
	sig := key.Sign([32]byte(challenge))
	return NodeStatusPayload{
		NodeID:            nodeID,
		HeadBlock:         head,
		HeadBlockHash:     headHash,
		PreviousBlockHash: parentHash,
		OriginBlock:       originHash,
		Version:           version,
		Sign:              sig.String(),
	}
}

// VerifyChallengeResponse checks that status.Sign verifies against pub
// over the exact challenge we issued (§4.11 acceptance rule b).
func VerifyChallengeResponse(pub crypto.PublicKey, challenge Challenge, status NodeStatusPayload) (bool, error) {
	sig, err := crypto.SignatureFromBase58(status.Sign)
	if err != nil {
		return false, nil
	}
	return crypto.Verify(pub, [32]byte(challenge), sig), nil
}

// AcceptDecision is the outcome of evaluating §4.11's four peer
// acceptance criteria.
type AcceptDecision struct {
	Accepted bool
	Reason   string
}

func reject(reason string) AcceptDecision { return AcceptDecision{Reason: reason} }

// EvaluateAcceptance applies §4.11's acceptance criteria (a)-(d), in
// order, short-circuiting on the first failure.
func EvaluateAcceptance(localOriginHash, peerOriginHash string, sigValid bool, alreadyConnected bool, currentPeers, peerCap int) AcceptDecision {
	if peerOriginHash != localOriginHash {
		return reject("origin_hash does not match local genesis marker")
	}
	if !sigValid {
		return reject("challenge signature does not verify")
	}
	if alreadyConnected {
		return reject("a connection with this node_id is already open")
	}
	if currentPeers >= peerCap {
		return reject("peer cap exceeded")
	}
	return AcceptDecision{Accepted: true}
}
