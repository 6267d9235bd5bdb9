// Package p2p implements the peer transport of C11 (§4.11): handshake
// with challenge/response, the message envelope and dispatch, gossip
// with per-peer deduplication, recovery of missing blocks, and peer
// discovery.
//
// Framing, handshake, gossip dedup, and discovery are kept as separate
// files/concerns even though each is small, so a peer's connection
// lifecycle (handshake, then steady-state message dispatch, then
// disconnect/ban) stays easy to follow one stage at a time.
package p2p

import "encoding/json"

// MessageType is the wire `t` discriminator (§4.11, §6).
type MessageType int

const (
	QueryNodeStatus MessageType = iota
	NodeStatusMsg
	QueryBlock
	BlockMsg
	NewBlock
	BlockConfRound
	SteemSyncStatus
	QueryPeerList
	PeerListMsg
)

// QueryNodeStatusPayload is the `t=QUERY_NODE_STATUS` payload: a
// 32-byte random challenge, hex-encoded.
type QueryNodeStatusPayload struct {
	NodeID string `json:"node_id"`
	Random string `json:"random"`
}

// NodeStatusPayload is the `t=NODE_STATUS` handshake response.
type NodeStatusPayload struct {
	NodeID            string `json:"node_id"`
	HeadBlock         uint64 `json:"head_block"`
	HeadBlockHash     string `json:"head_block_hash"`
	PreviousBlockHash string `json:"previous_block_hash"`
	OriginBlock       string `json:"origin_block"`
	Version           string `json:"version"`
	Sign              string `json:"sign"`
}

// BlockConfRoundPayload is the `t=BLOCK_CONF_ROUND` payload (§6): the
// producer's round-0 message carries the full block; every other
// round/participant carries only the hash.
type BlockConfRoundPayload struct {
	Round     int             `json:"r"`
	Hash      string          `json:"hash,omitempty"`
	FullBlock json.RawMessage `json:"block,omitempty"`
	Timestamp int64           `json:"ts"`
}

// SteemSyncStatusPayload is the `t=STEEM_SYNC_STATUS` gossip payload
// (§4.5.2, §6).
type SteemSyncStatusPayload struct {
	NodeID       string `json:"node_id"`
	BehindBlocks uint64 `json:"behind_blocks"`
	AnchorHead   uint64 `json:"anchor_head"`
	IsSyncing    bool   `json:"is_syncing"`
	HeadHeight   uint64 `json:"head_height"`
	ExitTarget   uint64 `json:"exit_target,omitempty"`
	Timestamp    int64  `json:"timestamp"`
	Relayed      bool   `json:"relayed,omitempty"`
}

// PeerListPayload is the `t=PEER_LIST` reply.
type PeerListPayload struct {
	Peers []string `json:"peers"`
}
