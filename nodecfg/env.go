// Package nodecfg loads the node's process-level configuration from a
// fixed, named set of environment variables rather than a generic
// flags struct.
package nodecfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Env is the process configuration read once at startup.
type Env struct {
	Account            string
	WitnessPublicKey   string
	WitnessPrivateKey  string
	P2PPort            int
	Peers              []string
	MaxPeers           int
	MempoolSize        int
	RebuildState       bool
	RebuildNoVerify    bool
	RebuildWriteInterval int
}

// Load reads Env from the process environment, applying sensible
// defaults for the fields that have them (P2P port, MaxPeers, mempool
// size, rebuild settings) and failing only when P2P_PORT is outside
// 1..65535. Empty signing variables are accepted: the node then runs
// as an observer (see IsWitness).
func Load() (Env, error) {
	e := Env{
		Account:              os.Getenv("WITNESS_ACCOUNT"),
		WitnessPublicKey:     os.Getenv("WITNESS_PUBLIC_KEY"),
		WitnessPrivateKey:    os.Getenv("WITNESS_PRIVATE_KEY"),
		P2PPort:              envInt("P2P_PORT", 19111),
		Peers:                splitPeers(os.Getenv("PEERS")),
		MaxPeers:             envInt("MAX_PEERS", 64),
		MempoolSize:          envInt("MEMPOOL_SIZE", 2000),
		RebuildState:         envBool("REBUILD_STATE", false),
		RebuildNoVerify:      envBool("REBUILD_NO_VERIFY", false),
		RebuildWriteInterval: envInt("REBUILD_WRITE_INTERVAL", 1),
	}
	if e.P2PPort <= 0 || e.P2PPort > 65535 {
		return Env{}, fmt.Errorf("nodecfg: invalid P2P_PORT %d", e.P2PPort)
	}
	return e, nil
}

// IsWitness reports whether this process is configured with a signing
// key (§4.10's "active" vs "observer" distinction).
func (e Env) IsWitness() bool {
	return e.Account != "" && e.WitnessPrivateKey != ""
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(name string, fallback bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitPeers(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
