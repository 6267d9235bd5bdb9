package p2p

// WitnessEndpoint names a witness account's declared reachable
// websocket endpoint, as published on-chain.
type WitnessEndpoint struct {
	Account string
	WS      string
}

// AddressBook tracks known peer addresses, seeded from static config
// and grown by PEER_LIST replies (§4.11).
type AddressBook struct {
	addrs map[string]bool
}

// NewAddressBook seeds the book from static config peers.
func NewAddressBook(staticPeers []string) *AddressBook {
	b := &AddressBook{addrs: make(map[string]bool)}
	for _, p := range staticPeers {
		b.addrs[p] = true
	}
	return b
}

// Merge adds addresses learned from a PEER_LIST reply.
func (b *AddressBook) Merge(peers []string) {
	for _, p := range peers {
		b.addrs[p] = true
	}
}

// All returns every known address.
func (b *AddressBook) All() []string {
	out := make([]string, 0, len(b.addrs))
	for a := range b.addrs {
		out = append(out, a)
	}
	return out
}

// SelectOutgoingTargets implements §4.11's discovery rule: attempt
// outgoing connections to the top-3K witnesses (K=witnesses) that
// declare a reachable ws endpoint, skipping ones already connected or
// already dialing. rankedWitnesses is assumed already ranked by vote
// weight (highest first, per the witness scheduler's own ranking,
// §4.8).
func SelectOutgoingTargets(rankedWitnesses []WitnessEndpoint, witnesses int, connected, dialing map[string]bool) []string {
	limit := 3 * witnesses
	out := make([]string, 0, limit)
	for _, w := range rankedWitnesses {
		if len(out) >= limit {
			break
		}
		if w.WS == "" {
			continue
		}
		if connected[w.Account] || dialing[w.Account] {
			continue
		}
		out = append(out, w.WS)
	}
	return out
}
