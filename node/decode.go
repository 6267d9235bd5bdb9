package node

import (
	"fmt"

	"github.com/futureshockco/meeray-node/anchor"
	"github.com/futureshockco/meeray-node/state"
)

// DecodeOperation implements anchor.Decoder: an operation belongs to
// this sidechain if its type is one the state engine's registry knows
// how to execute (§4.5's "sub-identifier names our sidechain" reduces,
// at the core boundary, to "is a transaction type we process" — the
// registry is the single source of truth for that set, §4.6/§4.7).
// Anything else is silently not ours; a known type with no sender is a
// malformed payload, logged and skipped by the ingestor rather than
// blocking its cursor.
func DecodeOperation(registry state.Registry) anchor.Decoder {
	return func(op anchor.Operation, anchorTimestamp int64) (anchor.Decoded, bool, error) {
		if _, known := registry[op.Type]; !known {
			return anchor.Decoded{}, false, nil
		}
		if op.Sender == "" {
			return anchor.Decoded{}, false, fmt.Errorf("node: operation of type %q has no sender", op.Type)
		}
		return anchor.Decoded{
			Type:      op.Type,
			Sender:    op.Sender,
			Data:      op.Payload,
			Timestamp: anchorTimestamp,
		}, true, nil
	}
}
