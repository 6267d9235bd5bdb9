package chain

import "encoding/json"

// CanonicalBytes renders v (a *Block or similar hashable value) as a
// JSON-like object with keys in ASCII-sort order and no whitespace,
// excluding the "hash" and "signature" fields (§4.1, §6). Go's
// encoding/json already sorts map[string]interface{} keys on marshal,
// so round-tripping through a generic map gives us canonical ordering
// for free, including for every nested object.
func CanonicalBytes(v interface{}) ([]byte, error) {
	return CanonicalBytesExcluding(v, "hash", "signature")
}

// CanonicalBytesExcluding is CanonicalBytes generalized to an
// arbitrary set of excluded top-level field names, shared with the P2P
// wire envelope's own signing rule (§6: sign the SHA-256 of the frame
// minus its "s" field, in ASCII-sorted key order).
func CanonicalBytesExcluding(v interface{}, exclude ...string) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var asMap map[string]interface{}
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, err
	}
	for _, k := range exclude {
		delete(asMap, k)
	}
	return json.Marshal(asMap)
}
