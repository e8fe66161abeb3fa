// Package canon provides deterministic encoding and hashing used wherever
// this kernel needs a reproducible fingerprint: event payload hashes (R2),
// policy pack fingerprints, and audit event hashes (R11).
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Hash is a SHA-256 digest.
type Hash [32]byte

// String renders the digest as lowercase hex.
func (h Hash) String() string {
	return fmt.Sprintf("%x", h[:])
}

// IsZero reports whether the hash has never been assigned.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Encode produces a canonical byte encoding of v: object keys sorted,
// no whitespace, stable across process restarts. This is the basis for
// every hash this package computes, so two logically-equal payloads
// always hash identically regardless of map iteration order.
func Encode(v interface{}) ([]byte, error) {
	normalized := normalize(v)
	return json.Marshal(normalized)
}

// normalize walks a decoded JSON-ish value (maps, slices, scalars) and
// replaces map[string]interface{} with a representation whose keys
// marshal in sorted order.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(orderedMap, 0, len(keys))
		for _, k := range keys {
			ordered = append(ordered, kv{Key: k, Value: normalize(t[k])})
		}
		return ordered
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	default:
		return t
	}
}

type kv struct {
	Key   string
	Value interface{}
}

type orderedMap []kv

// MarshalJSON renders the ordered map as a JSON object preserving the
// (already-sorted) key order, which encoding/json's map handling cannot do.
func (m orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, pair := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(pair.Key)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(pair.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// Sum computes the SHA-256 digest of a canonical encoding of v.
func Sum(v interface{}) (Hash, error) {
	enc, err := Encode(v)
	if err != nil {
		return Hash{}, err
	}
	return sha256.Sum256(enc), nil
}

// SumBytes hashes raw bytes directly, used for chaining two already-computed
// digests (audit hash chain: H(payload_hash || prev_hash)).
func SumBytes(chunks ...[]byte) Hash {
	h := sha256.New()
	for _, c := range chunks {
		h.Write(c)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// ParseHash decodes a hex string produced by Hash.String.
func ParseHash(s string) (Hash, error) {
	var out Hash
	if len(s) != 64 {
		return out, fmt.Errorf("canon: invalid hash length %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}
