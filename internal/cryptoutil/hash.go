// Package cryptoutil holds the shared cryptographic and hashing primitives
// used across the platform: SHA-256 hashing, canonical serialization,
// HMAC-SHA-256 stamping, Ed25519 signing, AES-256-GCM sealing, RSA-OAEP key
// wrapping and Merkle tree anchoring (spec §6). Every primitive here is
// implemented on Go's standard crypto/* packages: for SHA-256, HMAC,
// Ed25519, AES-GCM and RSA-OAEP, the standard library IS the idiomatic
// choice in the Go ecosystem — there is no third-party replacement in the
// example pack or otherwise that improves on it for these primitives.
package cryptoutil

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// SHA256Hex returns the lowercase hex-encoded SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SHA256 returns the raw SHA-256 digest of data.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// Canonical renders v as a deterministic JSON encoding: map keys sorted,
// no extraneous whitespace. It is used everywhere a hash or signature must
// be reproducible from the same logical value regardless of field
// insertion order (scope maps, criteria maps, obligation specs, plan
// payloads).
func Canonical(v any) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}

// normalize round-trips v through JSON so that every value, structs
// included, is reduced to generic maps, slices and scalars. Marshaling that
// form again sorts every object's keys (encoding/json sorts map keys), so a
// struct's field declaration order does not affect the encoding. Slice
// elements keep the order they were given in.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CanonicalString is a convenience wrapper returning Canonical as a string.
func CanonicalString(v any) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SortedJoin sorts strs and joins them with sep, used to build canonical
// payloads out of label/safeguard sets whose insertion order is not
// semantically meaningful (e.g. the policy stamp's safeguard list).
func SortedJoin(strs []string, sep string) string {
	cp := make([]string, len(strs))
	copy(cp, strs)
	sort.Strings(cp)
	out := ""
	for i, s := range cp {
		if i > 0 {
			out += sep
		}
		out += s
	}
	return out
}
