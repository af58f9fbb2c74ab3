package cryptoutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Ed25519KeyPair is a named signing key, identified by KeyID so signed
// artifacts (query plans, device capsule proofs) can record which key
// produced them (spec §3 QueryPlan.signingKeyId).
type Ed25519KeyPair struct {
	KeyID      string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateEd25519KeyPair creates a new Ed25519 key pair with the given id.
func GenerateEd25519KeyPair(keyID string) (*Ed25519KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating ed25519 key: %w", err)
	}
	return &Ed25519KeyPair{KeyID: keyID, PublicKey: pub, PrivateKey: priv}, nil
}

// SignHex signs payload and returns the hex-encoded signature.
func (kp *Ed25519KeyPair) SignHex(payload []byte) string {
	sig := ed25519.Sign(kp.PrivateKey, payload)
	return hex.EncodeToString(sig)
}

// VerifyEd25519Hex verifies a hex-encoded Ed25519 signature over payload.
func VerifyEd25519Hex(pub ed25519.PublicKey, payload []byte, sigHex string) bool {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, payload, sig)
}

// KeyRing holds Ed25519 key pairs addressable by KeyID, so verification
// can look a signer up by the signingKeyId recorded on the signed artifact.
type KeyRing struct {
	keys map[string]*Ed25519KeyPair
}

// NewKeyRing creates an empty key ring.
func NewKeyRing() *KeyRing {
	return &KeyRing{keys: make(map[string]*Ed25519KeyPair)}
}

// Add registers a key pair under its KeyID.
func (r *KeyRing) Add(kp *Ed25519KeyPair) {
	r.keys[kp.KeyID] = kp
}

// Get returns the key pair for keyID, or false if unknown.
func (r *KeyRing) Get(keyID string) (*Ed25519KeyPair, bool) {
	kp, ok := r.keys[keyID]
	return kp, ok
}

// Remove deletes a key pair from the ring; afterwards Get reports false for
// keyID, so signatures under that key can no longer be verified.
func (r *KeyRing) Remove(keyID string) {
	delete(r.keys, keyID)
}
