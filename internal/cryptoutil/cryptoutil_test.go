package cryptoutil

import (
	"crypto/rsa"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalIsKeyOrderIndependent(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2}
	b := map[string]any{"a": 2, "b": 1}

	ca, err := CanonicalString(a)
	require.NoError(t, err)
	cb, err := CanonicalString(b)
	require.NoError(t, err)

	assert.Equal(t, ca, cb)
}

func TestHMACVerifyRoundtrip(t *testing.T) {
	key := []byte("policy-key")
	payload := []byte("requestId|APPROVED|K_ANONYMITY_50,TTL_72H")

	sig := HMACSHA256Hex(key, payload)
	assert.True(t, VerifyHMACSHA256Hex(key, payload, sig))
	assert.False(t, VerifyHMACSHA256Hex(key, []byte("tampered"), sig))
	assert.False(t, VerifyHMACSHA256Hex([]byte("wrong-key"), payload, sig))
}

func TestEd25519SignVerify(t *testing.T) {
	kp, err := GenerateEd25519KeyPair("plan-key-1")
	require.NoError(t, err)

	payload := []byte("plan-payload")
	sig := kp.SignHex(payload)

	assert.True(t, VerifyEd25519Hex(kp.PublicKey, payload, sig))
	assert.False(t, VerifyEd25519Hex(kp.PublicKey, []byte("other"), sig))
}

func TestAESGCMRoundtripAndTamperDetection(t *testing.T) {
	key, err := GenerateAESKey()
	require.NoError(t, err)

	plaintext := []byte("encrypted time capsule payload")
	aad := []byte("header-hash")

	sealed, err := SealAESGCM(key, plaintext, aad)
	require.NoError(t, err)

	opened, err := OpenAESGCM(key, sealed, aad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)

	// Wrong key simulates crypto-shred: decryption must permanently fail.
	wrongKey, err := GenerateAESKey()
	require.NoError(t, err)
	_, err = OpenAESGCM(wrongKey, sealed, aad)
	assert.Error(t, err)

	// Tampered ciphertext must fail authentication.
	tampered := append([]byte{}, sealed...)
	tampered[len(tampered)-1] ^= 0xFF
	_, err = OpenAESGCM(key, tampered, aad)
	assert.Error(t, err)
}

func TestRSAOAEPWrapUnwrap(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	aesKey, err := GenerateAESKey()
	require.NoError(t, err)

	wrapped, err := WrapKeyRSAOAEP(&priv.PublicKey, aesKey)
	require.NoError(t, err)

	unwrapped, err := UnwrapKeyRSAOAEP(priv, wrapped)
	require.NoError(t, err)
	assert.Equal(t, aesKey, unwrapped)
}

func TestMerkleInclusionAndTamperDetection(t *testing.T) {
	leaves := make([][32]byte, 0, 5)
	for _, s := range []string{"r1", "r2", "r3", "r4", "r5"} {
		leaves = append(leaves, SHA256([]byte(s)))
	}

	root, proofs := BuildMerkleTree(leaves)
	require.Len(t, proofs, len(leaves))

	for i, leaf := range leaves {
		assert.True(t, VerifyInclusion(leaf, proofs[i], root), "leaf %d should verify", i)
	}

	// Substituting a different leaf under the same proof must fail.
	forged := SHA256([]byte("forged"))
	assert.False(t, VerifyInclusion(forged, proofs[0], root))
}
