package capsule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasovereign/platform-core/internal/cryptoutil"
)

func TestKeyStoreShredIsIdempotent(t *testing.T) {
	store := NewKeyStore()
	store.Add("k1", []byte("0123456789abcdef0123456789abcdef"))

	require.NoError(t, store.Shred("k1"))

	_, ok := store.Get("k1")
	assert.False(t, ok)

	err := store.Shred("k1")
	assert.ErrorIs(t, err, ErrAlreadyShredded)
}

func TestKeyStoreShredUnknownKeyFails(t *testing.T) {
	store := NewKeyStore()
	err := store.Shred("unknown")
	assert.ErrorIs(t, err, ErrAlreadyShredded)
}

func TestComputeCapsuleHashChangesWithPayload(t *testing.T) {
	header := Header{CapsuleID: uuid.New(), PlanID: uuid.New()}

	h1 := computeCapsuleHash(header, []byte("payload-a"))
	h2 := computeCapsuleHash(header, []byte("payload-b"))

	assert.NotEqual(t, h1, h2)
}

func TestEngineVerifyRejectsContractIDMismatch(t *testing.T) {
	dsNode := uuid.New()
	kp, err := cryptoutil.GenerateEd25519KeyPair(dsNode.String())
	require.NoError(t, err)
	ring := cryptoutil.NewKeyRing()
	ring.Add(kp)

	header := Header{CapsuleID: uuid.New(), ContractID: uuid.New(), DSNodeID: dsNode}
	hash := computeCapsuleHash(header, []byte("blob"))
	proofs := Proofs{ContractID: uuid.New(), CapsuleHash: hash}
	proofs.DSSignature = kp.SignHex([]byte(signablePayload(hash, proofs)))

	e := &Engine{dsKeyRing: ring}
	capsule := TimeCapsule{Header: header, EncryptedBlob: []byte("blob"), Proofs: proofs}

	err = e.Verify(capsule)
	require.Error(t, err)
}

func TestEngineVerifyAcceptsConsistentCapsule(t *testing.T) {
	dsNode := uuid.New()
	kp, err := cryptoutil.GenerateEd25519KeyPair(dsNode.String())
	require.NoError(t, err)
	ring := cryptoutil.NewKeyRing()
	ring.Add(kp)

	contractID := uuid.New()
	header := Header{CapsuleID: uuid.New(), ContractID: contractID, DSNodeID: dsNode}
	hash := computeCapsuleHash(header, []byte("blob"))
	proofs := Proofs{ContractID: contractID, CapsuleHash: hash}
	proofs.DSSignature = kp.SignHex([]byte(signablePayload(hash, proofs)))

	e := &Engine{dsKeyRing: ring}
	capsule := TimeCapsule{
		Header: header, EncryptedBlob: []byte("blob"), Proofs: proofs,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	assert.NoError(t, e.Verify(capsule))
}
