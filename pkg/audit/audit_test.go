package audit

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasovereign/platform-core/internal/cryptoutil"
)

func TestGenesisHashIsSixtyFourHexChars(t *testing.T) {
	assert.Len(t, GenesisHash, 64)
	for _, c := range GenesisHash {
		assert.Equal(t, byte('0'), byte(c))
	}
}

func TestComputeReceiptHashDeterministic(t *testing.T) {
	r := Receipt{
		ID:              uuid.New(),
		EventType:       "CONSENT_GRANTED",
		Timestamp:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ActorID:         uuid.New(),
		ResourceID:      "res-1",
		DetailsHash:     "deadbeef",
		PrevReceiptHash: GenesisHash,
	}
	a := computeReceiptHash(r)
	b := computeReceiptHash(r)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestComputeReceiptHashChangesWithAnyField(t *testing.T) {
	base := Receipt{
		ID: uuid.New(), EventType: "X", Timestamp: time.Unix(0, 0).UTC(),
		ActorID: uuid.New(), ResourceID: "r", DetailsHash: "h", PrevReceiptHash: GenesisHash,
	}
	baseline := computeReceiptHash(base)

	mutated := base
	mutated.ResourceID = "r2"
	assert.NotEqual(t, baseline, computeReceiptHash(mutated), "a single mutated field must change the hash (tamper detection, Property 4)")

	mutated = base
	mutated.PrevReceiptHash = computeReceiptHash(base)
	assert.NotEqual(t, baseline, computeReceiptHash(mutated), "rewriting the chain link must change the hash")
}

func TestMerkleAnchoringRoundTripsInclusion(t *testing.T) {
	receipts := make([]Receipt, 5)
	prev := GenesisHash
	for i := range receipts {
		r := Receipt{
			ID: uuid.New(), EventType: "EVT", Timestamp: time.Now().UTC(),
			ActorID: uuid.New(), ResourceID: "r", DetailsHash: "h", PrevReceiptHash: prev,
		}
		r.ReceiptHash = computeReceiptHash(r)
		receipts[i] = r
		prev = r.ReceiptHash
	}

	leaves := make([][32]byte, len(receipts))
	for i, r := range receipts {
		leaves[i] = leafFor(r)
	}

	rootBytes, proofs := cryptoutil.BuildMerkleTree(leaves)
	require.Len(t, proofs, len(receipts))
	root := hex.EncodeToString(rootBytes[:])

	for i := range receipts {
		siblings := make([]string, len(proofs[i].Siblings))
		for j, s := range proofs[i].Siblings {
			siblings[j] = hex.EncodeToString(s)
		}
		receipts[i].MerkleProof = siblings

		ok, err := VerifyInclusion(receipts[i], root)
		require.NoError(t, err)
		assert.True(t, ok, "leaf %d must verify against the root it was anchored under", i)
	}

	// Substituting a different receipt's proof must fail verification.
	swapped := receipts[0]
	swapped.MerkleProof = receipts[1].MerkleProof
	ok, err := VerifyInclusion(swapped, root)
	require.NoError(t, err)
	assert.False(t, ok, "a substituted proof must not verify (Testable Property 5)")
}
