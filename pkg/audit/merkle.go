package audit

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/datasovereign/platform-core/internal/cryptoutil"
)

// AnchorBatch selects every unanchored receipt (up to batchSize), computes
// a Merkle root over their receiptHash leaves using pairwise sorted-order
// concatenation (spec §4.5, §6 "Merkle: pairwise sorted-order
// concatenation"), assigns each receipt its inclusion proof, and returns
// the root for external anchoring. BuildMerkleTree canonicalizes leaf
// order internally, so the order SelectUnanchored happens to return rows
// in does not affect the resulting root.
func (l *Ledger) AnchorBatch(ctx context.Context, batchSize int) (string, error) {
	receipts, err := l.store.SelectUnanchored(ctx, batchSize)
	if err != nil {
		return "", fmt.Errorf("selecting unanchored receipts: %w", err)
	}
	if len(receipts) == 0 {
		return "", nil
	}

	leaves := make([][32]byte, len(receipts))
	for i, r := range receipts {
		leaves[i] = leafFor(r)
	}

	root, proofs := cryptoutil.BuildMerkleTree(leaves)
	rootHex := hex.EncodeToString(root[:])
	anchoredAt := time.Now().UTC()

	for i, r := range receipts {
		siblings := make([]string, len(proofs[i].Siblings))
		for j, s := range proofs[i].Siblings {
			siblings[j] = hex.EncodeToString(s)
		}
		if err := l.store.SetMerkleProof(ctx, r.ID, rootHex, siblings, anchoredAt); err != nil {
			return "", fmt.Errorf("persisting merkle proof for receipt %s: %w", r.ID, err)
		}
	}

	return rootHex, nil
}

// leafFor derives a receipt's Merkle leaf from its receiptHash.
func leafFor(r Receipt) [32]byte {
	var leaf [32]byte
	decoded, err := hex.DecodeString(r.ReceiptHash)
	if err != nil || len(decoded) != 32 {
		// Never happens for a receipt produced by Append, which always
		// writes a 32-byte hex SHA-256 digest; fall back to hashing the
		// string itself so a malformed row cannot panic the anchor run.
		return cryptoutil.SHA256([]byte(r.ReceiptHash))
	}
	copy(leaf[:], decoded)
	return leaf
}

// VerifyInclusion confirms that receipt r was included under root, given
// its stored MerkleProof (Testable Property 5).
func VerifyInclusion(r Receipt, root string) (bool, error) {
	expectedRoot, err := hex.DecodeString(root)
	if err != nil || len(expectedRoot) != 32 {
		return false, fmt.Errorf("decoding expected root: %w", err)
	}
	var rootBytes [32]byte
	copy(rootBytes[:], expectedRoot)

	proof := cryptoutil.MerkleProof{Siblings: make([][]byte, len(r.MerkleProof))}
	for i, s := range r.MerkleProof {
		sib, err := hex.DecodeString(s)
		if err != nil {
			return false, fmt.Errorf("decoding merkle sibling: %w", err)
		}
		proof.Siblings[i] = sib
	}

	return cryptoutil.VerifyInclusion(leafFor(r), proof, rootBytes), nil
}
