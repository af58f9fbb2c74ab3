package cryptoutil

import (
	"bytes"
	"sort"
)

// MerkleProof is the sibling path from a leaf to the root: each step is
// authenticated by hashing the accumulator with the sibling hash, in
// sorted order, per spec §4.5.
type MerkleProof struct {
	Siblings [][]byte
}

// BuildMerkleTree computes a root over leaves using pairwise, sorted-order
// concatenation, duplicating an odd trailing leaf at each level (spec §4.5,
// §6 "Merkle: pairwise sorted-order concatenation"). It also returns the
// inclusion proof for every original leaf, indexed the same as leaves.
//
// Leaves are first reordered into a canonical hash-sorted sequence via
// sortLeavesWithIndex: pairHash already sorts the two hashes within a pair,
// but which leaves land in the same pair still depends on array position,
// so two callers presenting the same leaf set in different orders would
// otherwise walk the tree differently and anchor a different root for an
// identical batch of receipts. Sorting first makes the root a pure
// function of the leaf set, not its caller-supplied order.
func BuildMerkleTree(leaves [][32]byte) (root [32]byte, proofs []MerkleProof) {
	if len(leaves) == 0 {
		return [32]byte{}, nil
	}

	order := sortLeavesWithIndex(leaves)
	level := make([][32]byte, len(leaves))
	for i, orig := range order {
		level[i] = leaves[orig]
	}

	sortedProofs := make([]MerkleProof, len(leaves))
	// indices tracks, for each sorted leaf, its position within the
	// current level so we can collect its sibling at each round.
	indices := make([]int, len(leaves))
	for i := range indices {
		indices[i] = i
	}

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][32]byte, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			left, right := level[i], level[i+1]
			combined := pairHash(left, right)
			next[i/2] = combined
		}
		for leafIdx, pos := range indices {
			siblingPos := pos ^ 1
			sibling := level[siblingPos]
			sortedProofs[leafIdx].Siblings = append(sortedProofs[leafIdx].Siblings, sibling[:])
			indices[leafIdx] = pos / 2
		}
		level = next
	}

	proofs = make([]MerkleProof, len(leaves))
	for sortedIdx, orig := range order {
		proofs[orig] = sortedProofs[sortedIdx]
	}

	return level[0], proofs
}

// pairHash hashes two sibling nodes together in sorted order, so that a
// verifier does not need to know which side was "left" vs "right" — the
// ordering is a pure function of the two hash values.
func pairHash(a, b [32]byte) [32]byte {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return SHA256(append(append([]byte{}, a[:]...), b[:]...))
	}
	return SHA256(append(append([]byte{}, b[:]...), a[:]...))
}

// VerifyInclusion recomputes the root from leaf and proof and checks it
// against the expected root (spec §4.5, Testable Property 5).
func VerifyInclusion(leaf [32]byte, proof MerkleProof, root [32]byte) bool {
	acc := leaf
	for _, sibling := range proof.Siblings {
		var sib [32]byte
		copy(sib[:], sibling)
		acc = pairHash(acc, sib)
	}
	return bytes.Equal(acc[:], root[:])
}

// sortLeavesWithIndex returns the indices of leaves ordered by leaf hash.
// BuildMerkleTree uses it to put the leaves into hash-sorted order before
// pairing, so the root does not depend on the order the leaves came in.
func sortLeavesWithIndex(leaves [][32]byte) []int {
	idx := make([]int, len(leaves))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		return bytes.Compare(leaves[idx[i]][:], leaves[idx[j]][:]) < 0
	})
	return idx
}
