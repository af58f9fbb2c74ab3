// Package audit implements the append-only, hash-chained audit ledger
// (spec §4.5): every state transition in pkg/screening, pkg/policyreview,
// pkg/consent, pkg/queryplan, pkg/privacy and pkg/settlement appends a
// receipt here, chained by hash to the previous receipt, with periodic
// Merkle anchoring of a batch and per-leaf inclusion proofs.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// GenesisHash is the fixed prevReceiptHash for the first receipt ever
// appended to a chain shard (spec §3 AuditReceipt invariant).
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Receipt is the tamper-evident record of a single state transition
// (spec §3 AuditReceipt).
type Receipt struct {
	ID              uuid.UUID
	EventType       string
	Timestamp       time.Time
	ActorID         uuid.UUID
	ActorType       string
	ResourceID      string
	ResourceType    string
	DetailsHash     string
	PrevReceiptHash string
	ReceiptHash     string

	// Merkle anchoring (spec §4.5 "anchorBatch"). Zero value means the
	// receipt has not yet been included in an anchored batch.
	MerkleRoot   string
	MerkleProof  []string // sibling hashes, root-ward order
	AnchoredAt   *time.Time
}

// AppendRequest is the input to Ledger.Append (spec §4.5 "appendReceipt").
type AppendRequest struct {
	EventType    string
	ActorID      uuid.UUID
	ActorType    string
	ResourceID   string
	ResourceType string
	DetailsHash  [32]byte
}

// TimeRange bounds a time-range query (inclusive start, exclusive end).
type TimeRange struct {
	Start time.Time
	End   time.Time
}
