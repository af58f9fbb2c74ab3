// Package capsule implements the Time Capsule: the encrypted, TTL-bounded
// response envelope a device produces for a dispatched query plan (spec
// §4.4 second half). Payloads are hybrid-encrypted (AES-256-GCM + RSA-OAEP
// key wrap), keys live in a process-local key store, and crypto-shred
// makes decryption permanently impossible by destroying the key rather
// than the ciphertext.
package capsule

import (
	"time"

	"github.com/google/uuid"
)

// Status is the TimeCapsule lifecycle state (spec §4.4).
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusDelivered Status = "DELIVERED"
	StatusExpired   Status = "EXPIRED"
	StatusShredded  Status = "SHREDDED"
)

// OutputMode describes the shape of the capsule's decrypted payload.
type OutputMode string

const (
	OutputModeAggregate OutputMode = "AGGREGATE"
	OutputModeRecordSet OutputMode = "RECORD_SET"
)

// Summary describes a capsule's payload without revealing its contents
// (spec §4.4 Header.summary).
type Summary struct {
	RecordCount      int
	FieldNames       []string
	PayloadSizeBytes int
	OutputMode       OutputMode
}

// Header is the unencrypted, queryable portion of a capsule (spec §4.4).
type Header struct {
	CapsuleID     uuid.UUID
	PlanID        uuid.UUID
	ContractID    uuid.UUID
	TTLMinutes    int
	SchemaVersion string
	Summary       Summary
	DSNodeID      uuid.UUID
	RequesterID   uuid.UUID
}

// Proofs binds a capsule to the plan and DS node that produced it (spec
// §4.4).
type Proofs struct {
	CapsuleHash string
	DSSignature string
	ContractID  uuid.UUID
	PlanHash    string
	SignedAt    time.Time
}

// TimeCapsule is the encrypted response to a dispatched query plan (spec
// §3, §4.4).
type TimeCapsule struct {
	ID             uuid.UUID
	Header         Header
	EncryptedBlob  []byte
	WrappedKey     []byte
	KeyID          string
	Nonce          string
	Proofs         Proofs
	Status         Status
	ExpiresAt      time.Time
	CreatedAt      time.Time
	Version        int
}

// CreateCapsuleRequest is the input to Engine.CreateCapsule.
type CreateCapsuleRequest struct {
	PlanID      uuid.UUID
	ContractID  uuid.UUID
	DSNodeID    uuid.UUID
	RequesterID uuid.UUID
	TTLMinutes  int
	Plaintext   []byte
	Summary     Summary
	PlanHash    string
	Nonce       string
}
