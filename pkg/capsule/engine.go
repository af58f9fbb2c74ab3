package capsule

import (
	"context"
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/datasovereign/platform-core/internal/apperr"
	"github.com/datasovereign/platform-core/internal/cryptoutil"
	"github.com/datasovereign/platform-core/pkg/actor"
)

// RequesterKeyResolver looks up the RSA public key a capsule's symmetric
// key is wrapped to, keyed by requester.
type RequesterKeyResolver interface {
	PublicKeyFor(ctx context.Context, requesterID uuid.UUID) (*rsa.PublicKey, error)
}

// AuditAppender is the narrow audit-ledger slice the engine needs.
type AuditAppender interface {
	AppendReceipt(ctx context.Context, eventType string, actorID uuid.UUID, actorType actor.Type, resourceID, resourceType string, detailsHash [32]byte) error
}

// Engine implements Time Capsule creation, verification, delivery
// acknowledgement, crypto-shred and TTL sweep (spec §4.4 second half).
type Engine struct {
	store      *Store
	keys       *KeyStore
	dsKeyRing  *cryptoutil.KeyRing
	requesters RequesterKeyResolver
	audit      AuditAppender
}

// NewEngine constructs an Engine. dsKeyRing resolves the Ed25519 key a DS
// node signs capsule proofs with, looked up by the node's uuid string.
func NewEngine(store *Store, keys *KeyStore, dsKeyRing *cryptoutil.KeyRing, requesters RequesterKeyResolver, audit AuditAppender) *Engine {
	return &Engine{store: store, keys: keys, dsKeyRing: dsKeyRing, requesters: requesters, audit: audit}
}

// CreateCapsule seals req.Plaintext under a fresh AES-256 key, wraps that
// key to the requester's RSA public key, signs the resulting proofs with
// the DS node's Ed25519 key, and persists the capsule CREATED (spec
// §4.4). The nonce must be globally unique; reuse is rejected.
func (e *Engine) CreateCapsule(ctx context.Context, req CreateCapsuleRequest) (TimeCapsule, error) {
	if req.Nonce == "" {
		return TimeCapsule{}, apperr.New(apperr.KindValidationFailure, "CAPSULE_002", "nonce is required")
	}
	if err := e.store.RegisterNonce(ctx, req.Nonce); err != nil {
		return TimeCapsule{}, apperr.New(apperr.KindDuplicate, "CAPSULE_003", "nonce has already been used")
	}

	dsKey, ok := e.dsKeyRing.Get(req.DSNodeID.String())
	if !ok {
		return TimeCapsule{}, apperr.New(apperr.KindNotFound, "CAPSULE_004", "no signing key registered for DS node")
	}
	pub, err := e.requesters.PublicKeyFor(ctx, req.RequesterID)
	if err != nil {
		return TimeCapsule{}, fmt.Errorf("resolving requester public key: %w", err)
	}

	capsuleID := uuid.New()
	ttl := req.TTLMinutes
	if ttl <= 0 {
		ttl = 60
	}

	header := Header{
		CapsuleID:     capsuleID,
		PlanID:        req.PlanID,
		ContractID:    req.ContractID,
		TTLMinutes:    ttl,
		SchemaVersion: "v1",
		Summary:       req.Summary,
		DSNodeID:      req.DSNodeID,
		RequesterID:   req.RequesterID,
	}
	header.Summary.PayloadSizeBytes = len(req.Plaintext)

	aesKey, err := cryptoutil.GenerateAESKey()
	if err != nil {
		return TimeCapsule{}, err
	}
	headerCanon, err := cryptoutil.Canonical(header)
	if err != nil {
		return TimeCapsule{}, fmt.Errorf("canonicalizing header: %w", err)
	}
	sealed, err := cryptoutil.SealAESGCM(aesKey, req.Plaintext, headerCanon)
	if err != nil {
		return TimeCapsule{}, fmt.Errorf("sealing payload: %w", err)
	}
	wrappedKey, err := cryptoutil.WrapKeyRSAOAEP(pub, aesKey)
	if err != nil {
		return TimeCapsule{}, fmt.Errorf("wrapping capsule key: %w", err)
	}

	keyID := capsuleID.String()
	e.keys.Add(keyID, aesKey)

	capsuleHash := computeCapsuleHash(header, sealed)
	proofs := Proofs{
		ContractID: req.ContractID,
		PlanHash:   req.PlanHash,
		SignedAt:   time.Now(),
	}
	proofs.CapsuleHash = capsuleHash
	proofs.DSSignature = dsKey.SignHex([]byte(signablePayload(capsuleHash, proofs)))

	capsule := TimeCapsule{
		ID:            capsuleID,
		Header:        header,
		EncryptedBlob: sealed,
		WrappedKey:    wrappedKey,
		KeyID:         keyID,
		Nonce:         req.Nonce,
		Proofs:        proofs,
		Status:        StatusCreated,
		ExpiresAt:     time.Now().Add(time.Duration(ttl) * time.Minute),
	}

	if err := e.store.Create(ctx, capsule); err != nil {
		return TimeCapsule{}, fmt.Errorf("persisting capsule: %w", err)
	}

	if err := e.audit.AppendReceipt(ctx, "CAPSULE_CREATED", req.RequesterID, actor.TypeRequester, capsuleID.String(), "time_capsule", cryptoutil.SHA256([]byte(capsuleHash))); err != nil {
		return TimeCapsule{}, fmt.Errorf("appending audit receipt: %w", err)
	}

	return capsule, nil
}

// computeCapsuleHash implements capsuleHash = SHA-256(canonical(header ‖
// payload)) (spec §4.4).
func computeCapsuleHash(header Header, payload []byte) string {
	headerCanon, _ := cryptoutil.Canonical(header)
	combined := append(append([]byte{}, headerCanon...), payload...)
	return cryptoutil.SHA256Hex(combined)
}

func signablePayload(capsuleHash string, proofs Proofs) string {
	return fmt.Sprintf("%s|%s|%s", capsuleHash, proofs.ContractID, proofs.PlanHash)
}

// Verify rejects a capsule whose recomputed hash differs, whose
// contractId disagrees between header and proofs, whose DS signature
// fails, or whose TTL has lapsed (spec §4.4).
func (e *Engine) Verify(capsule TimeCapsule) error {
	if capsule.Header.ContractID != capsule.Proofs.ContractID {
		return apperr.New(apperr.KindIntegrityFailure, "CAPSULE_005", "contractId disagrees between header and proofs")
	}
	if computeCapsuleHash(capsule.Header, capsule.EncryptedBlob) != capsule.Proofs.CapsuleHash {
		return apperr.New(apperr.KindIntegrityFailure, "CAPSULE_006", "capsule hash mismatch")
	}
	dsKey, ok := e.dsKeyRing.Get(capsule.Header.DSNodeID.String())
	if !ok || !cryptoutil.VerifyEd25519Hex(dsKey.PublicKey, []byte(signablePayload(capsule.Proofs.CapsuleHash, capsule.Proofs)), capsule.Proofs.DSSignature) {
		return apperr.New(apperr.KindIntegrityFailure, "CAPSULE_007", "DS signature invalid")
	}
	if !time.Now().Before(capsule.ExpiresAt) {
		return apperr.New(apperr.KindInvalidState, "CAPSULE_008", "capsule TTL has lapsed")
	}
	return nil
}

// Decrypt looks up capsule's key in the key store, verifies capsule, then
// opens its payload under that key. Returns KEY_DESTROYED once crypto-shred
// has run, including for a capsule whose TTL has also lapsed.
func (e *Engine) Decrypt(capsule TimeCapsule) ([]byte, error) {
	key, ok := e.keys.Get(capsule.KeyID)
	if !ok {
		return nil, apperr.New(apperr.KindIntegrityFailure, "KEY_DESTROYED", "capsule key has been destroyed")
	}
	if err := e.Verify(capsule); err != nil {
		return nil, err
	}
	headerCanon, err := cryptoutil.Canonical(capsule.Header)
	if err != nil {
		return nil, err
	}
	plaintext, err := cryptoutil.OpenAESGCM(key, capsule.EncryptedBlob, headerCanon)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIntegrityFailure, "CAPSULE_010", "decrypting capsule payload failed", err)
	}
	return plaintext, nil
}

// Deliver transitions a capsule CREATED -> DELIVERED on device
// acknowledgement.
func (e *Engine) Deliver(ctx context.Context, capsuleID uuid.UUID) error {
	return e.store.UpdateStatus(ctx, capsuleID, StatusDelivered)
}

// CryptoShred removes the capsule's key from the key store and marks it
// SHREDDED, permanently disabling decryption. Idempotent: a second call
// returns ErrAlreadyShredded rather than silently succeeding.
func (e *Engine) CryptoShred(ctx context.Context, capsuleID uuid.UUID) error {
	capsule, err := e.store.Get(ctx, capsuleID)
	if err != nil {
		return err
	}
	if capsule.Status == StatusShredded {
		return ErrAlreadyShredded
	}
	if err := e.keys.Shred(capsule.KeyID); err != nil && err != ErrAlreadyShredded {
		return err
	}
	if err := e.store.UpdateStatus(ctx, capsuleID, StatusShredded); err != nil {
		return err
	}
	if err := e.audit.AppendReceipt(ctx, "CAPSULE_SHREDDED", uuid.Nil, actor.TypeSystem, capsuleID.String(), "time_capsule", cryptoutil.SHA256([]byte(capsuleID.String()))); err != nil {
		return fmt.Errorf("appending audit receipt: %w", err)
	}
	return nil
}

// Sweep processes every capsule whose TTL has lapsed and shreds its key,
// run at least as often as ttl_min/2 (spec §5 "Timeouts"). Capsules
// already SHREDDED or EXPIRED are skipped.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	expired, err := e.store.ListExpiredActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing expired capsules: %w", err)
	}

	swept := 0
	for _, c := range expired {
		if err := e.keys.Shred(c.KeyID); err != nil && err != ErrAlreadyShredded {
			return swept, err
		}
		if err := e.store.UpdateStatus(ctx, c.ID, StatusExpired); err != nil {
			return swept, err
		}
		swept++
	}
	return swept, nil
}
