package queryplan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/datasovereign/platform-core/internal/apperr"
	"github.com/datasovereign/platform-core/internal/cryptoutil"
	"github.com/datasovereign/platform-core/pkg/actor"
)

// ContractProvider resolves the consent contract a plan is created
// against; satisfied by an adapter over pkg/consent.Store in the app
// wiring.
type ContractProvider interface {
	GetContractInfo(ctx context.Context, contractID uuid.UUID) (ContractInfo, error)
}

// AuditAppender is the narrow audit-ledger slice the engine needs.
type AuditAppender interface {
	AppendReceipt(ctx context.Context, eventType string, actorID uuid.UUID, actorType actor.Type, resourceID, resourceType string, detailsHash [32]byte) error
}

// Engine implements plan creation, signing and dispatch (spec §4.4 first
// half).
type Engine struct {
	store      *Store
	contracts  ContractProvider
	audit      AuditAppender
	signingKey *cryptoutil.Ed25519KeyPair
	keyRing    *cryptoutil.KeyRing
}

// NewEngine constructs an Engine. signingKey is the platform's current
// plan-signing key; it must already be registered in keyRing under the
// same KeyID so Verify can find it.
func NewEngine(store *Store, contracts ContractProvider, audit AuditAppender, signingKey *cryptoutil.Ed25519KeyPair, keyRing *cryptoutil.KeyRing) *Engine {
	return &Engine{store: store, contracts: contracts, audit: audit, signingKey: signingKey, keyRing: keyRing}
}

// CreatePlan materialises and signs a QueryPlan from an active contract
// (spec §4.4). Preconditions: the contract is ACTIVE and not expired, and
// every requested transform is in the contract's allowedTransforms.
func (e *Engine) CreatePlan(ctx context.Context, req CreatePlanRequest) (QueryPlan, error) {
	contract, err := e.contracts.GetContractInfo(ctx, req.ContractID)
	if err != nil {
		return QueryPlan{}, apperr.Wrap(apperr.KindNotFound, "PLAN_001", "consent contract not found", err)
	}
	if contract.Status != "ACTIVE" {
		return QueryPlan{}, apperr.New(apperr.KindInvalidState, "PLAN_002", "contract is not active")
	}
	if !contract.DurationEnd.After(time.Now()) {
		return QueryPlan{}, apperr.New(apperr.KindInvalidState, "PLAN_003", "contract has expired")
	}

	allowed := make(map[string]bool, len(contract.AllowedTransforms))
	for _, t := range contract.AllowedTransforms {
		allowed[t] = true
	}
	for _, t := range req.Transforms {
		if !allowed[t] {
			return QueryPlan{}, apperr.New(apperr.KindPolicyDenied, "PLAN_004", "requested transform not permitted by contract", t)
		}
	}

	scopeCanon, err := cryptoutil.Canonical(req.Scope)
	if err != nil {
		return QueryPlan{}, fmt.Errorf("canonicalizing scope: %w", err)
	}

	ttl := req.TTLMinutes
	if ttl <= 0 {
		ttl = 60
	}
	signingKeyID := req.SigningKeyID
	if signingKeyID == "" {
		signingKeyID = e.signingKey.KeyID
	}

	plan := QueryPlan{
		ID:                 uuid.New(),
		RequestID:          contract.RequestID,
		ContractID:         req.ContractID,
		RequesterID:        req.RequesterID,
		ScopeHash:          cryptoutil.SHA256Hex(scopeCanon),
		AllowedTransforms:  req.Transforms,
		OutputRestrictions: contract.OutputRestrictions,
		PermittedFields:    contract.PermittedFields,
		Compensation:       contract.Compensation,
		TTLMinutes:         ttl,
		ExpiresAt:          time.Now().Add(time.Duration(ttl) * time.Minute),
		Status:             StatusCreated,
	}
	plan = Sign(plan, e.signingKey)

	if err := e.store.Create(ctx, plan); err != nil {
		return QueryPlan{}, fmt.Errorf("persisting query plan: %w", err)
	}

	detailsHash := cryptoutil.SHA256([]byte(plan.ScopeHash + "|" + plan.Signature))
	if err := e.audit.AppendReceipt(ctx, "PLAN_CREATED", req.RequesterID, actor.TypeRequester, plan.ID.String(), "query_plan", detailsHash); err != nil {
		return QueryPlan{}, fmt.Errorf("appending audit receipt: %w", err)
	}

	return plan, nil
}

// VerifyPlan re-validates a plan's signature and TTL, the check spec §4.4
// requires of every device before it acts on a plan.
func (e *Engine) VerifyPlan(plan QueryPlan) error {
	if !Verify(plan, e.keyRing) {
		return apperr.New(apperr.KindIntegrityFailure, "PLAN_005", "query plan signature is invalid")
	}
	if !time.Now().Before(plan.ExpiresAt) {
		return apperr.New(apperr.KindInvalidState, "PLAN_006", "query plan has expired")
	}
	return nil
}

// ExpireByContractID marks every non-terminal plan under contractID
// EXPIRED, the cascade consent.Engine.RevokeConsent triggers.
func (e *Engine) ExpireByContractID(ctx context.Context, contractID uuid.UUID) error {
	return e.store.ExpireByContractID(ctx, contractID)
}
