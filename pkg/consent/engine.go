package consent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/datasovereign/platform-core/internal/apperr"
	"github.com/datasovereign/platform-core/internal/cryptoutil"
	"github.com/datasovereign/platform-core/pkg/actor"
)

// AuditAppender is the narrow audit-ledger slice the engine needs.
type AuditAppender interface {
	AppendReceipt(ctx context.Context, eventType string, actorID uuid.UUID, actorType actor.Type, resourceID, resourceType string, detailsHash [32]byte) error
}

// PlanExpirer is the narrow slice of pkg/queryplan the engine needs to
// cascade a revocation: all dependent query plans are marked EXPIRED
// (spec §4.3 "once revoked ... all dependent query plans are marked
// EXPIRED").
type PlanExpirer interface {
	ExpireByContractID(ctx context.Context, contractID uuid.UUID) error
}

// Engine implements the consent-contract lifecycle and the obligation
// engine (spec §4.3).
type Engine struct {
	store   *Store
	audit   AuditAppender
	plans   PlanExpirer
}

// NewEngine constructs a consent Engine.
func NewEngine(store *Store, audit AuditAppender, plans PlanExpirer) *Engine {
	return &Engine{store: store, audit: audit, plans: plans}
}

// CreateConsent materialises a contract from an approved request (spec
// §4.3). Rejects InvalidConsentRequest on missing required fields, or
// DuplicateConsent if a non-revoked contract already exists for the same
// (dsId, requestId) pair.
func (e *Engine) CreateConsent(ctx context.Context, req CreateConsentRequest) (ConsentContract, error) {
	if err := req.Validate(); err != nil {
		return ConsentContract{}, err
	}

	if existing, err := e.store.GetActiveByDSAndRequest(ctx, req.DSID, req.RequestID); err == nil && existing.ID != uuid.Nil {
		return ConsentContract{}, apperr.New(apperr.KindDuplicate, "CONSENT_002", "an active consent contract already exists for this DS and request")
	}

	contract := ConsentContract{
		ID:                     uuid.New(),
		DSID:                   req.DSID,
		RequesterID:            req.RequesterID,
		RequestID:              req.RequestID,
		ScopeHash:              req.ScopeHash,
		PurposeHash:            req.PurposeHash,
		DurationStart:          req.DurationStart,
		DurationEnd:            req.DurationEnd,
		CompensationAmount:     req.CompensationAmount,
		Status:                 StatusActive,
		PermittedFields:        req.PermittedFields,
		SensitiveFieldConsents: req.SensitiveFieldConsents,
		OutputRestrictions:     req.OutputRestrictions,
		AllowedTransforms:      req.AllowedTransforms,
		DeliveryMode:           req.DeliveryMode,
	}
	if contract.DeliveryMode == "" {
		contract.DeliveryMode = DeliveryEncrypted
	}

	if err := e.store.Create(ctx, contract); err != nil {
		return ConsentContract{}, fmt.Errorf("persisting consent contract: %w", err)
	}

	detailsHash := cryptoutil.SHA256([]byte(contract.ScopeHash + "|" + contract.PurposeHash))
	if err := e.audit.AppendReceipt(ctx, "CONSENT_GRANTED", req.DSID, actor.TypeDS, contract.ID.String(), "consent_contract", detailsHash); err != nil {
		return ConsentContract{}, fmt.Errorf("appending audit receipt: %w", err)
	}

	return contract, nil
}

// RevokeConsent terminates a contract. Only the owning DS may revoke it;
// once REVOKED the status is terminal (spec §3, §4.3).
func (e *Engine) RevokeConsent(ctx context.Context, contractID, dsID uuid.UUID) (ConsentContract, error) {
	contract, err := e.store.Get(ctx, contractID)
	if err != nil {
		return ConsentContract{}, apperr.Wrap(apperr.KindNotFound, "CONSENT_003", "consent contract not found", err)
	}
	if contract.DSID != dsID {
		return ConsentContract{}, apperr.New(apperr.KindUnauthorized, "CONSENT_006", "only the owning data sovereign may revoke this contract")
	}
	if contract.Status != StatusActive {
		return ConsentContract{}, apperr.New(apperr.KindInvalidState, "CONSENT_007", "only an active contract may be revoked")
	}

	contract.Status = StatusRevoked
	if err := e.store.UpdateStatus(ctx, contractID, StatusRevoked, contract.Version); err != nil {
		return ConsentContract{}, fmt.Errorf("revoking consent contract: %w", err)
	}

	if e.plans != nil {
		if err := e.plans.ExpireByContractID(ctx, contractID); err != nil {
			return ConsentContract{}, fmt.Errorf("expiring dependent query plans: %w", err)
		}
	}

	detailsHash := cryptoutil.SHA256([]byte(contractID.String()))
	if err := e.audit.AppendReceipt(ctx, "CONSENT_REVOKED", dsID, actor.TypeDS, contractID.String(), "consent_contract", detailsHash); err != nil {
		return ConsentContract{}, fmt.Errorf("appending audit receipt: %w", err)
	}

	return contract, nil
}

// EvaluateAccess returns true iff the contract is ACTIVE, now falls within
// [durationStart, durationEnd), and requestedFieldsHash matches the
// contract's scope hash or a subset hash derived from permittedFields
// (spec §4.3). durationEnd == now is outside the active window per the
// Testable Properties boundary rule.
func (e *Engine) EvaluateAccess(ctx context.Context, contractID uuid.UUID, requestedFieldsHash string) (bool, error) {
	contract, err := e.store.Get(ctx, contractID)
	if err != nil {
		return false, apperr.Wrap(apperr.KindNotFound, "CONSENT_003", "consent contract not found", err)
	}
	if contract.Status != StatusActive {
		return false, nil
	}
	now := time.Now()
	if now.Before(contract.DurationStart) || !now.Before(contract.DurationEnd) {
		return false, nil
	}
	if requestedFieldsHash == contract.ScopeHash {
		return true, nil
	}
	subsetHash, err := PermittedFieldsHash(contract.PermittedFields)
	if err != nil {
		return false, err
	}
	return requestedFieldsHash == subsetHash, nil
}

// PermittedFieldsHash computes the canonical subset hash evaluateAccess
// compares a requested-fields hash against when it does not match the
// full scope hash.
func PermittedFieldsHash(fields []string) (string, error) {
	canon, err := cryptoutil.Canonical(fields)
	if err != nil {
		return "", fmt.Errorf("canonicalizing permitted fields: %w", err)
	}
	return cryptoutil.SHA256Hex(canon), nil
}

// FilterToPermittedFields returns a new record containing exactly the keys
// named in permittedFields (Testable Property 6): no more, no less, values
// preserved.
func FilterToPermittedFields(record map[string]any, permittedFields []string) map[string]any {
	out := make(map[string]any, len(permittedFields))
	for _, f := range permittedFields {
		if v, ok := record[f]; ok {
			out[f] = v
		}
	}
	return out
}

// CreateObligations creates one obligation per required type (spec §4.3)
// and computes the obligationHash persisted on the contract.
func (e *Engine) CreateObligations(ctx context.Context, contractID uuid.UUID, spec ObligationSpec) ([]uuid.UUID, string, error) {
	if err := spec.Validate(); err != nil {
		return nil, "", err
	}

	contract, err := e.store.Get(ctx, contractID)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.KindNotFound, "CONSENT_003", "consent contract not found", err)
	}
	if contract.Status != StatusActive {
		return nil, "", apperr.New(apperr.KindInvalidState, "CONSENT_008", "obligations may only be attached to an active contract")
	}

	canon, err := cryptoutil.Canonical(spec)
	if err != nil {
		return nil, "", fmt.Errorf("canonicalizing obligation spec: %w", err)
	}
	obligationHash := cryptoutil.SHA256Hex(canon)

	obligations := []ConsentObligation{
		{
			ID: uuid.New(), ContractID: contractID, Type: ObligationRetentionLimit,
			Specification: fmt.Sprintf("retentionDays=%d;policy=%s", spec.RetentionDays, spec.RetentionPolicyCode),
			EnforcementLevel: spec.RetentionEnforcement, Status: ObligationStatusActive,
		},
		{
			ID: uuid.New(), ContractID: contractID, Type: ObligationUsageRestriction,
			Specification: spec.UsageRestrictions, EnforcementLevel: spec.UsageEnforcement, Status: ObligationStatusActive,
		},
		{
			ID: uuid.New(), ContractID: contractID, Type: ObligationDeletionRequirement,
			Specification: spec.DeletionRequirements, EnforcementLevel: spec.DeletionEnforcement, Status: ObligationStatusActive,
		},
	}

	ids := make([]uuid.UUID, 0, len(obligations))
	for _, o := range obligations {
		if err := e.store.CreateObligation(ctx, o); err != nil {
			return nil, "", fmt.Errorf("persisting obligation %s: %w", o.Type, err)
		}
		ids = append(ids, o.ID)
	}

	if err := e.store.SetObligationHash(ctx, contractID, obligationHash); err != nil {
		return nil, "", fmt.Errorf("persisting obligation hash: %w", err)
	}

	if err := e.audit.AppendReceipt(ctx, "OBLIGATIONS_CREATED", contract.RequesterID, actor.TypeRequester, contractID.String(), "consent_contract", cryptoutil.SHA256(canon)); err != nil {
		return nil, "", fmt.Errorf("appending audit receipt: %w", err)
	}

	return ids, obligationHash, nil
}

// DetectViolations maps a violation context's flags to the violation types
// of spec §4.3, recording evidence and severity for each, then advances the
// triggering obligation's status to VIOLATED.
func (e *Engine) DetectViolations(ctx context.Context, contractID uuid.UUID, vctx ViolationContext) ([]ObligationViolation, error) {
	obligations, err := e.store.ListObligations(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("loading obligations: %w", err)
	}
	byType := make(map[ObligationType]ConsentObligation, len(obligations))
	for _, o := range obligations {
		byType[o.Type] = o
	}

	canon, err := cryptoutil.Canonical(vctx)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing violation context: %w", err)
	}
	evidenceHash := cryptoutil.SHA256Hex(canon)

	var detected []ObligationViolation
	add := func(vt ViolationType, obligationType ObligationType) {
		obligation, ok := byType[obligationType]
		if !ok {
			return
		}
		v := ObligationViolation{
			ID:            uuid.New(),
			ContractID:    contractID,
			ObligationID:  obligation.ID,
			ViolationType: vt,
			Severity:      severityForEnforcement(obligation.EnforcementLevel),
			EvidenceHash:  evidenceHash,
		}
		detected = append(detected, v)
	}

	if vctx.MaxRetainedDays > 0 && vctx.ActualRetainedDays > vctx.MaxRetainedDays {
		add(ViolationRetentionExceeded, ObligationRetentionLimit)
	}
	if vctx.UnauthorizedUse {
		add(ViolationUnauthorizedUsage, ObligationUsageRestriction)
	}
	if vctx.DeletionFailed {
		add(ViolationDeletionFailure, ObligationDeletionRequirement)
	}
	if vctx.SharedWithThirdParty {
		add(ViolationUnauthorizedSharing, ObligationSharingProhibition)
	}
	if vctx.UnauthorizedField != "" {
		add(ViolationPurposeViolation, ObligationPurposeLimitation)
	}

	for _, v := range detected {
		if err := e.store.CreateViolation(ctx, v); err != nil {
			return nil, fmt.Errorf("persisting violation: %w", err)
		}
		if err := e.store.MarkObligationViolated(ctx, v.ObligationID); err != nil {
			return nil, fmt.Errorf("marking obligation violated: %w", err)
		}
		if err := e.audit.AppendReceipt(ctx, "OBLIGATION_VIOLATION_DETECTED", uuid.Nil, actor.TypeSystem, v.ID.String(), "obligation_violation", cryptoutil.SHA256(canon)); err != nil {
			return nil, fmt.Errorf("appending audit receipt: %w", err)
		}
	}

	return detected, nil
}

// severityForEnforcement derives a violation's severity from the
// enforcing obligation's enforcement level (spec §4.3).
func severityForEnforcement(level EnforcementLevel) ViolationSeverity {
	switch level {
	case EnforcementStrict:
		return SeverityCritical
	case EnforcementMonitored:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// EnforcePenalty applies a monetary penalty for a violation, idempotent
// per violationId: a second attempt fails with PenaltyAlreadyApplied
// (spec §4.3).
func (e *Engine) EnforcePenalty(ctx context.Context, violationID uuid.UUID, amount float64) (ObligationViolation, error) {
	violation, err := e.store.GetViolation(ctx, violationID)
	if err != nil {
		return ObligationViolation{}, apperr.Wrap(apperr.KindNotFound, "CONSENT_009", "obligation violation not found", err)
	}
	if violation.PenaltyApplied {
		return ObligationViolation{}, apperr.New(apperr.KindDuplicate, "CONSENT_010", "penalty already applied to this violation")
	}

	violation.PenaltyApplied = true
	violation.PenaltyAmount = amount
	if err := e.store.ApplyPenalty(ctx, violationID, amount); err != nil {
		return ObligationViolation{}, fmt.Errorf("applying penalty: %w", err)
	}

	if err := e.audit.AppendReceipt(ctx, "PENALTY_APPLIED", uuid.Nil, actor.TypeSystem, violationID.String(), "obligation_violation", cryptoutil.SHA256([]byte(fmt.Sprintf("%s:%f", violationID, amount)))); err != nil {
		return ObligationViolation{}, fmt.Errorf("appending audit receipt: %w", err)
	}

	return violation, nil
}

// ValidateContractObligations reports whether a contract carries at least
// one of each of the three mandatory obligation types (spec §3).
func (e *Engine) ValidateContractObligations(ctx context.Context, contractID uuid.UUID) (bool, error) {
	obligations, err := e.store.ListObligations(ctx, contractID)
	if err != nil {
		return false, err
	}
	required := map[ObligationType]bool{
		ObligationRetentionLimit:     false,
		ObligationUsageRestriction:   false,
		ObligationDeletionRequirement: false,
	}
	for _, o := range obligations {
		if _, ok := required[o.Type]; ok {
			required[o.Type] = true
		}
	}
	for _, present := range required {
		if !present {
			return false, nil
		}
	}
	return true, nil
}
