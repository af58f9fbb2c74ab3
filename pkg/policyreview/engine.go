package policyreview

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/datasovereign/platform-core/internal/apperr"
	"github.com/datasovereign/platform-core/internal/cryptoutil"
	"github.com/datasovereign/platform-core/pkg/actor"
	"github.com/datasovereign/platform-core/pkg/request"
)

// AuditAppender is the narrow audit-ledger slice the reviewer needs.
type AuditAppender interface {
	AppendReceipt(ctx context.Context, eventType string, actorID uuid.UUID, actorType actor.Type, resourceID, resourceType string, detailsHash [32]byte) error
}

// Engine runs the coordinator policy review and signs the resulting
// policy stamp (spec §4.2).
type Engine struct {
	store         *Store
	requests      *request.Store
	audit         AuditAppender
	stamper       *PolicyStamper
	policyVersion string
}

// NewEngine constructs a policy review Engine.
func NewEngine(store *Store, requests *request.Store, auditLedger AuditAppender, stamper *PolicyStamper, policyVersion string) *Engine {
	return &Engine{
		store:         store,
		requests:      requests,
		audit:         auditLedger,
		stamper:       stamper,
		policyVersion: policyVersion,
	}
}

func resultDetailsHash(r PolicyReviewResult) [32]byte {
	canon, _ := cryptoutil.Canonical(struct {
		RequestID   string   `json:"request_id"`
		Decision    Decision `json:"decision"`
		ReasonCodes []string `json:"reason_codes"`
		Safeguards  []string `json:"required_safeguards"`
	}{r.RequestID.String(), r.Decision, r.ReasonCodes, r.RequiredSafeguards})
	return cryptoutil.SHA256(canon)
}

// Review evaluates req, persists the result and a signed policy stamp,
// and appends an audit receipt (spec §4.2).
func (e *Engine) Review(ctx context.Context, req request.Request) (PolicyReviewResult, SignedPolicyStamp, error) {
	if existing, err := e.store.GetByRequestID(ctx, req.ID); err == nil && existing.RequestID != uuid.Nil {
		return PolicyReviewResult{}, SignedPolicyStamp{}, apperr.New(apperr.KindDuplicate, "POLICY_002", "request has already been reviewed")
	}

	decision, reasonCodes, hints, safeguards := Evaluate(req.Purpose, req.Scope, req.EligibilityCriteria)

	result := PolicyReviewResult{
		RequestID:          req.ID,
		Decision:           decision,
		ReasonCodes:        reasonCodes,
		RemediationHints:   hints,
		RequiredSafeguards: safeguards,
		Success:            decision != DecisionRejected,
	}

	stamp := e.stamper.Sign(req.ID, decision, safeguards, reasonCodes, e.policyVersion)

	if err := e.store.Create(ctx, result, stamp); err != nil {
		return PolicyReviewResult{}, SignedPolicyStamp{}, fmt.Errorf("persisting policy review: %w", err)
	}

	eventType := "POLICY_REVIEW_APPROVED"
	if decision == DecisionRejected {
		eventType = "POLICY_REVIEW_REJECTED"
	} else if decision == DecisionManualReview {
		eventType = "POLICY_REVIEW_MANUAL_REVIEW"
	}
	if err := e.audit.AppendReceipt(ctx, eventType, req.RequesterID, actor.TypeSystem, req.ID.String(), "request", resultDetailsHash(result)); err != nil {
		return PolicyReviewResult{}, SignedPolicyStamp{}, fmt.Errorf("appending audit receipt: %w", err)
	}

	return result, stamp, nil
}
