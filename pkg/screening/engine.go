package screening

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/datasovereign/platform-core/internal/apperr"
	"github.com/datasovereign/platform-core/internal/cryptoutil"
	"github.com/datasovereign/platform-core/pkg/actor"
	"github.com/datasovereign/platform-core/pkg/request"
)

// resultDetailsHash computes the audit-receipt details hash for a
// screening result, canonicalized so the same result always hashes the
// same way. Canonical sorts object keys but keeps the reason codes in the
// order given, so the same codes in another order hash differently.
func resultDetailsHash(r ScreeningResult) [32]byte {
	canon, _ := cryptoutil.Canonical(struct {
		RequestID   string   `json:"request_id"`
		Decision    Decision `json:"decision"`
		ReasonCodes []string `json:"reason_codes"`
		RiskScore   float64  `json:"risk_score"`
	}{r.RequestID.String(), r.Decision, r.ReasonCodes, r.RiskScore})
	return cryptoutil.SHA256(canon)
}

// ManualReviewThreshold is the default risk score at/above which an
// otherwise-non-blocking request is routed to MANUAL_REVIEW (spec §4.1).
const ManualReviewThreshold = 0.5

// AuditAppender is the narrow slice of the audit ledger the engine needs,
// kept as an interface here to avoid pkg/screening depending on pkg/audit's
// storage concerns.
type AuditAppender interface {
	AppendReceipt(ctx context.Context, eventType string, actorID uuid.UUID, actorType actor.Type, resourceID, resourceType string, detailsHash [32]byte) error
}

// Engine evaluates requests against the rule base and advances their
// status (spec §4.1).
type Engine struct {
	store         *Store
	requests      *request.Store
	audit         AuditAppender
	estimator     CohortEstimator
	policyVersion string
	threshold     float64
}

// NewEngine constructs a screening Engine. threshold is the manual-review
// risk cutoff (configuredThreshold in spec §4.1); pass 0 to use the
// documented default.
func NewEngine(store *Store, requests *request.Store, auditLedger AuditAppender, estimator CohortEstimator, policyVersion string, threshold float64) *Engine {
	if threshold <= 0 {
		threshold = ManualReviewThreshold
	}
	if estimator == nil {
		estimator = HeuristicEstimator{}
	}
	return &Engine{
		store:         store,
		requests:      requests,
		audit:         auditLedger,
		estimator:     estimator,
		policyVersion: policyVersion,
		threshold:     threshold,
	}
}

// Screen evaluates the rule base against req and persists the decision,
// advancing the request to ACTIVE or REJECTED (spec §4.1).
func (e *Engine) Screen(ctx context.Context, req request.Request) (ScreeningResult, error) {
	if req.Status != request.StatusScreening {
		return ScreeningResult{}, apperr.New(apperr.KindInvalidState, "REQUEST_002", "request is not in SCREENING status")
	}
	if existing, err := e.store.GetByRequestID(ctx, req.ID); err == nil && existing.ID != uuid.Nil {
		return ScreeningResult{}, apperr.New(apperr.KindDuplicate, "REQUEST_003", "request already screened")
	}

	cohortSize, _ := e.estimator.Estimate(req.EligibilityCriteria)
	decision, reasons, risk := Decide(req, cohortSize, BuiltinRules, e.threshold)

	result := ScreeningResult{
		ID:                 uuid.New(),
		RequestID:          req.ID,
		Decision:           decision,
		ReasonCodes:        reasons,
		RiskScore:          risk,
		CohortSizeEstimate: cohortSize,
		PolicyVersion:      e.policyVersion,
		ScreenedBy:         ScreenedAutomated,
		AppealStatus:       AppealNone,
	}

	if err := e.store.Create(ctx, result); err != nil {
		return ScreeningResult{}, fmt.Errorf("persisting screening result: %w", err)
	}

	// MANUAL_REVIEW leaves the request in SCREENING pending a human
	// decision; only a terminal automated decision advances it.
	if decision != DecisionManualReview {
		nextStatus := request.StatusActive
		if decision == DecisionRejected {
			nextStatus = request.StatusRejected
		}
		if _, err := e.requests.UpdateStatus(ctx, req.ID, nextStatus, req.Version); err != nil {
			return ScreeningResult{}, fmt.Errorf("advancing request status: %w", err)
		}
	}

	detailsHash := resultDetailsHash(result)
	eventType := "SCREENING_APPROVED"
	if decision == DecisionRejected {
		eventType = "SCREENING_REJECTED"
	} else if decision == DecisionManualReview {
		eventType = "SCREENING_MANUAL_REVIEW"
	}
	if err := e.audit.AppendReceipt(ctx, eventType, req.RequesterID, actor.TypeSystem, req.ID.String(), "request", detailsHash); err != nil {
		return ScreeningResult{}, fmt.Errorf("appending audit receipt: %w", err)
	}

	return result, nil
}

// Appeal resolves the single allowed appeal of a REJECTED screening
// (spec §4.1). approve=true flips the decision to APPROVED and reactivates
// the request; approve=false confirms the rejection.
func (e *Engine) Appeal(ctx context.Context, requestID uuid.UUID, approve bool) (ScreeningResult, error) {
	result, err := e.store.GetByRequestID(ctx, requestID)
	if err != nil {
		return ScreeningResult{}, apperr.Wrap(apperr.KindNotFound, "REQUEST_004", "screening result not found", err)
	}
	if result.Decision != DecisionRejected {
		return ScreeningResult{}, apperr.New(apperr.KindInvalidState, "REQUEST_005", "only a rejected screening may be appealed")
	}
	if result.AppealStatus != AppealNone {
		return ScreeningResult{}, apperr.New(apperr.KindDuplicate, "REQUEST_006", "screening has already been appealed")
	}

	if approve {
		result.Decision = DecisionApproved
		result.AppealStatus = AppealApproved
	} else {
		result.AppealStatus = AppealRejected
	}
	result.ScreenedBy = ScreenedManual

	if err := e.store.UpdateAppeal(ctx, result); err != nil {
		return ScreeningResult{}, fmt.Errorf("persisting appeal: %w", err)
	}

	if approve {
		req, err := e.requests.Get(ctx, requestID)
		if err != nil {
			return ScreeningResult{}, fmt.Errorf("loading request for appeal activation: %w", err)
		}
		if _, err := e.requests.UpdateStatus(ctx, requestID, request.StatusActive, req.Version); err != nil {
			return ScreeningResult{}, fmt.Errorf("activating request after appeal: %w", err)
		}
	}

	detailsHash := resultDetailsHash(result)
	eventType := "SCREENING_APPEAL_REJECTED"
	if approve {
		eventType = "SCREENING_APPEAL_APPROVED"
	}
	if err := e.audit.AppendReceipt(ctx, eventType, uuid.Nil, actor.TypeGuardian, requestID.String(), "request", detailsHash); err != nil {
		return ScreeningResult{}, fmt.Errorf("appending appeal audit receipt: %w", err)
	}

	return result, nil
}
