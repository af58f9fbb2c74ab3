// Package screening implements request screening (spec §4.1): evaluating a
// request against a rule base, estimating cohort size, and producing a
// signed-by-audit screening decision.
package screening

import (
	"time"

	"github.com/google/uuid"
)

// RuleType classifies how a rule's violation affects the decision.
type RuleType string

const (
	RuleBlocking RuleType = "BLOCKING"
	RuleWarning  RuleType = "WARNING"
	RuleInfo     RuleType = "INFO"
)

// PolicyRule is data, not code (spec §4.1): its severity, type and active
// flag are configuration; the matching logic that decides whether it fires
// lives in the evaluator registry (rules.go) keyed by RuleCode.
type PolicyRule struct {
	RuleCode string
	RuleType RuleType
	Category string
	Severity int // 1..10
	IsActive bool
}

// Decision is the outcome of screening or coordinator review.
type Decision string

const (
	DecisionApproved     Decision = "APPROVED"
	DecisionRejected     Decision = "REJECTED"
	DecisionManualReview Decision = "MANUAL_REVIEW"
)

// ScreenedBy records whether a screening decision was produced by the
// automated engine or overridden by a human reviewer.
type ScreenedBy string

const (
	ScreenedAutomated ScreenedBy = "AUTOMATED"
	ScreenedManual     ScreenedBy = "MANUAL"
)

// AppealStatus tracks a REJECTED decision's single allowed appeal.
type AppealStatus string

const (
	AppealNone     AppealStatus = "NONE"
	AppealPending  AppealStatus = "PENDING"
	AppealApproved AppealStatus = "APPROVED"
	AppealRejected AppealStatus = "REJECTED"
)

// ScreeningResult is 1:1 with a Request (spec §3).
type ScreeningResult struct {
	ID                 uuid.UUID
	RequestID          uuid.UUID
	Decision           Decision
	ReasonCodes        []string
	RiskScore          float64
	CohortSizeEstimate int
	PolicyVersion      string
	ScreenedBy         ScreenedBy
	AppealStatus       AppealStatus
	CreatedAt          time.Time
}

// Valid enforces the decision/reason invariant of spec §3: decision is
// REJECTED if and only if at least one blocking reason is present.
func (r ScreeningResult) Valid(anyBlocking bool) bool {
	return (r.Decision == DecisionRejected) == anyBlocking
}
