// Package policyreview implements the coordinator policy review (spec
// §4.2): ODX vocabulary enforcement, high-risk scope-combination
// detection, minors-indicator override, default safeguard assignment, and
// HMAC-signed policy stamps.
package policyreview

import (
	"time"

	"github.com/google/uuid"
)

// Decision mirrors the screening decision vocabulary for policy review
// outcomes (spec §4.2). Kept as its own type rather than reusing
// pkg/screening.Decision so the two review stages stay independently
// evolvable.
type Decision string

const (
	DecisionApproved     Decision = "APPROVED"
	DecisionRejected     Decision = "REJECTED"
	DecisionManualReview Decision = "MANUAL_REVIEW"
)

// SafeguardAction is the remediation action attached to a detected
// high-risk pattern.
type SafeguardAction string

const (
	ActionNone      SafeguardAction = "NONE"
	ActionDownscope SafeguardAction = "DOWNSCOPE"
	ActionBlock     SafeguardAction = "BLOCK"
)

// PolicyReviewResult is the outcome of reviewing a request (spec §4.2).
type PolicyReviewResult struct {
	RequestID          uuid.UUID
	Decision           Decision
	ReasonCodes        []string
	RemediationHints   []string
	RequiredSafeguards []string
	Success            bool
}

// SignedPolicyStamp is the HMAC-signed attestation of a policy review
// decision (spec §4.2).
type SignedPolicyStamp struct {
	RequestID     uuid.UUID
	Decision      Decision
	Safeguards    []string
	ReasonCodes   []string
	PolicyVersion string
	Timestamp     time.Time
	Signature     string
	StampHash     string
}
