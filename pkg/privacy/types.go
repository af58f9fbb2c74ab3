// Package privacy implements the Privacy Governor (spec §4.4): the
// three-gate check every query plan passes through before dispatch —
// k-anonymity, linkage rate limiting, and Privacy Risk Budget
// consumption — plus the policy-decision receipts each gate emits.
package privacy

import (
	"github.com/google/uuid"
)

// PRBStatus is a Privacy Risk Budget's lifecycle state (spec §4.4 "Once a
// PRB is LOCKED its allocated is immutable").
type PRBStatus string

const (
	PRBStatusActive PRBStatus = "ACTIVE"
	PRBStatusLocked PRBStatus = "LOCKED"
)

// PrivacyRiskBudget tracks the risk a campaign is permitted to spend
// across its queries (spec §3).
type PrivacyRiskBudget struct {
	ID         uuid.UUID
	CampaignID uuid.UUID
	Allocated  float64
	Consumed   float64
	Status     PRBStatus
	Version    int
}

// Remaining is allocated minus consumed (spec §4.4).
func (b PrivacyRiskBudget) Remaining() float64 {
	return b.Allocated - b.Consumed
}

// DecisionType names which of the three gates a PolicyDecisionReceipt
// records.
type DecisionType string

const (
	DecisionKAnonymity DecisionType = "K_ANONYMITY"
	DecisionLinkage    DecisionType = "LINKAGE"
	DecisionPRB        DecisionType = "PRB"
)

// PolicyDecisionReceipt is emitted by every gate evaluation (spec §4.4
// "Every decision emits a PolicyDecisionReceipt").
type PolicyDecisionReceipt struct {
	ID            uuid.UUID
	Type          DecisionType
	Allow         bool
	Reasons       []string
	PolicyVersion string
	DetailsHash   string
}

// LinkageWindowEntry is one prior query recorded for a requester within
// the rolling linkage window.
type LinkageWindowEntry struct {
	QueryHash string
	Criteria  map[string]string
}
