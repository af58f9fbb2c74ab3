// Package request implements the Request aggregate (spec §3): a
// requester's bid for compensated, privacy-preserving access to a cohort
// of Data Sovereigns, plus its lifecycle state machine.
package request

import (
	"time"

	"github.com/google/uuid"
)

// UnitType is the compensation unit a request pays per participant.
type UnitType string

const (
	UnitSurvey      UnitType = "SURVEY"
	UnitDataAccess  UnitType = "DATA_ACCESS"
	UnitParticipant UnitType = "PARTICIPATION"
)

// Status is the Request lifecycle state (spec §3).
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusScreening Status = "SCREENING"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
)

// Request is the opaque-ID, versioned entity of spec §3.
type Request struct {
	ID                 uuid.UUID
	RequesterID        uuid.UUID
	Purpose            string
	Scope              map[string]string // label -> constraint
	EligibilityCriteria map[string]string // ODX label -> value
	DurationStart      time.Time
	DurationEnd        time.Time
	UnitType           UnitType
	UnitPrice          float64
	MaxParticipants    int
	Budget             float64
	EscrowID           *uuid.UUID
	Status             Status
	CreatedAt          time.Time
	Version            int
}

// BudgetCoversCompensation reports whether Budget covers UnitPrice *
// MaxParticipants (spec §3 Request invariant, and the BUDGET_ESCROW_MATCH
// screening rule).
func (r *Request) BudgetCoversCompensation() bool {
	return r.Budget >= r.UnitPrice*float64(r.MaxParticipants)
}

// CanTransitionTo reports whether the request's current status may move to
// next directly, enforcing the state machine of spec §3/§4.1.
func (r *Request) CanTransitionTo(next Status) bool {
	switch r.Status {
	case StatusDraft:
		return next == StatusScreening
	case StatusScreening:
		return next == StatusActive || next == StatusRejected
	case StatusActive:
		return next == StatusCompleted || next == StatusCancelled
	case StatusRejected:
		// A successful appeal flips a rejection to ACTIVE.
		return next == StatusActive
	default:
		return false
	}
}
