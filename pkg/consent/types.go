// Package consent implements the consent-contract lifecycle and the
// obligation engine (spec §4.3): contract creation and revocation, access
// evaluation, obligation creation, violation detection and idempotent
// penalty application.
package consent

import (
	"time"

	"github.com/google/uuid"
)

// Status is the ConsentContract lifecycle state (spec §3).
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusRevoked Status = "REVOKED"
	StatusExpired Status = "EXPIRED"
)

// DeliveryMode constrains how a contract's data may be delivered.
type DeliveryMode string

const (
	DeliveryCleanRoom DeliveryMode = "CLEAN_ROOM"
	DeliveryDirect    DeliveryMode = "DIRECT"
	DeliveryEncrypted DeliveryMode = "ENCRYPTED"
)

// ConsentContract is the cryptographically bound agreement between a Data
// Sovereign and a Requester for a single Request (spec §3).
type ConsentContract struct {
	ID                    uuid.UUID
	DSID                  uuid.UUID
	RequesterID           uuid.UUID
	RequestID             uuid.UUID
	ScopeHash             string
	PurposeHash           string
	DurationStart         time.Time
	DurationEnd           time.Time
	CompensationAmount    float64
	Status                Status
	PermittedFields       []string
	SensitiveFieldConsents map[string]bool
	OutputRestrictions    []string
	AllowedTransforms     []string
	DeliveryMode          DeliveryMode
	RetentionDays         int
	UsageRestrictions     string
	DeletionRequirements  string
	ObligationHash        string
	CreatedAt             time.Time
	Version               int
}

// ObligationType is the kind of compliance obligation a contract carries
// (spec §3).
type ObligationType string

const (
	ObligationRetentionLimit     ObligationType = "RETENTION_LIMIT"
	ObligationUsageRestriction   ObligationType = "USAGE_RESTRICTION"
	ObligationDeletionRequirement ObligationType = "DELETION_REQUIREMENT"
	ObligationAccessLimit        ObligationType = "ACCESS_LIMIT"
	ObligationSharingProhibition ObligationType = "SHARING_PROHIBITION"
	ObligationPurposeLimitation  ObligationType = "PURPOSE_LIMITATION"
)

// EnforcementLevel is how strictly an obligation is enforced (spec §3).
type EnforcementLevel string

const (
	EnforcementStrict    EnforcementLevel = "STRICT"
	EnforcementMonitored EnforcementLevel = "MONITORED"
	EnforcementAdvisory  EnforcementLevel = "ADVISORY"
)

// ObligationStatus is the lifecycle state of a single obligation.
type ObligationStatus string

const (
	ObligationStatusActive    ObligationStatus = "ACTIVE"
	ObligationStatusSatisfied ObligationStatus = "SATISFIED"
	ObligationStatusViolated  ObligationStatus = "VIOLATED"
	ObligationStatusExpired   ObligationStatus = "EXPIRED"
)

// ConsentObligation is a single compliance obligation carried by a
// contract (spec §3). Every contract carries at least one each of
// RETENTION_LIMIT, USAGE_RESTRICTION and DELETION_REQUIREMENT.
type ConsentObligation struct {
	ID               uuid.UUID
	ContractID       uuid.UUID
	Type             ObligationType
	Specification    string
	EnforcementLevel EnforcementLevel
	Status           ObligationStatus
	CreatedAt        time.Time
}

// ViolationSeverity is how serious a detected obligation violation is
// (spec §3).
type ViolationSeverity string

const (
	SeverityCritical ViolationSeverity = "CRITICAL"
	SeverityHigh     ViolationSeverity = "HIGH"
	SeverityMedium   ViolationSeverity = "MEDIUM"
	SeverityLow      ViolationSeverity = "LOW"
)

// ViolationType names which kind of breach occurred (spec §4.3).
type ViolationType string

const (
	ViolationRetentionExceeded  ViolationType = "RETENTION_EXCEEDED"
	ViolationUnauthorizedUsage  ViolationType = "UNAUTHORIZED_USAGE"
	ViolationDeletionFailure    ViolationType = "DELETION_FAILURE"
	ViolationUnauthorizedSharing ViolationType = "UNAUTHORIZED_SHARING"
	ViolationPurposeViolation   ViolationType = "PURPOSE_VIOLATION"
)

// ObligationViolation records a single detected breach of an obligation
// (spec §3).
type ObligationViolation struct {
	ID             uuid.UUID
	ContractID     uuid.UUID
	ObligationID   uuid.UUID
	ViolationType  ViolationType
	Severity       ViolationSeverity
	EvidenceHash   string
	PenaltyApplied bool
	PenaltyAmount  float64
	CreatedAt      time.Time
}

// ObligationSpec is the input to createObligations (spec §4.3): every
// field is required, and retention must be positive.
type ObligationSpec struct {
	RetentionDays         int
	RetentionPolicyCode   string
	RetentionEnforcement  EnforcementLevel
	UsageRestrictions     string
	UsageEnforcement      EnforcementLevel
	DeletionRequirements  string
	DeletionEnforcement   EnforcementLevel
}

// ViolationContext is the evidence detectViolations evaluates against a
// contract's obligations (spec §4.3).
type ViolationContext struct {
	ResourceID           string
	ActualRetainedDays   int
	MaxRetainedDays      int
	UnauthorizedUse      bool
	UnauthorizedField    string
	DeletionFailed       bool
	SharedWithThirdParty bool
}

// CreateConsentRequest is the input to createConsent (spec §4.3).
type CreateConsentRequest struct {
	DSID                  uuid.UUID
	RequesterID           uuid.UUID
	RequestID             uuid.UUID
	ScopeHash             string
	PurposeHash           string
	DurationStart         time.Time
	DurationEnd           time.Time
	CompensationAmount    float64
	PermittedFields       []string
	SensitiveFieldConsents map[string]bool
	OutputRestrictions    []string
	AllowedTransforms     []string
	DeliveryMode          DeliveryMode
}
