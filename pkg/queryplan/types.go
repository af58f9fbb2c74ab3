// Package queryplan implements query-plan creation and signing and the
// device dispatch round (spec §4.4, first half): a contract is turned
// into a signed, time-bounded plan, the plan is Ed25519-signed under a
// platform key, and dispatch fans the plan out to eligible devices with a
// per-device timeout.
package queryplan

import (
	"time"

	"github.com/google/uuid"
)

// Status is the QueryPlan lifecycle state.
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusDispatched Status = "DISPATCHED"
	StatusExpired    Status = "EXPIRED"
)

// QueryPlan is the signed, time-bounded authorization a device acts on
// (spec §4.4).
type QueryPlan struct {
	ID                 uuid.UUID
	RequestID          uuid.UUID
	ContractID         uuid.UUID
	RequesterID        uuid.UUID
	ScopeHash          string
	AllowedTransforms  []string
	OutputRestrictions []string
	PermittedFields    []string
	Compensation       float64
	TTLMinutes         int
	ExpiresAt          time.Time
	SigningKeyID       string
	Signature          string
	Status             Status
	CreatedAt          time.Time
	Version            int
}

// CreatePlanRequest is the input to Engine.CreatePlan (spec §4.4
// "createQueryPlan(requesterId, contractId, scope, transforms,
// ttlMinutes)").
type CreatePlanRequest struct {
	RequesterID  uuid.UUID
	ContractID   uuid.UUID
	Scope        map[string]string
	Transforms   []string
	TTLMinutes   int
	SigningKeyID string
}

// ContractInfo is the narrow slice of a consent contract the orchestrator
// needs to validate and build a plan, decoupling this package from
// pkg/consent's concrete types.
type ContractInfo struct {
	ID                 uuid.UUID
	RequestID          uuid.UUID
	RequesterID        uuid.UUID
	Status             string
	DurationEnd        time.Time
	ScopeHash          string
	PermittedFields    []string
	OutputRestrictions []string
	AllowedTransforms  []string
	Compensation       float64
}

// DeviceStatus is the per-device outcome of a dispatch round.
type DeviceStatus string

const (
	DeviceDispatched DeviceStatus = "DISPATCHED"
	DeviceResponded  DeviceStatus = "RESPONDED"
	DeviceTimedOut   DeviceStatus = "TIMED_OUT"
)

// DispatchResult is the per-device outcome of Engine.Dispatch.
type DispatchResult struct {
	PlanID  uuid.UUID
	Devices map[uuid.UUID]DeviceStatus
}

// GateDecision is the result of one privacy gate's evaluation of a plan
// (spec §4.4 "a failure at any stage yields DENY with reason codes").
type GateDecision struct {
	Allow   bool
	Reasons []string
}
