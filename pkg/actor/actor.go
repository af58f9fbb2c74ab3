// Package actor defines the small set of identity types shared across
// subsystems: who initiated a state transition, for audit attribution and
// authorization checks (spec §3 AuditReceipt.actorType, §4.3 revocation
// authorization).
package actor

// Type identifies the category of actor behind a state transition.
type Type string

const (
	TypeDS        Type = "DS"
	TypeRequester Type = "REQUESTER"
	TypeSystem    Type = "SYSTEM"
	TypeGuardian  Type = "GUARDIAN"
)

// Valid reports whether t is one of the known actor types.
func (t Type) Valid() bool {
	switch t {
	case TypeDS, TypeRequester, TypeSystem, TypeGuardian:
		return true
	default:
		return false
	}
}
