package policyreview

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/datasovereign/platform-core/internal/apperr"
	"github.com/datasovereign/platform-core/internal/cryptoutil"
)

// PolicyStamper signs and verifies policy stamps with the coordinator
// policy key (spec §4.2).
type PolicyStamper struct {
	key []byte
}

// NewPolicyStamper constructs a PolicyStamper from a configured key. It
// refuses an empty key rather than silently generating one, so a missing
// configuration fails loudly instead of signing with a key nobody can
// verify against after a restart (SPEC_FULL.md Open Question 2).
func NewPolicyStamper(key []byte) (*PolicyStamper, error) {
	if len(key) == 0 {
		return nil, apperr.New(apperr.KindInvalidState, "POLICY_001", "coordinator policy key is not configured")
	}
	return &PolicyStamper{key: key}, nil
}

// NewPolicyStamperInsecure generates a random per-process key. The name is
// deliberately loud: stamps it signs cannot be verified by any other
// process or after a restart, so this is for tests and local development
// only, never production.
func NewPolicyStamperInsecure() *PolicyStamper {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic("policyreview: failed to generate insecure stamper key: " + err.Error())
	}
	return &PolicyStamper{key: key}
}

func canonicalStampPayload(requestID uuid.UUID, decision Decision, safeguards, reasonCodes []string, policyVersion string, timestamp time.Time) []byte {
	parts := []string{
		requestID.String(),
		string(decision),
		cryptoutil.SortedJoin(safeguards, ","),
		strings.Join(reasonCodes, ","),
		policyVersion,
		timestamp.UTC().Format(time.RFC3339Nano),
	}
	return []byte(strings.Join(parts, "|"))
}

// Sign produces a SignedPolicyStamp for the given review outcome (spec
// §4.2): HMAC-SHA-256 over the canonical payload, then a SHA-256 stamp
// hash over payload‖signature.
func (s *PolicyStamper) Sign(requestID uuid.UUID, decision Decision, safeguards, reasonCodes []string, policyVersion string) SignedPolicyStamp {
	timestamp := time.Now().UTC()
	payload := canonicalStampPayload(requestID, decision, safeguards, reasonCodes, policyVersion, timestamp)
	signature := cryptoutil.HMACSHA256Hex(s.key, payload)
	stampHash := cryptoutil.SHA256Hex(append(append([]byte{}, payload...), []byte(signature)...))

	return SignedPolicyStamp{
		RequestID:     requestID,
		Decision:      decision,
		Safeguards:    safeguards,
		ReasonCodes:   reasonCodes,
		PolicyVersion: policyVersion,
		Timestamp:     timestamp,
		Signature:     signature,
		StampHash:     stampHash,
	}
}

// Verify recomputes the canonical payload from stamp and checks the
// signature in constant time, then confirms the stamp hash matches.
func (s *PolicyStamper) Verify(stamp SignedPolicyStamp) bool {
	payload := canonicalStampPayload(stamp.RequestID, stamp.Decision, stamp.Safeguards, stamp.ReasonCodes, stamp.PolicyVersion, stamp.Timestamp)
	if !cryptoutil.VerifyHMACSHA256Hex(s.key, payload, stamp.Signature) {
		return false
	}
	wantHash := cryptoutil.SHA256Hex(append(append([]byte{}, payload...), []byte(stamp.Signature)...))
	return wantHash == stamp.StampHash
}
