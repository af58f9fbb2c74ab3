package consent

import "github.com/datasovereign/platform-core/internal/apperr"

// ErrInvalidConsentRequest is returned when a contract-creation request is
// missing a required temporal, amount, or hash field (spec §4.3).
func ErrInvalidConsentRequest(reason string) error {
	return apperr.New(apperr.KindValidationFailure, "CONSENT_001", "invalid consent request", reason)
}

// Validate checks req against the required-field invariants of spec §4.3.
func (req CreateConsentRequest) Validate() error {
	var reasons []string
	if req.ScopeHash == "" {
		reasons = append(reasons, "scopeHash is required")
	}
	if req.PurposeHash == "" {
		reasons = append(reasons, "purposeHash is required")
	}
	if req.DurationStart.IsZero() || req.DurationEnd.IsZero() {
		reasons = append(reasons, "durationStart and durationEnd are required")
	}
	if !req.DurationEnd.After(req.DurationStart) {
		reasons = append(reasons, "durationEnd must be after durationStart")
	}
	if req.CompensationAmount <= 0 {
		reasons = append(reasons, "compensationAmount must be positive")
	}
	if len(reasons) > 0 {
		return apperr.New(apperr.KindValidationFailure, "CONSENT_001", "invalid consent request", reasons...)
	}
	return nil
}

// Validate checks spec against the required-field invariants of spec
// §4.3: positive retention, and a non-empty policy code and document for
// each of the three mandatory obligation types.
func (spec ObligationSpec) Validate() error {
	var reasons []string
	if spec.RetentionDays <= 0 {
		reasons = append(reasons, "retentionDays must be positive")
	}
	if spec.RetentionPolicyCode == "" {
		reasons = append(reasons, "retentionPolicyCode is required")
	}
	if spec.UsageRestrictions == "" {
		reasons = append(reasons, "usageRestrictions is required")
	}
	if spec.DeletionRequirements == "" {
		reasons = append(reasons, "deletionRequirements is required")
	}
	if len(reasons) > 0 {
		return apperr.New(apperr.KindValidationFailure, "CONSENT_004", "invalid obligation specification", reasons...)
	}
	return nil
}
