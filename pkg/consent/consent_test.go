package consent

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateConsentRequestValidate(t *testing.T) {
	valid := CreateConsentRequest{
		ScopeHash:          "scope-hash",
		PurposeHash:        "purpose-hash",
		DurationStart:      time.Now(),
		DurationEnd:        time.Now().Add(24 * time.Hour),
		CompensationAmount: 10,
	}
	require.NoError(t, valid.Validate())

	invalid := valid
	invalid.CompensationAmount = 0
	err := invalid.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONSENT_001")

	backwards := valid
	backwards.DurationEnd = backwards.DurationStart.Add(-time.Hour)
	require.Error(t, backwards.Validate())
}

func TestObligationSpecValidate(t *testing.T) {
	valid := ObligationSpec{
		RetentionDays:        30,
		RetentionPolicyCode:  "RP-1",
		RetentionEnforcement: EnforcementStrict,
		UsageRestrictions:    "aggregate only",
		UsageEnforcement:     EnforcementMonitored,
		DeletionRequirements: "on revoke",
		DeletionEnforcement:  EnforcementAdvisory,
	}
	require.NoError(t, valid.Validate())

	invalid := valid
	invalid.RetentionDays = 0
	require.Error(t, invalid.Validate())
}

func TestPermittedFieldsHashIsDeterministicAndOrderSensitive(t *testing.T) {
	a, err := PermittedFieldsHash([]string{"age", "geo.country"})
	require.NoError(t, err)
	b, err := PermittedFieldsHash([]string{"age", "geo.country"})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := PermittedFieldsHash([]string{"geo.country", "age"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "field order is semantically meaningful for a permitted-fields list, not sorted by Canonical")
}

func TestFilterToPermittedFieldsKeepsOnlyListedKeys(t *testing.T) {
	record := map[string]any{"age": 31, "geo.country": "US", "favorite_color": "blue"}

	filtered := FilterToPermittedFields(record, []string{"age", "geo.country"})

	assert.Equal(t, map[string]any{"age": 31, "geo.country": "US"}, filtered)
}

func TestFilterToPermittedFieldsIgnoresMissingKeys(t *testing.T) {
	record := map[string]any{"age": 31}

	filtered := FilterToPermittedFields(record, []string{"age", "geo.country"})

	assert.Equal(t, map[string]any{"age": 31}, filtered)
}

func TestSeverityForEnforcement(t *testing.T) {
	assert.Equal(t, SeverityCritical, severityForEnforcement(EnforcementStrict))
	assert.Equal(t, SeverityHigh, severityForEnforcement(EnforcementMonitored))
	assert.Equal(t, SeverityMedium, severityForEnforcement(EnforcementAdvisory))
}

func TestObligationViolationDefaultsPenaltyUnapplied(t *testing.T) {
	v := ObligationViolation{ID: uuid.New(), ViolationType: ViolationRetentionExceeded}
	assert.False(t, v.PenaltyApplied)
	assert.Zero(t, v.PenaltyAmount)
}
