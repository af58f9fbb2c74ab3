package policyreview

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateApprovesCleanRequest(t *testing.T) {
	decision, reasons, hints, safeguards := Evaluate("survey", map[string]string{}, map[string]string{"geo.country": "US"})

	assert.Equal(t, DecisionApproved, decision)
	assert.Empty(t, reasons)
	assert.Empty(t, hints)
	assert.Contains(t, safeguards, "K_ANONYMITY_50")
	assert.Contains(t, safeguards, "TTL_72H")
}

func TestEvaluateRejectsNonODXCriteria(t *testing.T) {
	decision, reasons, _, _ := Evaluate("survey", nil, map[string]string{"favorite_color": "blue"})

	assert.Equal(t, DecisionRejected, decision)
	assert.Contains(t, reasons, "NON_ODX_CRITERIA:favorite_color")
}

func TestEvaluateManualReviewOnCriteriaTooSpecific(t *testing.T) {
	criteria := map[string]string{
		"geo.country": "US", "geo.state": "CA", "geo.city": "SF",
		"time.hour": "1", "quality.a": "1", "quality.b": "1",
	}
	decision, reasons, _, _ := Evaluate("survey", nil, criteria)

	assert.Equal(t, DecisionManualReview, decision)
	assert.Contains(t, reasons, "CRITERIA_TOO_SPECIFIC")
}

func TestEvaluateHighRiskPatternDownscopes(t *testing.T) {
	scope := map[string]string{"health": "aggregate", "location": "coarse"}

	decision, reasons, hints, safeguards := Evaluate("study", scope, map[string]string{"geo.country": "US"})

	assert.Equal(t, DecisionManualReview, decision)
	assert.Contains(t, reasons, "HEALTH_LOCATION_COMBINATION")
	assert.NotEmpty(t, hints)
	assert.Contains(t, safeguards, "CLEAN_ROOM_ONLY")
	assert.Contains(t, safeguards, "COARSE_GEO")
}

func TestEvaluateMinorsIndicatorOverridesRejection(t *testing.T) {
	// NON_ODX_CRITERIA would normally reject; minors indicator must still
	// force MANUAL_REVIEW instead (spec §4.2: "regardless of any other
	// decision").
	decision, reasons, _, _ := Evaluate("survey of student behavior", nil, map[string]string{"favorite_color": "blue"})

	assert.Equal(t, DecisionManualReview, decision)
	assert.Contains(t, reasons, "MINORS_INDICATOR_PRESENT")
}

func TestDefaultSafeguardsByFamily(t *testing.T) {
	safeguards := DefaultSafeguards(map[string]string{"finance": "x", "communication": "y"}, nil)

	assert.Contains(t, safeguards, "AGGREGATE_ONLY")
	assert.Contains(t, safeguards, "PRIVACY_FLOOR_HIGH")
	assert.Contains(t, safeguards, "COARSE_TIME")
	assert.Contains(t, safeguards, "K_ANONYMITY_50")
	assert.Contains(t, safeguards, "TTL_72H")
}

func TestPolicyStamperSignAndVerify(t *testing.T) {
	stamper := NewPolicyStamperInsecure()
	requestID := uuid.New()

	stamp := stamper.Sign(requestID, DecisionApproved, []string{"TTL_72H", "K_ANONYMITY_50"}, []string{"SCOPE_SENSITIVE"}, "v1")

	assert.True(t, stamper.Verify(stamp))

	tampered := stamp
	tampered.Decision = DecisionRejected
	assert.False(t, stamper.Verify(tampered))
}

func TestPolicyStamperVerifyFailsAcrossKeys(t *testing.T) {
	a := NewPolicyStamperInsecure()
	b := NewPolicyStamperInsecure()
	requestID := uuid.New()

	stamp := a.Sign(requestID, DecisionApproved, nil, nil, "v1")
	assert.False(t, b.Verify(stamp))
}

func TestNewPolicyStamperRejectsEmptyKey(t *testing.T) {
	_, err := NewPolicyStamper(nil)
	require.Error(t, err)
}

func TestNewPolicyStamperAcceptsConfiguredKey(t *testing.T) {
	stamper, err := NewPolicyStamper([]byte("a-configured-secret-key"))
	require.NoError(t, err)

	requestID := uuid.New()
	stamp := stamper.Sign(requestID, DecisionApproved, nil, nil, "v1")
	assert.True(t, stamper.Verify(stamp))
}
