package screening

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/datasovereign/platform-core/pkg/request"
)

func baseRequest() request.Request {
	now := time.Now()
	return request.Request{
		Purpose:             "survey",
		Scope:               map[string]string{"health": "aggregate"},
		EligibilityCriteria: map[string]string{"geo.country": "US"},
		DurationStart:       now,
		DurationEnd:         now.Add(30 * 24 * time.Hour),
		UnitType:            request.UnitSurvey,
		UnitPrice:           10,
		MaxParticipants:     10,
		Budget:              100,
	}
}

func TestHeuristicEstimator(t *testing.T) {
	est := HeuristicEstimator{}

	size, source := est.Estimate(nil)
	assert.Equal(t, LargeCohortEstimate, size)
	assert.Equal(t, "heuristic", source)

	size, _ = est.Estimate(map[string]string{"geo.country": "US"})
	assert.Equal(t, 512, size) // 2^(10-1)

	size, _ = est.Estimate(map[string]string{
		"geo.country": "US", "geo.state": "CA", "time.hour": "1",
		"quality.a": "1", "quality.b": "1", "quality.c": "1",
		"quality.d": "1", "quality.e": "1", "quality.f": "1", "quality.g": "1",
		"quality.h": "1", "quality.i": "1",
	})
	assert.Equal(t, 1, size) // floored at 1 once exponent goes negative
}

func TestDecideStraightThroughApproval(t *testing.T) {
	req := baseRequest()
	decision, reasons, risk := Decide(req, 256, BuiltinRules, 0)

	assert.Equal(t, DecisionApproved, decision)
	assert.Contains(t, reasons, "SCOPE_SENSITIVE")
	assert.InDelta(t, 0.4, risk, 0.001) // SCOPE_SENSITIVE severity 4 -> 0.4
}

func TestDecideRejectsOnSmallCohort(t *testing.T) {
	req := baseRequest()
	decision, reasons, _ := Decide(req, 10, BuiltinRules, 0)

	assert.Equal(t, DecisionRejected, decision)
	assert.Contains(t, reasons, "COHORT_MIN_SIZE")
}

func TestDecideRejectsOnBudgetMismatch(t *testing.T) {
	req := baseRequest()
	req.Budget = 50 // unitPrice*maxParticipants = 100
	req.Scope = map[string]string{}

	decision, reasons, _ := Decide(req, 1000, BuiltinRules, 0)

	assert.Equal(t, DecisionRejected, decision)
	assert.Contains(t, reasons, "BUDGET_ESCROW_MATCH")
}

func TestDecideRejectsOnReidentificationRisk(t *testing.T) {
	req := baseRequest()
	req.Scope = map[string]string{"birthdate": "x", "zipcode": "y", "gender": "z"}

	decision, reasons, _ := Decide(req, 1000, BuiltinRules, 0)

	assert.Equal(t, DecisionRejected, decision)
	assert.Contains(t, reasons, "REIDENTIFICATION_RISK")
}

func TestDecideManualReviewAboveThreshold(t *testing.T) {
	req := baseRequest()
	// DURATION_REASONABLE (0.3) + SCOPE_SENSITIVE (0.4) = 0.7 >= default 0.5
	req.DurationEnd = req.DurationStart.Add(400 * 24 * time.Hour)

	decision, reasons, risk := Decide(req, 1000, BuiltinRules, 0)

	assert.Equal(t, DecisionManualReview, decision)
	assert.Contains(t, reasons, "DURATION_REASONABLE")
	assert.InDelta(t, 0.7, risk, 0.001)
}

func TestDecideInactiveRuleNeverFires(t *testing.T) {
	req := baseRequest()
	rules := append([]PolicyRule{}, BuiltinRules...)
	for i := range rules {
		if rules[i].RuleCode == "SCOPE_SENSITIVE" {
			rules[i].IsActive = false
		}
	}

	decision, reasons, _ := Decide(req, 256, rules, 0)

	assert.Equal(t, DecisionApproved, decision)
	assert.NotContains(t, reasons, "SCOPE_SENSITIVE")
}
