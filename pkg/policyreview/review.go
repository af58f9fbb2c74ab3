package policyreview

import (
	"github.com/datasovereign/platform-core/pkg/odx"
)

// CriteriaTooSpecificThreshold is the criteria count above which
// CRITERIA_TOO_SPECIFIC is raised (spec §4.2).
const CriteriaTooSpecificThreshold = 5

// Evaluate runs the coordinator policy review's rule logic against a
// request's purpose, scope and eligibility criteria, pure of any storage
// or signing concern so it can be unit tested directly (spec §4.2).
func Evaluate(purpose string, scope, criteria map[string]string) (decision Decision, reasonCodes, remediationHints, safeguards []string) {
	var odxBlocking bool
	for _, v := range odx.Violations(criteria) {
		reasonCodes = append(reasonCodes, v)
		odxBlocking = true
	}

	manualReview := false
	if len(criteria) > CriteriaTooSpecificThreshold {
		reasonCodes = append(reasonCodes, "CRITERIA_TOO_SPECIFIC")
		manualReview = true
	}

	var blockingPattern bool
	for _, p := range DetectHighRiskPatterns(scope, criteria) {
		reasonCodes = append(reasonCodes, p.Code)
		remediationHints = append(remediationHints, p.RemediationHint)
		safeguards = append(safeguards, p.RequiredSafeguards...)
		switch p.Action {
		case ActionBlock:
			blockingPattern = true
		case ActionDownscope:
			manualReview = true
		}
	}

	safeguards = append(safeguards, DefaultSafeguards(scope, criteria)...)
	safeguards = dedupe(safeguards)

	switch {
	case odxBlocking || blockingPattern:
		decision = DecisionRejected
	case manualReview:
		decision = DecisionManualReview
	default:
		decision = DecisionApproved
	}

	// Minors indicators force MANUAL_REVIEW regardless of any other
	// decision (spec §4.2), including an otherwise-blocking rejection.
	if odx.ContainsMinorsIndicator([]string{purpose}, scope, criteria) {
		reasonCodes = append(reasonCodes, "MINORS_INDICATOR_PRESENT")
		decision = DecisionManualReview
	}

	return decision, reasonCodes, remediationHints, safeguards
}
