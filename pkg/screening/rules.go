package screening

import (
	"sort"
	"time"

	"github.com/datasovereign/platform-core/pkg/odx"
	"github.com/datasovereign/platform-core/pkg/request"
)

// EvalContext is everything a rule evaluator needs to decide whether its
// rule fires, without needing to know about storage.
type EvalContext struct {
	Request            request.Request
	CohortSizeEstimate int
}

// RuleEvaluator decides whether the named rule's condition is met for ctx.
type RuleEvaluator func(ctx EvalContext) bool

// BuiltinRules are the default rule base (spec §4.1). Severity/active/type
// are the data half; the evaluators below are the matching-logic half —
// together they satisfy "rules are data, not code" by keeping the fields an
// operator can tune (severity, isActive) separate from what can't safely be
// data-driven (the predicate itself).
var BuiltinRules = []PolicyRule{
	{RuleCode: "COHORT_MIN_SIZE", RuleType: RuleBlocking, Category: "privacy", Severity: 10, IsActive: true},
	{RuleCode: "BUDGET_ESCROW_MATCH", RuleType: RuleBlocking, Category: "financial", Severity: 10, IsActive: true},
	{RuleCode: "DURATION_REASONABLE", RuleType: RuleWarning, Category: "operational", Severity: 3, IsActive: true},
	{RuleCode: "REIDENTIFICATION_RISK", RuleType: RuleBlocking, Category: "privacy", Severity: 10, IsActive: true},
	{RuleCode: "SCOPE_SENSITIVE", RuleType: RuleWarning, Category: "privacy", Severity: 4, IsActive: true},
}

// DefaultMinCohortSize is the default floor for COHORT_MIN_SIZE (spec §4.1).
const DefaultMinCohortSize = 50

// Evaluators maps rule code to its matching-logic predicate.
var Evaluators = map[string]RuleEvaluator{
	"COHORT_MIN_SIZE": func(ctx EvalContext) bool {
		return ctx.CohortSizeEstimate < DefaultMinCohortSize
	},
	"BUDGET_ESCROW_MATCH": func(ctx EvalContext) bool {
		return !ctx.Request.BudgetCoversCompensation()
	},
	"DURATION_REASONABLE": func(ctx EvalContext) bool {
		return ctx.Request.DurationEnd.Sub(ctx.Request.DurationStart) > 365*24*time.Hour
	},
	"REIDENTIFICATION_RISK": func(ctx EvalContext) bool {
		scope := ctx.Request.Scope
		return odx.HasDirectIdentifier(scope) || odx.CountQuasiIdentifiers(scope) >= 3
	},
	"SCOPE_SENSITIVE": func(ctx EvalContext) bool {
		return len(odx.SensitiveFamilies(ctx.Request.Scope)) > 0
	},
}

// Decide runs the active, severity-descending rule base against req and
// returns the resulting decision, fired reason codes, and capped risk
// score (spec §4.1). It is a pure function of its inputs so it can be
// tested without any storage dependency.
func Decide(req request.Request, cohortSize int, rules []PolicyRule, threshold float64) (Decision, []string, float64) {
	if threshold <= 0 {
		threshold = ManualReviewThreshold
	}

	evalCtx := EvalContext{Request: req, CohortSizeEstimate: cohortSize}

	ordered := append([]PolicyRule{}, rules...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Severity > ordered[j].Severity })

	var reasons []string
	var blocking bool
	var risk float64

	for _, rule := range ordered {
		if !rule.IsActive {
			continue
		}
		eval, ok := Evaluators[rule.RuleCode]
		if !ok || !eval(evalCtx) {
			continue
		}
		reasons = append(reasons, rule.RuleCode)
		risk += float64(rule.Severity) / 10.0
		if rule.RuleType == RuleBlocking {
			blocking = true
		}
	}
	if risk > 1.0 {
		risk = 1.0
	}

	decision := DecisionApproved
	switch {
	case blocking:
		decision = DecisionRejected
	case risk >= threshold:
		decision = DecisionManualReview
	}

	return decision, reasons, risk
}
