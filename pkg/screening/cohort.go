package screening

import "math"

// CohortEstimator estimates the size of the cohort matching a request's
// scope and eligibility criteria. The heuristic below is explicitly
// documented in spec §4.1/§9 as a stand-in: production deployments should
// substitute an estimator backed by a real ODX-aggregate lookup. Keeping
// this behind an interface (rather than a free function) lets that swap
// happen without touching the screening engine (SPEC_FULL.md Open
// Question 1).
type CohortEstimator interface {
	// Estimate returns a conservative cohort-size estimate and a source
	// tag ("heuristic" or "odx_aggregate") naming how it was produced.
	// The screening engine does not record the tag: it is not stored on
	// the ScreeningResult or hashed into its audit receipt.
	Estimate(criteria map[string]string) (size int, source string)
}

// HeuristicEstimator implements spec §4.1's estimator: with no criteria,
// "large"; each added criterion roughly halves the estimate, floored at 1.
type HeuristicEstimator struct{}

// LargeCohortEstimate is returned when a request carries no eligibility
// criteria at all.
const LargeCohortEstimate = 1 << 20

func (HeuristicEstimator) Estimate(criteria map[string]string) (int, string) {
	if len(criteria) == 0 {
		return LargeCohortEstimate, "heuristic"
	}
	exp := 10 - len(criteria)
	if exp < 0 {
		exp = 0
	}
	size := int(math.Pow(2, float64(exp)))
	if size < 1 {
		size = 1
	}
	return size, "heuristic"
}
