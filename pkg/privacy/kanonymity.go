package privacy

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/datasovereign/platform-core/internal/cryptoutil"
	"github.com/datasovereign/platform-core/pkg/queryplan"
	"github.com/datasovereign/platform-core/pkg/screening"
)

// KAnonymityGate enforces spec §4.4's first privacy gate: the estimated
// cohort size for a plan's eligibility criteria must be at least kMin
// (default 50); the plan's scope is not part of the estimate. Estimates are cached in Redis by SHA-256(canonical(criteria)) with
// a TTL, reusing pkg/screening's CohortEstimator rather than a second
// heuristic.
type KAnonymityGate struct {
	rdb       *redis.Client
	estimator screening.CohortEstimator
	kMin      int
	cacheTTL  time.Duration
}

// NewKAnonymityGate constructs a KAnonymityGate.
func NewKAnonymityGate(rdb *redis.Client, estimator screening.CohortEstimator, kMin int, cacheTTL time.Duration) *KAnonymityGate {
	return &KAnonymityGate{rdb: rdb, estimator: estimator, kMin: kMin, cacheTTL: cacheTTL}
}

func cohortCacheKey(criteriaHash string) string {
	return "cohort:estimate:" + criteriaHash
}

// Check returns DENY("K_ANONYMITY_FLOOR") if the cohort estimate for
// criteria is below kMin.
func (g *KAnonymityGate) Check(ctx context.Context, criteria map[string]string) (queryplan.GateDecision, error) {
	canon, err := cryptoutil.Canonical(criteria)
	if err != nil {
		return queryplan.GateDecision{}, fmt.Errorf("canonicalizing criteria: %w", err)
	}
	criteriaHash := cryptoutil.SHA256Hex(canon)

	size, err := g.cachedOrEstimate(ctx, criteriaHash, criteria)
	if err != nil {
		return queryplan.GateDecision{}, err
	}

	if size < g.kMin {
		return queryplan.GateDecision{Allow: false, Reasons: []string{"K_ANONYMITY_FLOOR"}}, nil
	}
	return queryplan.GateDecision{Allow: true}, nil
}

func (g *KAnonymityGate) cachedOrEstimate(ctx context.Context, criteriaHash string, criteria map[string]string) (int, error) {
	key := cohortCacheKey(criteriaHash)
	if cached, err := g.rdb.Get(ctx, key).Result(); err == nil {
		if size, convErr := strconv.Atoi(cached); convErr == nil {
			return size, nil
		}
	}

	size, _ := g.estimator.Estimate(criteria)
	if err := g.rdb.Set(ctx, key, strconv.Itoa(size), g.cacheTTL).Err(); err != nil {
		return size, fmt.Errorf("caching cohort estimate: %w", err)
	}
	return size, nil
}
