package privacy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/datasovereign/platform-core/internal/apperr"
	"github.com/datasovereign/platform-core/pkg/queryplan"
)

// maxCASRetries bounds the optimistic-concurrency retry loop for PRB
// consumption (spec §5 "on conflict retry (bounded)").
const maxCASRetries = 5

// PRBGate enforces spec §4.4's third privacy gate: atomic compare-and-
// swap consumption of a campaign's Privacy Risk Budget.
type PRBGate struct {
	store *Store
}

// NewPRBGate constructs a PRBGate.
func NewPRBGate(store *Store) *PRBGate {
	return &PRBGate{store: store}
}

// Consume attempts to spend cost against campaignID's budget. On success
// the budget's consumed/remaining are updated atomically; if remaining is
// insufficient it returns DENY("PRB_EXHAUSTED") without mutating state.
func (g *PRBGate) Consume(ctx context.Context, campaignID uuid.UUID, cost float64) (queryplan.GateDecision, error) {
	if cost < 0 {
		return queryplan.GateDecision{}, apperr.New(apperr.KindValidationFailure, "PRB_001", "risk cost must be non-negative")
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		budget, err := g.store.GetByCampaign(ctx, campaignID)
		if err != nil {
			return queryplan.GateDecision{}, err
		}
		if budget.Remaining() < cost {
			return queryplan.GateDecision{Allow: false, Reasons: []string{"PRB_EXHAUSTED"}}, nil
		}

		err = g.store.ConsumeCAS(ctx, budget.ID, budget.Version, cost)
		if err == nil {
			return queryplan.GateDecision{Allow: true}, nil
		}
		if errors.Is(err, apperr.InvalidState) {
			continue
		}
		return queryplan.GateDecision{}, err
	}
	return queryplan.GateDecision{}, fmt.Errorf("PRB consumption exceeded %d CAS retries for campaign %s", maxCASRetries, campaignID)
}

// Allocate creates a new ACTIVE budget for a campaign.
func (g *PRBGate) Allocate(ctx context.Context, campaignID uuid.UUID, allocated float64) (PrivacyRiskBudget, error) {
	budget := PrivacyRiskBudget{
		ID:         uuid.New(),
		CampaignID: campaignID,
		Allocated:  allocated,
		Status:     PRBStatusActive,
	}
	if err := g.store.Create(ctx, budget); err != nil {
		return PrivacyRiskBudget{}, fmt.Errorf("allocating PRB: %w", err)
	}
	return budget, nil
}

// Lock transitions a budget to LOCKED, after which its allocated amount
// is immutable (spec §4.4).
func (g *PRBGate) Lock(ctx context.Context, campaignID uuid.UUID) error {
	return g.store.Lock(ctx, campaignID)
}
