package privacy

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/datasovereign/platform-core/internal/cryptoutil"
	"github.com/datasovereign/platform-core/pkg/actor"
	"github.com/datasovereign/platform-core/pkg/queryplan"
)

// AuditAppender is the narrow audit-ledger slice the governor needs.
type AuditAppender interface {
	AppendReceipt(ctx context.Context, eventType string, actorID uuid.UUID, actorType actor.Type, resourceID, resourceType string, detailsHash [32]byte) error
}

// DefaultTransformCosts assigns a risk cost to each built-in transform;
// an unknown transform defaults to 1.0.
var DefaultTransformCosts = map[string]float64{
	"COUNT":     0.1,
	"AGGREGATE": 0.5,
	"RAW_EXPORT": 5,
}

// TransformCost returns the configured risk cost for a transform.
func TransformCost(transform string) float64 {
	if cost, ok := DefaultTransformCosts[transform]; ok {
		return cost
	}
	return 1.0
}

// Governor runs a query plan through the three privacy gates in order
// (spec §4.4): k-anonymity, linkage rate limit, Privacy Risk Budget. A
// failure at any stage halts evaluation and returns DENY with reason
// codes; every gate's decision is recorded as a PolicyDecisionReceipt and
// appended to the audit ledger.
type Governor struct {
	kAnonymity    *KAnonymityGate
	linkage       *LinkageGate
	prb           *PRBGate
	audit         AuditAppender
	policyVersion string
}

// NewGovernor constructs a Governor.
func NewGovernor(kAnonymity *KAnonymityGate, linkage *LinkageGate, prb *PRBGate, audit AuditAppender, policyVersion string) *Governor {
	return &Governor{kAnonymity: kAnonymity, linkage: linkage, prb: prb, audit: audit, policyVersion: policyVersion}
}

// Evaluate runs plan and its criteria through all three gates in order,
// returning the first DENY encountered or ALLOW if all three pass.
func (g *Governor) Evaluate(ctx context.Context, plan queryplan.QueryPlan, campaignID uuid.UUID, criteria map[string]string) (queryplan.GateDecision, error) {
	kDecision, err := g.kAnonymity.Check(ctx, criteria)
	if err != nil {
		return queryplan.GateDecision{}, fmt.Errorf("k-anonymity gate: %w", err)
	}
	if err := g.emitReceipt(ctx, DecisionKAnonymity, kDecision, plan.RequesterID, plan.ID); err != nil {
		return queryplan.GateDecision{}, err
	}
	if !kDecision.Allow {
		return kDecision, nil
	}

	linkageDecision, err := g.linkage.Check(ctx, plan.RequesterID, criteria)
	if err != nil {
		return queryplan.GateDecision{}, fmt.Errorf("linkage gate: %w", err)
	}
	if err := g.emitReceipt(ctx, DecisionLinkage, linkageDecision, plan.RequesterID, plan.ID); err != nil {
		return queryplan.GateDecision{}, err
	}
	if !linkageDecision.Allow {
		return linkageDecision, nil
	}

	cost := 0.0
	for _, transform := range plan.AllowedTransforms {
		cost += TransformCost(transform)
	}
	prbDecision, err := g.prb.Consume(ctx, campaignID, cost)
	if err != nil {
		return queryplan.GateDecision{}, fmt.Errorf("PRB gate: %w", err)
	}
	if err := g.emitReceipt(ctx, DecisionPRB, prbDecision, plan.RequesterID, plan.ID); err != nil {
		return queryplan.GateDecision{}, err
	}

	return prbDecision, nil
}

func (g *Governor) emitReceipt(ctx context.Context, decisionType DecisionType, decision queryplan.GateDecision, requesterID, planID uuid.UUID) error {
	receipt := PolicyDecisionReceipt{
		ID:            uuid.New(),
		Type:          decisionType,
		Allow:         decision.Allow,
		Reasons:       decision.Reasons,
		PolicyVersion: g.policyVersion,
	}
	canon, err := cryptoutil.Canonical(receipt)
	if err != nil {
		return fmt.Errorf("canonicalizing policy decision receipt: %w", err)
	}
	receipt.DetailsHash = cryptoutil.SHA256Hex(canon)

	eventType := fmt.Sprintf("PRIVACY_GATE_%s", decisionType)
	return g.audit.AppendReceipt(ctx, eventType, requesterID, actor.TypeRequester, planID.String(), "query_plan", cryptoutil.SHA256(canon))
}
