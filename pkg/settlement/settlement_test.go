package settlement

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasovereign/platform-core/pkg/actor"
)

func TestEscrowStatusTransitions(t *testing.T) {
	assert.True(t, EscrowPending.CanTransitionTo(EscrowFunded))
	assert.False(t, EscrowPending.CanTransitionTo(EscrowLocked))
	assert.True(t, EscrowFunded.CanTransitionTo(EscrowLocked))
	assert.True(t, EscrowFunded.CanTransitionTo(EscrowRefunded))
	assert.True(t, EscrowLocked.CanTransitionTo(EscrowSettled))
	assert.True(t, EscrowLocked.CanTransitionTo(EscrowRefunded))
	assert.False(t, EscrowSettled.CanTransitionTo(EscrowFunded))
	assert.False(t, EscrowRefunded.CanTransitionTo(EscrowFunded))
}

func TestEscrowAvailableAndInvariant(t *testing.T) {
	e := EscrowAccount{
		FundedAmount:   decimal.NewFromInt(100),
		LockedAmount:   decimal.NewFromInt(40),
		ReleasedAmount: decimal.NewFromInt(20),
		RefundedAmount: decimal.NewFromInt(0),
	}
	assert.True(t, e.Available().Equal(decimal.NewFromInt(40)))
	assert.True(t, e.InvariantHolds())

	overcommitted := e
	overcommitted.ReleasedAmount = decimal.NewFromInt(90)
	assert.False(t, overcommitted.InvariantHolds(), "releasing more than funded must break the non-negativity invariant (Property 3)")
}

func TestDSBalanceInvariant(t *testing.T) {
	b := DSBalance{
		AvailableBalance: decimal.NewFromInt(30),
		PendingBalance:   decimal.NewFromInt(20),
		TotalEarned:      decimal.NewFromInt(50),
		TotalPaidOut:     decimal.NewFromInt(0),
	}
	assert.True(t, b.InvariantHolds())

	b.TotalPaidOut = decimal.NewFromInt(10)
	assert.False(t, b.InvariantHolds(), "a payout must be reflected on both sides of the invariant (Property 2)")

	b.AvailableBalance = decimal.NewFromInt(20)
	assert.True(t, b.InvariantHolds())
}

func TestIdempotencyKeyFormats(t *testing.T) {
	escrowID, contractID, dsID, payoutID, disputeID, transferID := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()

	assert.Equal(t, fmt.Sprintf("FUND:%s", escrowID), fundIdempotencyKey(escrowID))
	assert.Equal(t, fmt.Sprintf("REFUND:%s", escrowID), refundIdempotencyKey(escrowID))
	assert.Equal(t, fmt.Sprintf("SETTLE:%s:%s", contractID, dsID), settleIdempotencyKey(contractID, dsID))
	assert.Equal(t, fmt.Sprintf("ISSUE:%s:%s", contractID, dsID), issueIdempotencyKey(contractID, dsID))
	assert.Equal(t, fmt.Sprintf("REDEEM:%s:%s", payoutID, dsID), redeemIdempotencyKey(payoutID, dsID))
	assert.Equal(t, fmt.Sprintf("CLAWBACK:%s:%s", disputeID, dsID), clawbackIdempotencyKey(disputeID, dsID))
	assert.Equal(t, fmt.Sprintf("TRANSFER_OUT:%s", transferID), transferOutIdempotencyKey(transferID))
	assert.Equal(t, fmt.Sprintf("TRANSFER_IN:%s", transferID), transferInIdempotencyKey(transferID))

	// distinct inputs must not collide on format alone
	assert.NotEqual(t, fundIdempotencyKey(escrowID), refundIdempotencyKey(escrowID))
}

func TestReconciliationResult(t *testing.T) {
	r := ReconciliationResult{
		EscrowID: uuid.New(),
		Issued:   decimal.NewFromInt(100),
		Released: decimal.NewFromInt(100),
	}
	r.Reconciled = r.Issued.Equal(r.Released)
	assert.True(t, r.Reconciled)

	r.Released = decimal.NewFromInt(90)
	r.Reconciled = r.Issued.Equal(r.Released)
	assert.False(t, r.Reconciled, "an escrow that released less than it issued must fail reconciliation")
}

type fakeAuditAppender struct {
	receipts int
}

func (f *fakeAuditAppender) AppendReceipt(ctx context.Context, eventType string, actorID uuid.UUID, actorType actor.Type, resourceID, resourceType string, detailsHash [32]byte) error {
	f.receipts++
	return nil
}

func TestTransferResultWhenDisabled(t *testing.T) {
	audit := &fakeAuditAppender{}
	engine := NewEngine(nil, audit, false)

	result, err := engine.AttemptTransfer(context.Background(), uuid.New(), uuid.New(), uuid.New(), decimal.NewFromInt(10))

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "YC_TRANSFER_DISABLED", result.Code)
	assert.Equal(t, 1, audit.receipts, "a rejected transfer attempt must still produce an audit receipt")
}
