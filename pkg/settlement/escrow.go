package settlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/datasovereign/platform-core/internal/apperr"
	"github.com/datasovereign/platform-core/internal/cryptoutil"
	"github.com/datasovereign/platform-core/internal/telemetry"
	"github.com/datasovereign/platform-core/pkg/actor"
)

// AuditAppender is the narrow audit-ledger slice the engine needs.
type AuditAppender interface {
	AppendReceipt(ctx context.Context, eventType string, actorID uuid.UUID, actorType actor.Type, resourceID, resourceType string, detailsHash [32]byte) error
}

// Engine implements escrow fund/lock/release/refund, settlement posting,
// and YC credit issuance/redemption/clawback (spec §4.6).
type Engine struct {
	store            *Store
	audit            AuditAppender
	transfersEnabled bool
}

// NewEngine constructs a settlement Engine. transfersEnabled mirrors
// config.Config.YCTransfersEnabled (spec §4.6 Property 10, default false).
func NewEngine(store *Store, audit AuditAppender, transfersEnabled bool) *Engine {
	return &Engine{store: store, audit: audit, transfersEnabled: transfersEnabled}
}

func accountRef(prefix string, id uuid.UUID) string {
	return fmt.Sprintf("%s:%s", prefix, id)
}

// FundEscrow moves an escrow PENDING -> FUNDED and posts the funding
// journal entry (spec §4.6). The entry's idempotencyKey is FUND:<escrowID>,
// so re-posting it returns the prior entry instead of a duplicate; a fund
// call on an escrow that is already FUNDED fails with ESCROW_004.
func (e *Engine) FundEscrow(ctx context.Context, escrowID uuid.UUID, amount decimal.Decimal) (EscrowAccount, error) {
	if amount.Sign() <= 0 {
		return EscrowAccount{}, apperr.New(apperr.KindValidationFailure, "ESCROW_003", "fund amount must be positive")
	}
	escrow, err := e.store.GetEscrow(ctx, escrowID)
	if err != nil {
		return EscrowAccount{}, err
	}
	if !escrow.Status.CanTransitionTo(EscrowFunded) {
		return EscrowAccount{}, apperr.New(apperr.KindInvalidState, "ESCROW_004", "escrow is not in a fundable state")
	}

	if _, err := e.store.PostEntry(ctx, JournalEntry{
		DebitAccount:   accountRef("REQUESTER", escrow.RequesterID),
		CreditAccount:  accountRef("ESCROW", escrowID),
		Amount:         amount,
		Currency:       escrow.Currency,
		Reference:      "escrow funding",
		IdempotencyKey: fundIdempotencyKey(escrowID),
	}); err != nil {
		return EscrowAccount{}, fmt.Errorf("posting funding entry: %w", err)
	}

	escrow.FundedAmount = escrow.FundedAmount.Add(amount)
	escrow.Status = EscrowFunded
	updated, err := e.store.UpdateEscrow(ctx, escrow)
	if err != nil {
		return EscrowAccount{}, fmt.Errorf("updating escrow: %w", err)
	}

	telemetry.EscrowTransitionsTotal.WithLabelValues(string(EscrowFunded)).Inc()
	if err := e.appendReceipt(ctx, "ESCROW_FUNDED", escrow.RequesterID, actor.TypeRequester, escrowID); err != nil {
		return EscrowAccount{}, err
	}
	return updated, nil
}

// LockEscrow moves FUNDED -> LOCKED, reserving amount against the
// available remainder (spec §4.6).
func (e *Engine) LockEscrow(ctx context.Context, escrowID uuid.UUID, amount decimal.Decimal) (EscrowAccount, error) {
	if amount.Sign() <= 0 {
		return EscrowAccount{}, apperr.New(apperr.KindValidationFailure, "ESCROW_003", "lock amount must be positive")
	}
	escrow, err := e.store.GetEscrow(ctx, escrowID)
	if err != nil {
		return EscrowAccount{}, err
	}
	if escrow.Status != EscrowFunded && escrow.Status != EscrowLocked {
		return EscrowAccount{}, apperr.New(apperr.KindInvalidState, "ESCROW_004", "escrow is not in a lockable state")
	}
	if escrow.Available().LessThan(amount) {
		return EscrowAccount{}, apperr.New(apperr.KindInsufficientResource, "ESCROW_005", "insufficient available escrow balance to lock")
	}

	escrow.LockedAmount = escrow.LockedAmount.Add(amount)
	escrow.Status = EscrowLocked
	updated, err := e.store.UpdateEscrow(ctx, escrow)
	if err != nil {
		return EscrowAccount{}, fmt.Errorf("updating escrow: %w", err)
	}

	telemetry.EscrowTransitionsTotal.WithLabelValues(string(EscrowLocked)).Inc()
	if err := e.appendReceipt(ctx, "ESCROW_LOCKED", escrow.RequesterID, actor.TypeRequester, escrowID); err != nil {
		return EscrowAccount{}, err
	}
	return updated, nil
}

// RefundEscrow moves a FUNDED or LOCKED escrow to REFUNDED, releasing any
// locked amount back to the requester (spec §4.6).
func (e *Engine) RefundEscrow(ctx context.Context, escrowID uuid.UUID, amount decimal.Decimal) (EscrowAccount, error) {
	if amount.Sign() <= 0 {
		return EscrowAccount{}, apperr.New(apperr.KindValidationFailure, "ESCROW_003", "refund amount must be positive")
	}
	escrow, err := e.store.GetEscrow(ctx, escrowID)
	if err != nil {
		return EscrowAccount{}, err
	}
	if !escrow.Status.CanTransitionTo(EscrowRefunded) {
		return EscrowAccount{}, apperr.New(apperr.KindInvalidState, "ESCROW_004", "escrow is not in a refundable state")
	}

	if _, err := e.store.PostEntry(ctx, JournalEntry{
		DebitAccount:   accountRef("ESCROW", escrowID),
		CreditAccount:  accountRef("REQUESTER", escrow.RequesterID),
		Amount:         amount,
		Currency:       escrow.Currency,
		Reference:      "escrow refund",
		IdempotencyKey: refundIdempotencyKey(escrowID),
	}); err != nil {
		return EscrowAccount{}, fmt.Errorf("posting refund entry: %w", err)
	}

	if escrow.LockedAmount.GreaterThan(decimal.Zero) {
		escrow.LockedAmount = decimal.Zero
	}
	escrow.RefundedAmount = escrow.RefundedAmount.Add(amount)
	escrow.Status = EscrowRefunded
	updated, err := e.store.UpdateEscrow(ctx, escrow)
	if err != nil {
		return EscrowAccount{}, fmt.Errorf("updating escrow: %w", err)
	}

	telemetry.EscrowTransitionsTotal.WithLabelValues(string(EscrowRefunded)).Inc()
	if err := e.appendReceipt(ctx, "ESCROW_REFUNDED", escrow.RequesterID, actor.TypeRequester, escrowID); err != nil {
		return EscrowAccount{}, err
	}
	return updated, nil
}

func (e *Engine) appendReceipt(ctx context.Context, eventType string, actorID uuid.UUID, actorType actor.Type, resourceID uuid.UUID) error {
	detailsHash := cryptoutil.SHA256([]byte(eventType + ":" + resourceID.String()))
	if err := e.audit.AppendReceipt(ctx, eventType, actorID, actorType, resourceID.String(), "escrow_account", detailsHash); err != nil {
		return fmt.Errorf("appending audit receipt: %w", err)
	}
	return nil
}
