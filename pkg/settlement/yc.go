package settlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/datasovereign/platform-core/internal/apperr"
	"github.com/datasovereign/platform-core/internal/telemetry"
	"github.com/datasovereign/platform-core/pkg/actor"
)

// ProcessSettlement releases locked escrow funds to a DS's pending balance
// and issues the corresponding YC credit (spec §4.6). The journal entry and
// the YC token each carry their own idempotencyKey: SETTLE:<contractID>:<dsID>
// and ISSUE:<contractID>:<dsID>.
func (e *Engine) ProcessSettlement(ctx context.Context, contractID, dsID, escrowID uuid.UUID, amount decimal.Decimal) (SettlementResult, error) {
	if amount.Sign() <= 0 {
		return SettlementResult{}, apperr.New(apperr.KindValidationFailure, "SETTLE_003", "settlement amount must be positive")
	}

	escrow, err := e.store.GetEscrow(ctx, escrowID)
	if err != nil {
		return SettlementResult{}, err
	}
	if escrow.Status != EscrowLocked {
		return SettlementResult{}, apperr.New(apperr.KindInvalidState, "ESCROW_004", "escrow is not locked")
	}
	if escrow.LockedAmount.LessThan(amount) {
		return SettlementResult{}, apperr.New(apperr.KindInsufficientResource, "ESCROW_005", "settlement amount exceeds locked balance")
	}

	entry, err := e.store.PostEntry(ctx, JournalEntry{
		DebitAccount:   accountRef("ESCROW_LOCKED", escrowID),
		CreditAccount:  accountRef("DS_PENDING", dsID),
		Amount:         amount,
		Currency:       escrow.Currency,
		Reference:      "settlement release",
		IdempotencyKey: settleIdempotencyKey(contractID, dsID),
	})
	if err != nil {
		return SettlementResult{}, fmt.Errorf("posting settlement entry: %w", err)
	}

	escrow.LockedAmount = escrow.LockedAmount.Sub(amount)
	escrow.ReleasedAmount = escrow.ReleasedAmount.Add(amount)
	if escrow.LockedAmount.IsZero() {
		escrow.Status = EscrowSettled
	}
	escrow, err = e.store.UpdateEscrow(ctx, escrow)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("updating escrow: %w", err)
	}

	balance, err := e.store.GetOrCreateBalance(ctx, dsID, escrow.Currency)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("loading ds balance: %w", err)
	}
	balance.PendingBalance = balance.PendingBalance.Add(amount)
	balance.TotalEarned = balance.TotalEarned.Add(amount)
	balance, err = e.store.UpdateBalance(ctx, balance)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("updating ds balance: %w", err)
	}

	token, err := e.IssueFromSettlement(ctx, contractID, dsID, escrowID, amount)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("issuing yc credit: %w", err)
	}

	if escrow.Status == EscrowSettled {
		telemetry.EscrowTransitionsTotal.WithLabelValues(string(EscrowSettled)).Inc()
	}
	if err := e.appendReceipt(ctx, "SETTLEMENT_PROCESSED", dsID, actor.TypeDS, escrowID); err != nil {
		return SettlementResult{}, err
	}

	return SettlementResult{
		JournalEntryID: entry.ID,
		YCToken:        token,
		Escrow:         escrow,
		DSBalance:      balance,
	}, nil
}

// CompleteContract moves a DS's pending balance into available balance once
// a contract's dispute window has closed (spec §4.6).
func (e *Engine) CompleteContract(ctx context.Context, dsID uuid.UUID, amount decimal.Decimal) (DSBalance, error) {
	if amount.Sign() <= 0 {
		return DSBalance{}, apperr.New(apperr.KindValidationFailure, "SETTLE_003", "completion amount must be positive")
	}
	balance, err := e.store.GetOrCreateBalance(ctx, dsID, "")
	if err != nil {
		return DSBalance{}, err
	}
	if balance.PendingBalance.LessThan(amount) {
		return DSBalance{}, apperr.New(apperr.KindInsufficientResource, "SETTLE_004", "pending balance is less than completion amount")
	}
	balance.PendingBalance = balance.PendingBalance.Sub(amount)
	balance.AvailableBalance = balance.AvailableBalance.Add(amount)
	return e.store.UpdateBalance(ctx, balance)
}

// IssueFromSettlement mints a YC credit for a settled amount. Idempotent
// per (contractID, dsID): a retried settlement does not double-issue.
func (e *Engine) IssueFromSettlement(ctx context.Context, contractID, dsID, escrowID uuid.UUID, amount decimal.Decimal) (YCToken, error) {
	if amount.Sign() <= 0 {
		return YCToken{}, apperr.New(apperr.KindValidationFailure, "YC_003", "issuance amount must be positive")
	}
	escrow, err := e.store.GetEscrow(ctx, escrowID)
	if err != nil {
		return YCToken{}, err
	}
	if escrow.ReleasedAmount.LessThan(amount) {
		return YCToken{}, apperr.New(apperr.KindIntegrityFailure, "YC_002", "escrow has not released enough funds to back this issuance")
	}

	token, err := e.store.InsertYCToken(ctx, YCToken{
		DSID:           dsID,
		Amount:         amount,
		OperationType:  YCIssuance,
		ReferenceID:    contractID.String(),
		ReferenceType:  "contract",
		EscrowID:       &escrowID,
		IdempotencyKey: issueIdempotencyKey(contractID, dsID),
	})
	if err != nil {
		return YCToken{}, fmt.Errorf("inserting yc token: %w", err)
	}

	telemetry.YCIssuedTotal.Add(amount.InexactFloat64())
	return token, nil
}

// RedeemForPayout debits YC credit as a DS cashes out available balance
// (spec §6 "Payout request"). Idempotent per payoutID.
func (e *Engine) RedeemForPayout(ctx context.Context, payoutID, dsID uuid.UUID, amount decimal.Decimal) (YCToken, error) {
	if amount.Sign() <= 0 {
		return YCToken{}, apperr.New(apperr.KindValidationFailure, "YC_003", "redemption amount must be positive")
	}
	balance, err := e.store.SumByDS(ctx, dsID)
	if err != nil {
		return YCToken{}, err
	}
	if balance.LessThan(amount) {
		return YCToken{}, apperr.New(apperr.KindInsufficientResource, "YC_001", "insufficient yc credit balance")
	}

	token, err := e.store.InsertYCToken(ctx, YCToken{
		DSID:           dsID,
		Amount:         amount.Neg(),
		OperationType:  YCRedemption,
		ReferenceID:    payoutID.String(),
		ReferenceType:  "payout",
		IdempotencyKey: redeemIdempotencyKey(payoutID, dsID),
	})
	if err != nil {
		return YCToken{}, fmt.Errorf("inserting yc token: %w", err)
	}

	if err := e.appendReceipt(ctx, "YC_REDEEMED", dsID, actor.TypeDS, payoutID); err != nil {
		return YCToken{}, err
	}
	return token, nil
}

// Clawback forcibly reverses previously issued YC credit after a dispute
// is upheld (spec §4.6). Unlike RedeemForPayout this does not require the
// DS's current balance to cover the amount: a clawback can drive a
// balance negative when the dispute postdates a payout.
func (e *Engine) Clawback(ctx context.Context, disputeID, dsID uuid.UUID, amount decimal.Decimal) (YCToken, error) {
	if amount.Sign() <= 0 {
		return YCToken{}, apperr.New(apperr.KindValidationFailure, "YC_003", "clawback amount must be positive")
	}
	token, err := e.store.InsertYCToken(ctx, YCToken{
		DSID:           dsID,
		Amount:         amount.Neg(),
		OperationType:  YCClawback,
		ReferenceID:    disputeID.String(),
		ReferenceType:  "dispute",
		IdempotencyKey: clawbackIdempotencyKey(disputeID, dsID),
	})
	if err != nil {
		return YCToken{}, fmt.Errorf("inserting yc token: %w", err)
	}
	if err := e.appendReceipt(ctx, "YC_CLAWED_BACK", dsID, actor.TypeDS, disputeID); err != nil {
		return YCToken{}, err
	}
	return token, nil
}

// AttemptTransfer is the non-transferability gate (spec §4.6 Property 10
// "Non-transferability": a peer-to-peer transfer must fail unless
// governance has explicitly enabled transfers). Every attempt, allowed or
// not, produces an audit receipt.
func (e *Engine) AttemptTransfer(ctx context.Context, transferID, fromDS, toDS uuid.UUID, amount decimal.Decimal) (TransferResult, error) {
	if !e.transfersEnabled {
		telemetry.YCTransferRejectedTotal.Inc()
		if err := e.appendReceipt(ctx, "YC_TRANSFER_REJECTED", fromDS, actor.TypeDS, transferID); err != nil {
			return TransferResult{}, err
		}
		return TransferResult{Success: false, Code: "YC_TRANSFER_DISABLED"}, nil
	}

	balance, err := e.store.SumByDS(ctx, fromDS)
	if err != nil {
		return TransferResult{}, err
	}
	if balance.LessThan(amount) {
		if err := e.appendReceipt(ctx, "YC_TRANSFER_REJECTED", fromDS, actor.TypeDS, transferID); err != nil {
			return TransferResult{}, err
		}
		return TransferResult{Success: false, Code: "YC_001"}, nil
	}

	if _, err := e.store.InsertYCToken(ctx, YCToken{
		DSID:           fromDS,
		Amount:         amount.Neg(),
		OperationType:  YCAdjustment,
		ReferenceID:    transferID.String(),
		ReferenceType:  "transfer_out",
		IdempotencyKey: transferOutIdempotencyKey(transferID),
	}); err != nil {
		return TransferResult{}, fmt.Errorf("debiting sender: %w", err)
	}
	if _, err := e.store.InsertYCToken(ctx, YCToken{
		DSID:           toDS,
		Amount:         amount,
		OperationType:  YCAdjustment,
		ReferenceID:    transferID.String(),
		ReferenceType:  "transfer_in",
		IdempotencyKey: transferInIdempotencyKey(transferID),
	}); err != nil {
		return TransferResult{}, fmt.Errorf("crediting recipient: %w", err)
	}

	if err := e.appendReceipt(ctx, "YC_TRANSFERRED", fromDS, actor.TypeDS, transferID); err != nil {
		return TransferResult{}, err
	}
	return TransferResult{Success: true, Code: "YC_TRANSFER_OK"}, nil
}

// Reconcile verifies that the YC credit issued against an escrow equals
// the amount that escrow has actually released (spec §4.6
// Reconciliation).
func (e *Engine) Reconcile(ctx context.Context, escrowID uuid.UUID) (ReconciliationResult, error) {
	escrow, err := e.store.GetEscrow(ctx, escrowID)
	if err != nil {
		return ReconciliationResult{}, err
	}
	issued, err := e.store.SumIssuedForEscrow(ctx, escrowID)
	if err != nil {
		return ReconciliationResult{}, err
	}
	return ReconciliationResult{
		EscrowID:   escrowID,
		Issued:     issued,
		Released:   escrow.ReleasedAmount,
		Reconciled: issued.Equal(escrow.ReleasedAmount),
	}, nil
}
