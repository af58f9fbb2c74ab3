// Package settlement implements double-entry journal postings, the
// escrow state machine, DS balances, and non-transferable YC credit
// issuance/redemption/clawback, reconciled to escrow (spec §4.6).
package settlement

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Idempotency-key formats for the journal/YC-token inserts below (spec
// §4.6, §5 "Atomicity"). Pulled out as named functions so the format is
// pinned in one place and directly testable.
func fundIdempotencyKey(escrowID uuid.UUID) string {
	return fmt.Sprintf("FUND:%s", escrowID)
}

func refundIdempotencyKey(escrowID uuid.UUID) string {
	return fmt.Sprintf("REFUND:%s", escrowID)
}

func settleIdempotencyKey(contractID, dsID uuid.UUID) string {
	return fmt.Sprintf("SETTLE:%s:%s", contractID, dsID)
}

func issueIdempotencyKey(contractID, dsID uuid.UUID) string {
	return fmt.Sprintf("ISSUE:%s:%s", contractID, dsID)
}

func redeemIdempotencyKey(payoutID, dsID uuid.UUID) string {
	return fmt.Sprintf("REDEEM:%s:%s", payoutID, dsID)
}

func clawbackIdempotencyKey(disputeID, dsID uuid.UUID) string {
	return fmt.Sprintf("CLAWBACK:%s:%s", disputeID, dsID)
}

func transferOutIdempotencyKey(transferID uuid.UUID) string {
	return fmt.Sprintf("TRANSFER_OUT:%s", transferID)
}

func transferInIdempotencyKey(transferID uuid.UUID) string {
	return fmt.Sprintf("TRANSFER_IN:%s", transferID)
}

// EscrowStatus is the escrow account lifecycle state (spec §3, §4.6
// "PENDING -> FUNDED -> LOCKED -> {SETTLED | REFUNDED}").
type EscrowStatus string

const (
	EscrowPending  EscrowStatus = "PENDING"
	EscrowFunded   EscrowStatus = "FUNDED"
	EscrowLocked   EscrowStatus = "LOCKED"
	EscrowSettled  EscrowStatus = "SETTLED"
	EscrowRefunded EscrowStatus = "REFUNDED"
)

// CanTransitionTo reports whether status may move to next directly (spec
// §4.6 escrow state machine).
func (s EscrowStatus) CanTransitionTo(next EscrowStatus) bool {
	switch s {
	case EscrowPending:
		return next == EscrowFunded
	case EscrowFunded:
		return next == EscrowLocked || next == EscrowRefunded
	case EscrowLocked:
		return next == EscrowSettled || next == EscrowRefunded
	default:
		return false
	}
}

// EscrowAccount is the per-request custodial account holding committed
// funds through fund -> lock -> release/refund (spec §3).
type EscrowAccount struct {
	ID              uuid.UUID
	RequesterID     uuid.UUID
	RequestID       uuid.UUID
	FundedAmount    decimal.Decimal
	LockedAmount    decimal.Decimal
	ReleasedAmount  decimal.Decimal
	RefundedAmount  decimal.Decimal
	Currency        string
	Status          EscrowStatus
	CreatedAt       time.Time
	Version         int
}

// Available is the unlocked, unreleased, unrefunded remainder (spec §3
// invariant "fundedAmount = lockedAmount + releasedAmount + refundedAmount
// + availableRemainder >= 0").
func (e EscrowAccount) Available() decimal.Decimal {
	return e.FundedAmount.Sub(e.LockedAmount).Sub(e.ReleasedAmount).Sub(e.RefundedAmount)
}

// InvariantHolds reports whether the escrow's non-negativity invariant
// holds (spec §3, Testable Property 3).
func (e EscrowAccount) InvariantHolds() bool {
	return e.Available().Sign() >= 0
}

// JournalEntry is a single double-entry posting (spec §3). Every posting
// carries an idempotencyKey that is unique across the journal (spec §4.6,
// §5 "Atomicity").
type JournalEntry struct {
	ID             uuid.UUID
	Timestamp      time.Time
	DebitAccount   string
	CreditAccount  string
	Amount         decimal.Decimal
	Currency       string
	Reference      string
	IdempotencyKey string
}

// DSBalance tracks a Data Sovereign's earnings (spec §3). Invariant:
// totalEarned - totalPaidOut = availableBalance + pendingBalance
// (Testable Property 2).
type DSBalance struct {
	DSID             uuid.UUID
	AvailableBalance decimal.Decimal
	PendingBalance   decimal.Decimal
	TotalEarned      decimal.Decimal
	TotalPaidOut     decimal.Decimal
	Currency         string
	Version          int
}

// InvariantHolds checks Property 2 for this balance snapshot.
func (b DSBalance) InvariantHolds() bool {
	lhs := b.TotalEarned.Sub(b.TotalPaidOut)
	rhs := b.AvailableBalance.Add(b.PendingBalance)
	return lhs.Equal(rhs)
}

// YCOperationType is the kind of YC credit ledger event (spec §3).
type YCOperationType string

const (
	YCIssuance   YCOperationType = "ISSUANCE"
	YCRedemption YCOperationType = "REDEMPTION"
	YCClawback   YCOperationType = "CLAWBACK"
	YCAdjustment YCOperationType = "ADJUSTMENT"
)

// YCToken is a single signed movement of a DS's non-transferable YC
// credit balance (spec §3): positive for ISSUANCE, negative for
// REDEMPTION/CLAWBACK.
type YCToken struct {
	ID             uuid.UUID
	DSID           uuid.UUID
	Amount         decimal.Decimal
	OperationType  YCOperationType
	ReferenceID    string
	ReferenceType  string
	EscrowID       *uuid.UUID
	IdempotencyKey string
	CreatedAt      time.Time
}

// PayoutMethod is how a DS requests their available balance be paid out
// (spec §6 "Payout request").
type PayoutMethod string

const (
	PayoutBank   PayoutMethod = "BANK"
	PayoutPaypal PayoutMethod = "PAYPAL"
	PayoutCrypto PayoutMethod = "CRYPTO"
)

// PayoutInstruction is a DS's request to withdraw available balance (spec
// §6). DestinationHash only: destination PII never reaches the core.
type PayoutInstruction struct {
	ID              uuid.UUID
	DSID            uuid.UUID
	Amount          decimal.Decimal
	Method          PayoutMethod
	DestinationHash string
	CreatedAt       time.Time
}

// SettlementResult is the output of Engine.ProcessSettlement.
type SettlementResult struct {
	JournalEntryID uuid.UUID
	YCToken        YCToken
	Escrow         EscrowAccount
	DSBalance      DSBalance
}

// TransferResult is the output of Engine.AttemptTransfer (spec §4.6
// Property 10 "Non-transferability").
type TransferResult struct {
	Success bool
	Code    string
}

// ReconciliationResult is the output of Engine.Reconcile (spec §4.6
// "Reconciliation per escrow: sum of ISSUANCE tokens must equal
// escrow.releasedAmount").
type ReconciliationResult struct {
	EscrowID      uuid.UUID
	Issued        decimal.Decimal
	Released      decimal.Decimal
	Reconciled    bool
}
