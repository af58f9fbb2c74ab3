package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/datasovereign/platform-core/internal/apperr"
	"github.com/datasovereign/platform-core/pkg/request"
)

// DBTX is the minimal pgx surface the settlement stores need, matching
// pkg/request.DBTX so a Store composes inside a pgxpool.Tx for the
// multi-row atomic transitions of spec §5 ("settlement posting + YC
// issuance + receipt ... execute inside a single ACID transaction").
type DBTX = request.DBTX

// Store persists escrow accounts, journal entries, DS balances, YC
// tokens and payout instructions, backed by Postgres.
type Store struct {
	db DBTX
}

// NewStore creates a settlement Store over a connection or transaction.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// --- Escrow ---

const escrowColumns = `id, requester_id, request_id, funded_amount,
	locked_amount, released_amount, refunded_amount, currency, status,
	created_at, version`

func scanEscrow(row pgx.Row) (EscrowAccount, error) {
	var e EscrowAccount
	err := row.Scan(
		&e.ID, &e.RequesterID, &e.RequestID, &e.FundedAmount, &e.LockedAmount,
		&e.ReleasedAmount, &e.RefundedAmount, &e.Currency, &e.Status,
		&e.CreatedAt, &e.Version,
	)
	return e, err
}

// CreateEscrow inserts a PENDING escrow for a request (unique per
// request, spec §3 "requestId (unique)").
func (s *Store) CreateEscrow(ctx context.Context, requesterID, requestID uuid.UUID, currency string) (EscrowAccount, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO escrow_accounts (
			requester_id, request_id, funded_amount, locked_amount,
			released_amount, refunded_amount, currency, status
		) VALUES ($1, $2, 0, 0, 0, 0, $3, $4)
		RETURNING `+escrowColumns,
		requesterID, requestID, currency, EscrowPending,
	)
	return scanEscrow(row)
}

// GetEscrow returns a single escrow account by ID.
func (s *Store) GetEscrow(ctx context.Context, id uuid.UUID) (EscrowAccount, error) {
	row := s.db.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrow_accounts WHERE id = $1`, id)
	e, err := scanEscrow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return EscrowAccount{}, apperr.New(apperr.KindNotFound, "ESCROW_001", "escrow account not found")
	}
	return e, err
}

// GetEscrowByRequest returns the escrow for a given request.
func (s *Store) GetEscrowByRequest(ctx context.Context, requestID uuid.UUID) (EscrowAccount, error) {
	row := s.db.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrow_accounts WHERE request_id = $1`, requestID)
	e, err := scanEscrow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return EscrowAccount{}, apperr.New(apperr.KindNotFound, "ESCROW_001", "escrow account not found")
	}
	return e, err
}

// UpdateEscrow performs an optimistic-concurrency write of the mutable
// escrow amounts/status (spec §5 "read version -> modify ->
// write-if-version-equal").
func (s *Store) UpdateEscrow(ctx context.Context, e EscrowAccount) (EscrowAccount, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE escrow_accounts SET
			funded_amount = $1, locked_amount = $2, released_amount = $3,
			refunded_amount = $4, status = $5, version = version + 1
		WHERE id = $6 AND version = $7
		RETURNING `+escrowColumns,
		e.FundedAmount, e.LockedAmount, e.ReleasedAmount, e.RefundedAmount,
		e.Status, e.ID, e.Version,
	)
	updated, err := scanEscrow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return EscrowAccount{}, apperr.New(apperr.KindTransient, "ESCROW_002", "escrow version conflict, retry")
	}
	return updated, err
}

// --- Journal ---

// PostEntry inserts a journal entry. On an idempotencyKey conflict it
// returns the prior entry instead of erroring (spec §4.6 "a duplicate
// insert is a no-op that returns the prior posting").
func (s *Store) PostEntry(ctx context.Context, e JournalEntry) (JournalEntry, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO journal_entries (
			debit_account, credit_account, amount, currency, reference, idempotency_key
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (idempotency_key) DO UPDATE SET idempotency_key = EXCLUDED.idempotency_key
		RETURNING id, timestamp, debit_account, credit_account, amount, currency, reference, idempotency_key`,
		e.DebitAccount, e.CreditAccount, e.Amount, e.Currency, e.Reference, e.IdempotencyKey,
	)
	var out JournalEntry
	err := row.Scan(&out.ID, &out.Timestamp, &out.DebitAccount, &out.CreditAccount, &out.Amount, &out.Currency, &out.Reference, &out.IdempotencyKey)
	return out, err
}

// GetEntryByIdempotencyKey returns a previously posted entry, if any.
func (s *Store) GetEntryByIdempotencyKey(ctx context.Context, key string) (JournalEntry, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, timestamp, debit_account, credit_account, amount, currency, reference, idempotency_key
		FROM journal_entries WHERE idempotency_key = $1`, key)
	var out JournalEntry
	err := row.Scan(&out.ID, &out.Timestamp, &out.DebitAccount, &out.CreditAccount, &out.Amount, &out.Currency, &out.Reference, &out.IdempotencyKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return JournalEntry{}, apperr.New(apperr.KindNotFound, "SETTLE_001", "journal entry not found")
	}
	return out, err
}

// --- DS balance ---

const balanceColumns = `ds_id, available_balance, pending_balance, total_earned, total_paid_out, currency, version`

func scanBalance(row pgx.Row) (DSBalance, error) {
	var b DSBalance
	err := row.Scan(&b.DSID, &b.AvailableBalance, &b.PendingBalance, &b.TotalEarned, &b.TotalPaidOut, &b.Currency, &b.Version)
	return b, err
}

// GetOrCreateBalance returns a DS's balance row, creating a zeroed one if
// it does not yet exist.
func (s *Store) GetOrCreateBalance(ctx context.Context, dsID uuid.UUID, currency string) (DSBalance, error) {
	row := s.db.QueryRow(ctx, `SELECT `+balanceColumns+` FROM ds_balances WHERE ds_id = $1`, dsID)
	b, err := scanBalance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		row = s.db.QueryRow(ctx, `
			INSERT INTO ds_balances (ds_id, available_balance, pending_balance, total_earned, total_paid_out, currency)
			VALUES ($1, 0, 0, 0, 0, $2)
			ON CONFLICT (ds_id) DO UPDATE SET ds_id = EXCLUDED.ds_id
			RETURNING `+balanceColumns,
			dsID, currency,
		)
		return scanBalance(row)
	}
	return b, err
}

// UpdateBalance performs an optimistic-concurrency write of a DS balance.
func (s *Store) UpdateBalance(ctx context.Context, b DSBalance) (DSBalance, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE ds_balances SET
			available_balance = $1, pending_balance = $2, total_earned = $3, total_paid_out = $4,
			version = version + 1
		WHERE ds_id = $5 AND version = $6
		RETURNING `+balanceColumns,
		b.AvailableBalance, b.PendingBalance, b.TotalEarned, b.TotalPaidOut, b.DSID, b.Version,
	)
	updated, err := scanBalance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return DSBalance{}, apperr.New(apperr.KindTransient, "SETTLE_002", "ds balance version conflict, retry")
	}
	return updated, err
}

// --- YC tokens ---

// InsertYCToken persists a token. On an idempotencyKey conflict it
// returns the prior token instead of erroring.
func (s *Store) InsertYCToken(ctx context.Context, t YCToken) (YCToken, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO yc_tokens (
			ds_id, amount, operation_type, reference_id, reference_type, escrow_id, idempotency_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (idempotency_key) DO UPDATE SET idempotency_key = EXCLUDED.idempotency_key
		RETURNING id, ds_id, amount, operation_type, reference_id, reference_type, escrow_id, idempotency_key, created_at`,
		t.DSID, t.Amount, t.OperationType, t.ReferenceID, t.ReferenceType, t.EscrowID, t.IdempotencyKey,
	)
	var out YCToken
	err := row.Scan(&out.ID, &out.DSID, &out.Amount, &out.OperationType, &out.ReferenceID, &out.ReferenceType, &out.EscrowID, &out.IdempotencyKey, &out.CreatedAt)
	return out, err
}

// SumByDS returns the DS's current YC credit balance: the signed sum of
// every token amount (spec §3 "Balance = Sigma amounts per dsId").
func (s *Store) SumByDS(ctx context.Context, dsID uuid.UUID) (decimal.Decimal, error) {
	row := s.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM yc_tokens WHERE ds_id = $1`, dsID)
	var sum decimal.Decimal
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("summing yc tokens for ds %s: %w", dsID, err)
	}
	return sum, nil
}

// SumIssuedForEscrow returns the sum of ISSUANCE-type token amounts
// referencing escrowID, for per-escrow reconciliation (spec §4.6).
func (s *Store) SumIssuedForEscrow(ctx context.Context, escrowID uuid.UUID) (decimal.Decimal, error) {
	row := s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM yc_tokens
		WHERE escrow_id = $1 AND operation_type = $2`,
		escrowID, YCIssuance,
	)
	var sum decimal.Decimal
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("summing issued yc tokens for escrow %s: %w", escrowID, err)
	}
	return sum, nil
}

// --- Payout instructions ---

// InsertPayoutInstruction persists a payout request.
func (s *Store) InsertPayoutInstruction(ctx context.Context, p PayoutInstruction) (PayoutInstruction, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO payout_instructions (ds_id, amount, method, destination_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, ds_id, amount, method, destination_hash, created_at`,
		p.DSID, p.Amount, p.Method, p.DestinationHash,
	)
	var out PayoutInstruction
	err := row.Scan(&out.ID, &out.DSID, &out.Amount, &out.Method, &out.DestinationHash, &out.CreatedAt)
	return out, err
}
