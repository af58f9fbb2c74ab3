package request

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DBTX is the minimal pgx surface a Store needs, satisfied by both
// *pgxpool.Pool and a pgx.Tx, matching the teacher's db.DBTX pattern
// (pkg/incident/store.go) so stores compose cleanly inside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides persistence for requests, backed by Postgres.
type Store struct {
	db DBTX
}

// NewStore creates a request Store over the given connection or transaction.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

const requestColumns = `id, requester_id, purpose, scope, eligibility_criteria,
	duration_start, duration_end, unit_type, unit_price, max_participants,
	budget, escrow_id, status, created_at, version`

func scanRequest(row pgx.Row) (Request, error) {
	var r Request
	var scope, criteria []byte
	var escrowID *uuid.UUID
	err := row.Scan(
		&r.ID, &r.RequesterID, &r.Purpose, &scope, &criteria,
		&r.DurationStart, &r.DurationEnd, &r.UnitType, &r.UnitPrice, &r.MaxParticipants,
		&r.Budget, &escrowID, &r.Status, &r.CreatedAt, &r.Version,
	)
	if err != nil {
		return Request{}, err
	}
	r.EscrowID = escrowID
	if err := json.Unmarshal(scope, &r.Scope); err != nil {
		return Request{}, fmt.Errorf("decoding scope: %w", err)
	}
	if err := json.Unmarshal(criteria, &r.EligibilityCriteria); err != nil {
		return Request{}, fmt.Errorf("decoding eligibility criteria: %w", err)
	}
	return r, nil
}

// Get returns a single request by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Request, error) {
	row := s.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, id)
	return scanRequest(row)
}

// Create inserts a new DRAFT request.
func (s *Store) Create(ctx context.Context, r Request) (Request, error) {
	scope, err := json.Marshal(r.Scope)
	if err != nil {
		return Request{}, fmt.Errorf("encoding scope: %w", err)
	}
	criteria, err := json.Marshal(r.EligibilityCriteria)
	if err != nil {
		return Request{}, fmt.Errorf("encoding eligibility criteria: %w", err)
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO requests (
			requester_id, purpose, scope, eligibility_criteria, duration_start,
			duration_end, unit_type, unit_price, max_participants, budget, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+requestColumns,
		r.RequesterID, r.Purpose, scope, criteria, r.DurationStart, r.DurationEnd,
		r.UnitType, r.UnitPrice, r.MaxParticipants, r.Budget, StatusDraft,
	)
	return scanRequest(row)
}

// UpdateStatus performs an optimistic-concurrency status transition: it
// only succeeds if the row's version still matches expectedVersion, per
// spec §5 "read version -> modify -> write-if-version-equal".
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, next Status, expectedVersion int) (Request, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE requests SET status = $1, version = version + 1
		WHERE id = $2 AND version = $3
		RETURNING `+requestColumns,
		next, id, expectedVersion,
	)
	return scanRequest(row)
}

// SetEscrow attaches an escrow account ID to a request.
func (s *Store) SetEscrow(ctx context.Context, id uuid.UUID, escrowID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `UPDATE requests SET escrow_id = $1 WHERE id = $2`, escrowID, id)
	return err
}
