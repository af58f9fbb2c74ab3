package queryplan

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/datasovereign/platform-core/internal/apperr"
	"github.com/datasovereign/platform-core/pkg/request"
)

// Store persists QueryPlans in Postgres.
type Store struct {
	db request.DBTX
}

// NewStore creates a queryplan Store.
func NewStore(db request.DBTX) *Store {
	return &Store{db: db}
}

const planColumns = `id, request_id, contract_id, requester_id, scope_hash, allowed_transforms,
	output_restrictions, permitted_fields, compensation, ttl_minutes, expires_at,
	signing_key_id, signature, status, created_at, version`

func scanPlan(row pgx.Row) (QueryPlan, error) {
	var p QueryPlan
	err := row.Scan(
		&p.ID, &p.RequestID, &p.ContractID, &p.RequesterID, &p.ScopeHash, &p.AllowedTransforms,
		&p.OutputRestrictions, &p.PermittedFields, &p.Compensation, &p.TTLMinutes, &p.ExpiresAt,
		&p.SigningKeyID, &p.Signature, &p.Status, &p.CreatedAt, &p.Version,
	)
	return p, err
}

// Create persists a new query plan.
func (s *Store) Create(ctx context.Context, p QueryPlan) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO query_plans (
			id, request_id, contract_id, requester_id, scope_hash, allowed_transforms,
			output_restrictions, permitted_fields, compensation, ttl_minutes, expires_at,
			signing_key_id, signature, status, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,1)`,
		p.ID, p.RequestID, p.ContractID, p.RequesterID, p.ScopeHash, p.AllowedTransforms,
		p.OutputRestrictions, p.PermittedFields, p.Compensation, p.TTLMinutes, p.ExpiresAt,
		p.SigningKeyID, p.Signature, p.Status,
	)
	return err
}

// Get returns a single query plan, or a NotFound apperr.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (QueryPlan, error) {
	row := s.db.QueryRow(ctx, `SELECT `+planColumns+` FROM query_plans WHERE id = $1`, id)
	p, err := scanPlan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return QueryPlan{}, apperr.New(apperr.KindNotFound, "PLAN_007", "query plan not found")
	}
	return p, err
}

// UpdateStatus advances a plan's status with optimistic concurrency.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, expectedVersion int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE query_plans SET status = $1, version = version + 1
		WHERE id = $2 AND version = $3`,
		status, id, expectedVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindInvalidState, "PLAN_008", "query plan was concurrently modified")
	}
	return nil
}

// ExpireByContractID marks every non-terminal plan under contractID
// EXPIRED, used to cascade a consent revocation.
func (s *Store) ExpireByContractID(ctx context.Context, contractID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE query_plans SET status = $1, version = version + 1
		WHERE contract_id = $2 AND status != $1`,
		StatusExpired, contractID,
	)
	return err
}

// ListByContractID returns every plan created under a contract.
func (s *Store) ListByContractID(ctx context.Context, contractID uuid.UUID) ([]QueryPlan, error) {
	rows, err := s.db.Query(ctx, `SELECT `+planColumns+` FROM query_plans WHERE contract_id = $1 ORDER BY created_at`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueryPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
