package consent

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/datasovereign/platform-core/internal/apperr"
	"github.com/datasovereign/platform-core/pkg/request"
)

// Store persists consent contracts, obligations and violations in Postgres.
type Store struct {
	db request.DBTX
}

// NewStore creates a consent Store.
func NewStore(db request.DBTX) *Store {
	return &Store{db: db}
}

const contractColumns = `id, ds_id, requester_id, request_id, scope_hash, purpose_hash,
	duration_start, duration_end, compensation_amount, status, permitted_fields,
	sensitive_field_consents, output_restrictions, allowed_transforms, delivery_mode, retention_days,
	usage_restrictions, deletion_requirements, obligation_hash, created_at, version`

func scanContract(row pgx.Row) (ConsentContract, error) {
	var c ConsentContract
	err := row.Scan(
		&c.ID, &c.DSID, &c.RequesterID, &c.RequestID, &c.ScopeHash, &c.PurposeHash,
		&c.DurationStart, &c.DurationEnd, &c.CompensationAmount, &c.Status, &c.PermittedFields,
		&c.SensitiveFieldConsents, &c.OutputRestrictions, &c.AllowedTransforms, &c.DeliveryMode, &c.RetentionDays,
		&c.UsageRestrictions, &c.DeletionRequirements, &c.ObligationHash, &c.CreatedAt, &c.Version,
	)
	return c, err
}

// Create persists a new consent contract.
func (s *Store) Create(ctx context.Context, c ConsentContract) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO consent_contracts (
			id, ds_id, requester_id, request_id, scope_hash, purpose_hash,
			duration_start, duration_end, compensation_amount, status, permitted_fields,
			sensitive_field_consents, output_restrictions, allowed_transforms, delivery_mode, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,1)`,
		c.ID, c.DSID, c.RequesterID, c.RequestID, c.ScopeHash, c.PurposeHash,
		c.DurationStart, c.DurationEnd, c.CompensationAmount, c.Status, c.PermittedFields,
		c.SensitiveFieldConsents, c.OutputRestrictions, c.AllowedTransforms, c.DeliveryMode,
	)
	return err
}

// Get returns a single consent contract, or a NotFound apperr.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (ConsentContract, error) {
	row := s.db.QueryRow(ctx, `SELECT `+contractColumns+` FROM consent_contracts WHERE id = $1`, id)
	c, err := scanContract(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ConsentContract{}, apperr.New(apperr.KindNotFound, "CONSENT_003", "consent contract not found")
	}
	return c, err
}

// GetActiveByDSAndRequest returns the ACTIVE contract for a (dsId, requestId)
// pair, if one exists, used to guard against duplicate contracts.
func (s *Store) GetActiveByDSAndRequest(ctx context.Context, dsID, requestID uuid.UUID) (ConsentContract, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+contractColumns+` FROM consent_contracts
		WHERE ds_id = $1 AND request_id = $2 AND status = $3`,
		dsID, requestID, StatusActive,
	)
	return scanContract(row)
}

// UpdateStatus advances a contract's status with optimistic concurrency.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, expectedVersion int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE consent_contracts SET status = $1, version = version + 1
		WHERE id = $2 AND version = $3`,
		status, id, expectedVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindInvalidState, "CONSENT_005", "consent contract was concurrently modified")
	}
	return nil
}

// SetObligationHash persists the canonical obligation-set hash on a
// contract.
func (s *Store) SetObligationHash(ctx context.Context, contractID uuid.UUID, hash string) error {
	_, err := s.db.Exec(ctx, `UPDATE consent_contracts SET obligation_hash = $1 WHERE id = $2`, hash, contractID)
	return err
}

const obligationColumns = `id, contract_id, type, specification, enforcement_level, status, created_at`

func scanObligation(row pgx.Row) (ConsentObligation, error) {
	var o ConsentObligation
	err := row.Scan(&o.ID, &o.ContractID, &o.Type, &o.Specification, &o.EnforcementLevel, &o.Status, &o.CreatedAt)
	return o, err
}

// CreateObligation persists a single obligation.
func (s *Store) CreateObligation(ctx context.Context, o ConsentObligation) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO consent_obligations (id, contract_id, type, specification, enforcement_level, status)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		o.ID, o.ContractID, o.Type, o.Specification, o.EnforcementLevel, o.Status,
	)
	return err
}

// ListObligations returns every obligation attached to a contract.
func (s *Store) ListObligations(ctx context.Context, contractID uuid.UUID) ([]ConsentObligation, error) {
	rows, err := s.db.Query(ctx, `SELECT `+obligationColumns+` FROM consent_obligations WHERE contract_id = $1`, contractID)
	if err != nil {
		return nil, fmt.Errorf("listing obligations: %w", err)
	}
	defer rows.Close()

	var out []ConsentObligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// MarkObligationViolated transitions an obligation to VIOLATED.
func (s *Store) MarkObligationViolated(ctx context.Context, obligationID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `UPDATE consent_obligations SET status = $1 WHERE id = $2`, ObligationStatusViolated, obligationID)
	return err
}

const violationColumns = `id, contract_id, obligation_id, violation_type, severity, evidence_hash,
	penalty_applied, penalty_amount, created_at`

func scanViolation(row pgx.Row) (ObligationViolation, error) {
	var v ObligationViolation
	err := row.Scan(&v.ID, &v.ContractID, &v.ObligationID, &v.ViolationType, &v.Severity, &v.EvidenceHash,
		&v.PenaltyApplied, &v.PenaltyAmount, &v.CreatedAt)
	return v, err
}

// CreateViolation persists a detected obligation violation.
func (s *Store) CreateViolation(ctx context.Context, v ObligationViolation) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO obligation_violations (id, contract_id, obligation_id, violation_type, severity, evidence_hash)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		v.ID, v.ContractID, v.ObligationID, v.ViolationType, v.Severity, v.EvidenceHash,
	)
	return err
}

// GetViolation returns a single violation, or a NotFound apperr.
func (s *Store) GetViolation(ctx context.Context, id uuid.UUID) (ObligationViolation, error) {
	row := s.db.QueryRow(ctx, `SELECT `+violationColumns+` FROM obligation_violations WHERE id = $1`, id)
	v, err := scanViolation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ObligationViolation{}, apperr.New(apperr.KindNotFound, "CONSENT_009", "obligation violation not found")
	}
	return v, err
}

// ApplyPenalty idempotently marks a violation's penalty applied. The
// `penalty_applied = false` guard makes a racing double-apply a no-op row
// update rather than a double charge; the caller still checks
// PenaltyApplied first to return PenaltyAlreadyApplied to the requester.
func (s *Store) ApplyPenalty(ctx context.Context, violationID uuid.UUID, amount float64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE obligation_violations SET penalty_applied = true, penalty_amount = $1
		WHERE id = $2 AND penalty_applied = false`,
		amount, violationID,
	)
	return err
}
