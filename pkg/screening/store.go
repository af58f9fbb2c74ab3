package screening

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/datasovereign/platform-core/internal/apperr"
	"github.com/datasovereign/platform-core/pkg/request"
)

// Store persists ScreeningResults, backed by Postgres.
type Store struct {
	db request.DBTX
}

// NewStore creates a screening Store.
func NewStore(db request.DBTX) *Store {
	return &Store{db: db}
}

const screeningColumns = `id, request_id, decision, reason_codes, risk_score,
	cohort_size_estimate, policy_version, screened_by, appeal_status, created_at`

func scanScreeningResult(row pgx.Row) (ScreeningResult, error) {
	var r ScreeningResult
	var reasonCodes []byte
	err := row.Scan(
		&r.ID, &r.RequestID, &r.Decision, &reasonCodes, &r.RiskScore,
		&r.CohortSizeEstimate, &r.PolicyVersion, &r.ScreenedBy, &r.AppealStatus, &r.CreatedAt,
	)
	if err != nil {
		return ScreeningResult{}, err
	}
	if len(reasonCodes) > 0 {
		if err := json.Unmarshal(reasonCodes, &r.ReasonCodes); err != nil {
			return ScreeningResult{}, fmt.Errorf("decoding reason codes: %w", err)
		}
	}
	return r, nil
}

// Create inserts a new screening result.
func (s *Store) Create(ctx context.Context, r ScreeningResult) error {
	reasonCodes, err := json.Marshal(r.ReasonCodes)
	if err != nil {
		return fmt.Errorf("encoding reason codes: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO screening_results (
			id, request_id, decision, reason_codes, risk_score,
			cohort_size_estimate, policy_version, screened_by, appeal_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.RequestID, r.Decision, reasonCodes, r.RiskScore,
		r.CohortSizeEstimate, r.PolicyVersion, r.ScreenedBy, r.AppealStatus,
	)
	return err
}

// GetByRequestID returns the screening result for a request, or a NotFound
// apperr if none exists yet.
func (s *Store) GetByRequestID(ctx context.Context, requestID uuid.UUID) (ScreeningResult, error) {
	row := s.db.QueryRow(ctx, `SELECT `+screeningColumns+` FROM screening_results WHERE request_id = $1`, requestID)
	r, err := scanScreeningResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ScreeningResult{}, apperr.New(apperr.KindNotFound, "REQUEST_007", "no screening result for request")
	}
	return r, err
}

// UpdateAppeal persists an appeal resolution.
func (s *Store) UpdateAppeal(ctx context.Context, r ScreeningResult) error {
	_, err := s.db.Exec(ctx, `
		UPDATE screening_results SET decision = $1, appeal_status = $2, screened_by = $3
		WHERE id = $4`,
		r.Decision, r.AppealStatus, r.ScreenedBy, r.ID,
	)
	return err
}
