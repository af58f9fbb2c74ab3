package privacy

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/datasovereign/platform-core/internal/apperr"
	"github.com/datasovereign/platform-core/pkg/request"
)

// Store persists Privacy Risk Budgets in Postgres.
type Store struct {
	db request.DBTX
}

// NewStore creates a privacy Store.
func NewStore(db request.DBTX) *Store {
	return &Store{db: db}
}

const prbColumns = `id, campaign_id, allocated, consumed, status, version`

func scanPRB(row pgx.Row) (PrivacyRiskBudget, error) {
	var b PrivacyRiskBudget
	err := row.Scan(&b.ID, &b.CampaignID, &b.Allocated, &b.Consumed, &b.Status, &b.Version)
	return b, err
}

// Create persists a new budget.
func (s *Store) Create(ctx context.Context, b PrivacyRiskBudget) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO privacy_risk_budgets (id, campaign_id, allocated, consumed, status, version)
		VALUES ($1,$2,$3,0,$4,1)`,
		b.ID, b.CampaignID, b.Allocated, b.Status,
	)
	return err
}

// GetByCampaign returns the budget for a campaign, or a NotFound apperr.
func (s *Store) GetByCampaign(ctx context.Context, campaignID uuid.UUID) (PrivacyRiskBudget, error) {
	row := s.db.QueryRow(ctx, `SELECT `+prbColumns+` FROM privacy_risk_budgets WHERE campaign_id = $1`, campaignID)
	b, err := scanPRB(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return PrivacyRiskBudget{}, apperr.New(apperr.KindNotFound, "PRB_002", "privacy risk budget not found")
	}
	return b, err
}

// ConsumeCAS atomically increments consumed by cost iff the row is still
// at expectedVersion and sufficient budget remains, the compare-and-swap
// spec §4.4/§5 require. A zero-row update means either a concurrent
// writer advanced the version (retry) or remaining was insufficient
// (caller re-reads to distinguish, since Consume already checked
// remaining immediately before calling this).
func (s *Store) ConsumeCAS(ctx context.Context, id uuid.UUID, expectedVersion int, cost float64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE privacy_risk_budgets
		SET consumed = consumed + $1, version = version + 1
		WHERE id = $2 AND version = $3 AND (allocated - consumed) >= $1`,
		cost, id, expectedVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindInvalidState, "PRB_003", "privacy risk budget was concurrently modified or exhausted")
	}
	return nil
}

// Lock transitions a campaign's budget to LOCKED.
func (s *Store) Lock(ctx context.Context, campaignID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE privacy_risk_budgets SET status = $1, version = version + 1
		WHERE campaign_id = $2`,
		PRBStatusLocked, campaignID,
	)
	return err
}
