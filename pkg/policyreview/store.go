package policyreview

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

// Store persists PolicyReviewResults and their signed stamps, backed by
// Postgres.
type Store struct {
	db request.DBTX
}

// NewStore creates a policy review Store.
func NewStore(db request.DBTX) *Store {
	return &Store{db: db}
}

const policyReviewColumns = `request_id, decision, reason_codes, remediation_hints,
	required_safeguards, success, policy_version, signature, stamp_hash, signed_at`

func scanPolicyReview(row pgx.Row) (PolicyReviewResult, SignedPolicyStamp, error) {
	var r PolicyReviewResult
	var s SignedPolicyStamp
	var reasonCodes, hints, safeguards []byte

	err := row.Scan(
		&r.RequestID, &r.Decision, &reasonCodes, &hints, &safeguards, &r.Success,
		&s.PolicyVersion, &s.Signature, &s.StampHash, &s.Timestamp,
	)
	if err != nil {
		return PolicyReviewResult{}, SignedPolicyStamp{}, err
	}

	if len(reasonCodes) > 0 {
		if err := json.Unmarshal(reasonCodes, &r.ReasonCodes); err != nil {
			return PolicyReviewResult{}, SignedPolicyStamp{}, fmt.Errorf("decoding reason codes: %w", err)
		}
	}
	if len(hints) > 0 {
		if err := json.Unmarshal(hints, &r.RemediationHints); err != nil {
			return PolicyReviewResult{}, SignedPolicyStamp{}, fmt.Errorf("decoding remediation hints: %w", err)
		}
	}
	if len(safeguards) > 0 {
		if err := json.Unmarshal(safeguards, &r.RequiredSafeguards); err != nil {
			return PolicyReviewResult{}, SignedPolicyStamp{}, fmt.Errorf("decoding safeguards: %w", err)
		}
	}

	s.RequestID = r.RequestID
	s.Decision = r.Decision
	s.Safeguards = r.RequiredSafeguards
	s.ReasonCodes = r.ReasonCodes
	return r, s, nil
}

// Create inserts a new policy review result and its signed stamp.
func (s *Store) Create(ctx context.Context, r PolicyReviewResult, stamp SignedPolicyStamp) error {
	reasonCodes, err := json.Marshal(r.ReasonCodes)
	if err != nil {
		return fmt.Errorf("encoding reason codes: %w", err)
	}
	hints, err := json.Marshal(r.RemediationHints)
	if err != nil {
		return fmt.Errorf("encoding remediation hints: %w", err)
	}
	safeguards, err := json.Marshal(r.RequiredSafeguards)
	if err != nil {
		return fmt.Errorf("encoding safeguards: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO policy_reviews (
			request_id, decision, reason_codes, remediation_hints,
			required_safeguards, success, policy_version, signature, stamp_hash, signed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.RequestID, r.Decision, reasonCodes, hints, safeguards, r.Success,
		stamp.PolicyVersion, stamp.Signature, stamp.StampHash, stamp.Timestamp,
	)
	return err
}

// GetByRequestID returns the policy review result for a request, or a
// NotFound apperr if none exists yet. GetStampByRequestID returns the
// stamp.
func (s *Store) GetByRequestID(ctx context.Context, requestID uuid.UUID) (PolicyReviewResult, error) {
	row := s.db.QueryRow(ctx, `SELECT `+policyReviewColumns+` FROM policy_reviews WHERE request_id = $1`, requestID)
	r, _, err := scanPolicyReview(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return PolicyReviewResult{}, apperr.New(apperr.KindNotFound, "POLICY_003", "no policy review for request")
	}
	return r, err
}

// GetStampByRequestID returns the signed stamp for a request's policy
// review, for external verification.
func (s *Store) GetStampByRequestID(ctx context.Context, requestID uuid.UUID) (SignedPolicyStamp, error) {
	row := s.db.QueryRow(ctx, `SELECT `+policyReviewColumns+` FROM policy_reviews WHERE request_id = $1`, requestID)
	_, stamp, err := scanPolicyReview(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return SignedPolicyStamp{}, apperr.New(apperr.KindNotFound, "POLICY_003", "no policy review for request")
	}
	return stamp, err
}
