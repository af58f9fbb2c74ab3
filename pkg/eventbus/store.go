package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/datasovereign/platform-core/internal/apperr"
	"github.com/datasovereign/platform-core/pkg/request"
)

// Store persists CanonicalEvents in the `canonical_events` table, whose
// `idempotency_key UNIQUE` constraint is the fencing primitive for
// at-least-once producer semantics (spec §5 "Atomicity").
type Store struct {
	db request.DBTX
}

// NewStore creates an event Store.
func NewStore(db request.DBTX) *Store {
	return &Store{db: db}
}

const eventColumns = `id, event_type, event_name, trace_id, correlation_id,
	idempotency_key, actor_id, actor_type, resource_ref, payload_hash,
	timestamp, status, retry_count`

func scanEvent(row pgx.Row) (CanonicalEvent, error) {
	var e CanonicalEvent
	err := row.Scan(
		&e.ID, &e.EventType, &e.EventName, &e.TraceID, &e.CorrelationID,
		&e.IdempotencyKey, &e.ActorID, &e.ActorType, &e.ResourceRef, &e.PayloadHash,
		&e.Timestamp, &e.Status, &e.RetryCount,
	)
	return e, err
}

// Insert persists a new event. On an idempotency-key conflict it returns
// the prior event instead of erroring, the "Duplicate ... recovered
// locally" behaviour of spec §7.
func (s *Store) Insert(ctx context.Context, req PublishRequest) (CanonicalEvent, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO canonical_events (
			event_type, event_name, trace_id, correlation_id, idempotency_key,
			actor_id, actor_type, resource_ref, payload_hash, status, retry_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0)
		ON CONFLICT (idempotency_key) DO UPDATE SET idempotency_key = EXCLUDED.idempotency_key
		RETURNING `+eventColumns,
		req.EventType, req.EventName, req.TraceID, req.CorrelationID, req.IdempotencyKey,
		req.ActorID, req.ActorType, req.ResourceRef, req.PayloadHash, StatusPending,
	)
	return scanEvent(row)
}

// ClaimPending atomically moves up to limit PENDING/retry-eligible FAILED
// events to PROCESSING and returns them, `FOR UPDATE SKIP LOCKED` so
// multiple workers can pull from the same queue without contention. A
// FAILED event only becomes claimable again once its backoff delay
// (next_attempt_at) has elapsed.
func (s *Store) ClaimPending(ctx context.Context, limit int) ([]CanonicalEvent, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE canonical_events SET status = $1
		WHERE id IN (
			SELECT id FROM canonical_events
			WHERE status = $2 OR (status = $3 AND retry_count < $4 AND next_attempt_at <= now())
			ORDER BY timestamp
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+eventColumns,
		StatusProcessing, StatusPending, StatusFailed, MaxRetries, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claiming pending events: %w", err)
	}
	defer rows.Close()

	var out []CanonicalEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkCompleted transitions an event to COMPLETED.
func (s *Store) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `UPDATE canonical_events SET status = $1 WHERE id = $2`, StatusCompleted, id)
	return err
}

// MarkFailed increments retry_count and either leaves the event FAILED with
// an exponential-backoff next_attempt_at, or moves it to DEAD_LETTER once
// retries are exhausted (spec §4.7).
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, backoff time.Duration) (Status, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE canonical_events
		SET retry_count = retry_count + 1,
		    status = CASE WHEN retry_count + 1 >= $1 THEN $2 ELSE $3 END,
		    next_attempt_at = now() + $4
		WHERE id = $5
		RETURNING status`,
		MaxRetries, StatusDeadLetter, StatusFailed, backoff, id,
	)
	var status Status
	if err := row.Scan(&status); err != nil {
		return "", err
	}
	return status, nil
}

// GetByID returns a single event, or a NotFound apperr.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (CanonicalEvent, error) {
	row := s.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM canonical_events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return CanonicalEvent{}, apperr.New(apperr.KindNotFound, "EVENT_001", "canonical event not found")
	}
	return e, err
}

// ListDeadLetter returns DEAD_LETTER events by event type, for the
// operational dead-letter inspection surface (SPEC_FULL.md §D).
func (s *Store) ListDeadLetter(ctx context.Context, eventType string, limit int) ([]CanonicalEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+eventColumns+` FROM canonical_events
		WHERE status = $1 AND ($2 = '' OR event_type = $2)
		ORDER BY timestamp DESC LIMIT $3`,
		StatusDeadLetter, eventType, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CanonicalEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
