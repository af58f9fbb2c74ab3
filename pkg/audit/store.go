package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/datasovereign/platform-core/internal/apperr"
	"github.com/datasovereign/platform-core/pkg/request"
)

// DBTX is the minimal pgx surface a Store needs, matching
// pkg/request.DBTX so stores compose inside the same transaction.
type DBTX = request.DBTX

// Store persists Receipts in the `audit_receipts` table.
type Store struct {
	db DBTX
}

// NewStore creates an audit Store.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

const receiptColumns = `id, event_type, timestamp, actor_id, actor_type,
	resource_id, resource_type, details_hash, prev_receipt_hash, receipt_hash,
	merkle_root, merkle_proof, anchored_at`

func scanReceipt(row pgx.Row) (Receipt, error) {
	var r Receipt
	var proof []byte
	err := row.Scan(
		&r.ID, &r.EventType, &r.Timestamp, &r.ActorID, &r.ActorType,
		&r.ResourceID, &r.ResourceType, &r.DetailsHash, &r.PrevReceiptHash, &r.ReceiptHash,
		&r.MerkleRoot, &proof, &r.AnchoredAt,
	)
	if err != nil {
		return Receipt{}, err
	}
	if len(proof) > 0 {
		if err := json.Unmarshal(proof, &r.MerkleProof); err != nil {
			return Receipt{}, fmt.Errorf("decoding merkle proof: %w", err)
		}
	}
	return r, nil
}

// LastReceiptHash returns the receiptHash of the most recently appended
// receipt, or GenesisHash if the chain is empty (spec §4.5).
func (s *Store) LastReceiptHash(ctx context.Context) (string, error) {
	row := s.db.QueryRow(ctx, `SELECT receipt_hash FROM audit_receipts ORDER BY timestamp DESC, id DESC LIMIT 1`)
	var hash string
	err := row.Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return GenesisHash, nil
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}

// Insert persists a new receipt. Receipts are append-only: there is no
// Update for the chain-carrying fields.
func (s *Store) Insert(ctx context.Context, r Receipt) (Receipt, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO audit_receipts (
			id, event_type, timestamp, actor_id, actor_type, resource_id,
			resource_type, details_hash, prev_receipt_hash, receipt_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+receiptColumns,
		r.ID, r.EventType, r.Timestamp, r.ActorID, r.ActorType, r.ResourceID,
		r.ResourceType, r.DetailsHash, r.PrevReceiptHash, r.ReceiptHash,
	)
	return scanReceipt(row)
}

// GetByID returns a single receipt, or a NotFound apperr.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (Receipt, error) {
	row := s.db.QueryRow(ctx, `SELECT `+receiptColumns+` FROM audit_receipts WHERE id = $1`, id)
	r, err := scanReceipt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Receipt{}, apperr.New(apperr.KindNotFound, "AUDIT_001", "audit receipt not found")
	}
	return r, err
}

// GetByHash returns the receipt whose receiptHash equals hash. The ledger
// uses it to load the receipt a prevReceiptHash points at for the
// chain-link check.
func (s *Store) GetByHash(ctx context.Context, hash string) (Receipt, error) {
	row := s.db.QueryRow(ctx, `SELECT `+receiptColumns+` FROM audit_receipts WHERE receipt_hash = $1`, hash)
	r, err := scanReceipt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Receipt{}, apperr.New(apperr.KindNotFound, "AUDIT_001", "audit receipt not found")
	}
	return r, err
}

func scanReceipts(rows pgx.Rows) ([]Receipt, error) {
	defer rows.Close()
	var out []Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListByActor returns receipts for actorID, newest first, paginated.
func (s *Store) ListByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]Receipt, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+receiptColumns+` FROM audit_receipts
		WHERE actor_id = $1 ORDER BY timestamp DESC LIMIT $2 OFFSET $3`,
		actorID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	return scanReceipts(rows)
}

// ListByResource returns receipts for a given (resourceType, resourceID).
func (s *Store) ListByResource(ctx context.Context, resourceType, resourceID string, limit, offset int) ([]Receipt, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+receiptColumns+` FROM audit_receipts
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY timestamp DESC LIMIT $3 OFFSET $4`,
		resourceType, resourceID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	return scanReceipts(rows)
}

// ListByEventType returns receipts of a given eventType.
func (s *Store) ListByEventType(ctx context.Context, eventType string, limit, offset int) ([]Receipt, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+receiptColumns+` FROM audit_receipts
		WHERE event_type = $1 ORDER BY timestamp DESC LIMIT $2 OFFSET $3`,
		eventType, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	return scanReceipts(rows)
}

// ListByTimeRange returns receipts within [rng.Start, rng.End).
func (s *Store) ListByTimeRange(ctx context.Context, rng TimeRange, limit, offset int) ([]Receipt, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+receiptColumns+` FROM audit_receipts
		WHERE timestamp >= $1 AND timestamp < $2
		ORDER BY timestamp ASC LIMIT $3 OFFSET $4`,
		rng.Start, rng.End, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	return scanReceipts(rows)
}

// ListByConsentContract returns every receipt whose resourceType is
// "consent_contract" and resourceID matches contractID.
func (s *Store) ListByConsentContract(ctx context.Context, contractID uuid.UUID, limit, offset int) ([]Receipt, error) {
	return s.ListByResource(ctx, "consent_contract", contractID.String(), limit, offset)
}

// SelectUnanchored returns up to limit receipts not yet part of an
// anchored Merkle batch, oldest first (spec §4.5 "anchorBatch").
func (s *Store) SelectUnanchored(ctx context.Context, limit int) ([]Receipt, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+receiptColumns+` FROM audit_receipts
		WHERE anchored_at IS NULL ORDER BY timestamp ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	return scanReceipts(rows)
}

// SetMerkleProof persists the root and sibling-path proof assigned to a
// receipt by a completed anchorBatch run.
func (s *Store) SetMerkleProof(ctx context.Context, id uuid.UUID, root string, proof []string, anchoredAt time.Time) error {
	encoded, err := json.Marshal(proof)
	if err != nil {
		return fmt.Errorf("encoding merkle proof: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		UPDATE audit_receipts SET merkle_root = $1, merkle_proof = $2, anchored_at = $3
		WHERE id = $4`,
		root, encoded, anchoredAt, id,
	)
	return err
}
