package capsule

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

// Store persists TimeCapsules, their header/proofs as JSON columns, and
// the global nonce registry.
type Store struct {
	db request.DBTX
}

// NewStore creates a capsule Store.
func NewStore(db request.DBTX) *Store {
	return &Store{db: db}
}

const capsuleColumns = `id, header, encrypted_blob, wrapped_key, key_id, nonce, proofs,
	status, expires_at, created_at, version`

func scanCapsule(row pgx.Row) (TimeCapsule, error) {
	var c TimeCapsule
	var headerJSON, proofsJSON []byte
	err := row.Scan(
		&c.ID, &headerJSON, &c.EncryptedBlob, &c.WrappedKey, &c.KeyID, &c.Nonce, &proofsJSON,
		&c.Status, &c.ExpiresAt, &c.CreatedAt, &c.Version,
	)
	if err != nil {
		return TimeCapsule{}, err
	}
	if err := json.Unmarshal(headerJSON, &c.Header); err != nil {
		return TimeCapsule{}, fmt.Errorf("decoding capsule header: %w", err)
	}
	if err := json.Unmarshal(proofsJSON, &c.Proofs); err != nil {
		return TimeCapsule{}, fmt.Errorf("decoding capsule proofs: %w", err)
	}
	return c, nil
}

// Create persists a new capsule.
func (s *Store) Create(ctx context.Context, c TimeCapsule) error {
	headerJSON, err := json.Marshal(c.Header)
	if err != nil {
		return fmt.Errorf("encoding capsule header: %w", err)
	}
	proofsJSON, err := json.Marshal(c.Proofs)
	if err != nil {
		return fmt.Errorf("encoding capsule proofs: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO time_capsules (
			id, header, encrypted_blob, wrapped_key, key_id, nonce, proofs, status, expires_at, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,1)`,
		c.ID, headerJSON, c.EncryptedBlob, c.WrappedKey, c.KeyID, c.Nonce, proofsJSON, c.Status, c.ExpiresAt,
	)
	return err
}

// Get returns a single capsule, or a NotFound apperr.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (TimeCapsule, error) {
	row := s.db.QueryRow(ctx, `SELECT `+capsuleColumns+` FROM time_capsules WHERE id = $1`, id)
	c, err := scanCapsule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return TimeCapsule{}, apperr.New(apperr.KindNotFound, "CAPSULE_011", "time capsule not found")
	}
	return c, err
}

// UpdateStatus advances a capsule's status.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	_, err := s.db.Exec(ctx, `UPDATE time_capsules SET status = $1, version = version + 1 WHERE id = $2`, status, id)
	return err
}

// ListExpiredActive returns every capsule whose TTL has lapsed and whose
// status is still CREATED or DELIVERED, the sweep target set.
func (s *Store) ListExpiredActive(ctx context.Context) ([]TimeCapsule, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+capsuleColumns+` FROM time_capsules
		WHERE expires_at <= now() AND status IN ($1, $2)`,
		StatusCreated, StatusDelivered,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimeCapsule
	for rows.Next() {
		c, err := scanCapsule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RegisterNonce inserts nonce into the global registry; a unique
// constraint makes reuse fail (spec §4.4 "Nonces are globally unique and
// registered; re-presentation of a used nonce is rejected").
func (s *Store) RegisterNonce(ctx context.Context, nonce string) error {
	_, err := s.db.Exec(ctx, `INSERT INTO capsule_nonces (nonce) VALUES ($1)`, nonce)
	return err
}
