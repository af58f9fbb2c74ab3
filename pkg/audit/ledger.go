package audit

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/datasovereign/platform-core/internal/apperr"
	"github.com/datasovereign/platform-core/internal/cryptoutil"
	"github.com/datasovereign/platform-core/pkg/actor"
	"github.com/datasovereign/platform-core/pkg/eventbus"
)

// Publisher is the narrow slice of pkg/eventbus the ledger needs to emit a
// canonical event alongside every appended receipt (spec §4.5 "persists,
// emits a canonical event"). *eventbus.Bus satisfies this directly.
type Publisher interface {
	Publish(ctx context.Context, req eventbus.PublishRequest) (eventbus.CanonicalEvent, error)
}

// Ledger is the append-only, hash-chained audit chain (spec §4.5). A
// single writer per shard serialises appends; here that is a process-local
// mutex over the chain tail, the same single-mutex idiom pkg/capsule.KeyStore
// uses for key material, rather than a distributed lock,
// since PRB/escrow/balance use optimistic-concurrency retry instead (spec
// §5 "Ordering").
type Ledger struct {
	store   *Store
	events  Publisher
	writeMu sync.Mutex
}

// NewLedger constructs a Ledger. events may be nil in tests that do not
// care about canonical-event side effects.
func NewLedger(store *Store, events Publisher) *Ledger {
	return &Ledger{store: store, events: events}
}

// Append computes receiptHash = SHA-256(id || eventType || timestamp ||
// actorId || resourceId || detailsHash || prevHash), persists the receipt,
// and emits a canonical event (spec §4.5, §3 AuditReceipt invariant).
func (l *Ledger) Append(ctx context.Context, req AppendRequest) (Receipt, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	prevHash, err := l.store.LastReceiptHash(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("loading chain tail: %w", err)
	}

	receipt := Receipt{
		ID:              uuid.New(),
		EventType:       req.EventType,
		Timestamp:       time.Now().UTC(),
		ActorID:         req.ActorID,
		ActorType:       req.ActorType,
		ResourceID:      req.ResourceID,
		ResourceType:    req.ResourceType,
		DetailsHash:     hex.EncodeToString(req.DetailsHash[:]),
		PrevReceiptHash: prevHash,
	}
	receipt.ReceiptHash = computeReceiptHash(receipt)

	stored, err := l.store.Insert(ctx, receipt)
	if err != nil {
		return Receipt{}, fmt.Errorf("persisting audit receipt: %w", err)
	}

	if l.events != nil {
		_, err := l.events.Publish(ctx, eventbus.PublishRequest{
			EventType:      stored.EventType,
			EventName:      stored.EventType,
			IdempotencyKey: "AUDIT:" + stored.ID.String(),
			ActorID:        stored.ActorID,
			ActorType:      stored.ActorType,
			ResourceRef:    stored.ResourceType + ":" + stored.ResourceID,
			PayloadHash:    stored.ReceiptHash,
		})
		if err != nil {
			return Receipt{}, fmt.Errorf("publishing canonical event: %w", err)
		}
	}

	return stored, nil
}

// AppendReceipt is the narrow single-error-return signature every other
// subsystem's AuditAppender interface expects (pkg/screening,
// pkg/policyreview, pkg/consent, pkg/queryplan, pkg/privacy, pkg/capsule,
// pkg/settlement). actorType is typed at this boundary so call sites can't
// pass an arbitrary string; it is stored as its underlying string value,
// matching the rest of the receipt's persisted fields.
func (l *Ledger) AppendReceipt(ctx context.Context, eventType string, actorID uuid.UUID, actorType actor.Type, resourceID, resourceType string, detailsHash [32]byte) error {
	_, err := l.Append(ctx, AppendRequest{
		EventType:    eventType,
		ActorID:      actorID,
		ActorType:    string(actorType),
		ResourceID:   resourceID,
		ResourceType: resourceType,
		DetailsHash:  detailsHash,
	})
	return err
}

// computeReceiptHash is the canonical hash a receipt's receiptHash must
// equal (spec §3 "receiptHash = H(detailsHash || prevReceiptHash ||
// timestamp || ...)", §4.5 lists the full field order).
func computeReceiptHash(r Receipt) string {
	payload := r.ID.String() + "|" + r.EventType + "|" + r.Timestamp.Format(time.RFC3339Nano) + "|" +
		r.ActorID.String() + "|" + r.ResourceID + "|" + r.DetailsHash + "|" + r.PrevReceiptHash
	return cryptoutil.SHA256Hex([]byte(payload))
}

// VerifyReceiptIntegrity recomputes receiptHash for id and confirms the
// chain link to its predecessor (Testable Property 4): a single-bit
// mutation to any field folded into the hash, or a rewritten
// prevReceiptHash, makes this return false.
func (l *Ledger) VerifyReceiptIntegrity(ctx context.Context, id uuid.UUID) (bool, error) {
	receipt, err := l.store.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if computeReceiptHash(receipt) != receipt.ReceiptHash {
		return false, nil
	}
	if receipt.PrevReceiptHash == GenesisHash {
		return true, nil
	}
	prev, err := l.store.GetByHash(ctx, receipt.PrevReceiptHash)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return false, nil
		}
		return false, err
	}
	return computeReceiptHash(prev) == prev.ReceiptHash, nil
}

// Store exposes the underlying Store for read-only query composition
// (ByActor/ByResource/etc.) without re-exporting every method on Ledger.
func (l *Ledger) Store() *Store { return l.store }
