// Package eventbus implements the canonical event bus (spec §4.7): the
// envelope every state transition in §4.1-§4.6 publishes, idempotency-keyed
// at-least-once delivery, a worker pool with bounded exponential-backoff
// retry, and a DEAD_LETTER terminal state for alerting.
package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// Status is the CanonicalEvent processing lifecycle (spec §3).
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusDeadLetter Status = "DEAD_LETTER"
)

// CanonicalEvent is the platform-wide envelope (spec §3, §6 "Canonical
// event headers").
type CanonicalEvent struct {
	ID             uuid.UUID
	EventType      string
	EventName      string
	TraceID        string
	CorrelationID  string
	IdempotencyKey string
	ActorID        uuid.UUID
	ActorType      string
	ResourceRef    string
	PayloadHash    string
	Timestamp      time.Time
	Status         Status
	RetryCount     int
}

// PublishRequest is the input to Bus.Publish.
type PublishRequest struct {
	EventType      string
	EventName      string
	TraceID        string
	CorrelationID  string
	IdempotencyKey string
	ActorID        uuid.UUID
	ActorType      string
	ResourceRef    string
	PayloadHash    string
}

// MaxRetries is the default retry ceiling before an event is moved to
// DEAD_LETTER (spec §4.7).
const MaxRetries = 5

// Handler processes a single canonical event. A non-nil error triggers the
// bounded-retry path.
type Handler func(event CanonicalEvent) error
