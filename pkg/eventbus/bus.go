package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// channelName is the Redis pub/sub channel canonical events are pushed on,
// adapted from the teacher's escalation.Engine subscribing to
// "nightowl:alert:ack".
const channelName = "sovereignd:events"

// pushNotification is the small payload published on the Redis channel;
// workers still load the authoritative row from Store before processing,
// so this only wakes up idle workers rather than carrying the full event.
type pushNotification struct {
	ID string `json:"id"`
}

// Bus publishes canonical events durably (Store, the table of record for
// at-least-once redelivery) and pushes a wake-up notification over Redis
// pub/sub so workers do not have to poll on an empty queue (spec §4.7,
// §9 "Subscriptions -> push semantics").
type Bus struct {
	store *Store
	rdb   *redis.Client
	log   *slog.Logger
}

// NewBus constructs a Bus.
func NewBus(store *Store, rdb *redis.Client, log *slog.Logger) *Bus {
	return &Bus{store: store, rdb: rdb, log: log}
}

// Publish persists req idempotently and wakes up workers. It never drops
// an event: if the Redis publish fails, the event is still durable in
// Store and will be picked up by the next poll.
func (b *Bus) Publish(ctx context.Context, req PublishRequest) (CanonicalEvent, error) {
	event, err := b.store.Insert(ctx, req)
	if err != nil {
		return CanonicalEvent{}, fmt.Errorf("persisting canonical event: %w", err)
	}

	payload, _ := json.Marshal(pushNotification{ID: event.ID.String()})
	if err := b.rdb.Publish(ctx, channelName, payload).Err(); err != nil {
		b.log.Warn("event bus push notification failed, relying on poll fallback", "error", err, "event_id", event.ID)
	}

	return event, nil
}

// Subscribe returns the Redis pub/sub channel for wake-up notifications.
func (b *Bus) Subscribe(ctx context.Context) *redis.PubSub {
	return b.rdb.Subscribe(ctx, channelName)
}
