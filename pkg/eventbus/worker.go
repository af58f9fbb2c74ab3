package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/datasovereign/platform-core/internal/telemetry"
)

// baseBackoff is the unit of the exponential backoff applied between
// retries: attempt N waits baseBackoff * 2^N, capped by maxBackoff.
const (
	baseBackoff = 2 * time.Second
	maxBackoff  = 5 * time.Minute
)

func backoffFor(retryCount int) time.Duration {
	d := baseBackoff
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// Worker drains PENDING/retry-eligible FAILED events and dispatches them to
// registered handlers, with bounded exponential-backoff retry and a
// DEAD_LETTER terminal state (spec §4.7). Events sharing a traceId are
// processed in producer order; across traces no order is guaranteed (spec
// §5 "Ordering").
type Worker struct {
	store       *Store
	bus         *Bus
	log         *slog.Logger
	handlers    map[string]Handler
	pollEvery   time.Duration
	batchSize   int
	concurrency int
}

// NewWorker constructs a Worker. Register handlers with On before Run.
func NewWorker(store *Store, bus *Bus, log *slog.Logger) *Worker {
	return &Worker{
		store:       store,
		bus:         bus,
		log:         log,
		handlers:    make(map[string]Handler),
		pollEvery:   2 * time.Second,
		batchSize:   50,
		concurrency: 8,
	}
}

// On registers the handler invoked for events of the given eventType.
func (w *Worker) On(eventType string, h Handler) {
	w.handlers[eventType] = h
}

// Run processes events until ctx is cancelled. It wakes on a Redis
// pub/sub notification or a fallback poll interval, whichever comes
// first, matching the teacher's escalation.Engine select-on-both shape.
func (w *Worker) Run(ctx context.Context) error {
	pubsub := w.bus.Subscribe(ctx)
	defer pubsub.Close()
	wakeCh := pubsub.Channel()

	ticker := time.NewTicker(w.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-wakeCh:
			w.drain(ctx)
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain claims a batch and fans it out, one goroutine per trace so that
// same-trace events stay strictly ordered while different traces process
// concurrently.
func (w *Worker) drain(ctx context.Context) {
	events, err := w.store.ClaimPending(ctx, w.batchSize)
	if err != nil {
		w.log.Error("claiming pending canonical events", "error", err)
		return
	}
	if len(events) == 0 {
		return
	}

	byTrace := make(map[string][]CanonicalEvent)
	for _, e := range events {
		byTrace[e.TraceID] = append(byTrace[e.TraceID], e)
	}

	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup
	for _, group := range byTrace {
		group := group
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			for _, e := range group {
				w.process(ctx, e)
			}
		}()
	}
	wg.Wait()
}

func (w *Worker) process(ctx context.Context, event CanonicalEvent) {
	handler, ok := w.handlers[event.EventType]
	if !ok {
		// No handler registered for this event type yet; leave it
		// PROCESSING->FAILED so it is retried once a handler exists,
		// rather than silently completing it.
		w.fail(ctx, event)
		return
	}

	if err := handler(event); err != nil {
		w.log.Error("canonical event handler failed", "event_id", event.ID, "event_type", event.EventType, "error", err)
		w.fail(ctx, event)
		return
	}

	if err := w.store.MarkCompleted(ctx, event.ID); err != nil {
		w.log.Error("marking canonical event completed", "event_id", event.ID, "error", err)
	}
}

func (w *Worker) fail(ctx context.Context, event CanonicalEvent) {
	status, err := w.store.MarkFailed(ctx, event.ID, backoffFor(event.RetryCount))
	if err != nil {
		w.log.Error("marking canonical event failed", "event_id", event.ID, "error", err)
		return
	}
	telemetry.EventBusRetriesTotal.WithLabelValues(event.EventType).Inc()
	if status == StatusDeadLetter {
		telemetry.EventBusDeadLetterTotal.WithLabelValues(event.EventType).Inc()
		w.log.Warn("canonical event moved to dead letter", "event_id", event.ID, "event_type", event.EventType)
	}
}
