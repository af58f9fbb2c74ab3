// Package telemetry composes the Prometheus metrics registry the way the
// teacher's internal/telemetry.NewMetricsRegistry does: Go/process
// collectors plus service-specific counters and histograms, one package
// rather than the teacher's two-module logger/metrics split (the split
// only existed because of the teacher's vendored companion library).
package telemetry

import (
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration records ops-surface request latency by route.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "sovereignd",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// ScreeningDecisionsTotal counts screening outcomes by decision (spec §4.1).
var ScreeningDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sovereignd",
		Subsystem: "screening",
		Name:      "decisions_total",
		Help:      "Total number of screening decisions by outcome.",
	},
	[]string{"decision"},
)

// PolicyReviewDecisionsTotal counts coordinator policy review outcomes
// (spec §4.2).
var PolicyReviewDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sovereignd",
		Subsystem: "policy_review",
		Name:      "decisions_total",
		Help:      "Total number of coordinator policy review decisions by outcome.",
	},
	[]string{"decision"},
)

// PRBConsumedRatio tracks consumed/allocated per campaign after each
// successful consume call (spec §4.4 gate 3).
var PRBConsumedRatio = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "sovereignd",
		Subsystem: "prb",
		Name:      "consumed_ratio",
		Help:      "Fraction of a campaign's Privacy Risk Budget consumed after each successful consume call.",
		Buckets:   []float64{0.1, 0.25, 0.5, 0.75, 0.9, 0.95, 1.0},
	},
	[]string{"campaign_id"},
)

// PRBDeniedTotal counts PRB_EXHAUSTED denials (spec §4.4 gate 3, Property 9).
var PRBDeniedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "sovereignd",
		Subsystem: "prb",
		Name:      "denied_total",
		Help:      "Total number of plan admissions denied for PRB exhaustion.",
	},
)

// EscrowTransitionsTotal counts escrow state machine transitions (spec §4.6).
var EscrowTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sovereignd",
		Subsystem: "escrow",
		Name:      "transitions_total",
		Help:      "Total number of escrow state transitions by target status.",
	},
	[]string{"status"},
)

// YCIssuedTotal sums YC credits issued from settlement (spec §4.6).
var YCIssuedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "sovereignd",
		Subsystem: "yc",
		Name:      "issued_total",
		Help:      "Total YC credit amount issued from settlements.",
	},
)

// YCTransferRejectedTotal counts non-transferability rejections (Property 8).
var YCTransferRejectedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "sovereignd",
		Subsystem: "yc",
		Name:      "transfer_rejected_total",
		Help:      "Total number of peer-transfer attempts rejected by the non-transferability gate.",
	},
)

// EventBusRetriesTotal and EventBusDeadLetterTotal track canonical event
// bus health (spec §4.7).
var EventBusRetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sovereignd",
		Subsystem: "eventbus",
		Name:      "retries_total",
		Help:      "Total number of canonical event processing retries by event type.",
	},
	[]string{"event_type"},
)

var EventBusDeadLetterTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sovereignd",
		Subsystem: "eventbus",
		Name:      "dead_letter_total",
		Help:      "Total number of canonical events moved to DEAD_LETTER by event type.",
	},
	[]string{"event_type"},
)

// CapsuleShredsTotal counts crypto-shred operations, split by whether the
// shred actually destroyed a key or found one already shredded (idempotent
// no-op), for spec §4.4's sweep-routine observability.
var CapsuleShredsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sovereignd",
		Subsystem: "capsule",
		Name:      "shreds_total",
		Help:      "Total number of crypto-shred operations by outcome.",
	},
	[]string{"outcome"},
)

// AuditChainAnchorsTotal counts completed Merkle anchoring batches (spec §4.5).
var AuditChainAnchorsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "sovereignd",
		Subsystem: "audit",
		Name:      "anchors_total",
		Help:      "Total number of Merkle anchoring batches completed.",
	},
)

// All returns every service-specific collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		ScreeningDecisionsTotal,
		PolicyReviewDecisionsTotal,
		PRBConsumedRatio,
		PRBDeniedTotal,
		EscrowTransitionsTotal,
		YCIssuedTotal,
		YCTransferRejectedTotal,
		EventBusRetriesTotal,
		EventBusDeadLetterTotal,
		CapsuleShredsTotal,
		AuditChainAnchorsTotal,
	}
}

// NewMetricsRegistry composes a fresh Prometheus registry with the Go
// runtime/process collectors plus every service-specific collector, the
// way the teacher's internal/telemetry.NewMetricsRegistry does.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}

// NewLogger builds the process-wide structured logger, JSON in production
// / text in development, the way the teacher's
// internal/telemetry.NewLogger(format, level) does.
func NewLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
