// Package observability holds the process-wide Prometheus metrics and the
// structured logger.
//
// Metrics are package-level promauto collectors, registered on the default
// registry at init and served by the /metrics endpoint.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kromer"

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

// LedgerTransactions counts committed ledger entries by type.
var LedgerTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "transactions_total",
	Help:      "Total committed ledger entries by transaction type.",
}, []string{"type"})

// LedgerRejections counts refused ledger operations by error code.
var LedgerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "rejections_total",
	Help:      "Total ledger operations refused, by error code.",
}, []string{"code"})

// LedgerCommitDuration tracks how long a storage commit takes.
var LedgerCommitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "commit_duration_seconds",
	Help:      "Duration of atomic ledger commits.",
	Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
})

// WalletsCreated counts wallets created on first authentication or by key generation.
var WalletsCreated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "wallets_created_total",
	Help:      "Total wallets created.",
})

// ─── Session Metrics ────────────────────────────────────────────────────────

// SessionsActive tracks sessions held by the registry, pending or connected.
var SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "sessions",
	Name:      "active",
	Help:      "Number of sessions in the registry.",
})

// SessionsExpired counts pending sessions removed by the sweeper.
var SessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "sessions",
	Name:      "expired_total",
	Help:      "Total pending sessions that expired before connecting.",
})

// ProtocolRequests counts websocket requests by type and outcome.
var ProtocolRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "protocol",
	Name:      "requests_total",
	Help:      "Total websocket requests by type and outcome.",
}, []string{"type", "outcome"})

// ─── Event Metrics ──────────────────────────────────────────────────────────

// EventsPublished counts events entering the bus by kind.
var EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "events",
	Name:      "published_total",
	Help:      "Total events published by kind.",
}, []string{"kind"})

// EventQueueDepth tracks undelivered events waiting in the bus.
var EventQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "events",
	Name:      "queue_depth",
	Help:      "Number of events waiting for dispatch.",
})

// EventDeliveries counts per-session event sends by result.
var EventDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "events",
	Name:      "deliveries_total",
	Help:      "Total per-session event sends by result.",
}, []string{"result"})

// ─── HTTP Metrics ───────────────────────────────────────────────────────────

// HTTPRequests counts REST requests by route pattern and status.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "Total HTTP requests.",
}, []string{"method", "path", "status"})

// HTTPDuration tracks REST request latency.
var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request duration in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "path"})
