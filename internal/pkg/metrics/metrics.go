// Package metrics defines and registers all custom Prometheus metrics for the
// IAM service. It is the single source of truth for metric names, labels, and
// help strings.
//
// Metrics are registered with the default registry at package init through
// promauto, so /metrics only needs promhttp.Handler().
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "iam"

// ── HTTP metrics ──────────────────────────────────────────────────────────────

// HTTPRequestsTotal counts served requests.
// Labels:
//   - method: HTTP verb
//   - path: the route template (e.g. "/api/v1/users/:id"), never the raw URL
//   - status: response status code
var HTTPRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests served.",
	},
	[]string{"method", "path", "status"},
)

// HTTPRequestDuration measures request latency from the first middleware to the
// response being written.
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path"},
)

// ── Cache metrics ─────────────────────────────────────────────────────────────

// CacheLookupsTotal counts user cache lookups.
// Label:
//   - result: "hit", "miss" or "error"
var CacheLookupsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Total number of user cache lookups, labelled by result.",
	},
	[]string{"result"},
)

// CacheWriteFailuresTotal counts best-effort cache populations that failed.
var CacheWriteFailuresTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_write_failures_total",
		Help:      "Total number of cache writes that failed and were skipped.",
	},
)

// ── Event metrics ─────────────────────────────────────────────────────────────

// EventsPublishedTotal counts publish outcomes.
// Labels:
//   - queue: destination queue (e.g. "user.created")
//   - result: "ok", "error" or "dropped" (async buffer full)
var EventsPublishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Total number of events handed to the broker, labelled by outcome.",
	},
	[]string{"queue", "result"},
)

// EventsQueueDepth tracks events waiting in each async dispatcher worker.
var EventsQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "events_queue_depth",
		Help:      "Current number of events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// ── Resilience metrics ────────────────────────────────────────────────────────

// CircuitBreakerState exposes the breaker state per guarded operation:
// 0 = closed, 1 = half-open, 2 = open.
var CircuitBreakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
	},
	[]string{"operation"},
)

// RetriesTotal counts retry attempts (not first attempts) per operation.
var RetriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retries_total",
		Help:      "Total number of retried attempts per guarded operation.",
	},
	[]string{"operation"},
)

// ── Domain metrics ────────────────────────────────────────────────────────────

// UsersCreatedTotal counts committed user inserts.
var UsersCreatedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "users_created_total",
		Help:      "Total number of users created.",
	},
)
