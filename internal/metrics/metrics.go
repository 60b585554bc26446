// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - Sync pipeline runs, pages, and upserts
// - Remote CRM API retries and circuit breaker state
// - Mirror store query errors
// - API endpoint latency and throughput

var (
	// Sync Pipeline Metrics
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmlens_sync_runs_total",
			Help: "Total number of sync pipeline runs by result",
		},
		[]string{"result"}, // "completed", "failed", "rejected"
	)

	SyncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crmlens_sync_run_duration_seconds",
			Help:    "Duration of complete sync pipeline runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	SyncPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmlens_sync_pages_total",
			Help: "Total number of remote pages fetched",
		},
		[]string{"object", "mode"}, // object: "contacts"/"deals", mode: "delta"/"full"
	)

	SyncUpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmlens_sync_upserts_total",
			Help: "Total number of mirror rows upserted",
		},
		[]string{"object"},
	)

	SyncDeltaFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crmlens_sync_delta_fallbacks_total",
			Help: "Total number of delta runs that fell back to full sync",
		},
	)

	// Remote CRM API Metrics
	RemoteRequestRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmlens_remote_request_retries_total",
			Help: "Total number of retried remote API requests",
		},
		[]string{"label"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crmlens_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Mirror Store Metrics
	StoreQueryErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmlens_store_query_errors_total",
			Help: "Total number of mirror store query errors",
		},
		[]string{"operation"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crmlens_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crmlens_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordAPIRequest records metrics for a completed API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
