// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tomtom215/regionsync/internal/models"
)

var (
	// Reconcile Metrics
	ReconcileDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "regionsync_reconcile_duration_seconds",
			Help:    "Duration of reconcile passes in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scope_kind"},
	)

	ReconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regionsync_reconcile_total",
			Help: "Total number of reconcile passes by outcome",
		},
		[]string{"scope_kind", "outcome"}, // "noop", "synced", "mismatch", "transport", "permission", "cancelled", "error"
	)

	ReconcileAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regionsync_reconcile_attempts_total",
			Help: "Total number of reconcile attempts including retries",
		},
		[]string{"scope_kind"},
	)

	ObjectsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regionsync_objects_fetched_total",
			Help: "Total number of objects fetched and stored by reconciliation",
		},
		[]string{"scope_kind"},
	)

	ObjectsRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regionsync_objects_removed_total",
			Help: "Total number of objects removed by reconciliation",
		},
		[]string{"scope_kind"},
	)

	// Live Event Metrics
	EventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regionsync_events_total",
			Help: "Total number of live events by type and outcome",
		},
		[]string{"type", "outcome"}, // "applied", "noop", "rejected", "invalid"
	)

	// Decode Metrics
	DecodeDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regionsync_decode_dropped_total",
			Help: "Total number of collection elements dropped by tolerant decoding",
		},
		[]string{"kind"},
	)

	PatchDecodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "regionsync_patch_decode_failures_total",
			Help: "Total number of merge patches whose result failed to decode",
		},
	)

	// Region Metrics
	ActiveRegions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "regionsync_active_regions",
			Help: "Current number of active regions",
		},
		[]string{"scope_kind"},
	)

	RegionObjects = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "regionsync_region_objects",
			Help: "Number of objects held by regions of a scope kind",
		},
		[]string{"scope_kind"},
	)

	ObserverNotifications = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "regionsync_observer_notifications_total",
			Help: "Total number of observer notifications delivered",
		},
	)

	// Push Channel Metrics
	PushConnected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "regionsync_push_connected",
			Help: "Push channel connection state (1 = connected)",
		},
		[]string{"source"},
	)

	PushReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regionsync_push_reconnects_total",
			Help: "Total number of push channel reconnect attempts",
		},
		[]string{"source"},
	)

	PushFramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regionsync_push_frames_total",
			Help: "Total number of push frames received",
		},
		[]string{"source"},
	)

	// Transport Metrics
	TransportRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "regionsync_transport_request_duration_seconds",
			Help:    "Duration of remote store requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	TransportErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regionsync_transport_errors_total",
			Help: "Total number of failed remote store requests",
		},
		[]string{"operation", "error_type"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "regionsync_circuit_breaker_state",
			Help: "Circuit breaker state (0 = closed, 1 = half-open, 2 = open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regionsync_circuit_breaker_requests_total",
			Help: "Total number of requests through the circuit breaker",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regionsync_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Journal Metrics
	JournalEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regionsync_journal_entries_total",
			Help: "Total number of rejected events recorded in the journal",
		},
		[]string{"reason"},
	)

	// Watch Metrics
	WatchClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "regionsync_watch_clients",
			Help: "Number of connected region watch clients",
		},
	)

	WatchSlowClients = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regionsync_watch_slow_clients_total",
			Help: "Total number of watch clients disconnected for falling behind",
		},
		[]string{"scope_kind"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regionsync_api_requests_total",
			Help: "Total number of debug API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "regionsync_api_request_duration_seconds",
			Help:    "Debug API request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"method", "route"},
	)
)

// ReconcileOutcome classifies a reconcile result for labeling.
func ReconcileOutcome(noop bool, err error) string {
	var pe *models.ScopePermissionError
	var te *models.TransportError
	switch {
	case err == nil && noop:
		return "noop"
	case err == nil:
		return "synced"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), errors.Is(err, models.ErrRegionClosed):
		return "cancelled"
	case errors.As(err, &pe):
		return "permission"
	case errors.Is(err, models.ErrHashMismatch):
		return "mismatch"
	case errors.As(err, &te):
		return "transport"
	default:
		return "error"
	}
}

// RecordReconcile records one completed reconcile call, after retries.
func RecordReconcile(kind models.ScopeKind, duration time.Duration, fetched, removed int, noop bool, err error) {
	k := string(kind)
	ReconcileDuration.WithLabelValues(k).Observe(duration.Seconds())
	ReconcileTotal.WithLabelValues(k, ReconcileOutcome(noop, err)).Inc()
	if fetched > 0 {
		ObjectsFetched.WithLabelValues(k).Add(float64(fetched))
	}
	if removed > 0 {
		ObjectsRemoved.WithLabelValues(k).Add(float64(removed))
	}
}

// RecordReconcileAttempt counts one reconcile attempt.
func RecordReconcileAttempt(kind models.ScopeKind) {
	ReconcileAttempts.WithLabelValues(string(kind)).Inc()
}

// RecordEvent records the outcome of one live event.
func RecordEvent(eventType models.EventType, outcome string) {
	EventsApplied.WithLabelValues(string(eventType), outcome).Inc()
}

// RecordDecodeDrop records an element dropped by tolerant decoding.
func RecordDecodeDrop(kind string) {
	DecodeDropped.WithLabelValues(kind).Inc()
}

// RecordPatchDecodeFailure records a merge patch whose result did not decode.
func RecordPatchDecodeFailure() {
	PatchDecodeFailures.Inc()
}

// RecordTransportRequest records a remote store request.
func RecordTransportRequest(operation string, duration time.Duration, err error) {
	TransportRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err == nil {
		return
	}
	errorType := "other"
	var pe *models.ScopePermissionError
	var te *models.TransportError
	switch {
	case errors.As(err, &pe):
		errorType = "permission"
	case errors.Is(err, context.DeadlineExceeded):
		errorType = "timeout"
	case errors.As(err, &te) && te.StatusCode >= 500:
		errorType = "server"
	case errors.As(err, &te) && te.StatusCode != 0:
		errorType = "client"
	case errors.As(err, &te):
		errorType = "network"
	}
	TransportErrors.WithLabelValues(operation, errorType).Inc()
}

// SetPushConnected updates the connection gauge of a push source.
func SetPushConnected(source string, connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	PushConnected.WithLabelValues(source).Set(v)
}

// RecordAPIRequest records a debug API request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
