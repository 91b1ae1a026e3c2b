// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the detection pipeline:
// - Key rate sampling and tier state
// - Detection events and sink delivery
// - Notifier fan-out (webhook, NATS, journal, lock)
// - API and WebSocket traffic
// - Circuit breaker state

var (
	// Key Rate Metrics
	KeyRateSamples = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quacklock_keyrate_samples_total",
			Help: "Total number of rate samples taken",
		},
	)

	KeyStrokes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quacklock_keystrokes_total",
			Help: "Total number of genuine key presses counted",
		},
	)

	KeyRateLast = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quacklock_keyrate_last",
			Help: "Key presses observed in the most recent sample interval",
		},
	)

	KeyRateDistribution = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quacklock_keyrate_per_sample",
			Help:    "Distribution of non-zero per-sample key counts",
			Buckets: []float64{1, 2, 4, 6, 9, 12, 15, 20, 30, 50, 100},
		},
	)

	TierConsecutive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quacklock_tier_consecutive_violations",
			Help: "Current consecutive qualifying samples per tier",
		},
		[]string{"tier"},
	)

	// Detection Metrics
	DetectionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quacklock_detection_events_total",
			Help: "Total number of detection events emitted",
		},
		[]string{"event_type", "severity"},
	)

	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quacklock_sink_errors_total",
			Help: "Total number of failed sink deliveries",
		},
		[]string{"reason"}, // "error", "timeout", "panic"
	)

	// Notifier Metrics
	NotifierSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quacklock_notifier_sends_total",
			Help: "Total number of notifier deliveries by result",
		},
		[]string{"notifier", "result"}, // result: "success", "failure", "skipped"
	)

	NotifierDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quacklock_notifier_duration_seconds",
			Help:    "Notifier delivery duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"notifier"},
	)

	WorkstationLocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quacklock_workstation_locks_total",
			Help: "Total number of workstation lock attempts",
		},
		[]string{"result"}, // "locked", "cooldown", "failed"
	)

	JournalEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quacklock_journal_entries_total",
			Help: "Total number of events written to the journal",
		},
		[]string{"store"}, // "badger", "fallback"
	)

	NATSMessagesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quacklock_nats_messages_published_total",
			Help: "Total number of events published to NATS",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quacklock_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quacklock_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quacklock_api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quacklock_api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quacklock_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quacklock_websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quacklock_websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quacklock_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quacklock_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quacklock_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordSample records one drained rate sample
func RecordSample(count int) {
	KeyRateSamples.Inc()
	KeyRateLast.Set(float64(count))
	if count > 0 {
		KeyStrokes.Add(float64(count))
		KeyRateDistribution.Observe(float64(count))
	}
}

// SetTierConsecutive publishes a tier's current consecutive count
func SetTierConsecutive(tier string, consecutive int) {
	TierConsecutive.WithLabelValues(tier).Set(float64(consecutive))
}

// RecordDetection records an emitted detection event
func RecordDetection(eventType, severity string) {
	DetectionEvents.WithLabelValues(eventType, severity).Inc()
}

// RecordSinkError records a failed sink delivery
func RecordSinkError(reason string) {
	SinkErrors.WithLabelValues(reason).Inc()
}

// RecordNotifierSend records one notifier delivery and its duration.
// A nil error counts as success.
func RecordNotifierSend(notifier string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	NotifierSends.WithLabelValues(notifier, result).Inc()
	NotifierDuration.WithLabelValues(notifier).Observe(duration.Seconds())
}

// RecordNotifierSkipped records a notifier that declined an event
// (rate limited, cooldown, or filtered by event type).
func RecordNotifierSkipped(notifier string) {
	NotifierSends.WithLabelValues(notifier, "skipped").Inc()
}

// RecordWorkstationLock records a lock attempt result
func RecordWorkstationLock(result string) {
	WorkstationLocks.WithLabelValues(result).Inc()
}

// RecordJournalEntry records an event persisted to the given store
func RecordJournalEntry(store string) {
	JournalEntries.WithLabelValues(store).Inc()
}

// RecordNATSPublish records a message being published to NATS
func RecordNATSPublish() {
	NATSMessagesPublished.Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordCircuitBreakerState publishes a breaker state by its gobreaker name
// ("closed", "half-open", "open").
func RecordCircuitBreakerState(name, state string) {
	CircuitBreakerState.WithLabelValues(name).Set(circuitStateValue(state))
}

// RecordCircuitBreakerTransition records a breaker state change
func RecordCircuitBreakerTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	RecordCircuitBreakerState(name, to)
}

// RecordCircuitBreakerRequest records a request result through a breaker
func RecordCircuitBreakerRequest(name, result string) {
	CircuitBreakerRequests.WithLabelValues(name, result).Inc()
}

func circuitStateValue(state string) float64 {
	switch strings.ToLower(state) {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
