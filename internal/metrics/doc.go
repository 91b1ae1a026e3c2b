// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

/*
Package metrics provides Prometheus metrics collection and export for observability.

All collectors are registered with the default registry through promauto and
exposed at /metrics by the API server:

	curl http://127.0.0.1:9477/metrics

# Available Metrics

Key rate:
  - quacklock_keyrate_samples_total: samples taken (counter)
  - quacklock_keystrokes_total: genuine key presses (counter)
  - quacklock_keyrate_last: count in the latest sample (gauge)
  - quacklock_keyrate_per_sample: non-zero sample counts (histogram)
  - quacklock_tier_consecutive_violations: consecutive count per tier (gauge)
    Labels: tier

Detection and delivery:
  - quacklock_detection_events_total: events emitted (counter)
    Labels: event_type, severity
  - quacklock_sink_errors_total: failed deliveries (counter)
    Labels: reason
  - quacklock_notifier_sends_total: notifier results (counter)
    Labels: notifier, result
  - quacklock_notifier_duration_seconds: notifier latency (histogram)
  - quacklock_workstation_locks_total: lock attempts (counter)
  - quacklock_journal_entries_total: persisted events (counter)
  - quacklock_nats_messages_published_total: NATS publishes (counter)

API and WebSocket:
  - quacklock_api_requests_total, quacklock_api_request_duration_seconds
  - quacklock_api_active_requests, quacklock_api_rate_limit_hits_total
  - quacklock_websocket_connections, quacklock_websocket_messages_sent_total
  - quacklock_websocket_errors_total

Circuit breaker:
  - quacklock_circuit_breaker_state (0=closed, 1=half-open, 2=open)
  - quacklock_circuit_breaker_requests_total
  - quacklock_circuit_breaker_state_transitions_total

# Usage

	metrics.RecordSample(count)
	metrics.RecordDetection("HighKeyRate", "critical")
	metrics.RecordNotifierSend("webhook", time.Since(start), err)

# Thread Safety

All functions are safe for concurrent use; Prometheus collectors are
internally synchronized.
*/
package metrics
