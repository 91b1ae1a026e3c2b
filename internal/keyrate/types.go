// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package keyrate

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// Severity indicates how serious a detection event is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// rank orders severities from least (0) to most (2) severe.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	default:
		return false
	}
}

// ParseSeverity converts a case-insensitive name into a Severity.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

// EventType identifies the kind of detection event.
type EventType string

const (
	// EventTypeHighKeyRate is emitted when a tier's sustained-rate rule fires.
	EventTypeHighKeyRate EventType = "HighKeyRate"

	// EventTypeKeyRateStats is the periodic lifetime statistics summary.
	EventTypeKeyRateStats EventType = "KeyRateStats"
)

// Keys used in DetectionEvent.Data.
const (
	DataKeyRate        = "KeyRate"
	DataDuration       = "Duration"
	DataTier           = "Tier"
	DataAverageKeyRate = "AverageKeyRate"
	DataMaxKeyRate     = "MaxKeyRate"
	DataActiveSamples  = "ActiveSamples"
)

// DefaultSource is the Source field stamped on events when none is configured.
const DefaultSource = "KeyRateMonitor"

// DetectionEvent is the immutable value handed to a Sink.
type DetectionEvent struct {
	Source    string         `json:"source"`
	EventType EventType      `json:"event_type"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Severity  Severity       `json:"severity"`
	Data      map[string]any `json:"data,omitempty"`
}

// KeyNotification is a single raw key transition from an input source.
type KeyNotification struct {
	VirtualKey uint16    `json:"vk"`
	Down       bool      `json:"down"`
	Timestamp  time.Time `json:"ts"`
}

// RateSample is the number of genuine key presses observed in one interval.
type RateSample struct {
	Count       int       `json:"count"`
	IntervalEnd time.Time `json:"interval_end"`
}

// KeyHandler receives key notifications from a Source.
type KeyHandler func(KeyNotification)

// Source delivers key notifications to a handler until the returned
// registration is closed. Notifications for a given key arrive in order.
type Source interface {
	Register(handler KeyHandler) (io.Closer, error)
}

// Sink consumes detection events. Implementations must be safe for concurrent
// use: the sampling and statistics loops call it from different goroutines.
type Sink interface {
	OnDetectionEvent(ctx context.Context, event DetectionEvent) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, event DetectionEvent) error

// OnDetectionEvent calls f.
func (f SinkFunc) OnDetectionEvent(ctx context.Context, event DetectionEvent) error {
	return f(ctx, event)
}
