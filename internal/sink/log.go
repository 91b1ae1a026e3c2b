// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package sink

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tomtom215/quacklock/internal/keyrate"
	"github.com/tomtom215/quacklock/internal/logging"
)

// LogNotifier writes one structured log line per event. Critical events log
// at error level, warnings at warn, everything else at info.
type LogNotifier struct{}

// NewLogNotifier creates a log notifier.
func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (*LogNotifier) Name() string  { return "log" }
func (*LogNotifier) Enabled() bool { return true }

// Send logs the event using the logger carried by ctx.
func (*LogNotifier) Send(ctx context.Context, event *keyrate.DetectionEvent) error {
	logger := logging.Ctx(ctx)
	var e *zerolog.Event
	switch event.Severity {
	case keyrate.SeverityCritical:
		e = logger.Error()
	case keyrate.SeverityWarning:
		e = logger.Warn()
	default:
		e = logger.Info()
	}
	e.Str("source", event.Source).
		Str("event_type", string(event.EventType)).
		Str("severity", string(event.Severity)).
		Time("event_time", event.Timestamp).
		Fields(event.Data).
		Msg(event.Message)
	return nil
}
