// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newBufferedHandler(level zerolog.Level) (*SlogHandler, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewSlogHandlerWithLogger(zerolog.New(&buf).Level(level)), &buf
}

func TestSlogHandler_Enabled(t *testing.T) {
	t.Parallel()

	h, _ := newBufferedHandler(zerolog.WarnLevel)
	ctx := context.Background()

	if h.Enabled(ctx, slog.LevelInfo) {
		t.Error("info enabled on warn logger")
	}
	if !h.Enabled(ctx, slog.LevelWarn) {
		t.Error("warn disabled on warn logger")
	}
	if !h.Enabled(ctx, slog.LevelError) {
		t.Error("error disabled on warn logger")
	}
}

func TestSlogHandler_Levels(t *testing.T) {
	restoreGlobal(t)
	zerolog.SetGlobalLevel(zerolog.TraceLevel)

	tests := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug, `"level":"debug"`},
		{slog.LevelInfo, `"level":"info"`},
		{slog.LevelWarn, `"level":"warn"`},
		{slog.LevelError, `"level":"error"`},
		{slog.LevelError + 4, `"level":"error"`},
	}
	for _, tt := range tests {
		h, buf := newBufferedHandler(zerolog.TraceLevel)
		slog.New(h).Log(context.Background(), tt.level, "msg")
		if !strings.Contains(buf.String(), tt.want) {
			t.Errorf("level %v: output = %s", tt.level, buf.String())
		}
	}
}

func TestSlogHandler_AttrTypes(t *testing.T) {
	t.Parallel()

	h, buf := newBufferedHandler(zerolog.TraceLevel)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	slog.New(h).Info("service restarted",
		slog.String("service", "monitor"),
		slog.Int("attempt", 3),
		slog.Uint64("id", 7),
		slog.Float64("backoff", 1.5),
		slog.Bool("fatal", false),
		slog.Duration("took", time.Second),
		slog.Time("at", at),
		slog.Any("err", errors.New("boom")),
		slog.Any("tags", []string{"a"}),
	)

	out := buf.String()
	for _, want := range []string{
		`"service":"monitor"`, `"attempt":3`, `"id":7`, `"backoff":1.5`,
		`"fatal":false`, `"took":`, `"at":`, `"err":"boom"`, `"tags":["a"]`,
		`"message":"service restarted"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}
}

func TestSlogHandler_WithAttrsAndGroups(t *testing.T) {
	t.Parallel()

	h, buf := newBufferedHandler(zerolog.TraceLevel)
	logger := slog.New(h).With("supervisor", "quacklock").WithGroup("event").With("layer", "capture").WithGroup("detail")

	logger.Info("terminated", slog.String("service", "hub"), slog.Group("restart", slog.Int("count", 2)))

	out := buf.String()
	if strings.Contains(out, `"event.supervisor"`) || strings.Contains(out, `"event.detail.layer"`) {
		t.Errorf("earlier attrs picked up later groups: %s", out)
	}
	for _, want := range []string{
		`"supervisor":"quacklock"`,
		`"event.layer":"capture"`,
		`"event.detail.service":"hub"`,
		`"event.detail.restart.count":2`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}
}

func TestSlogHandler_EmptyWithIsIdentity(t *testing.T) {
	t.Parallel()

	h, _ := newBufferedHandler(zerolog.InfoLevel)
	if h.WithAttrs(nil) != h {
		t.Error("WithAttrs(nil) should return the same handler")
	}
	if h.WithGroup("") != h {
		t.Error("WithGroup(\"\") should return the same handler")
	}
}

func TestNewComponentSlogLogger(t *testing.T) {
	restoreGlobal(t)

	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	NewComponentSlogLogger("Watermill").Info("publisher ready")
	if !strings.Contains(buf.String(), `"component":"watermill"`) {
		t.Errorf("output = %s", buf.String())
	}
}
