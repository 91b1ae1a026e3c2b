// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package sink

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/quacklock/internal/keyrate"
)

func TestWebhookNotifier_Send(t *testing.T) {
	t.Parallel()

	var received WebhookPayload
	var auth, contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{
		URL:     server.URL,
		Headers: map[string]string{"Authorization": "Bearer secret"},
	})
	if n.Name() != "webhook" || !n.Enabled() {
		t.Fatalf("Name()=%q Enabled()=%v", n.Name(), n.Enabled())
	}

	ev := testEvent()
	if err := n.Send(context.Background(), &ev); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if auth != "Bearer secret" {
		t.Errorf("Authorization = %q", auth)
	}
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q", contentType)
	}
	if received.Source != "quacklock" || received.EventType != "HighKeyRate" {
		t.Errorf("payload source=%q event_type=%q", received.Source, received.EventType)
	}
	if received.Event == nil || received.Event.Message != ev.Message {
		t.Errorf("payload event = %+v", received.Event)
	}
}

func TestWebhookNotifier_EventTypeFilter(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: server.URL, EventTypes: []string{"HighKeyRate"}})
	stats := keyrate.DetectionEvent{EventType: keyrate.EventTypeKeyRateStats}
	if err := n.Send(context.Background(), &stats); !errors.Is(err, ErrSkipped) {
		t.Errorf("Send(stats) = %v, want ErrSkipped", err)
	}
	ev := testEvent()
	if err := n.Send(context.Background(), &ev); err != nil {
		t.Errorf("Send(detection) = %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: server.URL})
	ev := testEvent()
	if err := n.Send(context.Background(), &ev); err == nil {
		t.Error("Send = nil, want error for 502")
	}
}

func TestWebhookNotifier_BreakerOpens(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{
		URL: server.URL,
		Breaker: BreakerConfig{
			Name:             "webhook-test-open",
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          time.Hour,
			FailureThreshold: 2,
		},
	})
	ev := testEvent()
	for i := 0; i < 2; i++ {
		_ = n.Send(context.Background(), &ev)
	}
	err := n.Send(context.Background(), &ev)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("third Send = %v, want ErrOpenState", err)
	}
	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want 2", hits.Load())
	}
}

func TestWebhookNotifier_RateLimitHonorsContext(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: server.URL, RateLimit: time.Hour})
	ev := testEvent()
	if err := n.Send(context.Background(), &ev); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := n.Send(ctx, &ev); err == nil {
		t.Error("second Send = nil, want rate limit error")
	}
}

func TestWebhookNotifier_DisabledWithoutURL(t *testing.T) {
	t.Parallel()

	if NewWebhookNotifier(WebhookConfig{}).Enabled() {
		t.Error("Enabled() = true without URL")
	}
}
