// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/quacklock/internal/keyrate"
	"github.com/tomtom215/quacklock/internal/logging"
)

// WebhookConfig configures the webhook notifier.
type WebhookConfig struct {
	URL     string
	Headers map[string]string
	// RateLimit is the minimum spacing between requests. Zero disables pacing.
	RateLimit time.Duration
	Timeout   time.Duration
	// EventTypes restricts delivery; empty means every type.
	EventTypes []string
	Breaker    BreakerConfig
}

// WebhookPayload is the JSON body posted to the endpoint.
type WebhookPayload struct {
	Event     *keyrate.DetectionEvent `json:"event"`
	EventType string                  `json:"event_type"`
	Source    string                  `json:"source"` // quacklock
	SentAt    time.Time               `json:"sent_at"`
}

// WebhookNotifier posts events to an HTTP endpoint.
type WebhookNotifier struct {
	url        string
	headers    map[string]string
	eventTypes map[keyrate.EventType]bool
	client     *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[interface{}]
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Every(cfg.RateLimit)
	}
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	var types map[keyrate.EventType]bool
	if len(cfg.EventTypes) > 0 {
		types = make(map[keyrate.EventType]bool, len(cfg.EventTypes))
		for _, t := range cfg.EventTypes {
			types[keyrate.EventType(t)] = true
		}
	}
	bc := cfg.Breaker
	if bc.Name == "" {
		bc = DefaultBreakerConfig("webhook")
	}

	logging.Debug().
		Str("url", logging.SanitizeURL(cfg.URL)).
		Interface("headers", logging.SanitizeHeaders(headers)).
		Msg("webhook notifier configured")

	return &WebhookNotifier{
		url:        cfg.URL,
		headers:    headers,
		eventTypes: types,
		client:     &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		breaker:    NewCircuitBreaker(bc),
	}
}

func (*WebhookNotifier) Name() string    { return "webhook" }
func (n *WebhookNotifier) Enabled() bool { return n.url != "" }

// Send posts the event, waiting for the rate limiter first.
func (n *WebhookNotifier) Send(ctx context.Context, event *keyrate.DetectionEvent) error {
	if n.eventTypes != nil && !n.eventTypes[event.EventType] {
		return ErrSkipped
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("webhook rate limit wait: %w", err)
	}

	body, err := json.Marshal(WebhookPayload{
		Event:     event,
		EventType: string(event.EventType),
		Source:    "quacklock",
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	return executeWithBreaker(n.breaker, func() error {
		return n.post(ctx, body)
	})
}

func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "quacklock")
	for k, v := range n.headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
