// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/quacklock/internal/keyrate"
	"github.com/tomtom215/quacklock/internal/logging"
	"github.com/tomtom215/quacklock/internal/metrics"
)

// NATSConfig configures the NATS notifier.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	Breaker       BreakerConfig
}

// NATSNotifier publishes events to <prefix>.<event type> using core NATS.
type NATSNotifier struct {
	publisher message.Publisher
	prefix    string
	breaker   *gobreaker.CircuitBreaker[interface{}]

	mu     sync.RWMutex
	closed bool
}

// NewNATSNotifier connects a Watermill NATS publisher. The connection is
// retried in the background if the server is not yet reachable.
func NewNATSNotifier(cfg NATSConfig) (*NATSNotifier, error) {
	logger := watermill.NewSlogLogger(logging.NewComponentSlogLogger("nats"))

	maxReconnects := cfg.MaxReconnects
	if maxReconnects == 0 {
		maxReconnects = -1
	}
	reconnectWait := cfg.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}

	natsOpts := []natsgo.Option{
		natsgo.Name("quacklock"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(maxReconnects),
		natsgo.ReconnectWait(reconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"url": logging.SanitizeURL(nc.ConnectedUrl()),
			})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	bc := cfg.Breaker
	if bc.Name == "" {
		bc = DefaultBreakerConfig("nats")
	}
	return &NATSNotifier{
		publisher: pub,
		prefix:    cfg.SubjectPrefix,
		breaker:   NewCircuitBreaker(bc),
	}, nil
}

func (*NATSNotifier) Name() string { return "nats" }

func (n *NATSNotifier) Enabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return !n.closed
}

// Subject returns the subject an event type is published on.
func (n *NATSNotifier) Subject(eventType keyrate.EventType) string {
	if n.prefix == "" {
		return string(eventType)
	}
	return n.prefix + "." + string(eventType)
}

// Send publishes the event as JSON. The message UUID doubles as Nats-Msg-Id.
func (n *NATSNotifier) Send(ctx context.Context, event *keyrate.DetectionEvent) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrClosed
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := message.NewMessage(uuid.NewString(), data)
	msg.SetContext(ctx)
	msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	msg.Metadata.Set("source", event.Source)
	msg.Metadata.Set("severity", string(event.Severity))
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		msg.Metadata.Set("correlation_id", id)
	}

	if err := executeWithBreaker(n.breaker, func() error {
		return n.publisher.Publish(n.Subject(event.EventType), msg)
	}); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	metrics.RecordNATSPublish()
	return nil
}

// Close shuts down the publisher.
func (n *NATSNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	return n.publisher.Close()
}
