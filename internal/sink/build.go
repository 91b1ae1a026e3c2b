// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package sink

import (
	"errors"
	"fmt"

	"github.com/tomtom215/quacklock/internal/config"
	"github.com/tomtom215/quacklock/internal/logging"
)

// Pipeline is the dispatcher built from configuration plus the journal it
// writes to (nil when the journal is disabled).
type Pipeline struct {
	Dispatcher *Dispatcher
	Journal    *Journal
}

// Close closes the dispatcher and with it every notifier.
func (p *Pipeline) Close() error {
	return p.Dispatcher.Close()
}

// Build assembles notifiers from configuration. hub may be nil when the HTTP
// server is disabled. A workstation locker that does not exist on this
// platform is logged and skipped rather than failing startup.
func Build(cfg config.SinkConfig, hub Broadcaster) (*Pipeline, error) {
	d := NewDispatcher(cfg.SendTimeout)
	p := &Pipeline{Dispatcher: d}

	if cfg.Log.Enabled {
		d.Register(NewLogNotifier(), Sync)
	}

	if cfg.Journal.Enabled {
		j, err := OpenJournal(JournalConfig{
			Path:        cfg.Journal.Path,
			Retention:   cfg.Journal.Retention,
			FallbackDir: cfg.Journal.FallbackDir,
		})
		if err != nil {
			return nil, err
		}
		p.Journal = j
		d.Register(j, Sync)
	}

	if cfg.Lock.Enabled {
		locker, err := NewLocker(cfg.Lock.Command)
		switch {
		case errors.Is(err, ErrUnsupported):
			logging.Warn().Err(err).Msg("workstation lock disabled")
		case err != nil:
			_ = d.Close()
			return nil, fmt.Errorf("workstation locker: %w", err)
		default:
			d.Register(NewLockNotifier(locker, cfg.Lock.Cooldown), Sync)
		}
	}

	if cfg.Webhook.Enabled {
		d.Register(NewWebhookNotifier(WebhookConfig{
			URL:        cfg.Webhook.URL,
			Headers:    cfg.Webhook.Headers,
			RateLimit:  cfg.Webhook.RateLimit,
			Timeout:    cfg.Webhook.Timeout,
			EventTypes: cfg.Webhook.EventTypes,
		}), Async)
	}

	if cfg.NATS.Enabled {
		n, err := NewNATSNotifier(NATSConfig{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
		})
		if err != nil {
			_ = d.Close()
			return nil, err
		}
		d.Register(n, Async)
	}

	if hub != nil {
		d.Register(NewHubNotifier(hub), Async)
	}

	logging.Info().Strs("notifiers", d.Notifiers()).Msg("detection sinks ready")
	return p, nil
}
