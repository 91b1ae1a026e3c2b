// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/tomtom215/quacklock/internal/keyrate"
	"github.com/tomtom215/quacklock/internal/logging"
	"github.com/tomtom215/quacklock/internal/metrics"
)

// Notifier delivers a detection event to one channel.
type Notifier interface {
	// Send delivers the event. Implementations must not modify it.
	Send(ctx context.Context, event *keyrate.DetectionEvent) error

	// Name returns the notifier name (e.g., "journal", "webhook").
	Name() string

	// Enabled returns whether this notifier currently accepts events.
	Enabled() bool
}

// Mode selects how the dispatcher calls a notifier.
type Mode int

const (
	// Sync notifiers run inline and their errors are returned to the caller.
	Sync Mode = iota
	// Async notifiers run on their own goroutine; errors are only logged.
	Async
)

func (m Mode) String() string {
	if m == Async {
		return "async"
	}
	return "sync"
}

// DefaultSendTimeout bounds a single notifier call when none is configured.
const DefaultSendTimeout = 5 * time.Second

type registration struct {
	notifier Notifier
	mode     Mode
}

// Dispatcher fans detection events out to notifiers. It implements
// keyrate.Sink.
type Dispatcher struct {
	sendTimeout time.Duration

	mu        sync.RWMutex
	notifiers []registration
	closed    bool

	wg sync.WaitGroup
}

var _ keyrate.Sink = (*Dispatcher)(nil)

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(sendTimeout time.Duration) *Dispatcher {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Dispatcher{sendTimeout: sendTimeout}
}

// Register adds a notifier. Registration order is delivery order for Sync
// notifiers.
func (d *Dispatcher) Register(n Notifier, mode Mode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers = append(d.notifiers, registration{notifier: n, mode: mode})
	logging.Debug().Str("notifier", n.Name()).Stringer("mode", mode).Msg("notifier registered")
}

// Notifiers returns the registered notifier names in order.
func (d *Dispatcher) Notifiers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.notifiers))
	for _, r := range d.notifiers {
		names = append(names, r.notifier.Name())
	}
	return names
}

// OnDetectionEvent delivers event to every enabled notifier. The returned
// error joins the failures of Sync notifiers.
func (d *Dispatcher) OnDetectionEvent(ctx context.Context, event keyrate.DetectionEvent) error {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return ErrClosed
	}
	regs := slices.Clone(d.notifiers)
	// Add under the read lock so Close cannot start waiting before this
	// delivery is accounted for.
	for _, r := range regs {
		if r.mode == Async {
			d.wg.Add(1)
		}
	}
	d.mu.RUnlock()

	var errs []error
	for _, r := range regs {
		if r.mode == Async {
			go func(n Notifier) {
				defer d.wg.Done()
				if !n.Enabled() {
					return
				}
				_ = d.send(context.WithoutCancel(ctx), n, &event)
			}(r.notifier)
			continue
		}
		if !r.notifier.Enabled() {
			continue
		}
		if err := d.send(ctx, r.notifier, &event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// send calls one notifier with a timeout, recovering panics.
func (d *Dispatcher) send(ctx context.Context, n Notifier, event *keyrate.DetectionEvent) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	name := n.Name()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrNotifierPanic, name, r)
		}
		if errors.Is(err, ErrSkipped) {
			metrics.RecordNotifierSkipped(name)
			err = nil
			return
		}
		metrics.RecordNotifierSend(name, time.Since(start), err)
		if err != nil {
			logging.Ctx(ctx).Error().
				Err(err).
				Str("notifier", name).
				Str("event_type", string(event.EventType)).
				Msg("notifier delivery failed")
			err = fmt.Errorf("%s: %w", name, err)
		}
	}()

	return n.Send(ctx, event)
}

// Wait blocks until in-flight async deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops accepting events, waits for async deliveries and closes every
// notifier that implements io.Closer.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	regs := slices.Clone(d.notifiers)
	d.mu.Unlock()

	d.wg.Wait()

	var errs []error
	for _, r := range regs {
		if c, ok := r.notifier.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", r.notifier.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
