// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package keyrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tomtom215/quacklock/internal/logging"
	"github.com/tomtom215/quacklock/internal/metrics"
)

// Config configures a Monitor.
type Config struct {
	// Source is stamped on every emitted event.
	Source string

	// SampleInterval is the rate sampling period.
	SampleInterval time.Duration

	// StatsInterval is the statistics summary period.
	StatsInterval time.Duration

	// Tiers are the sustained-rate rules.
	Tiers []Tier
}

// DefaultConfig returns a one second sampler, a one minute stats summary and
// the single high tier.
func DefaultConfig() Config {
	return Config{
		Source:         DefaultSource,
		SampleInterval: time.Second,
		StatsInterval:  time.Minute,
		Tiers:          DefaultTiers(),
	}
}

// Validate checks intervals and tiers.
func (c Config) Validate() error {
	if c.SampleInterval <= 0 {
		return fmt.Errorf("%w: sample interval must be positive", ErrInvalidConfig)
	}
	if c.StatsInterval <= 0 {
		return fmt.Errorf("%w: stats interval must be positive", ErrInvalidConfig)
	}
	if len(c.Tiers) == 0 {
		return fmt.Errorf("%w: at least one tier is required", ErrInvalidConfig)
	}
	for _, t := range c.Tiers {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Monitor wires a Source through the stroke counter, threshold machine and
// stats aggregator, and delivers resulting events to a Sink.
type Monitor struct {
	cfg   Config
	input Source
	sink  Sink

	counter StrokeCounter
	stats   StatsAggregator

	machineMu sync.Mutex
	machine   *ThresholdMachine

	mu           sync.Mutex
	running      bool
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	registration io.Closer
	lastSample   RateSample

	// queue feeds the delivery goroutine while running.
	queue        chan queuedEvent
	deliveryDone chan struct{}
}

type queuedEvent struct {
	ctx   context.Context
	event DetectionEvent
}

// DeliveryQueueSize bounds events waiting for a slow sink. Events beyond it
// are dropped and counted so sampling never waits on delivery.
const DeliveryQueueSize = 64

// NewMonitor creates a stopped monitor. input may be nil when the caller feeds
// notifications through HandleKey directly; sink may be nil to discard events.
func NewMonitor(cfg Config, input Source, sink Sink) (*Monitor, error) {
	if cfg.Source == "" {
		cfg.Source = DefaultSource
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	machine, err := NewThresholdMachine(cfg.Tiers)
	if err != nil {
		return nil, err
	}
	return &Monitor{
		cfg:     cfg,
		input:   input,
		sink:    sink,
		machine: machine,
	}, nil
}

// Config returns the monitor configuration.
func (m *Monitor) Config() Config {
	return m.cfg
}

// Start registers with the input source and launches the sampling and stats
// loops. Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	if m.input != nil {
		reg, err := m.input.Register(m.HandleKey)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
		}
		m.registration = reg
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	queue := make(chan queuedEvent, DeliveryQueueSize)
	m.queue = queue
	m.deliveryDone = make(chan struct{})
	go m.deliveryLoop(queue, m.deliveryDone)

	emit := func(ctx context.Context, event DetectionEvent) { m.enqueue(ctx, queue, event) }

	m.wg.Add(2)
	go m.loop(loopCtx, m.cfg.SampleInterval, func(now time.Time) { m.sample(loopCtx, now, emit) })
	go m.loop(loopCtx, m.cfg.StatsInterval, func(now time.Time) { m.emitStats(loopCtx, now, emit) })

	logging.Info().
		Str("source", m.cfg.Source).
		Dur("sample_interval", m.cfg.SampleInterval).
		Dur("stats_interval", m.cfg.StatsInterval).
		Int("tiers", len(m.cfg.Tiers)).
		Msg("keyrate monitor started")
	return nil
}

// Stop cancels both loops, waits for them to exit, lets the delivery
// goroutine hand queued events to the sink and releases the input
// registration. Stopping a stopped monitor is a no-op. No event is emitted
// once Stop returns.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.cancel()
	m.wg.Wait()
	close(m.queue)
	<-m.deliveryDone
	m.queue = nil
	m.running = false

	var err error
	if m.registration != nil {
		if cerr := m.registration.Close(); cerr != nil {
			err = fmt.Errorf("release input registration: %w", cerr)
		}
		m.registration = nil
	}

	logging.Info().Str("source", m.cfg.Source).Msg("keyrate monitor stopped")
	return err
}

// Running reports whether the monitor loops are active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// RunWithContext starts the monitor and blocks until ctx is canceled.
// This method is designed to work with suture supervision.
func (m *Monitor) RunWithContext(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	if err := m.Stop(); err != nil {
		logging.Error().Err(err).Msg("error stopping keyrate monitor")
	}
	return ctx.Err()
}

func (m *Monitor) loop(ctx context.Context, interval time.Duration, tick func(time.Time)) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			// A tick may race with cancellation; never emit after Stop.
			if ctx.Err() != nil {
				return
			}
			tick(now)
		}
	}
}

// HandleKey is the KeyHandler registered with the input source.
func (m *Monitor) HandleKey(n KeyNotification) {
	m.counter.Handle(n)
}

// Sample drains the stroke counter into a RateSample ending at now, feeds it
// to the threshold machine and the stats aggregator, and delivers a detection
// event if a tier fired. The sampling loop calls it once per interval; replay
// and tests call it directly.
func (m *Monitor) Sample(now time.Time) RateSample {
	return m.sample(context.Background(), now, m.deliver)
}

// sample only drains, classifies and hands events to emit; the loop's emit
// enqueues so a slow sink cannot stretch the next interval.
func (m *Monitor) sample(ctx context.Context, now time.Time, emit func(context.Context, DetectionEvent)) RateSample {
	sample := RateSample{Count: m.counter.Drain(), IntervalEnd: now}

	m.machineMu.Lock()
	det, fired := m.machine.Observe(sample)
	states := m.machine.States()
	m.lastSample = sample
	m.machineMu.Unlock()

	m.stats.Observe(sample)

	metrics.RecordSample(sample.Count)
	logging.Debug().Int("count", sample.Count).Time("interval_end", now).Msg("key rate sample")
	for _, st := range states {
		metrics.SetTierConsecutive(st.Tier.Name, st.Consecutive)
		if !fired && st.Consecutive > 0 {
			logging.Info().
				Str("tier", st.Tier.Name).
				Int("consecutive", st.Consecutive).
				Int("required", st.Tier.RequiredConsecutive).
				Int("key_rate", sample.Count).
				Msg("tier escalating")
		}
	}

	if !fired {
		return sample
	}

	event := det.Event(m.cfg.Source)
	metrics.RecordDetection(string(event.EventType), string(event.Severity))
	logging.Warn().
		Str("tier", det.Tier.Name).
		Int("key_rate", det.KeyRate).
		Int("duration", det.Duration).
		Str("severity", string(det.Tier.Severity)).
		Msg("suspicious key rate detected")
	emit(ctx, event)
	return sample
}

// EmitStats delivers a KeyRateStats summary stamped now. It reports false and
// emits nothing when no active sample has been recorded.
func (m *Monitor) EmitStats(now time.Time) bool {
	return m.emitStats(context.Background(), now, m.deliver)
}

func (m *Monitor) emitStats(ctx context.Context, now time.Time, emit func(context.Context, DetectionEvent)) bool {
	event, ok := m.stats.Summary(m.cfg.Source, now)
	if !ok {
		return false
	}
	metrics.RecordDetection(string(event.EventType), string(event.Severity))
	emit(ctx, event)
	return true
}

// Stats returns a snapshot of the lifetime statistics.
func (m *Monitor) Stats() RunningStats {
	return m.stats.Snapshot()
}

// TierStates returns the current consecutive counts per tier.
func (m *Monitor) TierStates() []TierState {
	m.machineMu.Lock()
	defer m.machineMu.Unlock()
	return m.machine.States()
}

// LastSample returns the most recent sample, or the zero value before the
// first one.
func (m *Monitor) LastSample() RateSample {
	m.machineMu.Lock()
	defer m.machineMu.Unlock()
	return m.lastSample
}

// PendingStrokes returns the presses counted since the last sample.
func (m *Monitor) PendingStrokes() int {
	return m.counter.Pending()
}

// enqueue hands event to the delivery goroutine, dropping it when the queue
// is full.
func (m *Monitor) enqueue(ctx context.Context, queue chan<- queuedEvent, event DetectionEvent) {
	if m.sink == nil {
		return
	}
	select {
	case queue <- queuedEvent{ctx: ctx, event: event}:
	default:
		metrics.RecordSinkError("queue_full")
		logging.Warn().
			Str("event_type", string(event.EventType)).
			Int("queue_size", cap(queue)).
			Msg("sink delivery queue full, dropping event")
	}
}

// deliveryLoop drains queue into the sink until it is closed.
func (m *Monitor) deliveryLoop(queue <-chan queuedEvent, done chan<- struct{}) {
	defer close(done)
	for q := range queue {
		m.deliver(q.ctx, q.event)
	}
}

// deliver hands event to the sink. Errors and panics are logged and counted
// but never stop the loops.
func (m *Monitor) deliver(parent context.Context, event DetectionEvent) {
	if m.sink == nil {
		return
	}

	// Events already produced are delivered even while the monitor stops.
	ctx := logging.ContextWithNewCorrelationID(context.WithoutCancel(parent))

	defer func() {
		if r := recover(); r != nil {
			metrics.RecordSinkError("panic")
			logging.Ctx(ctx).Error().
				Interface("panic", r).
				Str("event_type", string(event.EventType)).
				Msg("sink panicked while handling event")
		}
	}()

	if err := m.sink.OnDetectionEvent(ctx, event); err != nil {
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		metrics.RecordSinkError(reason)
		logging.Ctx(ctx).Error().Err(err).
			Str("event_type", string(event.EventType)).
			Msg("sink failed to handle event")
	}
}
