// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package capture

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/tomtom215/quacklock/internal/keyrate"
	"github.com/tomtom215/quacklock/internal/logging"
)

// KeyCount is the size of the virtual key table scanned by PollSource.
const KeyCount = 256

// KeyStateReader reports whether a virtual key is currently down.
type KeyStateReader interface {
	IsKeyDown(vk int) bool
}

// KeyStateFunc adapts a function to KeyStateReader.
type KeyStateFunc func(vk int) bool

// IsKeyDown calls f(vk).
func (f KeyStateFunc) IsKeyDown(vk int) bool { return f(vk) }

// PollSource scans a KeyStateReader every interval and emits a notification
// for each key whose state changed since the previous scan.
type PollSource struct {
	reader   KeyStateReader
	interval time.Duration
	now      func() time.Time
}

// NewPollSource creates a polling source.
func NewPollSource(reader KeyStateReader, interval time.Duration) *PollSource {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollSource{reader: reader, interval: interval, now: time.Now}
}

// Register starts polling on its own goroutine.
func (s *PollSource) Register(handler keyrate.KeyHandler) (io.Closer, error) {
	ctx, cancel := context.WithCancel(context.Background())
	reg := &pollRegistration{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(reg.done)
		s.run(ctx, handler)
	}()
	logging.Info().Dur("interval", s.interval).Msg("key state polling started")
	return reg, nil
}

func (s *PollSource) run(ctx context.Context, handler keyrate.KeyHandler) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var state [KeyCount]bool
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scan(&state, handler)
		}
	}
}

// scan compares the table against state, emits the edges and updates state.
func (s *PollSource) scan(state *[KeyCount]bool, handler keyrate.KeyHandler) {
	now := s.now()
	for vk := 0; vk < KeyCount; vk++ {
		down := s.reader.IsKeyDown(vk)
		if down == state[vk] {
			continue
		}
		state[vk] = down
		handler(keyrate.KeyNotification{VirtualKey: uint16(vk), Down: down, Timestamp: now})
	}
}

type pollRegistration struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (r *pollRegistration) Close() error {
	r.once.Do(func() {
		r.cancel()
		<-r.done
	})
	return nil
}
