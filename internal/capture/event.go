// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package capture

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/tomtom215/quacklock/internal/keyrate"
	"github.com/tomtom215/quacklock/internal/logging"
)

// StreamReader yields key transitions one at a time. Next blocks until a
// transition is available; Close must unblock a pending Next.
type StreamReader interface {
	Next() (keyrate.KeyNotification, error)
	io.Closer
}

// EventSource runs a producer goroutine over a StreamReader and delivers
// notifications to the handler in stream order.
type EventSource struct {
	name string
	open func() (StreamReader, error)
}

// NewEventSource creates a source that opens a fresh reader per
// registration.
func NewEventSource(name string, open func() (StreamReader, error)) *EventSource {
	return &EventSource{name: name, open: open}
}

// Register opens the stream and starts delivering to handler.
func (s *EventSource) Register(handler keyrate.KeyHandler) (io.Closer, error) {
	r, err := s.open()
	if err != nil {
		return nil, err
	}
	reg := &streamRegistration{reader: r, done: make(chan struct{})}
	go reg.run(s.name, handler)
	logging.Info().Str("source", s.name).Msg("keyboard capture started")
	return reg, nil
}

type streamRegistration struct {
	reader  StreamReader
	done    chan struct{}
	closing atomic.Bool
	once    sync.Once
	err     error
}

func (r *streamRegistration) run(name string, handler keyrate.KeyHandler) {
	defer close(r.done)
	for {
		n, err := r.reader.Next()
		if err != nil {
			if r.closing.Load() || errors.Is(err, io.EOF) {
				logging.Debug().Str("source", name).Msg("keyboard stream ended")
				return
			}
			logging.Error().Err(err).Str("source", name).Msg("keyboard stream failed")
			return
		}
		handler(n)
	}
}

// Close stops the producer and waits for it to exit.
func (r *streamRegistration) Close() error {
	r.once.Do(func() {
		r.closing.Store(true)
		r.err = r.reader.Close()
		<-r.done
	})
	return r.err
}
