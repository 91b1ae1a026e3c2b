// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/quacklock/internal/keyrate"
	"github.com/tomtom215/quacklock/internal/logging"
)

// DefaultRescanInterval is how often a DeviceSource looks for newly attached
// keyboards.
const DefaultRescanInterval = 2 * time.Second

// deviceQueueSize buffers transitions between device readers and the
// dispatch goroutine.
const deviceQueueSize = 256

// DeviceSource reads every device returned by scan and funnels their
// transitions into a single goroutine that calls the handler. Devices that
// appear later are opened on the next rescan. A device whose stream fails is
// dropped and reopened if a later scan still lists it.
type DeviceSource struct {
	name   string
	scan   func() ([]string, error)
	open   func(path string) (StreamReader, error)
	rescan time.Duration
}

// NewDeviceSource creates a multi-device source. A rescan interval of zero
// or less disables hot-plug detection.
func NewDeviceSource(name string, scan func() ([]string, error), open func(path string) (StreamReader, error), rescan time.Duration) *DeviceSource {
	return &DeviceSource{name: name, scan: scan, open: open, rescan: rescan}
}

// Register opens every device currently listed and starts delivering to
// handler. It fails when no device could be opened.
func (s *DeviceSource) Register(handler keyrate.KeyHandler) (io.Closer, error) {
	reg := &deviceRegistration{
		source:       s,
		readers:      make(map[string]StreamReader),
		notes:        make(chan keyrate.KeyNotification, deviceQueueSize),
		stop:         make(chan struct{}),
		dispatchDone: make(chan struct{}),
	}

	opened, err := reg.attach()
	if opened == 0 {
		if err == nil {
			err = fmt.Errorf("%w: no keyboard device found", ErrUnsupported)
		}
		return nil, err
	}

	go reg.dispatch(handler)
	if s.rescan > 0 {
		reg.wg.Add(1)
		go reg.rescanLoop()
	}

	logging.Info().Str("source", s.name).Int("devices", opened).Msg("keyboard capture started")
	return reg, nil
}

type deviceRegistration struct {
	source *DeviceSource

	mu      sync.Mutex
	readers map[string]StreamReader // nil once closed

	notes        chan keyrate.KeyNotification
	stop         chan struct{}
	dispatchDone chan struct{}
	wg           sync.WaitGroup
	closing      atomic.Bool
	once         sync.Once
	err          error
}

// attach opens listed devices that are not already being read. It returns
// how many it opened and the first scan or open error.
func (r *deviceRegistration) attach() (int, error) {
	paths, err := r.source.scan()
	if err != nil {
		return 0, fmt.Errorf("scan devices: %w", err)
	}

	var firstErr error
	opened := 0
	for _, path := range paths {
		r.mu.Lock()
		if r.readers == nil {
			r.mu.Unlock()
			return opened, firstErr
		}
		_, active := r.readers[path]
		r.mu.Unlock()
		if active {
			continue
		}

		reader, err := r.source.open(path)
		if err != nil {
			logging.Warn().Err(err).Str("source", r.source.name).Str("device", path).Msg("cannot open keyboard device")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		r.mu.Lock()
		if r.readers == nil {
			r.mu.Unlock()
			_ = reader.Close()
			return opened, firstErr
		}
		r.readers[path] = reader
		r.wg.Add(1)
		r.mu.Unlock()

		go r.read(path, reader)
		opened++
		logging.Info().Str("source", r.source.name).Str("device", path).Msg("keyboard device attached")
	}
	return opened, firstErr
}

func (r *deviceRegistration) read(path string, reader StreamReader) {
	defer r.wg.Done()
	for {
		n, err := reader.Next()
		if err != nil {
			r.detach(path, reader)
			if r.closing.Load() || errors.Is(err, io.EOF) {
				logging.Debug().Str("source", r.source.name).Str("device", path).Msg("keyboard stream ended")
				return
			}
			logging.Warn().Err(err).Str("source", r.source.name).Str("device", path).Msg("keyboard device lost")
			return
		}
		select {
		case r.notes <- n:
		case <-r.stop:
			return
		}
	}
}

// detach forgets reader so a later rescan may reopen path.
func (r *deviceRegistration) detach(path string, reader StreamReader) {
	r.mu.Lock()
	owned := r.readers != nil && r.readers[path] == reader
	if owned {
		delete(r.readers, path)
	}
	r.mu.Unlock()
	if owned {
		_ = reader.Close()
	}
}

func (r *deviceRegistration) dispatch(handler keyrate.KeyHandler) {
	defer close(r.dispatchDone)
	for {
		select {
		case n := <-r.notes:
			handler(n)
		case <-r.stop:
			return
		}
	}
}

func (r *deviceRegistration) rescanLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.source.rescan)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			if _, err := r.attach(); err != nil {
				logging.Debug().Err(err).Str("source", r.source.name).Msg("keyboard rescan")
			}
		}
	}
}

// Close stops every reader, the rescan loop and the dispatcher, and waits
// for them to exit.
func (r *deviceRegistration) Close() error {
	r.once.Do(func() {
		r.closing.Store(true)
		close(r.stop)

		r.mu.Lock()
		readers := r.readers
		r.readers = nil
		r.mu.Unlock()

		var errs []error
		for path, reader := range readers {
			if err := reader.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", path, err))
			}
		}
		r.wg.Wait()
		<-r.dispatchDone
		r.err = errors.Join(errs...)
	})
	return r.err
}
