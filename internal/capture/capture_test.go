// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package capture

import (
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/quacklock/internal/config"
	"github.com/tomtom215/quacklock/internal/keyrate"
	"github.com/tomtom215/quacklock/internal/logging"
)

func TestMain(m *testing.M) {
	logging.Init(logging.Config{Level: "info", Format: "json", Output: io.Discard})
	os.Exit(m.Run())
}

// collector gathers notifications from a handler
type collector struct {
	mu    sync.Mutex
	notes []keyrate.KeyNotification
}

func (c *collector) handle(n keyrate.KeyNotification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes = append(c.notes, n)
}

func (c *collector) snapshot() []keyrate.KeyNotification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]keyrate.KeyNotification(nil), c.notes...)
}

func (c *collector) waitFor(t *testing.T, n int) []keyrate.KeyNotification {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := c.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("got %d notifications, want %d", len(c.snapshot()), n)
	return nil
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     config.CaptureConfig
		wantNil bool
		wantErr bool
	}{
		{"none", config.CaptureConfig{Mode: config.CaptureNone}, true, false},
		{"replay", config.CaptureConfig{Mode: config.CaptureReplay, ReplayFile: "rec.jsonl", ReplaySpeed: 1}, false, false},
		{"replay without file", config.CaptureConfig{Mode: config.CaptureReplay}, true, true},
		{"unknown mode", config.CaptureConfig{Mode: "telepathy"}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if (src == nil) != tt.wantNil {
				t.Errorf("New() source = %v, wantNil %v", src, tt.wantNil)
			}
		})
	}
}

func TestAutoMode(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"linux":   config.CaptureEvdev,
		"windows": config.CapturePoll,
		"darwin":  "",
	}
	for goos, want := range tests {
		if got := autoMode(goos); got != want {
			t.Errorf("autoMode(%q) = %q, want %q", goos, got, want)
		}
	}
}

// chanReader is a StreamReader fed from a channel
type chanReader struct {
	ch     chan keyrate.KeyNotification
	closed chan struct{}
	once   sync.Once
}

func newChanReader() *chanReader {
	return &chanReader{ch: make(chan keyrate.KeyNotification), closed: make(chan struct{})}
}

func (r *chanReader) Next() (keyrate.KeyNotification, error) {
	select {
	case n, ok := <-r.ch:
		if !ok {
			return keyrate.KeyNotification{}, io.EOF
		}
		return n, nil
	case <-r.closed:
		return keyrate.KeyNotification{}, errors.New("use of closed reader")
	}
}

func (r *chanReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

func TestEventSource_DeliversInOrder(t *testing.T) {
	t.Parallel()

	reader := newChanReader()
	src := NewEventSource("test", func() (StreamReader, error) { return reader, nil })

	var c collector
	reg, err := src.Register(c.handle)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	for vk := uint16(1); vk <= 3; vk++ {
		reader.ch <- keyrate.KeyNotification{VirtualKey: vk, Down: true}
	}
	got := c.waitFor(t, 3)
	for i, n := range got {
		if n.VirtualKey != uint16(i+1) {
			t.Errorf("notification %d vk = %d, want %d", i, n.VirtualKey, i+1)
		}
	}

	if err := reg.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := reg.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestEventSource_OpenError(t *testing.T) {
	t.Parallel()

	denied := errors.New("permission denied")
	src := NewEventSource("test", func() (StreamReader, error) { return nil, denied })
	if _, err := src.Register(func(keyrate.KeyNotification) {}); !errors.Is(err, denied) {
		t.Errorf("Register() = %v, want %v", err, denied)
	}
}

func TestEventSource_StreamEnd(t *testing.T) {
	t.Parallel()

	reader := newChanReader()
	src := NewEventSource("test", func() (StreamReader, error) { return reader, nil })
	reg, err := src.Register(func(keyrate.KeyNotification) {})
	if err != nil {
		t.Fatal(err)
	}
	close(reader.ch)

	done := make(chan struct{})
	go func() {
		_ = reg.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked after stream end")
	}
}
