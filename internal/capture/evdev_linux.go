// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

//go:build linux

package capture

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tomtom215/quacklock/internal/keyrate"
)

// Linux input subsystem constants (linux/input-event-codes.h).
const (
	evKey = 0x01

	keyReleased = 0
	keyPressed  = 1
	keyRepeated = 2
)

// inputEvent mirrors struct input_event.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// EvdevReader decodes key events from an evdev character device. Key codes
// are Linux KEY_* codes, passed through as the virtual key.
type EvdevReader struct {
	r io.ReadCloser
}

// NewEvdevReader wraps an open device (or any stream of input_event records).
func NewEvdevReader(r io.ReadCloser) *EvdevReader {
	return &EvdevReader{r: r}
}

// Next returns the next key transition, skipping non-key events. Auto-repeat
// is reported as key-down.
func (e *EvdevReader) Next() (keyrate.KeyNotification, error) {
	for {
		var ev inputEvent
		if err := binary.Read(e.r, binary.NativeEndian, &ev); err != nil {
			return keyrate.KeyNotification{}, err
		}
		if ev.Type != evKey {
			continue
		}
		var down bool
		switch ev.Value {
		case keyPressed, keyRepeated:
			down = true
		case keyReleased:
			down = false
		default:
			continue
		}
		return keyrate.KeyNotification{
			VirtualKey: ev.Code,
			Down:       down,
			Timestamp:  time.Unix(ev.Time.Unix()),
		}, nil
	}
}

func (e *EvdevReader) Close() error {
	return e.r.Close()
}

// FindKeyboards lists keyboard event devices published by udev.
func FindKeyboards() ([]string, error) {
	seen := make(map[string]bool)
	var devices []string
	for _, pattern := range []string{"/dev/input/by-path/*-event-kbd", "/dev/input/by-id/*-event-kbd"} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			target, err := filepath.EvalSymlinks(m)
			if err != nil || seen[target] {
				continue
			}
			seen[target] = true
			devices = append(devices, target)
		}
	}
	sort.Strings(devices)
	return devices, nil
}

// newEvdevSource reads device when set, otherwise every keyboard udev
// publishes, picking up keyboards plugged in later.
func newEvdevSource(device string) (*DeviceSource, error) {
	scan := FindKeyboards
	if device != "" {
		scan = func() ([]string, error) { return []string{device}, nil }
	}
	open := func(path string) (StreamReader, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		return NewEvdevReader(f), nil
	}
	return NewDeviceSource("evdev", scan, open, DefaultRescanInterval), nil
}
