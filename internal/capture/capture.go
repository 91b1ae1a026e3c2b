// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

// Package capture adapts platform keyboard input into keyrate.Source.
//
// EventSource drains a single blocking stream of key transitions
// (recordings). DeviceSource reads several such streams at once, one per
// keyboard, and rescans for hot-plugged devices (Linux evdev). PollSource
// scans a 256-entry key state table on a fixed interval and emits the edges
// it sees (Windows GetAsyncKeyState). ReplaySource plays back a JSON Lines recording.
package capture

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/tomtom215/quacklock/internal/config"
	"github.com/tomtom215/quacklock/internal/keyrate"
)

// ErrUnsupported means the requested capture mode is unavailable on this
// platform.
var ErrUnsupported = errors.New("keyboard capture not supported on this platform")

// DefaultPollInterval is the key state scan period.
const DefaultPollInterval = 20 * time.Millisecond

// New returns the source selected by cfg.Mode. Mode "none" returns a nil
// source, which leaves the monitor running without input.
func New(cfg config.CaptureConfig) (keyrate.Source, error) {
	mode := cfg.Mode
	if mode == config.CaptureAuto || mode == "" {
		mode = autoMode(runtime.GOOS)
	}

	switch mode {
	case config.CaptureNone:
		return nil, nil
	case config.CaptureReplay:
		if cfg.ReplayFile == "" {
			return nil, errors.New("capture.replay_file is required in replay mode")
		}
		return NewReplaySource(cfg.ReplayFile, cfg.ReplaySpeed), nil
	case config.CaptureEvdev:
		src, err := newEvdevSource(cfg.Device)
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.CapturePoll:
		reader, err := newPlatformKeyState()
		if err != nil {
			return nil, err
		}
		return NewPollSource(reader, cfg.PollInterval), nil
	case "":
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, runtime.GOOS)
	default:
		return nil, fmt.Errorf("unknown capture mode %q", cfg.Mode)
	}
}

func autoMode(goos string) string {
	switch goos {
	case "linux":
		return config.CaptureEvdev
	case "windows":
		return config.CapturePoll
	default:
		return ""
	}
}
