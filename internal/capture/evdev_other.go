// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

//go:build !linux

package capture

import (
	"fmt"
	"runtime"
)

func newEvdevSource(string) (*DeviceSource, error) {
	return nil, fmt.Errorf("%w: evdev on %s", ErrUnsupported, runtime.GOOS)
}
