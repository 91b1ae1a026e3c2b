// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package sink

import "errors"

var (
	// ErrSkipped is returned by a notifier that deliberately declined an
	// event (filtered, cooldown). The dispatcher counts it but does not treat
	// it as a failure.
	ErrSkipped = errors.New("notification skipped")

	// ErrNotifierPanic wraps a recovered notifier panic.
	ErrNotifierPanic = errors.New("notifier panicked")

	// ErrUnsupported means no workstation locker exists for this platform.
	ErrUnsupported = errors.New("workstation lock not supported on this platform")

	// ErrClosed is returned when sending through a closed notifier.
	ErrClosed = errors.New("notifier is closed")

	// ErrQueueFull is returned when the live viewer queue drops an event.
	ErrQueueFull = errors.New("broadcast queue full")
)
