// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package keyrate

import "errors"

var (
	// ErrCaptureUnavailable is returned by Monitor.Start when the input source
	// cannot be registered. The monitor cannot function without input.
	ErrCaptureUnavailable = errors.New("keyrate: input capture unavailable")

	// ErrInvalidTier indicates a tier with a non-positive threshold, a
	// non-positive consecutive requirement or an unknown severity.
	ErrInvalidTier = errors.New("keyrate: invalid tier")

	// ErrInvalidConfig indicates a monitor configuration that cannot run.
	ErrInvalidConfig = errors.New("keyrate: invalid configuration")
)
