// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

//go:build !windows

package capture

import (
	"fmt"
	"runtime"
)

func newPlatformKeyState() (KeyStateReader, error) {
	return nil, fmt.Errorf("%w: key state polling on %s", ErrUnsupported, runtime.GOOS)
}
