// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

//go:build !windows

package sink

import (
	"fmt"
	"runtime"
)

// DefaultLocker returns the session lock command for this OS.
func DefaultLocker() (Locker, error) {
	return lockerForOS(runtime.GOOS)
}

func lockerForOS(goos string) (Locker, error) {
	switch goos {
	case "linux":
		return CommandLocker{Argv: []string{"loginctl", "lock-session"}}, nil
	case "darwin":
		return CommandLocker{Argv: []string{"pmset", "displaysleepnow"}}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, goos)
	}
}
