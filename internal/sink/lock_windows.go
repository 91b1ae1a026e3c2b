// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

//go:build windows

package sink

import (
	"context"
	"fmt"

	"golang.org/x/sys/windows"
)

var (
	user32              = windows.NewLazySystemDLL("user32.dll")
	procLockWorkStation = user32.NewProc("LockWorkStation")
)

type workstationLocker struct{}

// Lock calls user32!LockWorkStation.
func (workstationLocker) Lock(context.Context) error {
	if err := procLockWorkStation.Find(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	r, _, err := procLockWorkStation.Call()
	if r == 0 {
		return fmt.Errorf("LockWorkStation: %w", err)
	}
	return nil
}

// DefaultLocker returns the user32 workstation locker.
func DefaultLocker() (Locker, error) {
	return workstationLocker{}, nil
}
