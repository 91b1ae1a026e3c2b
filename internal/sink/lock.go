// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package sink

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/quacklock/internal/keyrate"
	"github.com/tomtom215/quacklock/internal/logging"
	"github.com/tomtom215/quacklock/internal/metrics"
)

// Locker locks the interactive session.
type Locker interface {
	Lock(ctx context.Context) error
}

// LockerFunc adapts a function to Locker.
type LockerFunc func(ctx context.Context) error

// Lock calls f(ctx).
func (f LockerFunc) Lock(ctx context.Context) error { return f(ctx) }

// CommandLocker runs an external command to lock the session.
type CommandLocker struct {
	Argv []string
}

// Lock runs the command and reports its output on failure.
func (l CommandLocker) Lock(ctx context.Context) error {
	if len(l.Argv) == 0 {
		return ErrUnsupported
	}
	cmd := exec.CommandContext(ctx, l.Argv[0], l.Argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", l.Argv[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// NewLocker returns a CommandLocker for command, or the platform default
// when command is empty.
func NewLocker(command []string) (Locker, error) {
	if len(command) > 0 {
		return CommandLocker{Argv: append([]string(nil), command...)}, nil
	}
	return DefaultLocker()
}

// LockNotifier locks the workstation when a critical detection arrives.
// At most one lock is attempted per cooldown window.
type LockNotifier struct {
	locker  Locker
	limiter *rate.Limiter
}

// NewLockNotifier creates a lock notifier. A non-positive cooldown disables
// rate limiting.
func NewLockNotifier(locker Locker, cooldown time.Duration) *LockNotifier {
	limit := rate.Inf
	if cooldown > 0 {
		limit = rate.Every(cooldown)
	}
	return &LockNotifier{
		locker:  locker,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (*LockNotifier) Name() string    { return "lock" }
func (n *LockNotifier) Enabled() bool { return n.locker != nil }

// Send locks the session for critical events and skips the rest.
func (n *LockNotifier) Send(ctx context.Context, event *keyrate.DetectionEvent) error {
	if event.Severity != keyrate.SeverityCritical {
		return ErrSkipped
	}
	if !n.limiter.Allow() {
		metrics.RecordWorkstationLock("cooldown")
		logging.Ctx(ctx).Debug().Msg("workstation lock suppressed by cooldown")
		return ErrSkipped
	}
	if err := n.locker.Lock(ctx); err != nil {
		metrics.RecordWorkstationLock("failed")
		return fmt.Errorf("lock workstation: %w", err)
	}
	metrics.RecordWorkstationLock("locked")
	logging.Ctx(ctx).Warn().
		Str("event_type", string(event.EventType)).
		Msg("workstation locked")
	return nil
}
