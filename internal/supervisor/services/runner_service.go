// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package services

import (
	"context"
	"errors"
	"fmt"
)

// ContextRunner is any component that runs until its context ends.
//
// Satisfied by *keyrate.Monitor, *websocket.Hub and *sink.Journal.
type ContextRunner interface {
	RunWithContext(ctx context.Context) error
}

// RunnerService adapts a ContextRunner to suture.Service and names it for logs.
type RunnerService struct {
	runner ContextRunner
	name   string
}

// NewRunnerService wraps runner under the given service name.
func NewRunnerService(name string, runner ContextRunner) *RunnerService {
	return &RunnerService{runner: runner, name: name}
}

// NewMonitorService wraps the detection monitor. Its Start error, such as a
// missing keyboard device, becomes a service failure and is retried.
func NewMonitorService(monitor ContextRunner) *RunnerService {
	return NewRunnerService("keyrate-monitor", monitor)
}

// NewHubService wraps the websocket hub.
func NewHubService(hub ContextRunner) *RunnerService {
	return NewRunnerService("websocket-hub", hub)
}

// NewJournalService wraps the journal's value-log GC loop.
func NewJournalService(journal ContextRunner) *RunnerService {
	return NewRunnerService("journal-gc", journal)
}

// Serve implements suture.Service.
func (r *RunnerService) Serve(ctx context.Context) error {
	err := r.runner.RunWithContext(ctx)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w", r.name, err)
}

// String implements fmt.Stringer.
func (r *RunnerService) String() string {
	return r.name
}
