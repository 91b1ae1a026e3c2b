// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// mockRunner is a test double for ContextRunner.
type mockRunner struct {
	runErr   error
	failures int32
	runCount atomic.Int32
}

func (m *mockRunner) RunWithContext(ctx context.Context) error {
	n := m.runCount.Add(1)
	if n <= m.failures {
		return m.runErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRunnerService_Names(t *testing.T) {
	r := &mockRunner{}
	tests := []struct {
		svc  *RunnerService
		want string
	}{
		{NewMonitorService(r), "keyrate-monitor"},
		{NewHubService(r), "websocket-hub"},
		{NewJournalService(r), "journal-gc"},
		{NewRunnerService("custom", r), "custom"},
	}
	for _, tt := range tests {
		if got := tt.svc.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
	var _ suture.Service = (*RunnerService)(nil)
}

func TestRunnerService_Serve(t *testing.T) {
	t.Run("returns context error on cancel", func(t *testing.T) {
		r := &mockRunner{}
		svc := NewHubService(r)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(ctx) }()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Serve did not return")
		}
	})

	t.Run("wraps runner failure with service name", func(t *testing.T) {
		startErr := errors.New("no keyboard found")
		svc := NewMonitorService(&mockRunner{runErr: startErr, failures: 1})

		err := svc.Serve(context.Background())
		if !errors.Is(err, startErr) {
			t.Fatalf("expected %v, got %v", startErr, err)
		}
		if got := err.Error(); got != "keyrate-monitor: no keyboard found" {
			t.Errorf("error = %q", got)
		}
	})
}

func TestRunnerService_RestartedBySupervisor(t *testing.T) {
	r := &mockRunner{runErr: errors.New("device gone"), failures: 2}
	sup := suture.New("test-sup", suture.Spec{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		Timeout:          time.Second,
	})
	sup.Add(NewMonitorService(r))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	done := sup.ServeBackground(ctx)

	time.Sleep(200 * time.Millisecond)
	if got := r.runCount.Load(); got < 3 {
		t.Errorf("expected at least 3 runs, got %d", got)
	}
	cancel()
	<-done
}
