// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/quacklock/internal/capture"
	"github.com/tomtom215/quacklock/internal/keyrate"
)

func newReplayCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay FILE",
		Short: "Analyse a recorded key stream offline",
		Long: `Replay reads a JSON Lines recording of key transitions ({"vk":..,"down":..,"ts":..})
and runs it through the detector on the recorded clock. Detection and
statistics events are written to stdout as JSON lines.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			monitorCfg, err := cfg.Monitor.KeyrateConfig()
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			events, err := capture.ReadRecording(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			_, err = replay(events, monitorCfg, cmd.OutOrStdout())
			return err
		},
	}
}

// replayResult summarizes an offline run.
type replayResult struct {
	Samples int
	Events  int
}

// replay drives a monitor synchronously with the recording's timestamps.
// Sample boundaries start one interval after the first notification. Idle
// gaps longer than one interval collapse into a single zero sample, which
// resets every tier just as the live sampler would.
func replay(events []keyrate.KeyNotification, cfg keyrate.Config, w io.Writer) (replayResult, error) {
	var res replayResult
	if len(events) == 0 {
		return res, nil
	}

	enc := json.NewEncoder(w)
	var writeErr error
	out := keyrate.SinkFunc(func(_ context.Context, event keyrate.DetectionEvent) error {
		res.Events++
		if writeErr == nil {
			writeErr = enc.Encode(event)
		}
		return writeErr
	})

	monitor, err := keyrate.NewMonitor(cfg, nil, out)
	if err != nil {
		return res, err
	}

	start := events[0].Timestamp
	boundary := start.Add(cfg.SampleInterval)
	nextStats := start.Add(cfg.StatsInterval)
	var lastStats time.Time

	sampleAt := func(at time.Time) {
		monitor.Sample(at)
		res.Samples++
		if !at.Before(nextStats) {
			monitor.EmitStats(at)
			lastStats = at
			nextStats = alignAfter(nextStats, at, cfg.StatsInterval)
		}
	}

	for _, n := range events {
		if !n.Timestamp.Before(boundary) {
			sampleAt(boundary)
			boundary = boundary.Add(cfg.SampleInterval)
			if !n.Timestamp.Before(boundary) {
				// Idle gap: one zero sample, then skip to n's interval.
				sampleAt(boundary)
				boundary = alignAfter(boundary, n.Timestamp, cfg.SampleInterval)
			}
		}
		monitor.HandleKey(n)
	}
	sampleAt(boundary)
	if !lastStats.Equal(boundary) {
		monitor.EmitStats(boundary)
	}

	return res, writeErr
}

// alignAfter returns the first point of the grid from+k*step that is after t.
// time.Time.Sub saturates on gaps beyond ~292 years, so large gaps advance in
// several steps and k*step never overflows.
func alignAfter(from, t time.Time, step time.Duration) time.Time {
	for !from.After(t) {
		k := t.Sub(from) / step
		if k == 0 {
			k = 1
		}
		from = from.Add(k * step)
	}
	return from
}
