// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

// Package keyrate implements the keystroke cadence detection pipeline used to
// spot automated keyboard input (USB keystroke injectors and similar tools).
//
// Pipeline:
//
//	Source -> StrokeCounter -> Monitor (sampler) -> ThresholdMachine -> Sink
//	                                             \-> StatsAggregator -/
//
// A Source delivers raw key-down/key-up notifications. The StrokeCounter
// suppresses operating system auto-repeat and counts genuine presses. Once per
// sample interval the Monitor drains the counter into a RateSample and feeds it
// to the ThresholdMachine, which tracks consecutive violations per severity tier
// and emits at most one HighKeyRate event per interval, and to the
// StatsAggregator, which keeps lifetime average and maximum rates and emits a
// KeyRateStats summary on its own, longer period.
//
// The package performs no OS calls. Locking the workstation, journaling and
// notification are the Sink's business (see internal/sink), and key capture is
// the Source's (see internal/capture). Every piece of mutable state belongs to a
// Monitor instance, so several monitors can run side by side in tests.
package keyrate
