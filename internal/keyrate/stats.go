// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package keyrate

import (
	"fmt"
	"sync"
	"time"
)

// RunningStats are lifetime totals over non-zero samples.
type RunningStats struct {
	ActiveSamples int `json:"active_samples"`
	SumOfRates    int `json:"sum_of_rates"`
	MaxRate       int `json:"max_rate"`
}

// Average is SumOfRates / ActiveSamples, or 0 when nothing was recorded.
func (s RunningStats) Average() float64 {
	if s.ActiveSamples == 0 {
		return 0
	}
	return float64(s.SumOfRates) / float64(s.ActiveSamples)
}

// StatsAggregator accumulates RunningStats. Zero samples are idle time and
// are not recorded. Totals are never reset for the life of the aggregator.
type StatsAggregator struct {
	mu    sync.Mutex
	stats RunningStats
}

// Observe records a sample if its count is positive.
func (a *StatsAggregator) Observe(sample RateSample) {
	if sample.Count <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.ActiveSamples++
	a.stats.SumOfRates += sample.Count
	if sample.Count > a.stats.MaxRate {
		a.stats.MaxRate = sample.Count
	}
}

// Snapshot returns a copy of the current totals.
func (a *StatsAggregator) Snapshot() RunningStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Summary builds the KeyRateStats event for the current totals. It returns
// false when no active sample has been recorded yet.
func (a *StatsAggregator) Summary(source string, now time.Time) (DetectionEvent, bool) {
	s := a.Snapshot()
	if s.ActiveSamples == 0 {
		return DetectionEvent{}, false
	}
	avg := s.Average()
	return DetectionEvent{
		Source:    source,
		EventType: EventTypeKeyRateStats,
		Message:   fmt.Sprintf("Keyrate Avg: %.1f/sec, Max: %d/sec", avg, s.MaxRate),
		Timestamp: now,
		Severity:  SeverityInfo,
		Data: map[string]any{
			DataAverageKeyRate: avg,
			DataMaxKeyRate:     s.MaxRate,
			DataActiveSamples:  s.ActiveSamples,
		},
	}, true
}
