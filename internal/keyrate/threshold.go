// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package keyrate

import (
	"fmt"
	"sort"
	"time"
)

// Tier is one sustained-rate rule: RequiredConsecutive samples in a row with a
// count of at least RateThreshold fire an event of the tier's Severity.
type Tier struct {
	Name                string   `json:"name" koanf:"name"`
	RateThreshold       int      `json:"rate_threshold" koanf:"rate_threshold"`
	RequiredConsecutive int      `json:"required_consecutive" koanf:"required_consecutive"`
	Severity            Severity `json:"severity" koanf:"severity"`
}

// Validate checks the tier for values the threshold machine cannot use.
func (t Tier) Validate() error {
	if t.RateThreshold <= 0 {
		return fmt.Errorf("%w: %q rate threshold must be positive, got %d", ErrInvalidTier, t.Name, t.RateThreshold)
	}
	if t.RequiredConsecutive <= 0 {
		return fmt.Errorf("%w: %q required consecutive must be positive, got %d", ErrInvalidTier, t.Name, t.RequiredConsecutive)
	}
	if !t.Severity.Valid() {
		return fmt.Errorf("%w: %q has unknown severity %q", ErrInvalidTier, t.Name, t.Severity)
	}
	return nil
}

// Reason is the human-readable rule text carried in event messages.
func (t Tier) Reason() string {
	return fmt.Sprintf("≥%d/s for %d sec", t.RateThreshold, t.RequiredConsecutive)
}

// DefaultTiers returns the single-tier rule set: 15 keys/s for 2 samples.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "high", RateThreshold: 15, RequiredConsecutive: 2, Severity: SeverityCritical},
	}
}

// ExtendedTiers adds a medium tier of 9 keys/s sustained for 8 samples, which
// catches injectors that throttle their typing below the high threshold.
func ExtendedTiers() []Tier {
	return []Tier{
		{Name: "high", RateThreshold: 15, RequiredConsecutive: 2, Severity: SeverityCritical},
		{Name: "medium", RateThreshold: 9, RequiredConsecutive: 8, Severity: SeverityCritical},
	}
}

// TierState is a tier together with its current consecutive-violation count.
type TierState struct {
	Tier        Tier `json:"tier"`
	Consecutive int  `json:"consecutive"`
}

// Detection is a fired tier, produced by ThresholdMachine.Observe.
type Detection struct {
	Tier     Tier
	KeyRate  int
	Duration int
	At       time.Time
}

// Event converts the detection into a HighKeyRate event.
func (d Detection) Event(source string) DetectionEvent {
	return DetectionEvent{
		Source:    source,
		EventType: EventTypeHighKeyRate,
		Message:   fmt.Sprintf("Suspicious keyrate: %d/sec (%s)", d.KeyRate, d.Tier.Reason()),
		Timestamp: d.At,
		Severity:  d.Tier.Severity,
		Data: map[string]any{
			DataKeyRate:  d.KeyRate,
			DataDuration: d.Duration,
			DataTier:     d.Tier.Name,
		},
	}
}

// ThresholdMachine tracks consecutive violations per tier.
//
// It is not safe for concurrent use; the Monitor serializes access.
type ThresholdMachine struct {
	tiers       []Tier
	consecutive []int
}

// NewThresholdMachine validates tiers and orders them most severe first, with
// higher thresholds first among tiers of equal severity. That order decides
// which tier is reported when several qualify in the same sample.
func NewThresholdMachine(tiers []Tier) (*ThresholdMachine, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: at least one tier is required", ErrInvalidTier)
	}
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	for _, t := range sorted {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := sorted[i].Severity.rank(), sorted[j].Severity.rank()
		if ri != rj {
			return ri > rj
		}
		return sorted[i].RateThreshold > sorted[j].RateThreshold
	})
	return &ThresholdMachine{
		tiers:       sorted,
		consecutive: make([]int, len(sorted)),
	}, nil
}

// Observe folds one sample into every tier and returns the detection for the
// most severe tier that reached its requirement, if any. Firing clears all
// consecutive counts so a single burst produces a single event.
func (m *ThresholdMachine) Observe(sample RateSample) (Detection, bool) {
	for i, t := range m.tiers {
		if sample.Count >= t.RateThreshold {
			m.consecutive[i]++
		} else {
			m.consecutive[i] = 0
		}
	}

	for i, t := range m.tiers {
		if m.consecutive[i] >= t.RequiredConsecutive {
			d := Detection{
				Tier:     t,
				KeyRate:  sample.Count,
				Duration: m.consecutive[i],
				At:       sample.IntervalEnd,
			}
			m.Reset()
			return d, true
		}
	}
	return Detection{}, false
}

// Reset clears every consecutive count.
func (m *ThresholdMachine) Reset() {
	for i := range m.consecutive {
		m.consecutive[i] = 0
	}
}

// States returns a copy of the tiers and their consecutive counts, in
// evaluation order.
func (m *ThresholdMachine) States() []TierState {
	out := make([]TierState, len(m.tiers))
	for i, t := range m.tiers {
		out[i] = TierState{Tier: t, Consecutive: m.consecutive[i]}
	}
	return out
}
