// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

// Package config loads QuackLock configuration with koanf.
//
// Sources are layered, later ones winning:
//
//  1. Built-in defaults (defaultConfig)
//  2. An optional YAML file: $CONFIG_PATH, quacklock.yaml, config.yaml or
//     /etc/quacklock/config.yaml, whichever exists first
//  3. Environment variables from the explicit mapping table in koanf.go
//
// The result is checked with struct tags (go-playground/validator) and then
// with the cross-field rules in Validate.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/quacklock/internal/keyrate"
)

// Tier presets for MonitorConfig.TierPreset.
const (
	TierPresetDefault  = "default"
	TierPresetExtended = "extended"
	TierPresetCustom   = "custom"
)

// Capture modes for CaptureConfig.Mode.
const (
	CaptureAuto   = "auto"
	CaptureEvdev  = "evdev"
	CapturePoll   = "poll"
	CaptureReplay = "replay"
	CaptureNone   = "none"
)

// Config is the complete application configuration.
type Config struct {
	Monitor    MonitorConfig    `koanf:"monitor"`
	Capture    CaptureConfig    `koanf:"capture"`
	Sink       SinkConfig       `koanf:"sink"`
	Server     ServerConfig     `koanf:"server"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// MonitorConfig configures the detection pipeline.
type MonitorConfig struct {
	SampleInterval time.Duration `koanf:"sample_interval" validate:"gt=0"`
	StatsInterval  time.Duration `koanf:"stats_interval" validate:"gt=0"`
	// TierPreset selects the built-in tier set, or custom to use Tiers.
	TierPreset string       `koanf:"tier_preset" validate:"oneof=default extended custom"`
	Tiers      []TierConfig `koanf:"tiers" validate:"dive"`
	SourceName string       `koanf:"source_name" validate:"required"`
}

// TierConfig is one custom sustained-rate rule.
type TierConfig struct {
	Name                string `koanf:"name" validate:"required"`
	RateThreshold       int    `koanf:"rate_threshold" validate:"gt=0"`
	RequiredConsecutive int    `koanf:"required_consecutive" validate:"gt=0"`
	Severity            string `koanf:"severity" validate:"oneof=info warning critical"`
}

// CaptureConfig selects and tunes the keyboard input source.
type CaptureConfig struct {
	Mode         string        `koanf:"mode" validate:"oneof=auto evdev poll replay none"`
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`
	// Device is an evdev path such as /dev/input/event3. Empty autodetects.
	Device      string  `koanf:"device"`
	ReplayFile  string  `koanf:"replay_file"`
	ReplaySpeed float64 `koanf:"replay_speed" validate:"gt=0"`
}

// SinkConfig configures where detection events go.
type SinkConfig struct {
	// SendTimeout bounds each notifier call.
	SendTimeout time.Duration `koanf:"send_timeout" validate:"gt=0"`
	Log         LogSinkConfig `koanf:"log"`
	Lock        LockConfig    `koanf:"lock"`
	Journal     JournalConfig `koanf:"journal"`
	Webhook     WebhookConfig `koanf:"webhook"`
	NATS        NATSConfig    `koanf:"nats"`
}

// LogSinkConfig controls the structured log notifier.
type LogSinkConfig struct {
	Enabled bool `koanf:"enabled"`
}

// LockConfig controls workstation locking on critical detections.
type LockConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Cooldown time.Duration `koanf:"cooldown" validate:"gte=0"`
	// Command overrides the platform lock command (argv form).
	Command []string `koanf:"command"`
}

// JournalConfig controls the durable event journal.
type JournalConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Path        string        `koanf:"path"`
	Retention   time.Duration `koanf:"retention" validate:"gte=0"`
	FallbackDir string        `koanf:"fallback_dir"`
}

// WebhookConfig controls HTTP delivery of events.
type WebhookConfig struct {
	Enabled   bool              `koanf:"enabled"`
	URL       string            `koanf:"url" validate:"omitempty,url"`
	Headers   map[string]string `koanf:"headers"`
	RateLimit time.Duration     `koanf:"rate_limit" validate:"gte=0"`
	Timeout   time.Duration     `koanf:"timeout" validate:"gt=0"`
	// EventTypes restricts delivery; empty means every type.
	EventTypes []string `koanf:"event_types" validate:"dive,oneof=HighKeyRate KeyRateStats"`
}

// NATSConfig controls publishing events to NATS.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Enabled           bool          `koanf:"enabled"`
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout           time.Duration `koanf:"timeout" validate:"gt=0"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gte=0"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// SupervisorConfig configures the suture tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gt=0"`
	FailureDecay     float64       `koanf:"failure_decay" validate:"gt=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff" validate:"gt=0"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// normalizeTierPreset folds case and maps an unset preset to default.
func normalizeTierPreset(preset string) string {
	preset = strings.ToLower(strings.TrimSpace(preset))
	if preset == "" {
		return TierPresetDefault
	}
	return preset
}

// ResolveTiers returns the tiers selected by TierPreset.
func (m MonitorConfig) ResolveTiers() ([]keyrate.Tier, error) {
	switch normalizeTierPreset(m.TierPreset) {
	case TierPresetDefault:
		return keyrate.DefaultTiers(), nil
	case TierPresetExtended:
		return keyrate.ExtendedTiers(), nil
	case TierPresetCustom:
		if len(m.Tiers) == 0 {
			return nil, fmt.Errorf("monitor.tiers must not be empty when tier_preset is custom")
		}
		tiers := make([]keyrate.Tier, 0, len(m.Tiers))
		for _, tc := range m.Tiers {
			sev, err := keyrate.ParseSeverity(tc.Severity)
			if err != nil {
				return nil, fmt.Errorf("monitor.tiers %q: %w", tc.Name, err)
			}
			tiers = append(tiers, keyrate.Tier{
				Name:                tc.Name,
				RateThreshold:       tc.RateThreshold,
				RequiredConsecutive: tc.RequiredConsecutive,
				Severity:            sev,
			})
		}
		return tiers, nil
	default:
		return nil, fmt.Errorf("unknown monitor.tier_preset %q", m.TierPreset)
	}
}

// KeyrateConfig converts the monitor section into a keyrate.Config.
func (m MonitorConfig) KeyrateConfig() (keyrate.Config, error) {
	tiers, err := m.ResolveTiers()
	if err != nil {
		return keyrate.Config{}, err
	}
	return keyrate.Config{
		Source:         m.SourceName,
		SampleInterval: m.SampleInterval,
		StatsInterval:  m.StatsInterval,
		Tiers:          tiers,
	}, nil
}
