// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/tomtom215/quacklock/internal/logging"
	"github.com/tomtom215/quacklock/internal/validation"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate normalizes the tier preset, then checks struct tags and
// cross-field rules.
func (c *Config) Validate() error {
	c.Monitor.TierPreset = normalizeTierPreset(c.Monitor.TierPreset)
	if err := validation.ValidateStruct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	validators := []func() error{
		c.validateMonitor,
		c.validateCapture,
		c.validateSinks,
		c.validateLogging,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if c.Monitor.StatsInterval < c.Monitor.SampleInterval {
		return fmt.Errorf("monitor.stats_interval (%s) must not be shorter than monitor.sample_interval (%s)",
			c.Monitor.StatsInterval, c.Monitor.SampleInterval)
	}
	cfg, err := c.Monitor.KeyrateConfig()
	if err != nil {
		return err
	}
	return cfg.Validate()
}

func (c *Config) validateCapture() error {
	switch c.Capture.Mode {
	case CaptureReplay:
		if c.Capture.ReplayFile == "" {
			return fmt.Errorf("capture.replay_file is required when capture.mode is replay")
		}
	case CapturePoll, CaptureEvdev, CaptureAuto:
		if c.Capture.PollInterval >= c.Monitor.SampleInterval {
			return fmt.Errorf("capture.poll_interval (%s) must be shorter than monitor.sample_interval (%s)",
				c.Capture.PollInterval, c.Monitor.SampleInterval)
		}
	}
	return nil
}

func (c *Config) validateSinks() error {
	if c.Sink.Journal.Enabled && c.Sink.Journal.Path == "" {
		return fmt.Errorf("sink.journal.path is required when the journal is enabled")
	}
	if c.Sink.Webhook.Enabled {
		if c.Sink.Webhook.URL == "" {
			return fmt.Errorf("sink.webhook.url is required when the webhook is enabled")
		}
		u, err := url.Parse(c.Sink.Webhook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("sink.webhook.url must be an http or https URL")
		}
	}
	if c.Sink.NATS.Enabled {
		if !strings.HasPrefix(c.Sink.NATS.URL, "nats://") && !strings.HasPrefix(c.Sink.NATS.URL, "tls://") {
			return fmt.Errorf("sink.nats.url must start with nats:// or tls://")
		}
		if strings.TrimSpace(c.Sink.NATS.SubjectPrefix) == "" {
			return fmt.Errorf("sink.nats.subject_prefix is required when NATS is enabled")
		}
		if strings.ContainsAny(c.Sink.NATS.SubjectPrefix, " *>") {
			return fmt.Errorf("sink.nats.subject_prefix %q must not contain spaces or wildcards", c.Sink.NATS.SubjectPrefix)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level %q is not a known level", c.Logging.Level)
	}
	return nil
}
