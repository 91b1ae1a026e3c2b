// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/quacklock/internal/keyrate"
)

// DefaultConfigPaths are searched in order; the first existing file is used.
var DefaultConfigPaths = []string{
	"quacklock.yaml",
	"quacklock.yml",
	"config.yaml",
	"/etc/quacklock/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Monitor: MonitorConfig{
			SampleInterval: time.Second,
			StatsInterval:  time.Minute,
			TierPreset:     TierPresetDefault,
			SourceName:     keyrate.DefaultSource,
		},
		Capture: CaptureConfig{
			Mode:         CaptureAuto,
			PollInterval: 20 * time.Millisecond,
			ReplaySpeed:  1.0,
		},
		Sink: SinkConfig{
			SendTimeout: 5 * time.Second,
			Log:         LogSinkConfig{Enabled: true},
			Lock: LockConfig{
				Enabled:  true,
				Cooldown: 30 * time.Second,
			},
			Journal: JournalConfig{
				Enabled:     true,
				Path:        defaultJournalPath(),
				Retention:   30 * 24 * time.Hour,
				FallbackDir: os.TempDir(),
			},
			Webhook: WebhookConfig{
				RateLimit: time.Second,
				Timeout:   10 * time.Second,
			},
			NATS: NATSConfig{
				URL:           "nats://127.0.0.1:4222",
				SubjectPrefix: "quacklock",
			},
		},
		Server: ServerConfig{
			Enabled:         true,
			Host:            "127.0.0.1",
			Port:            9477,
			Timeout:         15 * time.Second,
			CORSOrigins:     []string{"http://127.0.0.1:9477", "http://localhost:9477"},
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5.0,
			FailureDecay:     30.0,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func defaultJournalPath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "quacklock", "journal")
	}
	return filepath.Join(os.TempDir(), "quacklock", "journal")
}

// Load reads configuration from defaults, the first config file found and
// the environment.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit config file path. An empty path skips
// the file layer.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}
	if err := processHeaderFields(k); err != nil {
		return nil, fmt.Errorf("failed to process header fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths accept comma-separated strings from the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"sink.lock.command",
	"sink.webhook.event_types",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := splitList(s, ",")
		if path == "sink.lock.command" {
			// argv is whitespace separated, not comma separated
			parts = strings.Fields(s)
		}
		if len(parts) == 0 {
			continue
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// processHeaderFields parses QUACKLOCK_WEBHOOK_HEADERS="Key: value; Other: v2".
func processHeaderFields(k *koanf.Koanf) error {
	s, ok := k.Get("sink.webhook.headers").(string)
	if !ok {
		return nil
	}
	headers := make(map[string]any)
	for _, pair := range splitList(s, ";") {
		name, value, found := strings.Cut(pair, ":")
		if !found {
			return fmt.Errorf("malformed webhook header %q", pair)
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	k.Delete("sink.webhook.headers")
	if len(headers) == 0 {
		return nil
	}
	return k.Set("sink.webhook.headers", headers)
}

func splitList(s, sep string) []string {
	raw := strings.Split(s, sep)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envMappings maps lower-cased environment variable names to koanf paths.
// Variables not listed here are ignored.
var envMappings = map[string]string{
	// Monitor
	"quacklock_sample_interval": "monitor.sample_interval",
	"quacklock_stats_interval":  "monitor.stats_interval",
	"quacklock_tier_preset":     "monitor.tier_preset",
	"quacklock_source_name":     "monitor.source_name",

	// Capture
	"quacklock_capture_mode":  "capture.mode",
	"quacklock_poll_interval": "capture.poll_interval",
	"quacklock_device":        "capture.device",
	"quacklock_replay_file":   "capture.replay_file",
	"quacklock_replay_speed":  "capture.replay_speed",

	// Sinks
	"quacklock_send_timeout":        "sink.send_timeout",
	"quacklock_log_events":          "sink.log.enabled",
	"quacklock_lock_enabled":        "sink.lock.enabled",
	"quacklock_lock_cooldown":       "sink.lock.cooldown",
	"quacklock_lock_command":        "sink.lock.command",
	"quacklock_journal_enabled":     "sink.journal.enabled",
	"quacklock_journal_path":        "sink.journal.path",
	"quacklock_journal_retention":   "sink.journal.retention",
	"quacklock_fallback_dir":        "sink.journal.fallback_dir",
	"quacklock_webhook_enabled":     "sink.webhook.enabled",
	"quacklock_webhook_url":         "sink.webhook.url",
	"quacklock_webhook_headers":     "sink.webhook.headers",
	"quacklock_webhook_rate_limit":  "sink.webhook.rate_limit",
	"quacklock_webhook_timeout":     "sink.webhook.timeout",
	"quacklock_webhook_event_types": "sink.webhook.event_types",
	"nats_enabled":                  "sink.nats.enabled",
	"nats_url":                      "sink.nats.url",
	"nats_subject_prefix":           "sink.nats.subject_prefix",

	// Server
	"http_enabled":        "server.enabled",
	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_timeout":        "server.timeout",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_reqs",
	"rate_limit_window":   "server.rate_limit_window",
	"disable_rate_limit":  "server.rate_limit_disabled",

	// Supervisor
	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to its koanf path, or
// "" to skip it.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
