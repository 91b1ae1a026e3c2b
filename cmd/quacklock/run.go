// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomtom215/quacklock/internal/api"
	"github.com/tomtom215/quacklock/internal/capture"
	"github.com/tomtom215/quacklock/internal/config"
	"github.com/tomtom215/quacklock/internal/keyrate"
	"github.com/tomtom215/quacklock/internal/logging"
	"github.com/tomtom215/quacklock/internal/sink"
	"github.com/tomtom215/quacklock/internal/supervisor"
	"github.com/tomtom215/quacklock/internal/supervisor/services"
	"github.com/tomtom215/quacklock/internal/websocket"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the detection monitor (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg)
}

// serve builds every component from cfg and runs the supervisor tree until
// ctx ends.
func serve(ctx context.Context, cfg *config.Config) error {
	logging.Info().Str("version", version).Msg("Starting QuackLock with supervisor tree")

	var (
		hub         *websocket.Hub
		broadcaster sink.Broadcaster
	)
	if cfg.Server.Enabled {
		hub = websocket.NewHub(cfg.Server.CORSOrigins)
		broadcaster = hub
	}

	pipeline, err := sink.Build(cfg.Sink, broadcaster)
	if err != nil {
		return fmt.Errorf("failed to build sinks: %w", err)
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing sinks")
		}
	}()
	logging.Info().Strs("notifiers", pipeline.Dispatcher.Notifiers()).Msg("Sinks ready")

	source, err := capture.New(cfg.Capture)
	if err != nil {
		return fmt.Errorf("failed to open key capture: %w", err)
	}
	if source == nil {
		logging.Warn().Msg("Key capture disabled (capture.mode=none); the monitor will only see zero samples")
	}

	monitorCfg, err := cfg.Monitor.KeyrateConfig()
	if err != nil {
		return err
	}
	monitor, err := keyrate.NewMonitor(monitorCfg, source, pipeline.Dispatcher)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.FromConfig(cfg.Supervisor))
	if err != nil {
		return fmt.Errorf("failed to create supervisor tree: %w", err)
	}

	tree.AddCaptureService(services.NewMonitorService(monitor))
	if pipeline.Journal != nil {
		tree.AddDeliveryService(services.NewJournalService(pipeline.Journal))
	}

	if cfg.Server.Enabled {
		tree.AddDeliveryService(services.NewHubService(hub))
		server := newHTTPServer(cfg, monitor, pipeline, hub)
		tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Addr(), cfg.Supervisor.ShutdownTimeout))
	} else {
		logging.Info().Msg("HTTP API disabled (server.enabled=false)")
	}

	err = tree.Serve(ctx)

	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within the shutdown timeout")
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree stopped: %w", err)
	}
	logging.Info().Msg("QuackLock stopped")
	return nil
}

func newHTTPServer(cfg *config.Config, monitor *keyrate.Monitor, pipeline *sink.Pipeline, hub *websocket.Hub) *http.Server {
	// A nil *Journal must not become a non-nil interface.
	var journal api.EventLister
	if pipeline.Journal != nil {
		journal = pipeline.Journal
	}

	mw := api.DefaultChiMiddlewareConfig()
	mw.CORSAllowedOrigins = cfg.Server.CORSOrigins
	if cfg.Server.RateLimitReqs > 0 {
		mw.RateLimitRequests = cfg.Server.RateLimitReqs
	}
	if cfg.Server.RateLimitWindow > 0 {
		mw.RateLimitWindow = cfg.Server.RateLimitWindow
	}
	mw.RateLimitDisabled = cfg.Server.RateLimitDisabled

	router := api.NewRouter(api.RouterConfig{
		Handler:    api.NewHandler(monitor, journal, hub, version),
		WebSocket:  hub,
		Middleware: mw,
	})

	return &http.Server{
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.Timeout,
		ReadTimeout:       cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}
}
