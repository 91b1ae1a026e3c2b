// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

// Package api exposes the monitor over HTTP: health, running statistics,
// the detection journal, a WebSocket live feed and Prometheus metrics.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/quacklock/internal/middleware"
)

// RouterConfig wires handlers into the router.
type RouterConfig struct {
	Handler    *Handler
	WebSocket  http.Handler // nil disables /api/v1/ws
	Middleware ChiMiddlewareConfig
}

// NewRouter builds the chi router.
//
//	GET /api/v1/health
//	GET /api/v1/stats
//	GET /api/v1/events?limit=N
//	GET /api/v1/ws
//	GET /metrics
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(CORS(cfg.Middleware))
		r.Use(RateLimit(cfg.Middleware))

		r.Get("/health", cfg.Handler.Health)
		r.Get("/stats", cfg.Handler.Stats)
		r.Get("/events", cfg.Handler.Events)
		if cfg.WebSocket != nil {
			r.Method(http.MethodGet, "/ws", cfg.WebSocket)
		}
	})

	return r
}
