// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/quacklock/internal/keyrate"
	"github.com/tomtom215/quacklock/internal/sink"
	"github.com/tomtom215/quacklock/internal/validation"
)

// MonitorView is the read-only monitor surface the API needs.
type MonitorView interface {
	Running() bool
	Stats() keyrate.RunningStats
	TierStates() []keyrate.TierState
	LastSample() keyrate.RateSample
	PendingStrokes() int
	Config() keyrate.Config
}

// EventLister reads the detection journal.
type EventLister interface {
	List(ctx context.Context, limit int) ([]sink.JournalEntry, error)
}

// ClientCounter reports live WebSocket viewers.
type ClientCounter interface {
	ClientCount() int
}

// Handler serves the REST endpoints.
type Handler struct {
	monitor   MonitorView
	journal   EventLister
	clients   ClientCounter
	version   string
	startedAt time.Time
}

// NewHandler creates a handler. journal and clients may be nil.
func NewHandler(monitor MonitorView, journal EventLister, clients ClientCounter, version string) *Handler {
	return &Handler{
		monitor:   monitor,
		journal:   journal,
		clients:   clients,
		version:   version,
		startedAt: time.Now(),
	}
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status           string  `json:"status"`
	Version          string  `json:"version"`
	MonitorRunning   bool    `json:"monitor_running"`
	JournalEnabled   bool    `json:"journal_enabled"`
	WebSocketClients int     `json:"websocket_clients"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
}

// Health reports liveness. A stopped monitor yields 503 so orchestrators
// notice lost capture.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:         "ok",
		Version:        h.version,
		MonitorRunning: h.monitor.Running(),
		JournalEnabled: h.journal != nil,
		UptimeSeconds:  time.Since(h.startedAt).Seconds(),
	}
	if h.clients != nil {
		resp.WebSocketClients = h.clients.ClientCount()
	}

	rw := NewResponseWriter(w, r)
	if !resp.MonitorRunning {
		resp.Status = "degraded"
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "monitor is not running", resp)
		return
	}
	rw.Success(resp)
}

// StatsResponse is returned by GET /api/v1/stats.
type StatsResponse struct {
	Running        bool                 `json:"running"`
	SampleInterval string               `json:"sample_interval"`
	StatsInterval  string               `json:"stats_interval"`
	LastSample     keyrate.RateSample   `json:"last_sample"`
	PendingStrokes int                  `json:"pending_strokes"`
	Stats          keyrate.RunningStats `json:"stats"`
	AverageKeyRate float64              `json:"average_key_rate"`
	Tiers          []keyrate.TierState  `json:"tiers"`
}

// Stats reports the running statistics window and per-tier state.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	cfg := h.monitor.Config()
	stats := h.monitor.Stats()
	NewResponseWriter(w, r).Success(StatsResponse{
		Running:        h.monitor.Running(),
		SampleInterval: cfg.SampleInterval.String(),
		StatsInterval:  cfg.StatsInterval.String(),
		LastSample:     h.monitor.LastSample(),
		PendingStrokes: h.monitor.PendingStrokes(),
		Stats:          stats,
		AverageKeyRate: stats.Average(),
		Tiers:          h.monitor.TierStates(),
	})
}

// eventsQuery is the validated query of GET /api/v1/events.
type eventsQuery struct {
	Limit int `json:"limit" validate:"gte=1,lte=1000"`
}

// Events lists journal entries, newest first.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.journal == nil {
		rw.ServiceUnavailable("event journal is disabled")
		return
	}

	q := eventsQuery{Limit: sink.DefaultListLimit}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			rw.ValidationError("invalid query", map[string]string{"limit": "must be an integer"})
			return
		}
		q.Limit = n
	}
	if err := validation.ValidateStruct(&q); err != nil {
		var details interface{} = err.Error()
		var ve validation.Errors
		if errors.As(err, &ve) {
			details = ve
		}
		rw.ValidationError("invalid query", details)
		return
	}

	entries, err := h.journal.List(r.Context(), q.Limit)
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.SuccessList(entries, len(entries))
}
