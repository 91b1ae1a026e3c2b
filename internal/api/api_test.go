// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/quacklock/internal/keyrate"
	"github.com/tomtom215/quacklock/internal/logging"
	"github.com/tomtom215/quacklock/internal/sink"
)

func TestMain(m *testing.M) {
	logging.Init(logging.Config{Level: "info", Format: "json", Output: io.Discard})
	os.Exit(m.Run())
}

// mockMonitor implements MonitorView
type mockMonitor struct {
	running bool
	stats   keyrate.RunningStats
	tiers   []keyrate.TierState
}

func (m *mockMonitor) Running() bool                   { return m.running }
func (m *mockMonitor) Stats() keyrate.RunningStats     { return m.stats }
func (m *mockMonitor) TierStates() []keyrate.TierState { return m.tiers }
func (m *mockMonitor) PendingStrokes() int             { return 3 }
func (m *mockMonitor) Config() keyrate.Config          { return keyrate.DefaultConfig() }
func (m *mockMonitor) LastSample() keyrate.RateSample {
	return keyrate.RateSample{Count: 7, IntervalEnd: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
}

// mockJournal implements EventLister
type mockJournal struct {
	entries   []sink.JournalEntry
	err       error
	lastLimit int
}

func (j *mockJournal) List(_ context.Context, limit int) ([]sink.JournalEntry, error) {
	j.lastLimit = limit
	if j.err != nil {
		return nil, j.err
	}
	if limit < len(j.entries) {
		return j.entries[:limit], nil
	}
	return j.entries, nil
}

type fixedClients int

func (c fixedClients) ClientCount() int { return int(c) }

func newTestRouter(mon MonitorView, journal EventLister, mw ChiMiddlewareConfig) http.Handler {
	return NewRouter(RouterConfig{
		Handler:    NewHandler(mon, journal, fixedClients(2), "test"),
		Middleware: mw,
	})
}

func doGet(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.RemoteAddr = "192.0.2.1:1234"
	h.ServeHTTP(w, r)
	var resp APIResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return w, resp
}

func TestHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		running    bool
		wantStatus int
	}{
		{"running", true, http.StatusOK},
		{"stopped", false, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newTestRouter(&mockMonitor{running: tt.running}, nil, DefaultChiMiddlewareConfig())
			w, resp := doGet(t, h, "/api/v1/health")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if resp.Success != tt.running {
				t.Errorf("success = %v, want %v", resp.Success, tt.running)
			}
			if w.Header().Get("X-Request-ID") == "" {
				t.Error("X-Request-ID missing")
			}
		})
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	mon := &mockMonitor{
		running: true,
		stats:   keyrate.RunningStats{ActiveSamples: 4, SumOfRates: 30, MaxRate: 12},
		tiers: []keyrate.TierState{
			{Tier: keyrate.DefaultTiers()[0], Consecutive: 1},
		},
	}
	h := newTestRouter(mon, nil, DefaultChiMiddlewareConfig())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body struct {
		Data StatsResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	got := body.Data
	if got.Stats.MaxRate != 12 || got.AverageKeyRate != 7.5 {
		t.Errorf("stats = %+v avg=%v", got.Stats, got.AverageKeyRate)
	}
	if got.LastSample.Count != 7 || got.PendingStrokes != 3 {
		t.Errorf("last=%+v pending=%d", got.LastSample, got.PendingStrokes)
	}
	if len(got.Tiers) != 1 || got.Tiers[0].Tier.Name != "high" || got.Tiers[0].Consecutive != 1 {
		t.Errorf("tiers = %+v", got.Tiers)
	}
	if got.SampleInterval != "1s" || got.StatsInterval != "1m0s" {
		t.Errorf("intervals = %q %q", got.SampleInterval, got.StatsInterval)
	}
}

func TestEvents(t *testing.T) {
	t.Parallel()

	entries := []sink.JournalEntry{
		{ID: "b", DetectionEvent: keyrate.DetectionEvent{EventType: keyrate.EventTypeHighKeyRate}},
		{ID: "a", DetectionEvent: keyrate.DetectionEvent{EventType: keyrate.EventTypeKeyRateStats}},
	}

	tests := []struct {
		name       string
		query      string
		journal    *mockJournal
		wantStatus int
		wantLimit  int
		wantCode   string
	}{
		{"default limit", "", &mockJournal{entries: entries}, http.StatusOK, sink.DefaultListLimit, ""},
		{"explicit limit", "?limit=1", &mockJournal{entries: entries}, http.StatusOK, 1, ""},
		{"non-integer", "?limit=abc", &mockJournal{}, http.StatusBadRequest, 0, ErrCodeValidationFailed},
		{"zero", "?limit=0", &mockJournal{}, http.StatusBadRequest, 0, ErrCodeValidationFailed},
		{"too large", "?limit=5000", &mockJournal{}, http.StatusBadRequest, 0, ErrCodeValidationFailed},
		{"journal error", "", &mockJournal{err: errors.New("disk gone")}, http.StatusInternalServerError, sink.DefaultListLimit, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newTestRouter(&mockMonitor{running: true}, tt.journal, DefaultChiMiddlewareConfig())
			w, resp := doGet(t, h, "/api/v1/events"+tt.query)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.journal.lastLimit != tt.wantLimit {
				t.Errorf("journal limit = %d, want %d", tt.journal.lastLimit, tt.wantLimit)
			}
			if tt.wantCode != "" {
				if resp.Error == nil || resp.Error.Code != tt.wantCode {
					t.Errorf("error = %+v, want code %s", resp.Error, tt.wantCode)
				}
				return
			}
			if resp.Meta == nil || resp.Meta.Count == nil || *resp.Meta.Count != min(tt.wantLimit, len(entries)) {
				t.Errorf("meta = %+v", resp.Meta)
			}
		})
	}
}

func TestEvents_JournalDisabled(t *testing.T) {
	t.Parallel()

	h := newTestRouter(&mockMonitor{running: true}, nil, DefaultChiMiddlewareConfig())
	w, _ := doGet(t, h, "/api/v1/events")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestEvents_RealJournal(t *testing.T) {
	t.Parallel()

	j, err := sink.OpenJournal(sink.JournalConfig{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	for i := 0; i < 3; i++ {
		if err := j.Append(&keyrate.DetectionEvent{EventType: keyrate.EventTypeHighKeyRate, Message: "m"}); err != nil {
			t.Fatal(err)
		}
	}

	h := newTestRouter(&mockMonitor{running: true}, j, DefaultChiMiddlewareConfig())
	w, resp := doGet(t, h, "/api/v1/events?limit=2")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if *resp.Meta.Count != 2 {
		t.Errorf("count = %d, want 2", *resp.Meta.Count)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	mw := DefaultChiMiddlewareConfig()
	mw.RateLimitRequests = 2
	h := newTestRouter(&mockMonitor{running: true}, nil, mw)

	for i := 0; i < 2; i++ {
		if w, _ := doGet(t, h, "/api/v1/health"); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}
	w, resp := doGet(t, h, "/api/v1/health")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeTooManyRequests {
		t.Errorf("error = %+v", resp.Error)
	}

	mw.RateLimitDisabled = true
	open := newTestRouter(&mockMonitor{running: true}, nil, mw)
	for i := 0; i < 5; i++ {
		if w, _ := doGet(t, open, "/api/v1/health"); w.Code != http.StatusOK {
			t.Fatalf("disabled limiter request %d status = %d", i, w.Code)
		}
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	mw := DefaultChiMiddlewareConfig()
	mw.CORSAllowedOrigins = []string{"http://dash.example"}
	h := newTestRouter(&mockMonitor{running: true}, nil, mw)

	for origin, want := range map[string]string{
		"http://dash.example": "http://dash.example",
		"http://evil.example": "",
	} {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		r.Header.Set("Origin", origin)
		h.ServeHTTP(w, r)
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != want {
			t.Errorf("origin %s: Allow-Origin = %q, want %q", origin, got, want)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	h := newTestRouter(&mockMonitor{running: true}, nil, DefaultChiMiddlewareConfig())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "quacklock_keyrate_samples_total") {
		t.Error("metrics output missing quacklock_keyrate_samples_total")
	}
}

func TestWebSocketRouteOptional(t *testing.T) {
	t.Parallel()

	h := newTestRouter(&mockMonitor{running: true}, nil, DefaultChiMiddlewareConfig())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 without hub", w.Code)
	}

	called := false
	withWS := NewRouter(RouterConfig{
		Handler:    NewHandler(&mockMonitor{}, nil, nil, "test"),
		WebSocket:  http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }),
		Middleware: DefaultChiMiddlewareConfig(),
	})
	withWS.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil))
	if !called {
		t.Error("websocket handler not routed")
	}
}
