// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

// Package websocket streams detection events to live dashboard clients.
//
// A Hub owns the connected clients and a buffered broadcast queue drained by
// RunWithContext (a suture service). Broadcasts never block: when the queue is
// full the message is dropped and counted, and a client whose send buffer is
// full is disconnected.
package websocket

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/quacklock/internal/logging"
	"github.com/tomtom215/quacklock/internal/metrics"
)

// Message types
const (
	MessageTypeDetectionEvent = "detection_event"
	MessageTypeStatsUpdate    = "stats_update"
	MessageTypePing           = "ping"
	MessageTypePong           = "pong"
)

// Message is the envelope written to clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*Client]struct{}
	broadcast chan Message
	upgrader  websocket.Upgrader
}

// NewHub creates a hub. allowedOrigins restricts browser upgrades; empty
// allows same-origin requests only, "*" allows any origin.
func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{
		clients:   make(map[*Client]struct{}),
		broadcast: make(chan Message, 256),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	wildcard := false
	for _, o := range allowed {
		if o == "*" {
			wildcard = true
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || wildcard {
			return true
		}
		if set[origin] {
			return true
		}
		// Same-origin requests are always allowed.
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}

// ServeHTTP upgrades the request and registers a client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.WSErrors.WithLabelValues("upgrade").Inc()
		logging.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := newClient(h, conn)
	h.register(c)
	c.start()
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnections.Set(float64(n))
	logging.Info().Uint64("client_id", c.id).Int("total_clients", n).Msg("websocket client connected")
}

// unregister removes c and closes its send channel exactly once.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		metrics.WSConnections.Set(float64(n))
		logging.Info().Uint64("client_id", c.id).Int("total_clients", n).Msg("websocket client disconnected")
	}
}

// RunWithContext drains the broadcast queue until ctx is canceled, then
// disconnects every client. Designed for suture supervision.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			closed := h.closeAll()
			logging.Info().
				Str("component", "websocket-hub").
				Int("clients_closed", closed).
				Msg("websocket hub stopped")
			return ctx.Err()
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// fanOut delivers msg to clients in connection order.
func (h *Hub) fanOut(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, c := range clients {
		select {
		case c.send <- msg:
			metrics.WSMessagesSent.Inc()
		default:
			metrics.WSErrors.WithLabelValues("slow_client").Inc()
			close(c.send)
			delete(h.clients, c)
		}
	}
	metrics.WSConnections.Set(float64(len(h.clients)))
}

func (h *Hub) closeAll() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.clients)
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	metrics.WSConnections.Set(0)
	return n
}

// Broadcast queues a message for every client. It never blocks.
func (h *Hub) Broadcast(messageType string, data any) bool {
	select {
	case h.broadcast <- Message{Type: messageType, Data: data}:
		return true
	default:
		metrics.WSErrors.WithLabelValues("queue_full").Inc()
		logging.Warn().Str("message_type", messageType).Msg("broadcast queue full, dropping message")
		return false
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MarshalMessage encodes a message as JSON.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
