// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package sink

import (
	"context"

	"github.com/tomtom215/quacklock/internal/keyrate"
	"github.com/tomtom215/quacklock/internal/websocket"
)

// Broadcaster is satisfied by *websocket.Hub.
type Broadcaster interface {
	Broadcast(messageType string, data any) bool
}

// HubNotifier pushes events to live WebSocket viewers. Statistics summaries
// become stats_update messages; everything else is a detection_event.
type HubNotifier struct {
	hub Broadcaster
}

// NewHubNotifier creates a hub notifier.
func NewHubNotifier(hub Broadcaster) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (*HubNotifier) Name() string    { return "websocket" }
func (n *HubNotifier) Enabled() bool { return n.hub != nil }

// Send queues the event without blocking.
func (n *HubNotifier) Send(_ context.Context, event *keyrate.DetectionEvent) error {
	msgType := websocket.MessageTypeDetectionEvent
	if event.EventType == keyrate.EventTypeKeyRateStats {
		msgType = websocket.MessageTypeStatsUpdate
	}
	if !n.hub.Broadcast(msgType, *event) {
		return ErrQueueFull
	}
	return nil
}
