// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

/*
Package sink delivers detection events to their consumers.

The Dispatcher implements keyrate.Sink and fans each event out to registered
Notifiers:

  - LogNotifier: one structured log line per event
  - LockNotifier: locks the workstation on critical detections
  - Journal: durable badger-backed event history with a text file fallback
  - WebhookNotifier: JSON POST to an HTTP endpoint
  - NATSNotifier: publishes to <prefix>.<event type> via Watermill
  - HubNotifier: pushes events to live WebSocket viewers

Synchronous notifiers run inline on the caller's goroutine; asynchronous ones
run on their own goroutine. Every send is bounded by a timeout, and a failing
or panicking notifier never prevents delivery to the others.
*/
package sink
