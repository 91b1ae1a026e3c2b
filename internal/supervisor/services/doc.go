// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

/*
Package services adapts QuackLock components to suture.Service.

Each wrapper turns a component lifecycle into suture's context-aware
Serve(ctx) error and names itself through fmt.Stringer for the supervisor's
event log.

HTTPServerService binds its listener inside Serve and shuts the server down
with a bounded timeout when the context ends.

RunnerService wraps anything with RunWithContext. NewMonitorService,
NewHubService and NewJournalService give the detection monitor, websocket hub
and journal GC loop stable names.
*/
package services
