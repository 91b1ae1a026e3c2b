// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

/*
Package supervisor runs QuackLock's long-lived services under suture v4.

The tree has three layers so that a failure in one does not restart the
others:

	RootSupervisor ("quacklock")
	├── CaptureSupervisor ("capture-layer")
	│   └── MonitorService
	├── DeliverySupervisor ("delivery-layer")
	│   ├── HubService
	│   └── JournalService (if the journal is enabled)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (if the server is enabled)

When the keyboard device disappears the monitor's Start fails and suture
restarts the capture layer with backoff while the API keeps answering.

Supervisor events are logged through sutureslog using the slog bridge from
internal/logging.

# Usage

	tree, err := supervisor.NewSupervisorTree(logger, supervisor.FromConfig(cfg.Supervisor))
	if err != nil {
	    return err
	}
	tree.AddCaptureService(services.NewMonitorService(monitor))
	tree.AddDeliveryService(services.NewHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Timeout))
	return tree.Serve(ctx)

See the services subpackage for the wrappers.
*/
package supervisor
