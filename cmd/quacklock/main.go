// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

/*
Package main is the quacklock command.

QuackLock watches keyboard input for sustained typing rates no human can
produce, the signature of a keystroke-injection device, and reacts by
logging, journaling, publishing and optionally locking the workstation.

Subcommands:

	quacklock [run]          start the monitor under the supervisor tree
	quacklock replay FILE    analyse a JSON Lines key recording offline
	quacklock events         print journaled detection events
	quacklock version        print build information

Configuration comes from defaults, the first config file found (or --config)
and environment variables, in that order.
*/
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
