// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package keyrate

import "sync/atomic"

// StrokeCounter counts genuine key-down transitions.
//
// The count is incremented by the input goroutine and drained by the sampler,
// so it is atomic. The held-key tracker is only touched by the input goroutine.
type StrokeCounter struct {
	count atomic.Int64

	held    uint16
	holding bool
}

// RecordKeyDown counts vk unless it is the key currently held down (an OS
// auto-repeat). It reports whether the press was counted.
func (c *StrokeCounter) RecordKeyDown(vk uint16) bool {
	if c.holding && c.held == vk {
		return false
	}
	c.count.Add(1)
	c.held = vk
	c.holding = true
	return true
}

// RecordKeyUp releases vk if it is the held key. Any other key-up is ignored.
func (c *StrokeCounter) RecordKeyUp(vk uint16) {
	if c.holding && c.held == vk {
		c.holding = false
	}
}

// Handle routes a notification to RecordKeyDown or RecordKeyUp.
func (c *StrokeCounter) Handle(n KeyNotification) {
	if n.Down {
		c.RecordKeyDown(n.VirtualKey)
		return
	}
	c.RecordKeyUp(n.VirtualKey)
}

// Drain returns the number of presses since the previous drain and resets
// the counter in the same atomic step.
func (c *StrokeCounter) Drain() int {
	return int(c.count.Swap(0))
}

// Pending returns the current count without draining it.
func (c *StrokeCounter) Pending() int {
	return int(c.count.Load())
}
