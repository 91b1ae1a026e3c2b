// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package keyrate

import (
	"sync"
	"testing"
)

func TestStrokeCounter_RepeatSuppression(t *testing.T) {
	t.Parallel()

	var c StrokeCounter
	if !c.RecordKeyDown(0x41) {
		t.Fatal("first press should be counted")
	}
	for i := 0; i < 20; i++ {
		if c.RecordKeyDown(0x41) {
			t.Fatalf("auto-repeat %d should not be counted", i)
		}
	}
	if got := c.Drain(); got != 1 {
		t.Errorf("Drain() = %d, want 1", got)
	}
}

func TestStrokeCounter_RePressAfterRelease(t *testing.T) {
	t.Parallel()

	var c StrokeCounter
	for i := 0; i < 5; i++ {
		c.RecordKeyDown(0x41)
		c.RecordKeyUp(0x41)
	}
	if got := c.Drain(); got != 5 {
		t.Errorf("Drain() = %d, want 5", got)
	}
}

func TestStrokeCounter_DistinctKeys(t *testing.T) {
	t.Parallel()

	var c StrokeCounter
	// Rolling over: B goes down while A is still held, then A repeats.
	c.RecordKeyDown(0x41)
	c.RecordKeyDown(0x42)
	c.RecordKeyDown(0x41)
	if got := c.Drain(); got != 3 {
		t.Errorf("Drain() = %d, want 3", got)
	}
}

func TestStrokeCounter_UnmatchedKeyUp(t *testing.T) {
	t.Parallel()

	var c StrokeCounter
	c.RecordKeyUp(0x10)
	c.RecordKeyDown(0x41)
	c.RecordKeyUp(0x42) // not the held key
	c.RecordKeyDown(0x41)
	c.RecordKeyUp(0x41)
	c.RecordKeyUp(0x41)

	if got := c.Drain(); got != 1 {
		t.Errorf("Drain() = %d, want 1", got)
	}
}

func TestStrokeCounter_DrainTwice(t *testing.T) {
	t.Parallel()

	var c StrokeCounter
	c.RecordKeyDown(1)
	c.RecordKeyDown(2)
	if got := c.Drain(); got != 2 {
		t.Fatalf("first Drain() = %d, want 2", got)
	}
	if got := c.Drain(); got != 0 {
		t.Errorf("second Drain() = %d, want 0", got)
	}
}

func TestStrokeCounter_Handle(t *testing.T) {
	t.Parallel()

	var c StrokeCounter
	c.Handle(KeyNotification{VirtualKey: 7, Down: true})
	c.Handle(KeyNotification{VirtualKey: 7, Down: true})
	c.Handle(KeyNotification{VirtualKey: 7, Down: false})
	c.Handle(KeyNotification{VirtualKey: 7, Down: true})

	if got := c.Pending(); got != 2 {
		t.Errorf("Pending() = %d, want 2", got)
	}
}

func TestStrokeCounter_ConcurrentDrain(t *testing.T) {
	t.Parallel()

	const presses = 10000

	var c StrokeCounter
	var wg sync.WaitGroup
	done := make(chan struct{})

	total := 0
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				total += c.Drain()
				return
			default:
				total += c.Drain()
			}
		}
	}()

	for i := 0; i < presses; i++ {
		vk := uint16(i % 2)
		c.RecordKeyDown(vk)
		c.RecordKeyUp(vk)
	}
	close(done)
	wg.Wait()

	if total != presses {
		t.Errorf("drained %d strokes, want %d", total, presses)
	}
}
