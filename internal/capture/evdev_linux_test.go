// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

//go:build linux

package capture

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"golang.org/x/sys/unix"
)

const keyA = 30 // KEY_A

func encodeEvents(t *testing.T, events ...inputEvent) io.ReadCloser {
	t.Helper()
	var buf bytes.Buffer
	for _, ev := range events {
		if err := binary.Write(&buf, binary.NativeEndian, ev); err != nil {
			t.Fatal(err)
		}
	}
	return io.NopCloser(&buf)
}

func TestEvdevReader_Next(t *testing.T) {
	t.Parallel()

	tv := unix.NsecToTimeval(1_760_000_000_500_000_000)
	r := NewEvdevReader(encodeEvents(t,
		inputEvent{Time: tv, Type: 0x04, Code: 0x04, Value: 458756}, // EV_MSC scan code
		inputEvent{Time: tv, Type: evKey, Code: keyA, Value: keyPressed},
		inputEvent{Time: tv, Type: 0x00}, // EV_SYN
		inputEvent{Time: tv, Type: evKey, Code: keyA, Value: keyRepeated},
		inputEvent{Time: tv, Type: evKey, Code: keyA, Value: keyReleased},
	))
	defer r.Close()

	want := []bool{true, true, false}
	for i, down := range want {
		n, err := r.Next()
		if err != nil {
			t.Fatalf("Next #%d: %v", i, err)
		}
		if n.VirtualKey != keyA || n.Down != down {
			t.Errorf("Next #%d = %+v, want vk=%d down=%v", i, n, keyA, down)
		}
		if n.Timestamp.UnixMilli() != 1_760_000_000_500 {
			t.Errorf("Next #%d timestamp = %v", i, n.Timestamp)
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("Next at end = %v, want io.EOF", err)
	}
}
