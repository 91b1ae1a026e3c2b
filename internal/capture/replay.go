// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package capture

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/quacklock/internal/keyrate"
)

// ReadRecording parses a JSON Lines recording. Blank lines and lines starting
// with '#' are skipped.
func ReadRecording(r io.Reader) ([]keyrate.KeyNotification, error) {
	var out []keyrate.KeyNotification
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 || b[0] == '#' {
			continue
		}
		var n keyrate.KeyNotification
		if err := json.Unmarshal(b, &n); err != nil {
			return nil, fmt.Errorf("recording line %d: %w", line, err)
		}
		out = append(out, n)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	return out, nil
}

// ReplaySource plays a recording back in real time scaled by speed.
type ReplaySource struct {
	*EventSource
}

// NewReplaySource replays the file at path. A speed of 2 plays twice as fast;
// non-positive speeds play at recorded pace.
func NewReplaySource(path string, speed float64) *ReplaySource {
	return &ReplaySource{EventSource: NewEventSource("replay", func() (StreamReader, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open recording: %w", err)
		}
		defer f.Close()
		events, err := ReadRecording(f)
		if err != nil {
			return nil, err
		}
		return newReplayReader(events, speed), nil
	})}
}

// replayReader paces a parsed recording by its timestamps.
type replayReader struct {
	events []keyrate.KeyNotification
	speed  float64
	next   int
	last   time.Time

	closeOnce sync.Once
	closed    chan struct{}
}

func newReplayReader(events []keyrate.KeyNotification, speed float64) *replayReader {
	if speed <= 0 {
		speed = 1
	}
	return &replayReader{events: events, speed: speed, closed: make(chan struct{})}
}

// Next waits for the recorded gap before returning the next notification.
// The notification is stamped with the wall clock time it is replayed at.
func (r *replayReader) Next() (keyrate.KeyNotification, error) {
	if r.next >= len(r.events) {
		return keyrate.KeyNotification{}, io.EOF
	}
	n := r.events[r.next]
	if r.next > 0 && !n.Timestamp.IsZero() {
		if gap := n.Timestamp.Sub(r.last); gap > 0 {
			timer := time.NewTimer(time.Duration(float64(gap) / r.speed))
			select {
			case <-timer.C:
			case <-r.closed:
				timer.Stop()
				return keyrate.KeyNotification{}, io.ErrClosedPipe
			}
		}
	}
	select {
	case <-r.closed:
		return keyrate.KeyNotification{}, io.ErrClosedPipe
	default:
	}
	r.last = n.Timestamp
	r.next++
	n.Timestamp = time.Now()
	return n, nil
}

func (r *replayReader) Close() error {
	r.closeOnce.Do(func() { close(r.closed) })
	return nil
}
