// QuackLock - Keystroke Injection Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/quacklock

package capture

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/quacklock/internal/keyrate"
)

// fakeDevices is a scan/open pair over chanReaders keyed by path
type fakeDevices struct {
	mu      sync.Mutex
	listed  []string
	readers map[string]*chanReader
	opens   map[string]int
}

func newFakeDevices(paths ...string) *fakeDevices {
	return &fakeDevices{listed: paths, readers: make(map[string]*chanReader), opens: make(map[string]int)}
}

func (d *fakeDevices) scan() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.listed...), nil
}

func (d *fakeDevices) open(path string) (StreamReader, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := newChanReader()
	d.readers[path] = r
	d.opens[path]++
	return r, nil
}

func (d *fakeDevices) plug(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listed = append(d.listed, path)
}

// reader waits for path to be opened and returns its current reader.
func (d *fakeDevices) reader(t *testing.T, path string) *chanReader {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		r := d.readers[path]
		d.mu.Unlock()
		if r != nil {
			return r
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("device %s never opened", path)
	return nil
}

func (d *fakeDevices) openCount(path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens[path]
}

func isClosed(r *chanReader) bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

func TestDeviceSource_ReadsEveryKeyboard(t *testing.T) {
	t.Parallel()

	devs := newFakeDevices("kbd0", "kbd1")
	src := NewDeviceSource("test", devs.scan, devs.open, 0)

	var inHandler, overlaps atomic.Int32
	var c collector
	reg, err := src.Register(func(n keyrate.KeyNotification) {
		if inHandler.Add(1) > 1 {
			overlaps.Add(1)
		}
		c.handle(n)
		inHandler.Add(-1)
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	kbd0, kbd1 := devs.reader(t, "kbd0"), devs.reader(t, "kbd1")
	var wg sync.WaitGroup
	for i, r := range []*chanReader{kbd0, kbd1} {
		wg.Add(1)
		go func(base uint16, r *chanReader) {
			defer wg.Done()
			for vk := base; vk < base+5; vk++ {
				r.ch <- keyrate.KeyNotification{VirtualKey: vk, Down: true}
			}
		}(uint16(i*100+1), r)
	}
	wg.Wait()

	got := c.waitFor(t, 10)
	keys := make([]int, 0, len(got))
	for _, n := range got {
		keys = append(keys, int(n.VirtualKey))
	}
	sort.Ints(keys)
	want := []int{1, 2, 3, 4, 5, 101, 102, 103, 104, 105}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
	if overlaps.Load() != 0 {
		t.Errorf("handler ran concurrently %d times", overlaps.Load())
	}

	if err := reg.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !isClosed(kbd0) || !isClosed(kbd1) {
		t.Error("Close left a device reader open")
	}
	if err := reg.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestDeviceSource_HotPlug(t *testing.T) {
	t.Parallel()

	devs := newFakeDevices("kbd0")
	src := NewDeviceSource("test", devs.scan, devs.open, 5*time.Millisecond)

	var c collector
	reg, err := src.Register(c.handle)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer reg.Close()

	devs.plug("kbd1")
	devs.reader(t, "kbd1").ch <- keyrate.KeyNotification{VirtualKey: 7, Down: true}
	if got := c.waitFor(t, 1); got[0].VirtualKey != 7 {
		t.Errorf("notification = %+v, want vk 7", got[0])
	}
	if n := devs.openCount("kbd0"); n != 1 {
		t.Errorf("kbd0 opened %d times, want 1", n)
	}
}

func TestDeviceSource_ReopensLostDevice(t *testing.T) {
	t.Parallel()

	devs := newFakeDevices("kbd0")
	src := NewDeviceSource("test", devs.scan, devs.open, 5*time.Millisecond)

	reg, err := src.Register(func(keyrate.KeyNotification) {})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer reg.Close()

	close(devs.reader(t, "kbd0").ch)

	deadline := time.Now().Add(2 * time.Second)
	for devs.openCount("kbd0") < 2 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if n := devs.openCount("kbd0"); n < 2 {
		t.Errorf("kbd0 opened %d times after stream end, want a reopen", n)
	}
}

func TestDeviceSource_NoDevices(t *testing.T) {
	t.Parallel()

	devs := newFakeDevices()
	src := NewDeviceSource("test", devs.scan, devs.open, 0)
	if _, err := src.Register(func(keyrate.KeyNotification) {}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Register() = %v, want ErrUnsupported", err)
	}

	denied := errors.New("permission denied")
	src = NewDeviceSource("test", devs.scan, func(string) (StreamReader, error) { return nil, denied }, 0)
	devs.plug("kbd0")
	if _, err := src.Register(func(keyrate.KeyNotification) {}); !errors.Is(err, denied) {
		t.Errorf("Register() = %v, want %v", err, denied)
	}
}
