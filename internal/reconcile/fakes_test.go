package reconcile

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/garaged/internal/door"
	"github.com/dokzlo13/garaged/internal/eventbus"
)

// fakeClock provides a controllable time source and timers for deterministic tests.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and runs every timer that came due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// pending returns the timers that are neither stopped nor fired.
func (c *fakeClock) pending() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeDoor is a scripted remote door.
type fakeDoor struct {
	mu        sync.Mutex
	status    string
	fetchErr  error
	toggleErr error
	fetches   int
	toggles   int
}

func (d *fakeDoor) FetchStatus(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetches++
	if d.fetchErr != nil {
		return "", d.fetchErr
	}
	return d.status, nil
}

func (d *fakeDoor) SendToggle(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.toggles++
	return d.toggleErr
}

func (d *fakeDoor) setStatus(s string) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
}

func (d *fakeDoor) toggleCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.toggles
}

func (d *fakeDoor) fetchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fetches
}

type update struct {
	C Characteristic
	S door.State
}

// recordingHost records every pushed characteristic update.
type recordingHost struct {
	mu      sync.Mutex
	updates []update
}

func (h *recordingHost) UpdateCharacteristic(c Characteristic, s door.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, update{C: c, S: s})
}

func (h *recordingHost) all() []update {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]update(nil), h.updates...)
}

func (h *recordingHost) reset() {
	h.mu.Lock()
	h.updates = nil
	h.mu.Unlock()
}

// recordingPublisher collects events synchronously.
type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(e eventbus.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) ofType(t eventbus.EventType) []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []eventbus.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type testRig struct {
	r      *Reconciler
	door   *fakeDoor
	host   *recordingHost
	clock  *fakeClock
	events *recordingPublisher
}

const testAutoClose = 600 * time.Second

func newTestRig() *testRig {
	rig := &testRig{
		door:   &fakeDoor{},
		host:   &recordingHost{},
		clock:  newFakeClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)),
		events: &recordingPublisher{},
	}
	rig.r = New(rig.door, rig.host, rig.events, Config{AutoClose: testAutoClose})
	rig.r.timeNow = rig.clock.Now
	rig.r.afterFunc = rig.clock.AfterFunc
	return rig
}

// poll sets the door status and runs one poll cycle.
func (rig *testRig) poll(status string) {
	rig.door.setStatus(status)
	rig.r.PollOnce(context.Background())
}

// command issues a target command and returns how often the completion
// callback ran together with the last acknowledged error.
func (rig *testRig) command(target door.State) (calls int, err error) {
	rig.r.SetTargetState(context.Background(), target, func(e error) {
		err = e
		calls++
	})
	return calls, err
}

// captureLog redirects the global logger into a buffer for the test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}
