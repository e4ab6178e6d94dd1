// Package visibility tracks whether the dashboard is observable. Two
// signals feed it: explicit page visibility reports from the browser and
// client presence on the live websocket hub. The effective state drives
// session suspend and resume.
package visibility

import (
	"sync"
	"time"

	"camgrid/internal/events"
	"camgrid/internal/logging"
)

// Tracker combines visibility signals into one boolean. A dashboard is
// visible when at least one client is connected and the latest page report
// did not declare it hidden. With no clients ever connected the tracker
// stays visible so a headless deployment still streams.
type Tracker struct {
	bus    *events.Bus
	logger logging.Logger

	mu            sync.Mutex
	pageVisible   bool
	clients       int
	everConnected bool
	subs          map[int]func(bool)
	nextSub       int
}

// New creates a Tracker that starts visible.
func New(bus *events.Bus) *Tracker {
	return &Tracker{
		bus:         bus,
		logger:      logging.GetLogger("visibility"),
		pageVisible: true,
		subs:        make(map[int]func(bool)),
	}
}

// SetPageVisible records an explicit page visibility report.
func (t *Tracker) SetPageVisible(visible bool) {
	t.update("page", func() { t.pageVisible = visible })
}

// SetClients records the number of connected dashboard clients. Wired to
// the hub's presence callback.
func (t *Tracker) SetClients(n int) {
	t.update("presence", func() {
		t.clients = n
		if n > 0 {
			t.everConnected = true
		}
	})
}

// Visible returns the effective visibility.
func (t *Tracker) Visible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visibleLocked()
}

func (t *Tracker) visibleLocked() bool {
	if t.everConnected && t.clients == 0 {
		return false
	}
	return t.pageVisible
}

// OnChange registers a callback invoked whenever the effective visibility
// flips. Returns an unsubscribe function. Callbacks run on the goroutine
// that caused the flip.
func (t *Tracker) OnChange(fn func(visible bool)) func() {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

func (t *Tracker) update(source string, apply func()) {
	t.mu.Lock()
	before := t.visibleLocked()
	apply()
	after := t.visibleLocked()
	var fns []func(bool)
	if before != after {
		for _, fn := range t.subs {
			fns = append(fns, fn)
		}
	}
	t.mu.Unlock()

	if before == after {
		return
	}
	t.logger.Info("visibility changed", "visible", after, "source", source)
	if t.bus != nil {
		t.bus.Publish(events.VisibilityChangedEvent{
			Visible:   after,
			Source:    source,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
	for _, fn := range fns {
		fn(after)
	}
}
