package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"camgrid/internal/events"
)

func publishAndSettle(bus *events.Bus, ev events.Event) {
	bus.Publish(ev)
	// kelindar/event delivers asynchronously.
	time.Sleep(50 * time.Millisecond)
}

func TestObserverSessionState(t *testing.T) {
	bus := events.New()
	o := NewObserver(bus)
	defer o.Close()

	publishAndSettle(bus, events.SessionStateChangedEvent{Slot: 0, From: "idle", To: "playing"})

	if got := testutil.ToFloat64(sessionState.WithLabelValues("0", "playing")); got != 1 {
		t.Errorf("playing gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(sessionState.WithLabelValues("0", "idle")); got != 0 {
		t.Errorf("idle gauge = %v, want 0", got)
	}
}

func TestObserverCounters(t *testing.T) {
	bus := events.New()
	o := NewObserver(bus)
	defer o.Close()

	before := testutil.ToFloat64(recoveriesTotal.WithLabelValues("2", "frozen playback"))
	publishAndSettle(bus, events.SessionRecoveredEvent{Slot: 2, Reason: "frozen playback"})
	if got := testutil.ToFloat64(recoveriesTotal.WithLabelValues("2", "frozen playback")); got != before+1 {
		t.Errorf("recoveries = %v, want %v", got, before+1)
	}

	retriesBefore := testutil.ToFloat64(retriesTotal.WithLabelValues("2"))
	cooldownsBefore := testutil.ToFloat64(cooldownsTotal.WithLabelValues("2"))
	publishAndSettle(bus, events.RetryScheduledEvent{Slot: 2, RetryCount: 1, DelayMs: 3000})
	publishAndSettle(bus, events.RetryScheduledEvent{Slot: 2, Cooldown: true, DelayMs: 300000})
	if got := testutil.ToFloat64(retriesTotal.WithLabelValues("2")); got != retriesBefore+2 {
		t.Errorf("retries = %v, want %v", got, retriesBefore+2)
	}
	if got := testutil.ToFloat64(cooldownsTotal.WithLabelValues("2")); got != cooldownsBefore+1 {
		t.Errorf("cooldowns = %v, want %v", got, cooldownsBefore+1)
	}

	errsBefore := testutil.ToFloat64(engineErrorsTotal.WithLabelValues("2", "network"))
	publishAndSettle(bus, events.EngineErrorEvent{Slot: 2, Class: "network"})
	if got := testutil.ToFloat64(engineErrorsTotal.WithLabelValues("2", "network")); got != errsBefore+1 {
		t.Errorf("engine errors = %v, want %v", got, errsBefore+1)
	}
}

func TestObserverVisibility(t *testing.T) {
	bus := events.New()
	o := NewObserver(bus)
	defer o.Close()

	publishAndSettle(bus, events.VisibilityChangedEvent{Visible: false, Source: "page"})
	if got := testutil.ToFloat64(pageVisible); got != 0 {
		t.Errorf("page_visible = %v, want 0", got)
	}
	publishAndSettle(bus, events.VisibilityChangedEvent{Visible: true, Source: "page"})
	if got := testutil.ToFloat64(pageVisible); got != 1 {
		t.Errorf("page_visible = %v, want 1", got)
	}
}
