package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"camgrid/internal/config"
	"camgrid/internal/engine"
	"camgrid/internal/events"
)

func newTestManager(t *testing.T, profile Profile, bus *events.Bus) (*Manager, *engineLog, *fakeSinks) {
	t.Helper()
	engines := &engineLog{}
	sinks := newFakeSinks()
	m := NewManager(Config{
		Factory:  engines.factory,
		Sinks:    sinks,
		Bus:      bus,
		Profile:  profile,
		Tunables: testTunables(),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		m.Shutdown(ctx)
	})
	return m, engines, sinks
}

func slotsFile(urls ...string) config.SlotsFile {
	sf := config.SlotsFile{Grid: config.Grid{Columns: 3, Rows: 2}}
	for i, u := range urls {
		sf.Slots = append(sf.Slots, config.Slot{Index: i, URL: u, Name: fmt.Sprintf("Cam %d", i)})
	}
	return sf
}

func slotSnapshot(m *Manager, index int) (SlotSnapshot, bool) {
	for _, s := range m.Snapshot().Sessions {
		if s.Index == index {
			return s, true
		}
	}
	return SlotSnapshot{}, false
}

func TestEmptySlotShowsPlaceholder(t *testing.T) {
	m, engines, sinks := newTestManager(t, ProfileConcurrent, nil)
	m.ApplySlots(slotsFile(""))

	waitFor(t, time.Second, func() bool { return sinks.at(0).placeholderCount() > 0 })
	if engines.count() != 0 {
		t.Errorf("engine created for a slot with no URL")
	}
	snap, ok := slotSnapshot(m, 0)
	if !ok {
		t.Fatal("missing slot snapshot")
	}
	if snap.HasURL || snap.EngineAttached {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestConcurrentStartup(t *testing.T) {
	m, engines, _ := newTestManager(t, ProfileConcurrent, nil)
	m.ApplySlots(slotsFile("http://cam/0.m3u8", "http://cam/1.m3u8", "http://cam/2.m3u8"))

	waitFor(t, time.Second, func() bool { return engines.count() == 3 })
	if snap := m.Snapshot(); snap.Sequencing {
		t.Error("concurrent profile should not report sequencing")
	}
}

func TestSessionReachesPlaying(t *testing.T) {
	m, engines, sinks := newTestManager(t, ProfileConcurrent, nil)
	m.ApplySlots(slotsFile("http://cam/0.m3u8"))

	waitFor(t, time.Second, func() bool { return engines.count() == 1 })
	// Media attach triggers playback on the sink.
	waitFor(t, time.Second, func() bool { return sinks.at(0).Playing() })

	engines.at(0).emit(engine.Event{Kind: engine.EventFragmentBuffered, Sequence: 1})
	waitFor(t, time.Second, func() bool {
		snap, ok := slotSnapshot(m, 0)
		return ok && snap.State == "playing"
	})
}

func TestStaggeredStartup(t *testing.T) {
	m, engines, _ := newTestManager(t, ProfileStaggered, nil)
	m.ApplySlots(slotsFile("http://cam/0.m3u8", "http://cam/1.m3u8", "http://cam/2.m3u8"))

	waitFor(t, time.Second, func() bool { return engines.count() == 1 })
	time.Sleep(40 * time.Millisecond)
	if engines.count() != 1 {
		t.Fatalf("second slot started before the first signalled playing: %d engines", engines.count())
	}

	// Slot 0 reports playing; slot 1 starts after the stabilization delay.
	engines.at(0).emit(engine.Event{Kind: engine.EventFragmentBuffered})
	waitFor(t, time.Second, func() bool { return engines.count() == 2 })

	// Slot 1 never signals; slot 2 starts after the per-slot timeout.
	waitFor(t, time.Second, func() bool { return engines.count() == 3 })

	engines.at(2).emit(engine.Event{Kind: engine.EventFragmentBuffered})
	waitFor(t, time.Second, func() bool { return !m.Snapshot().Sequencing })
}

func TestStaggeredDrainPublishes(t *testing.T) {
	bus := events.New()
	var drained atomic.Bool
	bus.Subscribe(func(events.SequencerDrainedEvent) { drained.Store(true) })

	m, engines, _ := newTestManager(t, ProfileStaggered, bus)
	m.ApplySlots(slotsFile("http://cam/0.m3u8"))

	waitFor(t, time.Second, func() bool { return engines.count() == 1 })
	engines.at(0).emit(engine.Event{Kind: engine.EventFragmentBuffered})
	waitFor(t, time.Second, func() bool { return drained.Load() })
}

func TestStaggeredSkipsEmptySlots(t *testing.T) {
	m, engines, sinks := newTestManager(t, ProfileStaggered, nil)
	m.ApplySlots(slotsFile("", "http://cam/1.m3u8"))

	waitFor(t, time.Second, func() bool { return sinks.at(0).placeholderCount() > 0 })
	waitFor(t, time.Second, func() bool { return engines.count() == 1 && engines.at(0).sourceURL() != "" })
	if url := engines.at(0).sourceURL(); url != "http://cam/1.m3u8" {
		t.Errorf("queued the wrong slot: %s", url)
	}
}

// A startup timer armed in one run can fire after a new ApplySlots put the
// same slot index back in flight. The stale firing must not advance the
// new run's queue.
func TestStaggeredStaleTimeoutIgnored(t *testing.T) {
	m, engines, _ := newTestManager(t, ProfileStaggered, nil)
	m.ApplySlots(slotsFile("http://cam/0.m3u8", "http://cam/1.m3u8"))
	waitFor(t, time.Second, func() bool { return engines.count() == 1 })

	var staleGen, staleIndex int
	m.call(func() { staleGen, staleIndex = m.seq.gen, m.seq.inFlight })

	// Re-applying the same slots starts a fresh run with slot 0 in
	// flight again.
	m.ApplySlots(slotsFile("http://cam/0.m3u8", "http://cam/1.m3u8"))
	waitFor(t, time.Second, func() bool { return engines.count() == 2 })

	m.call(func() { m.seq.slotTimedOut(staleGen, staleIndex) })

	var inFlight, queued, timedOut int
	m.call(func() { inFlight, queued, timedOut = m.seq.inFlight, m.seq.queueLength(), m.seq.timedOut })
	if inFlight != staleIndex || queued != 1 || timedOut != 0 {
		t.Errorf("stale timeout advanced the run: inFlight=%d queued=%d timedOut=%d", inFlight, queued, timedOut)
	}
}

func TestNetworkErrorRecoveredInPlace(t *testing.T) {
	m, engines, _ := newTestManager(t, ProfileConcurrent, nil)
	m.ApplySlots(slotsFile("http://cam/0.m3u8"))
	waitFor(t, time.Second, func() bool { return engines.count() == 1 })

	e := engines.at(0)
	netErr := &engine.Error{Class: engine.ErrorClassNetwork, Fatal: true, Detail: "segment load failed", Err: errors.New("timeout")}

	// The first three network-class fatals resume in place.
	for i := 1; i <= 3; i++ {
		e.emit(engine.Event{Kind: engine.EventError, Err: netErr})
		waitFor(t, time.Second, func() bool { return e.startLoadCount() == i })
		if e.isDestroyed() {
			t.Fatalf("engine torn down on in-place retry %d", i)
		}
		snap, _ := slotSnapshot(m, 0)
		if snap.RetryCount != i {
			t.Fatalf("retry count = %d after error %d", snap.RetryCount, i)
		}
	}

	// The fourth exhausts the in-place budget: full release plus backoff.
	e.emit(engine.Event{Kind: engine.EventError, Err: netErr})
	waitFor(t, time.Second, func() bool { return e.isDestroyed() })
	waitFor(t, time.Second, func() bool { return engines.count() == 2 })
}

func TestMediaErrorRecovery(t *testing.T) {
	m, engines, _ := newTestManager(t, ProfileConcurrent, nil)
	m.ApplySlots(slotsFile("http://cam/0.m3u8"))
	waitFor(t, time.Second, func() bool { return engines.count() == 1 })

	e := engines.at(0)
	mediaErr := &engine.Error{Class: engine.ErrorClassMedia, Fatal: true, Detail: "decode failed"}

	e.emit(engine.Event{Kind: engine.EventError, Err: mediaErr})
	waitFor(t, time.Second, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.recovers == 1
	})
	if e.isDestroyed() {
		t.Fatal("built-in media recovery should not tear the engine down")
	}

	// When the built-in repair fails, fall back to a full retry.
	e.mu.Lock()
	e.recoverErr = errors.New("unrecoverable")
	e.mu.Unlock()
	e.emit(engine.Event{Kind: engine.EventError, Err: mediaErr})
	waitFor(t, time.Second, func() bool { return e.isDestroyed() })
	waitFor(t, time.Second, func() bool { return engines.count() == 2 })
}

func TestStaleCallbacksAreIgnored(t *testing.T) {
	m, engines, _ := newTestManager(t, ProfileConcurrent, nil)
	m.ApplySlots(slotsFile("http://cam/0.m3u8"))
	waitFor(t, time.Second, func() bool { return engines.count() == 1 })

	e := engines.at(0)
	m.ApplySlots(slotsFile()) // removes the slot, destroying its session
	waitFor(t, time.Second, func() bool { return e.isDestroyed() })

	// Callbacks already in flight at teardown must be no-ops.
	e.emitStale(engine.Event{Kind: engine.EventFragmentBuffered})
	e.emitStale(engine.Event{Kind: engine.EventError, Err: &engine.Error{Class: engine.ErrorClassNetwork, Fatal: true}})
	time.Sleep(50 * time.Millisecond)

	if engines.count() != 1 {
		t.Errorf("stale callback created an engine")
	}
	if len(m.Snapshot().Sessions) != 0 {
		t.Errorf("stale callback resurrected a session")
	}
}

func TestVisibilitySuspendAndResume(t *testing.T) {
	m, engines, sinks := newTestManager(t, ProfileConcurrent, nil)
	m.ApplySlots(slotsFile("http://cam/0.m3u8", "http://cam/1.m3u8", "http://cam/2.m3u8"))
	waitFor(t, time.Second, func() bool { return engines.count() == 3 })

	m.SetVisible(false)
	waitFor(t, time.Second, func() bool {
		for i := 0; i < 3; i++ {
			if !engines.at(i).isStopped() || engines.at(i).isDestroyed() {
				return false
			}
		}
		return true
	})
	for i := 0; i < 3; i++ {
		if sinks.at(i).pauseCount() == 0 {
			t.Errorf("sink %d not paused on hide", i)
		}
	}

	m.SetVisible(true)
	waitFor(t, time.Second, func() bool { return engines.count() == 6 })
	for i := 0; i < 3; i++ {
		if !engines.at(i).isDestroyed() {
			t.Errorf("engine %d survived the visibility reset", i)
		}
	}
}

func TestHealthRecoversFrozenPlayback(t *testing.T) {
	m, engines, sinks := newTestManager(t, ProfileConcurrent, nil)
	m.ApplySlots(slotsFile("http://cam/0.m3u8"))
	waitFor(t, time.Second, func() bool { return engines.count() == 1 })

	// Playing with plenty of buffer but a frozen position.
	sinks.at(0).set(func(s *fakeSink) {
		s.playing = true
		s.buffered = 5
		s.position = 10
	})

	first := engines.at(0)
	waitFor(t, 2*time.Second, func() bool { return first.isDestroyed() && engines.count() >= 2 })

	snap, ok := slotSnapshot(m, 0)
	if !ok {
		t.Fatal("missing slot snapshot")
	}
	if snap.RetryCount != 0 {
		t.Errorf("retry count = %d after recovery, want 0", snap.RetryCount)
	}
}

func TestHealthRecoversMissingEngine(t *testing.T) {
	m, engines, _ := newTestManager(t, ProfileConcurrent, nil)
	m.ApplySlots(slotsFile("http://cam/0.m3u8"))
	waitFor(t, time.Second, func() bool { return engines.count() == 1 })

	// Simulate an engine that vanished without a pending retry.
	m.call(func() {
		s, _ := m.registry.get(0)
		s.releaseEngine()
	})
	waitFor(t, 2*time.Second, func() bool { return engines.count() >= 2 })
}

func TestHealthRecoversPlaybackError(t *testing.T) {
	m, engines, sinks := newTestManager(t, ProfileConcurrent, nil)
	m.ApplySlots(slotsFile("http://cam/0.m3u8"))
	waitFor(t, time.Second, func() bool { return engines.count() == 1 })

	sinks.at(0).set(func(s *fakeSink) { s.err = errors.New("decode error") })
	first := engines.at(0)
	waitFor(t, 2*time.Second, func() bool { return first.isDestroyed() && engines.count() >= 2 })
}

func TestHealthProgressResetsCounters(t *testing.T) {
	m, engines, sinks := newTestManager(t, ProfileConcurrent, nil)
	m.ApplySlots(slotsFile("http://cam/0.m3u8"))
	waitFor(t, time.Second, func() bool { return engines.count() == 1 })

	m.call(func() {
		s, _ := m.registry.get(0)
		s.stallCount = 1
		s.retryCount = 2
	})

	// Keep the position advancing so every tick observes progress.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(5 * time.Millisecond):
				sinks.at(0).set(func(s *fakeSink) {
					s.playing = true
					s.buffered = 5
					s.position += 1
				})
			}
		}
	}()

	waitFor(t, 2*time.Second, func() bool {
		snap, ok := slotSnapshot(m, 0)
		return ok && snap.StallCount == 0 && snap.RetryCount == 0 && snap.State == "playing"
	})
}

func TestHealthResumesUnexpectedPause(t *testing.T) {
	m, engines, sinks := newTestManager(t, ProfileConcurrent, nil)
	m.ApplySlots(slotsFile("http://cam/0.m3u8"))
	waitFor(t, time.Second, func() bool { return engines.count() == 1 })

	// Give the baseline tick a progressing, healthy session first.
	stop := make(chan struct{})
	advancing := &atomic.Bool{}
	advancing.Store(true)
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(5 * time.Millisecond):
				if advancing.Load() {
					sinks.at(0).set(func(s *fakeSink) {
						s.playing = true
						s.buffered = 5
						s.position += 1
					})
				}
			}
		}
	}()
	waitFor(t, time.Second, func() bool {
		snap, _ := slotSnapshot(m, 0)
		return snap.State == "playing"
	})

	// Pause unexpectedly; below the stall threshold the monitor resumes
	// rather than recovering.
	advancing.Store(false)
	sinks.at(0).set(func(s *fakeSink) {
		s.playing = false
		s.paused = true
		s.buffered = 0.5
	})
	plays := sinks.at(0).playCount()
	waitFor(t, 2*time.Second, func() bool { return sinks.at(0).playCount() > plays })
	if engines.at(0).isDestroyed() {
		t.Error("lightweight resume should not tear the engine down")
	}
	advancing.Store(true)
}

func TestLiveEdgeSeek(t *testing.T) {
	m, engines, sinks := newTestManager(t, ProfileConcurrent, nil)
	m.ApplySlots(slotsFile("http://cam/0.m3u8"))
	waitFor(t, time.Second, func() bool { return engines.count() == 1 })

	// Playback is far behind the live edge; a level load must jump it
	// forward.
	sinks.at(0).set(func(s *fakeSink) { s.position = 10 })
	engines.at(0).emit(engine.Event{Kind: engine.EventLevelLoaded, LiveEdge: 100})
	waitFor(t, time.Second, func() bool { return sinks.at(0).Position() == 100 })

	// Within the drift threshold nothing moves.
	sinks.at(0).set(func(s *fakeSink) { s.position = 98 })
	engines.at(0).emit(engine.Event{Kind: engine.EventLevelLoaded, LiveEdge: 100})
	time.Sleep(50 * time.Millisecond)
	if got := sinks.at(0).Position(); got != 98 {
		t.Errorf("position = %v, want 98 (no seek inside threshold)", got)
	}
}

func TestEndedStreamLeftAlone(t *testing.T) {
	m, engines, sinks := newTestManager(t, ProfileConcurrent, nil)
	m.ApplySlots(slotsFile("http://cam/0.m3u8"))
	waitFor(t, time.Second, func() bool { return engines.count() == 1 })

	sinks.at(0).set(func(s *fakeSink) {
		s.playing = true
		s.buffered = 0
		s.position = 30
	})
	engines.at(0).emit(engine.Event{Kind: engine.EventPlaylistEnded})
	waitFor(t, time.Second, func() bool {
		snap, ok := slotSnapshot(m, 0)
		return ok && snap.Ended
	})

	// No recovery despite the frozen position.
	time.Sleep(150 * time.Millisecond)
	if engines.count() != 1 {
		t.Errorf("health monitor recovered an ended stream")
	}
}

func TestRestartSlot(t *testing.T) {
	m, engines, _ := newTestManager(t, ProfileConcurrent, nil)
	m.ApplySlots(slotsFile("http://cam/0.m3u8"))
	waitFor(t, time.Second, func() bool { return engines.count() == 1 })

	first := engines.at(0)
	if err := m.RestartSlot(0); err != nil {
		t.Fatalf("RestartSlot: %v", err)
	}
	waitFor(t, time.Second, func() bool { return first.isDestroyed() && engines.count() == 2 })

	if err := m.RestartSlot(7); err == nil {
		t.Error("expected an error for an unconfigured slot")
	}
}

func TestRetrySchedulePublished(t *testing.T) {
	bus := events.New()
	var retries atomic.Int32
	bus.Subscribe(func(events.RetryScheduledEvent) { retries.Add(1) })

	m, engines, sinks := newTestManager(t, ProfileConcurrent, bus)

	// Direct transport: playback failure goes straight to backoff.
	sinks.at(0).set(func(s *fakeSink) { s.playErr = errors.New("cannot play") })
	m.ApplySlots(slotsFile("rtsp://cam/direct"))
	waitFor(t, time.Second, func() bool { return retries.Load() >= 1 })
	if engines.count() != 0 {
		t.Errorf("direct slot acquired an engine")
	}
}

// After MaxRetryAttempts consecutive failures the next schedule is a
// cooldown: the delay jumps to RetryCooldown with no jitter and the
// attempt counter resets so the ladder restarts from the base afterwards.
func TestRetryCooldownAfterMaxAttempts(t *testing.T) {
	bus := events.New()
	var mu sync.Mutex
	var got []events.RetryScheduledEvent
	bus.Subscribe(func(ev events.RetryScheduledEvent) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})

	m, _, sinks := newTestManager(t, ProfileConcurrent, bus)
	sinks.at(0).set(func(s *fakeSink) { s.playErr = errors.New("cannot play") })
	m.ApplySlots(slotsFile("rtsp://cam/direct"))

	max := testTunables().MaxRetryAttempts
	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= max+1
	})

	mu.Lock()
	schedules := append([]events.RetryScheduledEvent(nil), got[:max+1]...)
	mu.Unlock()

	for i := 0; i < max; i++ {
		ev := schedules[i]
		if ev.Cooldown {
			t.Errorf("schedule %d flagged cooldown prematurely", i+1)
		}
		if ev.RetryCount != i+1 {
			t.Errorf("schedule %d retry count = %d, want %d", i+1, ev.RetryCount, i+1)
		}
	}
	cd := schedules[max]
	if !cd.Cooldown {
		t.Fatalf("schedule %d not flagged as cooldown: %+v", max+1, cd)
	}
	if cd.RetryCount != 0 {
		t.Errorf("cooldown retry count = %d, want 0 (counter reset)", cd.RetryCount)
	}
	if want := testTunables().RetryCooldown.Milliseconds(); cd.DelayMs != want {
		t.Errorf("cooldown delay = %dms, want %dms", cd.DelayMs, want)
	}

	snap, ok := slotSnapshot(m, 0)
	if !ok {
		t.Fatal("missing slot snapshot")
	}
	if snap.RetryCount != 0 || !snap.PendingRetry {
		t.Errorf("snapshot after cooldown: retryCount=%d pendingRetry=%v", snap.RetryCount, snap.PendingRetry)
	}
}

func TestShutdownDestroysEverything(t *testing.T) {
	m, engines, _ := newTestManager(t, ProfileConcurrent, nil)
	m.ApplySlots(slotsFile("http://cam/0.m3u8", "http://cam/1.m3u8"))
	waitFor(t, time.Second, func() bool { return engines.count() == 2 })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	for i := 0; i < 2; i++ {
		if !engines.at(i).isDestroyed() {
			t.Errorf("engine %d survived shutdown", i)
		}
	}
	if err := m.RestartSlot(0); err == nil {
		t.Error("RestartSlot should fail after shutdown")
	}
	if snap := m.Snapshot(); len(snap.Sessions) != 0 {
		t.Errorf("snapshot after shutdown: %+v", snap)
	}
}
