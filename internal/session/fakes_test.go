package session

import (
	"sync"
	"testing"
	"time"

	"camgrid/internal/engine"
	"camgrid/internal/sink"
)

// fakeEngine is a scripted stream engine. Tests drive it by emitting
// events; the manager drives it through the Engine interface.
type fakeEngine struct {
	mu          sync.Mutex
	onEvent     engine.EventFunc
	url         string
	attached    bool
	loadStopped bool
	startLoads  int
	recovers    int
	recoverErr  error
	destroyed   bool
	liveEdge    float64
	staleFn     engine.EventFunc
}

func (e *fakeEngine) LoadSource(url string) {
	e.mu.Lock()
	e.url = url
	e.mu.Unlock()
}

func (e *fakeEngine) AttachMedia(sink.Sink) {
	e.mu.Lock()
	e.attached = true
	fn := e.onEvent
	e.mu.Unlock()
	if fn != nil {
		fn(engine.Event{Kind: engine.EventMediaAttached})
	}
}

func (e *fakeEngine) DetachMedia() {
	e.mu.Lock()
	e.attached = false
	e.mu.Unlock()
}

func (e *fakeEngine) StopLoad() {
	e.mu.Lock()
	e.loadStopped = true
	e.mu.Unlock()
}

func (e *fakeEngine) StartLoad() {
	e.mu.Lock()
	e.loadStopped = false
	e.startLoads++
	e.mu.Unlock()
}

func (e *fakeEngine) RecoverMediaError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recovers++
	return e.recoverErr
}

func (e *fakeEngine) Destroy() {
	e.mu.Lock()
	e.destroyed = true
	e.staleFn = e.onEvent
	e.onEvent = nil
	e.mu.Unlock()
}

// emitStale fires the pre-destroy handler, simulating a callback that was
// already in flight when the engine was torn down.
func (e *fakeEngine) emitStale(ev engine.Event) {
	e.mu.Lock()
	fn := e.staleFn
	e.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (e *fakeEngine) LiveEdge() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.liveEdge
}

// emit delivers an event the way a live engine would, respecting Destroy.
func (e *fakeEngine) emit(ev engine.Event) {
	e.mu.Lock()
	fn := e.onEvent
	e.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (e *fakeEngine) isDestroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed
}

func (e *fakeEngine) isStopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadStopped
}

func (e *fakeEngine) startLoadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startLoads
}

func (e *fakeEngine) sourceURL() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.url
}

// fakeSink is a controllable output surface.
type fakeSink struct {
	mu           sync.Mutex
	source       string
	playing      bool
	paused       bool
	position     float64
	buffered     float64
	err          error
	playErr      error
	placeholders []string
	pauses       int
	plays        int
}

func (s *fakeSink) SetSource(url string) {
	s.mu.Lock()
	s.source = url
	s.mu.Unlock()
}

func (s *fakeSink) ClearSource() {
	s.mu.Lock()
	s.source = ""
	s.playing = false
	s.err = nil
	s.mu.Unlock()
}

func (s *fakeSink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays++
	if s.playErr != nil {
		return s.playErr
	}
	s.playing = true
	s.paused = false
	return nil
}

func (s *fakeSink) Pause() {
	s.mu.Lock()
	s.playing = false
	s.paused = true
	s.pauses++
	s.mu.Unlock()
}

func (s *fakeSink) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *fakeSink) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *fakeSink) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *fakeSink) BufferedAhead() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffered
}

func (s *fakeSink) Seek(pos float64) {
	s.mu.Lock()
	s.position = pos
	s.mu.Unlock()
}

func (s *fakeSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSink) WriteSegment(sink.Segment) error { return nil }

func (s *fakeSink) ShowPlaceholder(msg string) {
	s.mu.Lock()
	s.placeholders = append(s.placeholders, msg)
	s.mu.Unlock()
}

func (s *fakeSink) Size() (int, int) { return 640, 360 }

func (s *fakeSink) set(fn func(*fakeSink)) {
	s.mu.Lock()
	fn(s)
	s.mu.Unlock()
}

func (s *fakeSink) playCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays
}

func (s *fakeSink) pauseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauses
}

func (s *fakeSink) placeholderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.placeholders)
}

// fakeSinks hands out one fakeSink per slot.
type fakeSinks struct {
	mu    sync.Mutex
	sinks map[int]*fakeSink
}

func newFakeSinks() *fakeSinks {
	return &fakeSinks{sinks: make(map[int]*fakeSink)}
}

func (f *fakeSinks) Sink(index int) sink.Sink { return f.at(index) }

func (f *fakeSinks) at(index int) *fakeSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sinks[index]
	if !ok {
		s = &fakeSink{}
		f.sinks[index] = s
	}
	return s
}

// engineLog collects engines as the factory creates them.
type engineLog struct {
	mu   sync.Mutex
	list []*fakeEngine
}

func (l *engineLog) factory(_ engine.Config, onEvent engine.EventFunc) engine.Engine {
	e := &fakeEngine{onEvent: onEvent, liveEdge: 100}
	l.mu.Lock()
	l.list = append(l.list, e)
	l.mu.Unlock()
	return e
}

func (l *engineLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.list)
}

func (l *engineLog) at(i int) *fakeEngine {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list[i]
}

// testTunables shrinks every interval so tests run in milliseconds.
func testTunables() Tunables {
	return Tunables{
		HealthInterval:     30 * time.Millisecond,
		ProgressEpsilon:    0.1,
		MaxStallCount:      2,
		MinBuffered:        1.0,
		RetryBase:          10 * time.Millisecond,
		RetryFactor:        1.5,
		RetryJitter:        5 * time.Millisecond,
		RetryMax:           200 * time.Millisecond,
		MaxRetryAttempts:   4,
		RetryCooldown:      250 * time.Millisecond,
		NetworkRetryLimit:  3,
		RecoveryDelay:      10 * time.Millisecond,
		StabilizationDelay: 15 * time.Millisecond,
		SlotStartTimeout:   120 * time.Millisecond,
		LiveEdgeThreshold:  5.0,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
