package session

import (
	"time"

	"camgrid/internal/config"
	"camgrid/internal/engine"
	"camgrid/internal/sink"
)

// Session is the runtime state of one occupied grid slot. Owned by the
// Manager loop; never touched from any other goroutine.
type Session struct {
	index int
	slot  config.Slot

	// adaptive is true when the slot URL is an HLS manifest. Direct
	// transport URLs play natively through the sink with no engine.
	adaptive bool

	state  State
	engine engine.Engine
	out    sink.Sink

	retryCount int
	stallCount int

	lastPosition float64
	lastCheck    time.Time
	startedAt    time.Time

	retryTimer    *time.Timer
	recoveryTimer *time.Timer
	pendingRetry  bool

	// sequencing is set while the staggered sequencer has this slot in
	// flight; the health monitor skips it until cleared.
	sequencing bool

	// ended is set when the stream signalled end-of-list. Ended sessions
	// are left alone by the health monitor; a manual restart or
	// visibility cycle clears it.
	ended bool
}

func newSession(index int, slot config.Slot, out sink.Sink) *Session {
	return &Session{
		index:    index,
		slot:     slot,
		adaptive: config.IsManifestURL(slot.URL),
		state:    StateIdle,
		out:      out,
	}
}

// transition moves the session to a new state, returning false when the
// move is not permitted. Destroyed is sticky.
func (s *Session) transition(to State) bool {
	if !canTransition(s.state, to) {
		return false
	}
	s.state = to
	return true
}

func (s *Session) destroyed() bool { return s.state == StateDestroyed }

// cancelTimers stops any pending retry or recovery callback. Stopped
// timers may still fire; their closures re-check session state.
func (s *Session) cancelTimers() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	if s.recoveryTimer != nil {
		s.recoveryTimer.Stop()
		s.recoveryTimer = nil
	}
	s.pendingRetry = false
}

// releaseEngine tears down the stream engine if present. Order matters:
// stop loading, detach the sink, then destroy, so no callback fires on a
// half-released instance.
func (s *Session) releaseEngine() {
	if s.engine == nil {
		return
	}
	e := s.engine
	s.engine = nil
	e.StopLoad()
	e.DetachMedia()
	e.Destroy()
}

// resetCounters clears the health bookkeeping ahead of a fresh start.
func (s *Session) resetCounters() {
	s.retryCount = 0
	s.stallCount = 0
	s.lastPosition = 0
	s.lastCheck = time.Time{}
}
