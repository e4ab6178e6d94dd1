package session

import (
	"time"

	"camgrid/internal/events"
)

// healthMonitor inspects every active session on a fixed tick and triggers
// recovery for stalled, frozen, or erroring playback. It only ticks while
// the dashboard is visible and no sequencing run is in progress. All
// methods run on the manager loop.
type healthMonitor struct {
	m       *Manager
	timer   *time.Timer
	running bool
}

func (h *healthMonitor) start() {
	if h.running {
		return
	}
	h.running = true
	h.m.logger.Debug("health monitor started")
	h.schedule()
}

func (h *healthMonitor) stop() {
	if !h.running {
		return
	}
	h.running = false
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.m.logger.Debug("health monitor stopped")
}

func (h *healthMonitor) schedule() {
	h.timer = h.m.afterFunc(h.m.tunables.HealthInterval, func() {
		if !h.running {
			return
		}
		h.tick(time.Now())
		h.schedule()
	})
}

func (h *healthMonitor) tick(now time.Time) {
	h.m.registry.each(func(s *Session) {
		h.check(s, now)
	})
}

func (h *healthMonitor) check(s *Session, now time.Time) {
	// Sessions with nothing to watch, or with a restart already in
	// motion, are skipped entirely.
	if s.slot.URL == "" || s.destroyed() || s.pendingRetry || s.sequencing || s.ended || s.state == StateRecovering {
		return
	}

	pos := s.out.Position()
	first := s.lastCheck.IsZero()
	progressed := pos-s.lastPosition > h.m.tunables.ProgressEpsilon
	buffered := s.out.BufferedAhead()

	s.lastPosition = pos
	s.lastCheck = now

	if first {
		// Baseline tick; progress is judged from the next one.
		return
	}

	switch {
	case s.adaptive && s.engine == nil:
		h.recover(s, "engine missing")

	case s.out.Err() != nil:
		h.recover(s, "playback error")

	case !progressed && s.out.Playing() && buffered >= h.m.tunables.MinBuffered:
		h.countStall(s, "frozen playback")

	case !progressed && s.engine != nil && buffered < h.m.tunables.MinBuffered:
		h.countStall(s, "stuck loading")

	case s.out.Paused() && s.engine != nil:
		s.stallCount++
		if s.stallCount >= h.m.tunables.MaxStallCount {
			h.recover(s, "unexpectedly paused")
			return
		}
		// Below threshold a plain resume is often enough.
		h.m.logger.Info("resuming paused sink", "slot", s.index)
		if err := s.out.Play(); err != nil {
			h.m.logger.Warn("resume failed", "slot", s.index, "error", err)
		}

	case progressed:
		s.stallCount = 0
		s.retryCount = 0
		if s.state == StateStalled || s.state == StateStarting {
			h.m.setState(s, StatePlaying)
		}
	}
}

func (h *healthMonitor) countStall(s *Session, reason string) {
	s.stallCount++
	h.m.logger.Debug("no playback progress", "slot", s.index, "reason", reason, "stalls", s.stallCount)
	h.m.setState(s, StateStalled)
	if s.stallCount >= h.m.tunables.MaxStallCount {
		h.recover(s, reason)
	}
}

// recover performs the full reset: counters zeroed, engine released, sink
// cleared, restart scheduled after a short delay. The restart only runs if
// the session survives the delay and the page is still visible.
func (h *healthMonitor) recover(s *Session, reason string) {
	h.m.logger.Warn("recovering session", "slot", s.index, "name", s.slot.Name, "reason", reason)
	h.m.publish(events.SessionRecoveredEvent{
		Slot:      s.index,
		Reason:    reason,
		Timestamp: time.Now().Format(time.RFC3339),
	})

	s.resetCounters()
	s.cancelTimers()
	s.releaseEngine()
	s.out.Pause()
	s.out.ClearSource()
	h.m.setState(s, StateRecovering)

	s.recoveryTimer = h.m.afterFunc(h.m.tunables.RecoveryDelay, func() {
		if s.destroyed() || !h.m.visible {
			return
		}
		s.recoveryTimer = nil
		h.m.init.start(s)
	})
}
