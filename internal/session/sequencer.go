package session

import (
	"time"

	"camgrid/internal/events"
)

// sequencer orchestrates slot startup. Under the concurrent profile every
// slot starts at once; under the staggered profile exactly one slot is in
// flight at a time, advancing on a playing signal or a per-slot timeout.
// All methods run on the manager loop.
type sequencer struct {
	m *Manager

	active   bool
	queue    []int
	inFlight int

	// gen distinguishes startup runs. Timer callbacks capture the run they
	// were armed in; a stale callback from an abandoned run must not
	// advance a later one that re-queued the same slot index.
	gen int

	started  int
	timedOut int

	slotTimer *time.Timer
	stabTimer *time.Timer
}

func newSequencer(m *Manager) *sequencer {
	return &sequencer{m: m, inFlight: -1}
}

// startAll drives startup for the whole registry according to the
// configured profile.
func (q *sequencer) startAll() {
	q.stop()

	if q.m.profile != ProfileStaggered {
		q.m.registry.each(func(s *Session) {
			q.m.init.start(s)
		})
		if q.m.visible {
			q.m.health.start()
		}
		return
	}

	// Placeholder slots render immediately; only URL-bearing slots queue.
	q.queue = q.queue[:0]
	q.m.registry.each(func(s *Session) {
		if s.slot.URL == "" {
			q.m.init.start(s)
			return
		}
		q.queue = append(q.queue, s.index)
	})

	if len(q.queue) == 0 {
		if q.m.visible {
			q.m.health.start()
		}
		return
	}

	q.active = true
	q.gen++
	q.started = 0
	q.timedOut = 0
	q.next()
}

// next advances the staggered queue: clears the in-flight slot, then
// starts the following one with its timeout armed, or drains.
func (q *sequencer) next() {
	q.clearTimers()
	if q.inFlight >= 0 {
		if s, ok := q.m.registry.get(q.inFlight); ok {
			s.sequencing = false
		}
		q.inFlight = -1
	}

	for len(q.queue) > 0 {
		index := q.queue[0]
		q.queue = q.queue[1:]
		s, ok := q.m.registry.get(index)
		if !ok || s.destroyed() {
			continue
		}

		s.sequencing = true
		q.inFlight = index
		q.m.init.start(s)

		gen := q.gen
		q.slotTimer = q.m.afterFunc(q.m.tunables.SlotStartTimeout, func() {
			q.slotTimedOut(gen, index)
		})
		return
	}

	q.drain()
}

// slotTimedOut runs on the loop when the in-flight slot's startup timer
// fires. A timer armed in an earlier run can fire after that run was
// abandoned; the generation check drops it even when a later run has the
// same index in flight.
func (q *sequencer) slotTimedOut(gen, index int) {
	if !q.active || q.gen != gen || q.inFlight != index {
		return
	}
	q.m.logger.Warn("slot startup timed out", "slot", index)
	q.timedOut++
	q.next()
}

// onPlaying is the initializer's signal that a slot reached playback. For
// the in-flight staggered slot it arms the stabilization delay before the
// next start.
func (q *sequencer) onPlaying(index int) {
	if !q.active || q.inFlight != index {
		return
	}
	if q.slotTimer != nil {
		q.slotTimer.Stop()
		q.slotTimer = nil
	}
	q.started++
	gen := q.gen
	q.stabTimer = q.m.afterFunc(q.m.tunables.StabilizationDelay, func() {
		q.stabilized(gen, index)
	})
}

// stabilized runs on the loop after the stabilization delay, guarded the
// same way as slotTimedOut.
func (q *sequencer) stabilized(gen, index int) {
	if !q.active || q.gen != gen || q.inFlight != index {
		return
	}
	q.next()
}

func (q *sequencer) drain() {
	q.active = false
	q.inFlight = -1
	q.m.logger.Info("startup queue drained", "started", q.started, "timed_out", q.timedOut)
	q.m.publish(events.SequencerDrainedEvent{
		Started:   q.started,
		TimedOut:  q.timedOut,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	if q.m.visible {
		q.m.health.start()
	}
}

// stop abandons any run in progress and clears per-slot sequencing flags.
func (q *sequencer) stop() {
	q.clearTimers()
	q.active = false
	q.queue = q.queue[:0]
	if q.inFlight >= 0 {
		if s, ok := q.m.registry.get(q.inFlight); ok {
			s.sequencing = false
		}
		q.inFlight = -1
	}
}

func (q *sequencer) clearTimers() {
	if q.slotTimer != nil {
		q.slotTimer.Stop()
		q.slotTimer = nil
	}
	if q.stabTimer != nil {
		q.stabTimer.Stop()
		q.stabTimer = nil
	}
}

func (q *sequencer) sequencing() bool { return q.active }

func (q *sequencer) queueLength() int { return len(q.queue) }
