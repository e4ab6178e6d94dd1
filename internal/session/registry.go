package session

import (
	"camgrid/internal/config"
	"camgrid/internal/sink"
)

// registry maps slot indices to sessions. It is the single source of truth
// the initializer, health monitor, and sequencer all read. Loop-confined,
// so no locking.
type registry struct {
	sessions map[int]*Session
}

func newRegistry() *registry {
	return &registry{sessions: make(map[int]*Session)}
}

// create replaces any existing session at index with a fresh one. The old
// session, if present, is removed first so its timers and engine cannot
// outlive it.
func (r *registry) create(index int, slot config.Slot, out sink.Sink) *Session {
	r.remove(index)
	s := newSession(index, slot, out)
	r.sessions[index] = s
	return s
}

func (r *registry) get(index int) (*Session, bool) {
	s, ok := r.sessions[index]
	return s, ok
}

// remove tears a session down: cancels its timers, releases its engine,
// clears the sink binding, and marks it destroyed. Idempotent; safe on an
// absent or already-destroyed session.
func (r *registry) remove(index int) {
	s, ok := r.sessions[index]
	if !ok {
		return
	}
	delete(r.sessions, index)
	if s.destroyed() {
		return
	}
	s.cancelTimers()
	s.releaseEngine()
	if s.out != nil {
		s.out.Pause()
		s.out.ClearSource()
	}
	s.state = StateDestroyed
}

// removeAll tears down every session.
func (r *registry) removeAll() {
	for index := range r.sessions {
		r.remove(index)
	}
}

// each visits the live sessions in slot order.
func (r *registry) each(fn func(*Session)) {
	for index := 0; index < config.MaxSlots; index++ {
		if s, ok := r.sessions[index]; ok {
			fn(s)
		}
	}
}

func (r *registry) len() int { return len(r.sessions) }
