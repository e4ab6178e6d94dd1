package session

import "testing"

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateIdle, StateStarting, true},
		{StateStarting, StatePlaying, true},
		{StatePlaying, StateStalled, true},
		{StateStalled, StatePlaying, true},
		{StateStalled, StateRecovering, true},
		{StateRecovering, StateStarting, true},
		{StatePlaying, StateDestroyed, true},
		{StateDestroyed, StateStarting, false},
		{StateDestroyed, StateIdle, false},
		{StateIdle, StatePlaying, false},
		{StateIdle, StateStalled, false},
		{StatePlaying, StatePlaying, true},
	}
	for _, tt := range tests {
		if got := canTransition(tt.from, tt.to); got != tt.ok {
			t.Errorf("canTransition(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestDestroyedIsSticky(t *testing.T) {
	s := &Session{state: StateDestroyed}
	for _, to := range []State{StateIdle, StateStarting, StatePlaying, StateStalled, StateRecovering} {
		if s.transition(to) {
			t.Errorf("destroyed session accepted transition to %v", to)
		}
	}
	if s.state != StateDestroyed {
		t.Errorf("state mutated to %v", s.state)
	}
}

func TestStateStrings(t *testing.T) {
	want := map[State]string{
		StateIdle:       "idle",
		StateStarting:   "starting",
		StatePlaying:    "playing",
		StateStalled:    "stalled",
		StateRecovering: "recovering",
		StateDestroyed:  "destroyed",
	}
	for state, name := range want {
		if state.String() != name {
			t.Errorf("%d.String() = %q, want %q", state, state.String(), name)
		}
	}
}
