package session

// State is the lifecycle phase of a stream session. Transitions go through
// Session.transition so illegal moves, like recovering a destroyed
// session, are rejected in one place.
type State int

const (
	// StateIdle means no stream activity: empty URL or not yet started.
	StateIdle State = iota
	// StateStarting means the initializer ran and playback has not been
	// confirmed yet.
	StateStarting
	// StatePlaying means playback progress has been observed.
	StatePlaying
	// StateStalled means the health monitor counted non-progress ticks
	// below the recovery threshold.
	StateStalled
	// StateRecovering means a full reset is in progress and a restart is
	// scheduled.
	StateRecovering
	// StateDestroyed is terminal. A recreated slot gets a new session.
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StatePlaying:
		return "playing"
	case StateStalled:
		return "stalled"
	case StateRecovering:
		return "recovering"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// validTransitions lists the permitted state moves. Everything may move to
// StateDestroyed; nothing leaves it.
var validTransitions = map[State][]State{
	StateIdle:       {StateStarting, StateDestroyed},
	StateStarting:   {StatePlaying, StateStalled, StateRecovering, StateIdle, StateDestroyed},
	StatePlaying:    {StateStalled, StateRecovering, StateIdle, StateDestroyed},
	StateStalled:    {StatePlaying, StateRecovering, StateIdle, StateDestroyed},
	StateRecovering: {StateStarting, StateIdle, StateDestroyed},
	StateDestroyed:  {},
}

func canTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
