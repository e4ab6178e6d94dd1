package session

// SlotSnapshot is the externally visible health state of one slot.
type SlotSnapshot struct {
	Index          int    `json:"index" example:"0" doc:"Grid slot index"`
	Name           string `json:"name" example:"Driveway" doc:"Configured slot name"`
	HasURL         bool   `json:"has_url" doc:"Whether the slot has a stream URL"`
	State          string `json:"state" example:"playing" doc:"Session lifecycle state"`
	Playing        bool   `json:"playing" doc:"Sink playing state"`
	Paused         bool   `json:"paused" doc:"Sink paused state"`
	EngineAttached bool   `json:"engine_attached" doc:"Whether an adaptive engine is attached"`
	RetryCount     int    `json:"retry_count" doc:"Consecutive failed reconnection attempts"`
	StallCount     int    `json:"stall_count" doc:"Consecutive non-progress health ticks"`
	PendingRetry   bool   `json:"pending_retry" doc:"Whether a backoff retry is armed"`
	Ended          bool   `json:"ended" doc:"Whether the stream signalled end-of-list"`
}

// Snapshot is the manager-level debug and health listing.
type Snapshot struct {
	Visible     bool           `json:"visible" doc:"Page visibility signal"`
	Profile     string         `json:"profile" example:"concurrent" doc:"Startup policy"`
	Sequencing  bool           `json:"sequencing" doc:"Whether a staggered startup run is in progress"`
	QueueLength int            `json:"queue_length" doc:"Slots still waiting to start"`
	Sessions    []SlotSnapshot `json:"sessions" doc:"Per-slot session state"`
}

// Snapshot returns the current state of every session. Safe from any
// goroutine; returns the zero Snapshot after shutdown.
func (m *Manager) Snapshot() Snapshot {
	var snap Snapshot
	m.call(func() {
		snap = Snapshot{
			Visible:     m.visible,
			Profile:     string(m.profile),
			Sequencing:  m.seq.sequencing(),
			QueueLength: m.seq.queueLength(),
			Sessions:    make([]SlotSnapshot, 0, m.registry.len()),
		}
		m.registry.each(func(s *Session) {
			snap.Sessions = append(snap.Sessions, SlotSnapshot{
				Index:          s.index,
				Name:           s.slot.Name,
				HasURL:         s.slot.URL != "",
				State:          s.state.String(),
				Playing:        s.out != nil && s.out.Playing(),
				Paused:         s.out != nil && s.out.Paused(),
				EngineAttached: s.engine != nil,
				RetryCount:     s.retryCount,
				StallCount:     s.stallCount,
				PendingRetry:   s.pendingRetry,
				Ended:          s.ended,
			})
		})
	})
	return snap
}
