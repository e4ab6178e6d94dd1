package events

// Event type constants for kelindar/event.
const (
	TypeSessionStateChanged uint32 = iota + 1
	TypeSessionRecovered
	TypeRetryScheduled
	TypeSlotConfigApplied
	TypeVisibilityChanged
	TypeSequencerDrained
	TypeEngineError
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// SessionStateChangedEvent is published whenever a slot's session moves
// between lifecycle states.
type SessionStateChangedEvent struct {
	Slot      int    `json:"slot" example:"0" doc:"Grid slot index"`
	Name      string `json:"name" example:"Driveway" doc:"Configured slot name"`
	From      string `json:"from" example:"starting" doc:"Previous session state"`
	To        string `json:"to" example:"playing" doc:"New session state"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionStateChangedEvent.
func (e SessionStateChangedEvent) Type() uint32 { return TypeSessionStateChanged }

// SessionRecoveredEvent is published when the health monitor resets a slot.
type SessionRecoveredEvent struct {
	Slot      int    `json:"slot" example:"0" doc:"Grid slot index"`
	Reason    string `json:"reason" example:"stalled" doc:"Recovery reason"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionRecoveredEvent.
func (e SessionRecoveredEvent) Type() uint32 { return TypeSessionRecovered }

// RetryScheduledEvent is published when a backoff retry is armed for a slot.
type RetryScheduledEvent struct {
	Slot       int    `json:"slot" example:"0" doc:"Grid slot index"`
	RetryCount int    `json:"retry_count" example:"2" doc:"Consecutive failed attempts"`
	DelayMs    int64  `json:"delay_ms" example:"6750" doc:"Scheduled delay in milliseconds"`
	Cooldown   bool   `json:"cooldown" example:"false" doc:"Whether the long cooldown was applied"`
	Timestamp  string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for RetryScheduledEvent.
func (e RetryScheduledEvent) Type() uint32 { return TypeRetryScheduled }

// SlotConfigAppliedEvent is published after a slot configuration is applied
// wholesale and the registry rebuilt.
type SlotConfigAppliedEvent struct {
	Slots     int    `json:"slots" example:"6" doc:"Number of configured slots"`
	Columns   int    `json:"columns" example:"3" doc:"Grid columns"`
	Rows      int    `json:"rows" example:"2" doc:"Grid rows"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for SlotConfigAppliedEvent.
func (e SlotConfigAppliedEvent) Type() uint32 { return TypeSlotConfigApplied }

// VisibilityChangedEvent is published when the dashboard page visibility
// signal flips.
type VisibilityChangedEvent struct {
	Visible   bool   `json:"visible" example:"true" doc:"Whether the page is observable"`
	Source    string `json:"source" example:"page" doc:"Signal source: page or presence"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for VisibilityChangedEvent.
func (e VisibilityChangedEvent) Type() uint32 { return TypeVisibilityChanged }

// SequencerDrainedEvent is published when the staggered startup queue has
// drained and health monitoring begins.
type SequencerDrainedEvent struct {
	Started   int    `json:"started" example:"5" doc:"Slots that reached playing"`
	TimedOut  int    `json:"timed_out" example:"1" doc:"Slots abandoned after timeout"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for SequencerDrainedEvent.
func (e SequencerDrainedEvent) Type() uint32 { return TypeSequencerDrained }

// EngineErrorEvent is published for fatal stream engine errors.
type EngineErrorEvent struct {
	Slot      int    `json:"slot" example:"0" doc:"Grid slot index"`
	Class     string `json:"class" example:"network" doc:"Error class: network, media, other"`
	Detail    string `json:"detail" doc:"Error detail"`
	Timestamp string `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for EngineErrorEvent.
func (e EngineErrorEvent) Type() uint32 { return TypeEngineError }

// LogEntryEvent carries one log line to SSE subscribers.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number"`
	Timestamp  string         `json:"timestamp" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"session" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
