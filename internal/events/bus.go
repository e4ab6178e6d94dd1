// Package events provides the in-process event bus used to fan session
// lifecycle notifications out to the API's SSE streams and metrics.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher for typed publish/subscribe.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish publishes an event to all subscribers.
// kelindar/event dispatches on the concrete type, so each known event type
// needs an explicit case.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case SessionStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case SessionRecoveredEvent:
		event.Publish(b.dispatcher, e)
	case RetryScheduledEvent:
		event.Publish(b.dispatcher, e)
	case SlotConfigAppliedEvent:
		event.Publish(b.dispatcher, e)
	case VisibilityChangedEvent:
		event.Publish(b.dispatcher, e)
	case SequencerDrainedEvent:
		event.Publish(b.dispatcher, e)
	case EngineErrorEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes a typed handler function. The handler's parameter
// type determines which events it receives. Returns an unsubscribe function.
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(SessionStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionRecoveredEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RetryScheduledEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SlotConfigAppliedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(VisibilityChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SequencerDrainedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(EngineErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
