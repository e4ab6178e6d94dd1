package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"camgrid/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time event stream for session state changes, retries, recoveries, and visibility",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"session-state-changed": events.SessionStateChangedEvent{},
		"session-recovered":     events.SessionRecoveredEvent{},
		"retry-scheduled":       events.RetryScheduledEvent{},
		"slot-config-applied":   events.SlotConfigAppliedEvent{},
		"visibility-changed":    events.VisibilityChangedEvent{},
		"sequencer-drained":     events.SequencerDrainedEvent{},
		"engine-error":          events.EngineErrorEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Per-connection channel; the bus fans out to every subscriber.
		eventCh := make(chan any, 10)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.SessionStateChangedEvent](s.options.Bus, eventCh),
			events.SubscribeToChannel[events.SessionRecoveredEvent](s.options.Bus, eventCh),
			events.SubscribeToChannel[events.RetryScheduledEvent](s.options.Bus, eventCh),
			events.SubscribeToChannel[events.SlotConfigAppliedEvent](s.options.Bus, eventCh),
			events.SubscribeToChannel[events.VisibilityChangedEvent](s.options.Bus, eventCh),
			events.SubscribeToChannel[events.SequencerDrainedEvent](s.options.Bus, eventCh),
			events.SubscribeToChannel[events.EngineErrorEvent](s.options.Bus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Initial event so clients can confirm the stream is live.
		if err := send.Data(events.VisibilityChangedEvent{
			Visible:   s.options.Visibility.Visible(),
			Source:    "connect",
			Timestamp: time.Now().Format(time.RFC3339),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
