package session

import (
	"time"

	"camgrid/internal/engine"
	"camgrid/internal/events"
)

// initializer opens streams into sinks and reacts to engine events. All
// methods run on the manager loop.
type initializer struct {
	m *Manager
}

// start brings a slot's stream up according to its URL. Empty URLs render
// a placeholder; direct transport URLs attach natively; manifest URLs get
// a fresh adaptive engine.
func (in *initializer) start(s *Session) {
	if s.destroyed() {
		return
	}
	s.cancelTimers()
	s.ended = false

	if s.slot.URL == "" {
		s.out.ShowPlaceholder("not configured")
		return
	}
	if !s.adaptive {
		in.startDirect(s)
		return
	}
	in.startAdaptive(s)
}

func (in *initializer) startDirect(s *Session) {
	in.m.setState(s, StateStarting)
	s.startedAt = time.Now()
	s.out.SetSource(s.slot.URL)
	if err := s.out.Play(); err != nil {
		in.m.logger.Warn("direct playback failed", "slot", s.index, "error", err)
		in.m.scheduleRetry(s)
		return
	}
	in.m.setState(s, StatePlaying)
	in.m.seq.onPlaying(s.index)
}

func (in *initializer) startAdaptive(s *Session) {
	in.m.setState(s, StateStarting)
	s.startedAt = time.Now()

	h := &engineHandler{in: in, s: s}
	eng := in.m.factory(in.m.engineCfg, h.onEvent)
	// Bound before LoadSource/AttachMedia, so no event can observe a nil
	// engine pointer.
	h.eng = eng
	s.engine = eng
	eng.LoadSource(s.slot.URL)
	eng.AttachMedia(s.out)
}

// engineHandler adapts engine callbacks onto the manager loop. The bound
// engine pointer filters out events from an instance the session has
// already replaced.
type engineHandler struct {
	in  *initializer
	s   *Session
	eng engine.Engine
}

func (h *engineHandler) onEvent(ev engine.Event) {
	h.in.m.postEvent(func() {
		if h.s.destroyed() || h.s.engine != h.eng {
			return
		}
		h.in.handleEvent(h.s, ev)
	})
}

func (in *initializer) handleEvent(s *Session, ev engine.Event) {
	switch ev.Kind {
	case engine.EventMediaAttached:
		if err := s.out.Play(); err != nil {
			// Autoplay rejection is non-fatal; playback starts on the
			// next user gesture or recovery cycle.
			in.m.logger.Info("playback start rejected", "slot", s.index, "error", err)
			return
		}
		s.retryCount = 0

	case engine.EventManifestParsed, engine.EventLevelLoaded:
		in.seekToLiveEdge(s, ev)

	case engine.EventFragmentBuffered:
		if s.state == StateStarting && s.out.Playing() {
			s.retryCount = 0
			in.m.logger.Info("slot playing", "slot", s.index, "name", s.slot.Name, "startup", time.Since(s.startedAt))
			in.m.setState(s, StatePlaying)
			in.m.seq.onPlaying(s.index)
		}

	case engine.EventPlaylistEnded:
		// End of stream is not a stall; leave the session alone until a
		// restart or visibility cycle.
		s.ended = true
		in.m.logger.Info("stream ended", "slot", s.index, "name", s.slot.Name)

	case engine.EventError:
		in.handleError(s, ev.Err)
	}
}

// seekToLiveEdge jumps playback forward when it has drifted too far behind
// the live edge, so long-running feeds do not accumulate latency.
func (in *initializer) seekToLiveEdge(s *Session, ev engine.Event) {
	edge := ev.LiveEdge
	if edge == 0 && s.engine != nil {
		edge = s.engine.LiveEdge()
	}
	if edge-s.out.Position() > in.m.tunables.LiveEdgeThreshold {
		in.m.logger.Debug("seeking to live edge", "slot", s.index, "edge", edge, "position", s.out.Position())
		s.out.Seek(edge)
	}
}

func (in *initializer) handleError(s *Session, engErr *engine.Error) {
	if engErr == nil {
		return
	}
	if !engErr.Fatal {
		in.m.logger.Debug("transient engine error", "slot", s.index, "class", engErr.Class.String(), "detail", engErr.Detail)
		return
	}

	in.m.logger.Warn("fatal engine error", "slot", s.index, "class", engErr.Class.String(), "detail", engErr.Detail, "error", engErr.Err)
	in.m.publish(events.EngineErrorEvent{
		Slot:      s.index,
		Class:     engErr.Class.String(),
		Detail:    engErr.Detail,
		Timestamp: time.Now().Format(time.RFC3339),
	})

	switch {
	case engErr.Class == engine.ErrorClassNetwork && s.retryCount < in.m.tunables.NetworkRetryLimit:
		// Cheap in-place recovery: resume loading without a teardown.
		s.retryCount++
		s.engine.StartLoad()

	case engErr.Class == engine.ErrorClassMedia:
		if rerr := s.engine.RecoverMediaError(); rerr != nil {
			in.m.logger.Warn("media recovery failed", "slot", s.index, "error", rerr)
			in.fullRetry(s)
		}

	default:
		in.fullRetry(s)
	}
}

// fullRetry releases the engine and schedules a backoff restart.
func (in *initializer) fullRetry(s *Session) {
	s.releaseEngine()
	in.m.scheduleRetry(s)
}
