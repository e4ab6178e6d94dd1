package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"camgrid/internal/config"
	"camgrid/internal/engine"
	"camgrid/internal/events"
	"camgrid/internal/logging"
	"camgrid/internal/sink"
)

// Profile selects the startup policy.
type Profile string

const (
	// ProfileConcurrent starts every configured slot at once.
	ProfileConcurrent Profile = "concurrent"
	// ProfileStaggered starts slots one at a time, for constrained
	// devices that cannot open eighteen streams simultaneously.
	ProfileStaggered Profile = "staggered"
)

// SinkProvider hands out the output surface for a slot. The manager never
// owns sinks; it only attaches and detaches media.
type SinkProvider interface {
	Sink(index int) sink.Sink
}

// Config wires a Manager together.
type Config struct {
	Factory  engine.Factory
	Engine   engine.Config
	Sinks    SinkProvider
	Bus      *events.Bus
	Profile  Profile
	Tunables Tunables
}

// Manager owns every stream session. It runs a single loop goroutine that
// serializes all state mutation; the exported methods are safe to call
// from any goroutine.
type Manager struct {
	tunables  Tunables
	profile   Profile
	factory   engine.Factory
	engineCfg engine.Config
	sinks     SinkProvider
	bus       *events.Bus
	logger    logging.Logger

	calls chan func()
	quit  chan struct{}
	done  chan struct{}

	shutdownOnce sync.Once

	// Loop-confined from here down.
	registry *registry
	init     *initializer
	health   *healthMonitor
	seq      *sequencer
	visible  bool
}

// NewManager constructs and starts a Manager. The loop runs until
// Shutdown.
func NewManager(cfg Config) *Manager {
	cfg.Tunables.fillDefaults()
	if cfg.Profile == "" {
		cfg.Profile = ProfileConcurrent
	}
	m := &Manager{
		tunables:  cfg.Tunables,
		profile:   cfg.Profile,
		factory:   cfg.Factory,
		engineCfg: cfg.Engine,
		sinks:     cfg.Sinks,
		bus:       cfg.Bus,
		logger:    logging.GetLogger("session"),
		calls:     make(chan func(), 128),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		visible:   true,
	}
	m.registry = newRegistry()
	m.init = &initializer{m: m}
	m.health = &healthMonitor{m: m}
	m.seq = newSequencer(m)
	go m.run()
	return m
}

func (m *Manager) run() {
	defer close(m.done)
	for {
		select {
		case fn := <-m.calls:
			fn()
		case <-m.quit:
			return
		}
	}
}

// post enqueues fn onto the loop, blocking until accepted or shut down.
func (m *Manager) post(fn func()) {
	select {
	case m.calls <- fn:
	case <-m.quit:
	}
}

// postEvent enqueues fn without ever blocking the caller. Engine event
// goroutines use this; blocking them while the loop is tearing an engine
// down would deadlock.
func (m *Manager) postEvent(fn func()) {
	select {
	case m.calls <- fn:
		return
	case <-m.quit:
		return
	default:
	}
	go func() {
		select {
		case m.calls <- fn:
		case <-m.quit:
		}
	}()
}

// call runs fn on the loop and waits for it. Returns false when the
// manager has shut down before fn could run.
func (m *Manager) call(fn func()) bool {
	ran := make(chan struct{})
	select {
	case m.calls <- func() { fn(); close(ran) }:
	case <-m.quit:
		return false
	}
	select {
	case <-ran:
		return true
	case <-m.done:
		return false
	}
}

// afterFunc arms a timer whose callback runs on the loop.
func (m *Manager) afterFunc(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() { m.postEvent(fn) })
}

func (m *Manager) publish(ev events.Event) {
	if m.bus != nil {
		m.bus.Publish(ev)
	}
}

// setState applies a lifecycle transition and announces it.
func (m *Manager) setState(s *Session, to State) {
	from := s.state
	if from == to {
		return
	}
	if !s.transition(to) {
		m.logger.Warn("state transition rejected", "slot", s.index, "from", from.String(), "to", to.String())
		return
	}
	m.logger.Debug("session state", "slot", s.index, "from", from.String(), "to", to.String())
	m.publish(events.SessionStateChangedEvent{
		Slot:      s.index,
		Name:      s.slot.Name,
		From:      from.String(),
		To:        to.String(),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// scheduleRetry arms the backoff timer for a full restart. At most one
// retry timer is pending per session; arming replaces any prior one. Once
// the consecutive-failure budget is spent the session sits out a long
// cooldown and the counter resets, so delays never grow without bound.
func (m *Manager) scheduleRetry(s *Session) {
	if s.destroyed() {
		return
	}
	s.cancelTimers()

	var delay time.Duration
	cooldown := false
	if s.retryCount >= m.tunables.MaxRetryAttempts {
		delay = m.tunables.RetryCooldown
		cooldown = true
		s.retryCount = 0
	} else {
		delay = backoffDelay(m.tunables, s.retryCount)
		s.retryCount++
	}

	s.pendingRetry = true
	m.setState(s, StateRecovering)
	m.logger.Info("retry scheduled", "slot", s.index, "attempt", s.retryCount, "delay", delay, "cooldown", cooldown)
	m.publish(events.RetryScheduledEvent{
		Slot:       s.index,
		RetryCount: s.retryCount,
		DelayMs:    delay.Milliseconds(),
		Cooldown:   cooldown,
		Timestamp:  time.Now().Format(time.RFC3339),
	})

	s.retryTimer = m.afterFunc(delay, func() {
		if s.destroyed() {
			return
		}
		s.retryTimer = nil
		s.pendingRetry = false
		if !m.visible {
			// Hidden page; the visibility handler restarts everything.
			return
		}
		m.init.start(s)
	})
}

// ApplySlots replaces the whole registry with a fresh set of sessions and
// re-runs startup. Slot configuration is applied wholesale, never patched.
func (m *Manager) ApplySlots(sf config.SlotsFile) {
	m.post(func() {
		m.seq.stop()
		m.health.stop()
		m.registry.removeAll()
		for _, slot := range sf.Slots {
			m.registry.create(slot.Index, slot, m.sinks.Sink(slot.Index))
		}
		m.logger.Info("slot configuration applied", "slots", len(sf.Slots), "columns", sf.Grid.Columns, "rows", sf.Grid.Rows)
		m.publish(events.SlotConfigAppliedEvent{
			Slots:     len(sf.Slots),
			Columns:   sf.Grid.Columns,
			Rows:      sf.Grid.Rows,
			Timestamp: time.Now().Format(time.RFC3339),
		})
		m.seq.startAll()
	})
}

// SetVisible feeds the page visibility signal into the lifecycle: hiding
// suspends every stream without destroying it, showing resets and
// restarts everything under the configured startup policy.
func (m *Manager) SetVisible(visible bool) {
	m.post(func() { m.onVisibility(visible) })
}

func (m *Manager) onVisibility(visible bool) {
	if visible == m.visible {
		return
	}
	m.visible = visible

	if !visible {
		m.logger.Info("dashboard hidden, suspending streams")
		m.seq.stop()
		m.health.stop()
		m.registry.each(func(s *Session) {
			if s.destroyed() {
				return
			}
			s.cancelTimers()
			if s.engine != nil {
				// Engines survive a hide; only their loading stops.
				s.engine.StopLoad()
			}
			s.out.Pause()
		})
		return
	}

	m.logger.Info("dashboard visible, restarting streams")
	m.registry.each(func(s *Session) {
		if s.destroyed() {
			return
		}
		s.cancelTimers()
		s.resetCounters()
		s.releaseEngine()
		s.out.Pause()
		s.out.ClearSource()
		s.ended = false
		m.setState(s, StateIdle)
	})
	m.seq.startAll()
}

// RestartSlot forces a full reset and restart of one slot, regardless of
// its health. Used by the manual restart endpoint.
func (m *Manager) RestartSlot(index int) error {
	var err error
	ok := m.call(func() {
		s, found := m.registry.get(index)
		if !found || s.destroyed() {
			err = fmt.Errorf("no active session for slot %d", index)
			return
		}
		m.logger.Info("manual restart", "slot", index, "name", s.slot.Name)
		s.cancelTimers()
		s.resetCounters()
		s.releaseEngine()
		s.out.Pause()
		s.out.ClearSource()
		s.ended = false
		m.setState(s, StateIdle)
		m.init.start(s)
	})
	if !ok {
		return fmt.Errorf("session manager is shut down")
	}
	return err
}

// Shutdown tears down every session and stops the loop. Idempotent.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownOnce.Do(func() {
		m.post(func() {
			m.seq.stop()
			m.health.stop()
			m.registry.removeAll()
			close(m.quit)
		})
	})
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
