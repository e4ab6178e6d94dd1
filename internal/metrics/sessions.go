// Package metrics exposes Prometheus series for the stream session
// lifecycle. An Observer derives everything from the event bus so the
// session manager carries no metrics dependency.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"camgrid/internal/events"
)

var (
	sessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camgrid",
		Subsystem: "session",
		Name:      "state",
		Help:      "Current session lifecycle state, 1 for the active state per slot",
	}, []string{"slot", "state"})

	recoveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camgrid",
		Subsystem: "session",
		Name:      "recoveries_total",
		Help:      "Health monitor recoveries by reason",
	}, []string{"slot", "reason"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camgrid",
		Subsystem: "session",
		Name:      "retries_total",
		Help:      "Backoff retries scheduled",
	}, []string{"slot"})

	cooldownsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camgrid",
		Subsystem: "session",
		Name:      "cooldowns_total",
		Help:      "Long cooldowns entered after exhausting the retry budget",
	}, []string{"slot"})

	engineErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camgrid",
		Subsystem: "engine",
		Name:      "errors_total",
		Help:      "Fatal stream engine errors by class",
	}, []string{"slot", "class"})

	timeToPlaying = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "camgrid",
		Subsystem: "session",
		Name:      "time_to_playing_seconds",
		Help:      "Seconds from session start to confirmed playback",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 30, 60},
	})

	pageVisible = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "camgrid",
		Name:      "page_visible",
		Help:      "Whether the dashboard is currently observable",
	})
)

// sessionStates must cover every state the manager reports so the gauge
// vector flips cleanly between them.
var sessionStates = []string{"idle", "starting", "playing", "stalled", "recovering", "destroyed"}

// Observer keeps the Prometheus series current from bus events.
type Observer struct {
	mu       sync.Mutex
	starting map[int]time.Time
	unsubs   []func()
}

// NewObserver subscribes to the bus. Close releases the subscriptions.
func NewObserver(bus *events.Bus) *Observer {
	o := &Observer{starting: make(map[int]time.Time)}
	o.unsubs = append(o.unsubs,
		bus.Subscribe(o.onStateChanged),
		bus.Subscribe(o.onRecovered),
		bus.Subscribe(o.onRetryScheduled),
		bus.Subscribe(o.onEngineError),
		bus.Subscribe(o.onVisibilityChanged),
	)
	return o
}

// Close unsubscribes from the bus.
func (o *Observer) Close() {
	for _, unsub := range o.unsubs {
		unsub()
	}
	o.unsubs = nil
}

func (o *Observer) onStateChanged(ev events.SessionStateChangedEvent) {
	slot := strconv.Itoa(ev.Slot)
	for _, state := range sessionStates {
		v := 0.0
		if state == ev.To {
			v = 1
		}
		sessionState.WithLabelValues(slot, state).Set(v)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	switch ev.To {
	case "starting":
		o.starting[ev.Slot] = time.Now()
	case "playing":
		if began, ok := o.starting[ev.Slot]; ok {
			timeToPlaying.Observe(time.Since(began).Seconds())
			delete(o.starting, ev.Slot)
		}
	case "destroyed":
		delete(o.starting, ev.Slot)
	}
}

func (o *Observer) onRecovered(ev events.SessionRecoveredEvent) {
	recoveriesTotal.WithLabelValues(strconv.Itoa(ev.Slot), ev.Reason).Inc()
}

func (o *Observer) onRetryScheduled(ev events.RetryScheduledEvent) {
	slot := strconv.Itoa(ev.Slot)
	retriesTotal.WithLabelValues(slot).Inc()
	if ev.Cooldown {
		cooldownsTotal.WithLabelValues(slot).Inc()
	}
}

func (o *Observer) onEngineError(ev events.EngineErrorEvent) {
	engineErrorsTotal.WithLabelValues(strconv.Itoa(ev.Slot), ev.Class).Inc()
}

func (o *Observer) onVisibilityChanged(ev events.VisibilityChangedEvent) {
	if ev.Visible {
		pageVisible.Set(1)
	} else {
		pageVisible.Set(0)
	}
}
