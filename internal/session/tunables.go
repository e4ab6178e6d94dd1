package session

import "time"

// Tunables collects every timing and threshold knob of the lifecycle
// manager. Tests shrink these to run in milliseconds; production uses
// DefaultTunables.
type Tunables struct {
	// HealthInterval is the health monitor tick period.
	HealthInterval time.Duration
	// ProgressEpsilon is the minimum position advance, in seconds,
	// counted as playback progress between two ticks.
	ProgressEpsilon float64
	// MaxStallCount is how many consecutive non-progress ticks trigger a
	// recovery.
	MaxStallCount int
	// MinBuffered is the forward buffer, in seconds, below which a
	// non-progressing sink counts as stuck loading rather than frozen.
	MinBuffered float64

	// RetryBase, RetryFactor, RetryJitter, and RetryMax shape the
	// exponential backoff between full restart attempts.
	RetryBase   time.Duration
	RetryFactor float64
	RetryJitter time.Duration
	RetryMax    time.Duration
	// MaxRetryAttempts is the consecutive failure count after which the
	// session backs off for RetryCooldown and the counter resets.
	MaxRetryAttempts int
	RetryCooldown    time.Duration
	// NetworkRetryLimit is how many network-class fatal errors are
	// recovered in place, by resuming the load, before a full teardown.
	NetworkRetryLimit int

	// RecoveryDelay is the pause between a full reset and the restart.
	RecoveryDelay time.Duration

	// StabilizationDelay is how long the staggered sequencer waits after
	// a slot reports playing before starting the next one.
	StabilizationDelay time.Duration
	// SlotStartTimeout is how long the staggered sequencer waits for a
	// slot before moving on regardless.
	SlotStartTimeout time.Duration

	// LiveEdgeThreshold is the seconds of drift behind the live edge that
	// trigger a forward seek.
	LiveEdgeThreshold float64
}

// DefaultTunables returns the production values.
func DefaultTunables() Tunables {
	return Tunables{
		HealthInterval:     5 * time.Second,
		ProgressEpsilon:    0.1,
		MaxStallCount:      2,
		MinBuffered:        1.0,
		RetryBase:          3 * time.Second,
		RetryFactor:        1.5,
		RetryJitter:        time.Second,
		RetryMax:           120 * time.Second,
		MaxRetryAttempts:   10,
		RetryCooldown:      5 * time.Minute,
		NetworkRetryLimit:  3,
		RecoveryDelay:      time.Second,
		StabilizationDelay: 500 * time.Millisecond,
		SlotStartTimeout:   15 * time.Second,
		LiveEdgeThreshold:  5.0,
	}
}

// fillDefaults replaces zero fields with the production values so partial
// overrides stay safe.
func (t *Tunables) fillDefaults() {
	def := DefaultTunables()
	if t.HealthInterval <= 0 {
		t.HealthInterval = def.HealthInterval
	}
	if t.ProgressEpsilon <= 0 {
		t.ProgressEpsilon = def.ProgressEpsilon
	}
	if t.MaxStallCount <= 0 {
		t.MaxStallCount = def.MaxStallCount
	}
	if t.MinBuffered <= 0 {
		t.MinBuffered = def.MinBuffered
	}
	if t.RetryBase <= 0 {
		t.RetryBase = def.RetryBase
	}
	if t.RetryFactor <= 0 {
		t.RetryFactor = def.RetryFactor
	}
	if t.RetryJitter <= 0 {
		t.RetryJitter = def.RetryJitter
	}
	if t.RetryMax <= 0 {
		t.RetryMax = def.RetryMax
	}
	if t.MaxRetryAttempts <= 0 {
		t.MaxRetryAttempts = def.MaxRetryAttempts
	}
	if t.RetryCooldown <= 0 {
		t.RetryCooldown = def.RetryCooldown
	}
	if t.NetworkRetryLimit <= 0 {
		t.NetworkRetryLimit = def.NetworkRetryLimit
	}
	if t.RecoveryDelay <= 0 {
		t.RecoveryDelay = def.RecoveryDelay
	}
	if t.StabilizationDelay <= 0 {
		t.StabilizationDelay = def.StabilizationDelay
	}
	if t.SlotStartTimeout <= 0 {
		t.SlotStartTimeout = def.SlotStartTimeout
	}
	if t.LiveEdgeThreshold <= 0 {
		t.LiveEdgeThreshold = def.LiveEdgeThreshold
	}
}
