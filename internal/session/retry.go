package session

import (
	"math"
	"math/rand"
	"time"
)

// backoffDelay computes the full-restart delay for a given consecutive
// failure count: base * factor^attempt plus uniform jitter, capped at max.
// The jitter spreads simultaneous camera outages so restarts do not land
// on the source in a thundering herd.
func backoffDelay(t Tunables, attempt int) time.Duration {
	d := float64(t.RetryBase) * math.Pow(t.RetryFactor, float64(attempt))
	d += rand.Float64() * float64(t.RetryJitter)
	if d > float64(t.RetryMax) {
		return t.RetryMax
	}
	return time.Duration(d)
}
