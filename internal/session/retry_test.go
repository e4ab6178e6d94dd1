package session

import (
	"testing"
	"time"
)

func TestBackoffDelayBands(t *testing.T) {
	tun := DefaultTunables()

	bands := []struct {
		attempt  int
		min, max time.Duration
	}{
		{0, 3000 * time.Millisecond, 4000 * time.Millisecond},
		{1, 4500 * time.Millisecond, 5500 * time.Millisecond},
		{2, 6750 * time.Millisecond, 7750 * time.Millisecond},
		{3, 10125 * time.Millisecond, 11125 * time.Millisecond},
	}
	for _, band := range bands {
		for i := 0; i < 200; i++ {
			d := backoffDelay(tun, band.attempt)
			if d < band.min || d >= band.max {
				t.Fatalf("attempt %d: delay %v outside [%v,%v)", band.attempt, d, band.min, band.max)
			}
		}
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	tun := DefaultTunables()
	for attempt := 0; attempt < 50; attempt++ {
		if d := backoffDelay(tun, attempt); d > tun.RetryMax {
			t.Fatalf("attempt %d: delay %v exceeds cap %v", attempt, d, tun.RetryMax)
		}
	}
}
