package pilot

import (
	"context"
	"time"
)

// pause sleeps for delay or until the context finishes, whichever is first.
func pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// systemClock is the wall-clock fallback used when no Clock is injected.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
