// Package ratelimit implements the token bucket that throttles lobby fetches.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration.
type Config struct {
	// TokensPerSecond is the refill rate; zero or negative disables
	// throttling entirely.
	TokensPerSecond float64
	// Capacity is the bucket size.
	Capacity int
	// PollInterval is how often a blocked Acquire retries.
	PollInterval time.Duration
}

const defaultPollInterval = 50 * time.Millisecond

// Limiter is a single token bucket shared by every fetch path. Tokens refill
// continuously from elapsed time and never exceed capacity. One mutex guards
// state so concurrent sessions observe a never-over-drawn budget.
type Limiter struct {
	mu     sync.Mutex
	bucket *rate.Limiter
	now    func() time.Time
	poll   time.Duration
}

// New creates a Limiter on the wall clock.
func New(cfg Config) *Limiter {
	return NewWithNow(cfg, time.Now)
}

// NewWithNow creates a Limiter with an injected time source.
func NewWithNow(cfg Config, now func() time.Time) *Limiter {
	r := rate.Limit(cfg.TokensPerSecond)
	if cfg.TokensPerSecond <= 0 {
		r = rate.Inf
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 1
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		bucket: rate.NewLimiter(r, capacity),
		now:    now,
		poll:   poll,
	}
}

// TryAcquire takes one token if available right now.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bucket.AllowN(l.now(), 1)
}

// Acquire polls for a token until one is granted, the timeout elapses or the
// context finishes. A timeout of zero or less means a single immediate
// attempt. A false return consumed nothing.
func (l *Limiter) Acquire(ctx context.Context, timeout time.Duration) bool {
	if l.TryAcquire() {
		return true
	}
	if timeout <= 0 {
		return false
	}
	deadline := l.now().Add(timeout)
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if l.TryAcquire() {
				return true
			}
			if !l.now().Before(deadline) {
				return false
			}
		}
	}
}

// Tokens reports the remaining budget at this instant.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bucket.TokensAt(l.now())
}
