// Package backoff computes the wait between retry attempts.
package backoff

import (
	"crypto/rand"
	"math"
	"math/big"
	"sync"
	"time"
)

// Mode selects the delay curve.
type Mode string

// Delay modes.
const (
	ModeFixed       Mode = "fixed"
	ModeJittered    Mode = "jittered"
	ModeExponential Mode = "exponential"
	ModeAdaptive    Mode = "adaptive"
)

// Config holds delay controller configuration.
type Config struct {
	Mode Mode
	// Base is the starting delay.
	Base time.Duration
	// Min and Max clamp every computed delay. Max of zero means the
	// default ceiling.
	Min time.Duration
	Max time.Duration
	// Factor multiplies the delay on failure for the exponential and
	// adaptive modes.
	Factor float64
}

const (
	defaultBase   = 250 * time.Millisecond
	defaultMax    = 5 * time.Second
	defaultFactor = 2.0
)

// Controller tracks retry outcomes and yields the next-attempt wait. Success
// relaxes the delay toward base, repeated failure multiplies it toward the
// ceiling. Every result is clamped to [Min, Max]. Safe for concurrent use.
type Controller struct {
	mu       sync.Mutex
	cfg      Config
	failures int
	current  time.Duration
}

// New creates a Controller with defaults filled in.
func New(cfg Config) *Controller {
	if cfg.Base <= 0 {
		cfg.Base = defaultBase
	}
	if cfg.Max <= 0 {
		cfg.Max = defaultMax
	}
	if cfg.Min < 0 {
		cfg.Min = 0
	}
	if cfg.Min > cfg.Max {
		cfg.Min = cfg.Max
	}
	if cfg.Factor <= 1 {
		cfg.Factor = defaultFactor
	}
	switch cfg.Mode {
	case ModeFixed, ModeJittered, ModeExponential, ModeAdaptive:
	default:
		cfg.Mode = ModeExponential
	}
	return &Controller{cfg: cfg, current: cfg.Base}
}

// Next returns the wait before the next attempt.
func (c *Controller) Next() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.cfg.Mode {
	case ModeFixed:
		return c.clamp(c.cfg.Base)
	case ModeJittered:
		half := c.cfg.Base / 2
		return c.clamp(half + randomJitter(half))
	case ModeAdaptive:
		return c.clamp(c.current)
	default:
		exponent := c.failures - 1
		if exponent < 0 {
			exponent = 0
		}
		delay := float64(c.cfg.Base) * math.Pow(c.cfg.Factor, float64(exponent))
		if delay > float64(c.cfg.Max) {
			delay = float64(c.cfg.Max)
		}
		return c.clamp(time.Duration(delay))
	}
}

// ReportSuccess relaxes the controller: the failure streak resets and the
// adaptive delay steps back toward base.
func (c *Controller) ReportSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	relaxed := time.Duration(float64(c.current) / c.cfg.Factor)
	if relaxed < c.cfg.Base {
		relaxed = c.cfg.Base
	}
	c.current = relaxed
}

// ReportFailure escalates the controller.
func (c *Controller) ReportFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	escalated := time.Duration(float64(c.current) * c.cfg.Factor)
	if escalated > c.cfg.Max {
		escalated = c.cfg.Max
	}
	c.current = escalated
}

// Failures reports the current consecutive-failure streak.
func (c *Controller) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

func (c *Controller) clamp(d time.Duration) time.Duration {
	if d < c.cfg.Min {
		return c.cfg.Min
	}
	if d > c.cfg.Max {
		return c.cfg.Max
	}
	return d
}

// randomJitter returns a uniform duration in [0, limit).
func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
