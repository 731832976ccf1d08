// Package proxy selects upstream proxies and tracks their health.
package proxy

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/tablepilot/internal/metrics"
)

// Mode selects how Pick walks the active endpoints.
type Mode string

// Selection modes.
const (
	ModeRoundRobin Mode = "round_robin"
	ModeRandom     Mode = "random"
	ModeFailover   Mode = "failover"
)

// Config holds proxy pool configuration.
type Config struct {
	Endpoints []string
	Mode      Mode
	// FailureThreshold is the consecutive-failure count that disables an
	// endpoint.
	FailureThreshold int
	// DisableFor is how long a disabled endpoint sits out.
	DisableFor time.Duration
}

const (
	defaultFailureThreshold = 3
	defaultDisableFor       = 30 * time.Second
)

type endpointState struct {
	url           string
	failures      int
	disabledUntil time.Time
}

// Pool hands out proxy endpoints and disables the ones that keep failing.
// Expired disables are lifted lazily on the next active-endpoint query, with
// the failure counter reset so the endpoint gets a fresh threshold. One mutex
// guards all state.
type Pool struct {
	mu        sync.Mutex
	endpoints []*endpointState
	mode      Mode
	threshold int
	disable   time.Duration
	cursor    int
	now       func() time.Time
}

// New creates a Pool on the wall clock.
func New(cfg Config) *Pool {
	return NewWithNow(cfg, time.Now)
}

// NewWithNow creates a Pool with an injected time source.
func NewWithNow(cfg Config, now func() time.Time) *Pool {
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	disable := cfg.DisableFor
	if disable <= 0 {
		disable = defaultDisableFor
	}
	if now == nil {
		now = time.Now
	}
	mode := cfg.Mode
	switch mode {
	case ModeRoundRobin, ModeRandom, ModeFailover:
	default:
		mode = ModeRoundRobin
	}

	p := &Pool{mode: mode, threshold: threshold, disable: disable, now: now}
	seen := make(map[string]struct{})
	for _, raw := range cfg.Endpoints {
		url := strings.TrimSpace(raw)
		if url == "" {
			continue
		}
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		p.endpoints = append(p.endpoints, &endpointState{url: url})
	}
	return p
}

// Pick returns the next endpoint per the configured mode. ok is false when
// no endpoint is currently active.
func (p *Pool) Pick() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	active := p.activeLocked()
	if len(active) == 0 {
		return "", false
	}
	switch p.mode {
	case ModeRandom:
		return active[rand.Intn(len(active))].url, true
	case ModeFailover:
		return active[0].url, true
	default:
		state := active[p.cursor%len(active)]
		p.cursor++
		return state.url, true
	}
}

// ReportSuccess clears the endpoint's failure history.
func (p *Pool) ReportSuccess(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if state := p.findLocked(endpoint); state != nil {
		state.failures = 0
		state.disabledUntil = time.Time{}
	}
}

// ReportFailure counts a failure and disables the endpoint once the
// threshold is reached.
func (p *Pool) ReportFailure(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state := p.findLocked(endpoint)
	if state == nil {
		return
	}
	state.failures++
	if state.failures >= p.threshold {
		state.disabledUntil = p.now().Add(p.disable)
		metrics.ObserveProxyDisabled(state.url)
	}
}

// Active lists the endpoints currently eligible for selection.
func (p *Pool) Active() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	active := p.activeLocked()
	urls := make([]string, 0, len(active))
	for _, state := range active {
		urls = append(urls, state.url)
	}
	return urls
}

// Size reports how many endpoints the pool manages in total.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

func (p *Pool) activeLocked() []*endpointState {
	now := p.now()
	var active []*endpointState
	for _, state := range p.endpoints {
		if !state.disabledUntil.IsZero() {
			if now.Before(state.disabledUntil) {
				continue
			}
			// disable expired: fresh threshold
			state.disabledUntil = time.Time{}
			state.failures = 0
		}
		active = append(active, state)
	}
	return active
}

func (p *Pool) findLocked(endpoint string) *endpointState {
	for _, state := range p.endpoints {
		if state.url == endpoint {
			return state
		}
	}
	return nil
}
