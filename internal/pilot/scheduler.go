package pilot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tablepilot/internal/metrics"
)

// SchedulerConfig tunes fetch coalescing and strategy selection.
type SchedulerConfig struct {
	// CacheTTL is how long a successful result keeps serving callers
	// without a new fetch.
	CacheTTL time.Duration
	// AcquireTimeout bounds the wait for a rate-limiter token. Zero or
	// negative means a single immediate attempt.
	AcquireTimeout time.Duration
	// Order picks which strategies run and in what sequence.
	Order StrategyOrder
}

const (
	defaultCacheTTL       = 5 * time.Second
	defaultAcquireTimeout = 2 * time.Second
)

// Scheduler serializes lobby fetches: cached results first, then a rate
// limiter token, then each configured strategy in order until one yields
// entries. It never fails hard; the outcome is always a FetchResult whose
// Errors list explains what was skipped or went wrong along the way.
type Scheduler struct {
	gate    RateGate
	sources []EntrySource
	cfg     SchedulerConfig
	clock   Clock
	logger  *zap.Logger

	mu       sync.Mutex
	cached   *FetchResult
	cachedAt time.Time
}

// NewScheduler builds a scheduler over the given strategies. gate may be nil
// to run unthrottled; clock may be nil to use wall time.
func NewScheduler(gate RateGate, sources []EntrySource, cfg SchedulerConfig, clock Clock, logger *zap.Logger) *Scheduler {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.AcquireTimeout == 0 {
		cfg.AcquireTimeout = defaultAcquireTimeout
	}
	if cfg.Order == "" {
		cfg.Order = OrderStructuredFirst
	}
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{gate: gate, sources: sources, cfg: cfg, clock: clock, logger: logger}
}

// Fetch returns the current lobby entries. Concurrent callers share the
// cache and the token budget.
func (s *Scheduler) Fetch(ctx context.Context, params map[string]string) FetchResult {
	start := s.clock.Now()

	if result, ok := s.cachedResult(start); ok {
		metrics.ObserveFetch(string(result.Strategy), "cache", s.clock.Now().Sub(start))
		return result
	}

	if s.gate != nil {
		granted := s.gate.Acquire(ctx, s.cfg.AcquireTimeout)
		metrics.ObserveRateLimitWait(s.clock.Now().Sub(start))
		if !granted {
			metrics.ObserveFetch(string(StrategyNone), "throttled", s.clock.Now().Sub(start))
			return FetchResult{
				Strategy: StrategyNone,
				Elapsed:  s.clock.Now().Sub(start),
				Errors:   []string{"rate limit: no token within acquire timeout"},
			}
		}
	}

	var errs []string
	for _, kind := range s.cfg.Order.strategies() {
		src := s.sourceFor(kind)
		if src == nil || !src.Available() {
			errs = append(errs, fmt.Sprintf("%s strategy unavailable", kind))
			continue
		}
		entries, err := src.Entries(ctx, params)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s strategy: %v", kind, err))
			continue
		}
		if len(entries) == 0 {
			errs = append(errs, fmt.Sprintf("%s strategy returned no entries", kind))
			continue
		}
		result := FetchResult{
			Entries:  entries,
			Strategy: kind,
			Elapsed:  s.clock.Now().Sub(start),
			Errors:   errs,
		}
		s.storeCache(result)
		metrics.ObserveFetch(string(kind), "ok", result.Elapsed)
		metrics.ObserveEntries(string(kind), len(entries))
		s.logger.Info("lobby fetch succeeded",
			zap.String("strategy", string(kind)),
			zap.Int("entries", len(entries)),
			zap.Duration("elapsed", result.Elapsed))
		return result
	}

	s.logger.Warn("lobby fetch exhausted all strategies", zap.Strings("errors", errs))
	elapsed := s.clock.Now().Sub(start)
	metrics.ObserveFetch(string(StrategyNone), "exhausted", elapsed)
	return FetchResult{
		Strategy: StrategyNone,
		Elapsed:  elapsed,
		Errors:   errs,
	}
}

// Invalidate drops the cached result so the next Fetch goes to a source.
func (s *Scheduler) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
}

func (s *Scheduler) cachedResult(now time.Time) (FetchResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == nil || now.Sub(s.cachedAt) >= s.cfg.CacheTTL {
		return FetchResult{}, false
	}
	result := *s.cached
	result.Entries = append([]TableEntry(nil), s.cached.Entries...)
	result.FromCache = true
	return result, true
}

func (s *Scheduler) storeCache(result FetchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := result
	stored.Entries = append([]TableEntry(nil), result.Entries...)
	s.cached = &stored
	s.cachedAt = s.clock.Now()
}

func (s *Scheduler) sourceFor(kind FetchStrategy) EntrySource {
	for _, src := range s.sources {
		if src != nil && src.Kind() == kind {
			return src
		}
	}
	return nil
}

// strategies expands the configured order into the strategy sequence to try.
func (o StrategyOrder) strategies() []FetchStrategy {
	switch o {
	case OrderOpticalFirst:
		return []FetchStrategy{StrategyOptical, StrategyStructured}
	case OrderStructuredOnly:
		return []FetchStrategy{StrategyStructured}
	case OrderOpticalOnly:
		return []FetchStrategy{StrategyOptical}
	default:
		return []FetchStrategy{StrategyStructured, StrategyOptical}
	}
}
