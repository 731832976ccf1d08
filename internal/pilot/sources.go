package pilot

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// StructuredSourceConfig tunes the structured fetch strategy.
type StructuredSourceConfig struct {
	// Retries is the number of additional attempts after the first request
	// fails retryably.
	Retries int
	Mapping MappingConfig
}

const defaultSourceRetries = 2

// StructuredEntrySource pulls lobby entries from an HTTP backend. One
// Entries call picks a proxy, runs the request under retry-with-backoff and
// reports the proxy's health at the end: success on any mapped response,
// failure on retry exhaustion or a client error.
type StructuredEntrySource struct {
	src      StructuredSource
	endpoint Endpoint
	proxies  ProxyPicker
	delays   DelayPolicy
	cfg      StructuredSourceConfig
	logger   *zap.Logger
}

// NewStructuredEntrySource builds the structured strategy. proxies and
// delays may be nil when the deployment uses neither.
func NewStructuredEntrySource(src StructuredSource, endpoint Endpoint, proxies ProxyPicker, delays DelayPolicy, cfg StructuredSourceConfig, logger *zap.Logger) *StructuredEntrySource {
	if cfg.Retries < 0 {
		cfg.Retries = defaultSourceRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StructuredEntrySource{
		src:      src,
		endpoint: endpoint,
		proxies:  proxies,
		delays:   delays,
		cfg:      cfg,
		logger:   logger,
	}
}

func (s *StructuredEntrySource) Kind() FetchStrategy { return StrategyStructured }

func (s *StructuredEntrySource) Available() bool {
	return s.src != nil && s.src.Available() && s.endpoint.BaseURL != ""
}

// Entries requests the lobby endpoint and maps its body. Retries cover 5xx,
// 429 and transport errors; other 4xx responses fail immediately.
func (s *StructuredEntrySource) Entries(ctx context.Context, params map[string]string) ([]TableEntry, error) {
	if !s.Available() {
		return nil, ErrSourceUnavailable
	}

	proxyURL := ""
	if s.proxies != nil {
		proxyURL, _ = s.proxies.Pick()
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		if attempt > 0 {
			if s.delays != nil {
				pause(ctx, s.delays.Next())
			}
			if ctx.Err() != nil {
				lastErr = ctx.Err()
				break
			}
		}

		resp, err := s.src.Request(ctx, s.endpoint, proxyURL, params)
		if err != nil {
			lastErr = err
			s.logger.Warn("lobby request failed",
				zap.String("endpoint", s.endpoint.Name),
				zap.Int("attempt", attempt),
				zap.Error(err))
			s.noteFailure()
			continue
		}
		if retryableStatus(resp.StatusCode) {
			lastErr = fmt.Errorf("lobby endpoint %s returned status %d", s.endpoint.Name, resp.StatusCode)
			s.noteFailure()
			continue
		}
		if resp.StatusCode >= http.StatusBadRequest {
			lastErr = fmt.Errorf("lobby endpoint %s rejected request with status %d", s.endpoint.Name, resp.StatusCode)
			break
		}

		entries, mapErr := mapEntries(resp.Body, s.endpoint.Format, s.cfg.Mapping)
		if mapErr != nil {
			lastErr = mapErr
			break
		}
		s.noteSuccess(proxyURL)
		return entries, nil
	}

	if s.proxies != nil && proxyURL != "" {
		s.proxies.ReportFailure(proxyURL)
	}
	return nil, lastErr
}

func (s *StructuredEntrySource) noteSuccess(proxyURL string) {
	if s.delays != nil {
		s.delays.ReportSuccess()
	}
	if s.proxies != nil && proxyURL != "" {
		s.proxies.ReportSuccess(proxyURL)
	}
}

func (s *StructuredEntrySource) noteFailure() {
	if s.delays != nil {
		s.delays.ReportFailure()
	}
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// OpticalEntrySource reads the lobby straight off the client window: locate
// the window, capture its interior, verify the screen is a lobby and run the
// row parser.
type OpticalEntrySource struct {
	matcher    *WindowMatcher
	query      WindowQuery
	frames     FrameSource
	classifier *ScreenClassifier
	parser     *LobbyParser
	logger     *zap.Logger
}

// NewOpticalEntrySource builds the optical strategy. classifier may be nil
// when the caller trusts the window to always show the lobby.
func NewOpticalEntrySource(matcher *WindowMatcher, query WindowQuery, frames FrameSource, classifier *ScreenClassifier, parser *LobbyParser, logger *zap.Logger) *OpticalEntrySource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpticalEntrySource{
		matcher:    matcher,
		query:      query,
		frames:     frames,
		classifier: classifier,
		parser:     parser,
		logger:     logger,
	}
}

func (s *OpticalEntrySource) Kind() FetchStrategy { return StrategyOptical }

func (s *OpticalEntrySource) Available() bool {
	return s.matcher != nil && s.frames != nil && s.parser != nil
}

func (s *OpticalEntrySource) Entries(ctx context.Context, _ map[string]string) ([]TableEntry, error) {
	if !s.Available() {
		return nil, ErrSourceUnavailable
	}

	candidates, err := s.matcher.Enumerate(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("enumerate windows: %w", err)
	}
	if len(candidates) == 0 {
		return nil, ErrNoWindow
	}
	target := candidates[0]

	frame, err := s.frames.Capture(ctx, target.Handle, target.Interior)
	if err != nil {
		return nil, fmt.Errorf("capture lobby frame: %w", err)
	}
	if frame == nil {
		return nil, ErrCaptureUnavailable
	}

	if s.classifier != nil {
		if screen := s.classifier.Classify(ctx, frame); screen != ScreenLobby {
			s.logger.Debug("optical source skipped non-lobby screen", zap.String("screen", string(screen)))
			return nil, ErrNotLobbyScreen
		}
	}
	return s.parser.Parse(ctx, frame)
}
