package pilot

import (
	"context"
	"image"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ScorePolicy holds the per-criterion match scores. The relative order of the
// defaults matters (exact title outranks everything, substring outranks
// regex); the absolute values are tunable policy.
type ScorePolicy struct {
	TitleExact     float64 `mapstructure:"title_exact"`
	TitleSubstring float64 `mapstructure:"title_substring"`
	TitleRegex     float64 `mapstructure:"title_regex"`
	ClassExact     float64 `mapstructure:"class_exact"`
	ClassPartial   float64 `mapstructure:"class_partial"`
	Process        float64 `mapstructure:"process"`
}

// DefaultScorePolicy returns the stock score table.
func DefaultScorePolicy() ScorePolicy {
	return ScorePolicy{
		TitleExact:     1.0,
		TitleSubstring: 0.8,
		TitleRegex:     0.6,
		ClassExact:     0.9,
		ClassPartial:   0.7,
		Process:        0.85,
	}
}

// WindowMatcherConfig controls candidate filtering and interior computation.
type WindowMatcherConfig struct {
	MinWidth  int
	MinHeight int
	// Border fallbacks used when the window system cannot report a client
	// rect. Values match common desktop decoration sizes.
	BorderSide int
	BorderTop  int
	Scores     ScorePolicy
}

const (
	defaultMinWindowWidth  = 200
	defaultMinWindowHeight = 150
	defaultBorderSide      = 8
	defaultBorderTop       = 31
)

// WindowMatcher discovers the client window among all OS windows.
type WindowMatcher struct {
	ws     WindowSystem
	cfg    WindowMatcherConfig
	logger *zap.Logger
}

// NewWindowMatcher builds a matcher over the given window system.
func NewWindowMatcher(ws WindowSystem, cfg WindowMatcherConfig, logger *zap.Logger) *WindowMatcher {
	if cfg.MinWidth <= 0 {
		cfg.MinWidth = defaultMinWindowWidth
	}
	if cfg.MinHeight <= 0 {
		cfg.MinHeight = defaultMinWindowHeight
	}
	if cfg.BorderSide <= 0 {
		cfg.BorderSide = defaultBorderSide
	}
	if cfg.BorderTop <= 0 {
		cfg.BorderTop = defaultBorderTop
	}
	if cfg.Scores == (ScorePolicy{}) {
		cfg.Scores = DefaultScorePolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WindowMatcher{ws: ws, cfg: cfg, logger: logger}
}

// Enumerate scores every visible window against the query and returns the
// candidates best-score-first. An empty result means no window matched; only
// a failing window system produces an error.
func (m *WindowMatcher) Enumerate(ctx context.Context, query WindowQuery) ([]WindowCandidate, error) {
	if m.ws == nil || !m.ws.Available() {
		return nil, ErrNoWindow
	}
	windows, err := m.ws.EnumerateWindows(ctx)
	if err != nil {
		return nil, err
	}

	var titleRe *regexp.Regexp
	if query.Title != "" {
		// A pattern that fails to compile still serves the exact and
		// substring tiers.
		titleRe, _ = regexp.Compile("(?i)" + query.Title)
	}
	minW, minH := query.MinWidth, query.MinHeight
	if minW <= 0 {
		minW = m.cfg.MinWidth
	}
	if minH <= 0 {
		minH = m.cfg.MinHeight
	}

	candidates := make([]WindowCandidate, 0, len(windows))
	for _, w := range windows {
		if w.Rect.Dx() < minW || w.Rect.Dy() < minH {
			continue
		}
		score, method := m.score(w, query, titleRe)
		if score <= 0 {
			continue
		}
		candidates = append(candidates, WindowCandidate{
			WindowInfo: w,
			Interior:   m.interiorRect(ctx, w),
			Method:     method,
			Score:      score,
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates, nil
}

func (m *WindowMatcher) score(w WindowInfo, query WindowQuery, titleRe *regexp.Regexp) (float64, MatchMethod) {
	best := 0.0
	method := MatchMethod("")
	consider := func(s float64, mm MatchMethod) {
		if s > best {
			best = s
			method = mm
		}
	}
	if query.Title != "" && w.Title != "" {
		lowerTitle := strings.ToLower(w.Title)
		lowerQuery := strings.ToLower(query.Title)
		switch {
		case strings.EqualFold(w.Title, query.Title):
			consider(m.cfg.Scores.TitleExact, MatchTitleExact)
		case strings.Contains(lowerTitle, lowerQuery):
			consider(m.cfg.Scores.TitleSubstring, MatchTitleSubstring)
		case titleRe != nil && titleRe.MatchString(w.Title):
			consider(m.cfg.Scores.TitleRegex, MatchTitleRegex)
		}
	}
	if query.Class != "" && w.Class != "" {
		switch {
		case strings.EqualFold(w.Class, query.Class):
			consider(m.cfg.Scores.ClassExact, MatchClassExact)
		case strings.Contains(strings.ToLower(w.Class), strings.ToLower(query.Class)):
			consider(m.cfg.Scores.ClassPartial, MatchClassPartial)
		}
	}
	if query.Process != "" && w.Process != "" {
		if strings.Contains(strings.ToLower(w.Process), strings.ToLower(query.Process)) {
			consider(m.cfg.Scores.Process, MatchProcess)
		}
	}
	return best, method
}

// interiorRect maps the window's client area to screen coordinates, falling
// back to a fixed border heuristic when the window system cannot say.
func (m *WindowMatcher) interiorRect(ctx context.Context, w WindowInfo) image.Rectangle {
	if rect, err := m.ws.ClientRect(ctx, w.Handle); err == nil && !rect.Empty() {
		return rect
	}
	inner := image.Rect(
		w.Rect.Min.X+m.cfg.BorderSide,
		w.Rect.Min.Y+m.cfg.BorderTop,
		w.Rect.Max.X-m.cfg.BorderSide,
		w.Rect.Max.Y-m.cfg.BorderSide,
	)
	if inner.Empty() {
		return w.Rect
	}
	return inner
}

// WaitFor polls Enumerate until a candidate appears or the timeout elapses.
func (m *WindowMatcher) WaitFor(ctx context.Context, query WindowQuery, timeout, poll time.Duration) (WindowCandidate, bool) {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	for {
		candidates, err := m.Enumerate(ctx, query)
		if err != nil {
			m.logger.Debug("window enumeration failed", zap.Error(err))
		}
		if len(candidates) > 0 {
			return candidates[0], true
		}
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			return WindowCandidate{}, false
		}
		pause(ctx, poll)
	}
}

// Restore un-minimizes the window. Idempotent; failures report false.
func (m *WindowMatcher) Restore(ctx context.Context, handle string) bool {
	if m.ws == nil || !m.ws.Available() {
		return false
	}
	return m.ws.Restore(ctx, handle)
}

// BringToFront raises and focuses the window. Idempotent; failures report false.
func (m *WindowMatcher) BringToFront(ctx context.Context, handle string) bool {
	if m.ws == nil || !m.ws.Available() {
		return false
	}
	return m.ws.BringToFront(ctx, handle)
}

// Move repositions the window. Failures report false.
func (m *WindowMatcher) Move(ctx context.Context, handle string, to image.Rectangle) bool {
	if m.ws == nil || !m.ws.Available() {
		return false
	}
	return m.ws.Move(ctx, handle, to)
}
