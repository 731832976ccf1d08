package pilot

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"go.uber.org/zap"
)

// NavigatorConfig tunes the seating loop.
type NavigatorConfig struct {
	// WindowWait bounds the initial wait for the client window; WindowPoll
	// is the re-enumeration interval during that wait.
	WindowWait time.Duration
	WindowPoll time.Duration
	// LoopPause separates loop iterations that did not act; SettlePause
	// follows a click so the client can repaint before re-capture.
	LoopPause   time.Duration
	SettlePause time.Duration
	// DefaultTimeout applies when the caller passes no run timeout.
	DefaultTimeout time.Duration
	// MaxScrolls caps how far down the lobby list the run will look.
	MaxScrolls   int
	ScrollAmount int
	// DismissKeywords locate popup close controls, ConfirmKeywords locate
	// the seat/join control after a row is selected.
	DismissKeywords []string
	ConfirmKeywords []string
	// ArchiveFrames stores the final frame of unsuccessful runs under
	// ArchivePrefix in the blob store.
	ArchiveFrames bool
	ArchivePrefix string
}

const (
	defaultWindowWait   = 10 * time.Second
	defaultWindowPoll   = 250 * time.Millisecond
	defaultLoopPause    = 500 * time.Millisecond
	defaultSettlePause  = 750 * time.Millisecond
	defaultRunTimeout   = 60 * time.Second
	defaultMaxScrolls   = 10
	defaultScrollAmount = 3

	defaultArchivePrefix = "frames"
)

func defaultDismissKeywords() []string {
	return []string{"ok", "close", "dismiss", "continue", "cancel"}
}

func defaultConfirmKeywords() []string {
	return []string{"join", "sit", "seat", "play", "ok"}
}

// Navigator drives one seating session against the client window: resolve
// the window, then capture/classify/act until seated or out of budget. One
// Navigator instance serves one target window; run several independent
// instances for several windows.
type Navigator struct {
	windows    *WindowMatcher
	query      WindowQuery
	frames     FrameSource
	recognizer TextRecognizer
	classifier *ScreenClassifier
	parser     *LobbyParser
	actions    ActionExecutor
	blobs      BlobStore
	clock      Clock
	cfg        NavigatorConfig
	logger     *zap.Logger
}

// NewNavigator wires a seating session. blobs may be nil to disable frame
// archiving; clock may be nil to use wall time.
func NewNavigator(
	windows *WindowMatcher,
	query WindowQuery,
	frames FrameSource,
	recognizer TextRecognizer,
	classifier *ScreenClassifier,
	parser *LobbyParser,
	actions ActionExecutor,
	blobs BlobStore,
	clock Clock,
	cfg NavigatorConfig,
	logger *zap.Logger,
) *Navigator {
	if cfg.WindowWait <= 0 {
		cfg.WindowWait = defaultWindowWait
	}
	if cfg.WindowPoll <= 0 {
		cfg.WindowPoll = defaultWindowPoll
	}
	if cfg.LoopPause <= 0 {
		cfg.LoopPause = defaultLoopPause
	}
	if cfg.SettlePause <= 0 {
		cfg.SettlePause = defaultSettlePause
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultRunTimeout
	}
	if cfg.MaxScrolls <= 0 {
		cfg.MaxScrolls = defaultMaxScrolls
	}
	if cfg.ScrollAmount <= 0 {
		cfg.ScrollAmount = defaultScrollAmount
	}
	if len(cfg.DismissKeywords) == 0 {
		cfg.DismissKeywords = defaultDismissKeywords()
	}
	if len(cfg.ConfirmKeywords) == 0 {
		cfg.ConfirmKeywords = defaultConfirmKeywords()
	}
	cfg.ArchivePrefix = strings.Trim(cfg.ArchivePrefix, "/")
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = defaultArchivePrefix
	}
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Navigator{
		windows:    windows,
		query:      query,
		frames:     frames,
		recognizer: recognizer,
		classifier: classifier,
		parser:     parser,
		actions:    actions,
		blobs:      blobs,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run looks for a table matching the filter and seats the player at it. The
// outcome is always a structured result; a bad frame or a blocked action
// costs an iteration, never the whole process.
func (n *Navigator) Run(ctx context.Context, filter TableFilter, timeout time.Duration) SeatResult {
	start := n.clock.Now()
	if err := ValidateFilter(filter); err != nil {
		return SeatResult{
			State:   SessionNoMatch,
			Message: fmt.Sprintf("invalid filter: %v", err),
			Elapsed: n.clock.Now().Sub(start),
		}
	}
	if timeout <= 0 {
		timeout = n.cfg.DefaultTimeout
	}
	deadline := start.Add(timeout)

	target, ok := n.windows.WaitFor(ctx, n.query, n.cfg.WindowWait, n.cfg.WindowPoll)
	if !ok {
		return n.finish(ctx, SeatResult{
			State:   SessionTimedOut,
			Message: "target window not found within wait budget",
			Elapsed: n.clock.Now().Sub(start),
		}, nil)
	}
	if target.Minimized {
		n.windows.Restore(ctx, target.Handle)
	}
	n.windows.BringToFront(ctx, target.Handle)
	n.logger.Info("target window resolved",
		zap.String("handle", target.Handle),
		zap.String("title", target.Title),
		zap.Float64("score", target.Score))

	attempts := 0
	scrolls := 0
	var lastFrame image.Image
	var lastNote string

	for n.clock.Now().Before(deadline) && ctx.Err() == nil {
		attempts++

		frame, err := n.frames.Capture(ctx, target.Handle, target.Interior)
		if err != nil || frame == nil {
			lastNote = "frame capture unavailable"
			n.logger.Warn("capture failed", zap.Int("attempt", attempts), zap.Error(err))
			pause(ctx, n.cfg.LoopPause)
			continue
		}
		lastFrame = frame

		screen := n.classifier.Classify(ctx, frame)
		n.logger.Debug("screen classified", zap.String("screen", string(screen)), zap.Int("attempt", attempts))

		switch screen {
		case ScreenTable:
			return n.finish(ctx, SeatResult{
				State:    SessionSeated,
				Message:  "already seated at a table",
				Elapsed:  n.clock.Now().Sub(start),
				Attempts: attempts,
			}, nil)

		case ScreenLogin:
			return n.finish(ctx, SeatResult{
				State:    SessionBlocked,
				Message:  "login screen requires operator attention",
				Elapsed:  n.clock.Now().Sub(start),
				Attempts: attempts,
			}, lastFrame)

		case ScreenPopup:
			lastNote = "dismissed popup"
			n.dismissPopup(ctx, target, frame)
			pause(ctx, n.cfg.LoopPause)

		case ScreenLobby:
			entries, perr := n.parser.Parse(ctx, frame)
			if perr != nil {
				lastNote = fmt.Sprintf("lobby parse failed: %v", perr)
				n.logger.Warn("lobby parse failed", zap.Error(perr))
				pause(ctx, n.cfg.LoopPause)
				continue
			}
			entry, found := MatchTable(entries, filter)
			if !found {
				if scrolls >= n.cfg.MaxScrolls {
					return n.finish(ctx, SeatResult{
						State:    SessionNoMatch,
						Message:  fmt.Sprintf("no matching table among %d entries after %d scrolls", len(entries), scrolls),
						Elapsed:  n.clock.Now().Sub(start),
						Attempts: attempts,
					}, lastFrame)
				}
				scrolls++
				n.actions.Scroll(ctx, ScrollDown, n.cfg.ScrollAmount)
				pause(ctx, n.cfg.LoopPause)
				continue
			}

			result, done := n.seatAt(ctx, target, frame, entry, start, attempts)
			if done {
				return n.finish(ctx, result, lastFrame)
			}
			lastNote = result.Message
			pause(ctx, n.cfg.LoopPause)

		default:
			lastNote = "unrecognized screen"
			pause(ctx, n.cfg.LoopPause)
		}
	}

	message := "seating run exceeded its deadline"
	if lastNote != "" {
		message = fmt.Sprintf("%s (last: %s)", message, lastNote)
	}
	return n.finish(ctx, SeatResult{
		State:    SessionTimedOut,
		Message:  message,
		Elapsed:  n.clock.Now().Sub(start),
		Attempts: attempts,
	}, lastFrame)
}

// seatAt clicks the matched row, confirms via the join control and verifies
// the transition. done=false means the select action was blocked and the
// loop should try again.
func (n *Navigator) seatAt(ctx context.Context, target WindowCandidate, frame image.Image, entry TableEntry, start time.Time, attempts int) (SeatResult, bool) {
	rowPoint := rowClickPoint(frame, entry)
	if !n.clickFramePoint(ctx, target, frame, rowPoint) {
		n.logger.Warn("row select click blocked", zap.String("table", entry.ID))
		return SeatResult{Message: "row select click blocked"}, false
	}
	pause(ctx, n.cfg.SettlePause)

	confirm, err := n.frames.Capture(ctx, target.Handle, target.Interior)
	if err == nil && confirm != nil {
		if box, ok := n.findKeywordBox(ctx, confirm, n.cfg.ConfirmKeywords); ok {
			n.clickFramePoint(ctx, target, confirm, boxCenter(box.Box))
			pause(ctx, n.cfg.SettlePause)
		}
		if verify, verr := n.frames.Capture(ctx, target.Handle, target.Interior); verr == nil && verify != nil {
			if n.classifier.Classify(ctx, verify) == ScreenTable {
				return SeatResult{
					State:    SessionSeated,
					Table:    &entry,
					Message:  fmt.Sprintf("seated at %s", entry.Name),
					Elapsed:  n.clock.Now().Sub(start),
					Attempts: attempts,
				}, true
			}
		}
	}

	return SeatResult{
		State:    SessionAtLobby,
		Table:    &entry,
		Message:  fmt.Sprintf("selected %s but seating did not confirm", entry.Name),
		Elapsed:  n.clock.Now().Sub(start),
		Attempts: attempts,
	}, true
}

// dismissPopup clicks the first dismiss keyword visible on the frame. A
// popup with no readable control is left alone; the next iteration will see
// whether it cleared itself.
func (n *Navigator) dismissPopup(ctx context.Context, target WindowCandidate, frame image.Image) {
	box, ok := n.findKeywordBox(ctx, frame, n.cfg.DismissKeywords)
	if !ok {
		n.logger.Debug("popup has no recognizable dismiss control")
		return
	}
	n.clickFramePoint(ctx, target, frame, boxCenter(box.Box))
}

// findKeywordBox scans recognized word boxes for the first keyword hit, in
// keyword priority order.
func (n *Navigator) findKeywordBox(ctx context.Context, frame image.Image, keywords []string) (WordBox, bool) {
	if n.recognizer == nil || !n.recognizer.Available() {
		return WordBox{}, false
	}
	words, err := n.recognizer.RecognizeWords(ctx, frame)
	if err != nil || len(words) == 0 {
		return WordBox{}, false
	}
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		for _, wb := range words {
			if strings.Contains(strings.ToLower(wb.Word), kw) {
				return wb, true
			}
		}
	}
	return WordBox{}, false
}

// clickFramePoint translates a frame-local point into screen coordinates and
// issues the click.
func (n *Navigator) clickFramePoint(ctx context.Context, target WindowCandidate, frame image.Image, pt image.Point) bool {
	origin := frame.Bounds().Min
	x := target.Interior.Min.X + (pt.X - origin.X)
	y := target.Interior.Min.Y + (pt.Y - origin.Y)
	return n.actions.Click(ctx, x, y)
}

// rowClickPoint aims at the vertical middle of the matched optical row, or
// the frame center when the entry carries no row geometry.
func rowClickPoint(frame image.Image, entry TableEntry) image.Point {
	bounds := frame.Bounds()
	x := bounds.Min.X + bounds.Dx()/2
	if entry.RowBottom > entry.RowTop {
		return image.Point{X: x, Y: (entry.RowTop + entry.RowBottom) / 2}
	}
	return image.Point{X: x, Y: bounds.Min.Y + bounds.Dy()/2}
}

func boxCenter(r image.Rectangle) image.Point {
	return image.Point{X: (r.Min.X + r.Max.X) / 2, Y: (r.Min.Y + r.Max.Y) / 2}
}

// finish archives the final frame of unsuccessful runs when configured.
func (n *Navigator) finish(ctx context.Context, result SeatResult, lastFrame image.Image) SeatResult {
	if result.State == SessionSeated || !n.cfg.ArchiveFrames || n.blobs == nil || lastFrame == nil {
		return result
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, lastFrame); err != nil {
		n.logger.Warn("frame archive encode failed", zap.Error(err))
		return result
	}
	path := fmt.Sprintf("%s/%d-%s.png", n.cfg.ArchivePrefix, n.clock.Now().UnixMilli(), result.State)
	uri, err := n.blobs.PutObject(ctx, path, "image/png", buf.Bytes())
	if err != nil {
		n.logger.Warn("frame archive write failed", zap.Error(err))
		return result
	}
	n.logger.Info("archived final frame", zap.String("uri", uri), zap.String("state", string(result.State)))
	return result
}
