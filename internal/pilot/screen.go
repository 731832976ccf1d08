package pilot

import (
	"context"
	"image"
	"strings"
)

// ScreenKeywords holds the per-screen keyword sets the classifier counts.
// Keywords are matched case-insensitively as substrings of the recognized
// frame text.
type ScreenKeywords struct {
	Lobby []string
	Table []string
	Login []string
	Popup []string
}

// DefaultScreenKeywords returns the stock keyword sets for common card-room
// clients.
func DefaultScreenKeywords() ScreenKeywords {
	return ScreenKeywords{
		Lobby: []string{"lobby", "stakes", "players", "tables", "wait", "avg pot"},
		Table: []string{"pot", "fold", "call", "raise", "check", "dealer"},
		Login: []string{"login", "password", "username", "sign in", "remember"},
		Popup: []string{"ok", "cancel", "error", "reconnect", "notice", "update"},
	}
}

// ScreenClassifier decides which coarse screen a captured frame shows. It is
// deterministic and side-effect free: the same text always yields the same
// screen.
type ScreenClassifier struct {
	recognizer TextRecognizer
	keywords   [4]keywordSet
}

type keywordSet struct {
	screen Screen
	words  []string
}

// NewScreenClassifier prepares lowercase keyword sets once so classification
// is allocation-light per frame. Set priority on hit-count ties is fixed:
// lobby, table, login, popup.
func NewScreenClassifier(recognizer TextRecognizer, kw ScreenKeywords) *ScreenClassifier {
	return &ScreenClassifier{
		recognizer: recognizer,
		keywords: [4]keywordSet{
			{screen: ScreenLobby, words: lowerKeywords(kw.Lobby)},
			{screen: ScreenTable, words: lowerKeywords(kw.Table)},
			{screen: ScreenLogin, words: lowerKeywords(kw.Login)},
			{screen: ScreenPopup, words: lowerKeywords(kw.Popup)},
		},
	}
}

func lowerKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		out = append(out, kw)
	}
	return out
}

// Classify recognizes the frame's text and returns the screen whose keyword
// set scores the most hits. Unreadable frames classify as ScreenUnknown.
func (c *ScreenClassifier) Classify(ctx context.Context, frame image.Image) Screen {
	if c == nil || c.recognizer == nil || !c.recognizer.Available() || frame == nil {
		return ScreenUnknown
	}
	text, err := c.recognizer.Recognize(ctx, frame, RecognizeFull)
	if err != nil || strings.TrimSpace(text) == "" {
		return ScreenUnknown
	}
	return c.ClassifyText(text)
}

// ClassifyText applies the keyword counting to already-recognized text.
func (c *ScreenClassifier) ClassifyText(text string) Screen {
	lower := strings.ToLower(text)
	best := ScreenUnknown
	bestHits := 0
	for _, set := range c.keywords {
		hits := 0
		for _, kw := range set.words {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		// Strictly-greater keeps the fixed priority order on ties.
		if hits > bestHits {
			bestHits = hits
			best = set.screen
		}
	}
	return best
}
