package pilot

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// LobbyParserConfig controls row segmentation and field extraction.
type LobbyParserConfig struct {
	// RowMinHeight/RowMaxHeight bound the plausible pixel height of one
	// lobby row; bands outside the range are rejected.
	RowMinHeight int
	RowMaxHeight int
	// Threshold is the minimum absolute deviation of a row's mean
	// brightness from the frame median (0..255 scale) for the row to count
	// as part of a band.
	Threshold float64
	// RowPadding widens each detected band before recognition.
	RowPadding int
	// DefaultSeats fills unknown table capacity.
	DefaultSeats int
	// GameKeywords are matched case-insensitively against row text; the
	// first hit becomes the entry's game label.
	GameKeywords []string
	// SeatCeiling separates occupancy-looking integer pairs ("4/6") from
	// stake-looking ones ("100/200").
	SeatCeiling int
}

const (
	defaultRowMinHeight = 12
	defaultRowMaxHeight = 80
	defaultThreshold    = 8.0
	defaultRowPadding   = 2
	defaultSeats        = 9
	defaultSeatCeiling  = 10
)

// defaultGameKeywords covers the variants common card-room lobbies list.
func defaultGameKeywords() []string {
	return []string{"hold'em", "holdem", "omaha", "plo", "stud", "razz", "mixed"}
}

// LobbyParser converts a captured lobby frame into structured table entries.
// Rows that recognize to nothing useful are dropped, never reported as
// errors: a noisy frame simply yields fewer entries.
type LobbyParser struct {
	recognizer TextRecognizer
	cfg        LobbyParserConfig
	logger     *zap.Logger
}

// NewLobbyParser builds a parser with defaults filled in.
func NewLobbyParser(recognizer TextRecognizer, cfg LobbyParserConfig, logger *zap.Logger) *LobbyParser {
	if cfg.RowMinHeight <= 0 {
		cfg.RowMinHeight = defaultRowMinHeight
	}
	if cfg.RowMaxHeight <= 0 {
		cfg.RowMaxHeight = defaultRowMaxHeight
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.RowPadding < 0 {
		cfg.RowPadding = defaultRowPadding
	}
	if cfg.DefaultSeats <= 0 {
		cfg.DefaultSeats = defaultSeats
	}
	if len(cfg.GameKeywords) == 0 {
		cfg.GameKeywords = defaultGameKeywords()
	}
	if cfg.SeatCeiling <= 0 {
		cfg.SeatCeiling = defaultSeatCeiling
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LobbyParser{recognizer: recognizer, cfg: cfg, logger: logger}
}

// Parse segments the frame into candidate rows and recognizes each row crop
// independently; narrow crops read noticeably better than whole-frame
// recognition on list screens.
func (p *LobbyParser) Parse(ctx context.Context, frame image.Image) ([]TableEntry, error) {
	if frame == nil {
		return nil, ErrCaptureUnavailable
	}
	if p.recognizer == nil || !p.recognizer.Available() {
		return nil, ErrRecognitionUnavailable
	}

	bands := p.rowBands(frame)
	entries := make([]TableEntry, 0, len(bands))
	for _, b := range bands {
		crop := cropRows(frame, b.top-p.cfg.RowPadding, b.bottom+p.cfg.RowPadding)
		text, err := p.recognizer.Recognize(ctx, crop, RecognizeSingleLine)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		fields, ok := extractRowFields(text, p.cfg.GameKeywords, p.cfg.SeatCeiling)
		if !ok {
			p.logger.Debug("row yielded no fields", zap.String("text", text))
			continue
		}
		entry := fields.toEntry(SourceOptical, p.cfg.DefaultSeats)
		entry.RowTop = b.top
		entry.RowBottom = b.bottom
		if entry.ID == "" {
			entry.ID = fmt.Sprintf("row-%d", b.top)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

type rowBand struct {
	top    int
	bottom int
}

// rowBands finds contiguous pixel-row runs whose mean brightness deviates
// from the frame median beyond the threshold and whose height is plausible
// for one lobby row.
func (p *LobbyParser) rowBands(frame image.Image) []rowBand {
	projection := brightnessProjection(frame)
	if len(projection) == 0 {
		return nil
	}
	median := medianOf(projection)

	bounds := frame.Bounds()
	var bands []rowBand
	start := -1
	for i, v := range projection {
		deviates := math.Abs(v-median) > p.cfg.Threshold
		switch {
		case deviates && start < 0:
			start = i
		case !deviates && start >= 0:
			p.appendBand(&bands, bounds.Min.Y+start, bounds.Min.Y+i)
			start = -1
		}
	}
	if start >= 0 {
		p.appendBand(&bands, bounds.Min.Y+start, bounds.Max.Y)
	}
	return bands
}

func (p *LobbyParser) appendBand(bands *[]rowBand, top, bottom int) {
	height := bottom - top
	if height < p.cfg.RowMinHeight || height > p.cfg.RowMaxHeight {
		return
	}
	*bands = append(*bands, rowBand{top: top, bottom: bottom})
}

// brightnessProjection returns the mean luma (0..255) of every pixel row.
func brightnessProjection(frame image.Image) []float64 {
	bounds := frame.Bounds()
	if bounds.Empty() {
		return nil
	}
	projection := make([]float64, bounds.Dy())
	width := float64(bounds.Dx())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		sum := 0.0
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := frame.At(x, y).RGBA()
			sum += 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
		projection[y-bounds.Min.Y] = sum / width
	}
	return projection
}

func medianOf(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return sorted[len(sorted)/2]
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// cropRows clips the frame to the pixel-row span [top, bottom).
func cropRows(frame image.Image, top, bottom int) image.Image {
	bounds := frame.Bounds()
	top = clampInt(top, bounds.Min.Y, bounds.Max.Y)
	bottom = clampInt(bottom, bounds.Min.Y, bounds.Max.Y)
	region := image.Rect(bounds.Min.X, top, bounds.Max.X, bottom)
	if si, ok := frame.(subImager); ok {
		return si.SubImage(region)
	}
	out := image.NewNRGBA(region)
	draw.Draw(out, region, frame, region.Min, draw.Src)
	return out
}

// --- row text field extraction (shared with the structured HTML mapper) ---

var (
	slashPairRe = regexp.MustCompile(`([$€£]?\s*\d+(?:[.,]\d+)?)\s*/\s*([$€£]?\s*\d+(?:[.,]\d+)?)`)
	avgPotRe    = regexp.MustCompile(`(?i)(?:avg\.?\s*pot|avg)\s*:?\s*[$€£]?(\d+(?:[.,]\d+)?)`)
	perHourRe   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:h/h|hands/h(?:ou)?r?|hph)`)
	waitlistRe  = regexp.MustCompile(`(?i)wait(?:list)?\s*:?\s*\(?(\d+)\)?`)
	numberish   = regexp.MustCompile(`[\d$€£]`)
)

type rowFields struct {
	name         string
	game         string
	stakes       string
	players      int
	seats        int
	hasOccupancy bool
	avgPot       float64
	handsPerHour float64
	waitlist     int
}

// extractRowFields applies the permissive row patterns to one line of lobby
// text. It reports ok=false when the line carries no numeric lobby signal
// (header rows and decorations fall out here).
func extractRowFields(text string, gameKeywords []string, seatCeiling int) (rowFields, bool) {
	f := rowFields{}
	lower := strings.ToLower(text)

	for _, kw := range gameKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			f.game = kw
			break
		}
	}

	for _, pair := range slashPairRe.FindAllStringSubmatch(text, -1) {
		left, right := pair[1], pair[2]
		if isStakesPair(left, right, seatCeiling) {
			if f.stakes == "" {
				f.stakes = cleanAmount(left) + "/" + cleanAmount(right)
			}
			continue
		}
		if !f.hasOccupancy {
			occ, _ := strconv.Atoi(cleanAmount(left))
			cap_, _ := strconv.Atoi(cleanAmount(right))
			f.players = occ
			f.seats = cap_
			f.hasOccupancy = true
		}
	}

	if m := avgPotRe.FindStringSubmatch(text); m != nil {
		f.avgPot, _ = strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	}
	if m := perHourRe.FindStringSubmatch(text); m != nil {
		f.handsPerHour, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := waitlistRe.FindStringSubmatch(text); m != nil {
		f.waitlist, _ = strconv.Atoi(m[1])
	}

	f.name = leadingName(text)

	if f.stakes == "" && !f.hasOccupancy && f.game == "" {
		return rowFields{}, false
	}
	return f, true
}

// isStakesPair reports whether a slash pair looks like blinds rather than
// occupancy: any currency mark or decimal point, or values above the seat
// ceiling.
func isStakesPair(left, right string, seatCeiling int) bool {
	if strings.ContainsAny(left+right, "$€£.,") {
		return true
	}
	l, errL := strconv.Atoi(strings.TrimSpace(left))
	r, errR := strconv.Atoi(strings.TrimSpace(right))
	if errL != nil || errR != nil {
		return true
	}
	return l > seatCeiling || r > seatCeiling
}

func cleanAmount(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "$€£ ")
	return strings.ReplaceAll(s, ",", ".")
}

// leadingName collects the tokens before the first numeric-looking token.
func leadingName(text string) string {
	var tokens []string
	for _, tok := range strings.Fields(text) {
		if numberish.MatchString(tok) {
			break
		}
		tokens = append(tokens, strings.Trim(tok, ".,:;-"))
	}
	return strings.TrimSpace(strings.Join(tokens, " "))
}

func (f rowFields) toEntry(source SourceTag, defaultSeats int) TableEntry {
	entry := TableEntry{
		Name:         f.name,
		Game:         f.game,
		Stakes:       f.stakes,
		Players:      f.players,
		Seats:        f.seats,
		AvgPot:       f.avgPot,
		HandsPerHour: f.handsPerHour,
		Waitlist:     f.waitlist,
		Source:       source,
	}
	if f.name != "" {
		entry.ID = strings.ToLower(strings.ReplaceAll(f.name, " ", "-"))
	}
	normalizeEntry(&entry, defaultSeats)
	return entry
}

// normalizeEntry enforces the occupancy invariant: players never exceeds a
// known capacity, and unknown capacity is filled from configuration.
func normalizeEntry(e *TableEntry, defaultSeats int) {
	if e.Players < 0 {
		e.Players = 0
	}
	if e.Seats <= 0 {
		e.Seats = defaultSeats
	}
	if e.Seats > 0 && e.Players > e.Seats {
		e.Players = e.Seats
	}
}
