package pilot

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

// MappingConfig tunes the best-effort body mapping used by the structured
// fetch strategy. Backends disagree on field names, so every field is looked
// up through an ordered alias list; the first key that exists wins.
type MappingConfig struct {
	// RowSelector locates entry rows in HTML bodies.
	RowSelector string
	// GameKeywords and SeatCeiling feed the shared row-text extraction when
	// the body is HTML.
	GameKeywords []string
	SeatCeiling  int
	DefaultSeats int
}

const defaultRowSelector = "table tr"

func (c MappingConfig) withDefaults() MappingConfig {
	if c.RowSelector == "" {
		c.RowSelector = defaultRowSelector
	}
	if len(c.GameKeywords) == 0 {
		c.GameKeywords = defaultGameKeywords()
	}
	if c.SeatCeiling <= 0 {
		c.SeatCeiling = defaultSeatCeiling
	}
	if c.DefaultSeats <= 0 {
		c.DefaultSeats = defaultSeats
	}
	return c
}

var (
	rowAliases      = []string{"tables", "entries", "data", "items", "list"}
	idAliases       = []string{"id", "table_id", "tid"}
	nameAliases     = []string{"name", "table_name", "title"}
	gameAliases     = []string{"game", "variant", "category"}
	stakesAliases   = []string{"stakes", "blinds", "limit"}
	playersAliases  = []string{"players", "occupied", "seated"}
	seatsAliases    = []string{"seats", "capacity", "max_players"}
	avgPotAliases   = []string{"avg_pot", "average_pot", "pot"}
	perHourAliases  = []string{"hands_per_hour", "speed", "hph"}
	waitlistAliases = []string{"waitlist", "queue", "waiting"}
)

// mapEntries converts a structured response body into table entries.
func mapEntries(body []byte, format BodyFormat, cfg MappingConfig) ([]TableEntry, error) {
	cfg = cfg.withDefaults()
	switch format {
	case FormatHTML:
		return mapHTMLEntries(body, cfg)
	default:
		return mapJSONEntries(body, cfg), nil
	}
}

// mapJSONEntries walks the alias lists over a JSON body. A top-level array
// is accepted as the row list directly; otherwise the first row alias that
// holds an array wins. Unmappable rows are skipped, never fatal.
func mapJSONEntries(body []byte, cfg MappingConfig) []TableEntry {
	root := gjson.ParseBytes(body)
	rows := root
	if !root.IsArray() {
		rows = gjson.Result{}
		for _, key := range rowAliases {
			if v := root.Get(key); v.IsArray() {
				rows = v
				break
			}
		}
	}
	if !rows.IsArray() {
		return nil
	}

	var entries []TableEntry
	for i, row := range rows.Array() {
		entry := TableEntry{
			ID:           firstString(row, idAliases),
			Name:         firstString(row, nameAliases),
			Game:         firstString(row, gameAliases),
			Stakes:       stakesOf(row),
			Players:      int(firstInt(row, playersAliases)),
			Seats:        int(firstInt(row, seatsAliases)),
			AvgPot:       firstFloat(row, avgPotAliases),
			HandsPerHour: firstFloat(row, perHourAliases),
			Waitlist:     int(firstInt(row, waitlistAliases)),
			Source:       SourceStructured,
		}
		if entry.ID == "" && entry.Name == "" {
			continue
		}
		if entry.ID == "" {
			entry.ID = fmt.Sprintf("entry-%d", i)
		}
		normalizeEntry(&entry, cfg.DefaultSeats)
		entries = append(entries, entry)
	}
	return entries
}

func firstString(row gjson.Result, keys []string) string {
	for _, key := range keys {
		if v := row.Get(key); v.Exists() {
			return strings.TrimSpace(v.String())
		}
	}
	return ""
}

func firstInt(row gjson.Result, keys []string) int64 {
	for _, key := range keys {
		if v := row.Get(key); v.Exists() {
			return v.Int()
		}
	}
	return 0
}

func firstFloat(row gjson.Result, keys []string) float64 {
	for _, key := range keys {
		if v := row.Get(key); v.Exists() {
			return v.Float()
		}
	}
	return 0
}

// stakesOf tolerates both a flat stakes string ("0.25/0.50") and a blind
// object ({"small_blind": 0.25, "big_blind": 0.5}).
func stakesOf(row gjson.Result) string {
	for _, key := range stakesAliases {
		v := row.Get(key)
		if !v.Exists() {
			continue
		}
		if v.IsObject() {
			small := firstString(v, []string{"small_blind", "small", "sb"})
			big := firstString(v, []string{"big_blind", "big", "bb"})
			if small != "" && big != "" {
				return small + "/" + big
			}
			continue
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			return s
		}
	}
	return ""
}

// mapHTMLEntries selects rows with the configured selector and pushes each
// row's text through the same permissive extraction the optical parser uses.
func mapHTMLEntries(body []byte, cfg MappingConfig) ([]TableEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html body: %w", err)
	}

	var entries []TableEntry
	doc.Find(cfg.RowSelector).Each(func(i int, sel *goquery.Selection) {
		text := strings.Join(strings.Fields(sel.Text()), " ")
		fields, ok := extractRowFields(text, cfg.GameKeywords, cfg.SeatCeiling)
		if !ok {
			return
		}
		entry := fields.toEntry(SourceStructured, cfg.DefaultSeats)
		if entry.ID == "" {
			entry.ID = fmt.Sprintf("entry-%d", i)
		}
		entries = append(entries, entry)
	})
	return entries, nil
}
