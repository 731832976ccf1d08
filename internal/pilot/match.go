package pilot

import (
	"fmt"
	"strings"
)

// ValidateFilter rejects filters that could never match anything.
func ValidateFilter(f TableFilter) error {
	if f.MinPlayers < 0 {
		return fmt.Errorf("min_players must not be negative, got %d", f.MinPlayers)
	}
	if f.MaxPlayers < 0 {
		return fmt.Errorf("max_players must not be negative, got %d", f.MaxPlayers)
	}
	if f.MaxPlayers > 0 && f.MinPlayers > f.MaxPlayers {
		return fmt.Errorf("min_players %d exceeds max_players %d", f.MinPlayers, f.MaxPlayers)
	}
	if f.MaxSeats < 0 {
		return fmt.Errorf("max_seats must not be negative, got %d", f.MaxSeats)
	}
	return nil
}

// MatchTable returns the first entry that survives every filter criterion,
// preserving the order entries arrived in. Zero-valued criteria do not
// constrain. The second return is false when nothing matched.
func MatchTable(entries []TableEntry, filter TableFilter) (TableEntry, bool) {
	for _, e := range entries {
		if matchesFilter(e, filter) {
			return e, true
		}
	}
	return TableEntry{}, false
}

func matchesFilter(e TableEntry, f TableFilter) bool {
	if f.Game != "" && !strings.Contains(strings.ToLower(e.Game), strings.ToLower(f.Game)) {
		return false
	}
	if f.MinPlayers > 0 && e.Players < f.MinPlayers {
		return false
	}
	if f.MaxPlayers > 0 && e.Players > f.MaxPlayers {
		return false
	}
	if f.MaxSeats > 0 && e.Seats > f.MaxSeats {
		return false
	}
	return true
}
