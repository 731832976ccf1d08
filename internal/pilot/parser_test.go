package pilot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRecognizesBandedRows(t *testing.T) {
	t.Parallel()

	frame := bandedFrame(300, 160, [2]int{30, 50}, [2]int{70, 90})
	rec := &fakeRecognizer{
		available: true,
		rowTexts: []string{
			"Alpha NL50 $0.25/$0.50 Hold'em 4/6",
			"Bravo Omaha 2/9 avg pot $14.50 waitlist 3",
		},
	}
	p := NewLobbyParser(rec, LobbyParserConfig{}, nil)

	entries, err := p.Parse(context.Background(), frame)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	alpha := entries[0]
	require.Contains(t, alpha.Name, "Alpha")
	require.Equal(t, "alpha", alpha.ID)
	require.Equal(t, "hold'em", alpha.Game)
	require.Contains(t, alpha.Stakes, "0.25")
	require.Contains(t, alpha.Stakes, "0.50")
	require.Equal(t, 4, alpha.Players)
	require.Equal(t, 6, alpha.Seats)
	require.Equal(t, SourceOptical, alpha.Source)
	require.Equal(t, 30, alpha.RowTop)
	require.Equal(t, 50, alpha.RowBottom)

	bravo := entries[1]
	require.Equal(t, "omaha", bravo.Game)
	require.Equal(t, 2, bravo.Players)
	require.Equal(t, 9, bravo.Seats)
	require.InDelta(t, 14.50, bravo.AvgPot, 0.001)
	require.Equal(t, 3, bravo.Waitlist)
	require.Equal(t, 70, bravo.RowTop)
}

func TestParseDropsRowsWithoutFields(t *testing.T) {
	t.Parallel()

	frame := bandedFrame(300, 160, [2]int{30, 50}, [2]int{70, 90})
	rec := &fakeRecognizer{
		available: true,
		rowTexts: []string{
			"Table Name Stakes Players",
			"Charlie Stud 5/7",
		},
	}
	p := NewLobbyParser(rec, LobbyParserConfig{}, nil)

	entries, err := p.Parse(context.Background(), frame)
	require.NoError(t, err)
	require.Len(t, entries, 1, "header row carries no numeric signal and is dropped")
	require.Equal(t, "charlie", entries[0].ID)
}

func TestParseRejectsImplausibleBandHeights(t *testing.T) {
	t.Parallel()

	// 5px is below the minimum row height, 100px above the maximum.
	frame := bandedFrame(300, 200, [2]int{10, 15}, [2]int{40, 140})
	rec := &fakeRecognizer{available: true, rowTexts: []string{"Alpha 4/6"}}
	p := NewLobbyParser(rec, LobbyParserConfig{}, nil)

	entries, err := p.Parse(context.Background(), frame)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestParseWithoutRecognizer(t *testing.T) {
	t.Parallel()

	p := NewLobbyParser(&fakeRecognizer{available: false}, LobbyParserConfig{}, nil)
	_, err := p.Parse(context.Background(), bandedFrame(100, 60, [2]int{20, 40}))
	require.ErrorIs(t, err, ErrRecognitionUnavailable)

	p = NewLobbyParser(&fakeRecognizer{available: true}, LobbyParserConfig{}, nil)
	_, err = p.Parse(context.Background(), nil)
	require.ErrorIs(t, err, ErrCaptureUnavailable)
}

func TestParseNamelessRowGetsPositionalID(t *testing.T) {
	t.Parallel()

	frame := bandedFrame(300, 120, [2]int{44, 64})
	rec := &fakeRecognizer{available: true, rowTexts: []string{"$1/$2 6/9"}}
	p := NewLobbyParser(rec, LobbyParserConfig{}, nil)

	entries, err := p.Parse(context.Background(), frame)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "row-44", entries[0].ID)
	require.Equal(t, "1/2", entries[0].Stakes)
}

func TestExtractRowFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		ok   bool
		want rowFields
	}{
		{
			name: "full row",
			text: "Alpha NL50 $0.25/$0.50 Hold'em 4/6",
			ok:   true,
			want: rowFields{name: "Alpha", game: "hold'em", stakes: "0.25/0.50", players: 4, seats: 6, hasOccupancy: true},
		},
		{
			name: "big bare stakes are not occupancy",
			text: "Delta 100/200 5/8",
			ok:   true,
			want: rowFields{name: "Delta", stakes: "100/200", players: 5, seats: 8, hasOccupancy: true},
		},
		{
			name: "occupancy only",
			text: "Echo 3/9",
			ok:   true,
			want: rowFields{name: "Echo", players: 3, seats: 9, hasOccupancy: true},
		},
		{
			name: "game keyword only",
			text: "omaha tables",
			ok:   true,
			want: rowFields{name: "omaha tables", game: "omaha"},
		},
		{
			name: "no signal",
			text: "Refresh View Options",
			ok:   false,
		},
		{
			name: "euro stakes with comma decimals",
			text: "Foxtrot €0,50/€1,00 7/10",
			ok:   true,
			want: rowFields{name: "Foxtrot", stakes: "0.50/1.00", players: 7, seats: 10, hasOccupancy: true},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := extractRowFields(tc.text, defaultGameKeywords(), defaultSeatCeiling)
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				require.Equal(t, tc.want.name, got.name)
				require.Equal(t, tc.want.game, got.game)
				require.Equal(t, tc.want.stakes, got.stakes)
				require.Equal(t, tc.want.players, got.players)
				require.Equal(t, tc.want.seats, got.seats)
				require.Equal(t, tc.want.hasOccupancy, got.hasOccupancy)
			}
		})
	}
}

func TestNormalizeEntryClampsOccupancy(t *testing.T) {
	t.Parallel()

	e := TableEntry{Players: 12, Seats: 9}
	normalizeEntry(&e, 9)
	require.Equal(t, 9, e.Players)

	e = TableEntry{Players: 4}
	normalizeEntry(&e, 6)
	require.Equal(t, 6, e.Seats, "unknown capacity filled from configuration")

	e = TableEntry{Players: -2, Seats: 5}
	normalizeEntry(&e, 9)
	require.Equal(t, 0, e.Players)
}
