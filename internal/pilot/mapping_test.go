package pilot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapJSONEntriesTopLevelArray(t *testing.T) {
	t.Parallel()

	body := []byte(`[
		{"id":"t1","name":"Mercury","game":"holdem","stakes":"$0.25/$0.50","players":4,"seats":6,"avg_pot":12.5,"hands_per_hour":55,"waitlist":2},
		{"table_id":"t2","title":"Venus","variant":"omaha","blinds":"1/2","occupied":3,"capacity":9}
	]`)

	entries, err := mapEntries(body, FormatJSON, MappingConfig{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	require.Equal(t, "t1", first.ID)
	require.Equal(t, "Mercury", first.Name)
	require.Equal(t, "holdem", first.Game)
	require.Equal(t, "$0.25/$0.50", first.Stakes)
	require.Equal(t, 4, first.Players)
	require.Equal(t, 6, first.Seats)
	require.InDelta(t, 12.5, first.AvgPot, 0.001)
	require.InDelta(t, 55, first.HandsPerHour, 0.001)
	require.Equal(t, 2, first.Waitlist)
	require.Equal(t, SourceStructured, first.Source)

	second := entries[1]
	require.Equal(t, "t2", second.ID, "aliased field names resolve")
	require.Equal(t, "Venus", second.Name)
	require.Equal(t, "omaha", second.Game)
	require.Equal(t, "1/2", second.Stakes)
	require.Equal(t, 3, second.Players)
	require.Equal(t, 9, second.Seats)
}

func TestMapJSONEntriesAliasedContainerAndBlindObject(t *testing.T) {
	t.Parallel()

	body := []byte(`{"tables":[
		{"id":"t3","name":"Saturn","game":"stud","stakes":{"small_blind":0.5,"big_blind":1},"players":2,"seats":8}
	]}`)

	entries, err := mapEntries(body, FormatJSON, MappingConfig{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "0.5/1", entries[0].Stakes)
}

func TestMapJSONEntriesSkipsAnonymousRows(t *testing.T) {
	t.Parallel()

	body := []byte(`{"entries":[
		{"game":"omaha"},
		{"name":"Neptune","players":11,"seats":9}
	]}`)

	entries, err := mapEntries(body, FormatJSON, MappingConfig{})
	require.NoError(t, err)
	require.Len(t, entries, 1, "a row with neither id nor name is dropped")

	got := entries[0]
	require.Equal(t, "entry-1", got.ID, "named rows fall back to a positional id")
	require.Equal(t, 9, got.Players, "occupancy is clamped to known capacity")
}

func TestMapJSONEntriesFillsDefaultSeats(t *testing.T) {
	t.Parallel()

	body := []byte(`[{"id":"t4","name":"Pluto","players":3}]`)

	entries, err := mapEntries(body, FormatJSON, MappingConfig{DefaultSeats: 6})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 6, entries[0].Seats)
}

func TestMapJSONEntriesUnrecognizedShape(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`{"unexpected":{"a":1}}`, `"hello"`, `{}`} {
		entries, err := mapEntries([]byte(body), FormatJSON, MappingConfig{})
		require.NoError(t, err)
		require.Empty(t, entries)
	}
}

func TestMapHTMLEntriesDefaultSelector(t *testing.T) {
	t.Parallel()

	body := []byte(`<html><body><table>
		<tr> <th>Table</th> <th>Stakes</th> <th>Players</th> </tr>
		<tr> <td>Mercury Hold'em</td> <td>$0.25/$0.50</td> <td>4/6</td> </tr>
		<tr> <td>Venus Omaha</td> <td>$1/$2</td> <td>8/9</td> </tr>
	</table></body></html>`)

	entries, err := mapEntries(body, FormatHTML, MappingConfig{})
	require.NoError(t, err)
	require.Len(t, entries, 2, "the header row carries no numeric signal and is dropped")

	first := entries[0]
	require.Equal(t, "mercury-hold'em", first.ID)
	require.Equal(t, "hold'em", first.Game)
	require.Equal(t, "0.25/0.50", first.Stakes)
	require.Equal(t, 4, first.Players)
	require.Equal(t, 6, first.Seats)
	require.Equal(t, SourceStructured, first.Source)

	require.Equal(t, "omaha", entries[1].Game)
	require.Equal(t, "1/2", entries[1].Stakes)
}

func TestMapHTMLEntriesCustomSelector(t *testing.T) {
	t.Parallel()

	body := []byte(`<ul>
		<li class="table-row">Pluto holdem $5/$10 3/6</li>
		<li class="table-row">$5/$10 2/6</li>
		<li class="footer">refreshed just now</li>
	</ul>`)

	entries, err := mapEntries(body, FormatHTML, MappingConfig{RowSelector: "li.table-row"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "pluto-holdem", entries[0].ID)
	require.Equal(t, "entry-1", entries[1].ID, "nameless rows fall back to a positional id")
}
