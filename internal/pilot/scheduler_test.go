package pilot

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tablepilot/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

func schedulerEntries(prefix string, n int) []TableEntry {
	entries := make([]TableEntry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, TableEntry{ID: prefix, Name: prefix, Game: "holdem", Players: i + 1, Seats: 6})
	}
	return entries
}

func TestSchedulerStructuredFirstFallsBackToOptical(t *testing.T) {
	t.Parallel()

	structured := &fakeEntrySource{kind: StrategyStructured, available: true, err: errors.New("backend down")}
	optical := &fakeEntrySource{kind: StrategyOptical, available: true, entries: schedulerEntries("opt", 2)}
	s := NewScheduler(nil, []EntrySource{structured, optical}, SchedulerConfig{}, newFakeClock(), nil)

	result := s.Fetch(context.Background(), nil)
	require.Equal(t, StrategyOptical, result.Strategy)
	require.Len(t, result.Entries, 2)
	require.False(t, result.FromCache)
	require.Equal(t, 1, structured.callCount())
	require.Equal(t, 1, optical.callCount())
	require.Len(t, result.Errors, 1, "the structured failure is carried in the result")
	require.Contains(t, result.Errors[0], "structured strategy")
	require.Contains(t, result.Errors[0], "backend down")
}

func TestSchedulerServesCacheWithinTTL(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	src := &fakeEntrySource{kind: StrategyStructured, available: true, entries: schedulerEntries("s", 3)}
	s := NewScheduler(nil, []EntrySource{src}, SchedulerConfig{CacheTTL: 10 * time.Second}, clk, nil)

	first := s.Fetch(context.Background(), nil)
	require.False(t, first.FromCache)
	require.Equal(t, 1, src.callCount())

	second := s.Fetch(context.Background(), nil)
	require.True(t, second.FromCache)
	require.Equal(t, StrategyStructured, second.Strategy)
	require.Len(t, second.Entries, 3)
	require.Equal(t, 1, src.callCount(), "cache hit does not touch the source")

	clk.Advance(11 * time.Second)
	third := s.Fetch(context.Background(), nil)
	require.False(t, third.FromCache)
	require.Equal(t, 2, src.callCount())
}

func TestSchedulerCachedEntriesAreCopies(t *testing.T) {
	t.Parallel()

	src := &fakeEntrySource{kind: StrategyStructured, available: true, entries: schedulerEntries("s", 1)}
	s := NewScheduler(nil, []EntrySource{src}, SchedulerConfig{CacheTTL: time.Minute}, newFakeClock(), nil)

	first := s.Fetch(context.Background(), nil)
	first.Entries[0].Name = "mutated"

	second := s.Fetch(context.Background(), nil)
	require.True(t, second.FromCache)
	require.Equal(t, "s", second.Entries[0].Name)
}

func TestSchedulerInvalidateForcesRefetch(t *testing.T) {
	t.Parallel()

	src := &fakeEntrySource{kind: StrategyStructured, available: true, entries: schedulerEntries("s", 1)}
	s := NewScheduler(nil, []EntrySource{src}, SchedulerConfig{CacheTTL: time.Minute}, newFakeClock(), nil)

	s.Fetch(context.Background(), nil)
	s.Invalidate()
	result := s.Fetch(context.Background(), nil)
	require.False(t, result.FromCache)
	require.Equal(t, 2, src.callCount())
}

func TestSchedulerRateGateDenied(t *testing.T) {
	t.Parallel()

	gate := &fakeGate{allow: false}
	src := &fakeEntrySource{kind: StrategyStructured, available: true, entries: schedulerEntries("s", 1)}
	s := NewScheduler(gate, []EntrySource{src}, SchedulerConfig{}, newFakeClock(), nil)

	result := s.Fetch(context.Background(), nil)
	require.Equal(t, StrategyNone, result.Strategy)
	require.Empty(t, result.Entries)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "rate limit")
	require.Equal(t, 0, src.callCount(), "no source runs without a token")
}

func TestSchedulerExhaustsAllStrategies(t *testing.T) {
	t.Parallel()

	structured := &fakeEntrySource{kind: StrategyStructured, available: true, err: errors.New("backend down")}
	optical := &fakeEntrySource{kind: StrategyOptical, available: false}
	s := NewScheduler(&fakeGate{allow: true}, []EntrySource{structured, optical}, SchedulerConfig{}, newFakeClock(), nil)

	result := s.Fetch(context.Background(), nil)
	require.Equal(t, StrategyNone, result.Strategy)
	require.Empty(t, result.Entries)
	require.Len(t, result.Errors, 2)
	require.Contains(t, result.Errors[0], "structured strategy")
	require.Contains(t, result.Errors[1], "optical strategy unavailable")
}

func TestSchedulerEmptyResultIsNotSuccess(t *testing.T) {
	t.Parallel()

	structured := &fakeEntrySource{kind: StrategyStructured, available: true}
	optical := &fakeEntrySource{kind: StrategyOptical, available: true, entries: schedulerEntries("opt", 1)}
	s := NewScheduler(nil, []EntrySource{structured, optical}, SchedulerConfig{}, newFakeClock(), nil)

	result := s.Fetch(context.Background(), nil)
	require.Equal(t, StrategyOptical, result.Strategy, "a source with zero entries falls through")
	require.Contains(t, result.Errors[0], "returned no entries")
}

func TestSchedulerOrderVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		order          StrategyOrder
		wantStrategy   FetchStrategy
		wantStructured int
		wantOptical    int
	}{
		{name: "optical first", order: OrderOpticalFirst, wantStrategy: StrategyOptical, wantStructured: 0, wantOptical: 1},
		{name: "structured only", order: OrderStructuredOnly, wantStrategy: StrategyStructured, wantStructured: 1, wantOptical: 0},
		{name: "optical only", order: OrderOpticalOnly, wantStrategy: StrategyOptical, wantStructured: 0, wantOptical: 1},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			structured := &fakeEntrySource{kind: StrategyStructured, available: true, entries: schedulerEntries("s", 1)}
			optical := &fakeEntrySource{kind: StrategyOptical, available: true, entries: schedulerEntries("opt", 1)}
			s := NewScheduler(nil, []EntrySource{structured, optical}, SchedulerConfig{Order: tc.order}, newFakeClock(), nil)

			result := s.Fetch(context.Background(), nil)
			require.Equal(t, tc.wantStrategy, result.Strategy)
			require.Equal(t, tc.wantStructured, structured.callCount())
			require.Equal(t, tc.wantOptical, optical.callCount())
		})
	}
}
