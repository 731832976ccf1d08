package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tablepilot/internal/pilot"
)

func TestSaveSnapshotInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSnapshotStoreWithPool(mock, "lobby_snapshots")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	snap := pilot.Snapshot{
		ID:       "uuid-v7",
		TakenAt:  now,
		Strategy: pilot.StrategyStructured,
		Hash:     "abc123",
		Elapsed:  1500 * time.Millisecond,
		Entries: []pilot.TableEntry{
			{ID: "t1", Name: "Lucky Dragon", Game: "holdem", Players: 5, Seats: 9, Source: pilot.SourceStructured},
		},
	}
	entriesJSON := `[{"id":"t1","name":"Lucky Dragon","game":"holdem","stakes":"","players":5,"seats":9,"avg_pot":0,"hands_per_hour":0,"waitlist":0,"source":"structured"}]`

	mock.ExpectExec("INSERT INTO lobby_snapshots").
		WithArgs(
			snap.ID,
			snap.TakenAt,
			"structured",
			snap.Hash,
			int64(1500),
			1,
			[]byte(entriesJSON),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.SaveSnapshot(context.Background(), snap)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSnapshotRequiresID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSnapshotStoreWithPool(mock, "lobby_snapshots")
	require.NoError(t, err)

	err = store.SaveSnapshot(context.Background(), pilot.Snapshot{})
	require.Error(t, err)
}

func TestLatestSnapshotReadsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSnapshotStoreWithPool(mock, "lobby_snapshots")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{"id", "taken_at", "strategy", "hash", "elapsed_ms", "entries"}).
		AddRow("uuid-v7", now, "optical", "abc123", int64(900), []byte(`[{"id":"t1","name":"Lucky Dragon"}]`))

	mock.ExpectQuery("SELECT id, taken_at, strategy, hash, elapsed_ms, entries").
		WillReturnRows(rows)

	snap, err := store.LatestSnapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, "uuid-v7", snap.ID)
	require.Equal(t, pilot.StrategyOptical, snap.Strategy)
	require.Equal(t, 900*time.Millisecond, snap.Elapsed)
	require.Len(t, snap.Entries, 1)
	require.Equal(t, "Lucky Dragon", snap.Entries[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestSnapshotNoRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewSnapshotStoreWithPool(mock, "lobby_snapshots")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, taken_at, strategy, hash, elapsed_ms, entries").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.LatestSnapshot(context.Background())
	require.ErrorIs(t, err, pilot.ErrNoSnapshot)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSnapshotStoreWithPoolValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewSnapshotStoreWithPool(nil, "x"); err == nil {
		t.Fatal("expected error for nil pool")
	}

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	if _, err := NewSnapshotStoreWithPool(mock, "lobby snapshots;drop"); err == nil {
		t.Fatal("expected error for invalid table name")
	}
}
