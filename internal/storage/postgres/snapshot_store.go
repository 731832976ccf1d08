// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/tablepilot/internal/pilot"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// SnapshotStoreConfig controls the Postgres connection pool used for lobby
// snapshots.
type SnapshotStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// SnapshotStore writes lobby snapshots into Postgres.
type SnapshotStore struct {
	pool  dbPool
	table string
}

// NewSnapshotStore creates a Postgres-backed SnapshotStore using the provided config.
func NewSnapshotStore(ctx context.Context, cfg SnapshotStoreConfig) (*SnapshotStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "lobby_snapshots"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &SnapshotStore{
		pool:  pool,
		table: table,
	}, nil
}

// NewSnapshotStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewSnapshotStoreWithPool(pool dbPool, table string) (*SnapshotStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "lobby_snapshots"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SnapshotStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *SnapshotStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SaveSnapshot inserts a snapshot row into Postgres.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snap pilot.Snapshot) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("snapshot store is not configured")
	}
	if snap.ID == "" {
		return fmt.Errorf("snapshot id is required")
	}
	entriesJSON, err := json.Marshal(snap.Entries)
	if err != nil {
		return fmt.Errorf("marshal entries: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	taken_at,
	strategy,
	hash,
	elapsed_ms,
	entry_count,
	entries
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)`, s.table)

	args := []any{
		snap.ID,
		snap.TakenAt,
		string(snap.Strategy),
		snap.Hash,
		snap.Elapsed.Milliseconds(),
		len(snap.Entries),
		entriesJSON,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recently taken snapshot.
func (s *SnapshotStore) LatestSnapshot(ctx context.Context) (pilot.Snapshot, error) {
	if s == nil || s.pool == nil {
		return pilot.Snapshot{}, fmt.Errorf("snapshot store is not configured")
	}
	query := fmt.Sprintf(`
SELECT id, taken_at, strategy, hash, elapsed_ms, entries
FROM %s
ORDER BY taken_at DESC
LIMIT 1`, s.table)

	var (
		snap      pilot.Snapshot
		strategy  string
		elapsedMs int64
		entries   []byte
	)
	err := s.pool.QueryRow(ctx, query).Scan(
		&snap.ID,
		&snap.TakenAt,
		&strategy,
		&snap.Hash,
		&elapsedMs,
		&entries,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return pilot.Snapshot{}, pilot.ErrNoSnapshot
	}
	if err != nil {
		return pilot.Snapshot{}, fmt.Errorf("select latest snapshot: %w", err)
	}
	snap.Strategy = pilot.FetchStrategy(strategy)
	snap.Elapsed = time.Duration(elapsedMs) * time.Millisecond
	if len(entries) > 0 {
		if err := json.Unmarshal(entries, &snap.Entries); err != nil {
			return pilot.Snapshot{}, fmt.Errorf("unmarshal entries: %w", err)
		}
	}
	return snap, nil
}
