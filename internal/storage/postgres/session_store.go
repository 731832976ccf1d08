package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/tablepilot/internal/pilot"
)

// SessionStoreConfig controls the Postgres connection pool used for seat
// jobs.
type SessionStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// SessionStore persists seat jobs and their results in Postgres.
type SessionStore struct {
	pool  dbPool
	table string
}

// NewSessionStore creates a Postgres-backed SessionStore using the provided config.
func NewSessionStore(ctx context.Context, cfg SessionStoreConfig) (*SessionStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "seat_jobs"
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
	return &SessionStore{
		pool:  pool,
		table: table,
	}, nil
}

// NewSessionStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewSessionStoreWithPool(pool dbPool, table string) (*SessionStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "seat_jobs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SessionStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *SessionStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateSeatJob inserts a new seat job row.
func (s *SessionStore) CreateSeatJob(ctx context.Context, job pilot.SeatJob) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("session store is not configured")
	}
	if job.ID == "" {
		return fmt.Errorf("seat job id is required")
	}
	filterJSON, err := json.Marshal(job.Filter)
	if err != nil {
		return fmt.Errorf("marshal filter: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	status,
	submitted_at,
	error_text,
	filter,
	timeout_seconds
) VALUES (
	$1,$2,$3,$4,$5,$6
)`, s.table)

	args := []any{
		job.ID,
		string(job.Status),
		job.Submitted,
		job.ErrorText,
		filterJSON,
		job.TimeoutSeconds,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert seat job: %w", err)
	}
	return nil
}

// UpdateSeatJob updates status, error text and result for a job. The first
// transition to running stamps started_at; terminal statuses stamp
// finished_at.
func (s *SessionStore) UpdateSeatJob(
	ctx context.Context,
	jobID string,
	status pilot.JobStatus,
	errText string,
	result *pilot.SeatResult,
) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("session store is not configured")
	}
	var resultJSON []byte
	if result != nil {
		var err error
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	status = $2,
	error_text = $3,
	result = COALESCE($4, result),
	started_at = CASE WHEN $5 AND started_at IS NULL THEN $7 ELSE started_at END,
	finished_at = CASE WHEN $6 THEN $7 ELSE finished_at END
WHERE id = $1`, s.table)

	tag, err := s.pool.Exec(ctx, query,
		jobID,
		string(status),
		errText,
		resultJSON,
		status == pilot.JobStatusRunning,
		isTerminalStatus(status),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update seat job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New("seat job not found")
	}
	return nil
}

// GetSeatJob fetches a job by ID.
func (s *SessionStore) GetSeatJob(ctx context.Context, jobID string) (pilot.SeatJob, error) {
	if s == nil || s.pool == nil {
		return pilot.SeatJob{}, fmt.Errorf("session store is not configured")
	}
	query := fmt.Sprintf(`
SELECT id, status, submitted_at, started_at, finished_at, error_text, filter, timeout_seconds, result
FROM %s
WHERE id = $1`, s.table)

	var (
		job        pilot.SeatJob
		status     string
		filterJSON []byte
		resultJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, jobID).Scan(
		&job.ID,
		&status,
		&job.Submitted,
		&job.Started,
		&job.Finished,
		&job.ErrorText,
		&filterJSON,
		&job.TimeoutSeconds,
		&resultJSON,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return pilot.SeatJob{}, errors.New("seat job not found")
	}
	if err != nil {
		return pilot.SeatJob{}, fmt.Errorf("select seat job: %w", err)
	}
	job.Status = pilot.JobStatus(status)
	if len(filterJSON) > 0 {
		if err := json.Unmarshal(filterJSON, &job.Filter); err != nil {
			return pilot.SeatJob{}, fmt.Errorf("unmarshal filter: %w", err)
		}
	}
	if len(resultJSON) > 0 {
		var res pilot.SeatResult
		if err := json.Unmarshal(resultJSON, &res); err != nil {
			return pilot.SeatJob{}, fmt.Errorf("unmarshal result: %w", err)
		}
		job.Result = &res
	}
	return job, nil
}

func isTerminalStatus(status pilot.JobStatus) bool {
	switch status {
	case pilot.JobStatusSucceeded, pilot.JobStatusFailed, pilot.JobStatusCanceled:
		return true
	default:
		return false
	}
}
