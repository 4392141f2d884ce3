package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) BeginSyncRun(ctx context.Context, id, trigger string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, trigger_source, status, started_at)
		VALUES ($1, $2, $3, $4)
	`, id, trigger, SyncRunRunning, startedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert sync run: %w", err)
	}
	return nil
}

func (s *PostgresStore) FinishSyncRun(ctx context.Context, id string, result SyncRunResult) error {
	var httpStatus sql.NullInt64
	if result.HTTPStatus > 0 {
		httpStatus = sql.NullInt64{Int64: int64(result.HTTPStatus), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs
		SET status = $2,
			finished_at = $3,
			http_status = $4,
			byte_count = $5,
			line_count = $6,
			row_count = $7,
			error_message = $8
		WHERE id = $1
	`, id, result.Status, result.FinishedAt.UTC(), httpStatus, result.Bytes, result.Lines, result.Rows, result.Error)
	if err != nil {
		return fmt.Errorf("update sync run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update sync run: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("update sync run %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

func (s *PostgresStore) GetSyncRun(ctx context.Context, id string) (SyncRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, trigger_source, status, started_at, finished_at, http_status,
			byte_count, line_count, row_count, error_message
		FROM sync_runs
		WHERE id = $1
	`, id)
	run, err := scanSyncRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncRun{}, err
	}
	if err != nil {
		return SyncRun{}, fmt.Errorf("get sync run: %w", err)
	}
	return run, nil
}

func (s *PostgresStore) ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_source, status, started_at, finished_at, http_status,
			byte_count, line_count, row_count, error_message
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	defer rows.Close()

	runs := make([]SyncRun, 0)
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sync run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncRun(row rowScanner) (SyncRun, error) {
	var (
		run        SyncRun
		finishedAt sql.NullTime
		httpStatus sql.NullInt64
	)
	if err := row.Scan(
		&run.ID,
		&run.Trigger,
		&run.Status,
		&run.StartedAt,
		&finishedAt,
		&httpStatus,
		&run.Bytes,
		&run.Lines,
		&run.Rows,
		&run.Error,
	); err != nil {
		return SyncRun{}, err
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	if httpStatus.Valid {
		run.HTTPStatus = int(httpStatus.Int64)
	}
	return run, nil
}
