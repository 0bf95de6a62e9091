package recording

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// timeLayout keeps fixed-width fractional seconds so text ordering matches
// time ordering.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

const runColumns = `id, design_id, started_at, ended_at, status, variable_count, sample_count`

// SQLiteStore implements Sink and RunLog on SQLite, plus the read path.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store over an open database with migrations applied.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// CreateRun inserts a run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, run Run) error {
	if run.Status == "" {
		run.Status = RunRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, design_id, started_at, status, variable_count, sample_count)
		VALUES (?, ?, ?, ?, ?, 0)`,
		run.ID,
		run.DesignID,
		run.StartedAt.UTC().Format(timeLayout),
		run.Status,
		run.VariableCount,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrRunExists
		}
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// FinishRun closes a run and stores its final sample count.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID, status string, endedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET ended_at = ?, status = ?,
		    sample_count = (SELECT COUNT(*) FROM samples WHERE run_id = ?)
		WHERE id = ?`,
		endedAt.UTC().Format(timeLayout),
		status,
		runID,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // sqlite3 always reports rows affected
		return ErrRunNotFound
	}
	return nil
}

// Append inserts a batch of samples in one transaction.
func (s *SQLiteStore) Append(ctx context.Context, samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (
			run_id, timestamp, variable, short_name, declared_type,
			value, quality, source_timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing sample insert: %w", err)
	}
	defer stmt.Close()

	for _, smp := range samples {
		var source sql.NullString
		if smp.SourceTimestamp != nil {
			source = sql.NullString{String: smp.SourceTimestamp.UTC().Format(timeLayout), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			smp.RunID,
			smp.Timestamp.UTC().Format(timeLayout),
			smp.Variable,
			smp.ShortName,
			smp.DeclaredType,
			smp.Value,
			smp.Quality,
			source,
		); err != nil {
			return fmt.Errorf("inserting sample for %s: %w", smp.Variable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing samples: %w", err)
	}
	return nil
}

// GetRun returns one run.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, fmt.Errorf("querying run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first. A limit of 0 returns all.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Samples returns a run's samples in time order, optionally restricted to
// some variables. A limit of 0 returns all.
func (s *SQLiteStore) Samples(ctx context.Context, runID string, variables []string, limit int) ([]Sample, error) {
	query := `
		SELECT run_id, timestamp, variable, short_name, declared_type,
		       value, quality, source_timestamp
		FROM samples WHERE run_id = ?`
	args := []any{runID}

	if len(variables) > 0 {
		query += ` AND variable IN (?` + strings.Repeat(`, ?`, len(variables)-1) + `)`
		for _, v := range variables {
			args = append(args, v)
		}
	}
	query += ` ORDER BY timestamp, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var (
			smp    Sample
			ts     string
			source sql.NullString
		)
		if err := rows.Scan(
			&smp.RunID, &ts, &smp.Variable, &smp.ShortName, &smp.DeclaredType,
			&smp.Value, &smp.Quality, &source,
		); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		smp.Timestamp, _ = time.Parse(timeLayout, ts) //nolint:errcheck // Format is controlled
		if source.Valid {
			if st, err := time.Parse(timeLayout, source.String); err == nil {
				smp.SourceTimestamp = &st
			}
		}
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

// DeleteRun removes a run and, by cascade, its samples.
func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
	if err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 { //nolint:errcheck // sqlite3 always reports rows affected
		return ErrRunNotFound
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run     Run
		started string
		ended   sql.NullString
	)
	if err := row.Scan(
		&run.ID, &run.DesignID, &started, &ended,
		&run.Status, &run.VariableCount, &run.SampleCount,
	); err != nil {
		return Run{}, err
	}
	run.StartedAt, _ = time.Parse(timeLayout, started) //nolint:errcheck // Format is controlled
	if ended.Valid {
		if t, err := time.Parse(timeLayout, ended.String); err == nil {
			run.EndedAt = &t
		}
	}
	return run, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
