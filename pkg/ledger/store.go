// Package ledger is the SQLite audit trail of runs and per-row outcomes.
//
// The ledger is the source of truth for what happened to every row and for
// the daily send count. Runs are created Running and ended exactly once;
// email records are append-only.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/entrhq/inreach/pkg/types"
)

var (
	// ErrRunNotFound is returned for an unknown run id.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunEnded is returned when ending a run that already has a terminal status.
	ErrRunEnded = errors.New("run already ended")
)

// Store provides SQLite-backed run and email persistence
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithNow replaces the clock used for timestamps and day boundaries.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open creates a Store at path. ":memory:" gives a private in-memory database.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// one connection: in-memory databases are per connection, and SQLite
	// serializes writers anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun creates a Running run for fileName and returns its id.
func (s *Store) StartRun(ctx context.Context, fileName string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (file_name, status, started_at) VALUES (?, ?, ?)`,
		fileName, string(types.RunRunning), toMillis(s.now()))
	if err != nil {
		return 0, fmt.Errorf("start run: %w", err)
	}
	return res.LastInsertId()
}

// EndRun writes the terminal status of a run. A second call fails with ErrRunEnded.
func (s *Store) EndRun(ctx context.Context, runID int64, status types.RunStatus, errMsg string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("end run: %q is not a terminal status", status)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, ended_at = ?, error_message = ? WHERE run_id = ? AND status = ?`,
		string(status), toMillis(s.now()), nullString(errMsg), runID, string(types.RunRunning))
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetRun(ctx, runID); err != nil {
			return err
		}
		return fmt.Errorf("end run %d: %w", runID, ErrRunEnded)
	}
	return nil
}

// RecordEmail appends a record and advances the run's last processed row.
// rec.ID is set on success; a zero CreatedAt is filled with the current time.
func (s *Store) RecordEmail(ctx context.Context, rec *types.EmailRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record email: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO emails (run_id, row_index, profile_url, subject, email_text, email_status, reason, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.RunID,
		rec.RowIndex,
		rec.ProfileURL,
		rec.Subject,
		rec.Body,
		string(rec.Status),
		string(rec.Reason),
		nullString(rec.Error),
		toMillis(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("record email: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE runs SET last_processed_row = MAX(COALESCE(last_processed_row, -1), ?) WHERE run_id = ?`,
		rec.RowIndex, rec.RunID); err != nil {
		return fmt.Errorf("advance last processed row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record email: %w", err)
	}
	rec.ID = id
	return nil
}

// CountSentToday counts Sent records created during the current local day.
func (s *Store) CountSentToday(ctx context.Context) (int, error) {
	return s.CountSentOn(ctx, s.now())
}

// CountSentOn counts Sent records created during the local day containing day.
func (s *Store) CountSentOn(ctx context.Context, day time.Time) (int, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM emails WHERE email_status = ? AND created_at >= ? AND created_at < ?`,
		string(types.EmailSent), toMillis(start), toMillis(end)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count sent: %w", err)
	}
	return count, nil
}

// LastProcessedRow returns the last processed row index of the most recent
// run of fileName that processed anything, or -1.
func (s *Store) LastProcessedRow(ctx context.Context, fileName string) (int, error) {
	var row int
	err := s.db.QueryRowContext(ctx, `
		SELECT last_processed_row FROM runs
		WHERE file_name = ? AND last_processed_row IS NOT NULL
		ORDER BY run_id DESC LIMIT 1
	`, fileName).Scan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("last processed row: %w", err)
	}
	return row, nil
}

const runColumns = `run_id, file_name, status, started_at, ended_at, error_message, last_processed_row`

// GetRun retrieves a run by id
func (s *Store) GetRun(ctx context.Context, runID int64) (*types.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", runID, ErrRunNotFound)
	}
	return run, err
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*types.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY run_id DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*types.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListEmails returns the records of a run in row order.
func (s *Store) ListEmails(ctx context.Context, runID int64) ([]*types.EmailRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, row_index, profile_url, subject, email_text, email_status, reason, error_message, created_at
		FROM emails WHERE run_id = ? ORDER BY row_index, id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*types.EmailRecord
	for rows.Next() {
		var (
			rec       types.EmailRecord
			status    string
			reason    string
			errMsg    sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.RowIndex, &rec.ProfileURL, &rec.Subject, &rec.Body,
			&status, &reason, &errMsg, &createdAt); err != nil {
			return nil, err
		}
		rec.Status = types.EmailStatus(status)
		rec.Reason = types.Reason(reason)
		rec.Error = errMsg.String
		rec.CreatedAt = fromMillis(createdAt)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*types.Run, error) {
	var (
		run       types.Run
		status    string
		startedAt int64
		endedAt   sql.NullInt64
		errMsg    sql.NullString
		lastRow   sql.NullInt64
	)
	if err := row.Scan(&run.ID, &run.FileName, &status, &startedAt, &endedAt, &errMsg, &lastRow); err != nil {
		return nil, err
	}

	run.Status = types.RunStatus(status)
	run.StartedAt = fromMillis(startedAt)
	if endedAt.Valid {
		t := fromMillis(endedAt.Int64)
		run.EndedAt = &t
	}
	run.Error = errMsg.String
	run.LastProcessedRow = -1
	if lastRow.Valid {
		run.LastProcessedRow = int(lastRow.Int64)
	}
	return &run, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
