// Package runlog records the history of harvest runs in SQLite.
package runlog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/animap/harvester/internal/domain"
	"github.com/animap/harvester/internal/id"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Status is the state of a run.
type Status string

// Run statuses.
const (
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusInterrupted Status = "interrupted"
	StatusFailed      Status = "failed"
)

// ErrNotFound is returned for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Run is one row of the run history.
type Run struct {
	ID      string
	Status  Status
	Summary domain.RunSummary
	Error   string
}

// Log is the run history database.
type Log struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens or creates the run log at path.
func Open(path string, logger *slog.Logger) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create run log directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	return &Log{db: db, logger: logger, now: time.Now}, nil
}

// Close closes the database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Start inserts a running row and returns its id.
func (l *Log) Start(ctx context.Context, target domain.Target, mode domain.Mode) (string, error) {
	runID, err := id.NewRun()
	if err != nil {
		return "", err
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO harvest_runs (id, target, mode, status, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		runID,
		target.String(),
		string(mode),
		string(StatusRunning),
		formatTime(l.now()),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	l.logger.Debug("run started", "run_id", runID, "target", target.String())
	return runID, nil
}

// Finish stores the final counters and status of a run. runErr, when not nil,
// is kept as the run's error text.
func (l *Log) Finish(ctx context.Context, runID string, s domain.RunSummary, status Status, runErr error) error {
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}

	finished := s.FinishedAt
	if finished.IsZero() {
		finished = l.now()
	}

	result, err := l.db.ExecContext(ctx, `
		UPDATE harvest_runs SET
			status = ?,
			finished_at = ?,
			items_processed = ?,
			new_items = ?,
			updated_items = ?,
			skipped_items = ?,
			nsfw_items = ?,
			failed_items = ?,
			discovered_ids = ?,
			error = ?
		WHERE id = ?`,
		string(status),
		formatTime(finished),
		s.Processed,
		s.Created,
		s.Refreshed,
		s.Skipped,
		s.Mature,
		s.Failed,
		s.Discovered,
		errText,
		runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const runColumns = `id, target, mode, status, started_at, finished_at,
	items_processed, new_items, updated_items, skipped_items, nsfw_items,
	failed_items, discovered_ids, error`

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		r         Run
		mode      string
		status    string
		startedAt string
		finished  sql.NullString
		errText   sql.NullString
	)

	err := scanner.Scan(
		&r.ID,
		&r.Summary.Target,
		&mode,
		&status,
		&startedAt,
		&finished,
		&r.Summary.Processed,
		&r.Summary.Created,
		&r.Summary.Refreshed,
		&r.Summary.Skipped,
		&r.Summary.Mature,
		&r.Summary.Failed,
		&r.Summary.Discovered,
		&errText,
	)
	if err != nil {
		return Run{}, err
	}

	r.Summary.Mode = domain.Mode(mode)
	r.Status = Status(status)
	r.Error = errText.String

	r.Summary.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return Run{}, err
	}
	if finished.Valid && finished.String != "" {
		r.Summary.FinishedAt, err = parseTime(finished.String)
		if err != nil {
			return Run{}, err
		}
	}
	return r, nil
}

// Get returns one run.
func (l *Log) Get(ctx context.Context, runID string) (Run, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM harvest_runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

// Recent returns up to limit runs, newest first. An empty target lists runs
// of every target.
func (l *Log) Recent(ctx context.Context, target string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + runColumns + ` FROM harvest_runs`
	args := []any{}
	if target != "" {
		query += ` WHERE target = ?`
		args = append(args, target)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
