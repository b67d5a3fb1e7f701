package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/portalcapture/internal/model"
)

// FileName is the ledger database file inside the data directory.
const FileName = "portalcapture.db"

// DefaultListLimit caps ListRuns when no limit is given.
const DefaultListLimit = 50

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// RunDB stores capture runs.
type RunDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures RunDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the ledger in dbDir.
func Open(dbDir string, opts Options) (*RunDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = dbPath + "?mode=rwc"
	} else if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("database not found at %s", dbPath)
		}
		return nil, fmt.Errorf("failed to check database path: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RunDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if _, err := db.ExecContext(context.Background(), "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return rdb, nil
}

// Path returns the database file path.
func (r *RunDB) Path() string {
	return r.dbPath
}

// Close closes the database connection.
func (r *RunDB) Close() error {
	return r.db.Close()
}

func (r *RunDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		identity TEXT NOT NULL,
		kind TEXT NOT NULL,
		target_url TEXT NOT NULL,
		state TEXT NOT NULL,
		error_kind TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		artifact_path TEXT NOT NULL DEFAULT '',
		digest TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_identity ON runs(identity);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := r.db.ExecContext(context.Background(), schema)
	return err
}

// Run is one ledger entry.
type Run struct {
	ID           string
	Identity     string
	Kind         model.ArtifactKind
	TargetURL    string
	State        model.JobState
	ErrorKind    model.ErrorKind
	ErrorMessage string
	ArtifactPath string
	Digest       string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration returns the run time, or zero for an unfinished run.
func (run *Run) Duration() time.Duration {
	if run.FinishedAt.IsZero() {
		return 0
	}
	return run.FinishedAt.Sub(run.StartedAt)
}

// Succeeded reports whether the run produced its artifact.
func (run *Run) Succeeded() bool {
	return run.State.IsSuccessful()
}

// StartRun records a new run.
func (r *RunDB) StartRun(ctx context.Context, run *Run) error {
	if run.State == "" {
		run.State = model.StateInit
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	query := `
	INSERT INTO runs (id, identity, kind, target_url, state, started_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Identity,
		string(run.Kind),
		run.TargetURL,
		string(run.State),
		formatTimestamp(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun stores the final state of a run.
func (r *RunDB) FinishRun(ctx context.Context, run *Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}

	query := `
	UPDATE runs SET
		state = ?,
		error_kind = ?,
		error_message = ?,
		artifact_path = ?,
		digest = ?,
		finished_at = ?
	WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		string(run.State),
		string(run.ErrorKind),
		run.ErrorMessage,
		run.ArtifactPath,
		run.Digest,
		formatTimestamp(run.FinishedAt),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}

const runColumns = `id, identity, kind, target_url, state, error_kind, error_message, artifact_path, digest, started_at, finished_at`

// GetRun returns the run with the given ID.
func (r *RunDB) GetRun(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// Filter narrows ListRuns.
type Filter struct {
	// Identity restricts to one identity when set.
	Identity string

	// Kind restricts to one artifact kind when set.
	Kind model.ArtifactKind

	// Limit caps the number of runs; 0 means DefaultListLimit.
	Limit int
}

// ListRuns returns runs matching f, newest first.
func (r *RunDB) ListRuns(ctx context.Context, f Filter) ([]Run, error) {
	var (
		where []string
		args  []any
	)
	if f.Identity != "" {
		where = append(where, "identity = ?")
		args = append(args, f.Identity)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// CountByState returns how many runs ended in each state, optionally for
// one identity.
func (r *RunDB) CountByState(ctx context.Context, identity string) (map[model.JobState]int, error) {
	query := `SELECT state, COUNT(*) FROM runs`
	args := make([]any, 0, 1)
	if identity != "" {
		query += ` WHERE identity = ?`
		args = append(args, identity)
	}
	query += ` GROUP BY state`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.JobState]int)
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[model.JobState(state)] = n
	}
	return counts, rows.Err()
}

// DeleteRunsBefore removes runs started before t and returns how many
// were deleted.
func (r *RunDB) DeleteRunsBefore(ctx context.Context, t time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, formatTimestamp(t))
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run                   Run
		kind, state, errKind  string
		startedAt, finishedAt string
	)
	err := row.Scan(
		&run.ID,
		&run.Identity,
		&kind,
		&run.TargetURL,
		&state,
		&errKind,
		&run.ErrorMessage,
		&run.ArtifactPath,
		&run.Digest,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Kind = model.ArtifactKind(kind)
	run.State = model.JobState(state)
	run.ErrorKind = model.ErrorKind(errKind)
	run.StartedAt = parseTimestamp(startedAt)
	run.FinishedAt = parseTimestamp(finishedAt)
	return &run, nil
}

// timestampLayout sorts lexically in time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// timestampFormats lists the layouts accepted when reading timestamps.
var timestampFormats = []string{
	timestampLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
