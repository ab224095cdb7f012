package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Run is one recorded execution.
type Run struct {
	ID        string        `json:"id"`
	Language  string        `json:"language"`
	Outcome   string        `json:"outcome"`
	ExitCode  *int          `json:"exit_code,omitempty"`
	Duration  time.Duration `json:"duration"`
	Code      string        `json:"code"`
	Report    string        `json:"report"`
	CreatedAt time.Time     `json:"created_at"`
}

// Store persists runs in SQLite and keeps a full-text index beside it.
type Store struct {
	db    *sql.DB
	index *searchIndex
	path  string
}

// Open opens (or creates) the history database at dbPath.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history dir: %w", err)
		}
	}

	// WAL lets readers proceed while a run is being recorded.
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	idx, err := openSearchIndex(dbPath + ".bleve")
	if err != nil {
		db.Close()
		return nil, err
	}
	s.index = idx

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		language    TEXT NOT NULL,
		outcome     TEXT NOT NULL,
		exit_code   INTEGER,
		duration_ms INTEGER NOT NULL,
		code        TEXT NOT NULL,
		report      TEXT NOT NULL,
		created_at  INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_runs_language ON runs(language);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Record stores a run and indexes it for search. A run with an existing id
// replaces the previous record.
func (s *Store) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	var exit sql.NullInt64
	if run.ExitCode != nil {
		exit = sql.NullInt64{Int64: int64(*run.ExitCode), Valid: true}
	}

	query := `
	INSERT INTO runs (id, language, outcome, exit_code, duration_ms, code, report, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		language = excluded.language,
		outcome = excluded.outcome,
		exit_code = excluded.exit_code,
		duration_ms = excluded.duration_ms,
		code = excluded.code,
		report = excluded.report,
		created_at = excluded.created_at
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Language, run.Outcome, exit, run.Duration.Milliseconds(),
		run.Code, run.Report, run.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if err := s.index.add(run); err != nil {
		return fmt.Errorf("failed to index run %s: %w", run.ID, err)
	}
	return nil
}

// Get returns the run with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	query := `SELECT id, language, outcome, exit_code, duration_ms, code, report, created_at FROM runs WHERE id = ?`
	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
	SELECT id, language, outcome, exit_code, duration_ms, code, report, created_at
	FROM runs
	ORDER BY created_at DESC, id DESC
	LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Search returns up to limit runs matching query, best match first. The query
// uses bleve query-string syntax, so "language:python ZeroDivisionError"
// narrows by field. An empty query behaves like Recent.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	if query == "" {
		return s.Recent(ctx, limit)
	}

	ids, err := s.index.search(query, limit)
	if err != nil {
		return nil, err
	}

	runs := make([]Run, 0, len(ids))
	for _, id := range ids {
		run, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Indexed but never committed to the database.
			continue
		}
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

// Close closes the index and the database.
func (s *Store) Close() error {
	var errs []error
	if s.index != nil {
		errs = append(errs, s.index.close())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		exit       sql.NullInt64
		durationMS int64
		createdAt  int64
	)
	if err := row.Scan(&run.ID, &run.Language, &run.Outcome, &exit, &durationMS, &run.Code, &run.Report, &createdAt); err != nil {
		return nil, err
	}
	if exit.Valid {
		code := int(exit.Int64)
		run.ExitCode = &code
	}
	run.Duration = time.Duration(durationMS) * time.Millisecond
	run.CreatedAt = time.UnixMilli(createdAt)
	return &run, nil
}
