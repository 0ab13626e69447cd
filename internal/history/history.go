// Package history records every briefing run in SQLite or PostgreSQL.
package history

import (
	"briefcast/internal/core"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"           // Postgres driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const runsTable = "briefing_runs"

var runColumns = []string{
	"id", "created_at", "generated", "provider",
	"audio_path", "chapters_path", "transcript_path",
	"items", "clusters", "summaries", "segments", "voiced", "chapters",
	"duration_seconds", "elapsed_ms", "error",
}

// Run is one row of run history
type Run struct {
	ID             string        `json:"id"`
	CreatedAt      time.Time     `json:"created_at"`
	Generated      bool          `json:"generated"`
	AudioPath      string        `json:"audio_path"`
	ChaptersPath   string        `json:"chapters_path"`
	TranscriptPath string        `json:"transcript_path"`
	Stats          core.RunStats `json:"stats"`
	Error          string        `json:"error,omitempty"`
}

// NewRun combines a pipeline result and its statistics. result may be nil
// for a failed run.
func NewRun(id string, result *core.AudioResult, stats core.RunStats, runErr error) Run {
	run := Run{ID: id, CreatedAt: time.Now().UTC(), Stats: stats}
	if result != nil {
		run.Generated = result.Generated
		run.AudioPath = result.AudioPath
		run.ChaptersPath = result.ChaptersPath
		run.TranscriptPath = result.TranscriptPath
		if !result.GeneratedAt.IsZero() {
			run.CreatedAt = result.GeneratedAt.UTC()
		}
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	return run
}

// Store persists runs
type Store struct {
	db      *sql.DB
	driver  string
	builder sq.StatementBuilderType
}

// Open connects to the history database and creates the runs table. The
// driver is "sqlite3" or "postgres"; for sqlite3 the parent directory of the
// DSN path is created.
func Open(driver, dsn string) (*Store, error) {
	var builder sq.StatementBuilderType
	switch driver {
	case "sqlite3":
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, err
		}
		builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)
	case "postgres":
		builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	default:
		return nil, fmt.Errorf("unsupported history driver: %s", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	s := &Store{db: db, driver: driver, builder: builder}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return s, nil
}

func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	return nil
}

func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
	CREATE TABLE IF NOT EXISTS ` + runsTable + ` (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		generated BOOLEAN NOT NULL,
		provider TEXT,
		audio_path TEXT,
		chapters_path TEXT,
		transcript_path TEXT,
		items INTEGER,
		clusters INTEGER,
		summaries INTEGER,
		segments INTEGER,
		voiced INTEGER,
		chapters INTEGER,
		duration_seconds DOUBLE PRECISION,
		elapsed_ms BIGINT,
		error TEXT
	);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	index := `CREATE INDEX IF NOT EXISTS idx_` + runsTable + `_created_at ON ` + runsTable + ` (created_at DESC);`
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the database driver name
func (s *Store) Driver() string {
	return s.driver
}

// Record inserts a run
func (s *Store) Record(ctx context.Context, run Run) error {
	query, args, err := s.builder.Insert(runsTable).
		Columns(runColumns...).
		Values(
			run.ID, run.CreatedAt.UTC(), run.Generated, run.Stats.Provider,
			run.AudioPath, run.ChaptersPath, run.TranscriptPath,
			run.Stats.Items, run.Stats.Clusters, run.Stats.Summaries,
			run.Stats.Segments, run.Stats.Voiced, run.Stats.Chapters,
			run.Stats.DurationSeconds, run.Stats.ElapsedMs, run.Error,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query, args, err := s.builder.Select(runColumns...).
		From(runsTable).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return runs, nil
}

// Get returns a run by id, or nil when it does not exist
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	query, args, err := s.builder.Select(runColumns...).
		From(runsTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	run, err := scanRun(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// LastGenerated returns the newest run that produced audio, or nil
func (s *Store) LastGenerated(ctx context.Context) (*Run, error) {
	query, args, err := s.builder.Select(runColumns...).
		From(runsTable).
		Where(sq.Eq{"generated": true}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	run, err := scanRun(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var provider, audio, chapters, transcript, runErr sql.NullString
	err := row.Scan(
		&run.ID, &run.CreatedAt, &run.Generated, &provider,
		&audio, &chapters, &transcript,
		&run.Stats.Items, &run.Stats.Clusters, &run.Stats.Summaries,
		&run.Stats.Segments, &run.Stats.Voiced, &run.Stats.Chapters,
		&run.Stats.DurationSeconds, &run.Stats.ElapsedMs, &runErr,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.Stats.Provider = provider.String
	run.AudioPath = audio.String
	run.ChaptersPath = chapters.String
	run.TranscriptPath = transcript.String
	run.Error = runErr.String
	return &run, nil
}
