// Package journal keeps an audit log of executed completions in SQLite.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Outcome is how a completion ended.
type Outcome string

const (
	OutcomeExecuted Outcome = "executed"
	OutcomeDropped  Outcome = "dropped"
	OutcomeFailed   Outcome = "failed"
)

// Entry is one processed completion.
type Entry struct {
	ID              string
	CreatedAt       time.Time
	File            string
	Line            int
	Content         string
	Commands        string
	Outcome         Outcome
	DeletedOriginal bool
	Error           string
}

//go:embed migrations/*.sql
var migrations embed.FS

var gooseMu sync.Mutex

// pragmas tune the journal connection. WAL is best effort: some file systems refuse it.
var pragmas = []struct {
	stmt     string
	optional bool
}{
	{stmt: "PRAGMA journal_mode=WAL", optional: true},
	{stmt: "PRAGMA busy_timeout=5000"},
	{stmt: "PRAGMA synchronous=NORMAL"},
}

// Store persists journal entries.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the journal database at path, creating it and its directory if needed,
// and brings its schema up to date.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// one writer: the daemon's executor
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	for _, p := range pragmas {
		if _, err := s.db.Exec(p.stmt); err != nil {
			if !p.optional {
				return fmt.Errorf("%s: %w", p.stmt, err)
			}
			log.Warn().Err(err).Str("pragma", p.stmt).Msg("journal pragma not applied")
		}
	}
	// goose keeps its settings in package state
	gooseMu.Lock()
	defer gooseMu.Unlock()
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends an entry. A zero CreatedAt is set to the current time.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO completions(id, created_at, file, line, content, commands, outcome, deleted_original, error)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CreatedAt.UTC().Format(time.RFC3339Nano), e.File, e.Line, e.Content, e.Commands,
		string(e.Outcome), e.DeletedOriginal, e.Error); err != nil {
		return fmt.Errorf("insert completion %s: %w", e.ID, err)
	}
	return nil
}

// List returns the newest entries first. A limit of zero or less returns all of them.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, created_at, file, line, content, commands, outcome, deleted_original, error
		FROM completions ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			createdAt string
			outcome   string
		)
		if err := rows.Scan(&e.ID, &createdAt, &e.File, &e.Line, &e.Content, &e.Commands, &outcome, &e.DeletedOriginal, &e.Error); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		e.Outcome = Outcome(outcome)
		if parsed, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = parsed
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completions: %w", err)
	}
	return out, nil
}
