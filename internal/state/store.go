// Package state persists ingestion state in SQLite: the history of runs and
// the latest version of every ingested object.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // sqlite driver
)

// timeLayout is how timestamps are stored in TEXT columns.
const timeLayout = time.RFC3339Nano

// SQLiteStore records runs and stores objects. It implements
// core.RunRecorder and core.Sink.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite state store instance.
// If logger is nil, a discard logger is used.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := ":memory:?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection serializes writers from concurrent runs and keeps
	// an in-memory database alive across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.logger.Debug("opened state store", slog.String("path", path))
	s.db = db
	s.path = path
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// InitSchema brings the schema up to date.
func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	return s.Migrate(ctx)
}

// Path returns the path the store was opened with.
func (s *SQLiteStore) Path() string {
	return s.path
}

// OpenStore opens path and applies migrations.
func OpenStore(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	store := NewSQLiteStore(logger)
	if err := store.Open(path); err != nil {
		return nil, err
	}
	if err := store.InitSchema(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}
	return store, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}
