// Package sqlite provides a SQLite source reader backed by the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/leapstack-labs/phonograph/pkg/core"
	"github.com/leapstack-labs/phonograph/pkg/source"

	_ "modernc.org/sqlite" // sqlite driver
)

// Params holds SQLite-specific source_config keys.
type Params struct {
	source.SQLParams `mapstructure:",squash"`

	// Path to the database file. A "sqlite://" dsn is accepted in its place.
	Path string `mapstructure:"path"`
	DSN  string `mapstructure:"dsn"`
}

func (p Params) file() string {
	if p.Path != "" {
		return p.Path
	}
	dsn := p.DSN
	for _, prefix := range []string{"sqlite3://", "sqlite://", "file://"} {
		dsn = strings.TrimPrefix(dsn, prefix)
	}
	return dsn
}

// Reader implements core.SourceReader for SQLite.
type Reader struct {
	source.BaseSQLReader
	path string
}

// New creates a SQLite reader. If logger is nil, a discard logger is used.
func New(params Params, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if params.file() == "" {
		return nil, fmt.Errorf("source_config.path is required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Reader{
		BaseSQLReader: source.BaseSQLReader{
			Params: params.SQLParams,
			Logger: logger,
		},
		path: params.file(),
	}, nil
}

// Connect opens the database read-only. The file must exist.
func (r *Reader) Connect(ctx context.Context) error {
	if _, err := os.Stat(r.path); err != nil {
		return fmt.Errorf("sqlite database not found: %s", r.path)
	}

	db, err := sql.Open("sqlite", "file:"+r.path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite: %w", err)
	}

	r.DB = db
	return nil
}

// Schema reads column types with PRAGMA table_info, since SQLite has no
// information_schema. Query sources fall back to the driver's column types.
func (r *Reader) Schema(ctx context.Context) (core.Schema, error) {
	if r.DB == nil {
		return nil, core.ErrNotConnected
	}
	if r.Params.Query != "" {
		return r.BaseSQLReader.Schema(ctx)
	}

	schema, table := source.ParseQualifiedName(r.Params.Table, "main")
	//nolint:gosec // identifiers validated by SQLParams.Validate
	rows, err := r.DB.QueryContext(ctx, fmt.Sprintf("SELECT name, type FROM pragma_table_info('%s', '%s')", table, schema))
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(core.Schema)
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		out[name] = strings.ToLower(typ)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("table %s not found", r.Params.Table)
	}
	return out, nil
}

var _ core.SourceReader = (*Reader)(nil)

// Factory builds a Reader from a mapping's source_config.
func Factory(cfg core.SourceConfig, logger *slog.Logger) (core.SourceReader, error) {
	var params Params
	if err := source.DecodeParams(cfg, &params); err != nil {
		return nil, err
	}
	return New(params, logger)
}
