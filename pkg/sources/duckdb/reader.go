// Package duckdb provides a DuckDB source reader for Phonograph.
//
// It reads tables or queries from a DuckDB database, and data files
// (csv, parquet, json) through DuckDB's table functions.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/leapstack-labs/phonograph/pkg/core"
	"github.com/leapstack-labs/phonograph/pkg/source"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// Reader implements core.SourceReader for DuckDB.
type Reader struct {
	source.BaseSQLReader
	params Params
}

// New creates a DuckDB reader. If logger is nil, a discard logger is used.
func New(params Params, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := params.resolve(); err != nil {
		return nil, err
	}
	return &Reader{
		BaseSQLReader: source.BaseSQLReader{
			Params:        params.SQLParams,
			Logger:        logger,
			DefaultSchema: "main",
			Placeholder:   source.QuestionPlaceholder,
		},
		params: params,
	}, nil
}

// Connect opens the database, loads extensions, and applies settings.
func (r *Reader) Connect(ctx context.Context) error {
	if r.params.Path != "" {
		if _, err := os.Stat(r.params.Path); err != nil {
			return fmt.Errorf("data file not found: %s", r.params.Path)
		}
	}

	r.Logger.Debug("connecting to duckdb", slog.String("database", r.params.Database))

	db, err := sql.Open("duckdb", r.params.Database)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	for _, ext := range r.params.Extensions {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to load extension %s: %w", ext, err)
		}
	}
	for key, value := range r.params.Settings {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET %s = %s", key, source.QuoteLiteral(value))); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to apply setting %s: %w", key, err)
		}
	}

	r.DB = db
	return nil
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
