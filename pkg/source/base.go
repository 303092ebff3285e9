package source

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/leapstack-labs/phonograph/pkg/core"
)

// SQLParams are the source_config keys shared by the SQL-backed readers.
type SQLParams struct {
	// Table to read, optionally schema-qualified ("public.users").
	Table string `mapstructure:"table"`

	// Query replaces the table scan when set.
	Query string `mapstructure:"query"`
}

// Validate checks that exactly one of table or query is usable.
func (p SQLParams) Validate() error {
	switch {
	case p.Table == "" && p.Query == "":
		return fmt.Errorf("source_config needs either table or query")
	case p.Table != "" && p.Query != "":
		return fmt.Errorf("source_config.table and source_config.query are mutually exclusive")
	case p.Table != "" && !identPattern.MatchString(p.Table):
		return fmt.Errorf("invalid table name %q", p.Table)
	}
	return nil
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsName reports whether s is a bare SQL identifier (no schema qualifier).
func IsName(s string) bool {
	return namePattern.MatchString(s)
}

// QuoteLiteral renders s as a single-quoted SQL string literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Placeholder renders the n-th (1-based) bind parameter for a driver.
type Placeholder func(n int) string

// QuestionPlaceholder renders "?" placeholders (DuckDB, SQLite).
func QuestionPlaceholder(int) string { return "?" }

// DollarPlaceholder renders "$N" placeholders (PostgreSQL).
func DollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

// BaseSQLReader provides common database/sql functionality for readers.
// Embed this struct in concrete readers; they only need to implement Connect.
type BaseSQLReader struct {
	DB     *sql.DB
	Params SQLParams
	Logger *slog.Logger

	// DefaultSchema is used when Params.Table is not schema-qualified.
	DefaultSchema string

	// Placeholder formats bind parameters for metadata queries.
	Placeholder Placeholder
}

// Disconnect closes the database connection. Safe to call more than once.
func (b *BaseSQLReader) Disconnect() error {
	if b.DB == nil {
		return nil
	}
	if b.Logger != nil {
		b.Logger.Debug("closing database connection")
	}
	err := b.DB.Close()
	b.DB = nil
	return err
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLReader) IsConnected() bool {
	return b.DB != nil
}

// SelectQuery builds the statement ReadRows executes.
func (b *BaseSQLReader) SelectQuery(limit int) string {
	var q string
	if b.Params.Query != "" {
		q = strings.TrimRight(strings.TrimSpace(b.Params.Query), ";")
		if limit > 0 {
			q = "SELECT * FROM (" + q + ") AS src"
		}
	} else {
		q = "SELECT * FROM " + b.Params.Table
	}
	if limit > 0 {
		q += " LIMIT " + strconv.Itoa(limit)
	}
	return q
}

// ReadRows streams the table or query result one row at a time.
// []byte values are converted to strings.
func (b *BaseSQLReader) ReadRows(ctx context.Context, limit int) iter.Seq2[core.Row, error] {
	return func(yield func(core.Row, error) bool) {
		if b.DB == nil {
			yield(nil, core.ErrNotConnected)
			return
		}

		query := b.SelectQuery(limit)
		rows, err := b.DB.QueryContext(ctx, query)
		if err != nil {
			yield(nil, fmt.Errorf("failed to execute query: %w", err))
			return
		}
		defer func() { _ = rows.Close() }()

		cols, err := rows.Columns()
		if err != nil {
			yield(nil, fmt.Errorf("failed to read columns: %w", err))
			return
		}

		for rows.Next() {
			values := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				yield(nil, fmt.Errorf("failed to scan row: %w", err))
				return
			}

			row := make(core.Row, len(cols))
			for i, col := range cols {
				if bs, ok := values[i].([]byte); ok {
					row[col] = string(bs)
				} else {
					row[col] = values[i]
				}
			}
			if !yield(row, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("error iterating rows: %w", err))
		}
	}
}

// Schema returns column types from information_schema for table sources, or
// from the driver's column types for query sources.
func (b *BaseSQLReader) Schema(ctx context.Context) (core.Schema, error) {
	if b.DB == nil {
		return nil, core.ErrNotConnected
	}
	if b.Params.Query != "" {
		return b.querySchema(ctx)
	}
	return b.tableSchema(ctx)
}

// ParseQualifiedName splits a table reference into schema and name.
func ParseQualifiedName(table, defaultSchema string) (schema, name string) {
	if s, n, ok := strings.Cut(table, "."); ok {
		return s, n
	}
	return defaultSchema, table
}

func (b *BaseSQLReader) tableSchema(ctx context.Context) (core.Schema, error) {
	ph := b.Placeholder
	if ph == nil {
		ph = QuestionPlaceholder
	}
	schema, table := ParseQualifiedName(b.Params.Table, b.DefaultSchema)

	//nolint:gosec // Placeholders are ? or $N
	query := fmt.Sprintf(`
		SELECT
			column_name,
			data_type
		FROM information_schema.columns
		WHERE table_schema = %s AND table_name = %s
		ORDER BY ordinal_position
	`, ph(1), ph(2))

	rows, err := b.DB.QueryContext(ctx, query, schema, table)
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
		out[name] = typ
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("table %s not found", b.Params.Table)
	}
	return out, nil
}

func (b *BaseSQLReader) querySchema(ctx context.Context) (core.Schema, error) {
	q := "SELECT * FROM (" + strings.TrimRight(strings.TrimSpace(b.Params.Query), ";") + ") AS src LIMIT 0"
	rows, err := b.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}
	out := make(core.Schema, len(types))
	for _, ct := range types {
		out[ct.Name()] = strings.ToLower(ct.DatabaseTypeName())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating query: %w", err)
	}
	return out, nil
}
