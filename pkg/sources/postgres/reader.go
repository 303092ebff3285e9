// Package postgres provides a PostgreSQL source reader for Phonograph.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	"github.com/leapstack-labs/phonograph/pkg/core"
	"github.com/leapstack-labs/phonograph/pkg/source"
)

// Params holds PostgreSQL-specific source_config keys.
type Params struct {
	source.SQLParams `mapstructure:",squash"`

	// DSN takes precedence over the discrete connection fields.
	DSN string `mapstructure:"dsn"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// Reader implements core.SourceReader for PostgreSQL.
type Reader struct {
	source.BaseSQLReader
	params Params
}

// New creates a PostgreSQL reader. If logger is nil, a discard logger is used.
func New(params Params, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Reader{
		BaseSQLReader: source.BaseSQLReader{
			Params:        params.SQLParams,
			Logger:        logger,
			DefaultSchema: "public",
			Placeholder:   source.DollarPlaceholder,
		},
		params: params,
	}, nil
}

// Connect establishes a connection to PostgreSQL.
func (r *Reader) Connect(ctx context.Context) error {
	r.Logger.Debug("connecting to postgres", slog.String("host", r.params.Host), slog.String("database", r.params.Database))

	db, err := sql.Open("pgx", buildDSN(r.params))
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	r.DB = db
	return nil
}

// buildDSN constructs a PostgreSQL connection string.
// ${VAR} references in the DSN and password are expanded from the environment.
func buildDSN(p Params) string {
	if p.DSN != "" {
		return source.ExpandEnv(p.DSN)
	}

	host := p.Host
	if host == "" {
		host = "localhost"
	}
	port := p.Port
	if port == 0 {
		port = 5432
	}
	sslmode := p.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	parts := []string{
		"host=" + host,
		fmt.Sprintf("port=%d", port),
		"dbname=" + p.Database,
		"sslmode=" + sslmode,
	}
	if p.User != "" {
		parts = append(parts, "user="+p.User)
	}
	if pw := source.ExpandEnv(p.Password); pw != "" {
		parts = append(parts, "password="+pw)
	}
	return strings.Join(parts, " ")
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
