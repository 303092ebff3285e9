package duckdb

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/phonograph/pkg/source"
)

// Params holds DuckDB-specific source_config keys.
// Parsed from the mapping's source_config using mapstructure.
type Params struct {
	source.SQLParams `mapstructure:",squash"`

	// Database file; empty means an in-memory database.
	Database string `mapstructure:"database"`

	// Path to a data file (csv, parquet, json) scanned through DuckDB's readers.
	Path string `mapstructure:"path"`

	// Extensions to install and load (e.g., "httpfs", "json")
	Extensions []string `mapstructure:"extensions"`

	// Settings to apply at session level (e.g., memory_limit, threads)
	Settings map[string]string `mapstructure:"settings"`
}

// resolve fills Query from Path and validates the combination, extension
// names and setting names.
func (p *Params) resolve() error {
	for _, ext := range p.Extensions {
		if !source.IsName(ext) {
			return fmt.Errorf("invalid extension name %q", ext)
		}
	}
	for key := range p.Settings {
		if !source.IsName(key) {
			return fmt.Errorf("invalid setting name %q", key)
		}
	}
	if p.Path != "" {
		if p.Table != "" || p.Query != "" {
			return fmt.Errorf("source_config.path cannot be combined with table or query")
		}
		p.Query = fileScan(p.Path)
	}
	return p.Validate()
}

// fileScan returns the DuckDB table function reading path.
func fileScan(path string) string {
	quoted := source.QuoteLiteral(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return "SELECT * FROM read_parquet(" + quoted + ")"
	case ".json", ".ndjson", ".jsonl":
		return "SELECT * FROM read_json_auto(" + quoted + ")"
	default:
		return "SELECT * FROM read_csv_auto(" + quoted + ")"
	}
}
