// Package source holds the registry of source readers and the shared
// database/sql reader that the SQL-backed sources embed.
//
// Concrete readers live under pkg/sources and register themselves from init:
//
//	import _ "github.com/leapstack-labs/phonograph/pkg/sources/csv"
package source

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/phonograph/pkg/core"
)

// ErrStreamSource is returned when a stream mapping is opened as a batch reader.
var ErrStreamSource = errors.New("stream sources are consumed by the streaming engine, not a batch reader")

// Factory builds a reader from a mapping's source_config.
// A nil logger must be accepted.
type Factory func(cfg core.SourceConfig, logger *slog.Logger) (core.SourceReader, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a reader factory under the given driver name.
// Called by reader implementations in their init() functions.
func Register(driver string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[driver] = factory
}

// Get retrieves a reader factory by driver name.
func Get(driver string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[driver]
	return f, ok
}

// ListDrivers returns all registered driver names (sorted).
func ListDrivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a driver is registered.
func IsRegistered(driver string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[driver]
	return ok
}

// Open resolves the driver for a mapping source and builds an unconnected reader.
func Open(st core.SourceType, cfg core.SourceConfig, logger *slog.Logger) (core.SourceReader, error) {
	driver, err := DriverFor(st, cfg)
	if err != nil {
		return nil, err
	}

	factory, ok := Get(driver)
	if !ok {
		return nil, &UnknownSourceError{
			Driver:    driver,
			Available: ListDrivers(),
		}
	}

	reader, err := factory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s reader: %w", driver, err)
	}
	return reader, nil
}

// DriverFor picks the reader driver for a source.
//
// An explicit source_config.driver always wins. Otherwise files are read by
// extension (csv/tsv/txt by the csv reader, parquet and json by duckdb),
// databases by the scheme of source_config.dsn, and APIs by the api reader.
func DriverFor(st core.SourceType, cfg core.SourceConfig) (string, error) {
	if d := strings.ToLower(cfg.String("driver")); d != "" {
		return d, nil
	}

	switch st {
	case core.SourceTypeFile:
		if f := strings.ToLower(cfg.String("format")); f != "" {
			return fileDriver(f), nil
		}
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(cfg.String("path"))), ".")
		return fileDriver(ext), nil
	case core.SourceTypeDatabase:
		dsn := cfg.String("dsn")
		if dsn == "" {
			dsn = cfg.String("connection_string")
		}
		if scheme, _, ok := strings.Cut(dsn, "://"); ok {
			return dsnDriver(scheme), nil
		}
		return "", fmt.Errorf("database source needs source_config.driver or a dsn with a scheme")
	case core.SourceTypeAPI:
		return "api", nil
	case core.SourceTypeStream:
		return "", ErrStreamSource
	default:
		return "", fmt.Errorf("unknown source type %q", st)
	}
}

func fileDriver(format string) string {
	switch format {
	case "parquet", "json", "ndjson", "jsonl":
		return "duckdb"
	default:
		return "csv"
	}
}

func dsnDriver(scheme string) string {
	switch strings.ToLower(scheme) {
	case "postgres", "postgresql", "pgx":
		return "postgres"
	case "sqlite", "sqlite3", "file":
		return "sqlite"
	default:
		return strings.ToLower(scheme)
	}
}

// UnknownSourceError is returned when no reader is registered for a driver.
type UnknownSourceError struct {
	Driver    string
	Available []string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown source driver %q\nAvailable drivers: %v\nHint: Check source_config.driver in your mappings file", e.Driver, e.Available)
}
