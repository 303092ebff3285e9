// Package sink provides core.Sink implementations used by the CLI: a
// logging dry-run sink, a JSON Lines writer, and a primary-key dedup filter.
// The durable object store lives in internal/state.
package sink

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/phonograph/pkg/core"
)

// Log records each object as a structured log line.
type Log struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLog creates a Log sink writing at level. If logger is nil, a discard
// logger is used.
func NewLog(logger *slog.Logger, level slog.Level) *Log {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Log{logger: logger, level: level}
}

// Put logs the object. It never fails.
func (s *Log) Put(ctx context.Context, objectType, primaryKey string, props core.Properties) error {
	s.logger.LogAttrs(ctx, s.level, "object",
		slog.String("object_type", objectType),
		slog.String("primary_key", primaryKey),
		slog.Any("properties", map[string]any(props)))
	return nil
}

var _ core.Sink = (*Log)(nil)
