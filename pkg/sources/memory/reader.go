// Package memory provides a source reader over a pre-fetched list of rows.
// It backs inline mapping rows and tests.
package memory

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"

	"github.com/leapstack-labs/phonograph/pkg/core"
	"github.com/leapstack-labs/phonograph/pkg/source"
)

// Reader yields rows from memory.
type Reader struct {
	rows      []core.Row
	schema    core.Schema
	connected atomic.Bool
}

// New creates a reader over rows. A nil schema is derived from the union of
// row keys, each typed "any".
func New(rows []core.Row, schema core.Schema) *Reader {
	if schema == nil {
		schema = make(core.Schema)
		for _, row := range rows {
			for k := range row {
				schema[k] = "any"
			}
		}
	}
	return &Reader{rows: rows, schema: schema}
}

// Connect marks the reader connected.
func (r *Reader) Connect(_ context.Context) error {
	r.connected.Store(true)
	return nil
}

// Disconnect marks the reader disconnected.
func (r *Reader) Disconnect() error {
	r.connected.Store(false)
	return nil
}

// ReadRows yields copies of the stored rows.
func (r *Reader) ReadRows(ctx context.Context, limit int) iter.Seq2[core.Row, error] {
	return func(yield func(core.Row, error) bool) {
		if !r.connected.Load() {
			yield(nil, core.ErrNotConnected)
			return
		}
		for i, row := range r.rows {
			if limit > 0 && i >= limit {
				return
			}
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			cp := make(core.Row, len(row))
			for k, v := range row {
				cp[k] = v
			}
			if !yield(cp, nil) {
				return
			}
		}
	}
}

// Schema returns the declared or derived schema.
func (r *Reader) Schema(_ context.Context) (core.Schema, error) {
	if !r.connected.Load() {
		return nil, core.ErrNotConnected
	}
	return r.schema, nil
}

// Params holds the inline rows of a mapping.
type Params struct {
	Rows   []map[string]any  `mapstructure:"rows"`
	Schema map[string]string `mapstructure:"schema"`
}

// Factory builds a Reader from source_config.rows.
func Factory(cfg core.SourceConfig, _ *slog.Logger) (core.SourceReader, error) {
	var params Params
	if err := source.DecodeParams(cfg, &params); err != nil {
		return nil, err
	}
	if params.Rows == nil {
		return nil, fmt.Errorf("source_config.rows is required")
	}
	rows := make([]core.Row, len(params.Rows))
	for i, r := range params.Rows {
		rows[i] = core.Row(r)
	}
	var schema core.Schema
	if params.Schema != nil {
		schema = core.Schema(params.Schema)
	}
	return New(rows, schema), nil
}
