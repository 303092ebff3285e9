// Package csv provides a delimited-file source reader.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"unicode/utf8"

	"github.com/leapstack-labs/phonograph/pkg/core"
	"github.com/leapstack-labs/phonograph/pkg/source"
)

// Params holds CSV-specific source_config keys.
type Params struct {
	// Path to the file.
	Path string `mapstructure:"path"`

	// Delimiter is a single character; defaults to ",". "\t" and "tab" select tabs.
	Delimiter string `mapstructure:"delimiter"`

	// EmptyAsNull turns empty cells into nil so they are omitted from objects.
	EmptyAsNull bool `mapstructure:"empty_as_null"`

	// LazyQuotes relaxes quote handling for hand-edited exports.
	LazyQuotes bool `mapstructure:"lazy_quotes"`
}

func (p Params) comma() (rune, error) {
	switch p.Delimiter {
	case "":
		return ',', nil
	case `\t`, "tab":
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(p.Delimiter)
	if size != len(p.Delimiter) || r == utf8.RuneError {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", p.Delimiter)
	}
	return r, nil
}

// Reader reads rows from a delimited file with a header line.
// Every value is a string; the header defines the field names.
type Reader struct {
	params Params
	comma  rune
	file   *os.File
	header []string
	logger *slog.Logger
}

// New creates a CSV reader. If logger is nil, a discard logger is used.
func New(params Params, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if params.Path == "" {
		return nil, fmt.Errorf("source_config.path is required")
	}
	comma, err := params.comma()
	if err != nil {
		return nil, err
	}
	return &Reader{params: params, comma: comma, logger: logger}, nil
}

// Connect opens the file and reads its header. A missing file is an error.
func (r *Reader) Connect(_ context.Context) error {
	if _, err := os.Stat(r.params.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("CSV file not found: %s", r.params.Path)
		}
		return fmt.Errorf("failed to stat CSV file: %w", err)
	}

	f, err := os.Open(r.params.Path)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	r.file = f

	_, header, err := r.newCSVReader()
	if err != nil {
		_ = r.Disconnect()
		return err
	}
	r.header = header
	r.logger.Debug("opened csv source", slog.String("path", r.params.Path), slog.Int("columns", len(header)))
	return nil
}

// Disconnect closes the file. Safe to call without a successful Connect.
func (r *Reader) Disconnect() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.header = nil
	return err
}

func (r *Reader) newCSVReader() (*csv.Reader, []string, error) {
	if r.file == nil {
		return nil, nil, core.ErrNotConnected
	}
	if _, err := r.file.Seek(0, io.SeekStart); err != nil {
		return nil, nil, fmt.Errorf("failed to rewind CSV file: %w", err)
	}

	cr := csv.NewReader(r.file)
	cr.Comma = r.comma
	cr.LazyQuotes = r.params.LazyQuotes
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return cr, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	return cr, append([]string(nil), header...), nil
}

// ReadRows yields one row per data line. Short lines omit the trailing
// fields; extra cells beyond the header are dropped.
func (r *Reader) ReadRows(ctx context.Context, limit int) iter.Seq2[core.Row, error] {
	return func(yield func(core.Row, error) bool) {
		cr, header, err := r.newCSVReader()
		if err != nil {
			yield(nil, err)
			return
		}
		if header == nil {
			return
		}

		for n := 0; limit <= 0 || n < limit; n++ {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			record, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("failed to read CSV record: %w", err))
				return
			}

			row := make(core.Row, len(header))
			for i, cell := range record {
				if i >= len(header) {
					break
				}
				if cell == "" && r.params.EmptyAsNull {
					continue
				}
				row[header[i]] = cell
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// Schema returns every header column typed as "string". It uses the header
// read at Connect and never moves the file offset, so it is safe to call while
// ReadRows is iterating.
func (r *Reader) Schema(_ context.Context) (core.Schema, error) {
	if r.file == nil {
		return nil, core.ErrNotConnected
	}
	schema := make(core.Schema, len(r.header))
	for _, col := range r.header {
		schema[col] = "string"
	}
	return schema, nil
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
