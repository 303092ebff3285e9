package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/leapstack-labs/phonograph/pkg/core"
)

// Record is the JSON shape of one object in a JSON Lines file.
type Record struct {
	ObjectType string          `json:"object_type"`
	PrimaryKey string          `json:"primary_key"`
	Properties core.Properties `json:"properties"`
}

// JSONLines writes one JSON record per object. Safe for concurrent use.
type JSONLines struct {
	mu     sync.Mutex
	w      *bufio.Writer
	enc    *json.Encoder
	closer io.Closer
}

// NewJSONLines writes records to w. Close flushes but does not close w.
func NewJSONLines(w io.Writer) *JSONLines {
	bw := bufio.NewWriter(w)
	return &JSONLines{w: bw, enc: json.NewEncoder(bw)}
}

// CreateJSONLines creates (or truncates) path, creating parent directories.
func CreateJSONLines(path string) (*JSONLines, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	s := NewJSONLines(f)
	s.closer = f
	return s, nil
}

// Put appends the object as one line.
func (s *JSONLines) Put(_ context.Context, objectType, primaryKey string, props core.Properties) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil {
		return fmt.Errorf("json lines sink is closed")
	}
	if err := s.enc.Encode(Record{ObjectType: objectType, PrimaryKey: primaryKey, Properties: props}); err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", objectType, primaryKey, err)
	}
	return nil
}

// Close flushes buffered records and closes the file it created.
func (s *JSONLines) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil {
		return nil
	}
	s.enc = nil
	err := s.w.Flush()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

var _ core.Sink = (*JSONLines)(nil)
