package core

import (
	"context"
	"errors"
	"iter"
)

// ErrNotConnected is returned by readers used before Connect or after Disconnect.
var ErrNotConnected = errors.New("source not connected: call Connect first")

// SourceReader is the capability every ingestible source implements.
// The engine treats readers opaquely: CSV files, SQL tables, paginated REST
// calls and pre-fetched lists are all consumed through this contract.
type SourceReader interface {
	// Connect acquires the underlying resource (file handle, connection pool, client).
	Connect(ctx context.Context) error

	// Disconnect releases the resource. It must be safe to call after a failed Connect.
	Disconnect() error

	// ReadRows returns a lazy sequence of rows. A limit <= 0 means unbounded.
	// A non-nil error in the sequence is fatal for the read.
	ReadRows(ctx context.Context, limit int) iter.Seq2[Row, error]

	// Schema returns the declared field types of the source.
	Schema(ctx context.Context) (Schema, error)
}

// Sink durably records normalized objects.
// A Sink shared by concurrent runs must be safe for concurrent use.
type Sink interface {
	Put(ctx context.Context, objectType, primaryKey string, props Properties) error
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(ctx context.Context, objectType, primaryKey string, props Properties) error

// Put calls f.
func (f SinkFunc) Put(ctx context.Context, objectType, primaryKey string, props Properties) error {
	return f(ctx, objectType, primaryKey, props)
}
