// Package engine drives ingestion runs: it reads rows from a source (batch
// mode) or messages from a stream (streaming mode), maps them into
// normalized objects, and hands each object to a Sink.
package engine

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/leapstack-labs/phonograph/internal/mapping"
	"github.com/leapstack-labs/phonograph/internal/stream"
	"github.com/leapstack-labs/phonograph/pkg/core"
)

// DefaultBatchSize is used when IngestOptions.BatchSize is not positive.
const DefaultBatchSize = 1000

var (
	// ErrUnresolvedField is returned in strict mode when a mapping reads a
	// field the source schema does not declare.
	ErrUnresolvedField = errors.New("mapping references fields missing from the source")

	// ErrStreamingUnavailable is returned when no stream backend is compiled in.
	ErrStreamingUnavailable = errors.New("streaming backend unavailable")

	// ErrAlreadyRunning is returned when a stream is started on an engine
	// that is already streaming.
	ErrAlreadyRunning = errors.New("engine is already streaming")
)

// ConsumerFactory builds a stream consumer.
type ConsumerFactory func(cfg stream.Config, logger *slog.Logger) (stream.Consumer, error)

// Config holds engine configuration.
type Config struct {
	// Mapper applies mappings; nil uses a mapper over the default registry.
	Mapper *mapping.Mapper

	// Sink receives every mapped object. Nil runs the engine dry: objects are
	// counted and logged at debug level.
	Sink core.Sink

	// Recorder persists run history (optional).
	Recorder core.RunRecorder

	// ConsumerFactory overrides the compiled-in stream backends.
	ConsumerFactory ConsumerFactory

	// StrictSchema fails a batch run whose mapping reads fields the source
	// does not declare. Otherwise they are logged as warnings.
	StrictSchema bool

	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Engine runs ingestion. Batch runs may execute concurrently on one Engine;
// streaming is limited to one loop per Engine.
type Engine struct {
	mapper      *mapping.Mapper
	sink        core.Sink
	recorder    core.RunRecorder
	newConsumer ConsumerFactory
	strict      bool
	logger      *slog.Logger

	// active guards the streaming lifetime; running is the loop flag Stop clears.
	active  atomic.Bool
	running atomic.Bool
}

// New creates an engine. The streaming capability is resolved here, once:
// without a ConsumerFactory and without a compiled-in backend, streaming
// calls fail with ErrStreamingUnavailable.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	mapper := cfg.Mapper
	if mapper == nil {
		mapper = mapping.NewMapper(nil)
	}

	newConsumer := cfg.ConsumerFactory
	if newConsumer == nil && len(stream.Backends()) > 0 {
		newConsumer = func(sc stream.Config, l *slog.Logger) (stream.Consumer, error) {
			return stream.NewConsumer(sc.Backend, sc, l)
		}
	}

	logger.Debug("initializing engine",
		slog.Bool("dry_run", cfg.Sink == nil),
		slog.Bool("streaming", newConsumer != nil),
		slog.Bool("strict_schema", cfg.StrictSchema))

	return &Engine{
		mapper:      mapper,
		sink:        cfg.Sink,
		recorder:    cfg.Recorder,
		newConsumer: newConsumer,
		strict:      cfg.StrictSchema,
		logger:      logger,
	}
}

// StreamingAvailable reports whether StreamFromSource can run.
func (e *Engine) StreamingAvailable() bool {
	return e.newConsumer != nil
}

// Mapper returns the engine's mapper.
func (e *Engine) Mapper() *mapping.Mapper {
	return e.mapper
}
