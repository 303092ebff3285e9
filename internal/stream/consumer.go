// Package stream defines the message-consumer contract used by streaming
// ingestion and the registry of consumer backends.
//
// Backends register themselves from init. The Kafka backend needs cgo; a
// binary built without it reports the backend as unavailable.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Event is something returned by Consumer.Poll: a *Message or a PartitionEOF.
type Event interface {
	event()
}

// Message is one record read from a topic.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

func (*Message) event() {}

// PartitionEOF reports that the consumer reached the end of a partition.
// More messages may still arrive.
type PartitionEOF struct {
	Topic     string
	Partition int32
	Offset    int64
}

func (PartitionEOF) event() {}

// Consumer reads events from a message transport.
type Consumer interface {
	// Subscribe joins the consumer group for topic.
	Subscribe(topic string) error

	// Poll waits up to timeout for the next event. (nil, nil) means the
	// timeout elapsed with nothing to report. A *TransientError is logged by
	// callers and polling continues; any other error is fatal.
	Poll(ctx context.Context, timeout time.Duration) (Event, error)

	// Close leaves the group and releases the transport.
	Close() error
}

// TransientError wraps a transport error the consumer recovers from on its own.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient stream error: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a *TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Factory builds a consumer for a backend.
type Factory func(cfg Config, logger *slog.Logger) (Consumer, error)

// ErrUnavailable is returned when no backend is compiled in under a name.
var ErrUnavailable = errors.New("stream backend not available in this build")

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Factory)
)

// Register adds a consumer backend. Called from backend init() functions.
func Register(name string, factory Factory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = factory
}

// Available reports whether a backend is compiled in.
func Available(name string) bool {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Backends lists the compiled-in backends (sorted).
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewConsumer builds a consumer for the named backend.
func NewConsumer(name string, cfg Config, logger *slog.Logger) (Consumer, error) {
	backendsMu.RLock()
	factory, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (compiled in: %v)", ErrUnavailable, name, Backends())
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return factory(cfg.WithDefaults(), logger)
}
