package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/leapstack-labs/phonograph/internal/mapping"
	"github.com/leapstack-labs/phonograph/internal/stream"
	"github.com/leapstack-labs/phonograph/pkg/core"
)

// fakeReader yields rows and records how it was used. It ignores the limit
// argument when overproduce is set.
type fakeReader struct {
	rows        []core.Row
	schema      core.Schema
	schemaErr   error
	connectErr  error
	disconnErr  error
	failAt      int // 1-based row index that fails to read; 0 disables
	overproduce bool

	mu          sync.Mutex
	connects    int
	disconnects int
	pulled      int
}

func numberedRows(n int) []core.Row {
	rows := make([]core.Row, n)
	for i := range rows {
		rows[i] = core.Row{"id": strconv.Itoa(i + 1), "val": strconv.Itoa((i + 1) * 10)}
	}
	return rows
}

func (r *fakeReader) Connect(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects++
	return r.connectErr
}

func (r *fakeReader) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnects++
	return r.disconnErr
}

func (r *fakeReader) ReadRows(_ context.Context, limit int) iter.Seq2[core.Row, error] {
	return func(yield func(core.Row, error) bool) {
		for i, row := range r.rows {
			if limit > 0 && i >= limit && !r.overproduce {
				return
			}
			r.mu.Lock()
			r.pulled++
			r.mu.Unlock()
			if r.failAt == i+1 {
				yield(nil, errors.New("malformed source row"))
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

func (r *fakeReader) Schema(context.Context) (core.Schema, error) {
	if r.schemaErr != nil {
		return nil, r.schemaErr
	}
	if r.schema != nil {
		return r.schema, nil
	}
	return core.Schema{"id": "string", "val": "string"}, nil
}

type put struct {
	objectType string
	key        string
	props      core.Properties
}

// recordingSink stores every Put and fails for keys in failKeys.
type recordingSink struct {
	mu       sync.Mutex
	puts     []put
	failKeys map[string]bool
	panicKey string
}

func (s *recordingSink) Put(_ context.Context, objectType, key string, props core.Properties) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts = append(s.puts, put{objectType: objectType, key: key, props: props})
	if key == s.panicKey && key != "" {
		panic("sink exploded")
	}
	if s.failKeys[key] {
		return fmt.Errorf("sink rejected %s", key)
	}
	return nil
}

func (s *recordingSink) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.puts))
	for i, p := range s.puts {
		out[i] = p.key
	}
	return out
}

type fakeRecorder struct {
	mu       sync.Mutex
	started  []core.Run
	finished []core.Run
}

func (r *fakeRecorder) StartRun(_ context.Context, run *core.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, *run)
	return nil
}

func (r *fakeRecorder) FinishRun(_ context.Context, run *core.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, *run)
	return nil
}

func (r *fakeRecorder) last() core.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished[len(r.finished)-1]
}

// testMapping maps id -> key and val -> val (to_int).
func testMapping() *mapping.Config {
	return &mapping.Config{
		SourceType:   core.SourceTypeFile,
		SourceConfig: core.SourceConfig{"identifier": "readings"},
		ObjectTypeID: "reading",
		PropertyMappings: []mapping.PropertyMapping{
			{SourceField: "val", TargetProperty: "val", Transformation: "to_int"},
		},
		PrimaryKeyMapping: mapping.PropertyMapping{SourceField: "id", TargetProperty: "id"},
	}
}

// scriptedConsumer replays events, then calls onDrain (once) and idles.
type scriptedConsumer struct {
	mu         sync.Mutex
	script     []scripted
	onDrain    func()
	drained    bool
	subscribed string
	closed     bool
}

type scripted struct {
	ev  stream.Event
	err error
}

func (c *scriptedConsumer) Subscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = topic
	return nil
}

func (c *scriptedConsumer) Poll(ctx context.Context, _ time.Duration) (stream.Event, error) {
	c.mu.Lock()
	if len(c.script) > 0 {
		next := c.script[0]
		c.script = c.script[1:]
		c.mu.Unlock()
		return next.ev, next.err
	}
	drain := !c.drained && c.onDrain != nil
	c.drained = true
	c.mu.Unlock()

	if drain {
		c.onDrain()
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Millisecond):
		return nil, nil
	}
}

func (c *scriptedConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *scriptedConsumer) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func factoryFor(c stream.Consumer) ConsumerFactory {
	return func(stream.Config, *slog.Logger) (stream.Consumer, error) { return c, nil }
}

func msg(value string) scripted {
	return scripted{ev: &stream.Message{Topic: "readings", Value: []byte(value)}}
}
