package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/phonograph/internal/mapping"
	"github.com/leapstack-labs/phonograph/internal/testutil"
	"github.com/leapstack-labs/phonograph/pkg/core"
	csvsource "github.com/leapstack-labs/phonograph/pkg/sources/csv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngest_Batching(t *testing.T) {
	tests := []struct {
		name         string
		rows         int
		batchSize    int
		wantBatches  int
		wantProgress []int
	}{
		{"uneven", 10, 3, 4, []int{3, 6, 9}},
		{"divisible", 9, 3, 3, []int{3, 6, 9}},
		{"single partial batch", 4, 1000, 1, nil},
		{"batch of one", 3, 1, 3, []int{1, 2, 3}},
		{"empty source", 0, 5, 0, nil},
		{"default batch size", 5, 0, 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &fakeReader{rows: numberedRows(tt.rows)}
			sink := &recordingSink{}
			eng := New(Config{Sink: sink, Logger: testutil.NewTestLogger(t)})

			var progress []int
			res, err := eng.Ingest(context.Background(), reader, testMapping(), IngestOptions{
				BatchSize:  tt.batchSize,
				OnProgress: func(n int) { progress = append(progress, n) },
			})
			require.NoError(t, err)

			assert.Equal(t, tt.rows, res.Ingested)
			assert.Equal(t, tt.rows, res.RowsRead)
			assert.Equal(t, tt.wantBatches, res.Batches)
			assert.Equal(t, tt.wantProgress, progress)
			assert.Len(t, sink.puts, tt.rows)
			assert.Equal(t, 1, reader.connects)
			assert.Equal(t, 1, reader.disconnects)
		})
	}
}

func TestIngest_MappingScenario(t *testing.T) {
	reader := &fakeReader{rows: []core.Row{
		{"id": "1", "val": "10"},
		{"id": "2", "val": "abc"},
	}}
	sink := &recordingSink{}
	eng := New(Config{Sink: sink})

	res, err := eng.Ingest(context.Background(), reader, testMapping(), IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Ingested)
	assert.Equal(t, 1, res.Fallbacks)

	require.Len(t, sink.puts, 2)
	assert.Equal(t, put{objectType: "reading", key: "1", props: core.Properties{"val": int64(10)}}, sink.puts[0])
	assert.Equal(t, put{objectType: "reading", key: "2", props: core.Properties{"val": "abc"}}, sink.puts[1])
}

func TestIngest_SinkFailureIsolation(t *testing.T) {
	reader := &fakeReader{rows: numberedRows(5)}
	sink := &recordingSink{failKeys: map[string]bool{"2": true}, panicKey: "4"}
	eng := New(Config{Sink: sink, Logger: testutil.NewTestLogger(t)})

	n, err := eng.IngestFromSource(context.Background(), reader, testMapping(), 5, 0)
	require.NoError(t, err)

	assert.Equal(t, 5, n, "failed objects still count as ingested")
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, sink.keys(), "dispatch continues after a failure")
}

func TestIngest_SinkFailureCounts(t *testing.T) {
	sink := &recordingSink{failKeys: map[string]bool{"1": true, "3": true}}
	eng := New(Config{Sink: sink})

	res, err := eng.Ingest(context.Background(), &fakeReader{rows: numberedRows(3)}, testMapping(), IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Ingested)
	assert.Equal(t, 2, res.SinkFailures)
}

func TestIngest_LimitBoundsReads(t *testing.T) {
	tests := []struct {
		name        string
		overproduce bool
	}{
		{"reader honours limit", false},
		{"reader ignores limit", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &fakeReader{rows: numberedRows(100), overproduce: tt.overproduce}
			sink := &recordingSink{}
			eng := New(Config{Sink: sink})

			res, err := eng.Ingest(context.Background(), reader, testMapping(), IngestOptions{BatchSize: 3, Limit: 7})
			require.NoError(t, err)

			assert.Equal(t, 7, res.Ingested)
			assert.Equal(t, 7, reader.pulled, "never reads past the limit")
			assert.Equal(t, 3, res.Batches)
		})
	}
}

func TestIngest_EmptySource(t *testing.T) {
	reader := &fakeReader{}
	eng := New(Config{Sink: &recordingSink{}})

	n, err := eng.IngestFromSource(context.Background(), reader, testMapping(), 10, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, reader.connects)
	assert.Equal(t, 1, reader.disconnects)
}

func TestIngest_DryRun(t *testing.T) {
	eng := New(Config{Logger: testutil.NewTestLogger(t)})

	res, err := eng.Ingest(context.Background(), &fakeReader{rows: numberedRows(4)}, testMapping(), IngestOptions{BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Ingested)
	assert.Equal(t, 2, res.Batches)
	assert.Zero(t, res.SinkFailures)
}

func TestIngest_Failures(t *testing.T) {
	tests := []struct {
		name         string
		reader       *fakeReader
		ctx          func() context.Context
		wantErr      error
		wantMsg      string
		wantIngested int
		wantStatus   core.RunStatus
	}{
		{
			name:       "connect error",
			reader:     &fakeReader{rows: numberedRows(3), connectErr: errors.New("file missing")},
			wantMsg:    "failed to connect source readings: file missing",
			wantStatus: core.RunStatusFailed,
		},
		{
			name:         "read error keeps completed batches",
			reader:       &fakeReader{rows: numberedRows(5), failAt: 4},
			wantMsg:      "failed to read row 4",
			wantIngested: 2,
			wantStatus:   core.RunStatusFailed,
		},
		{
			name:   "cancelled context",
			reader: &fakeReader{rows: numberedRows(5)},
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			wantErr:    context.Canceled,
			wantStatus: core.RunStatusCancelled,
		},
		{
			name:       "disconnect error is reported",
			reader:     &fakeReader{rows: numberedRows(2), disconnErr: errors.New("close failed")},
			wantMsg:    "failed to disconnect source readings: close failed",
			wantStatus: core.RunStatusFailed,
			// both rows were dispatched before the disconnect failed
			wantIngested: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.ctx != nil {
				ctx = tt.ctx()
			}
			sink := &recordingSink{}
			rec := &fakeRecorder{}
			eng := New(Config{Sink: sink, Recorder: rec, Logger: testutil.NewTestLogger(t)})

			res, err := eng.Ingest(ctx, tt.reader, testMapping(), IngestOptions{BatchSize: 2})
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}

			require.NotNil(t, res)
			assert.Equal(t, tt.wantIngested, res.Ingested)
			assert.Len(t, sink.puts, tt.wantIngested)
			assert.Equal(t, 1, tt.reader.disconnects, "source released on every exit path")
			assert.Equal(t, tt.wantStatus, rec.last().Status)
			assert.NotEmpty(t, rec.last().Error)
		})
	}
}

func TestIngest_SchemaCheck(t *testing.T) {
	reader := func() *fakeReader {
		return &fakeReader{rows: numberedRows(2), schema: core.Schema{"id": "string"}}
	}

	t.Run("lenient", func(t *testing.T) {
		logger, logs := testutil.NewRecordingLogger()
		eng := New(Config{Logger: logger})
		res, err := eng.Ingest(context.Background(), reader(), testMapping(), IngestOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Ingested)

		require.Equal(t, 1, logs.Count(slog.LevelWarn, "mapping references fields the source does not declare"))
		warn := logs.Entries(slog.LevelWarn)[0]
		assert.Equal(t, []string{"val"}, warn.Attrs["fields"])
		assert.Equal(t, "readings", warn.Attrs["mapping"])
	})

	t.Run("strict", func(t *testing.T) {
		r := reader()
		eng := New(Config{StrictSchema: true})
		res, err := eng.Ingest(context.Background(), r, testMapping(), IngestOptions{})
		require.ErrorIs(t, err, ErrUnresolvedField)
		assert.Contains(t, err.Error(), "val")
		assert.Zero(t, res.Ingested)
		assert.Equal(t, 1, r.disconnects)
		assert.Zero(t, r.pulled, "no rows are read after a strict schema failure")
	})

	t.Run("schema unavailable", func(t *testing.T) {
		r := reader()
		r.schemaErr = errors.New("no metadata")
		eng := New(Config{StrictSchema: true})
		res, err := eng.Ingest(context.Background(), r, testMapping(), IngestOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Ingested)
	})
}

func TestIngest_EmptyPrimaryKey(t *testing.T) {
	reader := &fakeReader{rows: []core.Row{{"val": "1"}, {"id": nil, "val": "2"}, {"id": "3"}}}
	sink := &recordingSink{}
	logger, logs := testutil.NewRecordingLogger()
	eng := New(Config{Sink: sink, Logger: logger})

	res, err := eng.Ingest(context.Background(), reader, testMapping(), IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.EmptyKeys)
	assert.Equal(t, []string{"", "", "3"}, sink.keys())
	assert.Equal(t, 2, logs.Count(slog.LevelWarn, "object has an empty primary key"))
}

func TestIngest_RecordsRun(t *testing.T) {
	rec := &fakeRecorder{}
	eng := New(Config{Recorder: rec})

	res, err := eng.Ingest(context.Background(), &fakeReader{rows: numberedRows(3)}, testMapping(), IngestOptions{})
	require.NoError(t, err)

	require.Len(t, rec.started, 1)
	require.Len(t, rec.finished, 1)
	run := rec.last()
	assert.Equal(t, res.RunID, run.ID)
	assert.Equal(t, "readings", run.MappingKey)
	assert.Equal(t, "reading", run.ObjectType)
	assert.Equal(t, core.RunModeBatch, run.Mode)
	assert.Equal(t, core.RunStatusCompleted, run.Status)
	assert.Equal(t, int64(3), run.Ingested)
	assert.NotNil(t, run.CompletedAt)
	assert.Empty(t, run.Error)
}

func TestIngestAsync(t *testing.T) {
	eng := New(Config{Sink: &recordingSink{}})

	ch := eng.IngestAsync(context.Background(), &fakeReader{rows: numberedRows(4)}, testMapping(), IngestOptions{BatchSize: 2})
	out, ok := <-ch
	require.True(t, ok)
	require.NoError(t, out.Err)
	assert.Equal(t, 4, out.Result.Ingested)

	_, ok = <-ch
	assert.False(t, ok, "channel closed after the result")
}

func TestIngestAll(t *testing.T) {
	other := testMapping()
	other.SourceConfig = core.SourceConfig{"identifier": "broken"}

	jobs := []Job{
		{Reader: &fakeReader{rows: numberedRows(3)}, Mapping: testMapping()},
		{Reader: &fakeReader{rows: numberedRows(3), connectErr: errors.New("unreachable")}, Mapping: other},
		{Reader: &fakeReader{rows: numberedRows(5)}, Mapping: testMapping()},
	}
	sink := &recordingSink{}
	eng := New(Config{Sink: sink})

	results, err := eng.IngestAll(context.Background(), jobs, IngestOptions{BatchSize: 2}, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: failed to connect source")

	require.Len(t, results, 3)
	assert.Equal(t, 3, results[0].Ingested)
	assert.Equal(t, 0, results[1].Ingested)
	assert.Equal(t, 5, results[2].Ingested)
	assert.Len(t, sink.keys(), 8)
}

func TestIngest_CSVSourceWithWideRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.csv")
	content := "id,note\n1," + strings.Repeat("x", 5000) + "\n2,b\n3,c\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	reader, err := csvsource.New(csvsource.Params{Path: path}, testutil.NewTestLogger(t))
	require.NoError(t, err)

	cfg := &mapping.Config{
		SourceType:   core.SourceTypeFile,
		SourceConfig: core.SourceConfig{"identifier": "notes", "path": path},
		ObjectTypeID: "note",
		PropertyMappings: []mapping.PropertyMapping{
			{SourceField: "note", TargetProperty: "note"},
		},
		PrimaryKeyMapping: mapping.PropertyMapping{SourceField: "id", TargetProperty: "id"},
	}

	sink := &recordingSink{}
	eng := New(Config{Sink: sink, StrictSchema: true, Logger: testutil.NewTestLogger(t)})
	res, err := eng.Ingest(context.Background(), reader, cfg, IngestOptions{BatchSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, res.RowsRead)
	assert.Equal(t, 3, res.Ingested)
	assert.Equal(t, []string{"1", "2", "3"}, sink.keys())
}
