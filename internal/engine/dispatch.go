package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/phonograph/internal/mapping"
	"github.com/leapstack-labs/phonograph/pkg/core"
)

// Result summarizes one run. Counts are kept on error too.
type Result struct {
	RunID string

	// RowsRead counts rows (or messages) taken from the source.
	RowsRead int

	// Ingested counts objects handed to the sink, failures included.
	Ingested int

	SinkFailures int
	Batches      int
	Fallbacks    int
	EmptyKeys    int

	// Skipped counts malformed stream messages.
	Skipped int
}

// mapObject maps row and accounts for fallbacks and empty keys.
func (e *Engine) mapObject(log *slog.Logger, cfg *mapping.Config, row core.Row, res *Result) core.Object {
	obj, fallbacks := e.mapper.Object(cfg, row)

	for _, fb := range fallbacks {
		res.Fallbacks++
		CounterTransformFallbacks.WithLabelValues(obj.Type, fb.Transformation).Inc()
		log.Debug("transformation failed, keeping raw value",
			slog.String("field", fb.SourceField),
			slog.String("transformation", fb.Transformation),
			slog.Any("value", fb.Value),
			slog.String("error", fb.Err.Error()))
	}
	if obj.PrimaryKey == "" {
		res.EmptyKeys++
		log.Warn("object has an empty primary key",
			slog.String("object_type", obj.Type),
			slog.String("key_field", cfg.PrimaryKeyMapping.SourceField))
	}
	return obj
}

// dispatch hands one object to the sink. A sink error or panic is logged and
// counted; it never stops the run.
func (e *Engine) dispatch(ctx context.Context, log *slog.Logger, obj core.Object, res *Result) {
	res.Ingested++
	CounterObjectsIngested.WithLabelValues(obj.Type).Inc()

	if e.sink == nil {
		log.Debug("dry run", slog.String("object", obj.String()), slog.Int("properties", len(obj.Properties)))
		return
	}

	if err := safePut(ctx, e.sink, obj); err != nil {
		res.SinkFailures++
		CounterSinkFailures.WithLabelValues(obj.Type).Inc()
		log.Error("sink failed to record object",
			slog.String("object_type", obj.Type),
			slog.String("primary_key", obj.PrimaryKey),
			slog.String("error", err.Error()))
	}
}

func safePut(ctx context.Context, sink core.Sink, obj core.Object) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return sink.Put(ctx, obj.Type, obj.PrimaryKey, obj.Properties)
}

// startRun records the beginning of a run. Recorder failures are logged
// and never fail ingestion.
func (e *Engine) startRun(ctx context.Context, cfg *mapping.Config, mode core.RunMode) *core.Run {
	run := &core.Run{
		ID:         uuid.NewString(),
		MappingKey: cfg.Key(),
		ObjectType: cfg.ObjectTypeID,
		SourceType: cfg.SourceType,
		Mode:       mode,
		Status:     core.RunStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	if e.recorder != nil {
		if err := e.recorder.StartRun(ctx, run); err != nil {
			e.logger.Warn("failed to record run start", slog.String("run_id", run.ID), slog.String("error", err.Error()))
		}
	}
	return run
}

func (e *Engine) finishRun(ctx context.Context, run *core.Run, res *Result, status core.RunStatus, runErr error) {
	now := time.Now().UTC()
	run.Status = status
	run.CompletedAt = &now
	run.RowsRead = int64(res.RowsRead)
	run.Ingested = int64(res.Ingested)
	run.SinkFailures = int64(res.SinkFailures)
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if e.recorder == nil {
		return
	}
	// The run context may already be cancelled; the record must still land.
	if err := e.recorder.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		e.logger.Warn("failed to record run completion", slog.String("run_id", run.ID), slog.String("error", err.Error()))
	}
}
