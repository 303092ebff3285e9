package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/phonograph/internal/mapping"
	"github.com/leapstack-labs/phonograph/pkg/core"
)

// IngestOptions tunes one batch run.
type IngestOptions struct {
	// BatchSize is the number of objects per dispatched batch (default 1000).
	BatchSize int

	// Limit caps the rows read from the source; <= 0 reads until exhaustion.
	Limit int

	// OnProgress observes the ingested count after every full batch.
	OnProgress func(ingested int)
}

// Ingest reads rows from reader, maps them with cfg, and dispatches them to
// the sink in batches.
//
// The reader is connected before reading and disconnected on every exit
// path. A connect or read failure ends the run; objects in batches already
// dispatched stay dispatched, and the returned Result holds the counts so
// far. A failing sink only affects the object it failed on.
func (e *Engine) Ingest(ctx context.Context, reader core.SourceReader, cfg *mapping.Config, opts IngestOptions) (res *Result, err error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	run := e.startRun(ctx, cfg, core.RunModeBatch)
	res = &Result{RunID: run.ID}
	log := e.logger.With(slog.String("run_id", run.ID), slog.String("mapping", cfg.Key()))

	defer func() {
		status := core.RunStatusCompleted
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			status = core.RunStatusCancelled
		case err != nil:
			status = core.RunStatusFailed
		}
		e.finishRun(ctx, run, res, status, err)
	}()

	log.Info("starting ingestion",
		slog.String("object_type", cfg.ObjectTypeID),
		slog.Int("batch_size", batchSize),
		slog.Int("limit", opts.Limit))

	if err := reader.Connect(ctx); err != nil {
		if derr := reader.Disconnect(); derr != nil {
			log.Warn("failed to release source after connect error", slog.String("error", derr.Error()))
		}
		return res, fmt.Errorf("failed to connect source %s: %w", cfg.Key(), err)
	}
	defer func() {
		if derr := reader.Disconnect(); derr != nil {
			log.Warn("failed to disconnect source", slog.String("error", derr.Error()))
			err = errors.Join(err, fmt.Errorf("failed to disconnect source %s: %w", cfg.Key(), derr))
		}
	}()

	batch := make([]core.Object, 0, batchSize)
	flush := func() {
		res.Batches++
		CounterBatchesDispatched.WithLabelValues(cfg.ObjectTypeID).Inc()
		for _, obj := range batch {
			e.dispatch(ctx, log, obj, res)
		}
		batch = batch[:0]
	}

	// Checked once, before any row cursor is open.
	if serr := e.checkSchema(ctx, log, reader, cfg); serr != nil {
		return res, serr
	}

	for row, rerr := range reader.ReadRows(ctx, opts.Limit) {
		if rerr != nil {
			return res, fmt.Errorf("failed to read row %d from %s: %w", res.RowsRead+1, cfg.Key(), rerr)
		}
		if cerr := ctx.Err(); cerr != nil {
			log.Info("ingestion cancelled", slog.Int("ingested", res.Ingested))
			return res, cerr
		}

		res.RowsRead++
		CounterRowsRead.WithLabelValues(cfg.ObjectTypeID).Inc()
		batch = append(batch, e.mapObject(log, cfg, row, res))

		if len(batch) >= batchSize {
			flush()
			log.Debug("batch dispatched", slog.Int("batch", res.Batches), slog.Int("ingested", res.Ingested))
			if opts.OnProgress != nil {
				opts.OnProgress(res.Ingested)
			}
		}

		// Stop pulling as soon as the limit is reached, even if the reader
		// ignores its limit argument.
		if opts.Limit > 0 && res.RowsRead >= opts.Limit {
			break
		}
	}

	if len(batch) > 0 {
		flush()
	}

	log.Info("ingestion finished",
		slog.Int("rows_read", res.RowsRead),
		slog.Int("ingested", res.Ingested),
		slog.Int("sink_failures", res.SinkFailures),
		slog.Int("batches", res.Batches))
	return res, nil
}

// IngestFromSource runs Ingest and returns only the ingested count.
func (e *Engine) IngestFromSource(ctx context.Context, reader core.SourceReader, cfg *mapping.Config, batchSize, limit int) (int, error) {
	res, err := e.Ingest(ctx, reader, cfg, IngestOptions{BatchSize: batchSize, Limit: limit})
	return res.Ingested, err
}

// checkSchema compares the mapping against the source schema.
// An unavailable schema is not an error.
func (e *Engine) checkSchema(ctx context.Context, log *slog.Logger, reader core.SourceReader, cfg *mapping.Config) error {
	schema, err := reader.Schema(ctx)
	if err != nil {
		log.Debug("source schema unavailable, skipping field check", slog.String("error", err.Error()))
		return nil
	}

	missing := mapping.CheckSchema(cfg, schema)
	if len(missing) == 0 {
		return nil
	}
	if e.strict {
		return fmt.Errorf("%w: %s", ErrUnresolvedField, strings.Join(missing, ", "))
	}
	log.Warn("mapping references fields the source does not declare",
		slog.Any("fields", missing),
		slog.Any("available", schema.Fields()))
	return nil
}
