package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/phonograph/internal/mapping"
	"github.com/leapstack-labs/phonograph/internal/stream"
	"github.com/leapstack-labs/phonograph/pkg/core"
)

// StreamFromSource consumes topic until Stop is called or ctx is cancelled,
// mapping each JSON message with cfg and dispatching it to the sink.
//
// Malformed payloads are logged and skipped. Transient transport errors are
// logged and polling continues. The consumer is always closed before
// returning; a fatal transport error is returned after the close.
func (e *Engine) StreamFromSource(ctx context.Context, topic string, cfg *mapping.Config, sc stream.Config) (err error) {
	if e.newConsumer == nil {
		return ErrStreamingUnavailable
	}
	if !e.active.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.active.Store(false)

	// Running from here on: a Stop during consumer setup is seen by the
	// first loop iteration.
	e.running.Store(true)

	sc = sc.WithDefaults()
	consumer, err := e.newConsumer(sc, e.logger)
	if err != nil {
		e.running.Store(false)
		if errors.Is(err, stream.ErrUnavailable) {
			return fmt.Errorf("%w: %w", ErrStreamingUnavailable, err)
		}
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	run := e.startRun(ctx, cfg, core.RunModeStream)
	res := &Result{RunID: run.ID}
	log := e.logger.With(slog.String("run_id", run.ID), slog.String("topic", topic), slog.String("mapping", cfg.Key()))

	GaugeStreamRunning.Inc()
	stopped := false

	defer func() {
		e.running.Store(false)
		GaugeStreamRunning.Dec()
		if cerr := consumer.Close(); cerr != nil {
			log.Warn("failed to close consumer", slog.String("error", cerr.Error()))
			err = errors.Join(err, cerr)
		}

		status := core.RunStatusCompleted
		switch {
		case err != nil:
			status = core.RunStatusFailed
		case !stopped:
			status = core.RunStatusCancelled
		}
		e.finishRun(ctx, run, res, status, err)
		log.Info("stream stopped",
			slog.Int("messages", res.RowsRead),
			slog.Int("ingested", res.Ingested),
			slog.Int("skipped", res.Skipped),
			slog.Int("sink_failures", res.SinkFailures))
	}()

	if err := consumer.Subscribe(topic); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	log.Info("streaming",
		slog.String("bootstrap_servers", sc.BootstrapServers),
		slog.String("group_id", sc.GroupID),
		slog.String("offset_reset", sc.OffsetReset))

	for {
		if !e.running.Load() {
			stopped = true
			return nil
		}
		if ctx.Err() != nil {
			log.Info("stream interrupted")
			return nil
		}

		ev, perr := consumer.Poll(ctx, sc.PollTimeout)
		if perr != nil {
			switch {
			case stream.IsTransient(perr):
				log.Warn("transient stream error", slog.String("error", perr.Error()))
				continue
			case ctx.Err() != nil && errors.Is(perr, ctx.Err()):
				log.Info("stream interrupted")
				return nil
			default:
				return fmt.Errorf("stream transport failed: %w", perr)
			}
		}

		switch ev := ev.(type) {
		case nil:
		case stream.PartitionEOF:
			log.Debug("reached end of partition", slog.Int("partition", int(ev.Partition)), slog.Int64("offset", ev.Offset))
		case *stream.Message:
			e.handleMessage(ctx, log, cfg, ev, res)
		}
	}
}

func (e *Engine) handleMessage(ctx context.Context, log *slog.Logger, cfg *mapping.Config, msg *stream.Message, res *Result) {
	row, err := core.DecodeRow(msg.Value)
	if err != nil {
		res.Skipped++
		CounterMessagesSkipped.WithLabelValues(msg.Topic).Inc()
		log.Warn("skipping malformed message",
			slog.Int("partition", int(msg.Partition)),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()))
		return
	}

	res.RowsRead++
	CounterRowsRead.WithLabelValues(cfg.ObjectTypeID).Inc()
	e.dispatch(ctx, log, e.mapObject(log, cfg, row, res), res)
}

// Stop asks the streaming loop to exit. It is observed at the top of the
// next iteration; a message being processed is finished first.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// Running reports whether a streaming loop is active and not asked to stop.
func (e *Engine) Running() bool {
	return e.running.Load()
}
