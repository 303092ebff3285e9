package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/leapstack-labs/phonograph/internal/mapping"
	"github.com/leapstack-labs/phonograph/pkg/core"
	"golang.org/x/sync/errgroup"
)

// AsyncResult is delivered by IngestAsync when the run ends.
type AsyncResult struct {
	Result *Result
	Err    error
}

// IngestAsync runs Ingest on its own goroutine. The channel receives exactly
// one value and is then closed.
func (e *Engine) IngestAsync(ctx context.Context, reader core.SourceReader, cfg *mapping.Config, opts IngestOptions) <-chan AsyncResult {
	out := make(chan AsyncResult, 1)
	go func() {
		defer close(out)
		res, err := e.Ingest(ctx, reader, cfg, opts)
		out <- AsyncResult{Result: res, Err: err}
	}()
	return out
}

// Job pairs a reader with the mapping that normalizes its rows.
type Job struct {
	Reader  core.SourceReader
	Mapping *mapping.Config
}

// IngestAll runs one batch run per job, at most parallel at a time
// (parallel <= 0 means one at a time). A failing job does not cancel the
// others. Results are returned in job order; the error joins every job's
// failure. OnProgress, when set, may be called from several goroutines.
func (e *Engine) IngestAll(ctx context.Context, jobs []Job, opts IngestOptions, parallel int) ([]*Result, error) {
	if parallel <= 0 {
		parallel = 1
	}

	results := make([]*Result, len(jobs))
	errs := make([]error, len(jobs))

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, job := range jobs {
		g.Go(func() error {
			res, err := e.Ingest(ctx, job.Reader, job.Mapping, opts)
			results[i] = res
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", job.Mapping.Key(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}
