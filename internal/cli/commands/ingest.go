package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/leapstack-labs/phonograph/internal/cli/output"
	"github.com/leapstack-labs/phonograph/internal/engine"
	"github.com/leapstack-labs/phonograph/internal/mapping"
	"github.com/leapstack-labs/phonograph/pkg/core"
	"github.com/leapstack-labs/phonograph/pkg/source"
	"github.com/spf13/cobra"
)

// IngestOptions holds options for the ingest command.
type IngestOptions struct {
	All   bool
	Limit int
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand() *cobra.Command {
	opts := &IngestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest [key...]",
		Short: "Run batch ingestion for one or more mappings",
		Long: `Read every row of each selected mapping's source, normalize it into an
object and hand it to the configured sink.

Mappings are selected by key (source_config.identifier, or object_type_id).
--all selects every non-stream mapping. Runs are recorded in the state store.`,
		Example: `  # Dry run a single mapping
  phonograph ingest households

  # Write the first 100 objects of every mapping to JSON Lines
  phonograph ingest --all --limit 100 --sink jsonl --output-file out/objects.jsonl

  # Store objects, skipping duplicate primary keys, four mappings at a time
  phonograph ingest --all --sink store --dedup --parallel 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "Ingest every batch mapping")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum rows read per mapping (0 reads everything)")
	cmd.Flags().Int("batch-size", 0, "Objects per dispatched batch")
	cmd.Flags().String("sink", "", "Sink for objects (dryrun|log|jsonl|store)")
	cmd.Flags().String("output-file", "", "Output path for the jsonl sink")
	cmd.Flags().Bool("dedup", false, "Drop objects whose primary key was already ingested")
	cmd.Flags().Int("parallel", 0, "Mappings ingested concurrently")
	cmd.Flags().Bool("strict-schema", false, "Fail runs whose mapping reads fields the source does not declare")

	_ = cmd.RegisterFlagCompletionFunc("sink", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"dryrun", "log", "jsonl", "store"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runIngest(cmd *cobra.Command, args []string, opts *IngestOptions) error {
	cc := NewCommandContext(cmd)
	ctx := cmd.Context()

	set, err := cc.LoadMappings()
	if err != nil {
		return err
	}

	selected, err := selectMappings(set, args, opts.All, func(m *mapping.Config) bool {
		if m.SourceType == core.SourceTypeStream {
			cc.Logger.Info("skipping stream mapping", slog.String("mapping", m.Key()))
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		cc.Renderer.Warning("no batch mappings to ingest")
		return nil
	}

	jobs := make([]engine.Job, 0, len(selected))
	for _, m := range selected {
		if m.SourceType == core.SourceTypeStream {
			return fmt.Errorf("mapping %s reads a stream\nHint: Use 'phonograph stream %s'", m.Key(), m.Key())
		}
		reader, err := source.Open(m.SourceType, m.SourceConfig, cc.Logger.With(slog.String("mapping", m.Key())))
		if err != nil {
			return fmt.Errorf("mapping %s: %w", m.Key(), err)
		}
		jobs = append(jobs, engine.Job{Reader: reader, Mapping: m})
	}

	store, err := cc.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	s, closeSink, err := cc.BuildSink(store)
	if err != nil {
		return err
	}

	eng := cc.NewEngine(s, store)
	start := time.Now()
	results, runErr := eng.IngestAll(ctx, jobs, engine.IngestOptions{
		BatchSize: cc.Cfg.BatchSize,
		Limit:     opts.Limit,
		OnProgress: func(n int) {
			cc.Logger.Debug("progress", slog.Int("ingested", n))
		},
	}, cc.Cfg.Parallel)

	if err := closeSink(); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("failed to close sink: %w", err))
	}

	if err := renderIngestResults(cc.Renderer, selected, results, time.Since(start)); err != nil {
		return err
	}
	return runErr
}

// ingestSummary is the JSON form of one mapping's run.
type ingestSummary struct {
	Mapping      string `json:"mapping"`
	ObjectType   string `json:"object_type"`
	RunID        string `json:"run_id"`
	RowsRead     int    `json:"rows_read"`
	Ingested     int    `json:"ingested"`
	SinkFailures int    `json:"sink_failures"`
	Fallbacks    int    `json:"fallbacks"`
	EmptyKeys    int    `json:"empty_keys"`
}

func renderIngestResults(r *output.Renderer, mappings []*mapping.Config, results []*engine.Result, elapsed time.Duration) error {
	summaries := make([]ingestSummary, 0, len(mappings))
	total := 0
	for i, m := range mappings {
		sum := ingestSummary{Mapping: m.Key(), ObjectType: m.ObjectTypeID}
		if i < len(results) && results[i] != nil {
			res := results[i]
			sum.RunID = res.RunID
			sum.RowsRead = res.RowsRead
			sum.Ingested = res.Ingested
			sum.SinkFailures = res.SinkFailures
			sum.Fallbacks = res.Fallbacks
			sum.EmptyKeys = res.EmptyKeys
		}
		total += sum.Ingested
		summaries = append(summaries, sum)
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(summaries)
	}

	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			s.Mapping, s.ObjectType,
			strconv.Itoa(s.RowsRead), strconv.Itoa(s.Ingested),
			strconv.Itoa(s.SinkFailures), strconv.Itoa(s.Fallbacks), strconv.Itoa(s.EmptyKeys),
			s.RunID,
		})
	}
	r.Header(1, "Ingestion")
	r.Table([]string{"MAPPING", "OBJECT TYPE", "ROWS", "INGESTED", "FAILURES", "FALLBACKS", "EMPTY KEYS", "RUN"}, rows)
	r.Success(fmt.Sprintf("%s from %s in %s",
		output.FormatCount(total, "object"), output.FormatCount(len(mappings), "mapping"), elapsed.Round(time.Millisecond)))
	return nil
}
