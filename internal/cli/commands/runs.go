package commands

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/leapstack-labs/phonograph/internal/cli/output"
	"github.com/leapstack-labs/phonograph/internal/state"
	"github.com/leapstack-labs/phonograph/pkg/core"
	"github.com/spf13/cobra"
)

// RunsOptions holds options for the runs command.
type RunsOptions struct {
	Mapping string
	Status  string
	Last    int
}

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	opts := &RunsOptions{}
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show ingestion run history",
		Example: `  phonograph runs
  phonograph runs --mapping households --status failed
  phonograph runs --last 5 --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRuns(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Mapping, "mapping", "", "Only runs of this mapping key")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Only runs with this status (running|completed|failed|cancelled)")
	cmd.Flags().IntVar(&opts.Last, "last", 20, "Number of runs to show (0 shows all)")
	return cmd
}

func runRuns(cmd *cobra.Command, opts *RunsOptions) error {
	cc := NewCommandContext(cmd)
	store, err := cc.OpenStore(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(cmd.Context(), state.RunFilter{
		MappingKey: opts.Mapping,
		Status:     core.RunStatus(opts.Status),
		Limit:      opts.Last,
	})
	if err != nil {
		return err
	}
	return renderRuns(cc.Renderer, runs)
}

func renderRuns(r *output.Renderer, runs []*core.Run) error {
	if r.EffectiveMode() == output.ModeJSON {
		if runs == nil {
			runs = []*core.Run{}
		}
		return r.JSON(runs)
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		duration := "-"
		if run.CompletedAt != nil {
			duration = run.Duration().Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			run.ID, run.MappingKey, string(run.Mode), string(run.Status),
			strconv.FormatInt(run.RowsRead, 10), strconv.FormatInt(run.Ingested, 10),
			strconv.FormatInt(run.SinkFailures, 10),
			run.StartedAt.Local().Format(time.DateTime), duration,
		})
	}
	r.Header(1, fmt.Sprintf("Runs (%d)", len(runs)))
	r.Table([]string{"RUN", "MAPPING", "MODE", "STATUS", "ROWS", "INGESTED", "FAILURES", "STARTED", "DURATION"}, rows)
	return nil
}

// NewObjectsCommand creates the objects command.
func NewObjectsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "objects [object-type primary-key]",
		Short: "Show objects written by the store sink",
		Long: `Without arguments, list how many objects of each type the state store
holds. With an object type and primary key, print that object.`,
		Example: `  phonograph objects
  phonograph objects household 1200`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected no arguments or <object-type> <primary-key>")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := NewCommandContext(cmd)
			store, err := cc.OpenStore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if len(args) == 2 {
				obj, err := store.GetObject(cmd.Context(), args[0], args[1])
				if errors.Is(err, state.ErrObjectNotFound) {
					return fmt.Errorf("%w\nHint: Objects are only stored by runs with --sink store", err)
				}
				if err != nil {
					return err
				}
				return cc.Renderer.JSON(map[string]any{
					"object_type": obj.Type,
					"primary_key": obj.PrimaryKey,
					"version":     obj.Version,
					"updated_at":  obj.UpdatedAt,
					"properties":  obj.Properties,
				})
			}

			counts, err := store.CountObjects(cmd.Context())
			if err != nil {
				return err
			}
			r := cc.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				if counts == nil {
					counts = []state.ObjectCount{}
				}
				return r.JSON(counts)
			}
			rows := make([][]string, 0, len(counts))
			for _, c := range counts {
				rows = append(rows, []string{c.ObjectType, strconv.FormatInt(c.Count, 10)})
			}
			r.Header(1, "Stored objects")
			r.Table([]string{"OBJECT TYPE", "COUNT"}, rows)
			return nil
		},
	}
	return cmd
}
