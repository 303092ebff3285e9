package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/leapstack-labs/phonograph/internal/cli/output"
	"github.com/leapstack-labs/phonograph/internal/mapping"
	"github.com/leapstack-labs/phonograph/pkg/core"
	"github.com/leapstack-labs/phonograph/pkg/source"
	"github.com/spf13/cobra"
)

// NewMappingsCommand creates the mappings command group.
func NewMappingsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Inspect and validate mapping configurations",
	}
	cmd.AddCommand(newMappingsListCommand())
	cmd.AddCommand(newMappingsValidateCommand())
	return cmd
}

func newMappingsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the mappings of the mappings file",
		Example: `  phonograph mappings list
  phonograph mappings list --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContext(cmd)
			set, err := cc.LoadMappings()
			if err != nil {
				return err
			}
			return renderMappings(cc.Renderer, set)
		},
	}
}

type mappingInfo struct {
	Key        string   `json:"key"`
	ObjectType string   `json:"object_type"`
	SourceType string   `json:"source_type"`
	Driver     string   `json:"driver,omitempty"`
	PrimaryKey string   `json:"primary_key"`
	Properties []string `json:"properties"`
}

func describeMapping(m *mapping.Config) mappingInfo {
	info := mappingInfo{
		Key:        m.Key(),
		ObjectType: m.ObjectTypeID,
		SourceType: string(m.SourceType),
		PrimaryKey: m.PrimaryKeyMapping.SourceField,
	}
	if d, err := source.DriverFor(m.SourceType, m.SourceConfig); err == nil {
		info.Driver = d
	}
	for _, pm := range m.PropertyMappings {
		p := pm.SourceField + "->" + pm.TargetProperty
		if pm.Transformation != "" {
			p += " (" + pm.Transformation + ")"
		}
		info.Properties = append(info.Properties, p)
	}
	return info
}

func renderMappings(r *output.Renderer, set *mapping.Set) error {
	infos := make([]mappingInfo, 0, set.Len())
	for _, m := range set.All() {
		infos = append(infos, describeMapping(m))
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(infos)
	}

	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, []string{
			info.Key, info.ObjectType, info.SourceType, info.Driver, info.PrimaryKey,
			fmt.Sprintf("%d", len(info.Properties)),
		})
	}
	r.Header(1, fmt.Sprintf("Mappings (%d total)", len(infos)))
	r.Table([]string{"KEY", "OBJECT TYPE", "SOURCE", "DRIVER", "PRIMARY KEY", "PROPERTIES"}, rows)
	return nil
}

// ValidateOptions holds options for mappings validate.
type ValidateOptions struct {
	Connect bool
	Watch   bool
}

func newMappingsValidateCommand() *cobra.Command {
	opts := &ValidateOptions{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the mappings file",
		Long: `Load the mappings file and report configuration errors: unknown source
types or transformations, missing fields, duplicate keys.

With --connect every batch source is opened and the fields each mapping reads
are checked against the source schema. With --watch validation re-runs
whenever the file changes.`,
		Example: `  phonograph mappings validate
  phonograph mappings validate --connect
  phonograph mappings validate --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContext(cmd)
			if opts.Watch {
				return watchMappings(cmd.Context(), cc, opts)
			}
			return validateMappings(cmd.Context(), cc, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Connect, "connect", false, "Connect to each source and check its schema")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "Re-validate when the mappings file changes")
	return cmd
}

func validateMappings(ctx context.Context, cc *CommandContext, opts *ValidateOptions) error {
	r := cc.Renderer
	set, err := cc.LoadMappings()
	if err != nil {
		r.Error(err.Error())
		return err
	}
	r.Success(fmt.Sprintf("%s: %s valid", filepath.Base(cc.Cfg.MappingsFile), output.FormatCount(set.Len(), "mapping")))

	if !opts.Connect {
		return nil
	}

	var problems []string
	for _, m := range set.All() {
		if m.SourceType == core.SourceTypeStream {
			continue
		}
		unresolved, err := checkSource(ctx, cc.Logger, m)
		switch {
		case err != nil:
			problems = append(problems, fmt.Sprintf("%s: %v", m.Key(), err))
		case len(unresolved) > 0:
			problems = append(problems, fmt.Sprintf("%s: source does not declare %s", m.Key(), strings.Join(unresolved, ", ")))
		default:
			r.Success(m.Key() + ": source schema resolves every field")
		}
	}
	if len(problems) > 0 {
		for _, p := range problems {
			r.Error(p)
		}
		return fmt.Errorf("%s failed validation", output.FormatCount(len(problems), "mapping"))
	}
	return nil
}

// checkSource connects to the mapping's source and returns the fields the
// mapping reads that the source schema lacks.
func checkSource(ctx context.Context, logger *slog.Logger, m *mapping.Config) (unresolved []string, err error) {
	reader, err := source.Open(m.SourceType, m.SourceConfig, logger)
	if err != nil {
		return nil, err
	}
	if err := reader.Connect(ctx); err != nil {
		_ = reader.Disconnect()
		return nil, err
	}
	defer func() { _ = reader.Disconnect() }()

	schema, err := reader.Schema(ctx)
	if err != nil {
		return nil, err
	}
	return mapping.CheckSchema(m, schema), nil
}

// watchMappings validates on start and after every write to the mappings
// file until ctx is cancelled.
func watchMappings(ctx context.Context, cc *CommandContext, opts *ValidateOptions) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	// Editors replace files on save; watch the directory.
	path := filepath.Clean(cc.Cfg.MappingsFile)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	_ = validateMappings(ctx, cc, opts)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, func() {
				cc.Logger.Debug("mappings file changed", slog.String("file", event.Name))
				_ = validateMappings(ctx, cc, opts)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			cc.Logger.Error("watcher error", slog.Any("error", err))
		}
	}
}
