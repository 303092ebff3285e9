package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/phonograph/internal/cli/config"
	"github.com/leapstack-labs/phonograph/internal/cli/output"
	sharedcfg "github.com/leapstack-labs/phonograph/internal/config"
	"github.com/leapstack-labs/phonograph/internal/engine"
	"github.com/leapstack-labs/phonograph/internal/mapping"
	"github.com/leapstack-labs/phonograph/internal/sink"
	"github.com/leapstack-labs/phonograph/internal/state"
	"github.com/leapstack-labs/phonograph/pkg/core"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext from the loaded configuration.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}
}

// getConfig returns the current configuration, or the defaults when the
// command runs without the root command's config loading.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return config.Default()
}

// LoadMappings loads the configured mappings file.
func (c *CommandContext) LoadMappings() (*mapping.Set, error) {
	if err := c.Cfg.ValidateMappingsFile(); err != nil {
		return nil, err
	}
	return mapping.LoadFile(c.Cfg.MappingsFile, mapping.DefaultRegistry())
}

// OpenStore opens the state store, creating its directory.
func (c *CommandContext) OpenStore(ctx context.Context) (*state.SQLiteStore, error) {
	stateDir := filepath.Dir(c.Cfg.StatePath)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	return state.OpenStore(ctx, c.Cfg.StatePath, c.Logger)
}

// BuildSink returns the configured sink and a close function. The dryrun sink
// is nil: the engine counts objects and logs them at debug level.
func (c *CommandContext) BuildSink(store *state.SQLiteStore) (core.Sink, func() error, error) {
	var (
		s       core.Sink
		closeFn = func() error { return nil }
	)

	switch c.Cfg.Sink {
	case sharedcfg.SinkDryRun:
		if c.Cfg.Dedup {
			c.Logger.Warn("dedup has no effect on the dryrun sink")
		}
		return nil, closeFn, nil
	case sharedcfg.SinkLog:
		s = sink.NewLog(c.Logger, slog.LevelInfo)
	case sharedcfg.SinkJSONL:
		jl, err := sink.CreateJSONLines(c.Cfg.OutputFile)
		if err != nil {
			return nil, nil, err
		}
		s, closeFn = jl, jl.Close
	case sharedcfg.SinkStore:
		if store == nil {
			return nil, nil, fmt.Errorf("the store sink requires the state store")
		}
		s = store
	default:
		return nil, nil, fmt.Errorf("unknown sink %q (available: %s)", c.Cfg.Sink, strings.Join(sharedcfg.Sinks(), ", "))
	}

	if c.Cfg.Dedup {
		s = sink.NewDedup(s)
	}
	return s, closeFn, nil
}

// NewEngine builds an engine writing to s and recording runs in store.
func (c *CommandContext) NewEngine(s core.Sink, store *state.SQLiteStore) *engine.Engine {
	cfg := engine.Config{
		Mapper:       mapping.NewMapper(mapping.DefaultRegistry()),
		Sink:         s,
		StrictSchema: c.Cfg.StrictSchema,
		Logger:       c.Logger,
	}
	if store != nil {
		cfg.Recorder = store
	}
	return engine.New(cfg)
}

// selectMappings resolves keys against set. With all set, every mapping
// whose source type passes keep is returned.
func selectMappings(set *mapping.Set, keys []string, all bool, keep func(*mapping.Config) bool) ([]*mapping.Config, error) {
	if all {
		if len(keys) > 0 {
			return nil, fmt.Errorf("--all cannot be combined with mapping keys")
		}
		var out []*mapping.Config
		for _, m := range set.All() {
			if keep(m) {
				out = append(out, m)
			}
		}
		return out, nil
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("specify at least one mapping key, or --all\nAvailable: %s", strings.Join(set.Keys(), ", "))
	}

	out := make([]*mapping.Config, 0, len(keys))
	var missing []string
	for _, key := range keys {
		m, ok := set.Get(key)
		if !ok {
			missing = append(missing, key)
			continue
		}
		out = append(out, m)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("unknown mapping key(s): %s\nAvailable: %s",
			strings.Join(missing, ", "), strings.Join(set.Keys(), ", "))
	}
	return out, nil
}
