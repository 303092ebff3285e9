package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	sharedcfg "github.com/leapstack-labs/phonograph/internal/config"
	"github.com/spf13/pflag"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// EnvPrefix prefixes every environment variable the loader reads.
// A double underscore separates nesting levels:
// PHONOGRAPH_STREAM__GROUP_ID -> stream.group_id.
const EnvPrefix = "PHONOGRAPH_"

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config
)

// flagKeys maps flag names whose config key differs from the snake_case
// spelling of the flag.
var flagKeys = map[string]string{
	"state":             "state_path",
	"mappings":          "mappings_file",
	"output-file":       "output_file",
	"bootstrap-servers": "stream.bootstrap_servers",
	"group-id":          "stream.group_id",
	"offset-reset":      "stream.offset_reset",
	"backend":           "stream.backend",
}

// pathFlags are resolved against the working directory rather than the
// project root.
var pathFlags = map[string]bool{
	"state":       true,
	"mappings":    true,
	"output-file": true,
}

// inferProjectRoot determines the project root.
// Priority:
//  1. Directory of an explicit --config file
//  2. Search upward from CWD for phonograph.yaml
//  3. Current working directory
func inferProjectRoot(cfgFile string) string {
	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			return filepath.Dir(abs)
		}
	}

	cwd, _ := os.Getwd()
	if cwd == "" {
		return "."
	}
	if root := sharedcfg.FindProjectRoot(cwd); root != "" {
		return root
	}
	return cwd
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty, absolute or ":memory:".
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	return LoadConfigWithEnv(cfgFile, "", flags)
}

// LoadConfigWithEnv loads configuration and applies the overrides of the
// named environment. An empty envOverride uses the configured environment.
func LoadConfigWithEnv(cfgFile, envOverride string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")
	projectRoot := inferProjectRoot(cfgFile)

	// 1. Load defaults
	if err := k.Load(confmap.Provider(map[string]any{
		"mappings_file": DefaultMappingsFile,
		"state_path":    DefaultStatePath,
		"batch_size":    DefaultBatchSize,
		"parallel":      DefaultParallel,
		"sink":          DefaultSink,
		"output_file":   DefaultOutputFile,
		"dedup":         false,
		"strict_schema": false,
		"log_level":     DefaultLogLevel,
		"log_format":    DefaultLogFormat,
		"output":        DefaultOutput,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	if cfgFile == "" {
		cfgFile = sharedcfg.FindConfigFile(projectRoot)
	}
	configFileUsed = cfgFile
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Load environment variables
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority)
	flagPaths := map[string]string{}
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key := flagKey(f.Name)
			if pathFlags[f.Name] {
				if abs, err := filepath.Abs(f.Value.String()); err == nil {
					flagPaths[key] = abs
				}
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectRoot = projectRoot

	if envOverride != "" {
		cfg.Environment = envOverride
	}
	if err := cfg.applyEnvironment(); err != nil {
		return nil, err
	}

	// 6. Resolve relative paths. Flags are relative to CWD, everything else
	// to the project root.
	resolve := func(key string, p *string) {
		if abs, ok := flagPaths[key]; ok {
			*p = abs
			return
		}
		*p = resolvePathRelativeTo(*p, projectRoot)
	}
	resolve("mappings_file", &cfg.MappingsFile)
	resolve("state_path", &cfg.StatePath)
	resolve("output_file", &cfg.OutputFile)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	currentConfig = &cfg
	return &cfg, nil
}

// applyEnvironment merges the selected environment's overrides.
func (c *Config) applyEnvironment() error {
	if c.Environment == "" {
		return nil
	}
	envCfg, ok := c.Environments[c.Environment]
	if !ok {
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	if envCfg.MappingsFile != "" {
		c.MappingsFile = envCfg.MappingsFile
	}
	if envCfg.StatePath != "" {
		c.StatePath = envCfg.StatePath
	}
	if envCfg.Sink != "" {
		c.Sink = envCfg.Sink
	}
	if envCfg.OutputFile != "" {
		c.OutputFile = envCfg.OutputFile
	}
	if envCfg.Stream != nil {
		c.Stream = MergeStreamConfig(c.Stream, *envCfg.Stream)
	}
	return nil
}

// MergeStreamConfig merges two stream configs, with override taking precedence.
func MergeStreamConfig(base, override StreamConfig) StreamConfig {
	merged := base
	if override.Backend != "" {
		merged.Backend = override.Backend
	}
	if override.BootstrapServers != "" {
		merged.BootstrapServers = override.BootstrapServers
	}
	if override.GroupID != "" {
		merged.GroupID = override.GroupID
	}
	if override.OffsetReset != "" {
		merged.OffsetReset = override.OffsetReset
	}
	if override.AutoCommit != nil {
		merged.AutoCommit = override.AutoCommit
	}
	if override.PollTimeout > 0 {
		merged.PollTimeout = override.PollTimeout
	}
	if len(base.Extra)+len(override.Extra) > 0 {
		merged.Extra = make(map[string]any, len(base.Extra)+len(override.Extra))
		for k, v := range base.Extra {
			merged.Extra[k] = v
		}
		for k, v := range override.Extra {
			merged.Extra[k] = v
		}
	}
	return merged
}

// envKey transforms PHONOGRAPH_STREAM__GROUP_ID into stream.group_id.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// flagKey transforms a kebab-case flag name into its config key.
func flagKey(name string) string {
	if key, ok := flagKeys[name]; ok {
		return key
	}
	return strings.ReplaceAll(name, "-", "_")
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() any {
	return loggerKey{}
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}
