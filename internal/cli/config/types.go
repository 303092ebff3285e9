// Package config provides configuration management for the Phonograph CLI.
//
// Settings are layered with koanf: built-in defaults, then phonograph.yaml,
// then PHONOGRAPH_ environment variables, then explicitly set flags.
package config

import (
	sharedcfg "github.com/leapstack-labs/phonograph/internal/config"
	"github.com/leapstack-labs/phonograph/internal/stream"
)

// StreamConfig is an alias for the consumer settings of the stream package.
type StreamConfig = stream.Config

// Config holds all CLI configuration options.
type Config struct {
	ProjectRoot  string `koanf:"-"`
	MappingsFile string `koanf:"mappings_file"`
	StatePath    string `koanf:"state_path"`
	Environment  string `koanf:"environment"`

	BatchSize    int    `koanf:"batch_size"`
	Parallel     int    `koanf:"parallel"`
	Sink         string `koanf:"sink"`
	OutputFile   string `koanf:"output_file"`
	Dedup        bool   `koanf:"dedup"`
	StrictSchema bool   `koanf:"strict_schema"`

	LogLevel     string `koanf:"log_level"`
	LogFormat    string `koanf:"log_format"`
	OutputFormat string `koanf:"output"`
	MetricsAddr  string `koanf:"metrics_addr"`

	Stream       StreamConfig         `koanf:"stream"`
	Environments map[string]EnvConfig `koanf:"environments"`
}

// EnvConfig holds environment-specific configuration overrides.
type EnvConfig struct {
	MappingsFile string        `koanf:"mappings_file"`
	StatePath    string        `koanf:"state_path"`
	Sink         string        `koanf:"sink"`
	OutputFile   string        `koanf:"output_file"`
	Stream       *StreamConfig `koanf:"stream"`
}

// Default configuration values - uses shared defaults from internal/config
const (
	DefaultMappingsFile = sharedcfg.DefaultMappingsFile
	DefaultStatePath    = sharedcfg.DefaultStatePath
	DefaultOutputFile   = sharedcfg.DefaultOutputFile
	DefaultBatchSize    = sharedcfg.DefaultBatchSize
	DefaultSink         = sharedcfg.DefaultSink
	DefaultParallel     = sharedcfg.DefaultParallel
	DefaultLogLevel     = sharedcfg.DefaultLogLevel
	DefaultLogFormat    = sharedcfg.DefaultLogFormat
	DefaultOutput       = sharedcfg.DefaultOutput
)

// Default returns the configuration used when nothing has been loaded.
func Default() *Config {
	return &Config{
		MappingsFile: DefaultMappingsFile,
		StatePath:    DefaultStatePath,
		BatchSize:    DefaultBatchSize,
		Parallel:     DefaultParallel,
		Sink:         DefaultSink,
		OutputFile:   DefaultOutputFile,
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
		OutputFormat: DefaultOutput,
	}
}
