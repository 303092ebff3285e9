package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	sharedcfg "github.com/leapstack-labs/phonograph/internal/config"
)

var (
	logFormats    = []string{"auto", "text", "json"}
	outputFormats = []string{"auto", "text", "markdown", "json"}
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.MappingsFile == "" {
		return fmt.Errorf("mappings_file is required")
	}
	if !sharedcfg.IsValidSink(c.Sink) {
		return fmt.Errorf("unknown sink %q (available: %s)", c.Sink, strings.Join(sharedcfg.Sinks(), ", "))
	}
	if c.Sink == sharedcfg.SinkJSONL && c.OutputFile == "" {
		return fmt.Errorf("output_file is required for the jsonl sink")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.Parallel <= 0 {
		return fmt.Errorf("parallel must be positive, got %d", c.Parallel)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if !slices.Contains(logFormats, c.LogFormat) {
		return fmt.Errorf("unknown log_format %q (available: %s)", c.LogFormat, strings.Join(logFormats, ", "))
	}
	if !slices.Contains(outputFormats, c.OutputFormat) {
		return fmt.Errorf("unknown output %q (available: %s)", c.OutputFormat, strings.Join(outputFormats, ", "))
	}
	return nil
}

// ValidateMappingsFile checks that the mappings file exists.
func (c *Config) ValidateMappingsFile() error {
	if _, err := os.Stat(c.MappingsFile); os.IsNotExist(err) {
		return fmt.Errorf("mappings file does not exist: %s\nHint: Create it or use --mappings to specify a different path", c.MappingsFile)
	}
	return nil
}
