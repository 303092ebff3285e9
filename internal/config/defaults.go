// Package config holds project-level defaults and config file discovery
// shared by the CLI and the engine wiring.
package config

import "time"

// Default configuration values.
const (
	DefaultMappingsFile = "mappings.yaml"
	DefaultStatePath    = ".phonograph/state.db"
	DefaultOutputFile   = "objects.jsonl"
	DefaultBatchSize    = 1000
	DefaultSink         = SinkDryRun
	DefaultParallel     = 1
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "auto"
	DefaultOutput       = "auto"
	DefaultMetricsAddr  = ""
	DefaultShutdownWait = 5 * time.Second
)

// Sink names accepted by the sink setting.
const (
	SinkDryRun = "dryrun"
	SinkLog    = "log"
	SinkJSONL  = "jsonl"
	SinkStore  = "store"
)

// Sinks returns every accepted sink name.
func Sinks() []string {
	return []string{SinkDryRun, SinkLog, SinkJSONL, SinkStore}
}

// IsValidSink reports whether name is an accepted sink.
func IsValidSink(name string) bool {
	for _, s := range Sinks() {
		if s == name {
			return true
		}
	}
	return false
}
