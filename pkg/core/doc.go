// Package core defines the shared language of the Phonograph ingestion system.
//
// This package contains:
//   - Data entities (Row, Schema, Properties, Object, Run)
//   - Capability interfaces (SourceReader, Sink, RunRecorder)
//   - Source configuration (SourceType, SourceConfig)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
