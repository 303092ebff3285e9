package core

import (
	"context"
	"time"
)

// RunRecorder persists the lifecycle of ingestion runs.
type RunRecorder interface {
	StartRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, run *Run) error
}

// RunMode distinguishes finite batch runs from streaming runs.
type RunMode string

// Run mode constants.
const (
	RunModeBatch  RunMode = "batch"
	RunModeStream RunMode = "stream"
)

// RunStatus represents the status of an ingestion run.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run represents one ingestion invocation.
type Run struct {
	ID           string     `json:"id"`
	MappingKey   string     `json:"mapping_key"`
	ObjectType   string     `json:"object_type"`
	SourceType   SourceType `json:"source_type"`
	Mode         RunMode    `json:"mode"`
	Status       RunStatus  `json:"status"`
	RowsRead     int64      `json:"rows_read"`
	Ingested     int64      `json:"ingested"`
	SinkFailures int64      `json:"sink_failures"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Duration returns how long the run took, or the elapsed time if still running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}
