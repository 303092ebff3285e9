package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/phonograph/pkg/core"
)

// ErrRunNotFound is returned by GetRun for unknown IDs.
var ErrRunNotFound = errors.New("run not found")

// StartRun inserts a run in its initial state.
func (s *SQLiteStore) StartRun(ctx context.Context, run *core.Run) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	s.logger.Debug("recording run", slog.String("id", run.ID), slog.String("mapping", run.MappingKey))

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, mapping_key, object_type, source_type, mode, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.MappingKey, run.ObjectType, string(run.SourceType), string(run.Mode),
		string(run.Status), formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun stores the final status and counters of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, run *core.Run) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	var completedAt, errMsg sql.NullString
	if run.CompletedAt != nil {
		completedAt = sql.NullString{String: formatTime(*run.CompletedAt), Valid: true}
	}
	if run.Error != "" {
		errMsg = sql.NullString{String: run.Error, Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, rows_read = ?, ingested = ?, sink_failures = ?, completed_at = ?, error = ?
		 WHERE id = ?`,
		string(run.Status), run.RowsRead, run.Ingested, run.SinkFailures, completedAt, errMsg, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	return nil
}

const runColumns = `id, mapping_key, object_type, source_type, mode, status,
	rows_read, ingested, sink_failures, started_at, completed_at, error`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*core.Run, error) {
	var (
		run                     core.Run
		sourceType, mode, stat  string
		startedAt               string
		completedAt, errMessage sql.NullString
	)
	if err := row.Scan(&run.ID, &run.MappingKey, &run.ObjectType, &sourceType, &mode, &stat,
		&run.RowsRead, &run.Ingested, &run.SinkFailures, &startedAt, &completedAt, &errMessage); err != nil {
		return nil, err
	}

	run.SourceType = core.SourceType(sourceType)
	run.Mode = core.RunMode(mode)
	run.Status = core.RunStatus(stat)
	t, err := parseTime(startedAt)
	if err != nil {
		return nil, err
	}
	run.StartedAt = t
	if completedAt.Valid {
		ct, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		run.CompletedAt = &ct
	}
	run.Error = errMessage.String
	return &run, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	MappingKey string
	Status     core.RunStatus
	// Limit caps the result; <= 0 returns every run.
	Limit int
}

// ListRuns returns runs, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]*core.Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	var (
		where []string
		args  []any
	)
	if filter.MappingKey != "" {
		where = append(where, "mapping_key = ?")
		args = append(args, filter.MappingKey)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*core.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

var _ core.RunRecorder = (*SQLiteStore)(nil)
