package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned when the referenced run does not exist.
var ErrRunNotFound = errors.New("run not found")

// RunStatus tracks an analysis run through its lifecycle.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded tool invocation: profiling, modeling or code execution.
type Run struct {
	ID         string     `json:"id"`
	Tool       string     `json:"tool"`
	Dataset    string     `json:"dataset,omitempty"`
	Target     string     `json:"target,omitempty"`
	Status     RunStatus  `json:"status"`
	SessionDir string     `json:"session_dir,omitempty"`
	Error      *string    `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	DurationMS *int64     `json:"duration_ms,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NewID returns a random 32-character hex identifier.
func NewID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("generate id: %v", err))
	}
	return hex.EncodeToString(buf)
}

// InsertRun records a new run in the running state and fills its ID and
// timestamps.
func (s *Store) InsertRun(ctx context.Context, run *Run) error {
	now := time.Now().UTC()
	if run.ID == "" {
		run.ID = NewID()
	}
	run.Status = RunStatusRunning
	run.StartedAt = now
	run.CreatedAt = now
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO analysis_runs (id, tool, dataset, target, status, session_dir, error, started_at, ended_at, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL, ?, NULL, NULL, ?)
	`, run.ID, run.Tool, run.Dataset, run.Target, run.Status, run.SessionDir,
		run.StartedAt.Format(time.RFC3339Nano), run.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// MarkRunCompleted finalizes a run with its outcome. sessionDir may be empty
// for tools that produce no artifacts.
func (s *Store) MarkRunCompleted(ctx context.Context, id string, status RunStatus, sessionDir string, errMsg *string) error {
	endedAt := time.Now().UTC()
	res, err := s.DB.ExecContext(ctx, `
		UPDATE analysis_runs
		SET status = ?, session_dir = ?, error = ?, ended_at = ?,
		    duration_ms = CAST((julianday(?) - julianday(started_at)) * 86400000 AS INTEGER)
		WHERE id = ?
	`, status, sessionDir, nullableString(errMsg),
		endedAt.Format(time.RFC3339Nano), endedAt.Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("mark run completed: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun returns one run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, tool, dataset, target, status, session_dir, error, started_at, ended_at, duration_ms, created_at
		FROM analysis_runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs newest-first, optionally filtered by tool name.
func (s *Store) ListRuns(ctx context.Context, tool string, limit, offset int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, tool, dataset, target, status, session_dir, error, started_at, ended_at, duration_ms, created_at
		FROM analysis_runs
	`
	args := []any{}
	if tool != "" {
		query += ` WHERE tool = ?`
		args = append(args, tool)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

func scanRun(scanner interface {
	Scan(dest ...any) error
}) (*Run, error) {
	var (
		id         string
		tool       string
		ds         string
		target     string
		status     string
		sessionDir string
		errMsg     sql.NullString
		startedAt  string
		endedAt    sql.NullString
		durationMS sql.NullInt64
		createdAt  string
	)
	if err := scanner.Scan(&id, &tool, &ds, &target, &status, &sessionDir, &errMsg, &startedAt, &endedAt, &durationMS, &createdAt); err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run := &Run{
		ID:         id,
		Tool:       tool,
		Dataset:    ds,
		Target:     target,
		Status:     RunStatus(status),
		SessionDir: sessionDir,
		StartedAt:  mustParseTime(startedAt),
		CreatedAt:  mustParseTime(createdAt),
	}
	if errMsg.Valid {
		run.Error = &errMsg.String
	}
	if endedAt.Valid {
		t := mustParseTime(endedAt.String)
		run.EndedAt = &t
	}
	if durationMS.Valid {
		run.DurationMS = &durationMS.Int64
	}
	return run, nil
}

func mustParseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		panic(fmt.Sprintf("invalid stored time %q: %v", value, err))
	}
	return t
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
