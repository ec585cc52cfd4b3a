// Package analysis is the orchestration layer behind both transports: it
// resolves dataset paths through the sandbox, runs the profiling and
// modeling components, persists session artifacts, and records every tool
// invocation in the run history store.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"datalab/internal/codeexec"
	"datalab/internal/dataset"
	"datalab/internal/profile"
	"datalab/internal/sandbox"
	"datalab/internal/session"
	"datalab/internal/store"
	"datalab/internal/train"
)

// Defaults carries the configured modeling and profiling knobs.
type Defaults struct {
	MaxRows        int // modeling row cap
	CardinalityCap int
	SampleRows     int // overview sample size
	LoadRowLimit   int // hard row limit on dataset loads, 0 = unlimited
}

// Service executes analysis operations. One instance serves both the MCP
// and REST transports.
type Service struct {
	ws       *sandbox.Workspace
	store    *store.Store
	exec     *codeexec.Engine
	logger   *slog.Logger
	defaults Defaults
}

// NewService wires the orchestration layer.
func NewService(ws *sandbox.Workspace, st *store.Store, exec *codeexec.Engine, logger *slog.Logger, defaults Defaults) *Service {
	if defaults.SampleRows <= 0 {
		defaults.SampleRows = 10
	}
	return &Service{ws: ws, store: st, exec: exec, logger: logger, defaults: defaults}
}

// Workspace exposes the sandbox for transports that serve filesystem tools.
func (s *Service) Workspace() *sandbox.Workspace { return s.ws }

// record inserts a run-history row and returns a completion callback. Store
// failures are logged, never surfaced: history is an observability concern
// and must not fail the analysis itself.
func (s *Service) record(ctx context.Context, tool, datasetPath, target string) func(sessionDir string, err error) {
	run := &store.Run{Tool: tool, Dataset: datasetPath, Target: target}
	if err := s.store.InsertRun(ctx, run); err != nil {
		s.logger.Warn("record run", "tool", tool, "err", err)
		return func(string, error) {}
	}
	return func(sessionDir string, err error) {
		status := store.RunStatusSucceeded
		var errMsg *string
		if err != nil {
			status = store.RunStatusFailed
			msg := err.Error()
			errMsg = &msg
		}
		if err := s.store.MarkRunCompleted(ctx, run.ID, status, sessionDir, errMsg); err != nil {
			s.logger.Warn("complete run", "tool", tool, "run_id", run.ID, "err", err)
		}
	}
}

func (s *Service) load(path string) (*dataset.Dataset, error) {
	return dataset.Load(s.ws, path, s.defaults.LoadRowLimit)
}

// Overview profiles the dataset schema, stats and sample. sampleRows <= 0
// falls back to the configured default.
func (s *Service) Overview(ctx context.Context, path string, sampleRows int) (report *profile.OverviewReport, err error) {
	done := s.record(ctx, "dataset_overview", path, "")
	defer func() { done("", err) }()

	if sampleRows <= 0 {
		sampleRows = s.defaults.SampleRows
	}
	ds, err := s.load(path)
	if err != nil {
		return nil, err
	}
	return profile.Overview(ds, sampleRows)
}

// Quality reports missing values, duplicates and cardinality flags.
func (s *Service) Quality(ctx context.Context, path string) (report *profile.QualityReport, err error) {
	done := s.record(ctx, "dataset_quality_report", path, "")
	defer func() { done("", err) }()

	ds, err := s.load(path)
	if err != nil {
		return nil, err
	}
	return profile.Quality(ds)
}

// Correlation computes Pearson correlations, against a target when given.
func (s *Service) Correlation(ctx context.Context, path, target string) (report *profile.CorrelationReport, err error) {
	done := s.record(ctx, "dataset_correlation_report", path, target)
	defer func() { done("", err) }()

	ds, err := s.load(path)
	if err != nil {
		return nil, err
	}
	return profile.Correlation(ds, target)
}

// EDAReport runs overview, quality and correlation in one pass and joins
// the rendered sections.
func (s *Service) EDAReport(ctx context.Context, path, target string) (report string, err error) {
	done := s.record(ctx, "automated_eda_report", path, target)
	defer func() { done("", err) }()

	ds, err := s.load(path)
	if err != nil {
		return "", err
	}
	overview, err := profile.Overview(ds, s.defaults.SampleRows)
	if err != nil {
		return "", err
	}
	quality, err := profile.Quality(ds)
	if err != nil {
		return "", err
	}
	sections := []string{overview.Render(), quality.Render()}

	// Correlation needs two numeric columns; a dataset without them still
	// gets the rest of the report.
	corr, corrErr := profile.Correlation(ds, target)
	if corrErr != nil {
		sections = append(sections, fmt.Sprintf("## DATASET CORRELATION REPORT\n(skipped: %v)\n", corrErr))
	} else {
		sections = append(sections, corr.Render())
	}
	return strings.Join(sections, "\n"), nil
}

// ModelingRequest is one automated modeling invocation.
type ModelingRequest struct {
	Path           string
	Target         string
	TestSize       float64
	Seed           int64
	MaxRows        int
	TaskOverride   string // "classification" or "regression", empty = infer
	ArtifactSubdir string // optional explicit session dir
	SaveModels     bool
}

// ModelingOutcome bundles the result with its persisted artifacts.
type ModelingOutcome struct {
	Result     *train.Result
	Report     string
	SessionDir string
	Artifacts  []string
}

// Modeling runs the automated modeling workflow and persists the session.
func (s *Service) Modeling(ctx context.Context, req ModelingRequest) (outcome *ModelingOutcome, err error) {
	done := s.record(ctx, "automated_modeling_workflow", req.Path, req.Target)
	sessionDir := ""
	defer func() { done(sessionDir, err) }()

	ds, err := s.load(req.Path)
	if err != nil {
		return nil, err
	}

	opts := train.Options{
		TestSize:       req.TestSize,
		Seed:           req.Seed,
		MaxRows:        req.MaxRows,
		CardinalityCap: s.defaults.CardinalityCap,
		TaskOverride:   train.TaskType(req.TaskOverride),
	}
	if opts.MaxRows == 0 {
		opts.MaxRows = s.defaults.MaxRows
	}
	result, err := train.Run(ds, req.Target, opts)
	if err != nil {
		return nil, err
	}

	var sess *session.Session
	if req.ArtifactSubdir != "" {
		sess, err = session.Open(s.ws, req.ArtifactSubdir)
	} else {
		sess, err = session.New(s.ws, time.Now())
	}
	if err != nil {
		return nil, err
	}
	sessionDir = sess.Dir()

	report := result.Render()
	if err := sess.WriteMetrics(req.Path, result); err != nil {
		return nil, err
	}
	if err := sess.WriteText("report.md", report); err != nil {
		return nil, err
	}
	if req.SaveModels {
		if err := sess.WriteModels(result); err != nil {
			return nil, err
		}
	}

	s.logger.Info("modeling run complete",
		"dataset", req.Path, "target", req.Target, "task", result.Task,
		"best", result.Best, "session_dir", sessionDir)
	return &ModelingOutcome{
		Result:     result,
		Report:     report,
		SessionDir: sessionDir,
		Artifacts:  sess.Manifest(),
	}, nil
}

// Execute runs a code snippet in the sandboxed execution engine.
func (s *Service) Execute(ctx context.Context, code string, timeout time.Duration) (res *codeexec.Result, err error) {
	done := s.record(ctx, "execute_code", "", "")
	defer func() { done("", err) }()

	res, err = s.exec.Run(ctx, code, timeout)
	if err != nil {
		return nil, err
	}
	s.logger.Info("code execution finished", "status", res.Status, "duration", res.Duration)
	return res, nil
}

// ListRuns returns recorded runs, newest first.
func (s *Service) ListRuns(ctx context.Context, tool string, limit, offset int) ([]*store.Run, error) {
	return s.store.ListRuns(ctx, tool, limit, offset)
}

// GetRun returns one recorded run.
func (s *Service) GetRun(ctx context.Context, id string) (*store.Run, error) {
	return s.store.GetRun(ctx, id)
}
