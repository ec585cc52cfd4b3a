package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"datalab/internal/analysis"
	"datalab/internal/dataset"
	"datalab/internal/pipeline"
	"datalab/internal/profile"
	"datalab/internal/sandbox"
	"datalab/internal/store"
	"datalab/internal/train"

	"github.com/go-chi/chi/v5"
)

type datasetRequest struct {
	Path       string `json:"path"`
	Target     string `json:"target,omitempty"`
	SampleRows int    `json:"sample_rows,omitempty"`
}

type reportResponse struct {
	Report string `json:"report"`
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	var req datasetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	report, err := s.svc.Overview(r.Context(), req.Path, req.SampleRows)
	if err != nil {
		s.writeAnalysisError(w, "dataset overview", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	var req datasetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	report, err := s.svc.Quality(r.Context(), req.Path)
	if err != nil {
		s.writeAnalysisError(w, "quality report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	var req datasetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	report, err := s.svc.Correlation(r.Context(), req.Path, req.Target)
	if err != nil {
		s.writeAnalysisError(w, "correlation report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleEDA(w http.ResponseWriter, r *http.Request) {
	var req datasetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	report, err := s.svc.EDAReport(r.Context(), req.Path, req.Target)
	if err != nil {
		s.writeAnalysisError(w, "eda report", err)
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{Report: report})
}

type modelingRequest struct {
	Path           string  `json:"path"`
	Target         string  `json:"target"`
	ProblemType    string  `json:"problem_type,omitempty"`
	TestSize       float64 `json:"test_size,omitempty"`
	Seed           int64   `json:"seed,omitempty"`
	MaxRows        int     `json:"max_rows,omitempty"`
	ArtifactSubdir string  `json:"artifact_subdir,omitempty"`
	SaveModels     bool    `json:"save_models,omitempty"`
}

type modelingResponse struct {
	*train.Result
	Report     string   `json:"report"`
	SessionDir string   `json:"session_dir"`
	Artifacts  []string `json:"artifacts"`
}

func (s *Server) handleModeling(w http.ResponseWriter, r *http.Request) {
	var req modelingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	outcome, err := s.svc.Modeling(r.Context(), analysis.ModelingRequest{
		Path:           req.Path,
		Target:         req.Target,
		TaskOverride:   req.ProblemType,
		TestSize:       req.TestSize,
		Seed:           req.Seed,
		MaxRows:        req.MaxRows,
		ArtifactSubdir: req.ArtifactSubdir,
		SaveModels:     req.SaveModels,
	})
	if err != nil {
		s.writeAnalysisError(w, "modeling workflow", err)
		return
	}
	writeJSON(w, http.StatusOK, modelingResponse{
		Result:     outcome.Result,
		Report:     outcome.Report,
		SessionDir: outcome.SessionDir,
		Artifacts:  outcome.Artifacts,
	})
}

type executeRequest struct {
	Code           string  `json:"code"`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "code must not be empty")
		return
	}
	timeout := time.Duration(req.TimeoutSeconds * float64(time.Second))
	res, err := s.svc.Execute(r.Context(), req.Code, timeout)
	if err != nil {
		s.logger.Error("execute code", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "execution engine failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	tool := r.URL.Query().Get("tool")
	limit := parseIntDefault(r.URL.Query().Get("limit"), 0)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

	runs, err := s.svc.ListRuns(r.Context(), tool, limit, offset)
	if err != nil {
		s.logger.Error("list runs", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := s.svc.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "run not found")
		} else {
			s.logger.Error("get run", "run_id", runID, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load run")
		}
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// writeAnalysisError maps domain sentinel errors onto HTTP statuses.
func (s *Server) writeAnalysisError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, dataset.ErrNotFound) || errors.Is(err, sandbox.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, sandbox.ErrPathEscape):
		writeError(w, http.StatusBadRequest, "path_escape", err.Error())
	case errors.Is(err, dataset.ErrUnsupportedFormat),
		errors.Is(err, dataset.ErrIsDirectory),
		errors.Is(err, dataset.ErrParse):
		writeError(w, http.StatusBadRequest, "invalid_dataset", err.Error())
	case errors.Is(err, train.ErrInvalidTaskType):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, profile.ErrInsufficientData),
		errors.Is(err, profile.ErrTargetMissing),
		errors.Is(err, profile.ErrTargetNotNumeric),
		errors.Is(err, pipeline.ErrNoUsableFeatures),
		errors.Is(err, train.ErrTargetMissing),
		errors.Is(err, train.ErrTargetNotNumeric),
		errors.Is(err, train.ErrInsufficientRows):
		writeError(w, http.StatusUnprocessableEntity, "invalid_analysis", err.Error())
	default:
		s.logger.Error(op, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", op+" failed")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return false
	}
	return true
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}
