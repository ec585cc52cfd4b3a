package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"datalab/internal/analysis"
	"datalab/internal/sandbox"
	"datalab/internal/store"
)

func testServer(t *testing.T, authToken string) (*Server, *sandbox.Workspace) {
	t.Helper()
	ws, err := sandbox.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open workspace: %v", err)
	}
	st, err := store.Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := analysis.NewService(ws, st, nil, logger, analysis.Defaults{})
	return NewServer("127.0.0.1:0", authToken, svc, nil, logger), ws
}

func writeDataset(t *testing.T, ws *sandbox.Workspace, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(ws.Root(), name), []byte(content), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := testServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestOverviewEndpoint(t *testing.T) {
	s, ws := testServer(t, "")
	writeDataset(t, ws, "people.csv", "age,city\n31,paris\n42,lyon\n")

	rec := postJSON(t, s.Handler(), "/v1/datasets/overview", `{"path":"people.csv"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var body struct {
		Rows    int `json:"rows"`
		Columns int `json:"columns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Rows != 2 || body.Columns != 2 {
		t.Errorf("rows/columns = %d/%d, want 2/2", body.Rows, body.Columns)
	}
}

func TestErrorMapping(t *testing.T) {
	s, ws := testServer(t, "")
	writeDataset(t, ws, "tiny.csv", "a,b\n1,2\n")
	var cats strings.Builder
	cats.WriteString("x,label\n")
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&cats, "%d,%s\n", i, string(rune('a'+i%2)))
	}
	writeDataset(t, ws, "cats.csv", cats.String())

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"missing dataset", "/v1/datasets/overview", `{"path":"missing.csv"}`, http.StatusNotFound},
		{"escaping path", "/v1/datasets/overview", `{"path":"../etc/passwd"}`, http.StatusBadRequest},
		{"malformed body", "/v1/datasets/overview", `{not json`, http.StatusBadRequest},
		{"unknown target", "/v1/modeling", `{"path":"tiny.csv","target":"nope"}`, http.StatusUnprocessableEntity},
		{"unknown problem type", "/v1/modeling", `{"path":"tiny.csv","target":"b","problem_type":"clustering"}`, http.StatusBadRequest},
		{"regression on text labels", "/v1/modeling", `{"path":"cats.csv","target":"label","problem_type":"regression"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, s.Handler(), tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestModelingEndpoint(t *testing.T) {
	s, ws := testServer(t, "")
	var b strings.Builder
	b.WriteString("age,label\n")
	for i := 0; i < 40; i++ {
		label := "low"
		if i >= 20 {
			label = "high"
		}
		fmt.Fprintf(&b, "%d,%s\n", i, label)
	}
	writeDataset(t, ws, "labeled.csv", b.String())

	rec := postJSON(t, s.Handler(), "/v1/modeling", `{"path":"labeled.csv","target":"label"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var body struct {
		Task       string   `json:"task"`
		Best       string   `json:"best_model"`
		SessionDir string   `json:"session_dir"`
		Artifacts  []string `json:"artifacts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Task != "classification" || body.Best == "" {
		t.Errorf("task/best = %q/%q", body.Task, body.Best)
	}
	if !strings.HasPrefix(body.SessionDir, "analysis_outputs/") || len(body.Artifacts) == 0 {
		t.Errorf("session dir/artifacts = %q/%v", body.SessionDir, body.Artifacts)
	}

	// The run shows up in the history endpoint.
	req := httptest.NewRequest(http.MethodGet, "/v1/runs/?tool=automated_modeling_workflow", nil)
	recRuns := httptest.NewRecorder()
	s.Handler().ServeHTTP(recRuns, req)
	if recRuns.Code != http.StatusOK {
		t.Fatalf("list runs status = %d", recRuns.Code)
	}
	var runsBody struct {
		Runs []struct {
			Status     string `json:"status"`
			SessionDir string `json:"session_dir"`
		} `json:"runs"`
	}
	if err := json.Unmarshal(recRuns.Body.Bytes(), &runsBody); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runsBody.Runs) != 1 || runsBody.Runs[0].Status != "succeeded" {
		t.Errorf("runs = %+v", runsBody.Runs)
	}
}

func TestGetRunNotFound(t *testing.T) {
	s, _ := testServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/v1/runs/nope", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	s, _ := testServer(t, "sekrit")

	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("bearer status = %d, want 200", rec.Code)
	}
}
