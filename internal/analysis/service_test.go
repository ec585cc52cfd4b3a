package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"datalab/internal/dataset"
	"datalab/internal/sandbox"
	"datalab/internal/store"
)

func testService(t *testing.T) *Service {
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
	return NewService(ws, st, nil, logger, Defaults{})
}

func writeFixture(t *testing.T, s *Service, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(s.ws.Root(), name), []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

func modelingFixture() string {
	var b strings.Builder
	b.WriteString("age,city,label\n")
	for i := 0; i < 40; i++ {
		label := "low"
		if i >= 20 {
			label = "high"
		}
		fmt.Fprintf(&b, "%d,paris,%s\n", i, label)
	}
	return b.String()
}

func TestOverviewRecordsHistory(t *testing.T) {
	s := testService(t)
	writeFixture(t, s, "people.csv", "age,city\n31,paris\n42,lyon\n")

	report, err := s.Overview(context.Background(), "people.csv", 0)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if report.Rows != 2 || report.Columns != 2 {
		t.Errorf("rows/columns = %d/%d, want 2/2", report.Rows, report.Columns)
	}

	small, err := s.Overview(context.Background(), "people.csv", 1)
	if err != nil {
		t.Fatalf("Overview with sample size: %v", err)
	}
	if len(small.Sample) != 1 {
		t.Errorf("sample rows = %d, want 1", len(small.Sample))
	}

	runs, err := s.ListRuns(context.Background(), "dataset_overview", 0, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].Status != store.RunStatusSucceeded || runs[0].Dataset != "people.csv" {
		t.Errorf("run = %+v", runs[0])
	}
}

func TestFailureRecordedInHistory(t *testing.T) {
	s := testService(t)

	if _, err := s.Overview(context.Background(), "missing.csv", 0); !errors.Is(err, dataset.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}

	runs, err := s.ListRuns(context.Background(), "dataset_overview", 0, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != store.RunStatusFailed {
		t.Fatalf("expected one failed run, got %+v", runs)
	}
	if runs[0].Error == nil {
		t.Error("failed run carries no error message")
	}
}

func TestEDAReportSections(t *testing.T) {
	s := testService(t)
	writeFixture(t, s, "sales.csv", "price,qty\n10,1\n20,2\n30,3\n40,4\n")

	report, err := s.EDAReport(context.Background(), "sales.csv", "")
	if err != nil {
		t.Fatalf("EDAReport: %v", err)
	}
	for _, section := range []string{
		"## DATASET OVERVIEW",
		"## DATASET QUALITY REPORT",
		"## DATASET CORRELATION REPORT",
	} {
		if !strings.Contains(report, section) {
			t.Errorf("report missing section %q", section)
		}
	}
}

func TestModelingPersistsArtifacts(t *testing.T) {
	s := testService(t)
	writeFixture(t, s, "labeled.csv", modelingFixture())

	outcome, err := s.Modeling(context.Background(), ModelingRequest{
		Path:       "labeled.csv",
		Target:     "label",
		SaveModels: true,
	})
	if err != nil {
		t.Fatalf("Modeling: %v", err)
	}
	if !strings.HasPrefix(outcome.SessionDir, "analysis_outputs/auto_run_") {
		t.Errorf("session dir = %q", outcome.SessionDir)
	}
	if !strings.Contains(outcome.Report, "## AUTOMATED MODELING WORKFLOW") {
		t.Error("report missing workflow header")
	}

	found := map[string]bool{}
	for _, a := range outcome.Artifacts {
		found[a] = true
	}
	for _, want := range []string{"metrics.json", "report.md", "pipeline.gob", "random_forest.gob"} {
		if !found[want] {
			t.Errorf("artifact %q missing from manifest %v", want, outcome.Artifacts)
		}
		if _, err := os.Stat(filepath.Join(s.ws.Root(), outcome.SessionDir, want)); err != nil {
			t.Errorf("artifact %q not on disk: %v", want, err)
		}
	}

	runs, err := s.ListRuns(context.Background(), "automated_modeling_workflow", 0, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].SessionDir != outcome.SessionDir {
		t.Errorf("history run = %+v, want session dir %q", runs, outcome.SessionDir)
	}
}

func TestModelingArtifactSubdirOverride(t *testing.T) {
	s := testService(t)
	writeFixture(t, s, "labeled.csv", modelingFixture())

	outcome, err := s.Modeling(context.Background(), ModelingRequest{
		Path:           "labeled.csv",
		Target:         "label",
		ArtifactSubdir: "experiments/run1",
	})
	if err != nil {
		t.Fatalf("Modeling: %v", err)
	}
	if outcome.SessionDir != filepath.Join("experiments", "run1") {
		t.Errorf("session dir = %q, want experiments/run1", outcome.SessionDir)
	}

	_, err = s.Modeling(context.Background(), ModelingRequest{
		Path:           "labeled.csv",
		Target:         "label",
		ArtifactSubdir: "../outside",
	})
	if !errors.Is(err, sandbox.ErrPathEscape) {
		t.Errorf("escaping subdir: got %v, want ErrPathEscape", err)
	}
}

func TestFileTools(t *testing.T) {
	s := testService(t)

	if err := s.WriteFile("notes/readme.txt", "hello world"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	content, truncated, err := s.ReadFile("notes/readme.txt", 0)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if content != "hello world" || truncated {
		t.Errorf("ReadFile = (%q, %v)", content, truncated)
	}

	short, truncated, err := s.ReadFile("notes/readme.txt", 5)
	if err != nil {
		t.Fatalf("ReadFile with limit: %v", err)
	}
	if short != "hello" || !truncated {
		t.Errorf("limited ReadFile = (%q, %v), want (hello, true)", short, truncated)
	}

	entries, err := s.ListFiles("")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "notes" || !entries[0].IsDir {
		t.Errorf("entries = %+v", entries)
	}

	if err := s.WriteFile("../escape.txt", "nope"); !errors.Is(err, sandbox.ErrPathEscape) {
		t.Errorf("escaping write: got %v, want ErrPathEscape", err)
	}
	if _, _, err := s.ReadFile("missing.txt", 0); !errors.Is(err, sandbox.ErrNotFound) {
		t.Errorf("missing read: got %v, want ErrNotFound", err)
	}
}
