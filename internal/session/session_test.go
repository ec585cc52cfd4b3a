package session

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"datalab/internal/sandbox"
	"datalab/internal/train"
)

func testWorkspace(t *testing.T) *sandbox.Workspace {
	t.Helper()
	ws, err := sandbox.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open workspace: %v", err)
	}
	return ws
}

func TestNewCollisionSuffix(t *testing.T) {
	ws := testWorkspace(t)
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	first, err := New(ws, now)
	if err != nil {
		t.Fatalf("first session: %v", err)
	}
	second, err := New(ws, now)
	if err != nil {
		t.Fatalf("second session: %v", err)
	}
	third, err := New(ws, now)
	if err != nil {
		t.Fatalf("third session: %v", err)
	}

	want := filepath.Join(OutputRoot, "auto_run_20260314_092653")
	if first.Dir() != want {
		t.Errorf("first dir = %q, want %q", first.Dir(), want)
	}
	if second.Dir() != want+"_2" {
		t.Errorf("second dir = %q, want %q", second.Dir(), want+"_2")
	}
	if third.Dir() != want+"_3" {
		t.Errorf("third dir = %q, want %q", third.Dir(), want+"_3")
	}
}

func TestOpenExplicitSubdir(t *testing.T) {
	ws := testWorkspace(t)

	s, err := Open(ws, "experiments/run7")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Dir() != filepath.Join("experiments", "run7") {
		t.Errorf("dir = %q", s.Dir())
	}

	if _, err := Open(ws, "../outside"); !errors.Is(err, sandbox.ErrPathEscape) {
		t.Errorf("escaping subdir: got %v, want ErrPathEscape", err)
	}
}

func TestWriteArtifactsAndManifest(t *testing.T) {
	ws := testWorkspace(t)
	s, err := New(ws, time.Now())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.WriteJSON("metrics.json", map[string]int{"rows": 42}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if err := s.WriteText("report.md", "## AUTOMATED MODELING WORKFLOW\n"); err != nil {
		t.Fatalf("WriteText: %v", err)
	}

	want := []string{"metrics.json", "report.md"}
	if !reflect.DeepEqual(s.Manifest(), want) {
		t.Errorf("manifest = %v, want %v", s.Manifest(), want)
	}

	data, err := os.ReadFile(filepath.Join(ws.Root(), s.Dir(), "metrics.json"))
	if err != nil {
		t.Fatalf("read metrics.json: %v", err)
	}
	var decoded map[string]int
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode metrics.json: %v", err)
	}
	if decoded["rows"] != 42 {
		t.Errorf("rows = %d, want 42", decoded["rows"])
	}
}

func TestWriteGobRoundTrip(t *testing.T) {
	ws := testWorkspace(t)
	s, err := New(ws, time.Now())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	model := train.NewLinearRegression()
	model.Weights = []float64{1.5, -0.25}
	model.Bias = 0.75
	if err := s.WriteGob("linear_regression.gob", model); err != nil {
		t.Fatalf("WriteGob: %v", err)
	}

	f, err := os.Open(filepath.Join(ws.Root(), s.Dir(), "linear_regression.gob"))
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer f.Close()

	var decoded train.LinearRegression
	if err := gob.NewDecoder(f).Decode(&decoded); err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if !reflect.DeepEqual(decoded.Weights, model.Weights) || decoded.Bias != model.Bias {
		t.Errorf("decoded model = %+v, want %+v", decoded, model)
	}
}
