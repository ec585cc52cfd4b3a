package session

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"datalab/internal/sandbox"
	"datalab/internal/train"
)

// ErrArtifactWrite is returned when a session artifact cannot be persisted.
// Writes are independent; a failed artifact does not roll back earlier ones.
var ErrArtifactWrite = errors.New("artifact write failed")

// OutputRoot is the workspace subdirectory holding all session directories.
const OutputRoot = "analysis_outputs"

// Session is one run's artifact directory under the workspace. All artifact
// names are joined onto the session directory, never taken as paths.
type Session struct {
	ws  *sandbox.Workspace
	dir string // workspace-relative
	abs string

	manifest []string
}

// New creates a timestamped session directory auto_run_<UTC yyyymmdd_hhmmss>
// under OutputRoot. When two runs land in the same second, the later one gets
// an _2, _3, ... suffix; creation is what claims the name, so concurrent
// callers cannot collide.
func New(ws *sandbox.Workspace, now time.Time) (*Session, error) {
	if _, err := ws.MkdirAll(OutputRoot); err != nil {
		return nil, fmt.Errorf("create output root: %w", err)
	}

	base := "auto_run_" + now.UTC().Format("20060102_150405")
	name := base
	for attempt := 2; ; attempt++ {
		rel := filepath.Join(OutputRoot, name)
		abs, err := ws.Mkdir(rel)
		if err == nil {
			return &Session{ws: ws, dir: rel, abs: abs}, nil
		}
		if !errors.Is(err, sandbox.ErrAlreadyExists) {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
		name = fmt.Sprintf("%s_%d", base, attempt)
	}
}

// Open binds a session to an explicit workspace-relative directory instead
// of a generated one, creating it if needed. Used when a caller supplies an
// artifact_subdir override.
func Open(ws *sandbox.Workspace, rel string) (*Session, error) {
	abs, err := ws.MkdirAll(rel)
	if err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &Session{ws: ws, dir: filepath.Clean(rel), abs: abs}, nil
}

// Dir returns the workspace-relative session directory.
func (s *Session) Dir() string { return s.dir }

// Manifest returns the artifact names confirmed written, in write order.
func (s *Session) Manifest() []string {
	return append([]string(nil), s.manifest...)
}

// WriteMetrics persists the modeling result as metrics.json.
func (s *Session) WriteMetrics(datasetPath string, res *train.Result) error {
	payload := struct {
		Dataset     string `json:"dataset"`
		GeneratedAt string `json:"generated_at"`
		*train.Result
	}{
		Dataset:     datasetPath,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Result:      res,
	}
	return s.WriteJSON("metrics.json", payload)
}

// WriteJSON persists v as an indented JSON artifact.
func (s *Session) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArtifactWrite, name, err)
	}
	return s.writeBytes(name, append(data, '\n'))
}

// WriteText persists a text artifact, such as a rendered report.
func (s *Session) WriteText(name, content string) error {
	return s.writeBytes(name, []byte(content))
}

// WriteGob gob-encodes v into the named artifact. Model structs keep their
// fields exported for this.
func (s *Session) WriteGob(name string, v any) error {
	f, err := os.Create(filepath.Join(s.abs, name))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArtifactWrite, name, err)
	}
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("%w: %s: %v", ErrArtifactWrite, name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArtifactWrite, name, err)
	}
	s.manifest = append(s.manifest, name)
	return nil
}

// WriteModels persists the fitted pipeline and every trained model from the
// result as gob artifacts.
func (s *Session) WriteModels(res *train.Result) error {
	if res.Pipeline != nil {
		if err := s.WriteGob("pipeline.gob", res.Pipeline); err != nil {
			return err
		}
	}
	if res.Linear != nil {
		if err := s.WriteGob("linear_regression.gob", res.Linear); err != nil {
			return err
		}
	}
	if res.Logistic != nil {
		if err := s.WriteGob("logistic_regression.gob", res.Logistic); err != nil {
			return err
		}
	}
	if res.OVR != nil {
		if err := s.WriteGob("logistic_regression.gob", res.OVR); err != nil {
			return err
		}
	}
	if res.Forest != nil {
		if err := s.WriteGob("random_forest.gob", res.Forest); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) writeBytes(name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(s.abs, name), data, 0o644); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArtifactWrite, name, err)
	}
	s.manifest = append(s.manifest, name)
	return nil
}
