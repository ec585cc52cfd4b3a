package codeexec

import (
	"context"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"testing"
	"time"

	"datalab/internal/sandbox"
)

func testEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	ws, err := sandbox.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open workspace: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(ws, logger, opts)
}

func TestRunCompleted(t *testing.T) {
	e := testEngine(t, Options{})

	res, err := e.Run(context.Background(), `print("hello from the sandbox")`, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Errorf("status = %s, want completed (stderr: %s)", res.Status, res.Stderr)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "hello from the sandbox") {
		t.Errorf("stdout = %q, want the printed line", res.Stdout)
	}
}

func TestRunException(t *testing.T) {
	e := testEngine(t, Options{})

	res, err := e.Run(context.Background(), `raise ValueError("boom")`, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusException {
		t.Errorf("status = %s, want exception", res.Status)
	}
	if res.ExitCode == 0 {
		t.Error("exit code = 0 for a raising script")
	}
	if !strings.Contains(res.Stderr, "ValueError") {
		t.Errorf("stderr = %q, want the traceback", res.Stderr)
	}
}

func TestRunTimeout(t *testing.T) {
	e := testEngine(t, Options{})

	start := time.Now()
	res, err := e.Run(context.Background(), "while True:\n    pass\n", 2*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusTimedOut {
		t.Errorf("status = %s, want timed_out", res.Status)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("took %s to stop a 2s-timeout loop", elapsed)
	}
}

func TestRunWorkingDirectoryIsWorkspace(t *testing.T) {
	e := testEngine(t, Options{})

	res, err := e.Run(context.Background(),
		"with open(\"made_by_test.txt\", \"w\") as f:\n    f.write(\"ok\")\nprint(\"done\")\n", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Fatalf("status = %s (stderr: %s)", res.Status, res.Stderr)
	}
	if _, err := e.ws.ResolveExisting("made_by_test.txt"); err != nil {
		t.Errorf("file written by script not in workspace: %v", err)
	}
}

func TestRunTruncatesOutput(t *testing.T) {
	e := testEngine(t, Options{OutputCap: 256})

	res, err := e.Run(context.Background(), `print("x" * 10000)`, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusCompleted {
		t.Fatalf("status = %s (stderr: %s)", res.Status, res.Stderr)
	}
	if !strings.Contains(res.Stdout, "[output truncated at 256 bytes]") {
		t.Errorf("stdout missing truncation marker: %q", res.Stdout)
	}
}

func TestCappedBuffer(t *testing.T) {
	b := newCappedBuffer(4)
	n, err := b.Write([]byte("abcdefgh"))
	if err != nil || n != 8 {
		t.Fatalf("Write = (%d, %v), want (8, nil)", n, err)
	}
	if got := b.String(); !strings.HasPrefix(got, "abcd") || !strings.Contains(got, "truncated") {
		t.Errorf("String() = %q", got)
	}
}
