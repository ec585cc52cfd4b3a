package codeexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"datalab/internal/sandbox"
)

// Status classifies how an execution ended.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusException Status = "exception"
	StatusTimedOut  Status = "timed_out"
)

const (
	// DefaultTimeout applies when a request does not name one.
	DefaultTimeout = 30 * time.Second
	// MaxTimeout is the hard ceiling; larger requests are clamped, not rejected.
	MaxTimeout = 60 * time.Second
	// DefaultOutputCap bounds each captured stream.
	DefaultOutputCap = 64 * 1024

	killGracePeriod = 5 * time.Second
	truncationNote  = "\n[output truncated at %d bytes]"
)

// Result describes one finished execution. Code-level failures (non-zero
// exit, timeout) live here, not in a Go error.
type Result struct {
	Status   Status        `json:"status"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration_ms"`
}

// Engine runs caller-supplied code snippets through a configured interpreter
// with the workspace root as working directory. Scripts are written to a
// private temp dir outside the workspace so executed code cannot read or
// rewrite its own source through the sandbox.
type Engine struct {
	ws          *sandbox.Workspace
	logger      *slog.Logger
	interpreter []string
	maxTimeout  time.Duration
	outputCap   int
}

// Options configures an Engine. Zero values fall back to defaults.
type Options struct {
	Interpreter []string // default {"python3", "-u"}
	MaxTimeout  time.Duration
	OutputCap   int
}

// NewEngine creates an execution engine bound to the workspace.
func NewEngine(ws *sandbox.Workspace, logger *slog.Logger, opts Options) *Engine {
	if len(opts.Interpreter) == 0 {
		opts.Interpreter = []string{"python3", "-u"}
	}
	if opts.MaxTimeout <= 0 {
		opts.MaxTimeout = MaxTimeout
	}
	if opts.OutputCap <= 0 {
		opts.OutputCap = DefaultOutputCap
	}
	return &Engine{
		ws:          ws,
		logger:      logger,
		interpreter: opts.Interpreter,
		maxTimeout:  opts.MaxTimeout,
		outputCap:   opts.OutputCap,
	}
}

// Run executes the code string and reports how it ended. A Go error means
// the engine itself failed (temp file creation, interpreter missing); the
// executed code failing is a normal Result.
func (e *Engine) Run(ctx context.Context, code string, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if timeout > e.maxTimeout {
		timeout = e.maxTimeout
	}

	scriptDir, err := os.MkdirTemp("", "datalab-exec-")
	if err != nil {
		return nil, fmt.Errorf("create script dir: %w", err)
	}
	defer os.RemoveAll(scriptDir)

	scriptPath := filepath.Join(scriptDir, "snippet.py")
	if err := os.WriteFile(scriptPath, []byte(code), 0o600); err != nil {
		return nil, fmt.Errorf("write script: %w", err)
	}

	cmdCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	args := append(append([]string(nil), e.interpreter[1:]...), scriptPath)
	cmd := exec.CommandContext(cmdCtx, e.interpreter[0], args...) // #nosec G204
	cmd.Dir = e.ws.Root()

	stdout := newCappedBuffer(e.outputCap)
	stderr := newCappedBuffer(e.outputCap)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	var timeoutTriggered atomic.Bool
	watchdog := time.AfterFunc(timeout, func() {
		timeoutTriggered.Store(true)
		e.logger.Warn("execution exceeded timeout, sending termination", "timeout", timeout)
		sendTermination(cmd.Process)
		time.AfterFunc(killGracePeriod, func() {
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
		})
	})

	started := time.Now()
	if err := cmd.Start(); err != nil {
		watchdog.Stop()
		return nil, fmt.Errorf("start interpreter: %w", err)
	}
	waitErr := cmd.Wait()
	watchdog.Stop()

	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}
	switch {
	case timeoutTriggered.Load():
		res.Status = StatusTimedOut
		res.ExitCode = -1
	case waitErr == nil:
		res.Status = StatusCompleted
	default:
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("wait for interpreter: %w", waitErr)
		}
		res.Status = StatusException
		res.ExitCode = exitErr.ExitCode()
	}
	return res, nil
}

// cappedBuffer keeps at most cap bytes and notes how much was dropped.
// Writes always report success so the child process never sees EPIPE.
type cappedBuffer struct {
	mu      sync.Mutex
	buf     strings.Builder
	cap     int
	dropped int
}

func newCappedBuffer(cap int) *cappedBuffer {
	return &cappedBuffer{cap: cap}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.cap - b.buf.Len()
	if room > 0 {
		if len(p) <= room {
			b.buf.Write(p)
			return len(p), nil
		}
		b.buf.Write(p[:room])
	}
	b.dropped += len(p) - max(room, 0)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dropped == 0 {
		return b.buf.String()
	}
	return b.buf.String() + fmt.Sprintf(truncationNote, b.cap)
}

func sendTermination(process *os.Process) {
	if process == nil {
		return
	}
	if runtime.GOOS == "windows" {
		_ = process.Kill()
		return
	}
	_ = process.Signal(syscall.SIGTERM)
}
