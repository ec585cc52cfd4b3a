package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrPathEscape is returned when a resolved path falls outside the workspace root.
	ErrPathEscape = errors.New("path escapes workspace root")
	// ErrNotFound is returned when a required path or its parent does not exist.
	ErrNotFound = errors.New("path not found")
	// ErrAlreadyExists is returned by Mkdir when the directory already exists.
	ErrAlreadyExists = errors.New("path already exists")
)

// Workspace confines all file operations to a single root directory.
// Every component that touches the filesystem resolves its paths through
// this type; none of them build absolute paths on their own.
type Workspace struct {
	root string
}

// Open creates the workspace root if needed and returns a Workspace bound to
// its symlink-resolved absolute path. A root that cannot be created or
// resolved is a fatal startup condition for the caller.
func Open(root string) (*Workspace, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("ensure workspace root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root symlinks: %w", err)
	}
	return &Workspace{root: resolved}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// Resolve maps a caller-supplied relative path to an absolute path and
// verifies the result stays under the root. The check runs after all "."
// and ".." segments and any symlinked ancestors are resolved; it is an
// ancestry test, not a string-prefix comparison on the raw input.
func (w *Workspace) Resolve(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		rel = "."
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: absolute path %q", ErrPathEscape, rel)
	}
	candidate := filepath.Clean(filepath.Join(w.root, rel))
	resolved, err := resolveExisting(candidate)
	if err != nil {
		return "", err
	}
	if !w.contains(resolved) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, rel)
	}
	return candidate, nil
}

// ResolveExisting is Resolve plus an existence check on the target.
func (w *Workspace) ResolveExisting(rel string) (string, error) {
	abs, err := w.Resolve(rel)
	if err != nil {
		return "", err
	}
	if _, err := os.Lstat(abs); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %q", ErrNotFound, rel)
		}
		return "", err
	}
	return abs, nil
}

// Mkdir creates a single directory inside the workspace. Ordinary
// filesystem conditions map onto the sandbox error set so callers can
// discriminate without inspecting os errors.
func (w *Workspace) Mkdir(rel string) (string, error) {
	abs, err := w.Resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.Mkdir(abs, 0o755); err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("%w: %q", ErrAlreadyExists, rel)
		}
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: parent of %q", ErrNotFound, rel)
		}
		return "", err
	}
	return abs, nil
}

// MkdirAll creates a directory and any missing parents inside the workspace.
func (w *Workspace) MkdirAll(rel string) (string, error) {
	abs, err := w.Resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

// Rel returns the workspace-relative form of an absolute path previously
// produced by Resolve.
func (w *Workspace) Rel(abs string) string {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return abs
	}
	return rel
}

func (w *Workspace) contains(abs string) bool {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// resolveExisting resolves symlinks on the deepest existing ancestor of
// path and rejoins the non-existing remainder, so containment is judged on
// the real location even for paths about to be created.
func resolveExisting(path string) (string, error) {
	remainder := ""
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Clean(filepath.Join(resolved, remainder)), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("resolve %q: no existing ancestor", path)
		}
		remainder = filepath.Join(filepath.Base(current), remainder)
		current = parent
	}
}
