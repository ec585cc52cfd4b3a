package analysis

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// DefaultReadLimit caps read_file responses unless the caller asks for more.
const DefaultReadLimit = 64 * 1024

// FileEntry is one directory listing row.
type FileEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// ListFiles lists a workspace directory, directories first, names sorted.
func (s *Service) ListFiles(path string) ([]FileEntry, error) {
	abs, err := s.ws.ResolveExisting(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", path, err)
	}

	out := make([]FileEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		fe := FileEntry{Name: e.Name(), IsDir: e.IsDir()}
		if !fe.IsDir {
			fe.Size = info.Size()
		}
		out = append(out, fe)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDir != out[j].IsDir {
			return out[i].IsDir
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// ReadFile returns up to maxBytes of a workspace file and reports whether
// the content was truncated.
func (s *Service) ReadFile(path string, maxBytes int) (string, bool, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultReadLimit
	}
	abs, err := s.ws.ResolveExisting(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", false, err
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("%q is a directory", path)
	}

	f, err := os.Open(abs)
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	buf := make([]byte, maxBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", false, fmt.Errorf("read %q: %w", path, err)
	}
	return string(buf[:n]), info.Size() > int64(n), nil
}

// WriteFile writes content to a workspace file, creating parent directories
// as needed.
func (s *Service) WriteFile(path, content string) error {
	abs, err := s.ws.Resolve(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if _, err := s.ws.MkdirAll(dir); err != nil {
			return err
		}
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	return nil
}
