package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestResolveContainedPaths(t *testing.T) {
	ws, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	cases := []string{
		"data.csv",
		"sub/dir/data.csv",
		"./sub/../data.csv",
		"",
		".",
	}
	for _, rel := range cases {
		abs, err := ws.Resolve(rel)
		if err != nil {
			t.Errorf("Resolve(%q): unexpected error %v", rel, err)
			continue
		}
		if !filepath.IsAbs(abs) {
			t.Errorf("Resolve(%q) = %q, want absolute path", rel, abs)
		}
	}
}

func TestResolveRejectsEscapes(t *testing.T) {
	ws, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	cases := []string{
		"..",
		"../outside.csv",
		"sub/../../outside.csv",
		"a/b/../../../etc/passwd",
		"/etc/passwd",
	}
	for _, rel := range cases {
		if _, err := ws.Resolve(rel); !errors.Is(err, ErrPathEscape) {
			t.Errorf("Resolve(%q): got %v, want ErrPathEscape", rel, err)
		}
	}
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks not reliable on windows CI")
	}
	outside := t.TempDir()
	root := t.TempDir()
	ws, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	if _, err := ws.Resolve("link/escaped.csv"); !errors.Is(err, ErrPathEscape) {
		t.Errorf("Resolve through symlink: got %v, want ErrPathEscape", err)
	}
}

func TestResolveExisting(t *testing.T) {
	root := t.TempDir()
	ws, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "present.csv"), []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := ws.ResolveExisting("present.csv"); err != nil {
		t.Errorf("ResolveExisting(present.csv): %v", err)
	}
	if _, err := ws.ResolveExisting("missing.csv"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ResolveExisting(missing.csv): got %v, want ErrNotFound", err)
	}
}

func TestMkdir(t *testing.T) {
	ws, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := ws.Mkdir("out"); err != nil {
		t.Fatalf("Mkdir(out): %v", err)
	}
	if _, err := ws.Mkdir("out"); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("Mkdir(out) twice: got %v, want ErrAlreadyExists", err)
	}
	if _, err := ws.Mkdir("no/parent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Mkdir(no/parent): got %v, want ErrNotFound", err)
	}
	if _, err := ws.Mkdir("../evil"); !errors.Is(err, ErrPathEscape) {
		t.Errorf("Mkdir(../evil): got %v, want ErrPathEscape", err)
	}
}

func TestRelRoundTrip(t *testing.T) {
	ws, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	abs, err := ws.Resolve("sub/file.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := ws.Rel(abs); got != filepath.Join("sub", "file.txt") {
		t.Errorf("Rel = %q, want sub/file.txt", got)
	}
}
