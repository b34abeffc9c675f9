package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func tempData(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

// put writes content through WriteFrom.
func put(s *FS, path string, content []byte) error {
	return s.WriteFrom(path, func(w io.Writer) error {
		_, err := w.Write(content)
		return err
	})
}

func TestWriteAndRead(t *testing.T) {
	s := tempData(t)
	content := []byte("<a> <b> \"c\" .\n")
	if err := put(s, "graph.nt", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("graph.nt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteFromCreatesSubdirs(t *testing.T) {
	s := tempData(t)
	if err := put(s, "remote/cache/graph.nt", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("remote/cache/graph.nt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestAbs(t *testing.T) {
	s := tempData(t)
	abs, err := s.Abs("graph.nt")
	if err != nil {
		t.Fatalf("Abs: %v", err)
	}
	if abs != filepath.Join(s.Root(), "graph.nt") {
		t.Errorf("abs = %q", abs)
	}
	if _, err := s.Read("missing.nt"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read missing: err = %v", err)
	}
}

func TestWriteFromStreams(t *testing.T) {
	s := tempData(t)
	err := s.WriteFrom("graph.nt", func(w io.Writer) error {
		for _, line := range []string{"<a> <b> \"1\" .\n", "<a> <b> \"2\" .\n"} {
			if _, err := io.WriteString(w, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WriteFrom: %v", err)
	}
	got, _ := s.Read("graph.nt")
	if strings.Count(string(got), "\n") != 2 {
		t.Errorf("content = %q", got)
	}
}

func TestWriteFromFillErrorKeepsOriginal(t *testing.T) {
	s := tempData(t)
	_ = put(s, "graph.nt", []byte("original"))

	boom := errors.New("encode failed")
	err := s.WriteFrom("graph.nt", func(w io.Writer) error {
		_, _ = io.WriteString(w, "half a gra")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	got, _ := s.Read("graph.nt")
	if string(got) != "original" {
		t.Errorf("content = %q, want original", got)
	}
	if n, _ := s.RemoveStale("graph.nt", 0); n != 0 {
		t.Errorf("failed write left %d temp files", n)
	}
}

func TestRemoveStale(t *testing.T) {
	s := tempData(t)
	_ = put(s, "graph.nt", []byte("x"))
	old := time.Now().Add(-time.Hour)
	for _, name := range []string{".graph.nt.part.41-1", ".graph.nt.part.42-2", ".other.nt.part.1-1", ".graph.nt.part.43-3"} {
		p := filepath.Join(s.Root(), name)
		if err := os.WriteFile(p, []byte("partial"), 0o644); err != nil {
			t.Fatal(err)
		}
		if name != ".graph.nt.part.43-3" {
			_ = os.Chtimes(p, old, old)
		}
	}

	n, err := s.RemoveStale("graph.nt", time.Minute)
	if err != nil {
		t.Fatalf("RemoveStale: %v", err)
	}
	if n != 2 {
		t.Errorf("removed = %d, want 2", n)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), ".other.nt.part.1-1")); err != nil {
		t.Errorf("temp file of another target removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), ".graph.nt.part.43-3")); err != nil {
		t.Errorf("in-flight temp file removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "graph.nt")); err != nil {
		t.Errorf("target removed: %v", err)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempData(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.nt",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := put(s, p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteNoCorruption(t *testing.T) {
	s := tempData(t)
	_ = put(s, "atomic.nt", []byte("original content"))

	updated := []byte("updated content")
	if err := put(s, "atomic.nt", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.nt")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.root, ".atomic.nt.part.*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestRenameFailureLeavesOriginal(t *testing.T) {
	s := tempData(t)
	_ = put(s, "graph.nt", []byte("original"))
	if err := os.Chmod(s.root, 0o555); err != nil {
		t.Skip("chmod not supported")
	}
	t.Cleanup(func() { _ = os.Chmod(s.root, 0o755) })
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	if err := put(s, "graph.nt", []byte("new")); err == nil {
		t.Fatal("expected write error on read-only dir")
	}
	got, _ := s.Read("graph.nt")
	if string(got) != "original" {
		t.Errorf("content = %q, want original", got)
	}
}

func TestNewFS_CreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	if _, err := NewFS(dir); err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("dir not created: %v", err)
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "feinschmecker-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
