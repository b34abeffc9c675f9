package checksum

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileMatchesSum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.nt")
	data := []byte("<a> <b> <c> .\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if got != Sum(data) {
		t.Errorf("File = %s, Sum = %s", got, Sum(data))
	}
}

func TestFileMissing(t *testing.T) {
	if _, err := File(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error")
	}
}

func TestWriterMatchesSum(t *testing.T) {
	w := NewWriter()
	_, _ = w.Write([]byte("<a> <b> "))
	_, _ = w.Write([]byte("<c> .\n"))
	if got, want := w.Sum(), Sum([]byte("<a> <b> <c> .\n")); got != want {
		t.Errorf("Writer = %s, Sum = %s", got, want)
	}
}
