// Package checksum fingerprints graph files so unchanged files are not reloaded.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// File returns the hex-encoded SHA-256 digest of the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("checksum: read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Writer hashes everything written to it.
type Writer struct {
	h hash.Hash
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{h: sha256.New()} }

func (w *Writer) Write(p []byte) (int, error) { return w.h.Write(p) }

// Sum returns the hex digest of the bytes written so far. It equals Sum of
// the same bytes.
func (w *Writer) Sum() string { return hex.EncodeToString(w.h.Sum(nil)) }
