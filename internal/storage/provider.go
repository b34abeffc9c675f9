// Package storage holds the graph file and downloaded graph sources. Every
// write replaces its target atomically so readers in other processes see
// either the old or the new graph, never a partial one.
package storage

import "io"

// Provider is a data directory. Paths are relative to its root.
type Provider interface {
	Read(path string) ([]byte, error)
	// WriteFrom atomically replaces the file at path with what fill writes.
	// If fill fails the previous file is left untouched.
	WriteFrom(path string, fill func(w io.Writer) error) error
	// Abs returns the absolute file system path of path.
	Abs(path string) (string, error)
}
