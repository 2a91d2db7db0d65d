// Package resource maps request paths to resource kinds and files.
package resource

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Kind classifies a request path.
type Kind uint8

const (
	Unknown Kind = iota
	Static
	Dynamic
)

func (k Kind) String() string {
	switch k {
	case Static:
		return "static"
	case Dynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

// ErrNotRegular is returned when the resolved path is not a regular file.
var ErrNotRegular = errors.New("not a regular file")

// Classify returns Static if path contains "static", otherwise Dynamic if it
// contains "dynamic", otherwise Unknown.
func Classify(p string) Kind {
	switch {
	case strings.Contains(p, "static"):
		return Static
	case strings.Contains(p, "dynamic"):
		return Dynamic
	default:
		return Unknown
	}
}

// Resolve maps a request path to a filesystem path under root. The leading
// separator is stripped; ".." segments are cleaned against the root so the
// result never leaves it.
func Resolve(root, p string) string {
	rel := strings.TrimPrefix(path.Clean("/"+p), "/")
	if rel == "" {
		rel = "."
	}
	return filepath.Join(root, filepath.FromSlash(rel))
}

// Open opens the regular file at name and returns it with its size.
func Open(name string) (*os.File, int64, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, 0, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", name, err)
	}
	if !fi.Mode().IsRegular() {
		f.Close()
		return nil, 0, fmt.Errorf("%s: %w", name, ErrNotRegular)
	}

	return f, fi.Size(), nil
}
