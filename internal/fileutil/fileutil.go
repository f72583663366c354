// Package fileutil copies files into managed storage.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
)

// ErrDestination marks failures on the destination side of a copy: the managed
// storage directory is missing, unwritable, or full.
var ErrDestination = errors.New("destination not writable")

// CopyFile streams src to dst and returns the number of bytes written.
// Destination failures wrap ErrDestination; a partially written dst is removed.
func CopyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	return WriteFile(dst, in)
}

// WriteFile streams r into a new file at dst.
func WriteFile(dst string, r io.Reader) (int64, error) {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDestination, err)
	}

	n, err := io.Copy(out, r)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		var pathErr *os.PathError
		if errors.As(err, &pathErr) && pathErr.Path == dst {
			return n, fmt.Errorf("%w: %v", ErrDestination, err)
		}
		return n, err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return n, fmt.Errorf("%w: %v", ErrDestination, err)
	}
	return n, nil
}

// EnsureDirs creates each directory if absent.
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %v", ErrDestination, err)
		}
	}
	return nil
}

// RemoveAll removes each non-empty path, ignoring ones already gone, and
// returns the combined failures.
func RemoveAll(paths ...string) error {
	var errs error
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Stem returns the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
