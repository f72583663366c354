// Package discovery finds candidate image files under a directory tree.
package discovery

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"photoingest/internal/format"
)

// Discover walks root recursively and returns the absolute paths of all files
// with a supported image extension, in lexical walk order. Unreadable
// directories are logged and skipped.
func Discover(ctx context.Context, root string, log *slog.Logger) ([]string, error) {
	const op = "discovery.Discover"

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var files []string
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if d != nil && d.IsDir() {
				log.Warn("skipping unreadable directory", "path", path, "error", err)
				return filepath.SkipDir
			}
			log.Warn("skipping unreadable entry", "path", path, "error", err)
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if format.IsSupported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return files, nil
}
