package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"photoingest/internal/models"
)

// Store is the record store consumed by the ingestion pipeline.
type Store interface {
	InsertImage(ctx context.Context, img *models.Image) (int64, error)
	UpdateImageStatus(ctx context.Context, id int64, status models.ImageStatus, errMsg string) error
	GetImage(ctx context.Context, id int64) (*models.Image, error)
	FindDuplicate(ctx context.Context, originalFilename string, size int64) (*models.Image, error)
	InsertAnalysis(ctx context.Context, a *models.Analysis) error
	GetAnalysis(ctx context.Context, imageID int64) (*models.Analysis, error)
	InsertMetadata(ctx context.Context, m *models.Metadata) error
	GetMetadata(ctx context.Context, imageID int64) (*models.Metadata, error)
	Close() error
}

var (
	_ Store = (*Storage)(nil)
	_ Store = (*SQLite)(nil)
	_ Store = (*Memory)(nil)
)

// Open picks a store from the URL scheme: postgres:// or postgresql://,
// sqlite://<path>, or memory://.
func Open(ctx context.Context, url string, log *slog.Logger) (Store, error) {
	const op = "storage.Open"

	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		s, err := NewStorage(ctx, url, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("%s: sqlite url without a path", op)
		}
		s, err := NewSQLite(ctx, path, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case url == "memory://":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%s: unsupported database url %q", op, url)
	}
}
