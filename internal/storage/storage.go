// Package storage persists image, analysis and metadata records.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"photoingest/internal/models"
)

// Storage is the PostgreSQL record store.
type Storage struct {
	pool *pgxpool.Pool
	db   *sql.DB // For migrations
}

func NewStorage(ctx context.Context, dsn string, log *slog.Logger) (*Storage, error) {
	const op = "storage.NewStorage"

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	if err := runMigrations(db, "postgres", postgresMigrations, log); err != nil {
		db.Close()
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{pool: pool, db: db}, nil
}

func (s *Storage) Close() error {
	err := s.db.Close()
	s.pool.Close()
	return err
}

func (s *Storage) InsertImage(ctx context.Context, img *models.Image) (int64, error) {
	const op = "storage.InsertImage"

	if img.UploadedAt.IsZero() {
		img.UploadedAt = time.Now().UTC()
	}
	if img.Status == "" {
		img.Status = models.ImageStatusUploaded
	}

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO images (filename, original_filename, path, original_path, processed_path,
		 thumbnail_path, file_size, mime_type, width, height, uploaded_at, status, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id`,
		img.Filename, img.OriginalFilename, img.Path, nullString(img.OriginalPath), img.ProcessedPath,
		img.ThumbnailPath, img.FileSize, img.MimeType, img.Width, img.Height, img.UploadedAt,
		string(img.Status), nullString(img.ErrorMessage)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	img.ID = id
	return id, nil
}

func (s *Storage) UpdateImageStatus(ctx context.Context, id int64, status models.ImageStatus, errMsg string) error {
	const op = "storage.UpdateImageStatus"

	var processedAt any
	if finalStatus(status) {
		processedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE images SET status = $2, error_message = $3, processed_at = COALESCE($4, processed_at)
		 WHERE id = $1`,
		id, string(status), nullString(errMsg), processedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: image %d: %w", op, id, ErrNotFound)
	}
	return nil
}

func (s *Storage) GetImage(ctx context.Context, id int64) (*models.Image, error) {
	const op = "storage.GetImage"

	img, err := scanImage(s.pool.QueryRow(ctx,
		`SELECT `+imageColumns+` FROM images WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: image %d: %w", op, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return img, nil
}

// FindDuplicate returns the newest non-error record with the given original
// filename and size, or nil when there is none.
func (s *Storage) FindDuplicate(ctx context.Context, originalFilename string, size int64) (*models.Image, error) {
	const op = "storage.FindDuplicate"

	img, err := scanImage(s.pool.QueryRow(ctx,
		`SELECT `+imageColumns+` FROM images
		 WHERE original_filename = $1 AND file_size = $2 AND status <> $3
		 ORDER BY id DESC LIMIT 1`,
		originalFilename, size, string(models.ImageStatusError)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return img, nil
}

func (s *Storage) InsertAnalysis(ctx context.Context, a *models.Analysis) error {
	const op = "storage.InsertAnalysis"

	if a.AnalyzedAt.IsZero() {
		a.AnalyzedAt = time.Now().UTC()
	}
	keywords := a.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO image_analysis (image_id, description, caption, keywords, confidence, analyzed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (image_id) DO UPDATE SET description = EXCLUDED.description,
		 caption = EXCLUDED.caption, keywords = EXCLUDED.keywords,
		 confidence = EXCLUDED.confidence, analyzed_at = EXCLUDED.analyzed_at
		 RETURNING id`,
		a.ImageID, a.Description, a.Caption, keywords, a.Confidence, a.AnalyzedAt).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) GetAnalysis(ctx context.Context, imageID int64) (*models.Analysis, error) {
	const op = "storage.GetAnalysis"

	var a models.Analysis
	err := s.pool.QueryRow(ctx,
		`SELECT id, image_id, description, caption, keywords, confidence, analyzed_at
		 FROM image_analysis WHERE image_id = $1`, imageID).
		Scan(&a.ID, &a.ImageID, &a.Description, &a.Caption, &a.Keywords, &a.Confidence, &a.AnalyzedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: analysis for image %d: %w", op, imageID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &a, nil
}

func (s *Storage) InsertMetadata(ctx context.Context, m *models.Metadata) error {
	const op = "storage.InsertMetadata"

	_, err := s.pool.Exec(ctx,
		`INSERT INTO image_metadata (`+metadataColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		 $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)
		 ON CONFLICT (image_id) DO NOTHING`,
		metadataArgs(m)...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) GetMetadata(ctx context.Context, imageID int64) (*models.Metadata, error) {
	const op = "storage.GetMetadata"

	m, err := scanMetadata(s.pool.QueryRow(ctx,
		`SELECT `+metadataColumns+` FROM image_metadata WHERE image_id = $1`, imageID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: metadata for image %d: %w", op, imageID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return m, nil
}
