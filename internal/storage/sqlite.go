package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"photoingest/internal/models"
)

// SQLite is the single-file record store used for local deployments and tests.
type SQLite struct {
	db *sql.DB
}

const sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

func NewSQLite(ctx context.Context, path string, log *slog.Logger) (*SQLite, error) {
	const op = "storage.NewSQLite"

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?"+sqlitePragmas)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := runMigrations(db, "sqlite3", sqliteMigrations, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) InsertImage(ctx context.Context, img *models.Image) (int64, error) {
	const op = "storage.SQLite.InsertImage"

	if img.UploadedAt.IsZero() {
		img.UploadedAt = time.Now().UTC()
	}
	if img.Status == "" {
		img.Status = models.ImageStatusUploaded
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO images (filename, original_filename, path, original_path, processed_path,
		 thumbnail_path, file_size, mime_type, width, height, uploaded_at, status, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		img.Filename, img.OriginalFilename, img.Path, nullString(img.OriginalPath), img.ProcessedPath,
		img.ThumbnailPath, img.FileSize, img.MimeType, img.Width, img.Height, img.UploadedAt,
		string(img.Status), nullString(img.ErrorMessage))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	img.ID = id
	return id, nil
}

func (s *SQLite) UpdateImageStatus(ctx context.Context, id int64, status models.ImageStatus, errMsg string) error {
	const op = "storage.SQLite.UpdateImageStatus"

	var processedAt any
	if finalStatus(status) {
		processedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE images SET status = ?, error_message = ?, processed_at = COALESCE(?, processed_at)
		 WHERE id = ?`,
		string(status), nullString(errMsg), processedAt, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: image %d: %w", op, id, ErrNotFound)
	}
	return nil
}

func (s *SQLite) GetImage(ctx context.Context, id int64) (*models.Image, error) {
	const op = "storage.SQLite.GetImage"

	img, err := scanImage(s.db.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: image %d: %w", op, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return img, nil
}

func (s *SQLite) FindDuplicate(ctx context.Context, originalFilename string, size int64) (*models.Image, error) {
	const op = "storage.SQLite.FindDuplicate"

	img, err := scanImage(s.db.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM images
		 WHERE original_filename = ? AND file_size = ? AND status <> ?
		 ORDER BY id DESC LIMIT 1`,
		originalFilename, size, string(models.ImageStatusError)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return img, nil
}

func (s *SQLite) InsertAnalysis(ctx context.Context, a *models.Analysis) error {
	const op = "storage.SQLite.InsertAnalysis"

	if a.AnalyzedAt.IsZero() {
		a.AnalyzedAt = time.Now().UTC()
	}
	keywords := a.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	encoded, err := json.Marshal(keywords)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO image_analysis (image_id, description, caption, keywords, confidence, analyzed_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (image_id) DO UPDATE SET description = excluded.description,
		 caption = excluded.caption, keywords = excluded.keywords,
		 confidence = excluded.confidence, analyzed_at = excluded.analyzed_at`,
		a.ImageID, a.Description, a.Caption, string(encoded), a.Confidence, a.AnalyzedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM image_analysis WHERE image_id = ?`, a.ImageID).Scan(&a.ID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SQLite) GetAnalysis(ctx context.Context, imageID int64) (*models.Analysis, error) {
	const op = "storage.SQLite.GetAnalysis"

	var (
		a        models.Analysis
		keywords string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, image_id, description, caption, keywords, confidence, analyzed_at
		 FROM image_analysis WHERE image_id = ?`, imageID).
		Scan(&a.ID, &a.ImageID, &a.Description, &a.Caption, &keywords, &a.Confidence, &a.AnalyzedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: analysis for image %d: %w", op, imageID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := json.Unmarshal([]byte(keywords), &a.Keywords); err != nil {
		return nil, fmt.Errorf("%s: keywords: %w", op, err)
	}
	return &a, nil
}

func (s *SQLite) InsertMetadata(ctx context.Context, m *models.Metadata) error {
	const op = "storage.SQLite.InsertMetadata"

	args := metadataArgs(m)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO image_metadata (`+metadataColumns+`) VALUES (`+placeholders+`)
		 ON CONFLICT (image_id) DO NOTHING`,
		args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SQLite) GetMetadata(ctx context.Context, imageID int64) (*models.Metadata, error) {
	const op = "storage.SQLite.GetMetadata"

	m, err := scanMetadata(s.db.QueryRowContext(ctx,
		`SELECT `+metadataColumns+` FROM image_metadata WHERE image_id = ?`, imageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: metadata for image %d: %w", op, imageID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return m, nil
}
