// Package transform turns a source image into its preview, thumbnail and
// extracted metadata.
package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"photoingest/internal/fileutil"
	"photoingest/internal/format"
	"photoingest/internal/models"
)

// ThumbnailQuality is the fixed JPEG quality of thumbnails.
const ThumbnailQuality = 80

// Error reports a source that could not be turned into a preview.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transform %s: %v", filepath.Base(e.Path), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options are the per-batch transform settings.
type Options struct {
	ThumbnailSize     int
	AnalysisImageSize int
	Quality           int
}

// OptionsFrom picks the transform settings out of batch options.
func OptionsFrom(o models.Options) Options {
	return Options{
		ThumbnailSize:     o.ThumbnailSize,
		AnalysisImageSize: o.AnalysisImageSize,
		Quality:           o.Quality,
	}
}

// Result describes the artifacts produced for one source file.
type Result struct {
	// PreviewPath is the analysis input. For non-RAW sources it is the
	// source itself.
	PreviewPath   string
	ThumbnailPath string
	Width         int
	Height        int
	Metadata      *models.Metadata
}

// Artifacts lists files created by the transform, excluding the source.
func (r *Result) Artifacts(source string) []string {
	paths := []string{r.ThumbnailPath}
	if r.PreviewPath != source {
		paths = append(paths, r.PreviewPath)
	}
	return paths
}

type Engine struct {
	processedDir     string
	thumbnailDir     string
	maxMetadataBytes int64
	log              *slog.Logger
}

func NewEngine(processedDir, thumbnailDir string, maxMetadataBytes int64, log *slog.Logger) *Engine {
	return &Engine{
		processedDir:     processedDir,
		thumbnailDir:     thumbnailDir,
		maxMetadataBytes: maxMetadataBytes,
		log:              log,
	}
}

// Transform decodes sourcePath, writes its preview and thumbnail, and
// extracts metadata. Metadata failures never fail the transform.
func (e *Engine) Transform(ctx context.Context, sourcePath string, opts Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, &Error{Path: sourcePath, Err: err}
	}

	raw := format.IsRaw(sourcePath)
	var img image.Image
	if raw {
		img, err = decodeRaw(data)
	} else {
		img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	}
	if err != nil {
		return nil, &Error{Path: sourcePath, Err: err}
	}

	base := fileutil.Stem(sourcePath)
	res := &Result{
		PreviewPath:   sourcePath,
		ThumbnailPath: filepath.Join(e.thumbnailDir, ThumbnailName(base)),
		Width:         img.Bounds().Dx(),
		Height:        img.Bounds().Dy(),
	}

	if raw {
		res.PreviewPath = filepath.Join(e.processedDir, ProcessedName(base))
		preview := imaging.Fit(img, opts.AnalysisImageSize, opts.AnalysisImageSize, imaging.Lanczos)
		if err := imaging.Save(preview, res.PreviewPath, imaging.JPEGQuality(opts.Quality)); err != nil {
			return nil, &Error{Path: sourcePath, Err: fmt.Errorf("save preview: %w", err)}
		}
	}

	thumb := imaging.Fit(img, opts.ThumbnailSize, opts.ThumbnailSize, imaging.Lanczos)
	if err := imaging.Save(thumb, res.ThumbnailPath, imaging.JPEGQuality(ThumbnailQuality)); err != nil {
		if cleanupErr := fileutil.RemoveAll(res.Artifacts(sourcePath)...); cleanupErr != nil {
			e.log.Warn("failed to remove partial artifacts", "path", sourcePath, "error", cleanupErr)
		}
		return nil, &Error{Path: sourcePath, Err: fmt.Errorf("save thumbnail: %w", err)}
	}

	res.Metadata = e.metadata(sourcePath, data)
	return res, nil
}

func (e *Engine) metadata(path string, data []byte) *models.Metadata {
	if e.maxMetadataBytes > 0 && int64(len(data)) > e.maxMetadataBytes {
		e.log.Debug("skipping metadata extraction for large file", "path", path, "bytes", len(data))
		return nil
	}
	meta, err := ExtractMetadata(data)
	if err != nil {
		e.log.Debug("no metadata extracted", "path", path, "error", err)
		return nil
	}
	return meta
}

// AnalysisImage loads path, fits it within size×size and re-encodes it as
// JPEG for the vision model.
func AnalysisImage(path string, size, quality int) ([]byte, error) {
	const op = "transform.AnalysisImage"

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	img = imaging.Fit(img, size, size, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return buf.Bytes(), nil
}
