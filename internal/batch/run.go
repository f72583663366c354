package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"photoingest/internal/discovery"
	"photoingest/internal/enrich"
	"photoingest/internal/fileutil"
	"photoingest/internal/format"
	"photoingest/internal/models"
	"photoingest/internal/transform"
)

func (o *Orchestrator) run(ctx context.Context, b *state) {
	log := o.log.With("batch_id", b.id)
	defer o.wg.Done()
	defer close(b.done)
	defer b.cancel()
	defer func() {
		if r := recover(); r != nil {
			log.Error("batch goroutine panicked", "panic", r)
			b.finish(models.BatchStatusError, fmt.Sprintf("internal panic: %v", r))
		}
	}()

	if err := fileutil.EnsureDirs(o.cfg.UploadDir, o.cfg.ThumbnailDir); err != nil {
		o.fail(b, err)
		return
	}

	files, err := discovery.Discover(ctx, b.folder, log)
	if err != nil {
		if ctx.Err() != nil {
			err = errCancelled
		}
		o.fail(b, err)
		return
	}
	b.setTotal(len(files))
	log.Info("files discovered", "count", len(files))

	for _, path := range files {
		if ctx.Err() != nil {
			o.fail(b, errCancelled)
			return
		}
		if err := o.processFile(ctx, b, path); err != nil {
			o.fail(b, err)
			return
		}
	}

	if b.finish(models.BatchStatusCompleted, "") {
		s := b.summary()
		log.Info("batch completed", "total", s.TotalFiles, "successful", s.SuccessfulFiles,
			"duplicates", s.DuplicateFiles, "errors", s.ErrorFiles)
	}
}

func (o *Orchestrator) fail(b *state, err error) {
	if b.finish(models.BatchStatusError, err.Error()) {
		o.log.Error("batch failed", "batch_id", b.id, "error", err)
	}
}

// processFile handles one discovered file. Per-file failures are recorded on
// the batch; only a failure of the managed storage itself is returned.
func (o *Orchestrator) processFile(ctx context.Context, b *state, path string) error {
	log := o.log.With("batch_id", b.id, "path", path)

	info, err := os.Stat(path)
	if err != nil {
		b.recordFailure(path, err.Error())
		return nil
	}
	name := filepath.Base(path)

	if b.opts.SkipDuplicatesEnabled() {
		dup, err := o.store.FindDuplicate(ctx, name, info.Size())
		if err != nil {
			log.Warn("duplicate check failed", "error", err)
			b.recordFailure(path, err.Error())
			return nil
		}
		if dup != nil {
			log.Debug("skipping duplicate", "image_id", dup.ID)
			b.recordDuplicate(path, fmt.Sprintf("duplicate of image %d (%s)", dup.ID, dup.Filename))
			return nil
		}
	}

	managed := o.managedPath(name)
	size, err := fileutil.CopyFile(path, managed)
	if err != nil {
		if errors.Is(err, fileutil.ErrDestination) {
			return err
		}
		log.Warn("copy failed", "error", err)
		b.recordFailure(path, err.Error())
		return nil
	}

	img, err := o.ingest(ctx, managed, name, path, size, b.opts)
	if err != nil {
		log.Warn("file processing failed", "error", err)
		b.recordFailure(path, err.Error())
		return nil
	}
	b.recordSuccess(*img)
	return nil
}

// managedPath returns a fresh, collision-resistant location in the upload
// directory that keeps the original extension.
func (o *Orchestrator) managedPath(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	stem := transform.SanitizeFilename(fileutil.Stem(name))
	return filepath.Join(o.cfg.UploadDir, uuid.NewString()[:8]+"_"+stem+ext)
}

// ingest transforms a file already in managed storage, records it and
// schedules its enrichment. On failure every file it created, including
// managed, is removed.
func (o *Orchestrator) ingest(ctx context.Context, managed, name, originalPath string, size int64, opts models.Options) (*models.Image, error) {
	res, err := o.engine.Transform(ctx, managed, transform.OptionsFrom(opts))
	if err != nil {
		o.cleanup(managed)
		return nil, err
	}

	img := &models.Image{
		Filename:         filepath.Base(managed),
		OriginalFilename: name,
		Path:             managed,
		OriginalPath:     originalPath,
		ProcessedPath:    res.PreviewPath,
		ThumbnailPath:    res.ThumbnailPath,
		FileSize:         size,
		MimeType:         format.MimeType(name),
		Width:            res.Width,
		Height:           res.Height,
		Status:           models.ImageStatusUploaded,
	}
	if _, err := o.store.InsertImage(ctx, img); err != nil {
		o.cleanup(append(res.Artifacts(managed), managed)...)
		return nil, err
	}
	log := o.log.With("image_id", img.ID, "path", managed)
	log.Info("image stored", "original", name, "size", humanize.Bytes(uint64(size)),
		"width", img.Width, "height", img.Height)

	if res.Metadata != nil {
		res.Metadata.ImageID = img.ID
		if err := o.store.InsertMetadata(ctx, res.Metadata); err != nil {
			log.Warn("failed to store metadata", "error", err)
		}
	}

	o.schedule(ctx, img, opts)
	return img, nil
}

func (o *Orchestrator) schedule(ctx context.Context, img *models.Image, opts models.Options) {
	err := o.scheduler.Schedule(ctx, enrich.Task{
		ImageID:           img.ID,
		ProcessedPath:     img.ProcessedPath,
		AnalysisImageSize: opts.AnalysisImageSize,
		Quality:           opts.Quality,
	})
	if err == nil {
		return
	}
	o.log.Warn("failed to schedule enrichment", "image_id", img.ID, "error", err)
	msg := "enrichment not scheduled: " + err.Error()
	if uerr := o.store.UpdateImageStatus(context.WithoutCancel(ctx), img.ID, models.ImageStatusError, msg); uerr != nil {
		o.log.Error("failed to record scheduling failure", "image_id", img.ID, "error", uerr)
	}
}

func (o *Orchestrator) cleanup(paths ...string) {
	if err := fileutil.RemoveAll(paths...); err != nil {
		o.log.Warn("cleanup failed", "error", err)
	}
}

// Upload ingests a single image streamed from r. Upload records keep no
// original path.
func (o *Orchestrator) Upload(ctx context.Context, filename string, r io.Reader, opts models.Options) (*models.Image, error) {
	const op = "batch.Upload"

	name := filepath.Base(filename)
	if !format.IsSupported(name) {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrUnsupported, name)
	}
	opts = opts.Normalize(o.cfg.Defaults)

	if err := fileutil.EnsureDirs(o.cfg.UploadDir, o.cfg.ThumbnailDir); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	managed := o.managedPath(name)
	size, err := fileutil.WriteFile(managed, r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if opts.SkipDuplicatesEnabled() {
		dup, err := o.store.FindDuplicate(ctx, name, size)
		if err != nil {
			o.cleanup(managed)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if dup != nil {
			o.cleanup(managed)
			return nil, &DuplicateError{Existing: dup}
		}
	}

	img, err := o.ingest(ctx, managed, name, "", size, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return img, nil
}

// Reanalyze schedules enrichment again for an existing image.
func (o *Orchestrator) Reanalyze(ctx context.Context, imageID int64, useFallback bool) error {
	const op = "batch.Reanalyze"

	img, err := o.store.GetImage(ctx, imageID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if img.ProcessedPath == "" {
		return fmt.Errorf("%s: image %d has no preview", op, imageID)
	}
	err = o.scheduler.Schedule(ctx, enrich.Task{
		ImageID:           img.ID,
		ProcessedPath:     img.ProcessedPath,
		AnalysisImageSize: o.cfg.Defaults.AnalysisImageSize,
		Quality:           o.cfg.Defaults.Quality,
		UseFallback:       useFallback,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	o.log.Info("image queued for re-analysis", "image_id", imageID, "fallback", useFallback)
	return nil
}
