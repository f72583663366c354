// Package enrich runs the background analysis step for stored images.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"photoingest/internal/analysis"
	"photoingest/internal/models"
	"photoingest/internal/transform"
)

// Task is one image waiting for analysis.
type Task struct {
	ImageID           int64  `json:"image_id"`
	ProcessedPath     string `json:"processed_path"`
	AnalysisImageSize int    `json:"analysis_image_size"`
	Quality           int    `json:"quality"`
	UseFallback       bool   `json:"use_fallback,omitempty"`
}

// Store is the part of the record store the enricher writes to.
type Store interface {
	UpdateImageStatus(ctx context.Context, id int64, status models.ImageStatus, errMsg string) error
	InsertAnalysis(ctx context.Context, a *models.Analysis) error
}

type Config struct {
	MaxRetries int
	Fallback   bool
	BaseDelay  time.Duration
}

type Enricher struct {
	store    Store
	analyzer analysis.Analyzer
	cfg      Config
	log      *slog.Logger
}

func NewEnricher(store Store, analyzer analysis.Analyzer, cfg Config, log *slog.Logger) *Enricher {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Enricher{store: store, analyzer: analyzer, cfg: cfg, log: log}
}

// Run analyzes one image and records the outcome on its status. The returned
// error is informational; the image record already reflects it.
func (e *Enricher) Run(ctx context.Context, task Task) error {
	const op = "enrich.Run"
	log := e.log.With("image_id", task.ImageID)

	if err := e.store.UpdateImageStatus(ctx, task.ImageID, models.ImageStatusProcessing, ""); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	res, err := e.enrich(ctx, task)
	if err == nil {
		err = e.store.InsertAnalysis(ctx, &models.Analysis{
			ImageID:     task.ImageID,
			Description: res.Description,
			Caption:     res.Caption,
			Keywords:    res.Keywords,
			Confidence:  res.Confidence,
		})
	}

	// Record the outcome even when ctx was cancelled mid-call.
	final := context.WithoutCancel(ctx)
	if err != nil {
		log.Warn("image analysis failed", "error", err)
		if uerr := e.store.UpdateImageStatus(final, task.ImageID, models.ImageStatusError, err.Error()); uerr != nil {
			log.Error("failed to record analysis failure", "error", uerr)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := e.store.UpdateImageStatus(final, task.ImageID, models.ImageStatusCompleted, ""); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("image analyzed", "caption", res.Caption, "keywords", len(res.Keywords))
	return nil
}

func (e *Enricher) enrich(ctx context.Context, task Task) (*analysis.Result, error) {
	size := task.AnalysisImageSize
	if size == 0 {
		size = models.DefaultAnalysisImageSize
	}
	quality := task.Quality
	if quality == 0 {
		quality = models.DefaultQuality
	}
	img, err := transform.AnalysisImage(task.ProcessedPath, size, quality)
	if err != nil {
		return nil, err
	}

	if task.UseFallback {
		return e.analyzer.Analyze(ctx, img, "image/jpeg", true)
	}

	var res *analysis.Result
	backoff := retry.WithMaxRetries(uint64(e.cfg.MaxRetries), retry.NewExponential(e.cfg.BaseDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := e.analyzer.Analyze(ctx, img, "image/jpeg", false)
		if err != nil {
			e.log.Debug("analysis attempt failed", "image_id", task.ImageID, "error", err)
			return retry.RetryableError(err)
		}
		res = r
		return nil
	})
	if err == nil {
		return res, nil
	}
	if !e.cfg.Fallback || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	e.log.Info("retrying analysis in fallback mode", "image_id", task.ImageID, "error", err)
	res, ferr := e.analyzer.Analyze(ctx, img, "image/jpeg", true)
	if ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	return res, nil
}
