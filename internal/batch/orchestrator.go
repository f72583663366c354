// Package batch drives folder ingestion: discovery, per-file copy and
// transform, record creation and hand-off to background enrichment.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"photoingest/internal/enrich"
	"photoingest/internal/models"
	"photoingest/internal/transform"
)

// Store is the part of the record store the orchestrator needs.
type Store interface {
	InsertImage(ctx context.Context, img *models.Image) (int64, error)
	UpdateImageStatus(ctx context.Context, id int64, status models.ImageStatus, errMsg string) error
	GetImage(ctx context.Context, id int64) (*models.Image, error)
	FindDuplicate(ctx context.Context, originalFilename string, size int64) (*models.Image, error)
	InsertMetadata(ctx context.Context, m *models.Metadata) error
}

type Transformer interface {
	Transform(ctx context.Context, sourcePath string, opts transform.Options) (*transform.Result, error)
}

type Config struct {
	UploadDir    string
	ThumbnailDir string
	Defaults     models.Options
}

// Orchestrator owns the in-memory batch registry. Batches do not survive a
// restart.
type Orchestrator struct {
	store     Store
	engine    Transformer
	scheduler enrich.Scheduler
	cfg       Config
	log       *slog.Logger

	mu      sync.RWMutex
	batches map[string]*state
	closed  bool
	wg      sync.WaitGroup
}

func New(store Store, engine Transformer, scheduler enrich.Scheduler, cfg Config, log *slog.Logger) *Orchestrator {
	cfg.Defaults = cfg.Defaults.Normalize(models.DefaultOptions())
	return &Orchestrator{
		store:     store,
		engine:    engine,
		scheduler: scheduler,
		cfg:       cfg,
		log:       log,
		batches:   make(map[string]*state),
	}
}

// Start validates folder, registers a batch and processes it in the
// background. It returns as soon as the batch is registered.
func (o *Orchestrator) Start(ctx context.Context, folder string, opts models.Options) (string, error) {
	const op = "batch.Start"

	abs, err := validateFolder(folder)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	opts = opts.Normalize(o.cfg.Defaults)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b := newState(uuid.NewString(), abs, opts, cancel)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		cancel()
		return "", fmt.Errorf("%s: %w", op, ErrShutdown)
	}
	o.batches[b.id] = b
	o.wg.Add(1)
	o.mu.Unlock()

	o.log.Info("batch started", "batch_id", b.id, "folder", abs,
		"thumbnail_size", opts.ThumbnailSize, "analysis_image_size", opts.AnalysisImageSize,
		"quality", opts.Quality, "skip_duplicates", opts.SkipDuplicatesEnabled())

	go o.run(runCtx, b)
	return b.id, nil
}

func validateFolder(folder string) (string, error) {
	if strings.TrimSpace(folder) == "" {
		return "", fmt.Errorf("%w: empty folder path", ErrInvalidPath)
	}
	abs, err := filepath.Abs(folder)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, abs)
	}
	dir, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	defer dir.Close()
	if _, err := dir.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("%w: %s is not readable: %v", ErrInvalidPath, abs, err)
	}
	return abs, nil
}

// Status returns a snapshot of the batch.
func (o *Orchestrator) Status(id string) (models.Batch, bool) {
	b := o.get(id)
	if b == nil {
		return models.Batch{}, false
	}
	return b.snapshot(), true
}

// List returns all batches, most recent first.
func (o *Orchestrator) List() []models.BatchSummary {
	o.mu.RLock()
	summaries := make([]models.BatchSummary, 0, len(o.batches))
	for _, b := range o.batches {
		summaries = append(summaries, b.summary())
	}
	o.mu.RUnlock()

	slices.SortFunc(summaries, func(a, b models.BatchSummary) int {
		return b.StartTime.Compare(a.StartTime)
	})
	return summaries
}

// Delete removes the batch from the registry and stops its loop before the
// next file. It reports false for unknown ids.
func (o *Orchestrator) Delete(id string) bool {
	o.mu.Lock()
	b, ok := o.batches[id]
	delete(o.batches, id)
	o.mu.Unlock()

	if !ok {
		return false
	}
	b.cancel()
	o.log.Info("batch deleted", "batch_id", id)
	return true
}

// ClearTerminal removes every completed or failed batch and returns how many
// were removed.
func (o *Orchestrator) ClearTerminal() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	removed := 0
	for id, b := range o.batches {
		if b.terminal() {
			delete(o.batches, id)
			removed++
		}
	}
	if removed > 0 {
		o.log.Info("terminal batches cleared", "count", removed)
	}
	return removed
}

// Wait blocks until the batch reaches a terminal status or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context, id string) (models.Batch, error) {
	b := o.get(id)
	if b == nil {
		return models.Batch{}, fmt.Errorf("batch.Wait: unknown batch %s", id)
	}
	select {
	case <-b.done:
		return b.snapshot(), nil
	case <-ctx.Done():
		return b.snapshot(), ctx.Err()
	}
}

// Shutdown refuses new batches, cancels running ones and waits for their
// loops to exit.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	for _, b := range o.batches {
		b.cancel()
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("batch.Shutdown: %w", ctx.Err())
	}
}

func (o *Orchestrator) get(id string) *state {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.batches[id]
}
