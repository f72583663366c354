package enrich

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photoingest/internal/analysis"
	"photoingest/internal/logger"
	"photoingest/internal/models"
	"photoingest/internal/storage"
)

type scriptedAnalyzer struct {
	mu         sync.Mutex
	failures   int // primary calls that fail before one succeeds
	failAll    bool
	primary    int
	fallback   int
	fallbackOK bool
}

func (a *scriptedAnalyzer) Analyze(_ context.Context, image []byte, mimeType string, useFallback bool) (*analysis.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(image) == 0 || mimeType != "image/jpeg" {
		return nil, errors.New("bad input")
	}
	if useFallback {
		a.fallback++
		if a.fallbackOK {
			return &analysis.Result{Description: "fallback", Caption: "fb", Confidence: 0.4}, nil
		}
		return nil, &analysis.Error{Provider: "stub", Fallback: true, Err: errors.New("fallback down")}
	}
	a.primary++
	if a.failAll || a.primary <= a.failures {
		return nil, &analysis.Error{Provider: "stub", Err: errors.New("rate limited")}
	}
	return &analysis.Result{Description: "a harbour", Caption: "Harbour", Keywords: []string{"boat"}, Confidence: 0.9}, nil
}

func writeJPEG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for x := 0; x < 64; x++ {
		img.Set(x, x%48, color.RGBA{R: 200, A: 255})
	}
	path := filepath.Join(t.TempDir(), "p.jpg")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, img, nil))
	require.NoError(t, f.Close())
	return path
}

func seedImage(t *testing.T, store *storage.Memory, path string) int64 {
	t.Helper()
	id, err := store.InsertImage(context.Background(), &models.Image{
		Filename: "p.jpg", OriginalFilename: "p.jpg", Path: path, ProcessedPath: path,
		ThumbnailPath: path, FileSize: 1, MimeType: "image/jpeg",
	})
	require.NoError(t, err)
	return id
}

func newTestEnricher(store Store, a analysis.Analyzer, retries int, fallback bool) *Enricher {
	return NewEnricher(store, a, Config{MaxRetries: retries, Fallback: fallback, BaseDelay: time.Millisecond}, logger.Discard())
}

func TestEnricherSuccessAfterRetries(t *testing.T) {
	store := storage.NewMemory()
	path := writeJPEG(t)
	id := seedImage(t, store, path)
	a := &scriptedAnalyzer{failures: 2}

	err := newTestEnricher(store, a, 2, true).Run(context.Background(), Task{ImageID: id, ProcessedPath: path})
	require.NoError(t, err)

	img, err := store.GetImage(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.ImageStatusCompleted, img.Status)
	assert.NotNil(t, img.ProcessedAt)

	res, err := store.GetAnalysis(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Harbour", res.Caption)
	assert.Equal(t, 3, a.primary)
	assert.Zero(t, a.fallback)
}

func TestEnricherFallsBack(t *testing.T) {
	store := storage.NewMemory()
	path := writeJPEG(t)
	id := seedImage(t, store, path)
	a := &scriptedAnalyzer{failAll: true, fallbackOK: true}

	require.NoError(t, newTestEnricher(store, a, 1, true).Run(context.Background(), Task{ImageID: id, ProcessedPath: path}))

	res, err := store.GetAnalysis(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "fallback", res.Description)
	assert.Equal(t, 2, a.primary)
	assert.Equal(t, 1, a.fallback)
}

func TestEnricherFailureMarksImageError(t *testing.T) {
	store := storage.NewMemory()
	path := writeJPEG(t)
	id := seedImage(t, store, path)
	a := &scriptedAnalyzer{failAll: true}

	err := newTestEnricher(store, a, 0, true).Run(context.Background(), Task{ImageID: id, ProcessedPath: path})
	require.Error(t, err)

	img, err := store.GetImage(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.ImageStatusError, img.Status)
	assert.Contains(t, img.ErrorMessage, "rate limited")
	assert.Contains(t, img.ErrorMessage, "fallback down")

	_, err = store.GetAnalysis(context.Background(), id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEnricherWithoutFallbackStopsAfterRetries(t *testing.T) {
	store := storage.NewMemory()
	path := writeJPEG(t)
	id := seedImage(t, store, path)
	a := &scriptedAnalyzer{failAll: true, fallbackOK: true}

	require.Error(t, newTestEnricher(store, a, 1, false).Run(context.Background(), Task{ImageID: id, ProcessedPath: path}))
	assert.Equal(t, 2, a.primary)
	assert.Zero(t, a.fallback)
}

func TestEnricherMissingPreview(t *testing.T) {
	store := storage.NewMemory()
	id := seedImage(t, store, "/does/not/exist.jpg")

	err := newTestEnricher(store, &scriptedAnalyzer{}, 0, false).Run(context.Background(), Task{ImageID: id, ProcessedPath: "/does/not/exist.jpg"})
	require.Error(t, err)

	img, err := store.GetImage(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.ImageStatusError, img.Status)
}

type countingRunner struct {
	running atomic.Int32
	peak    atomic.Int32
	done    atomic.Int32
	delay   time.Duration
}

func (r *countingRunner) Run(ctx context.Context, _ Task) error {
	n := r.running.Add(1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
	}
	r.running.Add(-1)
	r.done.Add(1)
	return nil
}

func TestPoolBoundsConcurrency(t *testing.T) {
	r := &countingRunner{delay: 20 * time.Millisecond}
	p := NewPool(r, 2, 0, logger.Discard())

	for i := 0; i < 8; i++ {
		require.NoError(t, p.Schedule(context.Background(), Task{ImageID: int64(i)}))
	}
	require.NoError(t, p.Close(context.Background()))

	assert.Equal(t, int32(8), r.done.Load())
	assert.LessOrEqual(t, r.peak.Load(), int32(2))

	assert.ErrorIs(t, p.Schedule(context.Background(), Task{}), ErrClosed)
}

func TestPoolCloseTimeoutCancelsTasks(t *testing.T) {
	r := &countingRunner{delay: time.Minute}
	p := NewPool(r, 1, 0, logger.Discard())
	require.NoError(t, p.Schedule(context.Background(), Task{ImageID: 1}))
	require.NoError(t, p.Schedule(context.Background(), Task{ImageID: 2}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type panicRunner struct{}

func (panicRunner) Run(context.Context, Task) error { panic("boom") }

func TestPoolRecoversPanics(t *testing.T) {
	p := NewPool(panicRunner{}, 1, 0, logger.Discard())
	require.NoError(t, p.Schedule(context.Background(), Task{ImageID: 1}))
	require.NoError(t, p.Close(context.Background()))
}
