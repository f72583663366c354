package transform

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photoingest/internal/logger"
)

func newTestEngine(t *testing.T) (*Engine, string, string) {
	t.Helper()
	processed := t.TempDir()
	thumbs := t.TempDir()
	return NewEngine(processed, thumbs, 50<<20, logger.Discard()), processed, thumbs
}

var testOpts = Options{ThumbnailSize: 300, AnalysisImageSize: 1024, Quality: 85}

func TestTransformJPEG(t *testing.T) {
	engine, _, thumbs := newTestEngine(t)
	src := writeJPEG(t, t.TempDir(), "Summer Trip.jpg", 1200, 800)

	res, err := engine.Transform(context.Background(), src, testOpts)
	require.NoError(t, err)

	assert.Equal(t, src, res.PreviewPath, "non-RAW preview is the source itself")
	assert.Equal(t, filepath.Join(thumbs, "Summer_Trip_thumb.jpg"), res.ThumbnailPath)
	assert.Equal(t, 1200, res.Width)
	assert.Equal(t, 800, res.Height)
	assert.Nil(t, res.Metadata)

	w, h := imageSize(t, res.ThumbnailPath)
	assert.Equal(t, 300, w)
	assert.Equal(t, 200, h)
	assert.Equal(t, []string{res.ThumbnailPath}, res.Artifacts(src))
}

func TestTransformNeverUpscales(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	src := writePNG(t, t.TempDir(), "tiny.png", 50, 40)

	res, err := engine.Transform(context.Background(), src, testOpts)
	require.NoError(t, err)

	w, h := imageSize(t, res.ThumbnailPath)
	assert.Equal(t, 50, w)
	assert.Equal(t, 40, h)
}

func TestTransformCorruptFile(t *testing.T) {
	engine, _, thumbs := newTestEngine(t)
	src := filepath.Join(t.TempDir(), "broken.jpg")
	require.NoError(t, os.WriteFile(src, []byte("definitely not a jpeg"), 0o644))

	_, err := engine.Transform(context.Background(), src, testOpts)
	var terr *Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, src, terr.Path)

	entries, err := os.ReadDir(thumbs)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTransformRawExtractsEmbeddedPreview(t *testing.T) {
	engine, processed, _ := newTestEngine(t)
	src := filepath.Join(t.TempDir(), "IMG_0001.CR2")
	require.NoError(t, os.WriteFile(src, fakeRaw(jpegBytes(t, 1600, 1200)), 0o644))

	res, err := engine.Transform(context.Background(), src, testOpts)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(processed, "IMG_0001_processed.jpg"), res.PreviewPath)
	assert.Equal(t, 1600, res.Width)
	assert.Equal(t, 1200, res.Height)

	w, h := imageSize(t, res.PreviewPath)
	assert.Equal(t, 1024, w)
	assert.Equal(t, 768, h)
	assert.ElementsMatch(t, []string{res.ThumbnailPath, res.PreviewPath}, res.Artifacts(src))
}

func TestTransformRawPicksLargestPreview(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	payload := append(jpegBytes(t, 160, 120), jpegBytes(t, 640, 480)...)
	src := filepath.Join(t.TempDir(), "DSC_1.nef")
	require.NoError(t, os.WriteFile(src, fakeRaw(payload), 0o644))

	res, err := engine.Transform(context.Background(), src, testOpts)
	require.NoError(t, err)
	assert.Equal(t, 640, res.Width)
	assert.Equal(t, 480, res.Height)
}

func TestTransformRawSkipsTruncatedPreview(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	large := jpegBytes(t, 1600, 1200)
	truncated := large[:len(large)/2]
	_, err := jpeg.DecodeConfig(bytes.NewReader(truncated))
	require.NoError(t, err, "header survives truncation")

	payload := append(jpegBytes(t, 640, 480), truncated...)
	src := filepath.Join(t.TempDir(), "DSC_2.arw")
	require.NoError(t, os.WriteFile(src, fakeRaw(payload), 0o644))

	res, err := engine.Transform(context.Background(), src, testOpts)
	require.NoError(t, err)
	assert.Equal(t, 640, res.Width)
	assert.Equal(t, 480, res.Height)
}

func TestTransformRawWithoutPreviewFails(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	src := filepath.Join(t.TempDir(), "empty.dng")
	require.NoError(t, os.WriteFile(src, fakeRaw(nil), 0o644))

	_, err := engine.Transform(context.Background(), src, testOpts)
	var terr *Error
	assert.True(t, errors.As(err, &terr))
}

func TestTransformCancelledContext(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	src := writeJPEG(t, t.TempDir(), "a.jpg", 10, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Transform(ctx, src, testOpts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalysisImage(t *testing.T) {
	src := writeJPEG(t, t.TempDir(), "wide.jpg", 3000, 1000)

	data, err := AnalysisImage(src, 1024, 85)
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Width)
	assert.Equal(t, 341, cfg.Height)
}

func TestTransformMetadataSizeThreshold(t *testing.T) {
	data := withSegments(jpegBytes(t, 64, 48), sampleEXIF())
	src := filepath.Join(t.TempDir(), "canon.jpg")
	require.NoError(t, os.WriteFile(src, data, 0o644))

	engine, _, _ := newTestEngine(t)
	res, err := engine.Transform(context.Background(), src, testOpts)
	require.NoError(t, err)
	require.NotNil(t, res.Metadata)
	assert.Equal(t, "Canon", res.Metadata.CameraMake)

	small := NewEngine(t.TempDir(), t.TempDir(), int64(len(data)-1), logger.Discard())
	res, err = small.Transform(context.Background(), src, testOpts)
	require.NoError(t, err)
	assert.Nil(t, res.Metadata, "files above the threshold skip extraction")
	assert.FileExists(t, res.ThumbnailPath)
}
