package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photoingest/internal/batch"
	"photoingest/internal/enrich"
	"photoingest/internal/format"
	"photoingest/internal/logger"
	"photoingest/internal/models"
	"photoingest/internal/storage"
	"photoingest/internal/transform"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type nopScheduler struct {
	mu    sync.Mutex
	tasks []enrich.Task
}

func (n *nopScheduler) Schedule(_ context.Context, t enrich.Task) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tasks = append(n.tasks, t)
	return nil
}

type testEnv struct {
	srv       *Server
	store     *storage.Memory
	scheduler *nopScheduler
	cfg       *models.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	cfg := models.DefaultConfig()
	cfg.UploadDir = filepath.Join(root, "uploads")
	cfg.ThumbnailDir = filepath.Join(root, "thumbs")
	require.NoError(t, os.MkdirAll(cfg.UploadDir, 0o755))
	require.NoError(t, os.MkdirAll(cfg.ThumbnailDir, 0o755))

	store := storage.NewMemory()
	sched := &nopScheduler{}
	engine := transform.NewEngine(cfg.UploadDir, cfg.ThumbnailDir, cfg.MaxMetadataBytes, logger.Discard())
	orch := batch.New(store, engine, sched, batch.Config{
		UploadDir:    cfg.UploadDir,
		ThumbnailDir: cfg.ThumbnailDir,
		Defaults:     cfg.Defaults,
	}, logger.Discard())
	t.Cleanup(func() { _ = orch.Shutdown(context.Background()) })

	return &testEnv{
		srv:       NewServer(&cfg, orch, store, logger.Discard()),
		store:     store,
		scheduler: sched,
		cfg:       &cfg,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func (e *testEnv) doJSON(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return e.do(t, method, path, bytes.NewBuffer(data), "application/json")
}

func jpegData(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{G: 180, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func multipartBody(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealthcheck(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/healthcheck", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStartBatchValidation(t *testing.T) {
	env := newTestEnv(t)
	file := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, os.WriteFile(file, jpegData(t, 10, 10), 0o644))

	tests := []struct {
		name    string
		payload map[string]any
		code    int
	}{
		{"missing folder", map[string]any{}, http.StatusBadRequest},
		{"thumbnail too small", map[string]any{"folder_path": t.TempDir(), "thumbnail_size": 50}, http.StatusBadRequest},
		{"quality too high", map[string]any{"folder_path": t.TempDir(), "quality": 101}, http.StatusBadRequest},
		{"file not folder", map[string]any{"folder_path": file}, http.StatusBadRequest},
		{"ok", map[string]any{"folder_path": t.TempDir(), "thumbnail_size": 200, "skip_duplicates": false}, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.doJSON(t, http.MethodPost, "/api/batches", tt.payload)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}
}

func TestBatchLifecycle(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.jpg"), jpegData(t, 120, 90), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.jpg"), []byte("corrupt"), 0o644))

	w := env.doJSON(t, http.MethodPost, "/api/batches", map[string]any{"folder_path": dir})
	require.Equal(t, http.StatusAccepted, w.Code)
	var started struct {
		BatchID string `json:"batch_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	require.NotEmpty(t, started.BatchID)

	var b models.Batch
	require.Eventually(t, func() bool {
		w := env.do(t, http.MethodGet, "/api/batches/"+started.BatchID, nil, "")
		if w.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(w.Body.Bytes(), &b); err != nil {
			return false
		}
		return b.Result.Status.Terminal()
	}, 10*time.Second, 10*time.Millisecond)

	assert.Equal(t, models.BatchStatusCompleted, b.Result.Status)
	assert.Equal(t, 2, b.Result.TotalFiles)
	assert.Equal(t, 1, b.Result.SuccessfulFiles)
	assert.Equal(t, 1, b.Result.ErrorFiles)

	w = env.do(t, http.MethodGet, "/api/batches", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Batches []models.BatchSummary `json:"batches"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Batches, 1)
	assert.Equal(t, started.BatchID, list.Batches[0].ID)

	thumb := b.Result.Images[0].ThumbnailPath
	w = env.do(t, http.MethodGet, "/thumbnails/"+filepath.Base(thumb), nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodDelete, "/api/batches", nil, "")
	assert.JSONEq(t, `{"removed":1}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/batches/"+started.BatchID, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(t, http.MethodDelete, "/api/batches/"+started.BatchID, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteBatch(t *testing.T) {
	env := newTestEnv(t)
	w := env.doJSON(t, http.MethodPost, "/api/batches", map[string]any{"folder_path": t.TempDir()})
	require.Equal(t, http.StatusAccepted, w.Code)
	var started struct {
		BatchID string `json:"batch_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))

	w = env.do(t, http.MethodDelete, "/api/batches/"+started.BatchID, nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestUploadAndFetchImage(t *testing.T) {
	env := newTestEnv(t)
	data := jpegData(t, 300, 200)

	body, ct := multipartBody(t, "sunset.jpg", data, map[string]string{"thumbnail_size": "150"})
	w := env.do(t, http.MethodPost, "/api/images", body, ct)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var img models.Image
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &img))
	assert.Equal(t, "sunset.jpg", img.OriginalFilename)
	assert.Equal(t, 300, img.Width)
	assert.Empty(t, img.OriginalPath)

	body, ct = multipartBody(t, "sunset.jpg", data, nil)
	w = env.do(t, http.MethodPost, "/api/images", body, ct)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodGet, "/api/images/"+itoa(img.ID), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Image    models.Image     `json:"image"`
		Analysis *models.Analysis `json:"analysis"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, img.ID, got.Image.ID)
	assert.Nil(t, got.Analysis)

	require.NoError(t, env.store.InsertAnalysis(context.Background(), &models.Analysis{ImageID: img.ID, Caption: "Sunset"}))
	w = env.do(t, http.MethodGet, "/api/images/"+itoa(img.ID), nil, "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.NotNil(t, got.Analysis)
	assert.Equal(t, "Sunset", got.Analysis.Caption)

	w = env.do(t, http.MethodGet, "/files/"+img.Filename, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUploadRejectsNonImages(t *testing.T) {
	env := newTestEnv(t)

	var rejected struct {
		Error     string   `json:"error"`
		Supported []string `json:"supported"`
	}

	body, ct := multipartBody(t, "readme.jpg", []byte("just some text, not a picture"), nil)
	w := env.do(t, http.MethodPost, "/api/images", body, ct)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rejected))
	assert.Contains(t, rejected.Supported, ".jpg")

	body, ct = multipartBody(t, "photo.gif", jpegData(t, 20, 20), nil)
	w = env.do(t, http.MethodPost, "/api/images", body, ct)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rejected))
	assert.Contains(t, rejected.Error, "photo.gif")
	assert.Equal(t, format.Extensions(), rejected.Supported)

	body, ct = multipartBody(t, "photo.jpg", jpegData(t, 20, 20), map[string]string{"quality": "10"})
	w = env.do(t, http.MethodPost, "/api/images", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/images", &bytes.Buffer{}, "multipart/form-data; boundary=x")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetImageErrors(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/images/abc", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/images/99", nil, "").Code)
}

func TestAnalyzeImage(t *testing.T) {
	env := newTestEnv(t)
	body, ct := multipartBody(t, "a.png.jpg", jpegData(t, 40, 40), nil)
	w := env.do(t, http.MethodPost, "/api/images", body, ct)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var img models.Image
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &img))

	w = env.do(t, http.MethodPost, "/api/images/"+itoa(img.ID)+"/analyze?fallback=true", nil, "")
	assert.Equal(t, http.StatusAccepted, w.Code)

	env.scheduler.mu.Lock()
	require.Len(t, env.scheduler.tasks, 2)
	assert.True(t, env.scheduler.tasks[1].UseFallback)
	env.scheduler.mu.Unlock()

	w = env.do(t, http.MethodPost, "/api/images/404/analyze", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "not found"))
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
