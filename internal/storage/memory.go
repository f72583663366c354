package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"photoingest/internal/models"
)

// Memory is a process-local record store. Records are lost on exit.
type Memory struct {
	mu       sync.RWMutex
	nextID   int64
	images   map[int64]models.Image
	analysis map[int64]models.Analysis
	metadata map[int64]models.Metadata
}

func NewMemory() *Memory {
	return &Memory{
		images:   make(map[int64]models.Image),
		analysis: make(map[int64]models.Analysis),
		metadata: make(map[int64]models.Metadata),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) InsertImage(_ context.Context, img *models.Image) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if img.UploadedAt.IsZero() {
		img.UploadedAt = time.Now().UTC()
	}
	if img.Status == "" {
		img.Status = models.ImageStatusUploaded
	}
	m.nextID++
	img.ID = m.nextID
	m.images[img.ID] = *img
	return img.ID, nil
}

func (m *Memory) UpdateImageStatus(_ context.Context, id int64, status models.ImageStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	img, ok := m.images[id]
	if !ok {
		return fmt.Errorf("storage.Memory.UpdateImageStatus: image %d: %w", id, ErrNotFound)
	}
	img.Status = status
	img.ErrorMessage = errMsg
	if finalStatus(status) {
		now := time.Now().UTC()
		img.ProcessedAt = &now
	}
	m.images[id] = img
	return nil
}

func (m *Memory) GetImage(_ context.Context, id int64) (*models.Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	img, ok := m.images[id]
	if !ok {
		return nil, fmt.Errorf("storage.Memory.GetImage: image %d: %w", id, ErrNotFound)
	}
	return &img, nil
}

func (m *Memory) FindDuplicate(_ context.Context, originalFilename string, size int64) (*models.Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *models.Image
	for _, img := range m.images {
		if img.OriginalFilename != originalFilename || img.FileSize != size {
			continue
		}
		if img.Status == models.ImageStatusError {
			continue
		}
		if found == nil || img.ID > found.ID {
			found = &img
		}
	}
	return found, nil
}

func (m *Memory) InsertAnalysis(_ context.Context, a *models.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.AnalyzedAt.IsZero() {
		a.AnalyzedAt = time.Now().UTC()
	}
	if prev, ok := m.analysis[a.ImageID]; ok {
		a.ID = prev.ID
	} else {
		a.ID = int64(len(m.analysis) + 1)
	}
	stored := *a
	stored.Keywords = append([]string(nil), a.Keywords...)
	m.analysis[a.ImageID] = stored
	return nil
}

func (m *Memory) GetAnalysis(_ context.Context, imageID int64) (*models.Analysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.analysis[imageID]
	if !ok {
		return nil, fmt.Errorf("storage.Memory.GetAnalysis: analysis for image %d: %w", imageID, ErrNotFound)
	}
	a.Keywords = append([]string(nil), a.Keywords...)
	return &a, nil
}

func (m *Memory) InsertMetadata(_ context.Context, md *models.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.metadata[md.ImageID]; !ok {
		m.metadata[md.ImageID] = *md
	}
	return nil
}

func (m *Memory) GetMetadata(_ context.Context, imageID int64) (*models.Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	md, ok := m.metadata[imageID]
	if !ok {
		return nil, fmt.Errorf("storage.Memory.GetMetadata: metadata for image %d: %w", imageID, ErrNotFound)
	}
	return &md, nil
}
