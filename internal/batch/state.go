package batch

import (
	"context"
	"slices"
	"sync"
	"time"

	"photoingest/internal/models"
)

// state is one batch owned by the orchestrator. The run loop mutates result
// under mu; readers only ever see copies.
type state struct {
	id     string
	folder string
	opts   models.Options

	mu     sync.RWMutex
	result models.BatchResult

	cancel context.CancelFunc
	done   chan struct{}
}

func newState(id, folder string, opts models.Options, cancel context.CancelFunc) *state {
	return &state{
		id:     id,
		folder: folder,
		opts:   opts,
		result: models.BatchResult{
			Status:    models.BatchStatusProcessing,
			StartTime: time.Now(),
			Errors:    []models.FileError{},
			Images:    []models.Image{},
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (s *state) setTotal(n int) {
	s.mu.Lock()
	s.result.TotalFiles = n
	s.mu.Unlock()
}

func (s *state) recordSuccess(img models.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result.SuccessfulFiles++
	s.result.ProcessedFiles++
	s.result.Images = append(s.result.Images, img)
}

func (s *state) recordDuplicate(path, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result.DuplicateFiles++
	s.result.ProcessedFiles++
	s.result.Errors = append(s.result.Errors, models.FileError{Path: path, Message: msg, Type: models.ErrorTypeDuplicate})
}

func (s *state) recordFailure(path, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result.ErrorFiles++
	s.result.ProcessedFiles++
	s.result.Errors = append(s.result.Errors, models.FileError{Path: path, Message: msg, Type: models.ErrorTypeProcessing})
}

// finish moves the batch to a terminal status. Later calls are no-ops.
func (s *state) finish(status models.BatchStatus, msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result.Status.Terminal() {
		return false
	}
	now := time.Now()
	s.result.Status = status
	s.result.Message = msg
	s.result.EndTime = &now
	return true
}

func (s *state) terminal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result.Status.Terminal()
}

func (s *state) snapshot() models.Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := s.result
	res.Errors = slices.Clone(s.result.Errors)
	res.Images = slices.Clone(s.result.Images)
	if s.result.EndTime != nil {
		end := *s.result.EndTime
		res.EndTime = &end
	}
	return models.Batch{ID: s.id, FolderPath: s.folder, Options: s.opts, Result: res}
}

func (s *state) summary() models.BatchSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.BatchSummary{
		ID:              s.id,
		FolderPath:      s.folder,
		Status:          s.result.Status,
		TotalFiles:      s.result.TotalFiles,
		ProcessedFiles:  s.result.ProcessedFiles,
		SuccessfulFiles: s.result.SuccessfulFiles,
		DuplicateFiles:  s.result.DuplicateFiles,
		ErrorFiles:      s.result.ErrorFiles,
		StartTime:       s.result.StartTime,
		EndTime:         s.result.EndTime,
	}
}
