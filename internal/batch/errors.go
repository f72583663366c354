package batch

import (
	"errors"
	"fmt"

	"photoingest/internal/models"
)

var (
	// ErrInvalidPath is returned by Start when the folder does not exist, is
	// not a directory, or cannot be read.
	ErrInvalidPath = errors.New("invalid path")
	ErrUnsupported = errors.New("unsupported image format")
	ErrDuplicate   = errors.New("duplicate image")
	ErrShutdown    = errors.New("orchestrator is shutting down")

	errCancelled = errors.New("batch cancelled")
)

// DuplicateError carries the record an upload duplicates.
type DuplicateError struct {
	Existing *models.Image
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%v: %s matches image %d", ErrDuplicate, e.Existing.OriginalFilename, e.Existing.ID)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicate }
