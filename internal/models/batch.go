package models

import "time"

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

const (
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusError      BatchStatus = "error"
)

// Terminal reports whether no further transition is possible.
func (s BatchStatus) Terminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusError
}

// ErrorType categorizes a per-file entry in a batch result.
type ErrorType string

const (
	ErrorTypeDuplicate   ErrorType = "duplicate"
	ErrorTypeProcessing  ErrorType = "processing"
	ErrorTypeUnsupported ErrorType = "unsupported"
)

const (
	DefaultThumbnailSize     = 300
	DefaultAnalysisImageSize = 1024
	DefaultQuality           = 85

	MinThumbnailSize     = 100
	MaxThumbnailSize     = 800
	MinAnalysisImageSize = 512
	MaxAnalysisImageSize = 2048
	MinQuality           = 50
	MaxQuality           = 100
)

// Options controls how a batch transforms its files.
type Options struct {
	ThumbnailSize     int   `json:"thumbnail_size,omitempty" yaml:"thumbnail_size"`
	AnalysisImageSize int   `json:"analysis_image_size,omitempty" yaml:"analysis_image_size"`
	Quality           int   `json:"quality,omitempty" yaml:"quality"`
	SkipDuplicates    *bool `json:"skip_duplicates,omitempty" yaml:"skip_duplicates"`
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	skip := true
	return Options{
		ThumbnailSize:     DefaultThumbnailSize,
		AnalysisImageSize: DefaultAnalysisImageSize,
		Quality:           DefaultQuality,
		SkipDuplicates:    &skip,
	}
}

// Normalize fills unset fields from defaults and clamps the rest into their
// accepted ranges.
func (o Options) Normalize(defaults Options) Options {
	if o.ThumbnailSize == 0 {
		o.ThumbnailSize = defaults.ThumbnailSize
	}
	if o.AnalysisImageSize == 0 {
		o.AnalysisImageSize = defaults.AnalysisImageSize
	}
	if o.Quality == 0 {
		o.Quality = defaults.Quality
	}
	if o.SkipDuplicates == nil {
		skip := defaults.SkipDuplicates == nil || *defaults.SkipDuplicates
		o.SkipDuplicates = &skip
	}
	o.ThumbnailSize = clamp(o.ThumbnailSize, MinThumbnailSize, MaxThumbnailSize)
	o.AnalysisImageSize = clamp(o.AnalysisImageSize, MinAnalysisImageSize, MaxAnalysisImageSize)
	o.Quality = clamp(o.Quality, MinQuality, MaxQuality)
	return o
}

// SkipDuplicatesEnabled dereferences SkipDuplicates, defaulting to true.
func (o Options) SkipDuplicatesEnabled() bool {
	return o.SkipDuplicates == nil || *o.SkipDuplicates
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// FileError is one per-file entry in a batch result.
type FileError struct {
	Path    string    `json:"path"`
	Message string    `json:"message"`
	Type    ErrorType `json:"type"`
}

// BatchResult aggregates the outcome of a batch.
type BatchResult struct {
	TotalFiles      int         `json:"total_files"`
	ProcessedFiles  int         `json:"processed_files"`
	SuccessfulFiles int         `json:"successful_files"`
	DuplicateFiles  int         `json:"duplicate_files"`
	ErrorFiles      int         `json:"error_files"`
	Errors          []FileError `json:"errors"`
	Images          []Image     `json:"images"`
	Status          BatchStatus `json:"status"`
	Message         string      `json:"message,omitempty"`
	StartTime       time.Time   `json:"start_time"`
	EndTime         *time.Time  `json:"end_time,omitempty"`
}

// Batch is a snapshot of one batch and its result.
type Batch struct {
	ID         string      `json:"id"`
	FolderPath string      `json:"folder_path"`
	Options    Options     `json:"options"`
	Result     BatchResult `json:"result"`
}

// BatchSummary is the list view of a batch.
type BatchSummary struct {
	ID              string      `json:"id"`
	FolderPath      string      `json:"folder_path"`
	Status          BatchStatus `json:"status"`
	TotalFiles      int         `json:"total_files"`
	ProcessedFiles  int         `json:"processed_files"`
	SuccessfulFiles int         `json:"successful_files"`
	DuplicateFiles  int         `json:"duplicate_files"`
	ErrorFiles      int         `json:"error_files"`
	StartTime       time.Time   `json:"start_time"`
	EndTime         *time.Time  `json:"end_time,omitempty"`
}
