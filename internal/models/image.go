// Package models holds the records and configuration shared across the
// ingestion pipeline.
package models

import "time"

// ImageStatus is the lifecycle state of an image record.
type ImageStatus string

const (
	ImageStatusUploaded   ImageStatus = "uploaded"
	ImageStatusProcessing ImageStatus = "processing"
	ImageStatusCompleted  ImageStatus = "completed"
	ImageStatusError      ImageStatus = "error"
)

// Image is a stored image record. ID is assigned by the record store.
type Image struct {
	ID               int64       `json:"id" db:"id"`
	Filename         string      `json:"filename" db:"filename"`
	OriginalFilename string      `json:"original_filename" db:"original_filename"`
	Path             string      `json:"path" db:"path"`
	OriginalPath     string      `json:"original_path,omitempty" db:"original_path"` // batch mode only
	ProcessedPath    string      `json:"processed_path" db:"processed_path"`
	ThumbnailPath    string      `json:"thumbnail_path" db:"thumbnail_path"`
	FileSize         int64       `json:"file_size" db:"file_size"`
	MimeType         string      `json:"mime_type" db:"mime_type"`
	Width            int         `json:"width" db:"width"`
	Height           int         `json:"height" db:"height"`
	UploadedAt       time.Time   `json:"uploaded_at" db:"uploaded_at"`
	ProcessedAt      *time.Time  `json:"processed_at,omitempty" db:"processed_at"`
	Status           ImageStatus `json:"status" db:"status"` // uploaded, processing, completed, error
	ErrorMessage     string      `json:"error_message,omitempty" db:"error_message"`
}

// Analysis is the vision-model output for one image.
type Analysis struct {
	ID          int64     `json:"id" db:"id"`
	ImageID     int64     `json:"image_id" db:"image_id"`
	Description string    `json:"description" db:"description"`
	Caption     string    `json:"caption" db:"caption"`
	Keywords    []string  `json:"keywords" db:"keywords"`
	Confidence  float64   `json:"confidence" db:"confidence"`
	AnalyzedAt  time.Time `json:"analyzed_at" db:"analyzed_at"`
}

// Metadata is the EXIF/XMP data extracted from an image file.
type Metadata struct {
	ImageID int64 `json:"image_id" db:"image_id"`

	Latitude  *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude *float64 `json:"longitude,omitempty" db:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty" db:"altitude"`

	CameraMake  string     `json:"camera_make,omitempty" db:"camera_make"`
	CameraModel string     `json:"camera_model,omitempty" db:"camera_model"`
	Software    string     `json:"software,omitempty" db:"software"`
	LensModel   string     `json:"lens_model,omitempty" db:"lens_model"`
	DateTaken   *time.Time `json:"date_taken,omitempty" db:"date_taken"`

	ExposureTime string   `json:"exposure_time,omitempty" db:"exposure_time"`
	FNumber      *float64 `json:"f_number,omitempty" db:"f_number"`
	ISO          *int     `json:"iso,omitempty" db:"iso"`
	FocalLength  *float64 `json:"focal_length,omitempty" db:"focal_length"`
	Flash        *int     `json:"flash,omitempty" db:"flash"`

	Title       string `json:"title,omitempty" db:"title"`
	Description string `json:"description,omitempty" db:"description"`
	Keywords    string `json:"keywords,omitempty" db:"keywords"`
	Creator     string `json:"creator,omitempty" db:"creator"`
	Copyright   string `json:"copyright,omitempty" db:"copyright"`
	City        string `json:"city,omitempty" db:"city"`
	State       string `json:"state,omitempty" db:"state"`
	Country     string `json:"country,omitempty" db:"country"`
	Location    string `json:"location,omitempty" db:"location"`

	ColorSpace     string   `json:"color_space,omitempty" db:"color_space"`
	Orientation    *int     `json:"orientation,omitempty" db:"orientation"`
	XResolution    *float64 `json:"x_resolution,omitempty" db:"x_resolution"`
	YResolution    *float64 `json:"y_resolution,omitempty" db:"y_resolution"`
	ResolutionUnit string   `json:"resolution_unit,omitempty" db:"resolution_unit"`

	// RawEXIF is an opaque JSON snapshot kept for diagnostics.
	RawEXIF string `json:"-" db:"raw_exif"`
}

// Empty reports whether nothing useful was extracted.
func (m *Metadata) Empty() bool {
	return m.Latitude == nil && m.Longitude == nil && m.Altitude == nil &&
		m.CameraMake == "" && m.CameraModel == "" && m.Software == "" && m.LensModel == "" &&
		m.DateTaken == nil && m.ExposureTime == "" && m.FNumber == nil && m.ISO == nil &&
		m.FocalLength == nil && m.Flash == nil &&
		m.Title == "" && m.Description == "" && m.Keywords == "" && m.Creator == "" &&
		m.Copyright == "" && m.City == "" && m.State == "" && m.Country == "" && m.Location == "" &&
		m.ColorSpace == "" && m.Orientation == nil && m.XResolution == nil && m.YResolution == nil
}
