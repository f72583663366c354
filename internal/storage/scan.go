package storage

import (
	"database/sql"
	"errors"

	"photoingest/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

const imageColumns = `id, filename, original_filename, path, original_path, processed_path,
	thumbnail_path, file_size, mime_type, width, height, uploaded_at, processed_at,
	status, error_message`

// rowScanner is satisfied by both pgx.Row and *sql.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (*models.Image, error) {
	var (
		img          models.Image
		originalPath sql.NullString
		processedAt  sql.NullTime
		status       string
		errorMessage sql.NullString
	)
	err := row.Scan(&img.ID, &img.Filename, &img.OriginalFilename, &img.Path, &originalPath,
		&img.ProcessedPath, &img.ThumbnailPath, &img.FileSize, &img.MimeType, &img.Width,
		&img.Height, &img.UploadedAt, &processedAt, &status, &errorMessage)
	if err != nil {
		return nil, err
	}
	img.OriginalPath = originalPath.String
	img.ErrorMessage = errorMessage.String
	img.Status = models.ImageStatus(status)
	if processedAt.Valid {
		t := processedAt.Time
		img.ProcessedAt = &t
	}
	return &img, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// finalStatus reports whether the status marks the end of processing and
// should stamp processed_at.
func finalStatus(s models.ImageStatus) bool {
	return s == models.ImageStatusCompleted || s == models.ImageStatusError
}

func metadataArgs(m *models.Metadata) []any {
	return []any{
		m.ImageID, m.Latitude, m.Longitude, m.Altitude,
		nullString(m.CameraMake), nullString(m.CameraModel), nullString(m.Software), nullString(m.LensModel),
		m.DateTaken, nullString(m.ExposureTime), m.FNumber, m.ISO, m.FocalLength, m.Flash,
		nullString(m.Title), nullString(m.Description), nullString(m.Keywords), nullString(m.Creator),
		nullString(m.Copyright), nullString(m.City), nullString(m.State), nullString(m.Country),
		nullString(m.Location), nullString(m.ColorSpace), m.Orientation, m.XResolution,
		m.YResolution, nullString(m.ResolutionUnit), nullString(m.RawEXIF),
	}
}

const metadataColumns = `image_id, latitude, longitude, altitude, camera_make, camera_model,
	software, lens_model, date_taken, exposure_time, f_number, iso, focal_length, flash,
	title, description, keywords, creator, copyright, city, state, country, location,
	color_space, orientation, x_resolution, y_resolution, resolution_unit, raw_exif`

func scanMetadata(row rowScanner) (*models.Metadata, error) {
	var (
		m    models.Metadata
		strs [17]sql.NullString
	)
	err := row.Scan(&m.ImageID, &m.Latitude, &m.Longitude, &m.Altitude,
		&strs[0], &strs[1], &strs[2], &strs[3],
		&m.DateTaken, &strs[4], &m.FNumber, &m.ISO, &m.FocalLength, &m.Flash,
		&strs[5], &strs[6], &strs[7], &strs[8],
		&strs[9], &strs[10], &strs[11], &strs[12],
		&strs[13], &strs[14], &m.Orientation, &m.XResolution,
		&m.YResolution, &strs[15], &strs[16])
	if err != nil {
		return nil, err
	}
	targets := []*string{
		&m.CameraMake, &m.CameraModel, &m.Software, &m.LensModel,
		&m.ExposureTime,
		&m.Title, &m.Description, &m.Keywords, &m.Creator,
		&m.Copyright, &m.City, &m.State, &m.Country,
		&m.Location, &m.ColorSpace,
		&m.ResolutionUnit, &m.RawEXIF,
	}
	for i, dst := range targets {
		*dst = strs[i].String
	}
	return &m, nil
}
