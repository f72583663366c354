package transform

import (
	"regexp"
	"strings"
)

// MaxFilenameLength bounds sanitized base names.
const MaxFilenameLength = 200

const (
	placeholderName = "image"
	processedSuffix = "_processed.jpg"
	thumbnailSuffix = "_thumb.jpg"
)

var (
	unsafeChars       = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	repeatedSeparator = regexp.MustCompile(`[._-]{2,}`)
)

// SanitizeFilename reduces name to [A-Za-z0-9._-], collapses whitespace and
// repeated separators, trims separators at both ends and caps the length.
// It never returns an empty string.
func SanitizeFilename(name string) string {
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeChars.ReplaceAllString(name, "_")
	name = repeatedSeparator.ReplaceAllStringFunc(name, func(s string) string { return s[:1] })
	name = strings.Trim(name, "._-")
	if len(name) > MaxFilenameLength {
		name = strings.TrimRight(name[:MaxFilenameLength], "._-")
	}
	if name == "" {
		return placeholderName
	}
	return name
}

// ProcessedName is the file name of the preview artifact for base.
func ProcessedName(base string) string {
	return SanitizeFilename(base) + processedSuffix
}

// ThumbnailName is the file name of the thumbnail artifact for base.
func ThumbnailName(base string) string {
	return SanitizeFilename(base) + thumbnailSuffix
}
