// Package format classifies image files by extension.
package format

import (
	"maps"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultMimeType is returned for unknown extensions.
const DefaultMimeType = "application/octet-stream"

type info struct {
	mime string
	raw  bool
}

var formats = map[string]info{
	".jpg":  {"image/jpeg", false},
	".jpeg": {"image/jpeg", false},
	".png":  {"image/png", false},
	".tiff": {"image/tiff", false},
	".tif":  {"image/tiff", false},
	".cr2":  {"image/x-canon-cr2", true},
	".nef":  {"image/x-nikon-nef", true},
	".arw":  {"image/x-sony-arw", true},
	".dng":  {"image/x-adobe-dng", true},
	".raf":  {"image/x-fuji-raf", true},
	".orf":  {"image/x-olympus-orf", true},
	".rw2":  {"image/x-panasonic-rw2", true},
}

func lookup(filename string) (info, bool) {
	i, ok := formats[strings.ToLower(filepath.Ext(filename))]
	return i, ok
}

// IsSupported reports whether filename has a supported image extension.
func IsSupported(filename string) bool {
	_, ok := lookup(filename)
	return ok
}

// IsRaw reports whether filename is a camera RAW container.
func IsRaw(filename string) bool {
	i, _ := lookup(filename)
	return i.raw
}

// MimeType returns the MIME type for filename's extension.
func MimeType(filename string) string {
	if i, ok := lookup(filename); ok {
		return i.mime
	}
	return DefaultMimeType
}

// Extensions lists the supported extensions, sorted, lowercase with
// leading dot.
func Extensions() []string {
	return slices.Sorted(maps.Keys(formats))
}
