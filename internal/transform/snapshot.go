package transform

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

const (
	snapshotFieldLimit = 500
	snapshotTotalLimit = 10 * 1024
)

// snapshotFields is the allow-list of tags kept in the raw EXIF snapshot.
var snapshotFields = []string{
	"Make", "Model", "Software", "LensModel",
	"DateTime", "DateTimeOriginal", "DateTimeDigitized",
	"ExposureTime", "FNumber", "ISOSpeedRatings", "FocalLength", "FocalLengthIn35mmFilm",
	"Flash", "ExposureProgram", "ExposureBiasValue", "MeteringMode", "WhiteBalance",
	"ColorSpace", "Orientation", "XResolution", "YResolution", "ResolutionUnit",
	"PixelXDimension", "PixelYDimension",
	"ImageDescription", "Artist", "Copyright",
	"GPSLatitude", "GPSLatitudeRef", "GPSLongitude", "GPSLongitudeRef",
	"GPSAltitude", "GPSAltitudeRef", "GPSTimeStamp", "GPSDateStamp",
}

// buildSnapshot encodes values as JSON with every value truncated to
// snapshotFieldLimit characters. If the encoding exceeds snapshotTotalLimit
// bytes an error marker is stored instead.
func buildSnapshot(values map[string]string) string {
	if len(values) == 0 {
		return ""
	}
	bounded := make(map[string]string, len(values))
	for k, v := range values {
		bounded[k] = truncateRunes(v, snapshotFieldLimit)
	}
	data, err := json.Marshal(bounded)
	if err != nil {
		return errorMarker(err.Error())
	}
	if len(data) > snapshotTotalLimit {
		return errorMarker(fmt.Sprintf("raw exif snapshot exceeds %d bytes", snapshotTotalLimit))
	}
	return string(data)
}

func errorMarker(msg string) string {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return string(data)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
