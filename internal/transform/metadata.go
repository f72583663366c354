package transform

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"photoingest/internal/models"
)

// ErrNoMetadata is returned when a file carries no recognizable metadata.
var ErrNoMetadata = errors.New("no metadata found")

// ExtractMetadata reads EXIF, GPS, IPTC and XMP fields from an image or RAW
// container. Later sources override earlier ones in that order.
func ExtractMetadata(data []byte) (*models.Metadata, error) {
	const op = "transform.ExtractMetadata"

	meta := &models.Metadata{}

	x, exifErr := decodeEXIF(data)
	if x != nil {
		fillFromEXIF(meta, x)
	}

	found := x != nil
	if fields := parseIPTC(data); len(fields) > 0 {
		fillFromIPTC(meta, fields)
		found = true
	}

	if packet := findXMPPacket(data); packet != nil {
		fields, err := parseXMP(packet)
		if len(fields) > 0 {
			fillFromXMP(meta, fields)
			found = true
		} else if err != nil && !found {
			return nil, fmt.Errorf("%s: xmp: %w", op, err)
		}
	}

	if !found {
		if exifErr != nil {
			return nil, fmt.Errorf("%s: %w", op, exifErr)
		}
		return nil, ErrNoMetadata
	}
	if meta.Empty() {
		return nil, ErrNoMetadata
	}
	return meta, nil
}

// decodeEXIF tolerates non-critical errors such as a broken GPS IFD.
func decodeEXIF(data []byte) (*exif.Exif, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return nil, err
	}
	return x, nil
}

func fillFromEXIF(meta *models.Metadata, x *exif.Exif) {
	meta.CameraMake = tagString(x, exif.Make)
	meta.CameraModel = tagString(x, exif.Model)
	meta.Software = tagString(x, exif.Software)
	meta.LensModel = tagString(x, exif.FieldName("LensModel"))
	meta.Description = tagString(x, exif.ImageDescription)
	meta.Creator = tagString(x, exif.Artist)
	meta.Copyright = tagString(x, exif.Copyright)
	meta.Title = tagUCS2(x, "XPTitle")

	if t, err := x.DateTime(); err == nil {
		meta.DateTaken = &t
	}

	meta.ExposureTime = exposureString(x)
	meta.FNumber = tagFloat(x, exif.FNumber)
	meta.ISO = tagInt(x, exif.ISOSpeedRatings)
	meta.FocalLength = tagFloat(x, exif.FocalLength)
	meta.Flash = tagInt(x, exif.Flash)

	if cs := tagInt(x, exif.ColorSpace); cs != nil {
		meta.ColorSpace = colorSpaceName(*cs)
	}
	meta.Orientation = tagInt(x, exif.Orientation)
	meta.XResolution = tagFloat(x, exif.XResolution)
	meta.YResolution = tagFloat(x, exif.YResolution)
	if ru := tagInt(x, exif.ResolutionUnit); ru != nil {
		meta.ResolutionUnit = resolutionUnitName(*ru)
	}

	if kw := tagUCS2(x, "XPKeywords"); kw != "" {
		meta.Keywords = joinKeywords(strings.Split(kw, ";"))
	}

	meta.Latitude = gpsCoordinate(x, exif.GPSLatitude, exif.GPSLatitudeRef)
	meta.Longitude = gpsCoordinate(x, exif.GPSLongitude, exif.GPSLongitudeRef)
	if alt := tagFloat(x, exif.GPSAltitude); alt != nil {
		if ref := tagInt(x, exif.GPSAltitudeRef); ref != nil && *ref == 1 {
			*alt = -*alt
		}
		meta.Altitude = alt
	}

	values := make(map[string]string, len(snapshotFields))
	for _, name := range snapshotFields {
		if tag, err := x.Get(exif.FieldName(name)); err == nil {
			values[name] = tagText(tag)
		}
	}
	meta.RawEXIF = buildSnapshot(values)
}

// fillFromXMP overrides descriptive fields with their XMP values, which are
// usually more complete than the EXIF equivalents.
func fillFromXMP(meta *models.Metadata, f xmpFields) {
	setIf(&meta.Title, f.first("dc:title", "photoshop:Headline"))
	setIf(&meta.Description, f.first("dc:description"))
	setIf(&meta.Creator, f.joined("dc:creator", ", "))
	setIf(&meta.Copyright, f.first("dc:rights"))
	setIf(&meta.City, f.first("photoshop:City"))
	setIf(&meta.State, f.first("photoshop:State"))
	setIf(&meta.Country, f.first("photoshop:Country", "iptc:CountryName"))
	setIf(&meta.Location, f.first("iptc:Location"))
	if kw := f["dc:subject"]; len(kw) > 0 {
		existing := strings.Split(meta.Keywords, ", ")
		meta.Keywords = joinKeywords(append(kw, existing...))
	}
	if meta.Latitude == nil {
		if v, ok := ParseXMPCoordinate(f.first("exif:GPSLatitude")); ok {
			meta.Latitude = &v
		}
	}
	if meta.Longitude == nil {
		if v, ok := ParseXMPCoordinate(f.first("exif:GPSLongitude")); ok {
			meta.Longitude = &v
		}
	}
}

// fillFromIPTC applies IPTC-IIM record 2 datasets on top of the EXIF values.
func fillFromIPTC(meta *models.Metadata, f iptcFields) {
	setIf(&meta.Title, f.first(iptcObjectName, iptcHeadline))
	setIf(&meta.Description, f.first(iptcCaption))
	setIf(&meta.Creator, strings.Join(f[iptcByline], ", "))
	setIf(&meta.Copyright, f.first(iptcCopyright))
	setIf(&meta.City, f.first(iptcCity))
	setIf(&meta.State, f.first(iptcProvinceState))
	setIf(&meta.Country, f.first(iptcCountryName))
	setIf(&meta.Location, f.first(iptcSublocation))
	if kw := f[iptcKeywords]; len(kw) > 0 {
		existing := strings.Split(meta.Keywords, ", ")
		meta.Keywords = joinKeywords(append(kw, existing...))
	}
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// joinKeywords trims, de-duplicates case-insensitively and joins with ", ".
func joinKeywords(words []string) string {
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		key := strings.ToLower(w)
		if w == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, w)
	}
	return strings.Join(out, ", ")
}

func tagString(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(tagText(tag))
}

// tagText returns ASCII tags and single values as plain text. Lists keep
// goexif's JSON array rendering.
func tagText(tag *tiff.Tag) string {
	if tag.Format() == tiff.StringVal {
		if s, err := tag.StringVal(); err == nil {
			return strings.TrimSpace(strings.TrimRight(s, "\x00"))
		}
	}
	if tag.Count == 1 {
		return strings.Trim(tag.String(), `"`)
	}
	return tag.String()
}

// tagUCS2 decodes the Windows XP* tags, stored as UTF-16LE byte arrays.
func tagUCS2(x *exif.Exif, name string) string {
	tag, err := x.Get(exif.FieldName(name))
	if err != nil || len(tag.Val) < 2 {
		return ""
	}
	units := make([]uint16, 0, len(tag.Val)/2)
	for i := 0; i+1 < len(tag.Val); i += 2 {
		u := uint16(tag.Val[i]) | uint16(tag.Val[i+1])<<8
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return strings.TrimSpace(string(utf16.Decode(units)))
}

func tagFloat(x *exif.Exif, name exif.FieldName) *float64 {
	tag, err := x.Get(name)
	if err != nil {
		return nil
	}
	var v float64
	switch tag.Format() {
	case tiff.RatVal:
		num, den, err := tag.Rat2(0)
		if err != nil || den == 0 {
			return nil
		}
		v = float64(num) / float64(den)
	case tiff.IntVal:
		i, err := tag.Int(0)
		if err != nil {
			return nil
		}
		v = float64(i)
	case tiff.FloatVal:
		f, err := tag.Float(0)
		if err != nil {
			return nil
		}
		v = f
	default:
		return nil
	}
	return &v
}

func tagInt(x *exif.Exif, name exif.FieldName) *int {
	tag, err := x.Get(name)
	if err != nil || tag.Format() != tiff.IntVal {
		return nil
	}
	i, err := tag.Int(0)
	if err != nil {
		return nil
	}
	return &i
}

func exposureString(x *exif.Exif) string {
	tag, err := x.Get(exif.ExposureTime)
	if err != nil || tag.Format() != tiff.RatVal {
		return ""
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return ""
	}
	if num > 0 && num < den && den%num == 0 {
		return fmt.Sprintf("1/%d", den/num)
	}
	return fmt.Sprintf("%g", float64(num)/float64(den))
}

// gpsCoordinate reads a GPS rational triple (or single decimal) and its
// hemisphere reference.
func gpsCoordinate(x *exif.Exif, valueField, refField exif.FieldName) *float64 {
	tag, err := x.Get(valueField)
	if err != nil || tag.Format() != tiff.RatVal {
		return nil
	}
	values := make([]float64, 0, tag.Count)
	for i := 0; i < int(tag.Count); i++ {
		num, den, err := tag.Rat2(i)
		if err != nil || den == 0 {
			return nil
		}
		values = append(values, float64(num)/float64(den))
	}
	v, ok := NormalizeCoordinate(values, tagString(x, refField))
	if !ok {
		return nil
	}
	return &v
}

func colorSpaceName(v int) string {
	switch v {
	case 1:
		return "sRGB"
	case 2:
		return "Adobe RGB"
	case 0xFFFF:
		return "Uncalibrated"
	default:
		return fmt.Sprintf("%d", v)
	}
}

func resolutionUnitName(v int) string {
	switch v {
	case 2:
		return "inches"
	case 3:
		return "centimeters"
	default:
		return "none"
	}
}
