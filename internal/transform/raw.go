package transform

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"slices"

	"github.com/disintegration/imaging"
	"golang.org/x/image/tiff"
)

// maxPreviewCandidates bounds how many embedded JPEG streams are considered.
const maxPreviewCandidates = 32

var (
	jpegSOI = []byte{0xFF, 0xD8, 0xFF}

	errNoPreview = errors.New("no embedded preview found")
)

// decodeRaw produces a displayable image from a camera RAW container. The
// largest embedded JPEG preview that decodes wins; failing that the container
// is decoded directly as TIFF, which covers uncompressed DNG and similar files.
func decodeRaw(data []byte) (image.Image, error) {
	img, previewErr := embeddedPreview(data)
	if previewErr == nil {
		return img, nil
	}
	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%v; direct decode: %w", previewErr, err)
	}
	return img, nil
}

func embeddedPreview(data []byte) (image.Image, error) {
	var candidates [][]byte
	orientation := 1
	if x, err := decodeEXIF(data); x != nil && err == nil {
		if thumb, err := x.JpegThumbnail(); err == nil {
			candidates = append(candidates, thumb)
		}
		if o := tagInt(x, "Orientation"); o != nil {
			orientation = *o
		}
	}
	candidates = append(candidates, scanJPEGStreams(data, maxPreviewCandidates)...)

	type preview struct {
		data []byte
		area int
	}
	var previews []preview
	for _, c := range candidates {
		cfg, err := jpeg.DecodeConfig(bytes.NewReader(c))
		if err != nil {
			continue
		}
		previews = append(previews, preview{data: c, area: cfg.Width * cfg.Height})
	}
	if len(previews) == 0 {
		return nil, errNoPreview
	}
	slices.SortStableFunc(previews, func(a, b preview) int { return cmp.Compare(b.area, a.area) })

	// A valid header does not guarantee a decodable stream.
	var errs []error
	for _, p := range previews {
		img, err := imaging.Decode(bytes.NewReader(p.data))
		if err == nil {
			return orient(img, orientation), nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("decode embedded preview: %w", errors.Join(errs...))
}

// scanJPEGStreams returns slices of data starting at each JPEG start-of-image
// marker. The JPEG decoder stops at end-of-image, so trailing bytes are harmless.
func scanJPEGStreams(data []byte, limit int) [][]byte {
	var out [][]byte
	for off := 0; off < len(data) && len(out) < limit; {
		i := bytes.Index(data[off:], jpegSOI)
		if i < 0 {
			break
		}
		start := off + i
		out = append(out, data[start:])
		off = start + len(jpegSOI)
	}
	return out
}

// orient applies an EXIF orientation value. Embedded previews rarely carry
// their own orientation tag, so the container's value is used.
func orient(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
