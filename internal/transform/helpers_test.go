package transform

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/require"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(w, h), &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func writeJPEG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, jpegBytes(t, w, h), 0o644))
	return path
}

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(w, h)))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

// fakeRaw builds a minimal little-endian TIFF container with an empty IFD,
// followed by an optional embedded JPEG preview.
func fakeRaw(preview []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("II*\x00")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(8))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(0))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0))
	buf.Write(preview)
	return buf.Bytes()
}

func imageSize(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

// withSegments inserts marker segments right after the JPEG SOI marker.
func withSegments(jpegData []byte, segments ...[]byte) []byte {
	out := append([]byte(nil), jpegData[:2]...)
	for _, s := range segments {
		out = append(out, s...)
	}
	return append(out, jpegData[2:]...)
}

func appSegment(marker byte, payload []byte) []byte {
	seg := []byte{0xFF, marker, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(payload)+2))
	return append(seg, payload...)
}

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte
}

func asciiEntry(tag uint16, s string) ifdEntry {
	return ifdEntry{tag: tag, typ: 2, count: uint32(len(s) + 1), value: append([]byte(s), 0)}
}

func shortEntry(tag, v uint16) ifdEntry {
	return ifdEntry{tag: tag, typ: 3, count: 1, value: binary.LittleEndian.AppendUint16(nil, v)}
}

func longEntry(tag uint16, v uint32) ifdEntry {
	return ifdEntry{tag: tag, typ: 4, count: 1, value: binary.LittleEndian.AppendUint32(nil, v)}
}

func byteEntry(tag uint16, b []byte) ifdEntry {
	return ifdEntry{tag: tag, typ: 1, count: uint32(len(b)), value: b}
}

// ratEntry takes numerator/denominator pairs.
func ratEntry(tag uint16, parts ...uint32) ifdEntry {
	var v []byte
	for _, p := range parts {
		v = binary.LittleEndian.AppendUint32(v, p)
	}
	return ifdEntry{tag: tag, typ: 5, count: uint32(len(parts) / 2), value: v}
}

// ucs2 encodes s the way Windows writes the XP* tags.
func ucs2(s string) []byte {
	var out []byte
	for _, u := range utf16.Encode([]rune(s)) {
		out = binary.LittleEndian.AppendUint16(out, u)
	}
	return append(out, 0, 0)
}

// exifSegment builds a little-endian APP1 EXIF segment with IFD0 and
// optional Exif and GPS sub-IFDs.
func exifSegment(ifd0, exifIFD, gpsIFD []ifdEntry) []byte {
	le := binary.LittleEndian
	ifdSize := func(n int) uint32 {
		if n == 0 {
			return 0
		}
		return uint32(2 + 12*n + 4)
	}

	root := append([]ifdEntry(nil), ifd0...)
	pointers := 0
	if len(exifIFD) > 0 {
		pointers++
	}
	if len(gpsIFD) > 0 {
		pointers++
	}
	exifOff := 8 + ifdSize(len(root)+pointers)
	gpsOff := exifOff + ifdSize(len(exifIFD))
	dataOff := gpsOff + ifdSize(len(gpsIFD))
	if len(exifIFD) > 0 {
		root = append(root, longEntry(0x8769, exifOff))
	}
	if len(gpsIFD) > 0 {
		root = append(root, longEntry(0x8825, gpsOff))
	}

	var head, data bytes.Buffer
	head.WriteString("II*\x00")
	_ = binary.Write(&head, le, uint32(8))
	for _, entries := range [][]ifdEntry{root, exifIFD, gpsIFD} {
		if len(entries) == 0 {
			continue
		}
		_ = binary.Write(&head, le, uint16(len(entries)))
		for _, e := range entries {
			_ = binary.Write(&head, le, e.tag)
			_ = binary.Write(&head, le, e.typ)
			_ = binary.Write(&head, le, e.count)
			if len(e.value) <= 4 {
				inline := make([]byte, 4)
				copy(inline, e.value)
				head.Write(inline)
				continue
			}
			_ = binary.Write(&head, le, dataOff+uint32(data.Len()))
			data.Write(e.value)
			if data.Len()%2 == 1 {
				data.WriteByte(0)
			}
		}
		_ = binary.Write(&head, le, uint32(0))
	}

	payload := append([]byte("Exif\x00\x00"), head.Bytes()...)
	return appSegment(0xE1, append(payload, data.Bytes()...))
}

// sampleEXIF is a Canon shot in the southern hemisphere, below sea level.
func sampleEXIF() []byte {
	return exifSegment(
		[]ifdEntry{
			asciiEntry(0x010F, "Canon"),
			asciiEntry(0x0110, "Canon EOS R5"),
			asciiEntry(0x0131, "Firmware 1.8"),
			shortEntry(0x0112, 6),
			byteEntry(0x9C9B, ucs2("Harbour at dusk")),
			byteEntry(0x9C9E, ucs2("harbour;boats")),
		},
		[]ifdEntry{
			ratEntry(0x829A, 1, 250),
			ratEntry(0x829D, 28, 10),
			shortEntry(0x8827, 400),
			shortEntry(0xA001, 1),
		},
		[]ifdEntry{
			asciiEntry(0x0001, "S"),
			ratEntry(0x0002, 40, 1, 26, 1, 46, 1),
			asciiEntry(0x0003, "E"),
			ratEntry(0x0004, 174, 1, 46, 1, 30, 1),
			byteEntry(0x0005, []byte{1}),
			ratEntry(0x0006, 125, 10),
		},
	)
}

// iimDataset encodes one record 2 dataset.
func iimDataset(dataset byte, value string) []byte {
	out := []byte{0x1C, 2, dataset, 0, 0}
	binary.BigEndian.PutUint16(out[3:], uint16(len(value)))
	return append(out, value...)
}

// photoshopSegment wraps resources in an APP13 segment.
func photoshopSegment(resources ...[]byte) []byte {
	payload := []byte("Photoshop 3.0\x00")
	for _, r := range resources {
		payload = append(payload, r...)
	}
	return appSegment(0xED, payload)
}

// imageResource encodes an 8BIM resource with an empty name.
func imageResource(id uint16, data []byte) []byte {
	out := []byte("8BIM")
	out = binary.BigEndian.AppendUint16(out, id)
	out = append(out, 0, 0)
	out = binary.BigEndian.AppendUint32(out, uint32(len(data)))
	out = append(out, data...)
	if len(data)%2 == 1 {
		out = append(out, 0)
	}
	return out
}
