package transform

import (
	"bytes"
	"encoding/binary"
	"strings"
	"unicode/utf8"
)

// IPTC-IIM record 2 dataset numbers.
const (
	iptcObjectName    = 5
	iptcKeywords      = 25
	iptcByline        = 80
	iptcCity          = 90
	iptcSublocation   = 92
	iptcProvinceState = 95
	iptcCountryName   = 101
	iptcHeadline      = 105
	iptcCopyright     = 116
	iptcCaption       = 120
)

const (
	markerAPP13       = 0xED
	iimTagMarker      = 0x1C
	iimApplication    = 2
	iimResourceID     = 0x0404
	photoshopResource = "8BIM"
)

var photoshopHeader = []byte("Photoshop 3.0\x00")

// iptcFields maps record 2 dataset numbers to their values in file order.
type iptcFields map[int][]string

func (f iptcFields) first(datasets ...int) string {
	for _, ds := range datasets {
		if v := f[ds]; len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// parseIPTC decodes the IPTC-IIM block stored in a JPEG's Photoshop APP13
// segments. Malformed data yields whatever was read before the damage.
func parseIPTC(data []byte) iptcFields {
	var fields iptcFields
	for _, block := range photoshopBlocks(data) {
		for _, iim := range imageResources(block, iimResourceID) {
			fields = decodeIIM(iim, fields)
		}
	}
	return fields
}

// photoshopBlocks walks the JPEG marker segments up to start-of-scan and
// returns the payload of every Photoshop APP13 segment, header stripped.
func photoshopBlocks(data []byte) [][]byte {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil
	}
	var blocks [][]byte
	for pos := 2; pos+4 <= len(data); {
		if data[pos] != 0xFF {
			return blocks
		}
		marker := data[pos+1]
		switch {
		case marker == 0xFF:
			pos++
			continue
		case marker == 0xD8, marker == 0x01, marker >= 0xD0 && marker <= 0xD7:
			pos += 2
			continue
		case marker == 0xDA, marker == 0xD9:
			return blocks
		}
		size := int(binary.BigEndian.Uint16(data[pos+2:]))
		end := pos + 2 + size
		if size < 2 || end > len(data) {
			return blocks
		}
		payload := data[pos+4 : end]
		if marker == markerAPP13 && bytes.HasPrefix(payload, photoshopHeader) {
			blocks = append(blocks, payload[len(photoshopHeader):])
		}
		pos = end
	}
	return blocks
}

// imageResources returns the data of every 8BIM resource with the given id.
func imageResources(block []byte, id uint16) [][]byte {
	var out [][]byte
	for pos := 0; pos+12 <= len(block); {
		if string(block[pos:pos+4]) != photoshopResource {
			return out
		}
		resID := binary.BigEndian.Uint16(block[pos+4:])
		pos += 6

		// Pascal name, padded to an even length including the length byte.
		nameLen := int(block[pos])
		pos += 1 + nameLen
		if (1+nameLen)%2 == 1 {
			pos++
		}
		if pos+4 > len(block) {
			return out
		}
		size := int(binary.BigEndian.Uint32(block[pos:]))
		pos += 4
		if size < 0 || pos+size > len(block) {
			return out
		}
		if resID == id {
			out = append(out, block[pos:pos+size])
		}
		pos += size
		if size%2 == 1 {
			pos++
		}
	}
	return out
}

// decodeIIM appends record 2 datasets from an IIM stream to fields.
func decodeIIM(iim []byte, fields iptcFields) iptcFields {
	for pos := 0; pos+5 <= len(iim); {
		if iim[pos] != iimTagMarker {
			return fields
		}
		record, dataset := iim[pos+1], int(iim[pos+2])
		size := int(binary.BigEndian.Uint16(iim[pos+3:]))
		pos += 5

		// Extended datasets store the length of the length in the low 15 bits.
		if size&0x8000 != 0 {
			n := size & 0x7FFF
			if n == 0 || n > 4 || pos+n > len(iim) {
				return fields
			}
			size = 0
			for _, b := range iim[pos : pos+n] {
				size = size<<8 | int(b)
			}
			pos += n
		}
		if pos+size > len(iim) {
			return fields
		}
		value := iim[pos : pos+size]
		pos += size

		if record != iimApplication {
			continue
		}
		if s := iptcString(value); s != "" {
			if fields == nil {
				fields = iptcFields{}
			}
			fields[dataset] = append(fields[dataset], s)
		}
	}
	return fields
}

// iptcString decodes a dataset value. Writers that do not declare UTF-8
// almost always use Latin-1.
func iptcString(b []byte) string {
	b = bytes.TrimRight(b, "\x00")
	if utf8.Valid(b) {
		return strings.TrimSpace(string(b))
	}
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return strings.TrimSpace(string(runes))
}
