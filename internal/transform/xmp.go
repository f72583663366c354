package transform

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

var (
	xmpStart = []byte("<x:xmpmeta")
	xmpEnd   = []byte("</x:xmpmeta>")
)

const nsRDF = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"

var xmpNamespaces = map[string]string{
	"http://purl.org/dc/elements/1.1/":           "dc",
	"http://ns.adobe.com/photoshop/1.0/":         "photoshop",
	"http://iptc.org/std/Iptc4xmpCore/1.0/xmlns/": "iptc",
	"http://ns.adobe.com/exif/1.0/":              "exif",
	"http://ns.adobe.com/xap/1.0/":               "xmp",
}

// xmpFields maps "prefix:Name" to the text values found for that property.
type xmpFields map[string][]string

func (f xmpFields) first(keys ...string) string {
	for _, k := range keys {
		if v := f[k]; len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func (f xmpFields) joined(key, sep string) string {
	return strings.Join(f[key], sep)
}

// findXMPPacket returns the embedded x:xmpmeta packet, if any.
func findXMPPacket(data []byte) []byte {
	start := bytes.Index(data, xmpStart)
	if start < 0 {
		return nil
	}
	end := bytes.Index(data[start:], xmpEnd)
	if end < 0 {
		return nil
	}
	return data[start : start+end+len(xmpEnd)]
}

// parseXMP extracts the text of known properties, whether written as
// attributes of rdf:Description or as child elements (including rdf:Alt,
// rdf:Bag and rdf:Seq lists).
func parseXMP(packet []byte) (xmpFields, error) {
	dec := xml.NewDecoder(bytes.NewReader(packet))
	fields := xmpFields{}

	var (
		prop      string
		propDepth int
		depth     int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return fields, nil
		}
		if err != nil {
			return fields, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space == nsRDF && t.Name.Local == "Description" {
				for _, a := range t.Attr {
					if key := xmpKey(a.Name); key != "" && strings.TrimSpace(a.Value) != "" {
						fields[key] = append(fields[key], strings.TrimSpace(a.Value))
					}
				}
			} else if prop == "" {
				if key := xmpKey(t.Name); key != "" {
					prop = key
					propDepth = depth
				}
			}
			depth++
		case xml.EndElement:
			depth--
			if prop != "" && depth == propDepth {
				prop = ""
			}
		case xml.CharData:
			if prop == "" {
				continue
			}
			if s := strings.TrimSpace(string(t)); s != "" {
				fields[prop] = append(fields[prop], s)
			}
		}
	}
}

func xmpKey(name xml.Name) string {
	prefix, ok := xmpNamespaces[name.Space]
	if !ok {
		return ""
	}
	return prefix + ":" + name.Local
}
