package helper

import (
	"encoding/xml"
	"io"

	"golang.org/x/net/html/charset"
)

// NewXMLDecoder returns a decoder that understands the non UTF-8 encodings
// (ISO-8859-1, windows-1252, ...) some devices declare in their XML prolog.
func NewXMLDecoder(r io.Reader) *xml.Decoder {
	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel
	return d
}
