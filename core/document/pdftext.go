package document

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var (
	utf16BOM = []byte{0xFE, 0xFF}
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
)

// decodeText turns a PDF text string into UTF-8. UTF-16BE needs its BOM;
// anything else is PDFDocEncoding, read as Latin-1.
func decodeText(b []byte) string {
	switch {
	case bytes.HasPrefix(b, utf16BOM):
		out, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(b)
		if err == nil {
			return string(out)
		}
	case bytes.HasPrefix(b, utf8BOM) && utf8.Valid(b[3:]):
		return string(b[3:])
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// encodeText renders s as a PDF text string: plain ASCII as a literal,
// anything else as UTF-16BE with BOM in hex form.
func encodeText(s string) pdfString {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return pdfString{b: []byte(s)}
	}
	out, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(s))
	if err != nil {
		return pdfString{b: []byte(s)}
	}
	return pdfString{b: out, hex: true}
}
