package core

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FormatID enumerates every recognised format.
type FormatID string

const (
	FmtJPEG FormatID = "jpeg"
	FmtPNG  FormatID = "png"

	FmtMP3  FormatID = "mp3"
	FmtFLAC FormatID = "flac"
	FmtOGG  FormatID = "ogg"
	FmtM4A  FormatID = "m4a"

	FmtPDF  FormatID = "pdf"
	FmtDOCX FormatID = "docx"
	FmtXLSX FormatID = "xlsx"
	FmtPPTX FormatID = "pptx"

	FmtUnknown FormatID = "unknown"
)

// extMap maps lowercase extensions to format IDs.
var extMap = map[string]FormatID{
	".jpg":  FmtJPEG,
	".jpeg": FmtJPEG,
	".png":  FmtPNG,

	".mp3":  FmtMP3,
	".flac": FmtFLAC,
	".ogg":  FmtOGG,
	".oga":  FmtOGG,
	".m4a":  FmtM4A,

	".pdf":  FmtPDF,
	".docx": FmtDOCX,
	".docm": FmtDOCX,
	".xlsx": FmtXLSX,
	".xlsm": FmtXLSX,
	".pptx": FmtPPTX,
	".pptm": FmtPPTX,
}

// FormatFor returns the FormatID for path by extension. Unknown extensions
// fail with an UNSUPPORTED_FORMAT error.
func FormatFor(op, path string) (FormatID, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if id, ok := extMap[ext]; ok {
		return id, nil
	}
	return FmtUnknown, NewUnsupportedFormatError(op, path, ext)
}

// SniffFile reads the first bytes of path and identifies the container by
// magic bytes. It returns FmtUnknown when nothing matches.
func SniffFile(path string) (FormatID, error) {
	f, err := os.Open(path)
	if err != nil {
		return FmtUnknown, err
	}
	defer f.Close()

	buf := make([]byte, 16)
	n, err := io.ReadFull(f, buf)
	if err != nil && n == 0 {
		return FmtUnknown, err
	}
	return Sniff(buf[:n]), nil
}

// Sniff identifies a header by magic bytes. ZIP containers report FmtDOCX;
// the OOXML flavour comes from the extension.
func Sniff(b []byte) FormatID {
	if len(b) < 4 {
		return FmtUnknown
	}
	switch {
	// JPEG: FF D8 FF
	case b[0] == 0xFF && b[1] == 0xD8 && b[2] == 0xFF:
		return FmtJPEG
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	case bytes.HasPrefix(b, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return FmtPNG
	// MP3: ID3 tag or frame sync
	case bytes.HasPrefix(b, []byte("ID3")):
		return FmtMP3
	case b[0] == 0xFF && (b[1]&0xE0 == 0xE0):
		return FmtMP3
	case bytes.HasPrefix(b, []byte("fLaC")):
		return FmtFLAC
	case bytes.HasPrefix(b, []byte("OggS")):
		return FmtOGG
	// M4A: ftyp box at offset 4
	case len(b) >= 8 && bytes.Equal(b[4:8], []byte("ftyp")):
		return FmtM4A
	case bytes.HasPrefix(b, []byte("%PDF")):
		return FmtPDF
	case bytes.HasPrefix(b, []byte("PK\x03\x04")):
		return FmtDOCX
	}
	return FmtUnknown
}

// SameContainer reports whether a sniffed format is compatible with the
// format chosen by extension.
func SameContainer(byExt, sniffed FormatID) bool {
	if sniffed == FmtUnknown || byExt == sniffed {
		return true
	}
	switch byExt {
	case FmtXLSX, FmtPPTX:
		return sniffed == FmtDOCX
	}
	return false
}

// MediaTypeFor returns the broad media category for a format.
func MediaTypeFor(id FormatID) string {
	switch id {
	case FmtJPEG, FmtPNG:
		return "image"
	case FmtMP3, FmtFLAC, FmtOGG, FmtM4A:
		return "audio"
	case FmtPDF, FmtDOCX, FmtXLSX, FmtPPTX:
		return "document"
	default:
		return "unknown"
	}
}

// Extensions returns the extensions registered for id.
func Extensions(id FormatID) []string {
	var out []string
	for ext, f := range extMap {
		if f == id {
			out = append(out, ext)
		}
	}
	sort.Strings(out)
	return out
}
