// Package image handles metadata for JPEG (EXIF, XMP, IPTC) and PNG
// (text chunks, eXIf).
package image

import (
	"fmt"

	"github.com/ankit-chaubey/privacy-surgery/core"
)

// Handler implements core.Handler for image formats.
type Handler struct {
	format core.FormatID
}

// New returns a Handler for the given format.
func New(format core.FormatID) *Handler { return &Handler{format: format} }

func (h *Handler) Info() core.FormatInfo {
	return formatInfo[h.format]
}

var formatInfo = map[core.FormatID]core.FormatInfo{
	core.FmtJPEG: {
		Name:       "JPEG",
		Extensions: core.Extensions(core.FmtJPEG),
		MediaType:  "image",
		MIMETypes:  []string{"image/jpeg"},
		CanEdit:    true,
		CanStrip:   true,
		Namespaces: []string{"Exif.", "Xmp.", "Iptc.", "Jpeg."},
		Notes:      "EXIF, XMP, IPTC. New XMP properties cannot be added.",
	},
	core.FmtPNG: {
		Name:       "PNG",
		Extensions: core.Extensions(core.FmtPNG),
		MediaType:  "image",
		MIMETypes:  []string{"image/png"},
		CanEdit:    true,
		CanStrip:   true,
		Namespaces: []string{"Png.", "Exif."},
		Notes:      "tEXt, iTXt, zTXt chunks. eXIf is read-only.",
	},
}

func (h *Handler) View(path string) (*core.Metadata, error) {
	m := &core.Metadata{FilePath: path, Format: h.format}
	var err error
	switch h.format {
	case core.FmtJPEG:
		err = viewJPEG(path, m)
	case core.FmtPNG:
		err = viewPNG(path, m)
	default:
		err = fmt.Errorf("image handler does not read %s", h.format)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (h *Handler) Edit(path string, changes []core.Change) error {
	switch h.format {
	case core.FmtJPEG:
		return editJPEG(path, changes)
	case core.FmtPNG:
		return editPNG(path, changes)
	}
	return fmt.Errorf("image handler does not write %s", h.format)
}

func (h *Handler) Strip(path string, opts core.StripOptions) error {
	switch h.format {
	case core.FmtJPEG:
		return stripJPEG(path, opts)
	case core.FmtPNG:
		return stripPNG(path, opts)
	}
	return fmt.Errorf("image handler does not strip %s", h.format)
}
