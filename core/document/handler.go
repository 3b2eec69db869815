// Package document handles metadata for PDF and Office Open XML documents
// (DOCX, XLSX, PPTX).
package document

import (
	"fmt"

	"github.com/ankit-chaubey/privacy-surgery/core"
)

// Handler implements core.Handler for document formats.
type Handler struct {
	format core.FormatID
}

// New returns a document Handler for the given format.
func New(format core.FormatID) *Handler { return &Handler{format: format} }

func (h *Handler) Info() core.FormatInfo {
	return formatInfo[h.format]
}

func opcInfo(name, mime string, id core.FormatID) core.FormatInfo {
	return core.FormatInfo{
		Name:       name,
		Extensions: core.Extensions(id),
		MediaType:  "document",
		MIMETypes:  []string{mime},
		CanEdit:    true,
		CanStrip:   true,
		Namespaces: []string{"Office.Core.", "Office.App."},
		Notes:      "OPC ZIP container. core.xml is editable, app.xml is read-only.",
	}
}

var formatInfo = map[core.FormatID]core.FormatInfo{
	core.FmtPDF: {
		Name:       "PDF",
		Extensions: core.Extensions(core.FmtPDF),
		MediaType:  "document",
		MIMETypes:  []string{"application/pdf"},
		CanEdit:    true,
		CanStrip:   true,
		Namespaces: []string{"Pdf.", "Xmp."},
		Notes:      "Info dictionary via incremental update. XMP is read-only; strip detaches it.",
	},
	core.FmtDOCX: opcInfo("DOCX", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", core.FmtDOCX),
	core.FmtXLSX: opcInfo("XLSX", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", core.FmtXLSX),
	core.FmtPPTX: opcInfo("PPTX", "application/vnd.openxmlformats-officedocument.presentationml.presentation", core.FmtPPTX),
}

func (h *Handler) View(path string) (*core.Metadata, error) {
	m := &core.Metadata{FilePath: path, Format: h.format}
	var err error
	switch h.format {
	case core.FmtPDF:
		err = viewPDF(path, m)
	case core.FmtDOCX, core.FmtXLSX, core.FmtPPTX:
		err = viewOPC(path, m)
	default:
		err = fmt.Errorf("document handler does not read %s", h.format)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (h *Handler) Edit(path string, changes []core.Change) error {
	switch h.format {
	case core.FmtPDF:
		return editPDF(path, changes)
	case core.FmtDOCX, core.FmtXLSX, core.FmtPPTX:
		return editOPC(path, changes)
	}
	return fmt.Errorf("document handler does not write %s", h.format)
}

func (h *Handler) Strip(path string, opts core.StripOptions) error {
	switch h.format {
	case core.FmtPDF:
		return stripPDF(path, opts)
	case core.FmtDOCX, core.FmtXLSX, core.FmtPPTX:
		return stripOPC(path, opts)
	}
	return fmt.Errorf("document handler does not strip %s", h.format)
}
