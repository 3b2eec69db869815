package redact

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/go-pdf/fpdf"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/ankit-chaubey/privacy-surgery/core"
)

// ExportFormats lists the extensions Export accepts.
var ExportFormats = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".pdf"}

// Export renders the session and writes it to dst, choosing the encoding
// from the extension. Encoders write pixels only, so the output carries no
// metadata from the source.
func (s *Session) Export(dst string) error {
	ext := strings.ToLower(filepath.Ext(dst))
	img := s.Render()

	var err error
	if ext == ".pdf" {
		err = exportPDF(img, dst)
	} else {
		err = exportImage(img, dst, ext)
	}
	if err != nil {
		return err
	}
	s.logger.Info().Str("dest", dst).Int("redacted", len(s.overlays)).Msg("exported")
	return nil
}

func exportImage(img image.Image, dst, ext string) error {
	enc, ok := encoders[ext]
	if !ok {
		return core.NewUnsupportedFormatError("export", dst, ext)
	}
	f, err := os.Create(dst)
	if err != nil {
		return core.NewWriteError(dst, err)
	}
	if err := enc(f, img); err != nil {
		f.Close()
		os.Remove(dst)
		return core.NewWriteError(dst, err)
	}
	if err := f.Close(); err != nil {
		return core.NewWriteError(dst, err)
	}
	return nil
}

var encoders = map[string]func(io.Writer, image.Image) error{
	".png": png.Encode,
	".jpg": func(w io.Writer, img image.Image) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	},
	".jpeg": func(w io.Writer, img image.Image) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	},
	".gif": func(w io.Writer, img image.Image) error {
		return gif.Encode(w, img, nil)
	},
	".bmp": bmp.Encode,
	".tif": func(w io.Writer, img image.Image) error {
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	},
	".tiff": func(w io.Writer, img image.Image) error {
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	},
}

// exportPDF places img on a single page of the same size in points.
func exportPDF(img image.Image, dst string) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return core.NewWriteError(dst, err)
	}
	w := float64(img.Bounds().Dx())
	h := float64(img.Bounds().Dy())

	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPageFormat("P", fpdf.SizeType{Wd: w, Ht: h})
	opts := fpdf.ImageOptions{ReadDpi: false, ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("redacted", opts, &buf)
	pdf.ImageOptions("redacted", 0, 0, w, h, false, opts, 0, "")
	if err := pdf.OutputFileAndClose(dst); err != nil {
		return core.NewWriteError(dst, fmt.Errorf("failed to generate PDF: %w", err))
	}
	return nil
}
