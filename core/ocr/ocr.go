// Package ocr finds text regions in images. Recognizers return polygons in
// image pixel coordinates.
package ocr

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ankit-chaubey/privacy-surgery/core"
)

// Region is one recognised piece of text.
type Region struct {
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"` // 0..1
	Polygon    []image.Point `json:"polygon"`    // closed, in pixel coordinates
}

// Bounds returns the smallest rectangle containing the polygon, with Max
// exclusive.
func (r Region) Bounds() image.Rectangle {
	if len(r.Polygon) == 0 {
		return image.Rectangle{}
	}
	b := image.Rectangle{Min: r.Polygon[0], Max: r.Polygon[0]}
	for _, p := range r.Polygon[1:] {
		b.Min.X = min(b.Min.X, p.X)
		b.Min.Y = min(b.Min.Y, p.Y)
		b.Max.X = max(b.Max.X, p.X)
		b.Max.Y = max(b.Max.Y, p.Y)
	}
	b.Max = b.Max.Add(image.Pt(1, 1))
	return b
}

// Recognizer detects text regions in an image file.
type Recognizer interface {
	Recognize(ctx context.Context, path string) ([]Region, error)
}

// Result is the outcome for one file of a batch.
type Result struct {
	Path    string   `json:"file"`
	Regions []Region `json:"ocr_result"`
}

// RecognizeBatch runs r over paths in order. Files the service rejects are
// logged and left out of the result; any other failure stops the batch.
func RecognizeBatch(ctx context.Context, r Recognizer, paths []string, logger zerolog.Logger) ([]Result, error) {
	var out []Result
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		regions, err := r.Recognize(ctx, path)
		if errors.Is(err, core.ErrService) {
			logger.Error().Err(err).Str("path", path).Msg("skipping file")
			continue
		}
		if err != nil {
			return out, err
		}
		logger.Debug().Str("path", path).Int("regions", len(regions)).Msg("recognised")
		out = append(out, Result{Path: path, Regions: regions})
	}
	return out, nil
}

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true,
	".gif": true, ".tif": true, ".tiff": true, ".rgb": true,
}

// IsImageFile reports whether path has an extension the recognizers accept.
func IsImageFile(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}
