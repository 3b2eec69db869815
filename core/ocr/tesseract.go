//go:build tesseract

package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// ErrTesseractDisabled is returned by NewTesseract in builds without the
// tesseract tag.
var ErrTesseractDisabled = errors.New("tesseract support not enabled; rebuild with -tags tesseract")

// TesseractEngine recognises words locally with Tesseract.
type TesseractEngine struct {
	languages []string
}

// NewTesseract returns an engine for the given languages ("eng" when none).
func NewTesseract(languages ...string) (*TesseractEngine, error) {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &TesseractEngine{languages: languages}, nil
}

// Recognize returns one region per word, each a four-point box.
func (t *TesseractEngine) Recognize(ctx context.Context, path string) ([]Region, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetImage(path); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	regions := make([]Region, 0, len(boxes))
	for _, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" {
			continue
		}
		regions = append(regions, Region{
			Text:       word,
			Confidence: b.Confidence / 100,
			Polygon:    rectPolygon(b.Box),
		})
	}
	return regions, nil
}

func rectPolygon(r image.Rectangle) []image.Point {
	return []image.Point{
		r.Min,
		{X: r.Max.X - 1, Y: r.Min.Y},
		{X: r.Max.X - 1, Y: r.Max.Y - 1},
		{X: r.Min.X, Y: r.Max.Y - 1},
	}
}
