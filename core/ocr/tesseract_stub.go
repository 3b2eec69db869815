//go:build !tesseract

package ocr

import (
	"context"
	"errors"
)

// ErrTesseractDisabled is returned by NewTesseract in builds without the
// tesseract tag.
var ErrTesseractDisabled = errors.New("tesseract support not enabled; rebuild with -tags tesseract")

// TesseractEngine is a stub. Rebuild with -tags tesseract to use it.
type TesseractEngine struct{}

// NewTesseract returns ErrTesseractDisabled.
func NewTesseract(languages ...string) (*TesseractEngine, error) {
	return nil, ErrTesseractDisabled
}

// Recognize returns ErrTesseractDisabled.
func (t *TesseractEngine) Recognize(ctx context.Context, path string) ([]Region, error) {
	return nil, ErrTesseractDisabled
}
