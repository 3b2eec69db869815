// Package redact applies mosaic redaction to text regions found by OCR.
package redact

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/ankit-chaubey/privacy-surgery/core"
	"github.com/ankit-chaubey/privacy-surgery/core/ocr"
)

// Options configures a Session.
type Options struct {
	MosaicSize int // cell edge in pixels, DefaultMosaicSize when zero
	Logger     zerolog.Logger
}

// Session holds one image, its fixed set of OCR regions, and which of them
// are redacted. It is not safe for concurrent use.
type Session struct {
	ID uuid.UUID

	path     string
	src      image.Image
	regions  []ocr.Region
	overlays map[int][]Cell
	size     int
	logger   zerolog.Logger
}

// Load decodes the image at path and runs r over it once. OCR errors are
// returned unchanged.
func Load(ctx context.Context, r ocr.Recognizer, path string, opts Options) (*Session, error) {
	if !ocr.IsImageFile(path) {
		return nil, core.NewUnsupportedFormatError("redact", path, filepath.Ext(path))
	}
	src, err := decode(path)
	if err != nil {
		return nil, err
	}
	regions, err := r.Recognize(ctx, path)
	if err != nil {
		return nil, err
	}
	s := NewSession(src, regions, opts)
	s.path = path
	s.logger.Info().Str("path", path).Int("regions", len(regions)).Msg("image loaded")
	return s, nil
}

func decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// NewSession starts a session over an already decoded image.
func NewSession(src image.Image, regions []ocr.Region, opts Options) *Session {
	size := opts.MosaicSize
	if size <= 0 {
		size = DefaultMosaicSize
	}
	id := uuid.New()
	return &Session{
		ID:       id,
		src:      src,
		regions:  append([]ocr.Region(nil), regions...),
		overlays: map[int][]Cell{},
		size:     size,
		logger:   opts.Logger.With().Str("session", id.String()).Logger(),
	}
}

// Path returns the file the session was loaded from, if any.
func (s *Session) Path() string { return s.path }

// Regions returns a copy of the recognised regions, in OCR order.
func (s *Session) Regions() []ocr.Region {
	return append([]ocr.Region(nil), s.regions...)
}

// Redacted reports whether region i currently carries a mosaic.
func (s *Session) Redacted(i int) bool {
	_, ok := s.overlays[i]
	return ok
}

// Toggle sets the redaction state of region i. Setting the current state
// again does nothing.
func (s *Session) Toggle(i int, redacted bool) error {
	if i < 0 || i >= len(s.regions) {
		return fmt.Errorf("region %d out of range [0, %d)", i, len(s.regions))
	}
	if s.Redacted(i) == redacted {
		return nil
	}
	if !redacted {
		delete(s.overlays, i)
		s.logger.Debug().Int("region", i).Msg("mosaic removed")
		return nil
	}
	s.overlays[i] = Mosaic(s.src, s.regions[i].Polygon, s.size)
	s.logger.Debug().Int("region", i).Int("cells", len(s.overlays[i])).Msg("mosaic applied")
	return nil
}

// RedactMatching redacts every region whose text matches re and returns
// how many regions that newly covered.
func (s *Session) RedactMatching(re *regexp.Regexp) int {
	n := 0
	for i, r := range s.regions {
		if s.Redacted(i) || !re.MatchString(r.Text) {
			continue
		}
		s.Toggle(i, true)
		n++
	}
	return n
}

// RedactAll redacts every region.
func (s *Session) RedactAll() {
	for i := range s.regions {
		s.Toggle(i, true)
	}
}

// Render composites the mosaics over a copy of the source, in region
// order.
func (s *Session) Render() *image.RGBA {
	b := s.src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, s.src, b.Min, draw.Src)
	for i := range s.regions {
		if cells, ok := s.overlays[i]; ok {
			paint(dst, cells)
		}
	}
	return dst
}

// Summary lists the regions with their state, one per line.
func (s *Session) Summary() string {
	var b strings.Builder
	for i, r := range s.regions {
		mark := " "
		if s.Redacted(i) {
			mark = "x"
		}
		fmt.Fprintf(&b, "[%s] %3d  %-40s %.2f\n", mark, i, r.Text, r.Confidence)
	}
	return b.String()
}
