package redact

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ankit-chaubey/privacy-surgery/core"
	"github.com/ankit-chaubey/privacy-surgery/core/ocr"
)

// gradient has R = x and G = y.
func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	return img
}

func rect(x0, y0, x1, y1 int) []image.Point {
	return []image.Point{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
}

func TestContains(t *testing.T) {
	square := rect(0, 0, 10, 10)
	// A five-pointed star drawn in one stroke; its centre has winding 2.
	star := []image.Point{{50, 0}, {80, 90}, {5, 35}, {95, 35}, {20, 90}}
	concave := []image.Point{{0, 0}, {10, 0}, {10, 10}, {5, 5}, {0, 10}}

	cases := []struct {
		name string
		poly []image.Point
		p    image.Point
		want bool
	}{
		{"inside", square, image.Pt(5, 5), true},
		{"corner", square, image.Pt(0, 0), true},
		{"edge", square, image.Pt(10, 4), true},
		{"outside", square, image.Pt(11, 5), false},
		{"star centre", star, image.Pt(50, 50), true},
		{"star tip", star, image.Pt(50, 10), true},
		{"star outside", star, image.Pt(5, 80), false},
		{"notch", concave, image.Pt(5, 8), false},
		{"beside notch", concave, image.Pt(1, 8), true},
		{"degenerate", square[:2], image.Pt(5, 0), false},
	}
	for _, tc := range cases {
		if got := contains(tc.poly, tc.p); got != tc.want {
			t.Errorf("%s: contains(%v) = %v, want %v", tc.name, tc.p, got, tc.want)
		}
	}
}

func TestMosaicMean(t *testing.T) {
	src := gradient(40, 40)
	cells := Mosaic(src, rect(0, 0, 19, 9), 10)
	if len(cells) != 2 {
		t.Fatalf("got %d cells", len(cells))
	}
	want := []Cell{
		{image.Rect(0, 0, 10, 10), color.NRGBA{R: 4, G: 4, B: 200, A: 255}},
		{image.Rect(10, 0, 20, 10), color.NRGBA{R: 14, G: 4, B: 200, A: 255}},
	}
	for i, c := range cells {
		if c != want[i] {
			t.Errorf("cell %d = %+v, want %+v", i, c, want[i])
		}
	}

	solid := image.NewUniform(color.RGBA{R: 9, G: 99, B: 199, A: 255})
	for _, c := range Mosaic(solid, rect(3, 3, 30, 17), 7) {
		if c.Color != (color.NRGBA{R: 9, G: 99, B: 199, A: 255}) {
			t.Errorf("solid cell colour %+v", c.Color)
		}
	}
}

func TestMosaicGridIsCentred(t *testing.T) {
	// 15×5 box: two columns and one row, 5 px extra each way.
	cells := Mosaic(gradient(20, 20), rect(0, 0, 14, 4), 10)
	if len(cells) != 2 {
		t.Fatalf("got %d cells", len(cells))
	}
	if cells[0].Rect != image.Rect(0, 0, 8, 8) || cells[1].Rect != image.Rect(8, 0, 18, 8) {
		t.Errorf("rects = %v, %v", cells[0].Rect, cells[1].Rect)
	}
	// Clipped cells average only the pixels inside the image.
	if cells[0].Color.R != 3 || cells[0].Color.G != 3 {
		t.Errorf("clipped mean = %+v", cells[0].Color)
	}
}

func TestMosaicSkipsCellsOutsidePolygon(t *testing.T) {
	tri := []image.Point{{0, 0}, {29, 0}, {0, 29}}
	cells := Mosaic(gradient(30, 30), tri, 10)
	// Of the 3×3 grid only centres (5,5), (5,15) and (15,5) are inside.
	if len(cells) != 3 {
		t.Errorf("got %d cells", len(cells))
	}
}

func newTestSession() *Session {
	regions := []ocr.Region{
		{Text: "Invoice", Confidence: 0.99, Polygon: rect(2, 2, 30, 12)},
		{Text: "jane@example.com", Confidence: 0.95, Polygon: rect(5, 20, 45, 30)},
		{Text: "555-0100", Confidence: 0.9, Polygon: rect(10, 35, 40, 45)},
	}
	return NewSession(gradient(50, 50), regions, Options{MosaicSize: 5, Logger: zerolog.Nop()})
}

func TestToggleRestoresPixels(t *testing.T) {
	s := newTestSession()
	before := s.Render()

	if err := s.Toggle(1, true); err != nil {
		t.Fatal(err)
	}
	if !s.Redacted(1) || s.Redacted(0) {
		t.Fatal("wrong redaction state")
	}
	if bytes.Equal(s.Render().Pix, before.Pix) {
		t.Fatal("mosaic changed nothing")
	}
	if err := s.Toggle(1, false); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(s.Render().Pix, before.Pix) {
		t.Error("pixels not restored")
	}
}

func TestToggleIsIdempotent(t *testing.T) {
	s := newTestSession()
	s.Toggle(2, true)
	first := s.Render()
	s.Toggle(2, true)
	if !bytes.Equal(s.Render().Pix, first.Pix) || !s.Redacted(2) {
		t.Error("second toggle changed the result")
	}
	s.Toggle(0, false)
	if s.Redacted(0) {
		t.Error("un-redacting a clean region redacted it")
	}
	if err := s.Toggle(3, true); err == nil {
		t.Error("expected out of range error")
	}
	if err := s.Toggle(-1, false); err == nil {
		t.Error("expected out of range error")
	}
}

func TestRedactMatching(t *testing.T) {
	s := newTestSession()
	re := regexp.MustCompile(`@|\d{3}-\d{4}`)
	if n := s.RedactMatching(re); n != 2 {
		t.Errorf("matched %d", n)
	}
	if s.Redacted(0) || !s.Redacted(1) || !s.Redacted(2) {
		t.Error("wrong regions redacted")
	}
	if n := s.RedactMatching(re); n != 0 {
		t.Errorf("second pass matched %d", n)
	}
}

func TestRegionsAreCopied(t *testing.T) {
	s := newTestSession()
	r := s.Regions()
	r[0].Text = "changed"
	if s.Regions()[0].Text != "Invoice" {
		t.Error("Regions exposed internal state")
	}
}

type stubRecognizer struct {
	regions []ocr.Region
	err     error
	calls   int
}

func (r *stubRecognizer) Recognize(context.Context, string) ([]ocr.Region, error) {
	r.calls++
	return r.regions, r.err
}

func writePNG(t *testing.T, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return path
}

func TestLoad(t *testing.T) {
	path := writePNG(t, gradient(20, 20))
	r := &stubRecognizer{regions: []ocr.Region{{Text: "x", Polygon: rect(0, 0, 9, 9)}}}
	s, err := Load(context.Background(), r, path, Options{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	if r.calls != 1 || len(s.Regions()) != 1 || s.Path() != path {
		t.Errorf("calls = %d, regions = %v", r.calls, s.Regions())
	}

	r = &stubRecognizer{err: core.NewServiceError(path, 3, "busy")}
	if _, err := Load(context.Background(), r, path, Options{Logger: zerolog.Nop()}); !errors.Is(err, core.ErrService) {
		t.Errorf("err = %v", err)
	}
	if _, err := Load(context.Background(), r, "notes.txt", Options{Logger: zerolog.Nop()}); !errors.Is(err, core.ErrUnsupportedFormat) {
		t.Errorf("err = %v", err)
	}
}

func TestExport(t *testing.T) {
	s := newTestSession()
	s.RedactAll()
	dir := t.TempDir()

	out := filepath.Join(dir, "out.png")
	if err := s.Export(out); err != nil {
		t.Fatal(err)
	}
	f, _ := os.Open(out)
	got, err := png.Decode(f)
	f.Close()
	if err != nil {
		t.Fatal(err)
	}
	want := s.Render()
	for _, p := range []image.Point{{3, 3}, {20, 25}, {49, 49}} {
		if color.RGBAModel.Convert(got.At(p.X, p.Y)) != want.At(p.X, p.Y) {
			t.Errorf("pixel %v differs", p)
		}
	}

	for _, name := range []string{"out.jpg", "out.gif", "out.bmp", "out.tiff", "out.pdf"} {
		if err := s.Export(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	data, _ := os.ReadFile(filepath.Join(dir, "out.pdf"))
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Error("pdf export is not a PDF")
	}
	if err := s.Export(filepath.Join(dir, "out.xyz")); !errors.Is(err, core.ErrUnsupportedFormat) {
		t.Errorf("err = %v", err)
	}
}
