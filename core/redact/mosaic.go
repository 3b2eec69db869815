package redact

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// DefaultMosaicSize is the cell edge in pixels.
const DefaultMosaicSize = 10

// Cell is one filled mosaic block.
type Cell struct {
	Rect  image.Rectangle // clipped to the source image
	Color color.NRGBA
}

// Mosaic tiles the bounding box of poly into size×size cells, centring the
// grid on the box. A cell whose centre falls inside the polygon is filled
// with the mean colour of the source pixels it covers.
func Mosaic(src image.Image, poly []image.Point, size int) []Cell {
	if len(poly) < 3 {
		return nil
	}
	if size <= 0 {
		size = DefaultMosaicSize
	}
	lo, hi := extent(poly)
	w, h := hi.X-lo.X+1, hi.Y-lo.Y+1
	cols := (w + size - 1) / size
	rows := (h + size - 1) / size
	startX := int(math.Ceil(float64(lo.X) - float64(cols*size-w)/2))
	startY := int(math.Ceil(float64(lo.Y) - float64(rows*size-h)/2))

	bounds := src.Bounds()
	var cells []Cell
	for i := 0; i < cols; i++ {
		for j := 0; j < rows; j++ {
			x, y := startX+i*size, startY+j*size
			if !contains(poly, image.Pt(x+size/2, y+size/2)) {
				continue
			}
			r := image.Rect(x, y, x+size, y+size).Intersect(bounds)
			if r.Empty() {
				continue
			}
			cells = append(cells, Cell{Rect: r, Color: meanColor(src, r)})
		}
	}
	return cells
}

// meanColor is the integer mean of every channel over r.
func meanColor(src image.Image, r image.Rectangle) color.NRGBA {
	var sr, sg, sb, sa, n uint64
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			sr += uint64(c.R)
			sg += uint64(c.G)
			sb += uint64(c.B)
			sa += uint64(c.A)
			n++
		}
	}
	if n == 0 {
		return color.NRGBA{A: 0xFF}
	}
	return color.NRGBA{R: uint8(sr / n), G: uint8(sg / n), B: uint8(sb / n), A: uint8(sa / n)}
}

func paint(dst draw.Image, cells []Cell) {
	for _, c := range cells {
		draw.Draw(dst, c.Rect, image.NewUniform(c.Color), image.Point{}, draw.Src)
	}
}
