package redact

import "image"

// contains reports whether p lies inside the closed polygon poly under the
// non-zero winding rule. Points on an edge count as inside.
func contains(poly []image.Point, p image.Point) bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	winding := 0
	for i := 0; i < n; i++ {
		a, b := poly[i], poly[(i+1)%n]
		if onSegment(a, b, p) {
			return true
		}
		if a.Y <= p.Y {
			if b.Y > p.Y && cross(a, b, p) > 0 {
				winding++
			}
		} else if b.Y <= p.Y && cross(a, b, p) < 0 {
			winding--
		}
	}
	return winding != 0
}

// cross is positive when p is left of the directed line a→b.
func cross(a, b, p image.Point) int64 {
	return int64(b.X-a.X)*int64(p.Y-a.Y) - int64(p.X-a.X)*int64(b.Y-a.Y)
}

func onSegment(a, b, p image.Point) bool {
	if cross(a, b, p) != 0 {
		return false
	}
	return min(a.X, b.X) <= p.X && p.X <= max(a.X, b.X) &&
		min(a.Y, b.Y) <= p.Y && p.Y <= max(a.Y, b.Y)
}

// extent returns the inclusive bounding box of poly: Max is the largest
// coordinate, not one past it.
func extent(poly []image.Point) (lo, hi image.Point) {
	lo, hi = poly[0], poly[0]
	for _, p := range poly[1:] {
		lo.X, lo.Y = min(lo.X, p.X), min(lo.Y, p.Y)
		hi.X, hi.Y = max(hi.X, p.X), max(hi.Y, p.Y)
	}
	return lo, hi
}
