// SPDX-License-Identifier: MIT

// Package tracemask computes fractional-pixel overlap masks for trace
// footprints.
//
// For a footprint polygon P and detector pixel (x, y) covering the box
// [x, x+1) × [y, y+1), the mask weight is area(P ∩ box), which lies in [0, 1].
// The intersection is computed exactly with Sutherland–Hodgman clipping: the
// polygon is first clipped to the horizontal strip of a detector row, and the
// strip polygon is then clipped to each pixel column. Clipping a simple
// polygon against a convex window may leave degenerate zero-width bridges, but
// the shoelace area of the result is still the exact overlap area.
//
// Only pixels inside the footprint's bounding box are visited; the window is
// clamped to the frame so parts of a footprint falling off the detector are
// dropped.
//
// Complexity:
//   - Build: O(H·n + H·W·n') where H×W is the clamped bounding window, n the
//     number of vertices and n' the (small) vertex count of each strip polygon.
package tracemask

import (
	"errors"
	"fmt"
	"math"

	"github.com/katalvlaran/ifucube/geometry"
)

// ErrBadFrame indicates non-positive frame dimensions.
var ErrBadFrame = errors.New("tracemask: frame dimensions must be > 0")

// Mask holds overlap weights over a rectangular window of the frame.
// Weights outside the window are zero. A Mask is immutable after Build.
type Mask struct {
	frameW, frameH int
	x0, y0         int
	w, h           int
	weights        []float64 // row-major over the window, offset (y-y0)*w + (x-x0)
	sum            float64
}

// FrameShape returns the shape of the frame the mask was built for.
func (m *Mask) FrameShape() (width, height int) { return m.frameW, m.frameH }

// Window returns the lower-left pixel and extent of the non-trivial window.
// The extent is zero when the footprint misses the frame entirely.
func (m *Mask) Window() (x0, y0, w, h int) { return m.x0, m.y0, m.w, m.h }

// At returns the weight of pixel (x, y); zero outside the window.
func (m *Mask) At(x, y int) float64 {
	if x < m.x0 || x >= m.x0+m.w || y < m.y0 || y >= m.y0+m.h {
		return 0
	}

	return m.weights[(y-m.y0)*m.w+(x-m.x0)]
}

// Row returns the window weights of frame row y (length w, indexed by x-x0),
// or nil when y is outside the window. The slice aliases the mask.
func (m *Mask) Row(y int) []float64 {
	if y < m.y0 || y >= m.y0+m.h {
		return nil
	}
	base := (y - m.y0) * m.w

	return m.weights[base : base+m.w : base+m.w]
}

// Sum returns the total weight, i.e. the footprint area inside the frame.
func (m *Mask) Sum() float64 { return m.sum }

// Build returns the overlap mask of footprint on a width×height frame.
//
// Errors:
//   - ErrBadFrame for non-positive dimensions.
//   - geometry.ErrInvalidGeometry (wrapped) when the footprint is malformed.
func Build(width, height int, footprint geometry.Polygon) (*Mask, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("tracemask: %dx%d: %w", width, height, ErrBadFrame)
	}
	if err := footprint.Validate(); err != nil {
		return nil, fmt.Errorf("tracemask: %w", err)
	}

	b := footprint.Bounds()
	xa := edge(math.Floor(b.MinX), width)
	xb := edge(math.Ceil(b.MaxX), width)
	ya := edge(math.Floor(b.MinY), height)
	yb := edge(math.Ceil(b.MaxY), height)

	m := &Mask{frameW: width, frameH: height}
	if xa >= xb || ya >= yb {
		return m, nil
	}
	m.x0, m.y0, m.w, m.h = xa, ya, xb-xa, yb-ya
	m.weights = make([]float64, m.w*m.h)

	var (
		x, y        int
		strip, cell []geometry.Point
		tmp         []geometry.Point
		src         = []geometry.Point(footprint)
	)
	for y = ya; y < yb; y++ {
		fy := float64(y)
		tmp = clipAxis(tmp[:0], src, false, fy, true)
		strip = clipAxis(strip[:0], tmp, false, fy+1, false)
		if len(strip) < 3 {
			continue
		}
		row := m.weights[(y-ya)*m.w : (y-ya+1)*m.w]
		sb := geometry.Polygon(strip).Bounds()
		ca := max(edge(math.Floor(sb.MinX), width), xa)
		cb := min(edge(math.Ceil(sb.MaxX), width), xb)
		for x = ca; x < cb; x++ {
			fx := float64(x)
			tmp = clipAxis(tmp[:0], strip, true, fx, true)
			cell = clipAxis(cell[:0], tmp, true, fx+1, false)
			a := math.Abs(geometry.Polygon(cell).SignedArea())
			if a > 1 {
				a = 1
			}
			row[x-xa] = a
			m.sum += a
		}
	}

	return m, nil
}

// clipAxis appends to dst the part of src on one side of an axis-aligned line
// (x = c when onX, else y = c), keeping coordinates ≥ c when keepGE, else ≤ c.
func clipAxis(dst, src []geometry.Point, onX bool, c float64, keepGE bool) []geometry.Point {
	n := len(src)
	if n == 0 {
		return dst
	}
	coord := func(p geometry.Point) float64 {
		if onX {
			return p.X
		}

		return p.Y
	}
	inside := func(p geometry.Point) bool {
		if keepGE {
			return coord(p) >= c
		}

		return coord(p) <= c
	}
	cross := func(a, b geometry.Point) geometry.Point {
		t := (c - coord(a)) / (coord(b) - coord(a))
		if onX {
			return geometry.Point{X: c, Y: a.Y + t*(b.Y-a.Y)}
		}

		return geometry.Point{X: a.X + t*(b.X-a.X), Y: c}
	}

	prev := src[n-1]
	prevIn := inside(prev)
	for _, cur := range src {
		curIn := inside(cur)
		switch {
		case curIn && !prevIn:
			dst = append(dst, cross(prev, cur), cur)
		case curIn:
			dst = append(dst, cur)
		case prevIn:
			dst = append(dst, cross(prev, cur))
		}
		prev, prevIn = cur, curIn
	}

	return dst
}

// edge converts a pixel edge to an index in [0, n]. The float is clamped
// first; converting an out-of-range float to int is implementation-defined.
func edge(v float64, n int) int {
	return int(math.Max(0, math.Min(v, float64(n))))
}
