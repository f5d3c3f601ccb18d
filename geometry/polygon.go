// SPDX-License-Identifier: MIT

package geometry

import (
	"fmt"
	"math"
)

// orientEps is the tolerance used by orientation tests during the
// self-intersection check. Footprints live in pixel units (~1..2048), so a
// fixed absolute epsilon is adequate.
const orientEps = 1e-12

// Point is a location in detector (or sky-plane) coordinates.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Rect is an axis-aligned box [MinX, MaxX] × [MinY, MaxY].
type Rect struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// Width returns MaxX-MinX.
func (r Rect) Width() float64 { return r.MaxX - r.MinX }

// Height returns MaxY-MinY.
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// Polygon is a closed, simple polygon given by its vertices in order
// (either winding). The closing edge from the last vertex back to the first
// is implicit.
type Polygon []Point

// Rectangle returns the axis-aligned polygon with lower-left corner (x0, y0),
// extent w along x and h along y, in counter-clockwise order.
func Rectangle(x0, y0, w, h float64) Polygon {
	return Polygon{
		{X: x0, Y: y0},
		{X: x0 + w, Y: y0},
		{X: x0 + w, Y: y0 + h},
		{X: x0, Y: y0 + h},
	}
}

// SignedArea returns the shoelace area: positive for counter-clockwise
// winding, negative for clockwise.
// Complexity: O(n).
func (p Polygon) SignedArea() float64 {
	n := len(p)
	if n < 3 {
		return 0
	}
	var (
		sum  float64
		i, j int
	)
	for i = 0; i < n; i++ {
		j = (i + 1) % n
		sum += p[i].X*p[j].Y - p[j].X*p[i].Y
	}

	return sum / 2
}

// Area returns the absolute polygon area.
func (p Polygon) Area() float64 { return math.Abs(p.SignedArea()) }

// Bounds returns the tight axis-aligned bounding box. The zero Rect is
// returned for an empty polygon.
func (p Polygon) Bounds() Rect {
	if len(p) == 0 {
		return Rect{}
	}
	r := Rect{MinX: p[0].X, MinY: p[0].Y, MaxX: p[0].X, MaxY: p[0].Y}
	for _, v := range p[1:] {
		r.MinX = math.Min(r.MinX, v.X)
		r.MinY = math.Min(r.MinY, v.Y)
		r.MaxX = math.Max(r.MaxX, v.X)
		r.MaxY = math.Max(r.MaxY, v.Y)
	}

	return r
}

// Translate returns a copy of p moved by (dx, dy). p is not modified.
func (p Polygon) Translate(dx, dy float64) Polygon {
	out := make(Polygon, len(p))
	for i, v := range p {
		out[i] = Point{X: v.X + dx, Y: v.Y + dy}
	}

	return out
}

// Clone returns an independent copy of p.
func (p Polygon) Clone() Polygon {
	out := make(Polygon, len(p))
	copy(out, p)

	return out
}

// Validate checks that p is usable as a trace footprint.
//
// Implementation:
//   - Stage 1: at least three vertices, all finite.
//   - Stage 2: non-zero shoelace area.
//   - Stage 3: no two non-adjacent edges touch or cross (O(n²) pair scan).
//
// Errors:
//   - ErrInvalidGeometry, wrapped with the reason.
//
// Complexity:
//   - Time O(n²), Space O(1). Footprints have a handful of vertices.
func (p Polygon) Validate() error {
	n := len(p)
	if n < 3 {
		return geometryErrorf(fmt.Sprintf("polygon with %d vertices", n), ErrInvalidGeometry)
	}
	for i, v := range p {
		if math.IsNaN(v.X) || math.IsNaN(v.Y) || math.IsInf(v.X, 0) || math.IsInf(v.Y, 0) {
			return geometryErrorf(fmt.Sprintf("vertex %d not finite", i), ErrInvalidGeometry)
		}
	}
	if p.Area() == 0 {
		return geometryErrorf("zero area", ErrInvalidGeometry)
	}

	var i, j int
	for i = 0; i < n; i++ {
		a1, a2 := p[i], p[(i+1)%n]
		for j = i + 1; j < n; j++ {
			// Adjacent edges share a vertex by construction; skip them.
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			b1, b2 := p[j], p[(j+1)%n]
			if segmentsIntersect(a1, a2, b1, b2) {
				return geometryErrorf(fmt.Sprintf("edges %d and %d intersect", i, j), ErrInvalidGeometry)
			}
		}
	}

	return nil
}

// orient returns the sign of the cross product (b-a)×(c-a): +1 left turn,
// -1 right turn, 0 collinear within orientEps.
func orient(a, b, c Point) int {
	v := (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
	switch {
	case v > orientEps:
		return 1
	case v < -orientEps:
		return -1
	default:
		return 0
	}
}

// onSegment reports whether c, known collinear with a-b, lies within its box.
func onSegment(a, b, c Point) bool {
	return math.Min(a.X, b.X) <= c.X && c.X <= math.Max(a.X, b.X) &&
		math.Min(a.Y, b.Y) <= c.Y && c.Y <= math.Max(a.Y, b.Y)
}

// segmentsIntersect reports whether closed segments p1-p2 and q1-q2 share a point.
func segmentsIntersect(p1, p2, q1, q2 Point) bool {
	o1 := orient(p1, p2, q1)
	o2 := orient(p1, p2, q2)
	o3 := orient(q1, q2, p1)
	o4 := orient(q1, q2, p2)

	if o1 != o2 && o3 != o4 {
		return true
	}
	// Collinear touching cases.
	return (o1 == 0 && onSegment(p1, p2, q1)) ||
		(o2 == 0 && onSegment(p1, p2, q2)) ||
		(o3 == 0 && onSegment(q1, q2, p1)) ||
		(o4 == 0 && onSegment(q1, q2, p2))
}
