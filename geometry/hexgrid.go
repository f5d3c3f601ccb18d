package geometry

import (
	"fmt"
	"math"
	"sort"
)

// QR is an axial hexagonal cell coordinate.
type QR struct {
	Q int `yaml:"q"`
	R int `yaml:"r"`
}

// axialNeighbors lists the six axial offsets around a cell, counter-clockwise
// starting east.
var axialNeighbors = [6]QR{{1, 0}, {1, -1}, {0, -1}, {-1, 0}, {-1, 1}, {0, 1}}

// HexGrid maps trace indexes onto the hexagonal micro-lens array.
// Positions are derived as:
//
//	x' = scale·(q + r/2),  y' = scale·(√3/2)·r
//	(x, y) = Rot(rotation)·(x', y')
//
// A HexGrid is immutable after NewHexGrid and safe for concurrent reads.
type HexGrid struct {
	scale    float64    // spaxel centre-to-centre distance
	rotation float64    // radians, counter-clockwise
	cells    map[int]QR // trace index → cell
	byCell   map[QR]int // cell → trace index
	order    []int      // sorted trace indexes
	cosR     float64    // cached cos(rotation)
	sinR     float64    // cached sin(rotation)
}

// NewHexGrid builds a grid from scale, rotation (degrees) and the
// index→cell table. The table is copied.
//
// Errors: ErrBadHexGrid on scale <= 0, non-finite rotation, or two indexes
// mapped to the same cell.
func NewHexGrid(scale, rotationDeg float64, cells map[int]QR) (*HexGrid, error) {
	if !(scale > 0) || math.IsInf(scale, 0) {
		return nil, geometryErrorf(fmt.Sprintf("scale %g", scale), ErrBadHexGrid)
	}
	if math.IsNaN(rotationDeg) || math.IsInf(rotationDeg, 0) {
		return nil, geometryErrorf("rotation not finite", ErrBadHexGrid)
	}
	rot := rotationDeg * math.Pi / 180
	h := &HexGrid{
		scale:    scale,
		rotation: rot,
		cells:    make(map[int]QR, len(cells)),
		byCell:   make(map[QR]int, len(cells)),
		order:    make([]int, 0, len(cells)),
		cosR:     math.Cos(rot),
		sinR:     math.Sin(rot),
	}
	for idx, c := range cells {
		if other, dup := h.byCell[c]; dup {
			return nil, geometryErrorf(fmt.Sprintf("indexes %d and %d share cell %v", other, idx, c), ErrBadHexGrid)
		}
		h.cells[idx] = c
		h.byCell[c] = idx
		h.order = append(h.order, idx)
	}
	sort.Ints(h.order)

	return h, nil
}

// Len returns the number of indexed cells.
func (h *HexGrid) Len() int { return len(h.order) }

// Indexes returns the sorted trace indexes present in the grid (a copy).
func (h *HexGrid) Indexes() []int {
	out := make([]int, len(h.order))
	copy(out, h.order)

	return out
}

// Has reports whether idx is part of the grid.
func (h *HexGrid) Has(idx int) bool {
	_, ok := h.cells[idx]

	return ok
}

// QR returns the axial cell of idx.
func (h *HexGrid) QR(idx int) (QR, bool) {
	c, ok := h.cells[idx]

	return c, ok
}

// IndexAt returns the trace index sitting on cell c.
func (h *HexGrid) IndexAt(c QR) (int, bool) {
	idx, ok := h.byCell[c]

	return idx, ok
}

// QRToXY converts an axial cell to sky-plane coordinates.
func (h *HexGrid) QRToXY(c QR) Point {
	xp := h.scale * (float64(c.Q) + float64(c.R)/2)
	yp := h.scale * (math.Sqrt(3) / 2) * float64(c.R)

	return Point{
		X: h.cosR*xp - h.sinR*yp,
		Y: h.sinR*xp + h.cosR*yp,
	}
}

// XYToQR returns the cell containing the sky-plane point p (cube rounding).
func (h *HexGrid) XYToQR(p Point) QR {
	// Undo the rotation.
	xp := h.cosR*p.X + h.sinR*p.Y
	yp := -h.sinR*p.X + h.cosR*p.Y
	// Fractional axial coordinates.
	r := yp / (h.scale * math.Sqrt(3) / 2)
	q := xp/h.scale - r/2

	return cubeRound(q, r)
}

// XY returns the sky-plane position of idx.
func (h *HexGrid) XY(idx int) (Point, error) {
	c, ok := h.cells[idx]
	if !ok {
		return Point{}, geometryErrorf(fmt.Sprintf("hexgrid index %d", idx), ErrUnknownTrace)
	}

	return h.QRToXY(c), nil
}

// Neighbors returns the indexes of the occupied cells adjacent to idx, in
// axial order (east first, counter-clockwise).
func (h *HexGrid) Neighbors(idx int) ([]int, error) {
	c, ok := h.cells[idx]
	if !ok {
		return nil, geometryErrorf(fmt.Sprintf("hexgrid index %d", idx), ErrUnknownTrace)
	}
	out := make([]int, 0, len(axialNeighbors))
	for _, d := range axialNeighbors {
		if n, ok := h.byCell[QR{Q: c.Q + d.Q, R: c.R + d.R}]; ok {
			out = append(out, n)
		}
	}

	return out, nil
}

// cubeRound rounds fractional axial coordinates to the nearest hex cell.
func cubeRound(q, r float64) QR {
	s := -q - r
	rq, rr, rs := math.Round(q), math.Round(r), math.Round(s)
	dq, dr, ds := math.Abs(rq-q), math.Abs(rr-r), math.Abs(rs-s)
	switch {
	case dq > dr && dq > ds:
		rq = -rr - rs
	case dr > ds:
		rr = -rq - rs
	}

	return QR{Q: int(rq), R: int(rr)}
}
