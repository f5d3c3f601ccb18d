package geometry

import (
	"fmt"
	"sort"
)

// Trace is one dispersed spaxel spectrum imaged on the detector.
type Trace struct {
	// Index is the stable trace identifier for an instrument configuration.
	Index int
	// Footprint is the trace outline in detector pixels.
	Footprint Polygon
}

// ShiftedJ returns a copy of t with its footprint moved by dj pixels along
// the cross-dispersion (y) axis.
func (t Trace) ShiftedJ(dj float64) Trace {
	return Trace{Index: t.Index, Footprint: t.Footprint.Translate(0, dj)}
}

// Geometry is a versioned trace layout for one detector: footprints keyed by
// trace index plus the hexagonal spaxel grid.
type Geometry struct {
	version string
	width   int
	height  int
	traces  map[int]Trace
	order   []int
	grid    *HexGrid
}

// New assembles a Geometry. Footprints are copied; every trace must have a
// unique index. Footprint validity is not checked here: malformed polygons
// must fail only their own trace at mask time, not the whole layout.
//
// Errors: ErrBadDetector, ErrDuplicateTrace.
func New(version string, width, height int, traces []Trace, grid *HexGrid) (*Geometry, error) {
	if width <= 0 || height <= 0 {
		return nil, geometryErrorf(fmt.Sprintf("detector %dx%d", width, height), ErrBadDetector)
	}
	g := &Geometry{
		version: version,
		width:   width,
		height:  height,
		traces:  make(map[int]Trace, len(traces)),
		order:   make([]int, 0, len(traces)),
		grid:    grid,
	}
	for _, t := range traces {
		if _, dup := g.traces[t.Index]; dup {
			return nil, geometryErrorf(fmt.Sprintf("trace %d", t.Index), ErrDuplicateTrace)
		}
		g.traces[t.Index] = Trace{Index: t.Index, Footprint: t.Footprint.Clone()}
		g.order = append(g.order, t.Index)
	}
	sort.Ints(g.order)

	return g, nil
}

// Version returns the layout version label.
func (g *Geometry) Version() string { return g.version }

// Shape returns the detector width (x, dispersion) and height (y).
func (g *Geometry) Shape() (width, height int) { return g.width, g.height }

// Grid returns the spaxel grid (nil when the layout has none).
func (g *Geometry) Grid() *HexGrid { return g.grid }

// Len returns the number of traces.
func (g *Geometry) Len() int { return len(g.order) }

// Indexes returns the sorted trace indexes (a copy).
func (g *Geometry) Indexes() []int {
	out := make([]int, len(g.order))
	copy(out, g.order)

	return out
}

// Trace returns the trace with the given index.
func (g *Geometry) Trace(idx int) (Trace, error) {
	t, ok := g.traces[idx]
	if !ok {
		return Trace{}, geometryErrorf(fmt.Sprintf("trace %d", idx), ErrUnknownTrace)
	}

	return t, nil
}

// Traces returns all traces in index order.
func (g *Geometry) Traces() []Trace {
	out := make([]Trace, 0, len(g.order))
	for _, idx := range g.order {
		out = append(out, g.traces[idx])
	}

	return out
}
