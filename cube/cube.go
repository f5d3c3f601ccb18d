// SPDX-License-Identifier: MIT

// Package cube maps extracted pixel spectra to wavelength and assembles them,
// keyed by trace index, into an integral-field cube.
//
// Failure policy:
//   - Per-trace problems (empty trace, invalid footprint, bad wavelength
//     solution, missing spectrum) never abort assembly; they are collected in
//     the cube's Report and the trace is left out.
//
// A Cube also carries the post-extraction operations of the reduction chain:
// flat fielding, atmospheric-extinction correction, sky subtraction, aperture
// extraction and flux calibration. All of them mutate the cube in place and
// record what was done in its Meta map (written as FITS cards by ccdio).
package cube

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/katalvlaran/ifucube/geometry"
)

// Meta keys recorded by cube operations.
const (
	MetaAirmass  = "AIRMASS"
	MetaFlexure  = "FLEXJOFF"
	MetaFlat     = "FLAT3D"
	MetaAtmCorr  = "ATMCORR"
	MetaAtmScale = "ATMSCALE"
	MetaSkySub   = "SKYSUB"
	MetaFluxCal  = "FLUXCAL"
	MetaGeometry = "GEOMVER"
)

// Report collects per-trace failures.
type Report struct {
	failures map[int]error
}

// NewReport returns an empty report.
func NewReport() *Report { return &Report{failures: make(map[int]error)} }

// Add records err for trace idx; the first error per trace wins.
func (r *Report) Add(idx int, err error) {
	if err == nil {
		return
	}
	if _, ok := r.failures[idx]; !ok {
		r.failures[idx] = err
	}
}

// Len returns the number of failed traces.
func (r *Report) Len() int { return len(r.failures) }

// Failed returns the failed trace indexes in ascending order.
func (r *Report) Failed() []int {
	out := make([]int, 0, len(r.failures))
	for idx := range r.failures {
		out = append(out, idx)
	}
	sort.Ints(out)

	return out
}

// Get returns the failure of trace idx, or nil.
func (r *Report) Get(idx int) error { return r.failures[idx] }

// Err joins every failure in index order, or returns nil when there is none.
func (r *Report) Err() error {
	if len(r.failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.failures))
	for _, idx := range r.Failed() {
		errs = append(errs, fmt.Errorf("trace %d: %w", idx, r.failures[idx]))
	}

	return errors.Join(errs...)
}

// Cube is a set of wavelength spectra keyed by trace index, each with its
// spaxel position.
type Cube struct {
	// Indexes lists the trace indexes present, ascending.
	Indexes []int
	// Positions[k] is the spaxel position of Indexes[k].
	Positions []geometry.Point
	// Spectra[k] is the spectrum of Indexes[k].
	Spectra []*Spectrum
	// Lambda is the shared wavelength grid, or nil when spectra differ.
	Lambda []float64
	// Report lists traces absent from the cube and why.
	Report *Report
	// Meta is a header-like record of processing steps.
	Meta map[string]any
}

// Assemble builds a cube from per-trace spectra. Every index of grid appears
// either in the cube or in its report: failures are copied from failures,
// indexes with neither a spectrum nor a failure get ErrMissingTrace, and
// spectra for indexes outside the grid are reported with ErrNotInGrid.
//
// Errors:
//   - ErrNoGrid when grid is nil.
func Assemble(spectra map[int]*Spectrum, grid *geometry.HexGrid, failures map[int]error) (*Cube, error) {
	if grid == nil {
		return nil, cubeErrorf("Assemble", ErrNoGrid)
	}
	c := &Cube{Report: NewReport(), Meta: make(map[string]any)}
	for idx, err := range failures {
		c.Report.Add(idx, err)
	}

	for _, idx := range grid.Indexes() {
		if c.Report.Get(idx) != nil {
			continue
		}
		s, ok := spectra[idx]
		if !ok || s == nil {
			c.Report.Add(idx, ErrMissingTrace)
			continue
		}
		pos, err := grid.XY(idx)
		if err != nil {
			c.Report.Add(idx, err)
			continue
		}
		c.Indexes = append(c.Indexes, idx)
		c.Positions = append(c.Positions, pos)
		c.Spectra = append(c.Spectra, s)
	}
	for idx := range spectra {
		if !grid.Has(idx) {
			c.Report.Add(idx, ErrNotInGrid)
		}
	}
	c.Lambda = commonGrid(c.Spectra)

	return c, nil
}

func commonGrid(spectra []*Spectrum) []float64 {
	if len(spectra) == 0 {
		return nil
	}
	ref := spectra[0].Lambda
	for _, s := range spectra[1:] {
		if !slices.Equal(ref, s.Lambda) {
			return nil
		}
	}

	return append([]float64(nil), ref...)
}

// Len returns the number of spaxels in the cube.
func (c *Cube) Len() int { return len(c.Indexes) }

// Spectrum returns the spectrum of trace idx.
func (c *Cube) Spectrum(idx int) (*Spectrum, bool) {
	k, ok := slices.BinarySearch(c.Indexes, idx)
	if !ok {
		return nil, false
	}

	return c.Spectra[k], true
}

// TotalFlux returns the sum of every unmasked flux sample in the cube.
func (c *Cube) TotalFlux() float64 {
	var t float64
	for _, s := range c.Spectra {
		for k, v := range s.Flux {
			if !s.Masked[k] {
				t += v
			}
		}
	}

	return t
}
