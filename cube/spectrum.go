// SPDX-License-Identifier: MIT

package cube

import (
	"fmt"
	"math"
	"sort"

	"github.com/katalvlaran/ifucube/extract"
	"github.com/katalvlaran/ifucube/wavesolution"
)

// Spectrum is a wavelength-indexed 1-D spectrum of one trace.
type Spectrum struct {
	Lambda   []float64
	Flux     []float64
	Variance []float64
	// Masked[k] is true when sample k could not be computed (outside the
	// extracted range or the solution domain); Flux and Variance are NaN there.
	Masked []bool
}

// Len returns the number of samples.
func (s *Spectrum) Len() int { return len(s.Lambda) }

// Clone returns a deep copy.
func (s *Spectrum) Clone() *Spectrum {
	return &Spectrum{
		Lambda:   append([]float64(nil), s.Lambda...),
		Flux:     append([]float64(nil), s.Flux...),
		Variance: append([]float64(nil), s.Variance...),
		Masked:   append([]bool(nil), s.Masked...),
	}
}

// ToWavelength maps a pixel-indexed spectrum through sol.
//
// Modes:
//   - grid == nil (native): λ_k = sol.Wavelength(pixel_k); flux and variance
//     are copied unchanged. Pixels outside sol's domain are kept but masked.
//   - grid != nil: for each target λ, p = sol.Pixel(λ); flux is linearly
//     interpolated between the neighbouring extracted pixels ⌊p⌋ and ⌊p⌋+1 and
//     variance combined with squared weights. Targets that fall outside the
//     domain or between non-adjacent extracted pixels are NaN and masked.
//
// Errors:
//   - wavesolution.ErrNonMonotonicSolution when sol fails CheckMonotonic.
//
// Complexity:
//   - Native O(n); grid O(m·(log n + cost(sol.Pixel))).
func ToWavelength(spec *extract.Spectrum, sol wavesolution.Solution, grid []float64) (*Spectrum, error) {
	if spec == nil || sol == nil {
		return nil, cubeErrorf("ToWavelength", ErrBadArgument)
	}
	if err := wavesolution.CheckMonotonic(sol); err != nil {
		return nil, cubeErrorf("ToWavelength", err)
	}
	if grid == nil {
		return nativeSpectrum(spec, sol), nil
	}

	n := len(grid)
	out := &Spectrum{
		Lambda:   append([]float64(nil), grid...),
		Flux:     make([]float64, n),
		Variance: make([]float64, n),
		Masked:   make([]bool, n),
	}
	for k, lbda := range grid {
		p, err := sol.Pixel(lbda)
		if err != nil {
			out.mask(k)
			continue
		}
		i := int(math.Floor(p))
		t := p - float64(i)
		a := sort.SearchInts(spec.Pixels, i)
		if a >= len(spec.Pixels) || spec.Pixels[a] != i {
			out.mask(k)
			continue
		}
		if t == 0 {
			out.Flux[k], out.Variance[k] = spec.Flux[a], spec.Variance[a]
			continue
		}
		if a+1 >= len(spec.Pixels) || spec.Pixels[a+1] != i+1 {
			out.mask(k)
			continue
		}
		out.Flux[k] = (1-t)*spec.Flux[a] + t*spec.Flux[a+1]
		out.Variance[k] = (1-t)*(1-t)*spec.Variance[a] + t*t*spec.Variance[a+1]
	}

	return out, nil
}

func nativeSpectrum(spec *extract.Spectrum, sol wavesolution.Solution) *Spectrum {
	n := len(spec.Pixels)
	lo, hi := sol.Domain()
	out := &Spectrum{
		Lambda:   make([]float64, n),
		Flux:     append([]float64(nil), spec.Flux...),
		Variance: append([]float64(nil), spec.Variance...),
		Masked:   make([]bool, n),
	}
	for k, p := range spec.Pixels {
		fp := float64(p)
		out.Lambda[k] = sol.Wavelength(fp)
		out.Masked[k] = fp < lo || fp > hi
	}

	return out
}

func (s *Spectrum) mask(k int) {
	s.Flux[k], s.Variance[k], s.Masked[k] = math.NaN(), math.NaN(), true
}

// LinearGrid returns n wavelengths from start with the given step.
func LinearGrid(start, step float64, n int) ([]float64, error) {
	if n <= 0 || !(step > 0) || math.IsInf(start, 0) || math.IsNaN(start) {
		return nil, cubeErrorf("LinearGrid", fmt.Errorf("start=%g step=%g n=%d: %w", start, step, n, ErrBadArgument))
	}
	g := make([]float64, n)
	for k := range g {
		g[k] = start + float64(k)*step
	}

	return g, nil
}
