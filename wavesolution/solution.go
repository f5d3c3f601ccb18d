// SPDX-License-Identifier: MIT

// Package wavesolution defines per-trace pixel ↔ wavelength mappings.
//
// A Solution is produced by an external arc-lamp calibration and consumed
// here as an opaque, invertible mapping over a declared pixel domain. Two
// implementations are provided:
//   - Identity: λ = pixel, used for pixel-space cubes and tests.
//   - Polynomial: λ = P(pixel − Ref), inverted numerically.
//
// Every Solution must be strictly monotonic on its domain; CheckMonotonic
// verifies this and reports ErrNonMonotonicSolution.
package wavesolution

import (
	"errors"
	"fmt"
	"math"

	"github.com/katalvlaran/ifucube/linalg"
)

var (
	// ErrNonMonotonicSolution indicates a mapping that is not strictly
	// monotonic over its pixel domain, so it cannot be inverted.
	ErrNonMonotonicSolution = errors.New("wavesolution: solution is not strictly monotonic")

	// ErrOutOfDomain indicates a wavelength outside the image of the domain.
	ErrOutOfDomain = errors.New("wavesolution: wavelength outside solution domain")

	// ErrBadDomain indicates an empty or non-finite pixel domain.
	ErrBadDomain = errors.New("wavesolution: invalid pixel domain")

	// ErrMissingSolution indicates a trace without a solution in a Set.
	ErrMissingSolution = errors.New("wavesolution: no solution for trace")
)

const (
	// inverseTol is the pixel tolerance of the numerical inverse.
	inverseTol = 1e-10
	// inverseMaxIter bounds the bracketed Newton iterations.
	inverseMaxIter = 100
	// monotonicSamplesPerPixel is the sampling density of CheckMonotonic.
	monotonicSamplesPerPixel = 4
)

// Solution maps detector pixels along the dispersion axis to wavelengths (Å).
type Solution interface {
	// Wavelength returns λ at a (fractional) pixel.
	Wavelength(pixel float64) float64
	// Pixel returns the pixel at which Wavelength equals lbda.
	Pixel(lbda float64) (float64, error)
	// Domain returns the valid pixel interval [lo, hi].
	Domain() (lo, hi float64)
}

// Identity maps pixel p to λ = p on [Lo, Hi].
type Identity struct {
	Lo, Hi float64
}

// Wavelength returns pixel.
func (id Identity) Wavelength(pixel float64) float64 { return pixel }

// Pixel returns lbda, or ErrOutOfDomain outside [Lo, Hi].
func (id Identity) Pixel(lbda float64) (float64, error) {
	if lbda < id.Lo || lbda > id.Hi || math.IsNaN(lbda) {
		return 0, fmt.Errorf("identity: λ=%g: %w", lbda, ErrOutOfDomain)
	}

	return lbda, nil
}

// Domain returns [Lo, Hi].
func (id Identity) Domain() (lo, hi float64) { return id.Lo, id.Hi }

// Polynomial maps pixel p to λ = Coeffs(p − Ref) on [Lo, Hi].
type Polynomial struct {
	Coeffs linalg.Poly
	Ref    float64
	Lo, Hi float64
}

// NewPolynomial builds a polynomial solution and checks its monotonicity.
//
// Errors: ErrBadDomain, ErrNonMonotonicSolution.
func NewPolynomial(coeffs []float64, ref, lo, hi float64) (*Polynomial, error) {
	p := &Polynomial{Coeffs: append(linalg.Poly(nil), coeffs...), Ref: ref, Lo: lo, Hi: hi}
	if err := CheckMonotonic(p); err != nil {
		return nil, err
	}

	return p, nil
}

// Fit returns the weighted least-squares polynomial solution of the given
// degree through arc-line identifications (pixel[i], lbda[i]), with Ref at
// the domain centre.
//
// Errors: linalg errors from the fit, then NewPolynomial's.
func Fit(pixel, lbda, weight []float64, degree int, lo, hi float64) (*Polynomial, error) {
	ref := 0.5 * (lo + hi)
	shifted := make([]float64, len(pixel))
	for i, p := range pixel {
		shifted[i] = p - ref
	}
	c, err := linalg.PolyFit(shifted, lbda, weight, degree)
	if err != nil {
		return nil, fmt.Errorf("wavesolution: fit: %w", err)
	}

	return NewPolynomial(c, ref, lo, hi)
}

// Wavelength evaluates the polynomial at pixel.
func (p *Polynomial) Wavelength(pixel float64) float64 { return p.Coeffs.Eval(pixel - p.Ref) }

// Domain returns [Lo, Hi].
func (p *Polynomial) Domain() (lo, hi float64) { return p.Lo, p.Hi }

// Pixel inverts the polynomial with Newton steps safeguarded by bisection
// inside the domain bracket.
//
// Errors: ErrOutOfDomain when lbda is outside [λ(Lo), λ(Hi)].
func (p *Polynomial) Pixel(lbda float64) (float64, error) {
	lo, hi := p.Lo, p.Hi
	flo, fhi := p.Wavelength(lo)-lbda, p.Wavelength(hi)-lbda
	switch {
	case flo == 0:
		return lo, nil
	case fhi == 0:
		return hi, nil
	case math.IsNaN(lbda) || (flo > 0) == (fhi > 0):
		return 0, fmt.Errorf("polynomial: λ=%g: %w", lbda, ErrOutOfDomain)
	}
	// Keep the bracket oriented so that f(lo) < 0 < f(hi).
	if flo > 0 {
		lo, hi = hi, lo
	}
	d := p.Coeffs.Derivative()
	x := 0.5 * (lo + hi)
	for iter := 0; iter < inverseMaxIter; iter++ {
		f := p.Wavelength(x) - lbda
		if f == 0 {
			return x, nil
		}
		if f < 0 {
			lo = x
		} else {
			hi = x
		}
		next := x - f/d.Eval(x-p.Ref)
		if math.IsNaN(next) || math.IsInf(next, 0) || (next-lo)*(next-hi) > 0 {
			next = 0.5 * (lo + hi)
		}
		if math.Abs(next-x) < inverseTol {
			return next, nil
		}
		x = next
	}

	return x, nil
}

// CheckMonotonic verifies that sol is strictly monotonic on its domain by
// dense sampling (monotonicSamplesPerPixel per pixel, at least 64 samples).
//
// Errors: ErrBadDomain, ErrNonMonotonicSolution.
func CheckMonotonic(sol Solution) error {
	lo, hi := sol.Domain()
	if !(hi > lo) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return fmt.Errorf("domain [%g, %g]: %w", lo, hi, ErrBadDomain)
	}
	n := max(64, int(math.Ceil((hi-lo)*monotonicSamplesPerPixel)))
	step := (hi - lo) / float64(n)
	prev := sol.Wavelength(lo)
	sign := 0
	for k := 1; k <= n; k++ {
		cur := sol.Wavelength(lo + float64(k)*step)
		diff := cur - prev
		s := 0
		switch {
		case diff > 0:
			s = 1
		case diff < 0:
			s = -1
		}
		if s == 0 || math.IsNaN(diff) || (sign != 0 && s != sign) {
			return fmt.Errorf("near pixel %g: %w", lo+float64(k)*step, ErrNonMonotonicSolution)
		}
		sign = s
		prev = cur
	}

	return nil
}
