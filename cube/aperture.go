package cube

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/katalvlaran/ifucube/geometry"
)

// ApertureOption configures ApertureSpectrum.
type ApertureOption func(*apertureConfig)

type apertureConfig struct {
	annulus   *[2]float64
	normalize bool
	adr       *ADR
}

// WithAnnulus subtracts the mean spectrum of the spaxels between inner·r and
// outer·r, once per aperture spaxel. Requires 1 ≤ inner < outer.
func WithAnnulus(inner, outer float64) ApertureOption {
	return func(c *apertureConfig) { c.annulus = &[2]float64{inner, outer} }
}

// Normalized divides the aperture sum by its weight (the number of unmasked
// spaxels in the aperture at each wavelength), giving a per-spaxel mean.
func Normalized() ApertureOption {
	return func(c *apertureConfig) { c.normalize = true }
}

// WithADR moves the aperture with wavelength along the refraction model;
// center is then the source position at a.LambdaRef.
func WithADR(a ADR) ApertureOption {
	return func(c *apertureConfig) { c.adr = &a }
}

// ApertureSpectrum sums the spaxels whose position lies within r of center.
//
// By default a sample is masked when any aperture spaxel is masked there.
// With Normalized, masked spaxels are skipped and the mean of the others is
// returned; a sample is masked only when no aperture spaxel is left. With
// WithAnnulus, a sample without any unmasked annulus spaxel is masked.
//
// Errors: ErrNoCommonGrid, ErrBadArgument, ErrEmptySelection.
//
// Complexity:
//   - Time O(L·S) for L wavelengths and S spaxels, Space O(L).
func (c *Cube) ApertureSpectrum(center geometry.Point, r float64, opts ...ApertureOption) (*Spectrum, error) {
	var cfg apertureConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if c.Lambda == nil {
		return nil, cubeErrorf("ApertureSpectrum", ErrNoCommonGrid)
	}
	if !(r > 0) || math.IsInf(r, 0) {
		return nil, cubeErrorf("ApertureSpectrum", fmt.Errorf("radius %g: %w", r, ErrBadArgument))
	}
	if a := cfg.annulus; a != nil && !(a[0] >= 1 && a[1] > a[0] && !math.IsInf(a[1], 0)) {
		return nil, cubeErrorf("ApertureSpectrum", fmt.Errorf("annulus %v: %w", *a, ErrBadArgument))
	}
	if cfg.adr != nil {
		if err := cfg.adr.validate(); err != nil {
			return nil, cubeErrorf("ApertureSpectrum", err)
		}
	}

	m := len(c.Lambda)
	out := &Spectrum{
		Lambda:   append([]float64(nil), c.Lambda...),
		Flux:     make([]float64, m),
		Variance: make([]float64, m),
		Masked:   make([]bool, m),
	}
	weight := make([]float64, m)
	bmean := make([]float64, m)
	bvar := make([]float64, m)
	var selected, background int
	for j, lbda := range c.Lambda {
		ctr := center
		if cfg.adr != nil {
			d := cfg.adr.Shift(lbda)
			ctr = geometry.Point{X: center.X + d.X, Y: center.Y + d.Y}
		}
		var nb float64
		for k, p := range c.Positions {
			s := c.Spectra[k]
			d := math.Hypot(p.X-ctr.X, p.Y-ctr.Y)
			switch {
			case d <= r:
				selected++
				if s.Masked[j] {
					if !cfg.normalize {
						out.Masked[j] = true
					}
					continue
				}
				out.Flux[j] += s.Flux[j]
				out.Variance[j] += s.Variance[j]
				weight[j]++
			case cfg.annulus != nil && d >= r*cfg.annulus[0] && d <= r*cfg.annulus[1]:
				background++
				if s.Masked[j] {
					continue
				}
				bmean[j] += s.Flux[j]
				bvar[j] += s.Variance[j]
				nb++
			}
		}
		if weight[j] == 0 {
			out.Masked[j] = true
		}
		if cfg.annulus != nil {
			if nb == 0 {
				out.Masked[j] = true
				continue
			}
			bmean[j] /= nb
			bvar[j] /= nb * nb
		}
	}
	if selected == 0 || (cfg.annulus != nil && background == 0) {
		return nil, cubeErrorf("ApertureSpectrum", ErrEmptySelection)
	}

	if cfg.annulus != nil {
		// flux −= w·mean, variance += w²·var(mean)
		floats.Mul(bmean, weight)
		floats.Sub(out.Flux, bmean)
		floats.Mul(bvar, weight)
		floats.Mul(bvar, weight)
		floats.Add(out.Variance, bvar)
	}
	for j := range out.Flux {
		switch {
		case out.Masked[j]:
			out.mask(j)
		case cfg.normalize:
			out.Flux[j] /= weight[j]
			out.Variance[j] /= weight[j] * weight[j]
		}
	}

	return out, nil
}
