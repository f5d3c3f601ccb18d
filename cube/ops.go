package cube

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// FlatField divides every spaxel by its relative transmission. Spaxels
// absent from weights are left untouched; non-positive weights are rejected.
//
// Errors: ErrBadArgument.
func (c *Cube) FlatField(weights map[int]float64) error {
	for idx, w := range weights {
		if !(w > 0) || math.IsInf(w, 0) {
			return cubeErrorf("FlatField", fmt.Errorf("trace %d weight %g: %w", idx, w, ErrBadArgument))
		}
	}
	for k, idx := range c.Indexes {
		w, ok := weights[idx]
		if !ok {
			continue
		}
		c.Spectra[k].scale(1 / w)
	}
	c.Meta[MetaFlat] = true

	return nil
}

// CorrectExtinction removes atmospheric extinction at the given airmass:
// flux is multiplied by 10^(0.4·k(λ)·airmass).
//
// Errors: ErrBadArgument for a non-positive airmass.
func (c *Cube) CorrectExtinction(ext Extinction, airmass float64) error {
	if !(airmass > 0) {
		return cubeErrorf("CorrectExtinction", fmt.Errorf("airmass %g: %w", airmass, ErrBadArgument))
	}
	var (
		sum float64
		n   int
	)
	for _, s := range c.Spectra {
		for k, lbda := range s.Lambda {
			f := math.Pow(10, 0.4*ext.At(lbda)*airmass)
			s.Flux[k] *= f
			s.Variance[k] *= f * f
			sum += f
			n++
		}
	}
	c.Meta[MetaAtmCorr] = true
	c.Meta[MetaAirmass] = airmass
	if n > 0 {
		c.Meta[MetaAtmScale] = sum / float64(n)
	}

	return nil
}

// SkyOption configures RemoveSky.
type SkyOption func(*skyConfig)

type skyConfig struct {
	plainMean bool
}

// PlainMean combines the sky spaxels with an unweighted mean instead of the
// inverse-variance weighted one.
func PlainMean() SkyOption {
	return func(c *skyConfig) { c.plainMean = true }
}

// RemoveSky estimates the sky as the inverse-variance weighted mean spectrum
// of the n spaxels with the lowest median flux in [lo, hi], subtracts it from
// every spaxel and returns it. Sky variance is added to each spaxel's.
//
// Errors: ErrNoCommonGrid, ErrBadArgument, ErrEmptySelection.
func (c *Cube) RemoveSky(n int, lo, hi float64, opts ...SkyOption) (*Spectrum, error) {
	var cfg skyConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if c.Lambda == nil {
		return nil, cubeErrorf("RemoveSky", ErrNoCommonGrid)
	}
	if n <= 0 || !(hi > lo) {
		return nil, cubeErrorf("RemoveSky", fmt.Errorf("n=%d window [%g,%g]: %w", n, lo, hi, ErrBadArgument))
	}

	type ranked struct {
		k     int
		level float64
	}
	var cand []ranked
	for k, s := range c.Spectra {
		var in []float64
		for j, lbda := range s.Lambda {
			if lbda >= lo && lbda <= hi && !s.Masked[j] {
				in = append(in, s.Flux[j])
			}
		}
		if len(in) == 0 {
			continue
		}
		cand = append(cand, ranked{k: k, level: median(in)})
	}
	if len(cand) == 0 {
		return nil, cubeErrorf("RemoveSky", ErrEmptySelection)
	}
	sort.SliceStable(cand, func(a, b int) bool { return cand[a].level < cand[b].level })
	if n > len(cand) {
		n = len(cand)
	}
	pick := make([]*Spectrum, n)
	for i := 0; i < n; i++ {
		pick[i] = c.Spectra[cand[i].k]
	}

	sky := combine(c.Lambda, pick, cfg.plainMean)
	for _, s := range c.Spectra {
		for j := range s.Flux {
			if sky.Masked[j] {
				s.mask(j)
				continue
			}
			s.Flux[j] -= sky.Flux[j]
			s.Variance[j] += sky.Variance[j]
		}
	}
	c.Meta[MetaSkySub] = n

	return sky, nil
}

// combine returns the inverse-variance weighted mean of spectra on lambda.
// The plain mean is used when plain is set or when a variance of the sample
// is not positive; its variance is Σσ²/n².
func combine(lambda []float64, spectra []*Spectrum, plain bool) *Spectrum {
	m := len(lambda)
	out := &Spectrum{
		Lambda:   append([]float64(nil), lambda...),
		Flux:     make([]float64, m),
		Variance: make([]float64, m),
		Masked:   make([]bool, m),
	}
	for j := 0; j < m; j++ {
		var (
			sw, swf, sf, sv float64
			cnt             int
			zeroVar         bool
		)
		for _, s := range spectra {
			if s.Masked[j] {
				continue
			}
			cnt++
			sf += s.Flux[j]
			sv += s.Variance[j]
			if s.Variance[j] <= 0 {
				zeroVar = true
				continue
			}
			w := 1 / s.Variance[j]
			sw += w
			swf += w * s.Flux[j]
		}
		switch {
		case cnt == 0:
			out.mask(j)
		case plain || zeroVar || sw == 0:
			out.Flux[j] = sf / float64(cnt)
			out.Variance[j] = sv / float64(cnt*cnt)
		default:
			out.Flux[j] = swf / sw
			out.Variance[j] = 1 / sw
		}
	}

	return out
}

// Calibrate divides every spaxel by the inverse-sensitivity curve
// (lambda, values), linearly interpolated onto the cube grid. Samples outside
// the curve's range are masked.
//
// Errors: ErrNoCommonGrid, ErrBadArgument.
func (c *Cube) Calibrate(lambda, values []float64) error {
	if c.Lambda == nil {
		return cubeErrorf("Calibrate", ErrNoCommonGrid)
	}
	if len(lambda) < 2 || len(lambda) != len(values) {
		return cubeErrorf("Calibrate", ErrBadArgument)
	}
	for j, lbda := range c.Lambda {
		v, ok := interp(lambda, values, lbda)
		for _, s := range c.Spectra {
			if !ok || !(v > 0) {
				s.mask(j)
				continue
			}
			s.Flux[j] /= v
			s.Variance[j] /= v * v
		}
	}
	c.Meta[MetaFluxCal] = true

	return nil
}

func (s *Spectrum) scale(k float64) {
	floats.Scale(k, s.Flux)
	floats.Scale(k*k, s.Variance)
}

// interp linearly interpolates (xs, ys) at x; xs must be ascending.
func interp(xs, ys []float64, x float64) (float64, bool) {
	n := len(xs)
	if n == 0 || x < xs[0] || x > xs[n-1] || math.IsNaN(x) {
		return 0, false
	}
	i := sort.SearchFloat64s(xs, x)
	if xs[i] == x {
		return ys[i], true
	}
	t := (x - xs[i-1]) / (xs[i] - xs[i-1])

	return ys[i-1] + t*(ys[i]-ys[i-1]), true
}

func median(v []float64) float64 {
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}

	return 0.5 * (s[n/2-1] + s[n/2])
}
