package fluxcal

import (
	"math"

	"github.com/katalvlaran/ifucube/linalg"
)

// model evaluates the inverse sensitivity and the telluric transmission.
//
//	S(λ)  = exp(P(x)),  x = (λ − mid)/half
//	T(λ)  = exp(−airmass · (τ_O2(λ) + τ_H2O(λ)))
//	τ_b   = strength_b · Σ_l depth_l · exp(−(λ−c_l)²/(2σ_l²))
//	σ_l²  = width_b² + (stretch · c_l / R)²
type model struct {
	mid, half float64
	r         float64
	o2, h2o   Band
}

func (m model) x(lbda float64) float64 { return (lbda - m.mid) / m.half }

func (m model) tau(b Band, strength, width, stretch, lbda float64) float64 {
	var s float64
	for _, l := range b.Lines {
		lsf := stretch * l.Center / m.r
		s2 := width*width + lsf*lsf
		d := lbda - l.Center
		s += l.Depth * math.Exp(-d*d/(2*s2))
	}

	return strength * s
}

// opticalDepth returns τ_O2 + τ_H2O at unit airmass.
func (m model) opticalDepth(p Params, lbda float64) float64 {
	return m.tau(m.o2, p.O2Strength, p.O2Width, p.Stretch, lbda) +
		m.tau(m.h2o, p.H2OStrength, p.H2OWidth, p.Stretch, lbda)
}

// inverseSensitivity returns S(λ)·T(λ, airmass).
func (m model) inverseSensitivity(c linalg.Poly, p Params, airmass, lbda float64) float64 {
	return math.Exp(c.Eval(m.x(lbda)) - airmass*m.opticalDepth(p, lbda))
}

// inBand reports whether lbda lies within width·σ of any line, using the
// starting telluric parameters.
func (m model) inBand(p Params, width, lbda float64) bool {
	check := func(b Band, w float64) bool {
		for _, l := range b.Lines {
			lsf := p.Stretch * l.Center / m.r
			sigma := math.Sqrt(w*w + lsf*lsf)
			if math.Abs(lbda-l.Center) <= width*sigma {
				return true
			}
		}

		return false
	}

	return check(m.o2, p.O2Width) || check(m.h2o, p.H2OWidth)
}

// bounded maps an unconstrained u to [lo, hi] through a sine.
func bounded(u, lo, hi float64) float64 {
	return lo + (hi-lo)*(math.Sin(u)+1)/2
}

// unbounded inverts bounded, clamping v into [lo, hi] first.
func unbounded(v, lo, hi float64) float64 {
	t := 2*(v-lo)/(hi-lo) - 1

	return math.Asin(math.Max(-1, math.Min(1, t)))
}
