package linalg

import "math"

// Poly is a real polynomial with ascending coefficients:
// p(x) = c[0] + c[1]·x + … + c[n]·xⁿ. The zero-length Poly evaluates to 0.
type Poly []float64

// Degree returns len(p)-1 (−1 for the empty polynomial).
func (p Poly) Degree() int { return len(p) - 1 }

// Eval evaluates p at x with Horner's scheme.
// Complexity: O(n).
func (p Poly) Eval(x float64) float64 {
	var s float64
	for i := len(p) - 1; i >= 0; i-- {
		s = s*x + p[i]
	}

	return s
}

// Derivative returns p'.
func (p Poly) Derivative() Poly {
	if len(p) <= 1 {
		return Poly{}
	}
	d := make(Poly, len(p)-1)
	for i := 1; i < len(p); i++ {
		d[i-1] = float64(i) * p[i]
	}

	return d
}

// PolyFit returns the weighted least-squares polynomial of the given degree
// through (x[i], y[i]) with per-sample weights w[i] ≥ 0 (nil → uniform).
// Samples with zero or non-finite weight, x or y are ignored.
//
// Errors:
//   - ErrBadDegree when degree < 0.
//   - ErrDimensionMismatch on length mismatch or fewer usable samples than
//     coefficients.
//   - ErrSingular when the design matrix is rank-deficient.
//
// Complexity: O(m·(d+1)²).
func PolyFit(x, y, w []float64, degree int) (Poly, error) {
	if degree < 0 {
		return nil, linalgErrorf(opPolyFit, ErrBadDegree)
	}
	if len(x) != len(y) || (w != nil && len(w) != len(x)) {
		return nil, linalgErrorf(opPolyFit, ErrDimensionMismatch)
	}
	n := degree + 1
	a := make([]float64, 0, len(x)*n)
	b := make([]float64, 0, len(x))
	for i := range x {
		wi := 1.0
		if w != nil {
			wi = w[i]
		}
		if !(wi > 0) || !finite(x[i]) || !finite(y[i]) || math.IsInf(wi, 0) {
			continue
		}
		// Row scaled by sqrt(w) so that ‖·‖₂ carries the weights.
		sw := math.Sqrt(wi)
		pw := sw
		for k := 0; k < n; k++ {
			a = append(a, pw)
			pw *= x[i]
		}
		b = append(b, sw*y[i])
	}
	m := len(b)
	if m < n {
		return nil, linalgErrorf(opPolyFit, ErrDimensionMismatch)
	}
	c, err := LeastSquares(a, m, n, b)
	if err != nil {
		return nil, linalgErrorf(opPolyFit, err)
	}

	return Poly(c), nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
