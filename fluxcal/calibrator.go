// SPDX-License-Identifier: MIT

// Package fluxcal derives and applies flux calibrations from standard-star
// exposures.
//
// The observed standard is modelled as
//
//	obs(λ) = ref(λ) · S(λ) · T(λ, airmass)
//
// where ref is the catalogue spectrum of the star, S the instrument inverse
// sensitivity (ln S is a polynomial in normalised wavelength) and T the
// telluric transmission of the O₂ and H₂O bands, whose optical depth scales
// with airmass and whose line widths follow the instrument line-spread
// function through a free resolution stretch.
//
// Implementation:
//   - Stage 1: collect samples shared with the reference that have a positive
//     variance (ErrInsufficientOverlap below MinOverlap).
//   - Stage 2: seed ln S by weighted least squares of ln(obs/ref) away from
//     the telluric bands (linalg QR).
//   - Stage 3: minimise Σ((obs − model)/σ)² jointly over polynomial and
//     telluric parameters with gonum's Newton method fed the Gauss–Newton
//     Hessian 2JᵀJ; J is a central finite-difference Jacobian. Telluric
//     parameters are bounded through a sine transform.
//   - Stage 4: accept only a converged, finite solution; otherwise
//     ErrFitDidNotConverge and no artifact.
//
// The fit is sequential and bounded by MaxIterations; cancelling the context
// stops it with ErrFitDidNotConverge.
package fluxcal

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/katalvlaran/ifucube/cube"
	"github.com/katalvlaran/ifucube/linalg"
)

const (
	// chi2Threshold stops the search once the fit is exact to rounding.
	chi2Threshold = 1e-18
	// gradAcceptance is the relative gradient norm accepted when the
	// optimiser stops on a non-convergence status at a stationary point.
	gradAcceptance = 1e-6
)

// Calibrator fits flux calibrations with a fixed configuration.
// It holds no per-fit state and is safe for concurrent use.
type Calibrator struct {
	opts Options
}

// NewCalibrator returns a Calibrator configured by DefaultOptions and opts.
//
// Errors: ErrBadOptions.
func NewCalibrator(opts ...Option) (*Calibrator, error) {
	o := gatherOptions(opts...)
	if err := o.validate(); err != nil {
		return nil, err
	}

	return &Calibrator{opts: o}, nil
}

// Options returns the calibrator's configuration.
func (c *Calibrator) Options() Options { return c.opts }

func (o Options) validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("fluxcal: "+format+": %w", append(args, ErrBadOptions)...)
	}
	switch {
	case o.Degree < 0:
		return bad("degree %d", o.Degree)
	case !(o.ResolvingPower > 0):
		return bad("resolving power %g", o.ResolvingPower)
	case o.MaxIterations <= 0:
		return bad("max iterations %d", o.MaxIterations)
	case o.MinOverlap < o.Degree+1+nTelluric:
		return bad("min overlap %d below %d free parameters", o.MinOverlap, o.Degree+1+nTelluric)
	case !(o.AirmassTolerance >= 0):
		return bad("airmass tolerance %g", o.AirmassTolerance)
	}
	lo, hi, st := o.Lower.vector(), o.Upper.vector(), o.Start.vector()
	for k := 0; k < nTelluric; k++ {
		if !(lo[k] < hi[k]) || st[k] < lo[k] || st[k] > hi[k] {
			return bad("telluric parameter %d: start %g outside [%g, %g]", k, st[k], lo[k], hi[k])
		}
	}
	// σ² = width² + (stretch·c/R)² must stay positive in both bands.
	if lo[4] <= 0 && (lo[1] <= 0 || lo[3] <= 0) {
		return bad("line width may reach zero")
	}

	return nil
}

// samples are the observations used by one fit.
type samples struct {
	lambda, obs, sigma, ref []float64
}

func (s *samples) len() int { return len(s.lambda) }

// collect returns the usable samples of std against ref.
func collect(std *cube.Spectrum, ref *Reference) (*samples, error) {
	n := len(std.Lambda)
	if len(std.Flux) != n || len(std.Variance) != n || (std.Masked != nil && len(std.Masked) != n) {
		return nil, fluxcalErrorf("Fit", ErrBadSpectrum)
	}
	if err := ref.validate(); err != nil {
		return nil, err
	}
	s := &samples{}
	for i, l := range std.Lambda {
		if std.Masked != nil && std.Masked[i] {
			continue
		}
		f, v := std.Flux[i], std.Variance[i]
		if math.IsNaN(f) || math.IsInf(f, 0) || !(v > 0) || math.IsInf(v, 0) {
			continue
		}
		r, ok := ref.At(l)
		if !ok || !(r > 0) {
			continue
		}
		s.lambda = append(s.lambda, l)
		s.obs = append(s.obs, f)
		s.sigma = append(s.sigma, math.Sqrt(v))
		s.ref = append(s.ref, r)
	}

	return s, nil
}

// Fit derives a calibration artifact from a standard-star spectrum std, the
// star's reference spectrum and the exposure airmass.
//
// Errors:
//   - ErrBadSpectrum for malformed inputs or a non-positive airmass.
//   - ErrInsufficientOverlap when fewer than MinOverlap usable samples exist.
//   - ErrFitDidNotConverge when the optimiser fails, runs out of iterations
//     away from a stationary point, or ctx is cancelled (ctx.Err() is also
//     wrapped).
func (c *Calibrator) Fit(ctx context.Context, std *cube.Spectrum, ref *Reference, airmass float64) (*Spectrum, error) {
	o := c.opts
	if std == nil || ref == nil || !(airmass > 0) || math.IsInf(airmass, 0) {
		return nil, fluxcalErrorf("Fit", ErrBadSpectrum)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fluxcal.Fit: %w: %w", ErrFitDidNotConverge, err)
	}

	// Stage 1: overlap.
	data, err := collect(std, ref)
	if err != nil {
		return nil, err
	}
	if data.len() < o.MinOverlap {
		return nil, fluxcalErrorf("Fit",
			fmt.Errorf("%d usable samples, need %d: %w", data.len(), o.MinOverlap, ErrInsufficientOverlap))
	}
	lmin, lmax := floats.Min(data.lambda), floats.Max(data.lambda)
	m := model{
		mid:  0.5 * (lmin + lmax),
		half: 0.5 * (lmax - lmin),
		r:    o.ResolvingPower,
		o2:   o.O2,
		h2o:  o.H2O,
	}
	if !(m.half > 0) {
		return nil, fluxcalErrorf("Fit", ErrInsufficientOverlap)
	}

	// Stage 2: seed.
	seed, err := seedPolynomial(m, data, o, airmass)
	if err != nil {
		return nil, fluxcalErrorf("Fit", fmt.Errorf("%w: seed: %w", ErrFitDidNotConverge, err))
	}

	// Stage 3: joint fit.
	p := &problem{m: m, data: data, airmass: airmass, nPoly: o.Degree + 1, lower: o.Lower, upper: o.Upper}
	x0 := p.encode(seed, o.Start)
	conv := &ctxConverger{
		ctx:   ctx,
		inner: &optimize.FunctionConverge{Absolute: 1e-14, Relative: 1e-12, Iterations: 10},
	}
	settings := &optimize.Settings{
		MajorIterations:   o.MaxIterations,
		GradientThreshold: 1e-12,
		Converger:         conv,
	}
	res, minErr := optimize.Minimize(p.optProblem(), x0, settings, &optimize.Newton{})

	// Stage 4: acceptance.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fluxcal.Fit: %w: %w", ErrFitDidNotConverge, err)
	}
	if res == nil || !allFinite(res.X) {
		return nil, fluxcalErrorf("Fit", fmt.Errorf("%w: %v", ErrFitDidNotConverge, minErr))
	}
	if !converged(res.Status) {
		grad := make([]float64, len(res.X))
		f := p.value(res.X)
		p.grad(grad, res.X)
		if floats.Norm(grad, 2) > gradAcceptance*math.Max(1, f) {
			o.Logger.Warn("fluxcal: fit did not converge",
				zap.String("status", res.Status.String()),
				zap.Int("iterations", res.Stats.MajorIterations),
				zap.Float64("chi2", f),
				zap.NamedError("optimizer", minErr))

			return nil, fluxcalErrorf("Fit", fmt.Errorf("status %v after %d iterations: %w",
				res.Status, res.Stats.MajorIterations, ErrFitDidNotConverge))
		}
	}

	coeffs, params := p.decode(res.X)
	resid := make([]float64, data.len())
	p.residuals(resid, res.X)
	out := &Spectrum{
		ID:               uuid.NewString(),
		Created:          time.Now().UTC().Truncate(time.Microsecond),
		Reference:        ref.Name,
		Airmass:          airmass,
		AirmassTolerance: o.AirmassTolerance,
		LambdaMid:        m.mid,
		LambdaHalf:       m.half,
		Coeffs:           coeffs,
		Telluric:         params,
		ResolvingPower:   o.ResolvingPower,
		O2:               cloneBand(o.O2),
		H2O:              cloneBand(o.H2O),
		Lambda:           append([]float64(nil), data.lambda...),
		Residuals:        residualStats(resid, len(res.X)),
		Iterations:       res.Stats.MajorIterations,
		Status:           res.Status.String(),
	}
	o.Logger.Info("fluxcal: fit converged",
		zap.String("id", out.ID),
		zap.String("reference", out.Reference),
		zap.Float64("airmass", airmass),
		zap.Int("samples", data.len()),
		zap.Int("iterations", out.Iterations),
		zap.Float64("reduced_chi2", out.Residuals.ReducedChi2))

	return out, nil
}

// seedPolynomial fits ln(obs/ref) + airmass·τ_start outside the telluric
// windows, weighted by (obs/σ)². Falls back to every positive sample when
// too few lie outside the windows.
func seedPolynomial(m model, d *samples, o Options, airmass float64) (linalg.Poly, error) {
	build := func(skipBands bool) (x, y, w []float64) {
		for i, l := range d.lambda {
			if d.obs[i] <= 0 || (skipBands && m.inBand(o.Start, o.MaskWidth, l)) {
				continue
			}
			x = append(x, m.x(l))
			y = append(y, math.Log(d.obs[i]/d.ref[i])+airmass*m.opticalDepth(o.Start, l))
			snr := d.obs[i] / d.sigma[i]
			w = append(w, snr*snr)
		}

		return x, y, w
	}
	x, y, w := build(true)
	if len(x) <= o.Degree {
		x, y, w = build(false)
	}

	return linalg.PolyFit(x, y, w, o.Degree)
}

// problem is the least-squares objective in optimiser coordinates:
// polynomial coefficients followed by sine-transformed telluric parameters.
type problem struct {
	m            model
	data         *samples
	airmass      float64
	nPoly        int
	lower, upper Params

	// Jacobian cache shared by Grad and Hess at the same point.
	lastX []float64
	jac   *mat.Dense
	res   []float64
}

func (p *problem) encode(c linalg.Poly, start Params) []float64 {
	x := make([]float64, p.nPoly+nTelluric)
	copy(x, c)
	lo, hi, st := p.lower.vector(), p.upper.vector(), start.vector()
	for k := 0; k < nTelluric; k++ {
		x[p.nPoly+k] = unbounded(st[k], lo[k], hi[k])
	}

	return x
}

func (p *problem) decode(x []float64) ([]float64, Params) {
	c := append([]float64(nil), x[:p.nPoly]...)
	lo, hi := p.lower.vector(), p.upper.vector()
	v := make([]float64, nTelluric)
	for k := 0; k < nTelluric; k++ {
		v[k] = bounded(x[p.nPoly+k], lo[k], hi[k])
	}

	return c, paramsFrom(v)
}

// residuals writes (obs − model)/σ into dst.
func (p *problem) residuals(dst, x []float64) {
	c, par := p.decode(x)
	poly := linalg.Poly(c)
	d := p.data
	for i, l := range d.lambda {
		model := d.ref[i] * p.m.inverseSensitivity(poly, par, p.airmass, l)
		dst[i] = (d.obs[i] - model) / d.sigma[i]
	}
}

func (p *problem) value(x []float64) float64 {
	r := make([]float64, p.data.len())
	p.residuals(r, x)

	return floats.Dot(r, r)
}

// jacobian refreshes the cached residuals and Jacobian at x.
func (p *problem) jacobian(x []float64) {
	if p.jac != nil && slices.Equal(p.lastX, x) {
		return
	}
	n := p.data.len()
	if p.jac == nil {
		p.jac = mat.NewDense(n, len(x), nil)
		p.res = make([]float64, n)
	}
	p.residuals(p.res, x)
	fd.Jacobian(p.jac, p.residuals, x, &fd.JacobianSettings{
		Formula:     fd.Central,
		OriginValue: p.res,
	})
	p.lastX = append(p.lastX[:0], x...)
}

// grad writes ∇Σr² = 2Jᵀr.
func (p *problem) grad(g, x []float64) {
	p.jacobian(x)
	gv := mat.NewVecDense(len(g), g)
	gv.MulVec(p.jac.T(), mat.NewVecDense(len(p.res), p.res))
	floats.Scale(2, g)
}

// hess writes the Gauss–Newton Hessian 2JᵀJ.
func (p *problem) hess(h *mat.SymDense, x []float64) {
	p.jacobian(x)
	h.SymOuterK(2, p.jac.T())
}

func (p *problem) optProblem() optimize.Problem {
	return optimize.Problem{
		Func: p.value,
		Grad: p.grad,
		Hess: p.hess,
	}
}

// ctxConverger stops the optimiser on context cancellation or once χ² is
// exhausted, and otherwise defers to a FunctionConverge.
type ctxConverger struct {
	ctx   context.Context
	inner *optimize.FunctionConverge
}

func (c *ctxConverger) Init(dim int) { c.inner.Init(dim) }

func (c *ctxConverger) Converged(loc *optimize.Location) optimize.Status {
	if c.ctx.Err() != nil {
		return optimize.RuntimeLimit
	}
	if loc.F <= chi2Threshold {
		return optimize.FunctionThreshold
	}

	return c.inner.Converged(loc)
}

func converged(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.FunctionThreshold, optimize.FunctionConvergence,
		optimize.GradientThreshold, optimize.StepConvergence, optimize.MethodConverge:
		return true
	}

	return false
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}

	return true
}

func residualStats(r []float64, nParams int) Stats {
	s := Stats{N: len(r), Chi2: floats.Dot(r, r)}
	if dof := len(r) - nParams; dof > 0 {
		s.ReducedChi2 = s.Chi2 / float64(dof)
	}
	if len(r) > 0 {
		s.Mean = stat.Mean(r, nil)
	}
	if len(r) > 1 {
		s.StdDev = stat.StdDev(r, nil)
	}

	return s
}

func cloneBand(b Band) Band {
	return Band{Name: b.Name, Lines: append([]Line(nil), b.Lines...)}
}

// FitStar looks the reference spectrum of star up in provider, then Fits.
func (c *Calibrator) FitStar(ctx context.Context, std *cube.Spectrum, provider ReferenceProvider, star string, airmass float64) (*Spectrum, error) {
	ref, err := provider.Reference(ctx, star)
	if err != nil {
		return nil, fluxcalErrorf("FitStar", err)
	}

	return c.Fit(ctx, std, ref, airmass)
}
