// SPDX-License-Identifier: MIT

package fluxcal

import (
	"fmt"
	"math"
	"time"

	"github.com/katalvlaran/ifucube/linalg"
)

// Stats summarises the normalised residuals (obs − model)/σ of a fit.
type Stats struct {
	N           int     `yaml:"n"`
	Chi2        float64 `yaml:"chi2"`
	ReducedChi2 float64 `yaml:"reduced_chi2"`
	Mean        float64 `yaml:"mean"`
	StdDev      float64 `yaml:"stddev"`
}

// Spectrum is a fitted flux-calibration artifact: the log inverse-sensitivity
// polynomial and the telluric parameters derived from one standard-star
// exposure, plus the metadata needed to apply and audit it.
//
// A Spectrum is immutable once returned by Fit or ReadFrom.
type Spectrum struct {
	ID        string    `yaml:"id"`
	Created   time.Time `yaml:"created"`
	Reference string    `yaml:"reference"`

	// Airmass of the calibration exposure; AirmassTolerance is the half width
	// of the range in which InversedSensitivity is not flagged.
	Airmass          float64 `yaml:"airmass"`
	AirmassTolerance float64 `yaml:"airmass_tolerance"`

	// Polynomial abscissa x = (λ − LambdaMid)/LambdaHalf.
	LambdaMid  float64   `yaml:"lambda_mid"`
	LambdaHalf float64   `yaml:"lambda_half"`
	Coeffs     []float64 `yaml:"coeffs"`

	Telluric       Params  `yaml:"telluric"`
	ResolvingPower float64 `yaml:"resolving_power"`
	O2             Band    `yaml:"o2"`
	H2O            Band    `yaml:"h2o"`

	// Lambda holds the wavelengths of the samples used by the fit; it is the
	// default grid of InversedSensitivity.
	Lambda []float64 `yaml:"lambda"`

	Residuals  Stats  `yaml:"residuals"`
	Iterations int    `yaml:"iterations"`
	Status     string `yaml:"status"`
}

// Curve is an inverse-sensitivity curve. Extrapolated is set when the
// requested airmass lies outside the calibration's airmass range.
type Curve struct {
	Lambda       []float64
	Values       []float64
	Extrapolated bool
}

func (s *Spectrum) model() model {
	return model{mid: s.LambdaMid, half: s.LambdaHalf, r: s.ResolvingPower, o2: s.O2, h2o: s.H2O}
}

// extrapolated reports whether airmass is outside the calibrated range.
func (s *Spectrum) extrapolated(airmass float64) bool {
	return math.Abs(airmass-s.Airmass) > s.AirmassTolerance
}

// InversedSensitivity evaluates S(λ)·T(λ, airmass) on the fit wavelengths.
// The telluric optical depth scales with airmass; the polynomial does not.
// Airmasses outside [Airmass−AirmassTolerance, Airmass+AirmassTolerance] are
// computed but flagged Extrapolated.
func (s *Spectrum) InversedSensitivity(airmass float64) Curve {
	return s.InversedSensitivityAt(s.Lambda, airmass)
}

// InversedSensitivityAt is InversedSensitivity on an arbitrary grid.
func (s *Spectrum) InversedSensitivityAt(lambda []float64, airmass float64) Curve {
	m := s.model()
	c := linalg.Poly(s.Coeffs)
	out := Curve{
		Lambda:       append([]float64(nil), lambda...),
		Values:       make([]float64, len(lambda)),
		Extrapolated: s.extrapolated(airmass),
	}
	for i, l := range lambda {
		out.Values[i] = m.inverseSensitivity(c, s.Telluric, airmass, l)
	}

	return out
}

// Calibrate converts an observed spectrum at the given airmass into physical
// units: flux/curve and variance/curve². The returned Curve carries the
// extrapolation flag.
//
// Errors: ErrBadSpectrum on length mismatch.
func (s *Spectrum) Calibrate(lambda, flux, variance []float64, airmass float64) ([]float64, []float64, Curve, error) {
	if len(flux) != len(lambda) || (variance != nil && len(variance) != len(lambda)) {
		return nil, nil, Curve{}, fluxcalErrorf("Calibrate",
			fmt.Errorf("%d λ, %d flux, %d variance: %w", len(lambda), len(flux), len(variance), ErrBadSpectrum))
	}
	curve := s.InversedSensitivityAt(lambda, airmass)
	f := make([]float64, len(flux))
	var v []float64
	if variance != nil {
		v = make([]float64, len(variance))
	}
	for i, k := range curve.Values {
		f[i] = flux[i] / k
		if v != nil {
			v[i] = variance[i] / (k * k)
		}
	}

	return f, v, curve, nil
}
