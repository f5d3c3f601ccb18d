package cube

import (
	"fmt"
	"math"

	"github.com/katalvlaran/ifucube/geometry"
)

// ADR describes atmospheric differential refraction: the wavelength
// dependent displacement of a point source across the IFU.
//
// Fields:
//   - Airmass: sec z of the exposure, ≥ 1.
//   - ParallacticAngle: degrees; direction of the displacement on the sky.
//   - Pressure: mbar. Temperature: °C. RelativeHumidity: percent.
//   - LambdaRef: wavelength (Å) at which the displacement is zero.
//   - Scale: arcsec per unit of spaxel position.
//   - Rotation: degrees from sky axes to IFU axes.
type ADR struct {
	Airmass          float64
	ParallacticAngle float64
	Pressure         float64
	Temperature      float64
	RelativeHumidity float64
	LambdaRef        float64
	Scale            float64
	Rotation         float64
}

// DefaultADR returns the model for a site at 630 mbar, 10 °C and 20 %
// humidity, referenced at 6000 Å, with 0.75″ spaxels and IFU axes aligned
// with the sky.
func DefaultADR(airmass, parallacticAngle float64) ADR {
	return ADR{
		Airmass:          airmass,
		ParallacticAngle: parallacticAngle,
		Pressure:         630,
		Temperature:      10,
		RelativeHumidity: 20,
		LambdaRef:        6000,
		Scale:            0.75,
	}
}

func (a ADR) validate() error {
	switch {
	case !(a.Airmass >= 1) || math.IsInf(a.Airmass, 0):
		return fmt.Errorf("airmass %g: %w", a.Airmass, ErrBadArgument)
	case !(a.Scale > 0), !(a.LambdaRef > 0):
		return fmt.Errorf("scale %g, reference %g: %w", a.Scale, a.LambdaRef, ErrBadArgument)
	case !(a.Pressure >= 0), !(a.RelativeHumidity >= 0 && a.RelativeHumidity <= 100):
		return fmt.Errorf("pressure %g, humidity %g: %w", a.Pressure, a.RelativeHumidity, ErrBadArgument)
	}

	return nil
}

// Shift returns the displacement of a source at lbda relative to LambdaRef,
// in spaxel-position units. Bluer light is displaced towards the parallactic
// angle, redder light away from it.
func (a ADR) Shift(lbda float64) geometry.Point {
	tanz := math.Sqrt(math.Max(a.Airmass*a.Airmass-1, 0))
	dr := arcsecPerRadian * (a.refractivity(lbda) - a.refractivity(a.LambdaRef)) * tanz / a.Scale
	pa := (a.ParallacticAngle + a.Rotation) * math.Pi / 180

	return geometry.Point{X: dr * math.Sin(pa), Y: dr * math.Cos(pa)}
}

const (
	arcsecPerRadian = 180 * 3600 / math.Pi
	mmHgPerMbar     = 0.750062
)

// refractivity returns n−1 of moist air at lbda (Å), Filippenko (1982):
// the dry-air index at 15 °C and 760 mmHg, scaled to the site pressure and
// temperature, minus the water-vapour term.
func (a ADR) refractivity(lbda float64) float64 {
	s2 := 1e8 / (lbda * lbda) // σ², µm⁻²
	dry := (64.328 + 29498.1/(146-s2) + 255.4/(41-s2)) * 1e-6

	p := a.Pressure * mmHgPerMbar
	t := a.Temperature
	n := dry * p * (1 + (1.049-0.0157*t)*1e-6*p) / (720.883 * (1 + 0.003661*t))

	// Partial pressure of water vapour from the Magnus saturation formula.
	es := 6.1094 * math.Exp(17.625*t/(t+243.04))
	f := a.RelativeHumidity / 100 * es * mmHgPerMbar

	return n - f*(0.0624-0.000680*s2)/(1+0.003661*t)*1e-6
}
