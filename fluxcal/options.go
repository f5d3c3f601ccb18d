package fluxcal

import (
	"go.uber.org/zap"
)

// Line is one Gaussian absorption component of a telluric band.
type Line struct {
	Center float64 `yaml:"center"` // Å
	Depth  float64 `yaml:"depth"`  // optical depth at unit strength and airmass
}

// Band is a telluric absorption band made of Gaussian lines that share a
// strength and an intrinsic width.
type Band struct {
	Name  string `yaml:"name"`
	Lines []Line `yaml:"lines"`
}

// Params are the free telluric parameters.
type Params struct {
	O2Strength  float64 `yaml:"o2_strength"`
	O2Width     float64 `yaml:"o2_width"` // Å, intrinsic Gaussian σ
	H2OStrength float64 `yaml:"h2o_strength"`
	H2OWidth    float64 `yaml:"h2o_width"` // Å
	Stretch     float64 `yaml:"stretch"`   // multiplies the nominal LSF σ = λ/R
}

// vector returns p in fixed order: O2 strength, O2 width, H2O strength,
// H2O width, stretch.
func (p Params) vector() [nTelluric]float64 {
	return [nTelluric]float64{p.O2Strength, p.O2Width, p.H2OStrength, p.H2OWidth, p.Stretch}
}

func paramsFrom(v []float64) Params {
	return Params{O2Strength: v[0], O2Width: v[1], H2OStrength: v[2], H2OWidth: v[3], Stretch: v[4]}
}

const nTelluric = 5

// Options configures a Calibrator.
//
// None of the numeric defaults below is a validated physical value for any
// particular instrument; they are starting points meant to be overridden
// from configuration.
type Options struct {
	// Degree of the log inverse-sensitivity polynomial.
	Degree int
	// ResolvingPower R = λ/Δλ of the instrument (nominal LSF σ = λ/R).
	ResolvingPower float64
	// O2 and H2O absorption bands.
	O2, H2O Band
	// Start is the initial telluric guess; Lower/Upper bound every parameter.
	Start, Lower, Upper Params
	// MaxIterations bounds the optimiser's major iterations.
	MaxIterations int
	// MinOverlap is the minimum number of usable samples shared with the
	// reference spectrum.
	MinOverlap int
	// AirmassTolerance is the half width of the airmass interval around the
	// fit airmass inside which InversedSensitivity is not flagged.
	AirmassTolerance float64
	// MaskWidth is the half width, in units of the starting line σ, of the
	// windows excluded when seeding the polynomial.
	MaskWidth float64
	// Logger receives the fit summary; nil disables logging.
	Logger *zap.Logger
}

// Option mutates Options.
type Option func(*Options)

// DefaultOptions returns the default configuration.
//
// Defaults:
//   - Degree: 6, ResolvingPower: 100.
//   - O2: B band (6867–6884 Å) and A band (7594–7630 Å).
//   - H2O: 7160–7330 Å, 8130–8350 Å and 8950–9250 Å complexes.
//   - Start: strengths 1, widths 10 Å, stretch 1; bounds strengths [0, 5],
//     widths [0.1, 100] Å, stretch [0.2, 5].
//   - MaxIterations: 200, MinOverlap: 50, AirmassTolerance: 0.5, MaskWidth: 3.
func DefaultOptions() Options {
	return Options{
		Degree:         6,
		ResolvingPower: 100,
		O2: Band{Name: "O2", Lines: []Line{
			{Center: 6875, Depth: 0.25},
			{Center: 7610, Depth: 0.6},
		}},
		H2O: Band{Name: "H2O", Lines: []Line{
			{Center: 7245, Depth: 0.08},
			{Center: 8230, Depth: 0.1},
			{Center: 9100, Depth: 0.2},
		}},
		Start:            Params{O2Strength: 1, O2Width: 10, H2OStrength: 1, H2OWidth: 10, Stretch: 1},
		Lower:            Params{O2Strength: 0, O2Width: 0.1, H2OStrength: 0, H2OWidth: 0.1, Stretch: 0.2},
		Upper:            Params{O2Strength: 5, O2Width: 100, H2OStrength: 5, H2OWidth: 100, Stretch: 5},
		MaxIterations:    200,
		MinOverlap:       50,
		AirmassTolerance: 0.5,
		MaskWidth:        3,
	}
}

// WithDegree sets the polynomial degree.
func WithDegree(d int) Option { return func(o *Options) { o.Degree = d } }

// WithResolvingPower sets R.
func WithResolvingPower(r float64) Option { return func(o *Options) { o.ResolvingPower = r } }

// WithBands replaces the O2 and H2O line lists.
func WithBands(o2, h2o Band) Option {
	return func(o *Options) { o.O2, o.H2O = o2, h2o }
}

// WithStart sets the initial telluric parameters.
func WithStart(p Params) Option { return func(o *Options) { o.Start = p } }

// WithBounds sets the telluric parameter bounds.
func WithBounds(lower, upper Params) Option {
	return func(o *Options) { o.Lower, o.Upper = lower, upper }
}

// WithMaxIterations bounds the optimiser.
func WithMaxIterations(n int) Option { return func(o *Options) { o.MaxIterations = n } }

// WithMinOverlap sets the minimum shared sample count.
func WithMinOverlap(n int) Option { return func(o *Options) { o.MinOverlap = n } }

// WithAirmassTolerance sets the non-extrapolated airmass half width.
func WithAirmassTolerance(t float64) Option { return func(o *Options) { o.AirmassTolerance = t } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(o *Options) { o.Logger = l } }

func gatherOptions(opts ...Option) Options {
	o := DefaultOptions()
	for _, set := range opts {
		set(&o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	return o
}
