// Package config loads the ifucube run configuration: built-in defaults,
// then an optional YAML file, then IFUCUBE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/katalvlaran/ifucube/cube"
	"github.com/katalvlaran/ifucube/flexure"
	"github.com/katalvlaran/ifucube/fluxcal"
	"github.com/katalvlaran/ifucube/pipeline"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "IFUCUBE_"

// ErrInvalid indicates a configuration that fails validation.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the full run configuration.
type Config struct {
	Detector   DetectorConfig   `yaml:"detector"`
	Flexure    FlexureConfig    `yaml:"flexure"`
	Extraction ExtractionConfig `yaml:"extraction"`
	FluxCal    FluxCalConfig    `yaml:"fluxcal"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DetectorConfig describes the frame and its auxiliary files.
type DetectorConfig struct {
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	Geometry     string `yaml:"geometry"`      // trace layout YAML
	WaveSolution string `yaml:"wave_solution"` // per-trace solutions YAML
	// AllowNonFinite accepts NaN/Inf pixels flagged upstream.
	AllowNonFinite bool `yaml:"allow_non_finite"`
	// DefaultAirmass stands in for a frame without an AIRMASS card; 0 leaves
	// the airmass unknown.
	DefaultAirmass float64 `yaml:"default_airmass"`
}

// FlexureConfig maps onto flexure.Options.
type FlexureConfig struct {
	Enabled      bool    `yaml:"enabled"`
	SearchRange  float64 `yaml:"search_range"`
	Step         float64 `yaml:"step"`
	SubsetSize   int     `yaml:"subset_size"`
	Seed         int64   `yaml:"seed"`
	Refine       bool    `yaml:"refine"`
	TieTolerance float64 `yaml:"tie_tolerance"`
}

// ExtractionConfig maps onto pipeline.Options.
type ExtractionConfig struct {
	Workers int `yaml:"workers"`
	// Grid, when Step > 0, resamples every trace onto Start + k·Step.
	Grid GridConfig `yaml:"grid"`
}

// GridConfig is a linear wavelength grid.
type GridConfig struct {
	Start float64 `yaml:"start"`
	Step  float64 `yaml:"step"`
	N     int     `yaml:"n"`
}

// FluxCalConfig maps onto fluxcal.Options.
type FluxCalConfig struct {
	Degree           int            `yaml:"degree"`
	ResolvingPower   float64        `yaml:"resolving_power"`
	MaxIterations    int            `yaml:"max_iterations"`
	MinOverlap       int            `yaml:"min_overlap"`
	AirmassTolerance float64        `yaml:"airmass_tolerance"`
	O2               fluxcal.Band   `yaml:"o2"`
	H2O              fluxcal.Band   `yaml:"h2o"`
	Start            fluxcal.Params `yaml:"start"`
	Lower            fluxcal.Params `yaml:"lower"`
	Upper            fluxcal.Params `yaml:"upper"`
	// References is the directory of ASCII standard-star spectra.
	References string `yaml:"references"`
}

// LoggingConfig selects the zap level and encoding.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Default returns the built-in configuration. Package defaults come from
// the packages' own DefaultOptions.
func Default() *Config {
	fo := flexure.DefaultOptions()
	fc := fluxcal.DefaultOptions()
	po := pipeline.DefaultOptions()

	return &Config{
		Detector: DetectorConfig{Width: 2048, Height: 2048, DefaultAirmass: 1.1},
		Flexure: FlexureConfig{
			Enabled:      true,
			SearchRange:  fo.SearchRange,
			Step:         fo.Step,
			SubsetSize:   fo.SubsetSize,
			Seed:         fo.Seed,
			Refine:       fo.Refine,
			TieTolerance: fo.TieTolerance,
		},
		Extraction: ExtractionConfig{Workers: po.Workers},
		FluxCal: FluxCalConfig{
			Degree:           fc.Degree,
			ResolvingPower:   fc.ResolvingPower,
			MaxIterations:    fc.MaxIterations,
			MinOverlap:       fc.MinOverlap,
			AirmassTolerance: fc.AirmassTolerance,
			O2:               fc.O2,
			H2O:              fc.H2O,
			Start:            fc.Start,
			Lower:            fc.Lower,
			Upper:            fc.Upper,
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load returns Default overlaid with the YAML file at path (skipped when
// path is empty) and then with environment overrides. Unknown YAML keys are
// rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnvOverrides(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes cfg as YAML to path, creating the directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// applyEnvOverrides reads IFUCUBE_<SECTION>_<KEY> variables through lookup.
func (c *Config) applyEnvOverrides(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, set func(string) error) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			if err := set(v); err != nil {
				errs = append(errs, fmt.Errorf("%s%s=%q: %w", EnvPrefix, key, v, ErrInvalid))
			}
		}
	}
	intVar := func(dst *int) func(string) error {
		return func(s string) error {
			v, err := strconv.Atoi(s)
			*dst = v

			return err
		}
	}
	int64Var := func(dst *int64) func(string) error {
		return func(s string) error {
			v, err := strconv.ParseInt(s, 10, 64)
			*dst = v

			return err
		}
	}
	floatVar := func(dst *float64) func(string) error {
		return func(s string) error {
			v, err := strconv.ParseFloat(s, 64)
			*dst = v

			return err
		}
	}
	boolVar := func(dst *bool) func(string) error {
		return func(s string) error {
			v, err := strconv.ParseBool(s)
			*dst = v

			return err
		}
	}

	str("DETECTOR_GEOMETRY", &c.Detector.Geometry)
	str("DETECTOR_WAVE_SOLUTION", &c.Detector.WaveSolution)
	num("DETECTOR_WIDTH", intVar(&c.Detector.Width))
	num("DETECTOR_HEIGHT", intVar(&c.Detector.Height))
	num("DETECTOR_ALLOW_NON_FINITE", boolVar(&c.Detector.AllowNonFinite))
	num("DETECTOR_DEFAULT_AIRMASS", floatVar(&c.Detector.DefaultAirmass))

	num("FLEXURE_ENABLED", boolVar(&c.Flexure.Enabled))
	num("FLEXURE_SEARCH_RANGE", floatVar(&c.Flexure.SearchRange))
	num("FLEXURE_STEP", floatVar(&c.Flexure.Step))
	num("FLEXURE_SUBSET_SIZE", intVar(&c.Flexure.SubsetSize))
	num("FLEXURE_SEED", int64Var(&c.Flexure.Seed))
	num("FLEXURE_REFINE", boolVar(&c.Flexure.Refine))

	num("EXTRACTION_WORKERS", intVar(&c.Extraction.Workers))

	num("FLUXCAL_DEGREE", intVar(&c.FluxCal.Degree))
	num("FLUXCAL_RESOLVING_POWER", floatVar(&c.FluxCal.ResolvingPower))
	num("FLUXCAL_MAX_ITERATIONS", intVar(&c.FluxCal.MaxIterations))
	num("FLUXCAL_AIRMASS_TOLERANCE", floatVar(&c.FluxCal.AirmassTolerance))
	str("FLUXCAL_REFERENCES", &c.FluxCal.References)

	str("LOGGING_LEVEL", &c.Logging.Level)
	str("LOGGING_FORMAT", &c.Logging.Format)

	return errors.Join(errs...)
}

// Validate checks the settings that no package validates on its own.
//
// Errors: ErrInvalid.
func (c *Config) Validate() error {
	switch {
	case c.Detector.Width <= 0 || c.Detector.Height <= 0:
		return fmt.Errorf("detector %dx%d: %w", c.Detector.Width, c.Detector.Height, ErrInvalid)
	case c.Detector.DefaultAirmass != 0 && !(c.Detector.DefaultAirmass >= 1):
		return fmt.Errorf("default airmass %g: %w", c.Detector.DefaultAirmass, ErrInvalid)
	case c.Extraction.Grid.Step < 0 || (c.Extraction.Grid.Step > 0 && c.Extraction.Grid.N <= 0):
		return fmt.Errorf("extraction grid %+v: %w", c.Extraction.Grid, ErrInvalid)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging level %q: %w", c.Logging.Level, ErrInvalid)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("logging format %q: %w", c.Logging.Format, ErrInvalid)
	}

	return nil
}

// FlexureOptions returns the flexure search options, or nil when disabled.
func (c *Config) FlexureOptions(log *zap.Logger) *flexure.Options {
	if !c.Flexure.Enabled {
		return nil
	}
	o := flexure.DefaultOptions()
	o.SearchRange = c.Flexure.SearchRange
	o.Step = c.Flexure.Step
	o.SubsetSize = c.Flexure.SubsetSize
	o.Seed = c.Flexure.Seed
	o.Refine = c.Flexure.Refine
	o.TieTolerance = c.Flexure.TieTolerance
	o.Workers = c.Extraction.Workers
	o.Logger = log

	return &o
}

// PipelineOptions returns the cube-building options with flexure attached
// when enabled.
func (c *Config) PipelineOptions(log *zap.Logger) (pipeline.Options, error) {
	o := pipeline.DefaultOptions()
	o.Workers = c.Extraction.Workers
	o.Flexure = c.FlexureOptions(log)
	o.DefaultAirmass = c.Detector.DefaultAirmass
	o.Logger = log
	if g := c.Extraction.Grid; g.Step > 0 {
		grid, err := cube.LinearGrid(g.Start, g.Step, g.N)
		if err != nil {
			return o, fmt.Errorf("config: extraction grid: %w", err)
		}
		o.Grid = grid
	}

	return o, nil
}

// FluxCalOptions returns the calibrator options.
func (c *Config) FluxCalOptions(log *zap.Logger) []fluxcal.Option {
	f := c.FluxCal

	return []fluxcal.Option{
		fluxcal.WithDegree(f.Degree),
		fluxcal.WithResolvingPower(f.ResolvingPower),
		fluxcal.WithMaxIterations(f.MaxIterations),
		fluxcal.WithMinOverlap(f.MinOverlap),
		fluxcal.WithAirmassTolerance(f.AirmassTolerance),
		fluxcal.WithBands(f.O2, f.H2O),
		fluxcal.WithStart(f.Start),
		fluxcal.WithBounds(f.Lower, f.Upper),
		fluxcal.WithLogger(log),
	}
}

// Logger builds the zap logger described by the logging section. verbose
// forces the debug level.
func (c *Config) Logger(verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if strings.EqualFold(c.Logging.Format, "console") {
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logging level %q: %w", c.Logging.Level, ErrInvalid)
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}
