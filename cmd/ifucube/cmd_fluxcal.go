package main

import (
	"errors"
	"fmt"
	"math"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/katalvlaran/ifucube/cube"
	"github.com/katalvlaran/ifucube/fluxcal"
	"github.com/katalvlaran/ifucube/geometry"
)

var (
	fitStar    string
	fitOut     string
	fitAirmass float64
	fitCenter  []float64
	fitRadius  float64
	fitAnnulus []float64
	fitADR     bool
	fitParAng  float64

	curveAirmass float64
)

var fluxcalCmd = &cobra.Command{
	Use:   "fluxcal",
	Short: "Fit and inspect flux calibrations",
}

var fluxcalFitCmd = &cobra.Command{
	Use:   "fit STD.fits",
	Short: "Fit a flux calibration from a standard-star frame",
	Long: `Reduce STD.fits to a cube, sum the spaxels around the star and fit the
instrument inverse sensitivity and telluric absorption against the star's
reference spectrum (fluxcal.references directory, <name>.dat).

The cube must share one wavelength grid: configure extraction.grid.`,
	Args: cobra.ExactArgs(1),
	RunE: runFluxcalFit,
}

var fluxcalCurveCmd = &cobra.Command{
	Use:   "curve CAL.yaml",
	Short: "Print the inverse-sensitivity curve of an artifact",
	Args:  cobra.ExactArgs(1),
	RunE:  runFluxcalCurve,
}

func init() {
	fluxcalFitCmd.Flags().StringVar(&fitStar, "star", "", "Standard star name (default: frame OBJECT)")
	fluxcalFitCmd.Flags().StringVarP(&fitOut, "output", "o", "fluxcal.yaml", "Output artifact")
	fluxcalFitCmd.Flags().Float64Var(&fitAirmass, "airmass", 0, "Exposure airmass (default: frame AIRMASS, then detector.default_airmass)")
	fluxcalFitCmd.Flags().Float64SliceVar(&fitCenter, "center", nil, "Aperture centre x,y (default: brightest spaxel)")
	fluxcalFitCmd.Flags().Float64Var(&fitRadius, "radius", 3, "Aperture radius, spaxel units")
	fluxcalFitCmd.Flags().Float64SliceVar(&fitAnnulus, "annulus", nil, "Background annulus inner,outer as multiples of --radius")
	fluxcalFitCmd.Flags().BoolVar(&fitADR, "adr", false, "Move the aperture with atmospheric differential refraction")
	fluxcalFitCmd.Flags().Float64Var(&fitParAng, "parangle", 0, "Parallactic angle for --adr, degrees")

	fluxcalCurveCmd.Flags().Float64Var(&curveAirmass, "airmass", 0, "Airmass (default: the artifact's)")

	fluxcalCmd.AddCommand(fluxcalFitCmd)
	fluxcalCmd.AddCommand(fluxcalCurveCmd)
}

func runFluxcalFit(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	frame, res, err := reduceFrame(ctx, args[0])
	if err != nil {
		return err
	}
	star := fitStar
	if star == "" {
		star = frame.Object
	}
	airmass := fitAirmass
	if airmass == 0 {
		airmass = res.Airmass
	}
	if star == "" || !(airmass > 0) {
		return errors.New("standard star name and airmass are required (flags or OBJECT/AIRMASS cards)")
	}

	center, err := apertureCenter(res.Cube)
	if err != nil {
		return err
	}
	var opts []cube.ApertureOption
	switch len(fitAnnulus) {
	case 0:
	case 2:
		opts = append(opts, cube.WithAnnulus(fitAnnulus[0], fitAnnulus[1]))
	default:
		return fmt.Errorf("--annulus wants two values, got %v", fitAnnulus)
	}
	if fitADR {
		opts = append(opts, cube.WithADR(cube.DefaultADR(airmass, fitParAng)))
	}
	std, err := res.Cube.ApertureSpectrum(center, fitRadius, opts...)
	if err != nil {
		return err
	}

	calib, err := fluxcal.NewCalibrator(cfg.FluxCalOptions(logger)...)
	if err != nil {
		return err
	}
	provider := fluxcal.FileProvider{Dir: cfg.FluxCal.References}
	cal, err := calib.FitStar(ctx, std, provider, star, airmass)
	if err != nil {
		return err
	}
	if err := cal.Save(fitOut); err != nil {
		return err
	}
	logger.Info("flux calibration written",
		zap.String("path", fitOut),
		zap.String("id", cal.ID),
		zap.String("star", star),
		zap.Float64("reduced_chi2", cal.Residuals.ReducedChi2))

	return nil
}

// apertureCenter returns --center or the position of the spaxel with the
// largest total flux.
func apertureCenter(c *cube.Cube) (geometry.Point, error) {
	if len(fitCenter) == 2 {
		return geometry.Point{X: fitCenter[0], Y: fitCenter[1]}, nil
	}
	best, bestFlux := -1, math.Inf(-1)
	for k, s := range c.Spectra {
		var t float64
		for j, v := range s.Flux {
			if !s.Masked[j] {
				t += v
			}
		}
		if t > bestFlux {
			best, bestFlux = k, t
		}
	}
	if best < 0 {
		return geometry.Point{}, cube.ErrEmptySelection
	}

	return c.Positions[best], nil
}

func runFluxcalCurve(cmd *cobra.Command, args []string) error {
	cal, err := fluxcal.Load(args[0])
	if err != nil {
		return err
	}
	airmass := curveAirmass
	if airmass == 0 {
		airmass = cal.Airmass
	}
	curve := cal.InversedSensitivity(airmass)
	if curve.Extrapolated {
		logger.Warn("airmass outside the calibrated range",
			zap.Float64("airmass", airmass),
			zap.Float64("fit_airmass", cal.Airmass),
			zap.Float64("tolerance", cal.AirmassTolerance))
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# fluxcal %s reference %s airmass %g\n", cal.ID, cal.Reference, airmass)
	for k, l := range curve.Lambda {
		fmt.Fprintf(out, "%.3f %.8g\n", l, curve.Values[k])
	}

	return nil
}
