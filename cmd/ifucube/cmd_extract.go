package main

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/katalvlaran/ifucube/ccdio"
	"github.com/katalvlaran/ifucube/cube"
	"github.com/katalvlaran/ifucube/fluxcal"
	"github.com/katalvlaran/ifucube/pipeline"
)

var (
	extractOut        string
	extractFluxCal    string
	extractExtinction bool
	extractSky        int
	extractSkyRange   []float64
	extractSkyMean    bool
	extractFlat       string
	extractFlatRange  []float64
)

var extractCmd = &cobra.Command{
	Use:   "extract FRAME.fits",
	Short: "Extract a frame into a wavelength cube",
	Long: `Extract every trace of FRAME.fits and write the assembled cube.

Optional post-processing, in order: flat fielding with weights derived from
a dome-flat frame, atmospheric extinction correction (Palomar curve, frame
airmass or detector.default_airmass), sky subtraction from the faintest
spaxels, flux calibration with a fitted artifact.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractOut, "output", "o", "", "Output cube FITS (required)")
	extractCmd.Flags().StringVar(&extractFluxCal, "fluxcal", "", "Flux calibration artifact (YAML)")
	extractCmd.Flags().BoolVar(&extractExtinction, "extinction", false, "Correct atmospheric extinction")
	extractCmd.Flags().IntVar(&extractSky, "sky", 0, "Subtract the mean of the N faintest spaxels (0 disables)")
	extractCmd.Flags().Float64SliceVar(&extractSkyRange, "sky-range", []float64{6000, 7000}, "Wavelength window ranking sky spaxels")
	extractCmd.Flags().BoolVar(&extractSkyMean, "sky-mean", false, "Combine sky spaxels with a plain mean instead of inverse variance")
	extractCmd.Flags().StringVar(&extractFlat, "flat", "", "Dome-flat frame (FITS) for flat fielding")
	extractCmd.Flags().Float64SliceVar(&extractFlatRange, "flat-range", nil, "Wavelength window measuring the flat (default: all)")
	_ = extractCmd.MarkFlagRequired("output")
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	_, res, err := reduceFrame(ctx, args[0])
	if err != nil {
		return err
	}
	c := res.Cube

	if extractFlat != "" {
		weights, err := flatWeights(ctx, extractFlat)
		if err != nil {
			return err
		}
		if err := c.FlatField(weights); err != nil {
			return err
		}
	}
	if extractExtinction {
		if err := c.CorrectExtinction(cube.PalomarExtinction(), res.Airmass); err != nil {
			return err
		}
	}
	if extractSky > 0 {
		if len(extractSkyRange) != 2 {
			return fmt.Errorf("--sky-range wants two values, got %v", extractSkyRange)
		}
		var opts []cube.SkyOption
		if extractSkyMean {
			opts = append(opts, cube.PlainMean())
		}
		if _, err := c.RemoveSky(extractSky, extractSkyRange[0], extractSkyRange[1], opts...); err != nil {
			return err
		}
	}
	if extractFluxCal != "" {
		cal, err := fluxcal.Load(extractFluxCal)
		if err != nil {
			return err
		}
		if _, err := pipeline.Calibrate(c, cal, res.Airmass, logger); err != nil {
			return err
		}
	}

	for _, idx := range c.Report.Failed() {
		logger.Debug("trace left out", zap.Int("trace", idx), zap.Error(c.Report.Get(idx)))
	}

	out, err := os.Create(extractOut)
	if err != nil {
		return err
	}
	if err := ccdio.WriteCube(out, c); err != nil {
		out.Close()

		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	logger.Info("cube written",
		zap.String("path", extractOut),
		zap.Int("spaxels", c.Len()),
		zap.Int("failed", c.Report.Len()))

	return nil
}

// flatWeights reduces the dome frame at path like a science frame and
// derives per-spaxel transmissions from it.
func flatWeights(ctx context.Context, path string) (map[int]float64, error) {
	lo, hi := math.Inf(-1), math.Inf(1)
	if len(extractFlatRange) > 0 {
		if len(extractFlatRange) != 2 {
			return nil, fmt.Errorf("--flat-range wants two values, got %v", extractFlatRange)
		}
		lo, hi = extractFlatRange[0], extractFlatRange[1]
	}
	_, dome, err := reduceFrame(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("flat: %w", err)
	}
	weights, err := cube.DeriveFlat(dome.Cube, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("flat: %w", err)
	}
	logger.Info("flat field derived", zap.String("path", path), zap.Int("spaxels", len(weights)))

	return weights, nil
}
