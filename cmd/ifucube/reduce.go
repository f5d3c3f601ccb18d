package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/katalvlaran/ifucube/ccd"
	"github.com/katalvlaran/ifucube/ccdio"
	"github.com/katalvlaran/ifucube/geometry"
	"github.com/katalvlaran/ifucube/pipeline"
	"github.com/katalvlaran/ifucube/wavesolution"
)

var errNoGeometry = errors.New("no trace geometry configured (--geometry or detector.geometry)")

// loadFrame reads a FITS frame honouring the non-finite pixel policy.
func loadFrame(path string) (*ccd.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var opts []ccd.Option
	if cfg.Detector.AllowNonFinite {
		opts = append(opts, ccd.WithNonFinite())
	}
	frame, err := ccdio.ReadFrame(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return frame, nil
}

// loadLayout reads the configured geometry and wavelength solutions. Traces
// whose solution failed to load are logged; they surface again as missing
// solutions in the cube report.
func loadLayout() (*geometry.Geometry, *wavesolution.Set, error) {
	if cfg.Detector.Geometry == "" {
		return nil, nil, errNoGeometry
	}
	geom, err := geometry.LoadFile(cfg.Detector.Geometry)
	if err != nil {
		return nil, nil, err
	}
	var sols *wavesolution.Set
	if cfg.Detector.WaveSolution == "" {
		w, _ := geom.Shape()
		sols = wavesolution.NewSet("identity")
		for _, idx := range geom.Indexes() {
			sols.Put(idx, wavesolution.Identity{Lo: 0, Hi: float64(w - 1)})
		}
		logger.Warn("no wavelength solution configured, using pixel identity")

		return geom, sols, nil
	}
	sols, bad, err := wavesolution.LoadSetFile(cfg.Detector.WaveSolution)
	if err != nil {
		return nil, nil, err
	}
	for idx, e := range bad {
		logger.Warn("wavelength solution rejected", zap.Int("trace", idx), zap.Error(e))
	}

	return geom, sols, nil
}

// reduceFrame builds the cube of the frame at path.
func reduceFrame(ctx context.Context, path string) (*ccd.Frame, *pipeline.Result, error) {
	frame, err := loadFrame(path)
	if err != nil {
		return nil, nil, err
	}
	geom, sols, err := loadLayout()
	if err != nil {
		return nil, nil, err
	}
	opts, err := cfg.PipelineOptions(logger)
	if err != nil {
		return nil, nil, err
	}
	res, err := pipeline.BuildCube(ctx, frame, geom, sols, opts)
	if err != nil {
		return nil, nil, err
	}

	return frame, res, nil
}
