// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/katalvlaran/ifucube/ccd"
	"github.com/katalvlaran/ifucube/cube"
	"github.com/katalvlaran/ifucube/extract"
	"github.com/katalvlaran/ifucube/flexure"
	"github.com/katalvlaran/ifucube/geometry"
	"github.com/katalvlaran/ifucube/tracemask"
	"github.com/katalvlaran/ifucube/wavesolution"
)

var (
	// ErrNilInput indicates a nil frame, geometry or solution set.
	ErrNilInput = errors.New("pipeline: nil input")

	// ErrShapeMismatch indicates a frame whose shape differs from the
	// detector declared by the geometry.
	ErrShapeMismatch = errors.New("pipeline: frame and geometry shapes differ")

	// ErrBadAirmass indicates a negative or non-finite default airmass.
	ErrBadAirmass = errors.New("pipeline: invalid default airmass")
)

// Options configures BuildCube.
//
// Fields:
//   - Workers: parallel per-trace extractions; ≤ 0 means GOMAXPROCS.
//   - Flexure: search options; nil skips flexure and uses dj = 0.
//   - Grid: target wavelength grid; nil keeps each trace's native grid.
//   - DefaultAirmass: airmass assumed when the frame carries none; 0 leaves
//     it unknown.
//   - Logger: structured logger; nil disables logging.
type Options struct {
	Workers        int
	Flexure        *flexure.Options
	Grid           []float64
	DefaultAirmass float64
	Logger         *zap.Logger
}

// DefaultOptions returns GOMAXPROCS workers, no flexure search and native
// wavelength grids.
func DefaultOptions() Options {
	return Options{Workers: runtime.GOMAXPROCS(0)}
}

// Result is the outcome of BuildCube.
type Result struct {
	Cube *cube.Cube
	// Offset is the cross-dispersion shift applied to every footprint.
	Offset float64
	// Airmass is the frame's airmass, or Options.DefaultAirmass when the
	// frame has none; 0 when both are unknown.
	Airmass float64
	// Flexure is the search result, or nil when the search was skipped or
	// produced none.
	Flexure *flexure.Result
	// FlexureErr is flexure.ErrNoConvergence or flexure.ErrNoUsableTraces
	// when the search ran but its offset was not applied.
	FlexureErr error
}

// traceOutcome is one trace's spectrum or failure.
type traceOutcome struct {
	spec *cube.Spectrum
	err  error
}

// BuildCube turns a frame into a cube: optional flexure search, then for
// every trace mask → extract → wavelength mapping, then assembly.
//
// Per-trace failures (invalid footprint, empty trace, missing or
// non-monotonic solution) land in the cube's Report and never abort the
// build. A flexure search that hits its boundary or finds no usable trace is
// logged, recorded in Result.FlexureErr, and the build continues with dj = 0.
//
// Errors:
//   - ErrNilInput, ErrShapeMismatch.
//   - ErrBadAirmass for a negative or non-finite DefaultAirmass.
//   - flexure.ErrBadOptions for an invalid search configuration.
//   - cube.ErrNoGrid when the geometry has no spaxel grid.
//   - ctx.Err() when cancelled.
//
// Complexity:
//   - Time O(T·A) for T traces and A pixels per mask window, plus the flexure
//     search; Space O(T·W) for W columns per trace.
func BuildCube(ctx context.Context, frame *ccd.Frame, geom *geometry.Geometry, sols *wavesolution.Set, opts Options) (*Result, error) {
	if frame == nil || geom == nil || sols == nil {
		return nil, ErrNilInput
	}
	fw, fh := frame.Shape()
	gw, gh := geom.Shape()
	if fw != gw || fh != gh {
		return nil, fmt.Errorf("frame %dx%d, geometry %dx%d: %w", fw, fh, gw, gh, ErrShapeMismatch)
	}
	if !(opts.DefaultAirmass >= 0) || math.IsInf(opts.DefaultAirmass, 0) {
		return nil, fmt.Errorf("default airmass %g: %w", opts.DefaultAirmass, ErrBadAirmass)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	traces := geom.Traces()

	res := &Result{Airmass: frame.Airmass}
	if !(res.Airmass > 0) && opts.DefaultAirmass > 0 {
		res.Airmass = opts.DefaultAirmass
		log.Info("pipeline: frame has no airmass, using default", zap.Float64("airmass", res.Airmass))
	}
	if opts.Flexure != nil {
		fo := *opts.Flexure
		if fo.Logger == nil {
			fo.Logger = log
		}
		fr, err := flexure.EstimateOffset(ctx, frame, traces, fo)
		switch {
		case err == nil:
			res.Flexure, res.Offset = fr, fr.Offset
		case errors.Is(err, flexure.ErrNoConvergence), errors.Is(err, flexure.ErrNoUsableTraces):
			res.Flexure, res.FlexureErr = fr, err
			log.Warn("pipeline: flexure search failed, using dj = 0", zap.Error(err))
		default:
			return nil, err
		}
	}

	// Outcomes are stored by position so assembly does not depend on
	// scheduling.
	out := make([]traceOutcome, len(traces))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, tr := range traces {
		i, tr := i, tr // per-iteration copies (pre-Go 1.22 loop semantics)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			spec, err := reduceTrace(frame, tr.ShiftedJ(res.Offset), sols, opts.Grid)
			out[i] = traceOutcome{spec: spec, err: err}

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	spectra := make(map[int]*cube.Spectrum, len(traces))
	failures := make(map[int]error)
	for i, tr := range traces {
		if out[i].err != nil {
			failures[tr.Index] = out[i].err
			log.Warn("pipeline: trace failed", zap.Int("trace", tr.Index), zap.Error(out[i].err))
			continue
		}
		spectra[tr.Index] = out[i].spec
	}
	c, err := cube.Assemble(spectra, geom.Grid(), failures)
	if err != nil {
		return nil, err
	}
	c.Meta[cube.MetaFlexure] = res.Offset
	c.Meta[cube.MetaGeometry] = geom.Version()
	if res.Airmass > 0 {
		c.Meta[cube.MetaAirmass] = res.Airmass
	}
	res.Cube = c

	log.Info("pipeline: cube built",
		zap.Int("traces", len(traces)),
		zap.Int("spaxels", c.Len()),
		zap.Int("failed", c.Report.Len()),
		zap.Float64("flexure_dj", res.Offset),
		zap.String("geometry", geom.Version()))

	return res, nil
}

// reduceTrace runs the per-trace chain on an already shifted trace.
func reduceTrace(frame *ccd.Frame, tr geometry.Trace, sols *wavesolution.Set, grid []float64) (*cube.Spectrum, error) {
	w, h := frame.Shape()
	mask, err := tracemask.Build(w, h, tr.Footprint)
	if err != nil {
		return nil, err
	}
	spec, err := extract.Extract(frame, mask)
	if err != nil {
		return nil, err
	}
	sol, err := sols.Get(tr.Index)
	if err != nil {
		return nil, err
	}

	return cube.ToWavelength(spec, sol, grid)
}
