// SPDX-License-Identifier: MIT

// Package flexure estimates the cross-dispersion (j) misalignment between
// the assumed trace geometry and the light actually recorded on a frame.
//
// A misaligned footprint leaks flux into the inter-trace background, so the
// offset that maximizes the flux recovered by a set of traces is the
// flexure estimate. The search is a grid over [−R, +R]:
//
//	for each candidate dj:
//	    flux(dj) = Σ_trace Σ extract(frame, mask(footprint + (0, dj)))
//
// Implementation:
//   - Stage 1: validate options; draw a seeded subset of traces.
//   - Stage 2: evaluate candidates in parallel (errgroup, bounded workers);
//     per-candidate results are stored by position, so the reduction does not
//     depend on scheduling.
//   - Stage 3: drop traces that failed at any candidate, sum, take the
//     maximum. Ties go to the smallest |dj|, then to the lower dj.
//   - Stage 4: flag a boundary maximum (ErrNoConvergence), optionally refine
//     with a parabola through the peak and its neighbours.
//
// A constant background adds the same b·area to every candidate as long as
// the masks stay inside the frame, so it does not move the optimum. A trace
// clipped by the frame edge at any candidate is excluded (ErrTraceClipped).
package flexure

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/katalvlaran/ifucube/ccd"
	"github.com/katalvlaran/ifucube/extract"
	"github.com/katalvlaran/ifucube/geometry"
	"github.com/katalvlaran/ifucube/tracemask"
)

// traceFlux is one trace's recovered flux at one candidate.
type traceFlux struct {
	flux float64
	err  error
}

// EstimateOffset searches the cross-dispersion offset maximizing recovered
// flux over a random subset of traces.
//
// Errors:
//   - ErrBadOptions for an invalid search grid.
//   - ErrNoUsableTraces when every selected trace fails.
//   - ErrNoConvergence (with a non-nil Result) when the maximum lies on the
//     search boundary and exceeds its inner neighbour.
//   - ctx.Err() when cancelled.
//
// Complexity:
//   - Time O(C·T·A) for C candidates, T traces and A pixels per mask window;
//     Space O(C·T).
func EstimateOffset(ctx context.Context, frame *ccd.Frame, traces []geometry.Trace, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if frame == nil {
		return nil, fmt.Errorf("flexure: nil frame: %w", ErrBadOptions)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	// Stage 1: subset.
	pos := pickSubset(len(traces), opts.SubsetSize, rngFromSeed(opts.Seed))
	subset := make([]geometry.Trace, len(pos))
	for i, p := range pos {
		subset[i] = traces[p]
	}
	if len(subset) == 0 {
		return nil, ErrNoUsableTraces
	}
	cands := candidateGrid(opts.SearchRange, opts.Step)

	// Stage 2: parallel evaluation.
	w, h := frame.Shape()
	table := make([][]traceFlux, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Workers, 1))
	for c, dj := range cands {
		c, dj := c, dj // per-iteration copies (pre-Go 1.22 loop semantics)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row := make([]traceFlux, len(subset))
			for t, tr := range subset {
				row[t] = measure(frame, w, h, tr.ShiftedJ(dj))
			}
			table[c] = row

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Stage 3: usable traces and reduction.
	res := &Result{Candidates: cands, Flux: make([]float64, len(cands)), Excluded: make(map[int]error)}
	usable := make([]bool, len(subset))
	for t, tr := range subset {
		usable[t] = true
		for c := range cands {
			if err := table[c][t].err; err != nil {
				usable[t] = false
				res.Excluded[tr.Index] = err
				break
			}
		}
		if usable[t] {
			res.Used = append(res.Used, tr.Index)
		}
	}
	for idx, err := range res.Excluded {
		log.Debug("flexure: trace excluded", zap.Int("trace", idx), zap.Error(err))
	}
	if len(res.Used) == 0 {
		return nil, ErrNoUsableTraces
	}
	sort.Ints(res.Used)
	for c := range cands {
		var s float64
		for t := range subset {
			if usable[t] {
				s += table[c][t].flux
			}
		}
		res.Flux[c] = s
	}

	best := pickBest(cands, res.Flux, opts.TieTolerance)
	res.Offset = cands[best]

	// Stage 4: boundary check and refinement.
	if len(cands) > 1 {
		inner := -1
		switch best {
		case 0:
			inner = 1
		case len(cands) - 1:
			inner = best - 1
		}
		if inner >= 0 && !ties(res.Flux[best], res.Flux[inner], opts.TieTolerance) {
			log.Warn("flexure: optimum on search boundary",
				zap.Float64("offset", res.Offset), zap.Float64("range", opts.SearchRange))

			return res, ErrNoConvergence
		}
	}
	if opts.Refine && best > 0 && best < len(cands)-1 {
		res.Offset += parabolicPeak(res.Flux[best-1], res.Flux[best], res.Flux[best+1]) * opts.Step
	}
	log.Info("flexure: offset estimated",
		zap.Float64("offset", res.Offset),
		zap.Int("candidates", len(cands)),
		zap.Int("traces", len(res.Used)),
		zap.Int("excluded", len(res.Excluded)))

	return res, nil
}

// clipTolerance is the relative mask-area deficit above which a footprint
// counts as clipped by the frame.
const clipTolerance = 1e-9

// measure returns the flux recovered by tr on frame. The mask must cover the
// whole footprint.
func measure(frame *ccd.Frame, w, h int, tr geometry.Trace) traceFlux {
	m, err := tracemask.Build(w, h, tr.Footprint)
	if err != nil {
		return traceFlux{err: err}
	}
	s, err := extract.Extract(frame, m)
	if err != nil {
		return traceFlux{err: err}
	}
	if area := tr.Footprint.Area(); math.Abs(area-m.Sum()) > clipTolerance*area {
		return traceFlux{err: fmt.Errorf("mask area %g of %g: %w", m.Sum(), area, ErrTraceClipped)}
	}

	return traceFlux{flux: s.Total()}
}

// candidateGrid returns −n·step … +n·step with n = ⌊R/step⌋, ascending.
// Values are computed as k·step so that 0 is exact.
func candidateGrid(r, step float64) []float64 {
	n := int(math.Floor(r/step + 1e-9))
	out := make([]float64, 0, 2*n+1)
	for k := -n; k <= n; k++ {
		out = append(out, float64(k)*step)
	}

	return out
}

// ties reports whether a and b are equal within relative tolerance tol.
func ties(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol*math.Max(math.Abs(a), math.Abs(b))
}

// pickBest returns the position of the maximum; among tied maxima the
// smallest |dj| wins, then the lower dj.
func pickBest(cands, flux []float64, tol float64) int {
	top := 0
	for c := range flux {
		if flux[c] > flux[top] {
			top = c
		}
	}
	best := top
	for c := range flux {
		if !ties(flux[c], flux[top], tol) {
			continue
		}
		ac, ab := math.Abs(cands[c]), math.Abs(cands[best])
		if ac < ab || (ac == ab && cands[c] < cands[best]) {
			best = c
		}
	}

	return best
}

// parabolicPeak returns the vertex of the parabola through (−1, a), (0, b),
// (1, c), in units of the grid step, clamped to [−½, ½]. A non-concave
// triple yields 0.
func parabolicPeak(a, b, c float64) float64 {
	den := a - 2*b + c
	if !(den < 0) {
		return 0
	}
	d := 0.5 * (a - c) / den

	return math.Max(-0.5, math.Min(0.5, d))
}
