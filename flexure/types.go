package flexure

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"go.uber.org/zap"
)

var (
	// ErrNoConvergence indicates that recovered flux still increases at the
	// edge of the search range: the optimum lies outside it. The Result is
	// returned alongside so callers can decide whether to widen the range.
	ErrNoConvergence = errors.New("flexure: optimum at search-range boundary")

	// ErrNoUsableTraces indicates that every selected trace failed to mask
	// or extract.
	ErrNoUsableTraces = errors.New("flexure: no usable trace")

	// ErrTraceClipped indicates a trace whose shifted footprint leaves the
	// frame at some candidate. Its recovered area would then depend on dj.
	ErrTraceClipped = errors.New("flexure: trace footprint leaves the frame")

	// ErrBadOptions indicates an invalid search configuration.
	ErrBadOptions = errors.New("flexure: invalid options")
)

// Options configures EstimateOffset.
//
// Fields:
//   - SearchRange: half width R of the symmetric candidate grid [−R, +R], pixels.
//   - Step: candidate spacing; the grid always contains 0.
//   - SubsetSize: number of traces drawn at random; ≤ 0 uses every trace.
//   - Seed: RNG seed for the subset; 0 selects a fixed default seed.
//   - Workers: parallel candidate evaluations; ≤ 0 means GOMAXPROCS.
//   - Refine: fit a parabola through the peak and its neighbours.
//   - TieTolerance: relative flux difference under which candidates tie.
//   - Logger: structured logger; nil disables logging.
type Options struct {
	SearchRange  float64
	Step         float64
	SubsetSize   int
	Seed         int64
	Workers      int
	Refine       bool
	TieTolerance float64
	Logger       *zap.Logger
}

// DefaultOptions returns the default search.
//
// Defaults:
//   - SearchRange:  3 px, Step: 0.1 px (61 candidates).
//   - SubsetSize:   50 traces, Seed: 0 (default seed).
//   - Workers:      GOMAXPROCS.
//   - Refine:       false.
//   - TieTolerance: 1e-9.
func DefaultOptions() Options {
	return Options{
		SearchRange:  3,
		Step:         0.1,
		SubsetSize:   50,
		Workers:      runtime.GOMAXPROCS(0),
		TieTolerance: 1e-9,
	}
}

func (o Options) validate() error {
	switch {
	case !(o.SearchRange >= 0) || math.IsInf(o.SearchRange, 0):
		return fmt.Errorf("search range %g: %w", o.SearchRange, ErrBadOptions)
	case !(o.Step > 0) || math.IsInf(o.Step, 0):
		return fmt.Errorf("step %g: %w", o.Step, ErrBadOptions)
	case o.SearchRange/o.Step > maxCandidatesPerSide:
		return fmt.Errorf("%g/%g exceeds %d candidates per side: %w",
			o.SearchRange, o.Step, maxCandidatesPerSide, ErrBadOptions)
	case o.TieTolerance < 0 || math.IsNaN(o.TieTolerance):
		return fmt.Errorf("tie tolerance %g: %w", o.TieTolerance, ErrBadOptions)
	}

	return nil
}

// maxCandidatesPerSide bounds the candidate grid.
const maxCandidatesPerSide = 10000

// Result is the outcome of a flexure search.
type Result struct {
	// Offset is the estimated cross-dispersion shift, pixels.
	Offset float64
	// Candidates and Flux are the searched offsets and their summed flux.
	Candidates []float64
	Flux       []float64
	// Used lists the trace indexes contributing to Flux.
	Used []int
	// Excluded maps trace indexes that failed at some candidate to the error.
	Excluded map[int]error
}
