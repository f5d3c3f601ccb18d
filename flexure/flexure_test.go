package flexure_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/katalvlaran/ifucube/ccd"
	"github.com/katalvlaran/ifucube/extract"
	"github.com/katalvlaran/ifucube/flexure"
	"github.com/katalvlaran/ifucube/geometry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	frameW = 80
	frameH = 120
)

// shiftedScene lays out n horizontal traces of height 4 at y = 10.5 + 20k and
// illuminates each at y = 12 + 20k, i.e. a true flexure of +1.5 px.
func shiftedScene(t *testing.T, n int, background float64) (*ccd.Frame, []geometry.Trace) {
	t.Helper()
	flux, err := ccd.NewImage(frameW, frameH)
	require.NoError(t, err)
	var traces []geometry.Trace
	for k := 0; k < n; k++ {
		y := 20 * k
		flux.FillRect(5, 12+y, 70, 4, 10)
		traces = append(traces, geometry.Trace{
			Index:     100 + k,
			Footprint: geometry.Rectangle(5, 10.5+float64(y), 70, 4),
		})
	}
	f, err := ccd.NewFrame(flux.Offset(background), nil)
	require.NoError(t, err)

	return f, traces
}

func searchOpts(t *testing.T, r, step float64) flexure.Options {
	o := flexure.DefaultOptions()
	o.SearchRange = r
	o.Step = step
	o.Workers = 3
	o.Logger = zaptest.NewLogger(t)

	return o
}

// TestEstimateOffset_RecoversShift checks a known synthetic j-shift.
func TestEstimateOffset_RecoversShift(t *testing.T) {
	f, traces := shiftedScene(t, 5, 0)
	res, err := flexure.EstimateOffset(context.Background(), f, traces, searchOpts(t, 3, 0.5))
	require.NoError(t, err)
	assert.InDelta(t, 1.5, res.Offset, 1e-12)
	assert.Len(t, res.Candidates, 13)
	assert.Equal(t, []int{100, 101, 102, 103, 104}, res.Used)
	assert.Empty(t, res.Excluded)
}

// TestEstimateOffset_BackgroundInvariant checks a constant background does
// not bias the optimum.
func TestEstimateOffset_BackgroundInvariant(t *testing.T) {
	opts := searchOpts(t, 3, 0.25)
	f0, traces := shiftedScene(t, 5, 0)
	r0, err := flexure.EstimateOffset(context.Background(), f0, traces, opts)
	require.NoError(t, err)

	for _, bg := range []float64{1, 250} {
		fb, _ := shiftedScene(t, 5, bg)
		rb, err := flexure.EstimateOffset(context.Background(), fb, traces, opts)
		require.NoError(t, err)
		assert.Equal(t, r0.Offset, rb.Offset, "background %g", bg)
	}
}

// TestEstimateOffset_EdgeTraceExcluded adds a trace along the top edge whose
// shifted footprint leaves the frame for most candidates. It must not let a
// background pull the optimum.
func TestEstimateOffset_EdgeTraceExcluded(t *testing.T) {
	opts := searchOpts(t, 3, 0.25)
	opts.SubsetSize = 0
	for _, bg := range []float64{0, 250} {
		f, traces := shiftedScene(t, 5, 0)
		f.Flux.FillRect(5, frameH-2, 70, 2, 10)
		f = f.WithBackground(bg)
		traces = append(traces, geometry.Trace{Index: 999, Footprint: geometry.Rectangle(5, frameH-3.5, 70, 4)})

		res, err := flexure.EstimateOffset(context.Background(), f, traces, opts)
		require.NoError(t, err, "background %g", bg)
		assert.InDelta(t, 1.5, res.Offset, 1e-12, "background %g", bg)
		assert.Equal(t, []int{100, 101, 102, 103, 104}, res.Used)
		assert.ErrorIs(t, res.Excluded[999], flexure.ErrTraceClipped)
	}
}

// TestEstimateOffset_Refine checks parabolic refinement stays near the grid
// peak when the true shift is off-grid.
func TestEstimateOffset_Refine(t *testing.T) {
	f, traces := shiftedScene(t, 3, 0)
	opts := searchOpts(t, 3, 1)
	opts.Refine = true
	res, err := flexure.EstimateOffset(context.Background(), f, traces, opts)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, res.Offset, 0.5)
}

// TestEstimateOffset_Boundary reports NoConvergence when the range is too
// narrow, with the boundary result still available.
func TestEstimateOffset_Boundary(t *testing.T) {
	f, traces := shiftedScene(t, 3, 0)
	res, err := flexure.EstimateOffset(context.Background(), f, traces, searchOpts(t, 1, 0.5))
	assert.ErrorIs(t, err, flexure.ErrNoConvergence)
	require.NotNil(t, res)
	assert.Equal(t, 1.0, res.Offset)
}

// TestEstimateOffset_TieBreak checks that equal maxima at ±1 resolve to −1,
// and a flat plateau resolves to 0.
func TestEstimateOffset_TieBreak(t *testing.T) {
	flux, err := ccd.NewImage(frameW, frameH)
	require.NoError(t, err)
	// Rows 49 and 51 lit, row 50 dark; a one-row trace on row 50.
	flux.FillRect(0, 49, frameW, 1, 5)
	flux.FillRect(0, 51, frameW, 1, 5)
	f, err := ccd.NewFrame(flux, nil)
	require.NoError(t, err)
	tr := []geometry.Trace{{Index: 1, Footprint: geometry.Rectangle(0, 50, frameW, 1)}}

	res, err := flexure.EstimateOffset(context.Background(), f, tr, searchOpts(t, 2, 0.5))
	require.NoError(t, err)
	assert.Equal(t, -1.0, res.Offset)

	plateau, err := ccd.NewImage(frameW, frameH)
	require.NoError(t, err)
	plateau.FillRect(0, 40, frameW, 20, 5)
	pf, err := ccd.NewFrame(plateau, nil)
	require.NoError(t, err)
	res, err = flexure.EstimateOffset(context.Background(), pf, tr, searchOpts(t, 2, 0.5))
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Offset)
}

// TestEstimateOffset_ExcludesBadTraces checks that off-frame and malformed
// traces are reported but do not stop the search.
func TestEstimateOffset_ExcludesBadTraces(t *testing.T) {
	f, traces := shiftedScene(t, 2, 0)
	traces = append(traces,
		geometry.Trace{Index: 7, Footprint: geometry.Rectangle(5, 5000, 10, 4)},
		geometry.Trace{Index: 8, Footprint: geometry.Polygon{{X: 0, Y: 0}, {X: 4, Y: 4}, {X: 4, Y: 0}, {X: 0, Y: 4}}},
	)
	res, err := flexure.EstimateOffset(context.Background(), f, traces, searchOpts(t, 3, 0.5))
	require.NoError(t, err)
	assert.InDelta(t, 1.5, res.Offset, 1e-12)
	assert.Equal(t, []int{100, 101}, res.Used)
	assert.ErrorIs(t, res.Excluded[7], extract.ErrEmptyTrace)
	assert.ErrorIs(t, res.Excluded[8], geometry.ErrInvalidGeometry)

	_, err = flexure.EstimateOffset(context.Background(), f, traces[2:], searchOpts(t, 3, 0.5))
	assert.ErrorIs(t, err, flexure.ErrNoUsableTraces)
}

// TestEstimateOffset_SubsetIsSeeded checks reproducible subsets.
func TestEstimateOffset_SubsetIsSeeded(t *testing.T) {
	f, traces := shiftedScene(t, 5, 0)
	opts := searchOpts(t, 3, 0.5)
	opts.SubsetSize = 2
	opts.Seed = 42

	a, err := flexure.EstimateOffset(context.Background(), f, traces, opts)
	require.NoError(t, err)
	b, err := flexure.EstimateOffset(context.Background(), f, traces, opts)
	require.NoError(t, err)
	assert.Len(t, a.Used, 2)
	assert.Equal(t, a.Used, b.Used)
	assert.Equal(t, a.Flux, b.Flux)
}

// TestEstimateOffset_Validation covers options and cancellation.
func TestEstimateOffset_Validation(t *testing.T) {
	f, traces := shiftedScene(t, 1, 0)

	bad := searchOpts(t, 3, 0)
	_, err := flexure.EstimateOffset(context.Background(), f, traces, bad)
	assert.ErrorIs(t, err, flexure.ErrBadOptions)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = flexure.EstimateOffset(ctx, f, traces, searchOpts(t, 3, 0.5))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = flexure.EstimateOffset(context.Background(), f, nil, searchOpts(t, 3, 0.5))
	assert.ErrorIs(t, err, flexure.ErrNoUsableTraces)
}
