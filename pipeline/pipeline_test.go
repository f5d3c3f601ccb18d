package pipeline_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/katalvlaran/ifucube/ccd"
	"github.com/katalvlaran/ifucube/cube"
	"github.com/katalvlaran/ifucube/extract"
	"github.com/katalvlaran/ifucube/flexure"
	"github.com/katalvlaran/ifucube/fluxcal"
	"github.com/katalvlaran/ifucube/geometry"
	"github.com/katalvlaran/ifucube/pipeline"
	"github.com/katalvlaran/ifucube/wavesolution"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// layout builds a geometry whose grid places trace k at axial (k, 0); extra
// grid indexes without a trace are listed in orphans.
func layout(t *testing.T, w, h int, traces []geometry.Trace, orphans ...int) *geometry.Geometry {
	t.Helper()
	cells := make(map[int]geometry.QR)
	for k, tr := range traces {
		cells[tr.Index] = geometry.QR{Q: k}
	}
	for k, idx := range orphans {
		cells[idx] = geometry.QR{Q: len(traces) + k}
	}
	grid, err := geometry.NewHexGrid(1, 0, cells)
	require.NoError(t, err)
	g, err := geometry.New("test-v1", w, h, traces, grid)
	require.NoError(t, err)

	return g
}

func identitySet(w int, idx ...int) *wavesolution.Set {
	s := wavesolution.NewSet("identity")
	for _, i := range idx {
		s.Put(i, wavesolution.Identity{Lo: 0, Hi: float64(w - 1)})
	}

	return s
}

func opts(t *testing.T) pipeline.Options {
	o := pipeline.DefaultOptions()
	o.Workers = 3
	o.Logger = zaptest.NewLogger(t)

	return o
}

// TestBuildCube_Scenario2048 runs a single 10×200 trace on a 2048² frame with
// 10 counts per pixel.
func TestBuildCube_Scenario2048(t *testing.T) {
	const n = 2048
	flux, err := ccd.NewImage(n, n)
	require.NoError(t, err)
	flux.FillRect(100, 1000, 200, 10, 10)
	frame, err := ccd.NewFrame(flux, nil)
	require.NoError(t, err)
	frame.Airmass = 1.2

	tr := geometry.Trace{Index: 7, Footprint: geometry.Rectangle(100, 1000, 200, 10)}
	g := layout(t, n, n, []geometry.Trace{tr})

	res, err := pipeline.BuildCube(context.Background(), frame, g, identitySet(n, 7), opts(t))
	require.NoError(t, err)
	c := res.Cube
	require.Equal(t, 1, c.Len())
	assert.Zero(t, c.Report.Len())

	s, ok := c.Spectrum(7)
	require.True(t, ok)
	require.Equal(t, 200, s.Len())
	for k, v := range s.Flux {
		require.Equal(t, 100.0, v, "λ=%g", s.Lambda[k])
	}
	assert.Equal(t, 100.0, s.Lambda[0])
	assert.Equal(t, 100.0*200, c.TotalFlux())

	assert.Equal(t, 0.0, c.Meta[cube.MetaFlexure])
	assert.Equal(t, "test-v1", c.Meta[cube.MetaGeometry])
	assert.Equal(t, 1.2, c.Meta[cube.MetaAirmass])
	assert.Equal(t, 1.2, res.Airmass)
	assert.Nil(t, res.Flexure)
	assert.NoError(t, res.FlexureErr)
}

// TestBuildCube_IsolatesFailures checks that bad traces are reported while
// the good one is extracted.
func TestBuildCube_IsolatesFailures(t *testing.T) {
	const w, h = 40, 40
	flux, err := ccd.NewImage(w, h)
	require.NoError(t, err)
	flux.FillRect(0, 0, w, h, 1)
	frame, err := ccd.NewFrame(flux, nil)
	require.NoError(t, err)

	bowTie := geometry.Polygon{{X: 0, Y: 10}, {X: 10, Y: 20}, {X: 10, Y: 10}, {X: 0, Y: 20}}
	traces := []geometry.Trace{
		{Index: 0, Footprint: geometry.Rectangle(2, 2, 30, 3)},
		{Index: 1, Footprint: bowTie},
		{Index: 2, Footprint: geometry.Rectangle(100, 100, 5, 5)},
		{Index: 3, Footprint: geometry.Rectangle(2, 30, 30, 3)},
	}
	g := layout(t, w, h, traces, 9)

	res, err := pipeline.BuildCube(context.Background(), frame, g, identitySet(w, 0, 1, 2), opts(t))
	require.NoError(t, err)
	c := res.Cube

	assert.Equal(t, []int{0}, c.Indexes)
	assert.Equal(t, []int{1, 2, 3, 9}, c.Report.Failed())
	assert.ErrorIs(t, c.Report.Get(1), geometry.ErrInvalidGeometry)
	assert.ErrorIs(t, c.Report.Get(2), extract.ErrEmptyTrace)
	assert.ErrorIs(t, c.Report.Get(3), wavesolution.ErrMissingSolution)
	assert.ErrorIs(t, c.Report.Get(9), cube.ErrMissingTrace)
	assert.InDelta(t, 30*3, c.TotalFlux(), 1e-9)
}

// TestBuildCube_AppliesFlexure recovers a +1.5 px shift and extracts the full
// flux with the shifted footprints.
func TestBuildCube_AppliesFlexure(t *testing.T) {
	const w, h, n = 80, 120, 5
	flux, err := ccd.NewImage(w, h)
	require.NoError(t, err)
	var traces []geometry.Trace
	idx := make([]int, 0, n)
	for k := 0; k < n; k++ {
		y := 20 * k
		flux.FillRect(5, 12+y, 70, 4, 10)
		traces = append(traces, geometry.Trace{Index: k, Footprint: geometry.Rectangle(5, 10.5+float64(y), 70, 4)})
		idx = append(idx, k)
	}
	frame, err := ccd.NewFrame(flux, nil)
	require.NoError(t, err)

	fo := flexure.DefaultOptions()
	fo.SearchRange, fo.Step, fo.Workers = 3, 0.5, 2
	o := opts(t)
	o.Flexure = &fo

	res, err := pipeline.BuildCube(context.Background(), frame, layout(t, w, h, traces), identitySet(w, idx...), o)
	require.NoError(t, err)
	require.NotNil(t, res.Flexure)
	assert.InDelta(t, 1.5, res.Offset, 1e-12)
	assert.Equal(t, res.Offset, res.Cube.Meta[cube.MetaFlexure])
	assert.InDelta(t, float64(n*70*4*10), res.Cube.TotalFlux(), 1e-6)
	assert.NoError(t, res.FlexureErr)

	// A range too narrow to reach +1.5 ends on its boundary: the outcome is
	// reported and the footprints stay where the geometry puts them.
	fo.SearchRange = 1
	res, err = pipeline.BuildCube(context.Background(), frame, layout(t, w, h, traces), identitySet(w, idx...), o)
	require.NoError(t, err)
	assert.ErrorIs(t, res.FlexureErr, flexure.ErrNoConvergence)
	require.NotNil(t, res.Flexure)
	assert.Equal(t, 1.0, res.Flexure.Offset)
	assert.Equal(t, 0.0, res.Offset)
	assert.Equal(t, 0.0, res.Cube.Meta[cube.MetaFlexure])
	// Rows [10.5, 14.5) against light in [12, 16): 2.5 rows per trace.
	assert.InDelta(t, float64(n)*70*2.5*10, res.Cube.TotalFlux(), 1e-6)
}

// TestBuildCube_NoUsableFlexureTraces reports a search whose traces all leave
// the frame, and still extracts the cube.
func TestBuildCube_NoUsableFlexureTraces(t *testing.T) {
	const w, h = 30, 10
	flux, err := ccd.NewImage(w, h)
	require.NoError(t, err)
	flux.FillRect(0, 0, w, h, 1)
	frame, err := ccd.NewFrame(flux, nil)
	require.NoError(t, err)
	traces := []geometry.Trace{{Index: 0, Footprint: geometry.Rectangle(0, 0, w, 2)}}

	fo := flexure.DefaultOptions()
	fo.SearchRange, fo.Step = 1, 0.5
	o := opts(t)
	o.Flexure = &fo
	res, err := pipeline.BuildCube(context.Background(), frame, layout(t, w, h, traces), identitySet(w, 0), o)
	require.NoError(t, err)
	assert.ErrorIs(t, res.FlexureErr, flexure.ErrNoUsableTraces)
	assert.Nil(t, res.Flexure)
	assert.InDelta(t, float64(w*2), res.Cube.TotalFlux(), 1e-9)
}

// TestBuildCube_NativeAndGrid checks that a target grid resamples every trace
// onto shared wavelengths.
func TestBuildCube_NativeAndGrid(t *testing.T) {
	const w, h = 30, 20
	flux, err := ccd.NewImage(w, h)
	require.NoError(t, err)
	flux.FillRect(0, 0, w, h, 2)
	frame, err := ccd.NewFrame(flux, nil)
	require.NoError(t, err)
	traces := []geometry.Trace{
		{Index: 0, Footprint: geometry.Rectangle(0, 2, 20, 2)},
		{Index: 1, Footprint: geometry.Rectangle(5, 10, 20, 2)},
	}
	g := layout(t, w, h, traces)

	res, err := pipeline.BuildCube(context.Background(), frame, g, identitySet(w, 0, 1), opts(t))
	require.NoError(t, err)
	assert.Nil(t, res.Cube.Lambda, "native grids differ")

	o := opts(t)
	o.Grid, err = cube.LinearGrid(6, 1, 10)
	require.NoError(t, err)
	res, err = pipeline.BuildCube(context.Background(), frame, g, identitySet(w, 0, 1), o)
	require.NoError(t, err)
	require.Equal(t, o.Grid, res.Cube.Lambda)
	for _, s := range res.Cube.Spectra {
		for k, v := range s.Flux {
			require.InDelta(t, 4.0, v, 1e-12, "λ=%g", s.Lambda[k])
		}
	}
}

// TestBuildCube_Validation covers input checks and cancellation.
func TestBuildCube_Validation(t *testing.T) {
	flux, err := ccd.NewImage(10, 10)
	require.NoError(t, err)
	frame, err := ccd.NewFrame(flux, nil)
	require.NoError(t, err)
	tr := []geometry.Trace{{Index: 0, Footprint: geometry.Rectangle(1, 1, 5, 2)}}

	_, err = pipeline.BuildCube(context.Background(), nil, layout(t, 10, 10, tr), identitySet(10, 0), opts(t))
	assert.ErrorIs(t, err, pipeline.ErrNilInput)

	_, err = pipeline.BuildCube(context.Background(), frame, layout(t, 12, 10, tr), identitySet(10, 0), opts(t))
	assert.ErrorIs(t, err, pipeline.ErrShapeMismatch)

	bad := flexure.DefaultOptions()
	bad.Step = 0
	o := opts(t)
	o.Flexure = &bad
	_, err = pipeline.BuildCube(context.Background(), frame, layout(t, 10, 10, tr), identitySet(10, 0), o)
	assert.ErrorIs(t, err, flexure.ErrBadOptions)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pipeline.BuildCube(ctx, frame, layout(t, 10, 10, tr), identitySet(10, 0), opts(t))
	assert.ErrorIs(t, err, context.Canceled)
}

// TestBuildCube_DefaultAirmass fills in the airmass of a frame without one.
func TestBuildCube_DefaultAirmass(t *testing.T) {
	const w, h = 20, 10
	flux, err := ccd.NewImage(w, h)
	require.NoError(t, err)
	flux.FillRect(0, 0, w, h, 1)
	frame, err := ccd.NewFrame(flux, nil)
	require.NoError(t, err)
	g := layout(t, w, h, []geometry.Trace{{Index: 0, Footprint: geometry.Rectangle(0, 1, w, 2)}})

	res, err := pipeline.BuildCube(context.Background(), frame, g, identitySet(w, 0), opts(t))
	require.NoError(t, err)
	assert.Zero(t, res.Airmass)
	assert.NotContains(t, res.Cube.Meta, cube.MetaAirmass)

	o := opts(t)
	o.DefaultAirmass = 1.1
	res, err = pipeline.BuildCube(context.Background(), frame, g, identitySet(w, 0), o)
	require.NoError(t, err)
	assert.Equal(t, 1.1, res.Airmass)
	assert.Equal(t, 1.1, res.Cube.Meta[cube.MetaAirmass])

	frame.Airmass = 1.7
	res, err = pipeline.BuildCube(context.Background(), frame, g, identitySet(w, 0), o)
	require.NoError(t, err)
	assert.Equal(t, 1.7, res.Airmass)

	o.DefaultAirmass = -1
	_, err = pipeline.BuildCube(context.Background(), frame, g, identitySet(w, 0), o)
	assert.ErrorIs(t, err, pipeline.ErrBadAirmass)
}

// TestCalibrate divides a cube by a constant inverse sensitivity and flags an
// extrapolated airmass.
func TestCalibrate(t *testing.T) {
	const w, h = 20, 10
	flux, err := ccd.NewImage(w, h)
	require.NoError(t, err)
	flux.FillRect(0, 0, w, h, 3)
	frame, err := ccd.NewFrame(flux, nil)
	require.NoError(t, err)
	traces := []geometry.Trace{{Index: 0, Footprint: geometry.Rectangle(0, 1, w, 2)}}

	o := opts(t)
	o.Grid, err = cube.LinearGrid(2, 1, 10)
	require.NoError(t, err)
	res, err := pipeline.BuildCube(context.Background(), frame, layout(t, w, h, traces), identitySet(w, 0), o)
	require.NoError(t, err)

	d := fluxcal.DefaultOptions()
	cal := &fluxcal.Spectrum{
		ID:               "cal-1",
		Airmass:          1,
		AirmassTolerance: 0.5,
		LambdaMid:        10,
		LambdaHalf:       10,
		Coeffs:           []float64{math.Log(2)},
		Telluric:         fluxcal.Params{O2Width: 5, H2OWidth: 5, Stretch: 1},
		ResolvingPower:   100,
		O2:               d.O2,
		H2O:              d.H2O,
	}
	curve, err := pipeline.Calibrate(res.Cube, cal, 2, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, curve.Extrapolated)
	assert.Equal(t, "cal-1", res.Cube.Meta[cube.MetaFluxCal])
	assert.Equal(t, true, res.Cube.Meta[pipeline.MetaFluxCalExtrapolated])
	s, ok := res.Cube.Spectrum(0)
	require.True(t, ok)
	for _, v := range s.Flux {
		require.InDelta(t, 3.0, v, 1e-12)
	}

	_, err = pipeline.Calibrate(nil, cal, 1, nil)
	assert.ErrorIs(t, err, pipeline.ErrNilInput)
}
