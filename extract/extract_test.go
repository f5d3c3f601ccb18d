package extract_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/ifucube/ccd"
	"github.com/katalvlaran/ifucube/extract"
	"github.com/katalvlaran/ifucube/geometry"
	"github.com/katalvlaran/ifucube/tracemask"
)

// rampFrame returns a frame with flux x+2y+1 and variance 0.5·flux.
func rampFrame(t testing.TB, w, h int) *ccd.Frame {
	t.Helper()
	flux, err := ccd.NewImage(w, h)
	require.NoError(t, err)
	vari, err := ccd.NewImage(w, h)
	require.NoError(t, err)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := float64(x + 2*y + 1)
			require.NoError(t, flux.Set(x, y, v))
			require.NoError(t, vari.Set(x, y, 0.5*v))
		}
	}
	f, err := ccd.NewFrame(flux, vari)
	require.NoError(t, err)

	return f
}

// TestExtract_WeightedSums checks flux and variance propagation by hand.
func TestExtract_WeightedSums(t *testing.T) {
	f := rampFrame(t, 6, 4)
	// Covers x∈[1,3), y∈[0.5,2): weights 0.5 on row 0, 1 on row 1.
	m, err := tracemask.Build(6, 4, geometry.Rectangle(1, 0.5, 2, 1.5))
	require.NoError(t, err)

	s, err := extract.Extract(f, m)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, s.Pixels)
	// x=1: 0.5·2 + 1·4 = 5 ; x=2: 0.5·3 + 1·5 = 6.5
	assert.InDeltaSlice(t, []float64{5, 6.5}, s.Flux, 1e-12)
	// x=1: 0.25·1 + 1·2 = 2.25 ; x=2: 0.25·1.5 + 1·2.5 = 2.875
	assert.InDeltaSlice(t, []float64{2.25, 2.875}, s.Variance, 1e-12)
	assert.Equal(t, 2, s.Len())
}

// TestExtract_Linearity checks extract(k·F, k²·V) == (k·flux, k²·var).
func TestExtract_Linearity(t *testing.T) {
	f := rampFrame(t, 40, 20)
	poly := geometry.Polygon{{X: 2.3, Y: 3.1}, {X: 37.5, Y: 6.2}, {X: 37.5, Y: 9.9}, {X: 2.3, Y: 6.8}}
	m, err := tracemask.Build(40, 20, poly)
	require.NoError(t, err)

	base, err := extract.Extract(f, m)
	require.NoError(t, err)
	for _, k := range []float64{0.1, 3, 1e4} {
		s, err := extract.Extract(f.Scaled(k), m)
		require.NoError(t, err)
		require.Equal(t, base.Pixels, s.Pixels)
		for i := range s.Flux {
			assert.InDelta(t, k*base.Flux[i], s.Flux[i], 1e-9*k*base.Flux[i])
			assert.InDelta(t, k*k*base.Variance[i], s.Variance[i], 1e-9*k*k*base.Variance[i])
		}
	}
}

// TestExtract_Scenario2048 is the full-frame scenario: a 10×200 trace on a
// zero background yields 100 per column and 100×200 in total.
func TestExtract_Scenario2048(t *testing.T) {
	if testing.Short() {
		t.Skip("allocates a 2048×2048 frame")
	}
	flux, err := ccd.NewImage(2048, 2048)
	require.NoError(t, err)
	// 200 pixels along dispersion (x), 10 across (y), 10 per pixel → 100 per column.
	flux.FillRect(900, 1000, 200, 10, 10)
	f, err := ccd.NewFrame(flux, nil)
	require.NoError(t, err)

	m, err := tracemask.Build(2048, 2048, geometry.Rectangle(900, 1000, 200, 10))
	require.NoError(t, err)
	s, err := extract.Extract(f, m)
	require.NoError(t, err)

	require.Equal(t, 200, s.Len())
	for i, v := range s.Flux {
		require.Equal(t, 100.0, v, "column %d", s.Pixels[i])
	}
	assert.Equal(t, 100.0*200, s.Total())
}

// TestExtract_EmptyTrace checks that an all-zero mask is an error, never a
// silent zero spectrum.
func TestExtract_EmptyTrace(t *testing.T) {
	f := rampFrame(t, 8, 8)
	m, err := tracemask.Build(8, 8, geometry.Rectangle(50, 50, 4, 4))
	require.NoError(t, err)

	_, err = extract.Extract(f, m)
	assert.ErrorIs(t, err, extract.ErrEmptyTrace)
}

// TestExtract_Validation covers nil and shape checks.
func TestExtract_Validation(t *testing.T) {
	f := rampFrame(t, 8, 8)
	m, err := tracemask.Build(9, 8, geometry.Rectangle(1, 1, 2, 2))
	require.NoError(t, err)

	_, err = extract.Extract(f, m)
	assert.ErrorIs(t, err, extract.ErrShapeMismatch)
	_, err = extract.Extract(nil, m)
	assert.ErrorIs(t, err, extract.ErrNilInput)
}

// TestExtract_VarianceShapeMismatch checks a hand-built frame whose variance
// plane is narrower than its flux plane.
func TestExtract_VarianceShapeMismatch(t *testing.T) {
	flux, err := ccd.NewImage(8, 8)
	require.NoError(t, err)
	vari, err := ccd.NewImage(4, 8)
	require.NoError(t, err)
	f := &ccd.Frame{Flux: flux, Variance: vari}
	m, err := tracemask.Build(8, 8, geometry.Rectangle(5, 2, 2, 2))
	require.NoError(t, err)

	var s *extract.Spectrum
	require.NotPanics(t, func() { s, err = extract.Extract(f, m) })
	assert.ErrorIs(t, err, extract.ErrShapeMismatch)
	assert.Nil(t, s)
}

// BenchmarkExtract_Trace benchmarks one 4×2000 trace on a 2048² frame.
func BenchmarkExtract_Trace(b *testing.B) {
	f := rampFrame(b, 2048, 2048)
	m, err := tracemask.Build(2048, 2048, geometry.Rectangle(20, 100.5, 2000, 4))
	if err != nil {
		b.Fatalf("Build failed: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := extract.Extract(f, m); err != nil {
			b.Fatalf("Extract failed: %v", err)
		}
	}
}
