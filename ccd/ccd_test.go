package ccd_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/ifucube/ccd"
)

// TestNewImage_BadShape verifies constructor validation.
func TestNewImage_BadShape(t *testing.T) {
	_, err := ccd.NewImage(0, 3)
	assert.ErrorIs(t, err, ccd.ErrBadShape)

	_, err = ccd.NewImageFrom(2, 2, []float64{1, 2, 3})
	assert.ErrorIs(t, err, ccd.ErrBadShape)
}

// TestImage_AtSet checks bounds handling and the NaN policy.
func TestImage_AtSet(t *testing.T) {
	img, err := ccd.NewImage(3, 2)
	require.NoError(t, err)

	require.NoError(t, img.Set(2, 1, 4.5))
	v, err := img.At(2, 1)
	require.NoError(t, err)
	assert.Equal(t, 4.5, v)

	_, err = img.At(3, 0)
	assert.ErrorIs(t, err, ccd.ErrOutOfRange)
	assert.ErrorIs(t, img.Set(0, -1, 1), ccd.ErrOutOfRange)
	assert.ErrorIs(t, img.Set(0, 0, math.NaN()), ccd.ErrNaNInf)

	loose, err := ccd.NewImage(1, 1, ccd.WithNonFinite())
	require.NoError(t, err)
	assert.NoError(t, loose.Set(0, 0, math.Inf(1)))
}

// TestNewImageFrom_RowMajor checks the x/y layout.
func TestNewImageFrom_RowMajor(t *testing.T) {
	img, err := ccd.NewImageFrom(3, 2, []float64{0, 1, 2, 10, 11, 12})
	require.NoError(t, err)

	v, _ := img.At(1, 1)
	assert.Equal(t, 11.0, v)

	row, err := img.Row(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 11, 12}, row)

	_, err = ccd.NewImageFrom(1, 1, []float64{math.NaN()})
	assert.ErrorIs(t, err, ccd.ErrNaNInf)
}

// TestImage_FillRectClips verifies clipping at the image edges.
func TestImage_FillRectClips(t *testing.T) {
	img, _ := ccd.NewImage(4, 4)
	img.FillRect(-2, 2, 4, 10, 1)
	assert.Equal(t, 4.0, img.Sum(), "2 columns × 2 rows inside")
}

// TestFrame_ScaledAndBackground checks the derived-frame helpers.
func TestFrame_ScaledAndBackground(t *testing.T) {
	flux, _ := ccd.NewImageFrom(2, 1, []float64{1, 2})
	vari, _ := ccd.NewImageFrom(2, 1, []float64{3, 4})
	f, err := ccd.NewFrame(flux, vari)
	require.NoError(t, err)

	s := f.Scaled(3)
	assert.Equal(t, 9.0, s.Flux.Sum())
	assert.Equal(t, 63.0, s.Variance.Sum())
	assert.Equal(t, 3.0, f.Flux.Sum(), "source untouched")

	b := f.WithBackground(0.5)
	assert.Equal(t, 4.0, b.Flux.Sum())
}

// TestNewFrame_Validation covers nil and mismatched inputs.
func TestNewFrame_Validation(t *testing.T) {
	_, err := ccd.NewFrame(nil, nil)
	assert.ErrorIs(t, err, ccd.ErrNilImage)

	a, _ := ccd.NewImage(2, 2)
	b, _ := ccd.NewImage(2, 3)
	_, err = ccd.NewFrame(a, b)
	assert.ErrorIs(t, err, ccd.ErrShapeMismatch)

	f, err := ccd.NewFrame(a, nil)
	require.NoError(t, err)
	w, h := f.Shape()
	assert.Equal(t, 2, w)
	assert.Equal(t, 2, h)
}
