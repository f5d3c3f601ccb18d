package ccdio_test

import (
	"bytes"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katalvlaran/ifucube/ccd"
	"github.com/katalvlaran/ifucube/ccdio"
	"github.com/katalvlaran/ifucube/cube"
	"github.com/katalvlaran/ifucube/geometry"
)

func ramp(t *testing.T, w, h int, k float64) *ccd.Image {
	t.Helper()
	data := make([]float64, w*h)
	for i := range data {
		data[i] = k * float64(i)
	}
	img, err := ccd.NewImageFrom(w, h, data)
	require.NoError(t, err)

	return img
}

// TestFrame_RoundTrip writes a frame and reads it back unchanged.
func TestFrame_RoundTrip(t *testing.T) {
	frame, err := ccd.NewFrame(ramp(t, 7, 5, 1.5), ramp(t, 7, 5, 0.25))
	require.NoError(t, err)
	frame.Airmass = 1.37
	frame.Object = "STD-Feige34"

	var buf bytes.Buffer
	require.NoError(t, ccdio.WriteFrame(&buf, frame))

	back, err := ccdio.ReadFrame(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	w, h := back.Shape()
	assert.Equal(t, 7, w)
	assert.Equal(t, 5, h)
	assert.Equal(t, 1.37, back.Airmass)
	assert.Equal(t, "STD-Feige34", back.Object)
	for y := 0; y < h; y++ {
		want, _ := frame.Flux.Row(y)
		got, _ := back.Flux.Row(y)
		require.Equal(t, want, got, "flux row %d", y)
		want, _ = frame.Variance.Row(y)
		got, _ = back.Variance.Row(y)
		require.Equal(t, want, got, "variance row %d", y)
	}
}

// TestReadFrame_Int16Scaled reads a BITPIX 16 image with BZERO/BSCALE and
// no variance extension.
func TestReadFrame_Int16Scaled(t *testing.T) {
	var buf bytes.Buffer
	f, err := fitsio.Create(&buf)
	require.NoError(t, err)
	img := fitsio.NewImage(16, []int{3, 2})
	require.NoError(t, img.Header().Append(
		fitsio.Card{Name: "BSCALE", Value: 2.0},
		fitsio.Card{Name: "BZERO", Value: 10.0},
		fitsio.Card{Name: "AIRMASS", Value: 2},
	))
	data := []int16{0, 1, 2, 3, 4, 5}
	require.NoError(t, img.Write(&data))
	require.NoError(t, f.Write(img))
	require.NoError(t, img.Close())
	require.NoError(t, f.Close())

	frame, err := ccdio.ReadFrame(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	row, err := frame.Flux.Row(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{16, 18, 20}, row)
	assert.Equal(t, 0.0, frame.Variance.Sum())
	assert.Equal(t, 2.0, frame.Airmass)
}

// TestWriteCube checks the image, wavelength and spaxel HDUs.
func TestWriteCube(t *testing.T) {
	spec := func(flux ...float64) *cube.Spectrum {
		return &cube.Spectrum{
			Lambda:   []float64{5000, 5100, 5200},
			Flux:     flux,
			Variance: []float64{1, 1, 1},
			Masked:   make([]bool, 3),
		}
	}
	c := &cube.Cube{
		Indexes:   []int{3, 8},
		Positions: []geometry.Point{{X: 0, Y: 0}, {X: 1.5, Y: -0.5}},
		Spectra:   []*cube.Spectrum{spec(1, 2, 3), spec(4, 5, 6)},
		Lambda:    []float64{5000, 5100, 5200},
		Report:    cube.NewReport(),
		Meta: map[string]any{
			cube.MetaAirmass:  1.2,
			cube.MetaFlexure:  0.5,
			cube.MetaGeometry: "2019-04-17",
			cube.MetaFlat:     true,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, ccdio.WriteCube(&buf, c))

	f, err := fitsio.Open(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	hdus := f.HDUs()
	require.Len(t, hdus, 4)

	primary := hdus[0].(fitsio.Image)
	assert.Equal(t, []int{3, 2}, primary.Header().Axes())
	var flux []float64
	require.NoError(t, primary.Read(&flux))
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, flux)
	assert.Equal(t, 1.2, primary.Header().Get(cube.MetaAirmass).Value)
	assert.Equal(t, "2019-04-17", primary.Header().Get(cube.MetaGeometry).Value)
	assert.Equal(t, true, primary.Header().Get(cube.MetaFlat).Value)

	var lambda []float64
	require.NoError(t, hdus[2].(fitsio.Image).Read(&lambda))
	assert.Equal(t, c.Lambda, lambda)

	tbl := hdus[3].(*fitsio.Table)
	rows, err := tbl.Read(0, tbl.NumRows())
	require.NoError(t, err)
	defer rows.Close()
	type row struct {
		Index int64   `fits:"INDEX"`
		X     float64 `fits:"X"`
		Y     float64 `fits:"Y"`
	}
	var got []row
	for rows.Next() {
		var r row
		require.NoError(t, rows.Scan(&r))
		got = append(got, r)
	}
	want := []row{{Index: 3}, {Index: 8, X: 1.5, Y: -0.5}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("spaxel table (-want +got):\n%s", diff)
	}
}

// TestWriteCube_NoCommonGrid refuses cubes without a shared grid.
func TestWriteCube_NoCommonGrid(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, ccdio.WriteCube(&buf, &cube.Cube{}), ccdio.ErrNoCommonGrid)
	assert.ErrorIs(t, ccdio.WriteCube(&buf, nil), ccdio.ErrNoCommonGrid)
}

// TestReadFrame_Errors covers malformed inputs.
func TestReadFrame_Errors(t *testing.T) {
	_, err := ccdio.ReadFrame(bytes.NewReader([]byte("not a fits file")))
	assert.Error(t, err)

	var buf bytes.Buffer
	f, err := fitsio.Create(&buf)
	require.NoError(t, err)
	img := fitsio.NewImage(-64, []int{4})
	data := []float64{1, 2, 3, 4}
	require.NoError(t, img.Write(&data))
	require.NoError(t, f.Write(img))
	require.NoError(t, img.Close())
	require.NoError(t, f.Close())
	_, err = ccdio.ReadFrame(bytes.NewReader(buf.Bytes()))
	assert.ErrorIs(t, err, ccdio.ErrNotImage)
}
