// SPDX-License-Identifier: MIT

// Package ccdio adapts detector frames and cubes to FITS files.
//
// Frame layout (read and written):
//   - HDU 0: flux image, NAXIS1 = width (dispersion x), NAXIS2 = height.
//     Cards AIRMASS and OBJECT are carried into ccd.Frame.
//   - HDU 1 (optional on read): variance image of the same shape.
//
// Cube layout (written):
//   - HDU 0: flux, NAXIS1 = number of wavelengths, NAXIS2 = number of spaxels;
//     one card per cube.Meta entry.
//   - HDU 1 "VARIANCE": variance, same shape.
//   - HDU 2 "LAMBDA": 1-D wavelength grid.
//   - HDU 3 "SPAXELS": binary table INDEX, X, Y, one row per flux row.
//
// Images of BITPIX 16, 32, −32 and −64 are read; BSCALE/BZERO are applied.
// Writes always use BITPIX −64.
package ccdio

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/astrogo/fitsio"

	"github.com/katalvlaran/ifucube/ccd"
)

var (
	// ErrNotImage indicates an HDU that is not a 2-D image where one is
	// required.
	ErrNotImage = errors.New("ccdio: HDU is not a 2-D image")

	// ErrBitpix indicates an unsupported BITPIX.
	ErrBitpix = errors.New("ccdio: unsupported BITPIX")

	// ErrNoCommonGrid indicates a cube whose spectra do not share a
	// wavelength grid and therefore cannot be written as an image.
	ErrNoCommonGrid = errors.New("ccdio: cube has no common wavelength grid")
)

// Card names read from and written to frame headers.
const (
	cardAirmass = "AIRMASS"
	cardObject  = "OBJECT"
	cardExtName = "EXTNAME"
	cardBScale  = "BSCALE"
	cardBZero   = "BZERO"
)

// ReadFrame decodes a flux/variance frame. A missing variance HDU yields a
// zero variance image. Non-finite pixels are rejected unless opts contains
// ccd.WithNonFinite.
//
// Errors: ErrNotImage, ErrBitpix, ccd.ErrShapeMismatch, ccd.ErrNaNInf, and
// FITS decoding errors.
func ReadFrame(r io.Reader, opts ...ccd.Option) (*ccd.Frame, error) {
	f, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("ccdio: open: %w", err)
	}
	defer f.Close()

	hdus := f.HDUs()
	if len(hdus) == 0 {
		return nil, fmt.Errorf("ccdio: no HDU: %w", ErrNotImage)
	}
	flux, err := readImage(hdus[0], opts...)
	if err != nil {
		return nil, fmt.Errorf("ccdio: flux: %w", err)
	}
	var variance *ccd.Image
	if len(hdus) > 1 {
		if variance, err = readImage(hdus[1], opts...); err != nil {
			return nil, fmt.Errorf("ccdio: variance: %w", err)
		}
	}
	frame, err := ccd.NewFrame(flux, variance)
	if err != nil {
		return nil, fmt.Errorf("ccdio: %w", err)
	}

	hdr := hdus[0].Header()
	if v, ok := cardFloat(hdr, cardAirmass); ok {
		frame.Airmass = v
	}
	if c := hdr.Get(cardObject); c != nil {
		if s, ok := c.Value.(string); ok {
			frame.Object = s
		}
	}

	return frame, nil
}

// WriteFrame encodes frame with the layout read by ReadFrame.
func WriteFrame(w io.Writer, frame *ccd.Frame) error {
	if frame == nil {
		return fmt.Errorf("ccdio: nil frame: %w", ccd.ErrNilImage)
	}
	f, err := fitsio.Create(w)
	if err != nil {
		return fmt.Errorf("ccdio: create: %w", err)
	}
	defer f.Close()

	var cards []fitsio.Card
	if frame.Airmass > 0 {
		cards = append(cards, fitsio.Card{Name: cardAirmass, Value: frame.Airmass, Comment: "airmass of the exposure"})
	}
	if frame.Object != "" {
		cards = append(cards, fitsio.Card{Name: cardObject, Value: frame.Object})
	}
	if err := writeImage(f, imageData(frame.Flux), []int{frame.Flux.Width(), frame.Flux.Height()}, cards); err != nil {
		return fmt.Errorf("ccdio: flux: %w", err)
	}
	vcards := []fitsio.Card{{Name: cardExtName, Value: "VARIANCE"}}
	if err := writeImage(f, imageData(frame.Variance), []int{frame.Variance.Width(), frame.Variance.Height()}, vcards); err != nil {
		return fmt.Errorf("ccdio: variance: %w", err)
	}

	return nil
}

// readImage decodes a 2-D image HDU into a ccd.Image.
func readImage(hdu fitsio.HDU, opts ...ccd.Option) (*ccd.Image, error) {
	img, ok := hdu.(fitsio.Image)
	if !ok {
		return nil, ErrNotImage
	}
	hdr := img.Header()
	axes := hdr.Axes()
	if len(axes) != 2 || axes[0] <= 0 || axes[1] <= 0 {
		return nil, fmt.Errorf("axes %v: %w", axes, ErrNotImage)
	}
	data, err := readPixels(img)
	if err != nil {
		return nil, err
	}
	scale, zero := 1.0, 0.0
	if v, ok := cardFloat(hdr, cardBScale); ok {
		scale = v
	}
	if v, ok := cardFloat(hdr, cardBZero); ok {
		zero = v
	}
	if scale != 1 || zero != 0 {
		for i, v := range data {
			data[i] = zero + scale*v
		}
	}

	return ccd.NewImageFrom(axes[0], axes[1], data, opts...)
}

// readPixels reads the image in its stored type and widens it to float64.
func readPixels(img fitsio.Image) ([]float64, error) {
	switch bitpix := img.Header().Bitpix(); bitpix {
	case -64:
		var raw []float64
		if err := img.Read(&raw); err != nil {
			return nil, err
		}

		return raw, nil
	case -32:
		var raw []float32
		if err := img.Read(&raw); err != nil {
			return nil, err
		}

		return widen(raw), nil
	case 32:
		var raw []int32
		if err := img.Read(&raw); err != nil {
			return nil, err
		}

		return widen(raw), nil
	case 16:
		var raw []int16
		if err := img.Read(&raw); err != nil {
			return nil, err
		}

		return widen(raw), nil
	default:
		return nil, fmt.Errorf("BITPIX %d: %w", bitpix, ErrBitpix)
	}
}

func widen[T float32 | int32 | int16](raw []T) []float64 {
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(v)
	}

	return out
}

// writeImage appends a BITPIX −64 image HDU with the given cards.
func writeImage(f *fitsio.File, data []float64, axes []int, cards []fitsio.Card) error {
	img := fitsio.NewImage(-64, axes)
	defer img.Close()
	if len(cards) > 0 {
		if err := img.Header().Append(cards...); err != nil {
			return err
		}
	}
	if err := img.Write(&data); err != nil {
		return err
	}

	return f.Write(img)
}

// imageData copies an image into a row-major slice.
func imageData(m *ccd.Image) []float64 {
	w, h := m.Width(), m.Height()
	out := make([]float64, 0, w*h)
	for y := 0; y < h; y++ {
		row, _ := m.Row(y) // y is in range
		out = append(out, row...)
	}

	return out
}

// cardFloat returns the numeric value of card name.
func cardFloat(hdr *fitsio.Header, name string) (float64, bool) {
	c := hdr.Get(name)
	if c == nil {
		return 0, false
	}
	var v float64
	switch x := c.Value.(type) {
	case float64:
		v = x
	case float32:
		v = float64(x)
	case int:
		v = float64(x)
	case int64:
		v = float64(x)
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}

	return v, true
}
