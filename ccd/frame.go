package ccd

import "fmt"

// Frame is a cleaned detector exposure: flux and its co-registered variance.
// The extraction core only reads frames.
type Frame struct {
	Flux     *Image
	Variance *Image
	// Airmass of the exposure; 0 when unknown.
	Airmass float64
	// Object is the target name as recorded by the telescope, if any.
	Object string
}

// NewFrame pairs flux and variance. A nil variance is replaced by a zero
// image of the same shape.
//
// Errors: ErrNilImage, ErrShapeMismatch.
func NewFrame(flux, variance *Image) (*Frame, error) {
	if flux == nil {
		return nil, ErrNilImage
	}
	if variance == nil {
		v, err := NewImage(flux.w, flux.h)
		if err != nil {
			return nil, err
		}
		variance = v
	}
	if !flux.SameShape(variance) {
		return nil, fmt.Errorf("flux %dx%d, variance %dx%d: %w",
			flux.w, flux.h, variance.w, variance.h, ErrShapeMismatch)
	}

	return &Frame{Flux: flux, Variance: variance}, nil
}

// Shape returns width (dispersion) and height (cross-dispersion).
func (f *Frame) Shape() (width, height int) { return f.Flux.w, f.Flux.h }

// Scaled returns a new frame with flux·k and variance·k².
func (f *Frame) Scaled(k float64) *Frame {
	return &Frame{
		Flux:     f.Flux.Scale(k),
		Variance: f.Variance.Scale(k * k),
		Airmass:  f.Airmass,
		Object:   f.Object,
	}
}

// WithBackground returns a new frame with b added to every flux pixel;
// variance is shared with f.
func (f *Frame) WithBackground(b float64) *Frame {
	return &Frame{
		Flux:     f.Flux.Offset(b),
		Variance: f.Variance,
		Airmass:  f.Airmass,
		Object:   f.Object,
	}
}
