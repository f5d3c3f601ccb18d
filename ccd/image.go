// SPDX-License-Identifier: MIT

// Package ccd - detector images and frames.
//
// Purpose:
//   - Provide a cache-friendly row-major float64 buffer with the explicit index
//     formula y*width + x, x along dispersion and y across it.
//   - Guarantee safety at the public surface: At/Set return errors instead of panicking.
//   - Enforce a numeric policy (rejection of NaN/Inf) from a single source of truth.
//
// AI-Hints:
//   - Hot loops (mask extraction) should use Row(y) and index the returned slice
//     directly; it aliases the image buffer and must be treated as read-only.
//
// Complexity quicksheet:
//   - NewImage: O(w*h) zero-init; At/Set: O(1); Clone/Scale/Offset: O(w*h); Row: O(1).
package ccd

import (
	"fmt"
	"math"
)

const (
	ctxAt   = "At"
	ctxSet  = "Set"
	ctxFrom = "NewImageFrom"
	ctxRow  = "Row"
)

// DefaultValidateNaNInf toggles finite-value validation in Set and NewImageFrom.
const DefaultValidateNaNInf = true

// imageErrorf wraps an error with method context and coordinates.
func imageErrorf(method string, x, y int, err error) error {
	return fmt.Errorf("Image.%s(%d,%d): %w", method, x, y, err)
}

// Option configures image construction.
type Option func(*imageOptions)

type imageOptions struct {
	validateNaNInf bool
}

// WithNonFinite disables NaN/Inf rejection, for frames where bad pixels are
// flagged as NaN upstream.
func WithNonFinite() Option {
	return func(o *imageOptions) { o.validateNaNInf = false }
}

func gatherOptions(opts ...Option) imageOptions {
	o := imageOptions{validateNaNInf: DefaultValidateNaNInf}
	for _, set := range opts {
		set(&o)
	}

	return o
}

// Image is a row-major 2-D array of float64 detector values.
//   - w,h are width (x, dispersion axis) and height (y, cross-dispersion axis).
//   - data holds w*h values; offset = y*w + x.
type Image struct {
	w, h           int
	data           []float64
	validateNaNInf bool
}

// NewImage allocates a zero image of the given shape.
//
// Errors:
//   - ErrBadShape when width or height is not positive.
//
// Complexity:
//   - Time O(w*h), Space O(w*h).
func NewImage(width, height int, opts ...Option) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrBadShape
	}
	o := gatherOptions(opts...)

	return &Image{
		w:              width,
		h:              height,
		data:           make([]float64, width*height),
		validateNaNInf: o.validateNaNInf,
	}, nil
}

// NewImageFrom copies row-major data into a new image.
//
// Errors:
//   - ErrBadShape when the shape is not positive or len(data) != width*height.
//   - ErrNaNInf (wrapped with coordinates) when a value is not finite under
//     the default numeric policy.
func NewImageFrom(width, height int, data []float64, opts ...Option) (*Image, error) {
	img, err := NewImage(width, height, opts...)
	if err != nil {
		return nil, err
	}
	if len(data) != width*height {
		return nil, fmt.Errorf("%s: %d values for %dx%d: %w", ctxFrom, len(data), width, height, ErrBadShape)
	}
	if img.validateNaNInf {
		for i, v := range data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, imageErrorf(ctxFrom, i%width, i/width, ErrNaNInf)
			}
		}
	}
	copy(img.data, data)

	return img, nil
}

// Width returns the number of columns (dispersion axis).
func (m *Image) Width() int { return m.w }

// Height returns the number of rows (cross-dispersion axis).
func (m *Image) Height() int { return m.h }

// SameShape reports whether m and o have identical dimensions.
func (m *Image) SameShape(o *Image) bool {
	return o != nil && m.w == o.w && m.h == o.h
}

func (m *Image) indexOf(method string, x, y int) (int, error) {
	if x < 0 || x >= m.w || y < 0 || y >= m.h {
		return 0, imageErrorf(method, x, y, ErrOutOfRange)
	}

	return y*m.w + x, nil
}

// At returns the value at column x, row y.
func (m *Image) At(x, y int) (float64, error) {
	idx, err := m.indexOf(ctxAt, x, y)
	if err != nil {
		return 0, err
	}

	return m.data[idx], nil
}

// Set writes v at column x, row y.
func (m *Image) Set(x, y int, v float64) error {
	idx, err := m.indexOf(ctxSet, x, y)
	if err != nil {
		return err
	}
	if m.validateNaNInf && (math.IsNaN(v) || math.IsInf(v, 0)) {
		return imageErrorf(ctxSet, x, y, ErrNaNInf)
	}
	m.data[idx] = v

	return nil
}

// Row returns row y as a slice aliasing the image buffer.
// Callers must not modify it.
func (m *Image) Row(y int) ([]float64, error) {
	if y < 0 || y >= m.h {
		return nil, imageErrorf(ctxRow, 0, y, ErrOutOfRange)
	}
	base := y * m.w

	return m.data[base : base+m.w : base+m.w], nil
}

// FillRect sets every pixel of the clipped box [x0,x0+w) × [y0,y0+h) to v.
// Pixels outside the image are ignored.
func (m *Image) FillRect(x0, y0, w, h int, v float64) {
	xa, xb := max(x0, 0), min(x0+w, m.w)
	ya, yb := max(y0, 0), min(y0+h, m.h)
	var x, y int
	for y = ya; y < yb; y++ {
		base := y * m.w
		for x = xa; x < xb; x++ {
			m.data[base+x] = v
		}
	}
}

// Clone returns a deep copy.
func (m *Image) Clone() *Image {
	cp := make([]float64, len(m.data))
	copy(cp, m.data)

	return &Image{w: m.w, h: m.h, data: cp, validateNaNInf: m.validateNaNInf}
}

// Scale returns a new image k*m.
func (m *Image) Scale(k float64) *Image {
	out := m.Clone()
	for i := range out.data {
		out.data[i] *= k
	}

	return out
}

// Offset returns a new image m+c.
func (m *Image) Offset(c float64) *Image {
	out := m.Clone()
	for i := range out.data {
		out.data[i] += c
	}

	return out
}

// Sum returns the sum of all pixels.
func (m *Image) Sum() float64 {
	var s float64
	for _, v := range m.data {
		s += v
	}

	return s
}
