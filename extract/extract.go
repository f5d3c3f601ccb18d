// SPDX-License-Identifier: MIT

// Package extract turns a detector frame and a trace mask into a 1-D
// spectrum in detector-pixel units.
//
// For every dispersion column x covered by the mask:
//
//	flux[x]     = Σ_y frame[y][x] · w(x,y)
//	variance[x] = Σ_y var[y][x]   · w(x,y)²
//
// which is the weighted linear combination of independent pixels. Columns
// whose total weight is zero are not emitted.
//
// Determinism:
//   - Columns are emitted in increasing x; sums run in increasing y.
//
// Concurrency:
//   - Extract only reads the frame and mask; any number of goroutines may
//     extract different traces from the same frame.
package extract

import (
	"errors"
	"fmt"

	"github.com/katalvlaran/ifucube/ccd"
	"github.com/katalvlaran/ifucube/tracemask"
)

var (
	// ErrEmptyTrace indicates a mask with zero total weight on the frame.
	ErrEmptyTrace = errors.New("extract: trace mask is empty")

	// ErrShapeMismatch indicates a mask built for a different frame shape, or
	// a frame whose variance plane differs from its flux plane.
	ErrShapeMismatch = errors.New("extract: mask and frame shapes differ")

	// ErrNilInput indicates a nil frame or mask.
	ErrNilInput = errors.New("extract: nil frame or mask")
)

// Spectrum is a per-trace 1-D spectrum indexed by detector column.
type Spectrum struct {
	// Pixels are the dispersion-axis column indexes, strictly increasing.
	Pixels []int
	// Flux and Variance are aligned with Pixels.
	Flux     []float64
	Variance []float64
}

// Len returns the number of samples.
func (s *Spectrum) Len() int { return len(s.Pixels) }

// Total returns Σ flux.
func (s *Spectrum) Total() float64 {
	var t float64
	for _, v := range s.Flux {
		t += v
	}

	return t
}

// Extract applies mask to frame.
//
// Errors:
//   - ErrNilInput, ErrShapeMismatch.
//   - ErrEmptyTrace when the mask has no positive weight (trace off-frame or
//     degenerate).
//
// Complexity:
//   - Time O(W·H) over the mask window, Space O(W).
func Extract(frame *ccd.Frame, mask *tracemask.Mask) (*Spectrum, error) {
	if frame == nil || frame.Flux == nil || frame.Variance == nil || mask == nil {
		return nil, ErrNilInput
	}
	if !frame.Flux.SameShape(frame.Variance) {
		return nil, fmt.Errorf("extract: flux %dx%d, variance %dx%d: %w",
			frame.Flux.Width(), frame.Flux.Height(), frame.Variance.Width(), frame.Variance.Height(), ErrShapeMismatch)
	}
	fw, fh := frame.Shape()
	mw, mh := mask.FrameShape()
	if fw != mw || fh != mh {
		return nil, fmt.Errorf("extract: frame %dx%d, mask %dx%d: %w", fw, fh, mw, mh, ErrShapeMismatch)
	}
	if !(mask.Sum() > 0) {
		return nil, ErrEmptyTrace
	}

	x0, y0, w, h := mask.Window()
	var (
		flux = make([]float64, w)
		vari = make([]float64, w)
		wsum = make([]float64, w)
		x, y int
	)
	for y = y0; y < y0+h; y++ {
		wr := mask.Row(y)
		fr, err := frame.Flux.Row(y)
		if err != nil {
			return nil, fmt.Errorf("extract: %w", err)
		}
		vr, err := frame.Variance.Row(y)
		if err != nil {
			return nil, fmt.Errorf("extract: %w", err)
		}
		for x = 0; x < w; x++ {
			wt := wr[x]
			if wt == 0 {
				continue
			}
			flux[x] += fr[x0+x] * wt
			vari[x] += vr[x0+x] * wt * wt
			wsum[x] += wt
		}
	}

	out := &Spectrum{
		Pixels:   make([]int, 0, w),
		Flux:     make([]float64, 0, w),
		Variance: make([]float64, 0, w),
	}
	for x = 0; x < w; x++ {
		if wsum[x] <= 0 {
			continue
		}
		out.Pixels = append(out.Pixels, x0+x)
		out.Flux = append(out.Flux, flux[x])
		out.Variance = append(out.Variance, vari[x])
	}

	return out, nil
}
