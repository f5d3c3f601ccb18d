package ccd

import "errors"

// Sentinel errors for detector images and frames. Every message is prefixed
// with "ccd:"; wrappers add method context with %w.
var (
	// ErrBadShape indicates non-positive dimensions or a data length that does
	// not match the requested shape.
	ErrBadShape = errors.New("ccd: invalid shape")

	// ErrOutOfRange indicates pixel coordinates outside the image.
	ErrOutOfRange = errors.New("ccd: pixel out of range")

	// ErrNaNInf indicates a non-finite value under the default numeric policy.
	ErrNaNInf = errors.New("ccd: NaN or Inf encountered")

	// ErrShapeMismatch indicates flux and variance images of different shape.
	ErrShapeMismatch = errors.New("ccd: flux and variance shapes differ")

	// ErrNilImage indicates a nil flux image.
	ErrNilImage = errors.New("ccd: nil image")
)
