package linalg

import "errors"

var (
	// ErrDimensionMismatch indicates inconsistent operand lengths or an
	// underdetermined system.
	ErrDimensionMismatch = errors.New("linalg: dimension mismatch")

	// ErrSingular indicates a rank-deficient design matrix.
	ErrSingular = errors.New("linalg: singular system")

	// ErrBadDegree indicates a negative polynomial degree.
	ErrBadDegree = errors.New("linalg: polynomial degree must be >= 0")
)
