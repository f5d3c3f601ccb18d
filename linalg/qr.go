// SPDX-License-Identifier: MIT
// Package linalg provides the small dense linear-algebra kernels the pipeline
// needs: a Householder-QR least-squares solver and real polynomials.
//
// Determinism & Policy:
//   - Fixed loop orders (k→j→i); no pivoting, no randomness.
//   - Inputs are never mutated; kernels work on private copies.
//   - Rank deficiency is reported as ErrSingular, never silently regularised.
package linalg

import (
	"fmt"
	"math"
)

// rankTol is the relative threshold under which a diagonal entry of R is
// considered zero (relative to the largest |R[k,k]| seen so far).
const rankTol = 1e-12

const (
	opLeastSquares = "LeastSquares"
	opPolyFit      = "PolyFit"
)

// linalgErrorf wraps err with an operation tag, preserving it for errors.Is.
func linalgErrorf(tag string, err error) error {
	return fmt.Errorf("%s: %w", tag, err)
}

// LeastSquares solves min‖A·x − b‖₂ for a row-major m×n matrix A (m ≥ n).
//
// Implementation:
//   - Stage 1: validate shapes; copy A and b.
//   - Stage 2: for k=0..n−1 build the Householder vector of column k below the
//     diagonal and reflect the remaining columns of A and the vector b.
//   - Stage 3: back-substitute R·x = (Qᵀb)[0:n].
//
// Errors:
//   - ErrDimensionMismatch when len(a) != m*n, len(b) != m, n == 0 or m < n.
//   - ErrSingular when a column is (numerically) dependent on previous ones.
//
// Complexity:
//   - Time O(m·n²), Space O(m·n).
//
// AI-Hints:
//   - Scale columns to comparable magnitude (e.g. normalised abscissa for
//     polynomials) before calling; no column pivoting is performed.
func LeastSquares(a []float64, m, n int, b []float64) ([]float64, error) {
	if n <= 0 || m < n || len(a) != m*n || len(b) != m {
		return nil, linalgErrorf(opLeastSquares, ErrDimensionMismatch)
	}
	A := make([]float64, len(a))
	copy(A, a)
	y := make([]float64, m)
	copy(y, b)

	var (
		i, j, k        int
		norm, alpha    float64
		beta, tau, sum float64
		maxDiag        float64
		v              = make([]float64, m)
	)
	for k = 0; k < n; k++ {
		// Norm of A[k:m, k].
		norm = 0
		for i = k; i < m; i++ {
			norm += A[i*n+k] * A[i*n+k]
		}
		norm = math.Sqrt(norm)
		if norm == 0 || norm <= rankTol*maxDiag {
			return nil, linalgErrorf(opLeastSquares, ErrSingular)
		}
		alpha = -math.Copysign(norm, A[k*n+k])

		// Householder vector v = x − alpha·e_k, restricted to rows k..m−1.
		for i = k; i < m; i++ {
			v[i] = A[i*n+k]
		}
		v[k] -= alpha
		beta = 0
		for i = k; i < m; i++ {
			beta += v[i] * v[i]
		}
		if beta == 0 {
			continue
		}
		tau = 2 / beta

		// Reflect the trailing columns of A.
		for j = k; j < n; j++ {
			sum = 0
			for i = k; i < m; i++ {
				sum += v[i] * A[i*n+j]
			}
			for i = k; i < m; i++ {
				A[i*n+j] -= tau * v[i] * sum
			}
		}
		// Reflect the right-hand side.
		sum = 0
		for i = k; i < m; i++ {
			sum += v[i] * y[i]
		}
		for i = k; i < m; i++ {
			y[i] -= tau * v[i] * sum
		}

		maxDiag = math.Max(maxDiag, math.Abs(A[k*n+k]))
	}

	// Back substitution on the n×n upper triangle.
	x := make([]float64, n)
	for i = n - 1; i >= 0; i-- {
		sum = y[i]
		for j = i + 1; j < n; j++ {
			sum -= A[i*n+j] * x[j]
		}
		x[i] = sum / A[i*n+i]
	}

	return x, nil
}
