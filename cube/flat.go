package cube

import (
	"fmt"
	"math"
)

// DeriveFlat measures the relative transmission of every spaxel of a dome
// flat cube: the mean unmasked flux of the spaxel in [lo, hi], divided by the
// median of those means over the spaxels. The result feeds FlatField.
//
// Spaxels without a sample in the window, or with a non-positive level, are
// left out of the map; FlatField then leaves them untouched.
//
// Errors:
//   - ErrBadArgument for a nil cube or an empty window.
//   - ErrEmptySelection when no spaxel has a positive level.
func DeriveFlat(dome *Cube, lo, hi float64) (map[int]float64, error) {
	if dome == nil || !(hi > lo) {
		return nil, cubeErrorf("DeriveFlat", fmt.Errorf("window [%g,%g]: %w", lo, hi, ErrBadArgument))
	}
	levels := make(map[int]float64, len(dome.Indexes))
	all := make([]float64, 0, len(dome.Indexes))
	for k, idx := range dome.Indexes {
		s := dome.Spectra[k]
		var (
			sum float64
			n   int
		)
		for j, lbda := range s.Lambda {
			if lbda >= lo && lbda <= hi && !s.Masked[j] {
				sum += s.Flux[j]
				n++
			}
		}
		if n == 0 {
			continue
		}
		if v := sum / float64(n); v > 0 && !math.IsInf(v, 0) {
			levels[idx] = v
			all = append(all, v)
		}
	}
	if len(all) == 0 {
		return nil, cubeErrorf("DeriveFlat", ErrEmptySelection)
	}
	ref := median(all)
	for idx, v := range levels {
		levels[idx] = v / ref
	}

	return levels, nil
}
