package cube

import (
	"errors"
	"fmt"
)

// Sentinel errors. Per-trace kinds end up in a Report; the others are
// returned directly by the failing call.
var (
	// ErrMissingTrace marks a grid index with no extracted spectrum.
	ErrMissingTrace = errors.New("cube: trace missing from cube")

	// ErrNotInGrid marks a spectrum whose trace index is not in the hex grid.
	ErrNotInGrid = errors.New("cube: trace not in spaxel grid")

	// ErrNoGrid indicates assembly without a spaxel grid.
	ErrNoGrid = errors.New("cube: nil spaxel grid")

	// ErrNoCommonGrid indicates an operation that needs every spaxel on the
	// same wavelength grid.
	ErrNoCommonGrid = errors.New("cube: spectra do not share a wavelength grid")

	// ErrBadArgument indicates an invalid scalar or length argument.
	ErrBadArgument = errors.New("cube: invalid argument")

	// ErrEmptySelection indicates an aperture or sky selection with no spaxel.
	ErrEmptySelection = errors.New("cube: no spaxel selected")
)

func cubeErrorf(tag string, err error) error {
	return fmt.Errorf("cube.%s: %w", tag, err)
}
