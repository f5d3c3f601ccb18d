package geometry

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match them with errors.Is; call sites attach
// context through geometryErrorf.
var (
	// ErrInvalidGeometry marks a malformed footprint: fewer than three
	// vertices, non-finite coordinates, zero area or self-intersection.
	ErrInvalidGeometry = errors.New("geometry: invalid trace geometry")

	// ErrDuplicateTrace is returned when two traces share an index.
	ErrDuplicateTrace = errors.New("geometry: duplicate trace index")

	// ErrUnknownTrace is returned when an index is absent from the layout.
	ErrUnknownTrace = errors.New("geometry: unknown trace index")

	// ErrBadDetector indicates non-positive detector dimensions.
	ErrBadDetector = errors.New("geometry: detector dimensions must be > 0")

	// ErrBadHexGrid indicates an unusable hexagonal grid (scale <= 0,
	// non-finite rotation, or two indexes on the same cell).
	ErrBadHexGrid = errors.New("geometry: invalid hexagonal grid")
)

// geometryErrorf wraps err with a tag, keeping the sentinel visible to errors.Is.
func geometryErrorf(tag string, err error) error {
	return fmt.Errorf("%s: %w", tag, err)
}
