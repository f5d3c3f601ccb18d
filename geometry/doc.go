// Package geometry holds the static description of an integral-field
// spectrograph's detector layout: the footprint polygon of every trace on the
// CCD, and the hexagonal spaxel grid that maps trace indexes to positions on
// the sky plane.
//
// Conventions:
//   - Detector coordinates are continuous pixel units; pixel (x, y) covers the
//     half-open box [x, x+1) × [y, y+1).
//   - x ("i") runs along the dispersion axis, y ("j") across it. Flexure
//     corrections shift footprints along y only.
//   - Traces are immutable values; every transformation returns a copy.
//
// A Geometry is usually loaded from a versioned YAML file (see Load), and is
// safe for concurrent read-only use.
package geometry
