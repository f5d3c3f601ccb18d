// Package ifucube turns cleaned integral-field spectrograph frames into
// wavelength cubes and calibrates them in flux.
//
// What is ifucube?
//
//	A pure-Go reduction core for fibre/lenslet IFUs whose spaxels are
//	dispersed into traces on one detector:
//		• Trace geometry: footprints, hexagonal spaxel grid, YAML layouts
//		• Masks: exact fractional pixel overlap of any simple polygon
//		• Extraction: weighted column sums with propagated variance
//		• Flexure: cross-dispersion offset maximizing recovered flux
//		• Wavelengths: per-trace monotonic solutions, native or resampled
//		• Cubes: assembly with per-trace failure reports, flat, extinction,
//		  sky, aperture spectra
//		• Flux calibration: joint inverse-sensitivity and telluric fit
//		  against a standard star, persisted as a YAML artifact
//
// Layout:
//
//	geometry/: polygons, traces, hex grid, layout loading
//	ccd/: row-major flux and variance images
//	tracemask/: polygon/pixel overlap masks
//	extract/: 1-D extraction
//	flexure/: parallel offset search
//	wavesolution/: wavelength solutions and solution sets
//	cube/: wavelength mapping, assembly, cube operations
//	fluxcal/: sensitivity and telluric fit, reference providers
//	linalg/: QR least squares and polynomials
//	pipeline/: frame → cube orchestration
//	ccdio/: FITS frames and cubes
//	config/: YAML configuration with environment overrides
//	cmd/ifucube/: command-line interface
//
// Axes: x (columns) is the dispersion axis, y (rows) the cross-dispersion
// axis; pixel (x, y) covers [x, x+1) × [y, y+1).
//
//	frame ──flexure──▶ dj
//	  │
//	  ▼  per trace: mask(footprint + dj) → extract → λ
//	cube ◀── assemble ── spectra + failures
//
//	go install github.com/katalvlaran/ifucube/cmd/ifucube@latest
package ifucube
