// Package pipeline wires the extraction core into a frame-to-cube reduction.
//
// BuildCube runs, in order:
//
//	flexure.EstimateOffset   (optional)  → dj
//	for each trace, on a bounded errgroup:
//	    tracemask.Build(footprint + (0, dj))
//	    extract.Extract
//	    cube.ToWavelength(solution of the trace)
//	cube.Assemble
//
// Every trace ends up either in the cube or in its Report; one bad trace
// never stops the others. The frame is shared read-only between workers.
//
// Calibrate applies a fitted fluxcal.Spectrum to an assembled cube at the
// science airmass.
package pipeline
