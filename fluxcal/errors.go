package fluxcal

import (
	"errors"
	"fmt"
)

var (
	// ErrFitDidNotConverge indicates the optimiser stopped without meeting
	// its convergence criteria, was cancelled, or produced non-finite
	// parameters. No artifact is returned.
	ErrFitDidNotConverge = errors.New("fluxcal: fit did not converge")

	// ErrInsufficientOverlap indicates too few usable samples shared by the
	// observed and reference spectra.
	ErrInsufficientOverlap = errors.New("fluxcal: insufficient overlap with reference")

	// ErrBadOptions indicates an invalid calibrator configuration.
	ErrBadOptions = errors.New("fluxcal: invalid options")

	// ErrBadSpectrum indicates malformed spectrum input (length mismatch,
	// unsorted wavelengths, nil).
	ErrBadSpectrum = errors.New("fluxcal: malformed spectrum")

	// ErrUnknownStar indicates a reference provider without the requested star.
	ErrUnknownStar = errors.New("fluxcal: unknown reference star")
)

func fluxcalErrorf(tag string, err error) error {
	return fmt.Errorf("fluxcal.%s: %w", tag, err)
}
