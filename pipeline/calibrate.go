package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/katalvlaran/ifucube/cube"
	"github.com/katalvlaran/ifucube/fluxcal"
)

// MetaFluxCalExtrapolated marks a cube calibrated outside the airmass range
// of its calibration.
const MetaFluxCalExtrapolated = "FLUXCALX"

// Calibrate applies cal to every spaxel of c observed at airmass and stamps
// the calibration ID into c.Meta. An extrapolated airmass is applied but
// logged and flagged.
//
// Errors: ErrNilInput, cube.ErrNoCommonGrid.
func Calibrate(c *cube.Cube, cal *fluxcal.Spectrum, airmass float64, log *zap.Logger) (fluxcal.Curve, error) {
	if c == nil || cal == nil {
		return fluxcal.Curve{}, ErrNilInput
	}
	if log == nil {
		log = zap.NewNop()
	}
	if c.Lambda == nil {
		return fluxcal.Curve{}, fmt.Errorf("pipeline: calibrate: %w", cube.ErrNoCommonGrid)
	}
	curve := cal.InversedSensitivityAt(c.Lambda, airmass)
	if err := c.Calibrate(curve.Lambda, curve.Values); err != nil {
		return fluxcal.Curve{}, err
	}
	c.Meta[cube.MetaFluxCal] = cal.ID
	if curve.Extrapolated {
		c.Meta[MetaFluxCalExtrapolated] = true
		log.Warn("pipeline: flux calibration extrapolated in airmass",
			zap.String("fluxcal", cal.ID),
			zap.Float64("airmass", airmass),
			zap.Float64("fit_airmass", cal.Airmass),
			zap.Float64("tolerance", cal.AirmassTolerance))
	}

	return curve, nil
}
