package logic

import (
	"errors"
	"math"
)

// ErrUncalibrated is returned by Moisture when the moist and dry thresholds
// are equal and no percentage can be derived.
var ErrUncalibrated = errors.New("moisture thresholds are equal")

// Moisture converts a soil sensor voltage into a percentage using the
// calibrated moist and dry voltages:
//
//	100 - (voltage - moist) / (dry - moist) * 100
//
// The result is clamped to [0, 100] and rounded to two decimals. When moist
// equals dry the result is NaN together with ErrUncalibrated.
func Moisture(voltage, moist, dry float64) (float64, error) {
	if moist == dry {
		return math.NaN(), ErrUncalibrated
	}

	percentage := 100 - (voltage-moist)/(dry-moist)*100

	return round2(clamp(percentage, 0, 100)), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
