package dss

import "math"

// Raw output ranges of shadow devices.
const (
	// rawReadMax is the full-scale value reported by getOutputValue.
	rawReadMax = 65535

	// rawAngleWriteMax is the full-scale slat angle accepted by setOutputValue.
	rawAngleWriteMax = 255
)

// clamp01 limits v to 0..1. NaN becomes 0.
func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// openFromRaw normalises a raw opening. The wire axis is inverted:
// raw 0 is closed, which this model represents as 1.0.
func openFromRaw(raw int) float64 {
	return 1 - clamp01(float64(raw)/rawReadMax)
}

// openToRaw is the inverse of openFromRaw, rounded to the nearest unit.
func openToRaw(open float64) int {
	return int(math.Round((1 - clamp01(open)) * rawReadMax))
}

// angleFromRaw normalises a raw slat angle.
func angleFromRaw(raw int) float64 {
	return clamp01(float64(raw) / rawReadMax)
}

// angleToRaw scales a normalised angle to the 0..255 write range.
func angleToRaw(angle float64) int {
	return int(math.Round(clamp01(angle) * rawAngleWriteMax))
}
