package service

import "math"

// Ramp bounds the change from lastAppliedW to targetW to maxStepW.
// Without a known last value, or when disabled, target is returned unchanged.
func Ramp(targetW, lastAppliedW float64, known bool, maxStepW float64, enabled bool) float64 {
	if !enabled || !known {
		return targetW
	}
	delta := targetW - lastAppliedW
	delta = math.Max(-maxStepW, math.Min(maxStepW, delta))
	return lastAppliedW + delta
}
