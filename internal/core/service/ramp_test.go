package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRampBoundsDelta(t *testing.T) {
	step := 2000.0
	for _, last := range []float64{500, 3000, 11000, 15000} {
		for _, target := range []float64{500, 2999, 9500, 11500, 13000, 15000} {
			got := Ramp(target, last, true, step, true)
			assert.LessOrEqual(t, math.Abs(got-last), step, "target %v last %v", target, last)
			if math.Abs(target-last) <= step {
				assert.Equal(t, target, got)
			}
		}
	}
}

func TestRampScenarioC(t *testing.T) {
	assert.Equal(t, 13000.0, Ramp(11500, 15000, true, 2000, true))
	assert.Equal(t, 11000.0, Ramp(9500, 13000, true, 2000, true))
	assert.Equal(t, 7000.0, Ramp(9500, 5000, true, 2000, true))
}

func TestRampDisabledOrUnknown(t *testing.T) {
	assert.Equal(t, 11500.0, Ramp(11500, 15000, true, 2000, false))
	assert.Equal(t, 11500.0, Ramp(11500, 0, false, 2000, true))
}

func TestRampZeroStepHolds(t *testing.T) {
	assert.Equal(t, 15000.0, Ramp(11500, 15000, true, 0, true))
}
