package gx_modbus

import (
	"errors"
	"math"
)

var (
	ErrValueOutOfRange      = errors.New("value does not fit in a register")
	ErrValueBelowResolution = errors.New("value is below the register resolution")
)

// DecodeSum adds up consecutive registers, such as the L1/L2/L3 power of a
// meter, and applies scale.
func DecodeSum(regs []uint16, signed bool, scale float64) float64 {
	var sum float64
	for _, r := range regs {
		if signed {
			sum += float64(int16(r))
		} else {
			sum += float64(r)
		}
	}
	return sum * scaleOrOne(scale)
}

// Encode converts a value to its register representation, rounding to the
// register resolution. Non-zero values that would round to zero are refused.
func Encode(value float64, signed bool, scale float64) (uint16, error) {
	raw := math.Round(value / scaleOrOne(scale))
	if raw == 0 && value != 0 {
		return 0, ErrValueBelowResolution
	}
	if signed {
		if raw < math.MinInt16 || raw > math.MaxInt16 {
			return 0, ErrValueOutOfRange
		}
		return uint16(int16(raw)), nil
	}
	if raw < 0 || raw > math.MaxUint16 {
		return 0, ErrValueOutOfRange
	}
	return uint16(raw), nil
}

func scaleOrOne(scale float64) float64 {
	if scale == 0 {
		return 1
	}
	return scale
}
