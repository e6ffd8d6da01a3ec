package lever

import "math"

// Calibration holds the raw potentiometer limits for one channel.
type Calibration struct {
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	Invert bool    `json:"invert" yaml:"invert"`
}

// Normalize maps a raw reading into [0,1] using the calibration limits.
func (c Calibration) Normalize(raw float64) float64 {
	return Normalize(raw, c.Min, c.Max, c.Invert)
}

// Normalize maps raw into [0,1] given the calibration limits min and max.
// raw is clamped to the limits first. Limits given in reverse order map
// min to 0 and max to 1 all the same. A degenerate calibration (min == max)
// always yields 0, inverted or not. A NaN reading is treated as sitting at min.
func Normalize(raw, min, max float64, invert bool) float64 {
	if min == max {
		return 0
	}

	lo, hi := min, max
	if lo > hi {
		lo, hi = hi, lo
	}

	v := raw
	if math.IsNaN(v) {
		v = min
	}
	v = math.Max(lo, math.Min(hi, v))
	v = (v - min) / (max - min)

	if invert {
		return 1 - v
	}
	return v
}

// Raw returns the reading that normalizes to pos, the inverse of Normalize
// for pos in [0,1]. A degenerate calibration returns Min.
func (c Calibration) Raw(pos float64) float64 {
	if c.Min == c.Max {
		return c.Min
	}
	pos = math.Max(0, math.Min(1, pos))
	if c.Invert {
		pos = 1 - pos
	}
	return c.Min + pos*(c.Max-c.Min)
}
