package tcsm

import "golang.org/x/exp/constraints"

// Hysteresis is a pair of thresholds. A signal is present once above High
// and gone once below High minus DownDiff.
type Hysteresis struct {
	High     uint16 `yaml:"high"`
	DownDiff uint16 `yaml:"downdiff"`
}

// Low returns the lower threshold.
func (h Hysteresis) Low() uint16 {
	return LowThreshold(h.High, h.DownDiff)
}

// NewHysteresis returns the pair with thresholds high and low.
func NewHysteresis(high, low uint16) Hysteresis {
	return Hysteresis{High: high, DownDiff: DownDiff(high, low)}
}

// LowThreshold returns high minus downDiff, clamped at zero.
func LowThreshold[T constraints.Integer](high, downDiff T) T {
	return subClamp(high, downDiff)
}

// DownDiff returns the distance from high down to low, clamped at zero.
func DownDiff[T constraints.Integer](high, low T) T {
	return subClamp(high, low)
}

func subClamp[T constraints.Integer](a, b T) T {
	if b >= a {
		return 0
	}
	return a - b
}
