package engine

import (
	"math"
	"time"
)

// pulse is the shared pulse state. Values are immutable once published; every
// change swaps in a new pulse so a sample and a tick never see a half-updated
// pulse.
type pulse struct {
	gen     uint64
	peak    float64
	start   time.Time
	settled bool
	targets []float64
}

func (p *pulse) target(i int, base float64) float64 {
	if i < len(p.targets) {
		return p.targets[i]
	}
	return base
}

func (p *pulse) withPeak(peak float64) *pulse {
	next := *p
	next.peak = peak
	return &next
}

func (p *pulse) withSettled() *pulse {
	next := *p
	next.settled = true
	return &next
}

// levelSpanEpsilon is the smallest min/max level span treated as a range.
const levelSpanEpsilon = 1e-9

// Distortion maps an amplitude peak to a distortion factor in
// [0, maxDistortion]. A collapsed level span acts as a step at minLevel.
func Distortion(peak, minLevel, maxLevel, maxDistortion float64) float64 {
	if !finite(peak) || !finite(minLevel) || !finite(maxLevel) || !finite(maxDistortion) {
		return 0
	}
	if maxDistortion <= 0 {
		return 0
	}
	if minLevel > maxLevel {
		minLevel, maxLevel = maxLevel, minLevel
	}

	span := maxLevel - minLevel
	if span <= levelSpanEpsilon {
		if peak > minLevel {
			return maxDistortion
		}
		return 0
	}

	clipped := math.Min(math.Max(peak, minLevel), maxLevel)
	d := maxDistortion * (clipped - minLevel) / span
	if !finite(d) || d < 0 {
		return 0
	}
	if d > maxDistortion {
		return maxDistortion
	}
	return d
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
