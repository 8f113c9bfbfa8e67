package dsp

import (
	"fmt"
	"math"
)

// AGC smoothing and clamp constants. Attack is fast so bursts are tamed
// quickly; decay is slow so gain creeps up gently during quiet passages.
const (
	agcAttack     = 0.01
	agcDecay      = 0.0001
	agcLevelFloor = 0.0001
	agcGainMin    = 0.1
	agcGainMax    = 100.0
)

// AGC tracks an exponential estimate of signal magnitude with
// asymmetric attack/decay smoothing and scales samples toward a target
// output level. Gain is clamped so silence cannot run the amplifier
// away and loud signals cannot be muted entirely.
type AGC struct {
	level  float64 // tracked signal-level estimate
	target float64 // desired output level
	gain   float64 // last applied gain, for telemetry
}

// NewAGC creates a gain control aiming for the given output level.
func NewAGC(target float64) (*AGC, error) {
	if target <= 0 {
		return nil, fmt.Errorf("target level must be positive, got %g", target)
	}

	return &AGC{
		level:  agcLevelFloor,
		target: target,
		gain:   1,
	}, nil
}

// Process scales one sample by the current computed gain and updates
// the level estimate.
func (a *AGC) Process(x float64) float64 {
	mag := math.Abs(x)

	if mag > a.level {
		a.level += agcAttack * (mag - a.level)
	} else {
		a.level += agcDecay * (mag - a.level)
	}

	// level floor prevents division blow-up, never surfaced as an error
	if a.level < agcLevelFloor {
		a.level = agcLevelFloor
	}

	gain := a.target / a.level
	if gain > agcGainMax {
		gain = agcGainMax
	}
	if gain < agcGainMin {
		gain = agcGainMin
	}
	a.gain = gain

	return x * gain
}

// Level returns the tracked signal-level estimate.
func (a *AGC) Level() float64 {
	return a.level
}

// Gain returns the most recently applied gain.
func (a *AGC) Gain() float64 {
	return a.gain
}

// Reset returns the gain control to its initial state.
func (a *AGC) Reset() {
	a.level = agcLevelFloor
	a.gain = 1
}
