package dsp

import "fmt"

// DefaultDCAlpha is the single-pole feedback fraction used for voice
// bandwidth audio.
const DefaultDCAlpha = 0.99

// DCBlocker is a single-pole recursive highpass:
//
//	y[n] = x[n] - x[n-1] + alpha*y[n-1]
//
// It removes the demodulated carrier's DC bias while passing audio-rate
// modulation.
type DCBlocker struct {
	alpha float64
	xPrev float64
	yPrev float64
}

// NewDCBlocker creates a DC blocker. alpha must lie strictly between 0
// and 1; values near 1 push the highpass corner toward DC.
func NewDCBlocker(alpha float64) (*DCBlocker, error) {
	if alpha <= 0 || alpha >= 1 {
		return nil, fmt.Errorf("alpha must be between 0 and 1 (exclusive), got %g", alpha)
	}

	return &DCBlocker{alpha: alpha}, nil
}

// Process removes DC from one sample.
func (d *DCBlocker) Process(x float64) float64 {
	y := x - d.xPrev + d.alpha*d.yPrev
	d.xPrev = x
	d.yPrev = y
	return y
}

// Reset clears the blocker state.
func (d *DCBlocker) Reset() {
	d.xPrev, d.yPrev = 0, 0
}
