package dsp

import (
	"fmt"
	"math"
)

// butterworthQ is the quality factor of a maximally flat 2nd-order
// Butterworth section, sqrt(2)/2.
const butterworthQ = 0.70710678118654752

// Lowpass is a second-order recursive lowpass section designed with the
// bilinear-transform Butterworth prototype. It is unity-gain at DC and
// -3 dB at the cutoff frequency.
type Lowpass struct {
	b0, b1, b2 float64 // feed-forward coefficients
	a1, a2     float64 // feedback coefficients
	x1, x2     float64 // input history
	y1, y2     float64 // output history
}

// NewLowpass derives the five recursive coefficients from the cutoff
// frequency and the input sample rate, both in Hz. The cutoff must lie
// strictly between zero and the Nyquist frequency.
func NewLowpass(cutoff, sampleRate float64) (*Lowpass, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %g", sampleRate)
	}

	if cutoff <= 0 || cutoff >= sampleRate/2 {
		return nil, fmt.Errorf("cutoff must be between 0 and %g Hz (half the sample rate), got %g", sampleRate/2, cutoff)
	}

	w0 := 2 * math.Pi * cutoff / sampleRate
	alpha := math.Sin(w0) / (2 * butterworthQ)
	cosW0 := math.Cos(w0)

	a0 := 1 + alpha
	return &Lowpass{
		b0: (1 - cosW0) / 2 / a0,
		b1: (1 - cosW0) / a0,
		b2: (1 - cosW0) / 2 / a0,
		a1: -2 * cosW0 / a0,
		a2: (1 - alpha) / a0,
	}, nil
}

// Process filters one sample, updating the two-sample input and output
// histories.
func (f *Lowpass) Process(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2

	f.x2 = f.x1
	f.x1 = x
	f.y2 = f.y1
	f.y1 = y

	return y
}

// Reset clears the filter histories without touching the coefficients.
func (f *Lowpass) Reset() {
	f.x1, f.x2 = 0, 0
	f.y1, f.y2 = 0, 0
}
