package dsp

import (
	"context"
	"fmt"
	"math"
)

// Chain processing defaults, match the 2 MHz in / 48 kHz out broadcast
// receiver configuration.
const (
	DefaultCutoffHz        = 3000.0
	DefaultDecimationRatio = 42
	DefaultAGCTarget       = 5000.0
	DefaultVolume          = 50.0
)

// SampleWriter consumes decimated audio samples produced by a Chain.
type SampleWriter interface {
	WriteSample(ctx context.Context, sample int16) error
}

// ChainConfig parameterizes a demodulation chain.
type ChainConfig struct {
	SampleRate      float64 // native I/Q rate, Hz
	CutoffHz        float64 // per-channel lowpass cutoff
	DecimationRatio int     // input samples per emitted audio sample
	DCAlpha         float64 // DC blocker feedback fraction
	AGCTarget       float64 // gain control output level
	Volume          float64 // post-AGC volume multiplier
}

// Chain runs interleaved I/Q samples through the demodulation pipeline:
// dual lowpass -> envelope -> DC removal -> AGC -> decimation ->
// volume scale and clip. One Chain serves one session; it is not safe
// for concurrent use.
type Chain struct {
	lowpassI *Lowpass
	lowpassQ *Lowpass
	dc       *DCBlocker
	agc      *AGC

	ratio   int
	counter int
	volume  float64

	samplesIn  uint64
	samplesOut uint64
}

// ChainStats is a snapshot of chain counters and gain state.
type ChainStats struct {
	SamplesIn  uint64  `json:"samples_in"`
	SamplesOut uint64  `json:"samples_out"`
	AGCLevel   float64 `json:"agc_level"`
	AGCGain    float64 `json:"agc_gain"`
}

// NewChain builds a demodulation chain from the configuration. The
// lowpass coefficients are computed once, here.
func NewChain(cfg ChainConfig) (*Chain, error) {
	if cfg.DecimationRatio < 1 {
		return nil, fmt.Errorf("decimation ratio must be at least 1, got %d", cfg.DecimationRatio)
	}

	if cfg.Volume <= 0 {
		return nil, fmt.Errorf("volume must be positive, got %g", cfg.Volume)
	}

	lowpassI, err := NewLowpass(cfg.CutoffHz, cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("I channel lowpass: %w", err)
	}

	lowpassQ, err := NewLowpass(cfg.CutoffHz, cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("Q channel lowpass: %w", err)
	}

	dc, err := NewDCBlocker(cfg.DCAlpha)
	if err != nil {
		return nil, fmt.Errorf("dc blocker: %w", err)
	}

	agc, err := NewAGC(cfg.AGCTarget)
	if err != nil {
		return nil, fmt.Errorf("gain control: %w", err)
	}

	return &Chain{
		lowpassI: lowpassI,
		lowpassQ: lowpassQ,
		dc:       dc,
		agc:      agc,
		ratio:    cfg.DecimationRatio,
		volume:   cfg.Volume,
	}, nil
}

// ProcessIQ demodulates a block of interleaved (I, Q) pairs, writing
// every DecimationRatio-th processed sample to out. The block length
// must be even.
func (c *Chain) ProcessIQ(ctx context.Context, iq []int16, out SampleWriter) error {
	if len(iq)%2 != 0 {
		return fmt.Errorf("interleaved I/Q block length must be even, got %d", len(iq))
	}

	for n := 0; n < len(iq); n += 2 {
		i := c.lowpassI.Process(float64(iq[n]))
		q := c.lowpassQ.Process(float64(iq[n+1]))

		magnitude := math.Sqrt(i*i + q*q)

		audio := c.dc.Process(magnitude)
		audio = c.agc.Process(audio)

		c.samplesIn++
		c.counter++
		if c.counter < c.ratio {
			continue
		}
		c.counter = 0

		audio *= c.volume
		if audio > math.MaxInt16 {
			audio = math.MaxInt16
		}
		if audio < math.MinInt16 {
			audio = math.MinInt16
		}

		if err := out.WriteSample(ctx, int16(audio)); err != nil {
			return fmt.Errorf("failed to write audio sample: %w", err)
		}
		c.samplesOut++
	}

	return nil
}

// Stats returns a snapshot of the chain counters.
func (c *Chain) Stats() ChainStats {
	return ChainStats{
		SamplesIn:  c.samplesIn,
		SamplesOut: c.samplesOut,
		AGCLevel:   c.agc.Level(),
		AGCGain:    c.agc.Gain(),
	}
}

// Reset clears all filter state and the decimation counter. Counters
// are preserved.
func (c *Chain) Reset() {
	c.lowpassI.Reset()
	c.lowpassQ.Reset()
	c.dc.Reset()
	c.agc.Reset()
	c.counter = 0
}
