package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Sink buffering defaults, match a 4096-sample flush at 48 kHz with
// four rotating playback buffers.
const (
	DefaultFlushThreshold = 4096
	DefaultDeviceBuffers  = 4

	// deviceWaitInterval is the sleep between in-flight flag polls while
	// waiting for the next rotating buffer to come free.
	deviceWaitInterval = 1 * time.Millisecond
)

// Device is the playback collaborator. Submit hands over one buffer of
// mono s16le PCM; the device invokes done from its own completion path
// when the buffer may be reused. Implementations must not retain the
// buffer after calling done.
type Device interface {
	Submit(samples []int16, done func()) error
	Close() error
}

// SinkConfig parameterizes the output sink.
type SinkConfig struct {
	FlushThreshold int // accumulated samples per flush
	DeviceBuffers  int // rotating playback buffers
}

// Sink accumulates decimated audio samples and flushes full buffers to
// each enabled destination: a raw PCM writer and/or a playback device.
// The producer is single-threaded; only the per-buffer in-flight flags
// are shared with the device's completion thread.
type Sink struct {
	cfg SinkConfig
	raw io.Writer // nil when the raw stream is disabled
	dev Device    // nil when audio playback is disabled

	acc []int16

	// rotating device buffers, written round-robin and never while in flight
	bufs     [][]int16
	inFlight []atomic.Bool
	next     int

	// mu guards the counters below; acc itself is producer-owned and
	// its length is mirrored in accLen for cross-goroutine readers.
	mu             sync.Mutex
	accLen         int
	flushes        uint64
	samplesFlushed uint64
}

// SinkStats is a snapshot of sink counters for status reporting.
type SinkStats struct {
	Accumulated    int    `json:"accumulated_samples"`
	Flushes        uint64 `json:"flushes"`
	SamplesFlushed uint64 `json:"samples_flushed"`
}

// NewSink creates a sink writing to the given destinations; either may
// be nil, in which case that path is skipped entirely.
func NewSink(cfg SinkConfig, raw io.Writer, dev Device) (*Sink, error) {
	if cfg.FlushThreshold < 1 {
		return nil, fmt.Errorf("flush threshold must be at least 1, got %d", cfg.FlushThreshold)
	}

	if dev != nil && cfg.DeviceBuffers < 2 {
		return nil, fmt.Errorf("device buffers must be at least 2, got %d", cfg.DeviceBuffers)
	}

	s := &Sink{
		cfg: cfg,
		raw: raw,
		dev: dev,
		acc: make([]int16, 0, cfg.FlushThreshold),
	}

	if dev != nil {
		s.bufs = make([][]int16, cfg.DeviceBuffers)
		s.inFlight = make([]atomic.Bool, cfg.DeviceBuffers)
		for i := range s.bufs {
			s.bufs[i] = make([]int16, cfg.FlushThreshold)
		}
	}

	return s, nil
}

// WriteSample appends one sample to the accumulation buffer, flushing
// to all destinations when the buffer fills.
func (s *Sink) WriteSample(ctx context.Context, sample int16) error {
	s.acc = append(s.acc, sample)

	s.mu.Lock()
	s.accLen = len(s.acc)
	s.mu.Unlock()

	if len(s.acc) < s.cfg.FlushThreshold {
		return nil
	}
	return s.Flush(ctx)
}

// Flush pushes the accumulated samples to each enabled destination and
// empties the accumulation buffer. It is a no-op when nothing is
// buffered.
func (s *Sink) Flush(ctx context.Context) error {
	n := len(s.acc)
	if n == 0 {
		return nil
	}

	if s.raw != nil {
		if _, err := s.raw.Write(MarshalPCM(s.acc)); err != nil {
			return fmt.Errorf("raw stream write failed: %w", err)
		}
	}

	if s.dev != nil {
		if err := s.submitToDevice(ctx, s.acc); err != nil {
			return err
		}
	}

	s.acc = s.acc[:0]

	s.mu.Lock()
	s.accLen = 0
	s.flushes++
	s.samplesFlushed += uint64(n)
	s.mu.Unlock()

	return nil
}

// submitToDevice copies samples into the next rotating buffer and hands
// it to the device. It waits for that buffer's in-flight flag to clear,
// polling with brief sleeps and honoring cancellation between
// iterations. This wait is the only blocking point in the audio path.
func (s *Sink) submitToDevice(ctx context.Context, samples []int16) error {
	idx := s.next

	for s.inFlight[idx].Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		time.Sleep(deviceWaitInterval)
	}

	n := copy(s.bufs[idx], samples)
	s.inFlight[idx].Store(true)

	if err := s.dev.Submit(s.bufs[idx][:n], func() {
		s.inFlight[idx].Store(false)
	}); err != nil {
		s.inFlight[idx].Store(false)
		return fmt.Errorf("device submit failed: %w", err)
	}

	s.next = (idx + 1) % len(s.bufs)
	return nil
}

// Accumulated returns the number of samples waiting for the next flush.
func (s *Sink) Accumulated() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accLen
}

// Stats returns a snapshot of the sink counters.
func (s *Sink) Stats() SinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SinkStats{
		Accumulated:    s.accLen,
		Flushes:        s.flushes,
		SamplesFlushed: s.samplesFlushed,
	}
}
