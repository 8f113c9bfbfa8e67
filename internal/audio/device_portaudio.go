package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioDevice plays mono 16-bit PCM through the default output
// device. Completion callbacks fire from the PortAudio stream thread
// once a submitted buffer has been fully consumed.
type PortAudioDevice struct {
	stream *portaudio.Stream
	queue  chan playRequest

	// current buffer being drained by the stream callback
	cur     []int16
	curDone func()

	closeOnce sync.Once
	closeErr  error
}

type playRequest struct {
	samples []int16
	done    func()
}

// NewPortAudioDevice opens the default output device for mono 16-bit
// playback at the given sample rate. queueDepth bounds how many
// submitted buffers may be pending in the device at once.
func NewPortAudioDevice(sampleRate, framesPerBuffer, queueDepth int) (*PortAudioDevice, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if queueDepth < 1 {
		return nil, fmt.Errorf("queue depth must be at least 1, got %d", queueDepth)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	host, err := portaudio.DefaultHostApi()
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to get default host api: %w", err)
	}

	d := &PortAudioDevice{
		queue: make(chan playRequest, queueDepth),
	}

	params := portaudio.LowLatencyParameters(nil, host.DefaultOutputDevice)
	params.Input.Channels = 0
	params.Output.Channels = 1
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = framesPerBuffer

	stream, err := portaudio.OpenStream(params, d.fill)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	d.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start output stream: %w", err)
	}

	return d, nil
}

// Submit queues one buffer for playback. It fails rather than blocks
// when the device queue is full; the sink's in-flight accounting keeps
// submissions within the queue depth.
func (d *PortAudioDevice) Submit(samples []int16, done func()) error {
	select {
	case d.queue <- playRequest{samples: samples, done: done}:
		return nil
	default:
		return fmt.Errorf("device queue full (%d pending buffers)", cap(d.queue))
	}
}

// fill is the PortAudio stream callback. It drains queued buffers into
// the device output, zero-filling when no audio is pending, and fires
// each buffer's completion callback once its last sample is consumed.
func (d *PortAudioDevice) fill(out []int16) {
	n := 0
	for n < len(out) {
		if len(d.cur) == 0 {
			d.completeCurrent()
			select {
			case req := <-d.queue:
				d.cur = req.samples
				d.curDone = req.done
			default:
				for ; n < len(out); n++ {
					out[n] = 0
				}
				return
			}
		}

		c := copy(out[n:], d.cur)
		n += c
		d.cur = d.cur[c:]
	}

	if len(d.cur) == 0 {
		d.completeCurrent()
	}
}

func (d *PortAudioDevice) completeCurrent() {
	if d.curDone != nil {
		d.curDone()
		d.curDone = nil
	}
}

// Close stops the stream and releases PortAudio. Pending buffers are
// dropped; their completion callbacks still fire so producers do not
// deadlock on in-flight flags.
func (d *PortAudioDevice) Close() error {
	d.closeOnce.Do(func() {
		if err := d.stream.Stop(); err != nil {
			d.closeErr = fmt.Errorf("failed to stop output stream: %w", err)
		}
		if err := d.stream.Close(); err != nil && d.closeErr == nil {
			d.closeErr = fmt.Errorf("failed to close output stream: %w", err)
		}

		d.completeCurrent()
	drain:
		for {
			select {
			case req := <-d.queue:
				if req.done != nil {
					req.done()
				}
			default:
				break drain
			}
		}

		portaudio.Terminate()
	})

	return d.closeErr
}
