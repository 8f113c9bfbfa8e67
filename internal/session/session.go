package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Alex-Pennington/phoenix-sdr-utils/internal/audio"
	"github.com/Alex-Pennington/phoenix-sdr-utils/internal/dsp"
	"github.com/Alex-Pennington/phoenix-sdr-utils/internal/metrics"
	"github.com/Alex-Pennington/phoenix-sdr-utils/internal/protocol"
)

// State is the lifecycle phase of a receive session.
type State int32

// Session lifecycle states, in order.
const (
	StateConnecting State = iota
	StateHeaderExchange
	StateStreaming
	StateClosed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHeaderExchange:
		return "header_exchange"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Config parameterizes a receive session. The DSP sample rate is not
// configured here; it comes from the server's stream header.
type Config struct {
	Addr        string        // host:port of the I/Q stream server
	DialTimeout time.Duration // connection establishment timeout
	ReadTimeout time.Duration // per-read timeout, 0 disables

	CutoffHz        float64
	DecimationRatio int
	DCAlpha         float64
	AGCTarget       float64
	Volume          float64
}

// Session drives one connection to the stream server: dial, header
// exchange, then the frame demux loop feeding the demodulation chain.
// Run executes on a single goroutine; Stats may be called from others.
type Session struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	sink    *audio.Sink

	state atomic.Int32

	// mu guards the fields below. The live chain belongs to the Run
	// goroutine; readers only ever see the chainStats snapshot.
	mu             sync.Mutex
	chainStats     *dsp.ChainStats
	header         *protocol.StreamHeader
	centerFreqHz   float64
	dataFrames     uint64
	metadataFrames uint64
	sequenceGaps   uint64

	lastSequence uint32
	haveSequence bool
}

// Stats is a snapshot of session progress for status reporting.
type Stats struct {
	State           string         `json:"state"`
	Addr            string         `json:"addr"`
	SampleRate      uint32         `json:"sample_rate"`
	CenterFrequency float64        `json:"center_frequency_hz"`
	DataFrames      uint64         `json:"data_frames"`
	MetadataFrames  uint64         `json:"metadata_frames"`
	SequenceGaps    uint64         `json:"sequence_gaps"`
	Chain           *dsp.ChainStats `json:"chain,omitempty"`
	Sink            audio.SinkStats `json:"sink"`
}

// New creates a session writing demodulated audio to sink. The metrics
// argument may be nil, in which case instrumentation is skipped.
func New(cfg Config, sink *audio.Sink, m *metrics.Metrics, logger *slog.Logger) *Session {
	return &Session{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		sink:    sink,
	}
}

// Run executes the full session lifecycle. It returns nil when the
// context is cancelled during streaming and an error for connection
// loss, protocol violations or an unsupported stream format.
func (s *Session) Run(ctx context.Context) error {
	s.setState(StateConnecting)
	defer s.setState(StateClosed)

	s.logger.Info("connecting to stream server", slog.String("addr", s.cfg.Addr))

	dialer := &net.Dialer{Timeout: s.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.cfg.Addr, err)
	}
	defer conn.Close()

	reader := protocol.NewFrameReader(conn, s.cfg.ReadTimeout)

	header, err := s.exchangeHeader(ctx, reader)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	chain, err := dsp.NewChain(dsp.ChainConfig{
		SampleRate:      float64(header.SampleRate),
		CutoffHz:        s.cfg.CutoffHz,
		DecimationRatio: s.cfg.DecimationRatio,
		DCAlpha:         s.cfg.DCAlpha,
		AGCTarget:       s.cfg.AGCTarget,
		Volume:          s.cfg.Volume,
	})
	if err != nil {
		return fmt.Errorf("failed to build demodulation chain: %w", err)
	}

	initial := chain.Stats()
	s.mu.Lock()
	s.chainStats = &initial
	s.mu.Unlock()

	s.setState(StateStreaming)
	err = s.streamLoop(ctx, reader, chain)

	// Push out whatever audio is still accumulated before reporting the
	// loop outcome. The flush context may already be cancelled.
	if flushErr := s.sink.Flush(context.WithoutCancel(ctx)); flushErr != nil {
		s.logger.Warn("final flush failed", slog.String("error", flushErr.Error()))
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.logger.Info("session stopped",
			slog.Uint64("data_frames", s.dataFrameCount()),
			slog.Uint64("metadata_frames", s.metadataFrameCount()))
		return nil
	}

	return err
}

// exchangeHeader reads and validates the one-time stream header. An
// unsupported sample format fails the session before any frame data is
// consumed.
func (s *Session) exchangeHeader(ctx context.Context, reader *protocol.FrameReader) (*protocol.StreamHeader, error) {
	s.setState(StateHeaderExchange)

	buf := make([]byte, protocol.StreamHeaderSize)
	if err := reader.ReadFull(ctx, buf); err != nil {
		return nil, fmt.Errorf("failed to read stream header: %w", err)
	}

	header, err := protocol.ParseStreamHeader(buf)
	if err != nil {
		return nil, err
	}

	if err := header.Validate(); err != nil {
		s.recordProtocolError()
		return nil, fmt.Errorf("stream header rejected: %w", err)
	}

	s.logger.Info("stream header received",
		slog.Uint64("sample_rate", uint64(header.SampleRate)),
		slog.String("center_freq", header.CenterFrequency().String()),
		slog.Uint64("gain_reduction", uint64(header.GainReduction)),
		slog.Uint64("lna_state", uint64(header.LNAState)))

	s.mu.Lock()
	s.header = header
	s.centerFreqHz = float64(header.CenterFrequency())
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetCenterFrequency(float64(header.CenterFrequency()))
	}

	return header, nil
}

// streamLoop is the frame demux: read a common header, then dispatch on
// its magic. It runs until the connection drops, the context is
// cancelled, or a protocol violation makes the byte stream unusable.
func (s *Session) streamLoop(ctx context.Context, reader *protocol.FrameReader, chain *dsp.Chain) error {
	headerBuf := make([]byte, protocol.FrameHeaderSize)
	remainderBuf := make([]byte, protocol.MetadataRemainderSize)

	var payload []byte
	var samples []int16
	var lastFlushes uint64

	for {
		if err := reader.ReadFull(ctx, headerBuf); err != nil {
			return err
		}

		frame, err := protocol.ParseFrameHeader(headerBuf)
		if err != nil {
			return err
		}

		if err := frame.Validate(); err != nil {
			s.recordProtocolError()
			return fmt.Errorf("frame rejected: %w", err)
		}

		switch frame.Magic {
		case protocol.MagicData:
			need := frame.PayloadSize()
			if cap(payload) < need {
				payload = make([]byte, need)
				samples = make([]int16, need/2)
			}
			payload = payload[:need]
			samples = samples[:need/2]

			if err := reader.ReadFull(ctx, payload); err != nil {
				return err
			}

			s.trackSequence(frame.Sequence)
			if err := protocol.DecodeIQPayload(payload, samples); err != nil {
				return err
			}

			emittedBefore := chain.Stats().SamplesOut
			if err := chain.ProcessIQ(ctx, samples, s.sink); err != nil {
				return err
			}

			stats := chain.Stats()
			s.mu.Lock()
			s.dataFrames++
			s.chainStats = &stats
			s.mu.Unlock()

			if s.metrics != nil {
				s.metrics.RecordDataFrame(int(frame.Count))
				s.metrics.RecordSamples(int(frame.Count), int(stats.SamplesOut-emittedBefore))
				s.metrics.SetAGCState(stats.AGCGain, stats.AGCLevel)

				for flushes := s.sink.Stats().Flushes; lastFlushes < flushes; lastFlushes++ {
					s.metrics.RecordSinkFlush()
				}
			}

		case protocol.MagicMetadata:
			if err := reader.ReadFull(ctx, remainderBuf); err != nil {
				return err
			}

			update, err := protocol.ParseMetadataUpdate(frame, remainderBuf)
			if err != nil {
				s.recordProtocolError()
				return err
			}

			s.logger.Info("metadata update",
				slog.Uint64("sample_rate", uint64(update.SampleRate)),
				slog.String("center_freq", update.CenterFrequency().String()),
				slog.Uint64("gain_reduction", uint64(update.GainReduction)),
				slog.Uint64("lna_state", uint64(update.LNAState)))

			s.mu.Lock()
			s.metadataFrames++
			s.centerFreqHz = float64(update.CenterFrequency())
			s.mu.Unlock()

			if s.metrics != nil {
				s.metrics.RecordMetadataFrame()
				s.metrics.SetCenterFrequency(float64(update.CenterFrequency()))
			}
		}
	}
}

// trackSequence counts discontinuities in the data frame sequence. TCP
// already guarantees ordered delivery, so a gap means the server
// skipped frames; it is observed and counted, never acted on.
func (s *Session) trackSequence(seq uint32) {
	if s.haveSequence && seq != s.lastSequence+1 {
		s.mu.Lock()
		s.sequenceGaps++
		gaps := s.sequenceGaps
		s.mu.Unlock()

		s.logger.Warn("frame sequence gap",
			slog.Uint64("expected", uint64(s.lastSequence+1)),
			slog.Uint64("got", uint64(seq)),
			slog.Uint64("total_gaps", gaps))

		if s.metrics != nil {
			s.metrics.RecordSequenceGap()
		}
	}

	s.lastSequence = seq
	s.haveSequence = true
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Stats returns a snapshot of the session for the status API.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		State:           s.State().String(),
		Addr:            s.cfg.Addr,
		CenterFrequency: s.centerFreqHz,
		DataFrames:      s.dataFrames,
		MetadataFrames:  s.metadataFrames,
		SequenceGaps:    s.sequenceGaps,
		Sink:            s.sink.Stats(),
	}

	if s.header != nil {
		stats.SampleRate = s.header.SampleRate
	}

	if s.chainStats != nil {
		cs := *s.chainStats
		stats.Chain = &cs
	}

	return stats
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
	if s.metrics != nil {
		s.metrics.SetSessionState(int(state))
	}
}

func (s *Session) recordProtocolError() {
	if s.metrics != nil {
		s.metrics.RecordProtocolError()
	}
}

func (s *Session) dataFrameCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataFrames
}

func (s *Session) metadataFrameCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadataFrames
}
